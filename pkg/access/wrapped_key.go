package access

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	kascrypto "github.com/opentdf/kas/internal/crypto"
)

// WrappedKey holds an unwrapped DEK for the life of one request. Callers
// must Destroy it when the request scope ends.
type WrappedKey struct {
	dek []byte
}

// NewWrappedKey takes ownership of an already-plaintext DEK.
func NewWrappedKey(dek []byte) *WrappedKey {
	return &WrappedKey{dek: dek}
}

// UnwrapKey decrypts a base64 RSA-OAEP wrapped DEK with the KAS private
// key. The method selector follows the request's algorithm field.
func UnwrapKey(wrappedB64 string, kasPrivate crypto.PrivateKey, method kascrypto.Method) (*WrappedKey, error) {
	wrapped, err := base64.StdEncoding.DecodeString(wrappedB64)
	if err != nil {
		return nil, errors.Join(ErrBadRequest, fmt.Errorf("wrappedKey: %w", err))
	}
	rsaPriv, ok := kasPrivate.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Join(ErrCrypto, errors.New("unwrap key is not RSA"))
	}
	dek, err := kascrypto.DecryptOAEP(method, rsaPriv, wrapped)
	if err != nil {
		return nil, errors.Join(ErrCrypto, err)
	}
	return &WrappedKey{dek: dek}, nil
}

// VerifyBinding checks the policy binding HMAC over the canonical policy
// base64, keyed by the DEK. The wire binding is the hex digest, either
// bare or base64 wrapped. Mismatch is fatal for the request.
func (wk *WrappedKey) VerifyBinding(canonicalPolicyB64, binding, method string) error {
	if err := kascrypto.ValidateHMAC([]byte(canonicalPolicyB64), wk.dek, normalizeBinding(binding), method); err != nil {
		return errors.Join(ErrPolicyBinding, err)
	}
	return nil
}

// normalizeBinding unwraps the base64-over-hex wire form down to the hex
// digest. A bare hex digest base64-decodes to the wrong length, so it
// passes through unchanged.
func normalizeBinding(binding string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(binding); err == nil {
		if len(decoded) == hex.EncodedLen(sha256.Size) && isHex(decoded) {
			return decoded
		}
	}
	return []byte(binding)
}

func isHex(b []byte) bool {
	_, err := hex.Decode(make([]byte, hex.DecodedLen(len(b))), b)
	return err == nil
}

// Rewrap encrypts the DEK to the client's public key and returns base64
// ciphertext.
func (wk *WrappedKey) Rewrap(clientPublic crypto.PublicKey, method kascrypto.Method) (string, error) {
	rsaPub, ok := clientPublic.(*rsa.PublicKey)
	if !ok {
		return "", errors.Join(ErrBadRequest, errors.New("client public key is not RSA"))
	}
	ct, err := kascrypto.EncryptOAEP(method, rsaPub, wk.dek)
	if err != nil {
		return "", errors.Join(ErrCrypto, err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptMetadata opens the KAO's encryptedMetadata with the DEK. The iv
// argument may be empty for the legacy composite form where the nonce
// leads the ciphertext.
func (wk *WrappedKey) DecryptMetadata(ciphertextB64, ivB64 string) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, errors.Join(ErrBadRequest, err)
	}
	var iv []byte
	if ivB64 != "" {
		if iv, err = base64.StdEncoding.DecodeString(ivB64); err != nil {
			return nil, errors.Join(ErrBadRequest, err)
		}
	}
	pt, err := kascrypto.DecryptGCM(ct, wk.dek, iv, nil)
	if err != nil {
		return nil, errors.Join(ErrCrypto, err)
	}
	return pt, nil
}

// Destroy zeroes the DEK buffer. The key is unusable afterwards.
func (wk *WrappedKey) Destroy() {
	for i := range wk.dek {
		wk.dek[i] = 0
	}
	wk.dek = nil
}
