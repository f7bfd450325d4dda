package access

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	kascrypto "github.com/opentdf/kas/internal/crypto"
	"github.com/opentdf/kas/pkg/nano"
	"github.com/opentdf/kas/pkg/tdf3"
)

// rewrapNano serves the NanoTDF variant: the DEK is recovered by ECDH
// against the header's ephemeral key, the binding lives in the header, and
// the response key is wrapped under a fresh session ECDH secret instead of
// RSA.
func (p *Provider) rewrapNano(ctx context.Context, logger *zap.SugaredLogger, claims *Claims, requestBody *RequestBody, legacyIV bool) (*RewrapResponse, error) {
	header, _, err := nano.Parse(requestBody.KeyAccess.Header)
	if err != nil {
		return nil, errors.Join(ErrBadRequest, err)
	}
	if header.Mode.Curve != nano.CurveSecp256r1 {
		return nil, errors.Join(ErrBadRequest,
			fmt.Errorf("unsupported curve %d", header.Mode.Curve))
	}

	kid, err := p.Keys.DefaultKID("ec:secp256r1")
	if err != nil {
		return nil, err
	}
	kasPrivate, err := p.Keys.PrivateKey(kid)
	if err != nil {
		return nil, err
	}
	kasEC, ok := kasPrivate.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.Join(ErrCrypto, errors.New("configured EC key is not EC"))
	}

	ephemeral, err := decompressPoint(header.EphemeralKey)
	if err != nil {
		return nil, errors.Join(ErrBadRequest, err)
	}
	dek, err := deriveSharedKey(kasEC, ephemeral)
	if err != nil {
		return nil, errors.Join(ErrCrypto, err)
	}
	wrappedKey := NewWrappedKey(dek)
	defer wrappedKey.Destroy()

	if err := verifyNanoBinding(header, ephemeral, dek); err != nil {
		return nil, err
	}

	policy, err := nanoPolicy(header, wrappedKey)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		policies, err := p.Registry.GetAll(ctx, policy.Namespaces())
		if err != nil {
			return nil, err
		}
		decision := Adjudicate(policy, claims, policies)
		if !decision.Allow {
			logger.Infow("access denied",
				"subject", claims.Subject,
				"policy", policy.UUID,
				"reasons", decision.Reasons)
			return nil, errors.Join(ErrForbidden, errors.New("access denied"))
		}
	}

	pluginCtx := &PluginContext{Policy: policy, Claims: claims, KeyAccess: &requestBody.KeyAccess}
	if p.RewrapPlugins != nil {
		if pluginCtx, err = p.RewrapPlugins.Update(ctx, pluginCtx); err != nil {
			return nil, err
		}
	}
	if pluginCtx.ReplacementKey != "" {
		return &RewrapResponse{
			EntityWrappedKey: pluginCtx.ReplacementKey,
			SchemaVersion:    schemaVersion,
		}, nil
	}

	if requestBody.ClientPublicKey == "" {
		return nil, errors.Join(ErrBadRequest, errors.New("nano rewrap requires clientPublicKey"))
	}
	clientEC, err := kascrypto.ParseECPublicKey([]byte(requestBody.ClientPublicKey))
	if err != nil {
		return nil, errors.Join(ErrBadRequest, err)
	}

	sessionKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Join(ErrCrypto, err)
	}
	wrapKey, err := deriveSharedKey(sessionKey, clientEC)
	if err != nil {
		return nil, errors.Join(ErrCrypto, err)
	}
	ct, iv, err := encryptNanoKey(dek, wrapKey, legacyIV)
	if err != nil {
		return nil, errors.Join(ErrCrypto, err)
	}
	sessionPEM, err := kascrypto.ExportPublicKeyPEM(&sessionKey.PublicKey)
	if err != nil {
		return nil, errors.Join(ErrCrypto, err)
	}

	return &RewrapResponse{
		EntityWrappedKey: base64.StdEncoding.EncodeToString(append(iv, ct...)),
		SessionPublicKey: sessionPEM,
		SchemaVersion:    schemaVersion,
	}, nil
}

// encryptNanoKey wraps the DEK for the response. Legacy clients carry a
// 3-byte IV counter and expect the remaining nonce bytes to be zero.
func encryptNanoKey(dek, wrapKey []byte, legacyIV bool) (ct, iv []byte, err error) {
	if !legacyIV {
		return kascrypto.EncryptGCM(dek, wrapKey, nil)
	}
	tail, err := kascrypto.GenerateNonce(3)
	if err != nil {
		return nil, nil, err
	}
	iv = make([]byte, kascrypto.GCMNonceSize)
	copy(iv[kascrypto.GCMNonceSize-3:], tail)
	ct, err = kascrypto.EncryptGCMWithIV(dek, wrapKey, iv, nil)
	if err != nil {
		return nil, nil, err
	}
	return ct, iv, nil
}

// nanoPolicy extracts the adjudicable policy from the header. Remote
// policies resolve outside the request and carry no embedded body.
func nanoPolicy(header *nano.Header, wrappedKey *WrappedKey) (*tdf3.Policy, error) {
	switch header.Policy.Type {
	case nano.PolicyRemote:
		return nil, nil
	case nano.PolicyPlaintext:
		policy := &tdf3.Policy{
			RawCanonical: base64.StdEncoding.EncodeToString(header.Policy.Body),
		}
		if err := json.Unmarshal(header.Policy.Body, policy); err != nil {
			return nil, errors.Join(ErrBadRequest, err)
		}
		return policy, nil
	case nano.PolicyEncrypted, nano.PolicyEncryptedPKA:
		raw, err := wrappedKey.DecryptMetadata(
			base64.StdEncoding.EncodeToString(header.Policy.Body), "")
		if err != nil {
			return nil, err
		}
		policy := &tdf3.Policy{
			RawCanonical: base64.StdEncoding.EncodeToString(raw),
		}
		if err := json.Unmarshal(raw, policy); err != nil {
			return nil, errors.Join(ErrBadRequest, err)
		}
		return policy, nil
	}
	return nil, errors.Join(ErrBadRequest,
		fmt.Errorf("unknown policy type %d", header.Policy.Type))
}

// verifyNanoBinding checks the header's policy binding: an ECDSA signature
// by the ephemeral key, or a GMAC tag under the DEK.
func verifyNanoBinding(header *nano.Header, ephemeral *ecdsa.PublicKey, dek []byte) error {
	binding := header.Policy.Binding
	if header.Mode.ECDSABinding {
		sigLen := header.Mode.Curve.SignatureLength()
		if len(binding) != sigLen {
			return errors.Join(ErrPolicyBinding, errors.New("bad signature length"))
		}
		digest := sha256.Sum256(header.Policy.Body)
		half := sigLen / 2
		rInt := new(big.Int).SetBytes(binding[:half])
		sInt := new(big.Int).SetBytes(binding[half:])
		if !ecdsa.Verify(ephemeral, digest[:], rInt, sInt) {
			return errors.Join(ErrPolicyBinding, errors.New("ecdsa binding verification failed"))
		}
		return nil
	}
	tag, err := gmacTag(dek, header.Policy.Body)
	if err != nil {
		return errors.Join(ErrCrypto, err)
	}
	if !hmac.Equal(binding, tag[len(tag)-len(binding):]) {
		return errors.Join(ErrPolicyBinding, errors.New("gmac binding verification failed"))
	}
	return nil
}

// gmacTag computes the AES-GCM authentication tag over data as AAD with an
// all-zero nonce and empty plaintext.
func gmacTag(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	return gcm.Seal(nil, nonce, nil, data), nil
}

// decompressPoint expands a compressed P-256 point.
func decompressPoint(compressed []byte) (*ecdsa.PublicKey, error) {
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), compressed)
	if x == nil {
		return nil, errors.New("bad ephemeral key point")
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

// deriveSharedKey runs ECDH and hashes the shared secret down to a
// 32-byte symmetric key.
func deriveSharedKey(private *ecdsa.PrivateKey, public *ecdsa.PublicKey) ([]byte, error) {
	ecdhPriv, err := private.ECDH()
	if err != nil {
		return nil, err
	}
	ecdhPub, err := public.ECDH()
	if err != nil {
		return nil, err
	}
	shared, err := ecdhPriv.ECDH(ecdhPub)
	if err != nil {
		return nil, err
	}
	key := sha256.Sum256(shared)
	return key[:], nil
}
