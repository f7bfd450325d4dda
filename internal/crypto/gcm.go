package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

const GCMNonceSize = 12

var ErrCiphertextTooShort = errors.New("ciphertext shorter than GCM nonce")

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptGCM seals msg and returns the ciphertext and the nonce separately.
// The clean form keeps the IV out of the ciphertext field.
func EncryptGCM(msg, key, aad []byte) (ct, iv []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	iv, err = GenerateNonce(aead.NonceSize())
	if err != nil {
		return nil, nil, err
	}
	return aead.Seal(nil, iv, msg, aad), iv, nil
}

// EncryptGCMWithIV seals msg under a caller-chosen nonce. Callers own
// nonce uniqueness; this exists for wire formats that constrain the IV.
func EncryptGCMWithIV(msg, key, iv, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() {
		return nil, errors.New("bad GCM nonce length")
	}
	return aead.Seal(nil, iv, msg, aad), nil
}

// DecryptGCM opens ct with the given iv. When iv is empty the ciphertext is
// taken to be the legacy composite form with the 12-byte IV prepended, and
// the leading bytes are stripped. An explicit iv is always authoritative.
func DecryptGCM(ct, key, iv, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) == 0 {
		if len(ct) < aead.NonceSize() {
			return nil, ErrCiphertextTooShort
		}
		iv, ct = ct[:aead.NonceSize()], ct[aead.NonceSize():]
	}
	return aead.Open(nil, iv, ct, aad)
}
