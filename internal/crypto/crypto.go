package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

var (
	ErrPEMDecode     = errors.New("failed to parse PEM block containing the key")
	ErrHMACMismatch  = errors.New("hmac validation failed")
	ErrHMACMethod    = errors.New("unsupported hmac method")
	ErrWrongKeyClass = errors.New("key is not of the requested class")
)

func GenerateKey(length int) ([]byte, error) {
	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func GenerateNonce(length int) ([]byte, error) {
	nonce := make([]byte, length)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

// Sign computes the hex encoded HMAC-SHA256 of content under key. This is
// the policy binding primitive: binding = Sign(base64(canonicalPolicy), DEK).
func Sign(content, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(content)
	hexHash := make([]byte, hex.EncodedLen(mac.Size()))
	hex.Encode(hexHash, mac.Sum(nil))
	return hexHash
}

// ValidateHMAC recomputes the binding and compares in constant time. Only
// HS256 (alias H256) is implemented; any other method name is rejected.
func ValidateHMAC(message, key, binding []byte, method string) error {
	switch method {
	case "", "HS256", "H256":
	default:
		return fmt.Errorf("%w: %q", ErrHMACMethod, method)
	}
	if !hmac.Equal(Sign(message, key), binding) {
		return ErrHMACMismatch
	}
	return nil
}

// ParsePublicKey accepts a SubjectPublicKeyInfo PEM or an X.509 certificate
// PEM and returns the public key object carried inside.
func ParsePublicKey(pemBytes []byte) (any, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrPEMDecode
	}
	if block.Type == "CERTIFICATE" {
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		return cert.PublicKey, nil
	}
	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		return pub, nil
	}
	return x509.ParsePKCS1PublicKey(block.Bytes)
}

func ParseRSAPublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	pub, err := ParsePublicKey(pemBytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: want RSA public key, got %T", ErrWrongKeyClass, pub)
	}
	return rsaPub, nil
}

func ParseECPublicKey(pemBytes []byte) (*ecdsa.PublicKey, error) {
	pub, err := ParsePublicKey(pemBytes)
	if err != nil {
		return nil, err
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: want EC public key, got %T", ErrWrongKeyClass, pub)
	}
	return ecPub, nil
}

// ParsePrivateKey accepts PKCS#8, PKCS#1 and SEC1 private key PEMs.
func ParsePrivateKey(pemBytes []byte) (any, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrPEMDecode
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

func ParseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	key, err := ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: want RSA private key, got %T", ErrWrongKeyClass, key)
	}
	return rsaKey, nil
}

func ParseECPrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	key, err := ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: want EC private key, got %T", ErrWrongKeyClass, key)
	}
	return ecKey, nil
}

func ExportPublicKeyPEM(pub any) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func GenerateRSAKeysPem(length int) (private []byte, public []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, length)
	if err != nil {
		return nil, nil, err
	}
	privPkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	private = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privPkcs8})
	pubPkix, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return nil, nil, err
	}
	public = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubPkix})
	return private, public, nil
}

func GenerateECKeysPem() (private []byte, public []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	privPkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, err
	}
	private = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privPkcs8})
	pubPkix, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return nil, nil, err
	}
	public = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubPkix})
	return private, public, nil
}
