package access

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	kascrypto "github.com/opentdf/kas/internal/crypto"
)

// KeyStore holds the KAS asymmetric key material, keyed by key id. It is
// populated at startup and read-only afterwards, so it is safe to share
// across requests without locking.
type KeyStore struct {
	private map[string]crypto.PrivateKey
	public  map[string]crypto.PublicKey
	pem     map[string]string

	defaultRSA string
	defaultEC  string
}

func NewKeyStore() *KeyStore {
	return &KeyStore{
		private: make(map[string]crypto.PrivateKey),
		public:  make(map[string]crypto.PublicKey),
		pem:     make(map[string]string),
	}
}

// AddPrivateKeyPEM registers a private key under kid. The first RSA and the
// first EC key registered become the defaults for their algorithm.
func (ks *KeyStore) AddPrivateKeyPEM(kid string, pemBytes []byte) error {
	priv, err := kascrypto.ParsePrivateKey(pemBytes)
	if err != nil {
		return errors.Join(ErrKeyNotFound, err)
	}
	var pub crypto.PublicKey
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		pub = &k.PublicKey
		if ks.defaultRSA == "" {
			ks.defaultRSA = kid
		}
	case *ecdsa.PrivateKey:
		pub = &k.PublicKey
		if ks.defaultEC == "" {
			ks.defaultEC = kid
		}
	default:
		return errors.Join(ErrKeyNotFound, fmt.Errorf("unsupported key type for kid %q", kid))
	}
	ks.private[kid] = priv
	ks.public[kid] = pub
	pubPEM, err := kascrypto.ExportPublicKeyPEM(pub)
	if err != nil {
		return errors.Join(ErrCrypto, err)
	}
	ks.pem[kid] = pubPEM
	return nil
}

// AddPrivateKeyFile loads a PEM private key from disk and registers it.
func (ks *KeyStore) AddPrivateKeyFile(kid, path string) error {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return errors.Join(ErrKeyNotFound, err)
	}
	return ks.AddPrivateKeyPEM(kid, pemBytes)
}

// AddCertificatePEM registers the public-key PEM served by /kas_public_key
// for kid. Accepts SubjectPublicKeyInfo or certificate PEM.
func (ks *KeyStore) AddCertificatePEM(kid string, pemBytes []byte) error {
	pub, err := kascrypto.ParsePublicKey(pemBytes)
	if err != nil {
		return errors.Join(ErrKeyNotFound, err)
	}
	ks.public[kid] = pub
	ks.pem[kid] = string(pemBytes)
	return nil
}

// AddCertificateFile loads a certificate or public-key PEM from disk.
func (ks *KeyStore) AddCertificateFile(kid, path string) error {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return errors.Join(ErrKeyNotFound, err)
	}
	return ks.AddCertificatePEM(kid, pemBytes)
}

// PrivateKey resolves kid to a private key. An empty kid selects the
// default RSA key.
func (ks *KeyStore) PrivateKey(kid string) (crypto.PrivateKey, error) {
	if kid == "" {
		kid = ks.defaultRSA
	}
	priv, ok := ks.private[kid]
	if !ok {
		return nil, errors.Join(ErrKeyNotFound, fmt.Errorf("no private key for kid %q", kid))
	}
	return priv, nil
}

// PublicKeyPEM returns the PEM form of the public key for kid, defaulting
// by algorithm family when kid is empty.
func (ks *KeyStore) PublicKeyPEM(kid string) (string, error) {
	if kid == "" {
		kid = ks.defaultRSA
	}
	pemStr, ok := ks.pem[kid]
	if !ok {
		return "", errors.Join(ErrKeyNotFound, fmt.Errorf("no public key for kid %q", kid))
	}
	return pemStr, nil
}

// DefaultKID returns the default key id for an algorithm selector such as
// "rsa:2048" or "ec:secp256r1".
func (ks *KeyStore) DefaultKID(algorithm string) (string, error) {
	switch algorithm {
	case "", "rsa:2048", "RSA_SHA1", "RSA_SHA256":
		if ks.defaultRSA == "" {
			return "", errors.Join(ErrKeyNotFound, errors.New("no RSA key configured"))
		}
		return ks.defaultRSA, nil
	case "ec:secp256r1", "EC_SECP256R1":
		if ks.defaultEC == "" {
			return "", errors.Join(ErrKeyNotFound, errors.New("no EC key configured"))
		}
		return ks.defaultEC, nil
	}
	return "", errors.Join(ErrBadRequest, fmt.Errorf("unknown algorithm %q", algorithm))
}
