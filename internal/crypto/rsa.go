package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
)

// Method selects the asymmetric wrap algorithm. The set is closed: methods
// are resolved at configuration time, never by string at call time.
type Method int

const (
	RSASHA1 Method = iota
	RSASHA256
)

var ErrUnknownMethod = errors.New("unknown wrap method")

// ParseMethod resolves the wire name of a wrap method. SHA-1 remains the
// default for compatibility with legacy TDF payloads.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "", "RSA_SHA1", "rsa:2048":
		return RSASHA1, nil
	case "RSA_SHA256":
		return RSASHA256, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
	}
}

func (m Method) hash() crypto.Hash {
	if m == RSASHA256 {
		return crypto.SHA256
	}
	return crypto.SHA1
}

func (m Method) String() string {
	if m == RSASHA256 {
		return "RSA_SHA256"
	}
	return "RSA_SHA1"
}

func EncryptOAEP(m Method, pub *rsa.PublicKey, msg []byte) ([]byte, error) {
	return rsa.EncryptOAEP(m.hash().New(), rand.Reader, pub, msg, nil)
}

func DecryptOAEP(m Method, priv *rsa.PrivateKey, ct []byte) ([]byte, error) {
	return rsa.DecryptOAEP(m.hash().New(), rand.Reader, priv, ct, nil)
}
