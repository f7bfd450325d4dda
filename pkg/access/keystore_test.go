package access

import (
	"crypto/rsa"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kascrypto "github.com/opentdf/kas/internal/crypto"
)

func TestKeyStoreRSA(t *testing.T) {
	priv, _, err := kascrypto.GenerateRSAKeysPem(2048)
	require.NoError(t, err)

	ks := NewKeyStore()
	require.NoError(t, ks.AddPrivateKeyPEM("r1", priv))

	key, err := ks.PrivateKey("r1")
	require.NoError(t, err)
	_, ok := key.(*rsa.PrivateKey)
	assert.True(t, ok)

	// Empty kid falls back to the default RSA key.
	key, err = ks.PrivateKey("")
	require.NoError(t, err)
	assert.NotNil(t, key)

	pemStr, err := ks.PublicKeyPEM("r1")
	require.NoError(t, err)
	assert.Contains(t, pemStr, "BEGIN PUBLIC KEY")
}

func TestKeyStoreDefaults(t *testing.T) {
	rsaPriv, _, err := kascrypto.GenerateRSAKeysPem(2048)
	require.NoError(t, err)
	ecPriv, _, err := kascrypto.GenerateECKeysPem()
	require.NoError(t, err)

	ks := NewKeyStore()
	require.NoError(t, ks.AddPrivateKeyPEM("r1", rsaPriv))
	require.NoError(t, ks.AddPrivateKeyPEM("e1", ecPriv))

	kid, err := ks.DefaultKID("rsa:2048")
	require.NoError(t, err)
	assert.Equal(t, "r1", kid)

	kid, err = ks.DefaultKID("ec:secp256r1")
	require.NoError(t, err)
	assert.Equal(t, "e1", kid)

	_, err = ks.DefaultKID("dsa:1024")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestKeyStoreMissing(t *testing.T) {
	ks := NewKeyStore()

	_, err := ks.PrivateKey("nope")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = ks.PublicKeyPEM("nope")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = ks.DefaultKID("")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	err = ks.AddPrivateKeyFile("f1", filepath.Join(t.TempDir(), "absent.pem"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
	err = ks.AddPrivateKeyPEM("bad", []byte("not pem at all"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestKeyStoreFromFile(t *testing.T) {
	priv, pub, err := kascrypto.GenerateRSAKeysPem(2048)
	require.NoError(t, err)
	dir := t.TempDir()
	privPath := filepath.Join(dir, "kas.pem")
	pubPath := filepath.Join(dir, "kas-pub.pem")
	require.NoError(t, os.WriteFile(privPath, priv, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0o644))

	ks := NewKeyStore()
	require.NoError(t, ks.AddPrivateKeyFile("k", privPath))
	require.NoError(t, ks.AddCertificateFile("k", pubPath))

	pemStr, err := ks.PublicKeyPEM("k")
	require.NoError(t, err)
	assert.Equal(t, string(pub), pemStr)
}
