package sshkey

import (
	"crypto/dsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func rsaPKCS1PEM(t *testing.T) []byte {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
}

func rsaPKCS8PEM(t *testing.T) []byte {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// dsaPEM builds an OpenSSL-format DSA private key PEM:
// SEQUENCE { version, p, q, g, y, x }.
func dsaPEM(t *testing.T) []byte {
	t.Helper()

	var params dsa.Parameters
	require.NoError(t, dsa.GenerateParameters(&params, rand.Reader, dsa.L1024N160))

	priv := &dsa.PrivateKey{PublicKey: dsa.PublicKey{Parameters: params}}
	require.NoError(t, dsa.GenerateKey(priv, rand.Reader))

	der, err := asn1.Marshal(struct {
		Version int
		P, Q, G *big.Int
		Y, X    *big.Int
	}{0, priv.P, priv.Q, priv.G, priv.Y, priv.X})
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "DSA PRIVATE KEY", Bytes: der})
}

func TestParse_RSAPKCS1(t *testing.T) {
	raw := rsaPKCS1PEM(t)

	key, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmRSA, key.Algorithm())
	assert.Equal(t, raw, key.MarshalPEM(), "imported material is kept verbatim")
}

func TestParse_RSAPKCS8(t *testing.T) {
	key, err := Parse(rsaPKCS8PEM(t))
	require.NoError(t, err)
	assert.Equal(t, AlgorithmRSA, key.Algorithm())
}

func TestParse_RSAOpenSSH(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	key, err := Parse(pem.EncodeToMemory(block))
	require.NoError(t, err)
	assert.Equal(t, AlgorithmRSA, key.Algorithm())
}

func TestParse_DSA(t *testing.T) {
	key, err := Parse(dsaPEM(t))
	require.NoError(t, err)
	assert.Equal(t, AlgorithmDSA, key.Algorithm())
	assert.Equal(t, "ssh-dss", key.PublicKey().Type())
}

func TestParse_Garbage(t *testing.T) {
	var unsupported *UnsupportedKeyTypeError

	_, err := Parse([]byte("not a key at all"))
	require.Error(t, err)
	assert.ErrorAs(t, err, &unsupported)
}

func TestParse_UnsupportedAlgorithm(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	var unsupported *UnsupportedKeyTypeError
	_, err = Parse(pem.EncodeToMemory(block))
	require.Error(t, err)
	assert.ErrorAs(t, err, &unsupported)
}

func TestParse_EncryptedPEM(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY",
		x509.MarshalPKCS1PrivateKey(priv), []byte("hunter2"), x509.PEMCipherAES128)
	require.NoError(t, err)

	var pwRequired *PasswordRequiredError
	_, err = Parse(pem.EncodeToMemory(block))
	require.Error(t, err)
	assert.ErrorAs(t, err, &pwRequired)
}

func TestParse_EncryptedOpenSSH(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte("hunter2"))
	require.NoError(t, err)

	var pwRequired *PasswordRequiredError
	_, err = Parse(pem.EncodeToMemory(block))
	require.Error(t, err)
	assert.ErrorAs(t, err, &pwRequired)
}
