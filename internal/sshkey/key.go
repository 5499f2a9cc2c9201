package sshkey

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Algorithm identifies the asymmetric key algorithm of a KeyPair.
type Algorithm string

const (
	AlgorithmRSA Algorithm = "rsa"
	AlgorithmDSA Algorithm = "dsa"
)

// DefaultBits is the RSA modulus size used when no explicit size is requested.
const DefaultBits = 2048

// KeyPair is a user's SSH identity: the parsed private key plus the PEM
// bytes that persist it. Imported keys keep their original material
// verbatim; generated keys are PKCS#1 encoded.
type KeyPair struct {
	algorithm Algorithm
	signer    ssh.Signer
	pemBytes  []byte
}

// Generate creates a new RSA key pair of the given modulus size.
// Sizes below 1024 bits are rejected.
func Generate(bits int) (*KeyPair, error) {
	if bits == 0 {
		bits = DefaultBits
	}
	if bits < 1024 {
		return nil, fmt.Errorf("refusing to generate %d-bit RSA key", bits)
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})

	return &KeyPair{
		algorithm: AlgorithmRSA,
		signer:    signer,
		pemBytes:  pemBytes,
	}, nil
}

// Algorithm returns the key's algorithm tag.
func (k *KeyPair) Algorithm() Algorithm {
	return k.algorithm
}

// Signer returns the ssh.Signer backing this key pair.
func (k *KeyPair) Signer() ssh.Signer {
	return k.signer
}

// PublicKey returns the public half of the key pair.
func (k *KeyPair) PublicKey() ssh.PublicKey {
	return k.signer.PublicKey()
}

// Base64 returns the base64-encoded public key blob, the token that
// appears second on an authorized_keys line.
func (k *KeyPair) Base64() string {
	return base64.StdEncoding.EncodeToString(k.PublicKey().Marshal())
}

// Fingerprint returns the MD5 digest of the wire-format public key as
// colon-separated lowercase hex octets, e.g. "ab:12:ef:...".
func (k *KeyPair) Fingerprint() string {
	return ssh.FingerprintLegacyMD5(k.PublicKey())
}

// PublicDisplay returns the base64 public key blob wrapped at 64 columns,
// one trailing newline per line, for display alongside the fingerprint.
func (k *KeyPair) PublicDisplay() string {
	blob := k.Base64()

	var b strings.Builder
	for i := 0; i < len(blob); i += 64 {
		end := i + 64
		if end > len(blob) {
			end = len(blob)
		}
		b.WriteString(blob[i:end])
		b.WriteByte('\n')
	}
	return b.String()
}

// MarshalPEM returns the PEM bytes that persist this key pair.
func (k *KeyPair) MarshalPEM() []byte {
	return k.pemBytes
}

// Equal reports whether two key pairs have the same public key.
func (k *KeyPair) Equal(other *KeyPair) bool {
	if other == nil {
		return false
	}
	return k.Base64() == other.Base64()
}
