package sshkey

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// UnsupportedKeyTypeError is returned when key material does not parse as
// any supported algorithm.
type UnsupportedKeyTypeError struct{}

func (e *UnsupportedKeyTypeError) Error() string {
	return "key is not a valid RSA or DSA private key"
}

// PasswordRequiredError is returned when key material is encrypted and no
// passphrase was supplied.
type PasswordRequiredError struct{}

func (e *PasswordRequiredError) Error() string {
	return "private key is password-protected"
}

// keyParser attempts to parse raw key material as one algorithm.
type keyParser struct {
	algorithm Algorithm
	parse     func(raw []byte) (ssh.Signer, error)
}

// Parsers are tried in order; the first one that succeeds determines the
// imported key's algorithm.
var keyParsers = []keyParser{
	{AlgorithmRSA, parseRSA},
	{AlgorithmDSA, parseDSA},
}

// Parse parses PEM-encoded private key material, trying each supported
// algorithm in priority order. Encrypted material fails with
// *PasswordRequiredError; material no parser accepts fails with
// *UnsupportedKeyTypeError.
func Parse(raw []byte) (*KeyPair, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, &UnsupportedKeyTypeError{}
	}
	if encryptedPEM(block) {
		return nil, &PasswordRequiredError{}
	}

	for _, p := range keyParsers {
		signer, err := p.parse(raw)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				return nil, &PasswordRequiredError{}
			}
			continue
		}

		return &KeyPair{
			algorithm: p.algorithm,
			signer:    signer,
			pemBytes:  raw,
		}, nil
	}

	return nil, &UnsupportedKeyTypeError{}
}

// encryptedPEM reports whether a legacy PEM block is passphrase-protected.
func encryptedPEM(block *pem.Block) bool {
	_, ok := block.Headers["DEK-Info"]
	return ok
}

func parseRSA(raw []byte) (ssh.Signer, error) {
	block, _ := pem.Decode(raw)

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#1 key: %w", err)
		}
		key = k
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PKCS#8 key: %w", err)
		}
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("PKCS#8 key is %T, not RSA", k)
		}
		key = rsaKey
	case "OPENSSH PRIVATE KEY":
		k, err := ssh.ParseRawPrivateKey(raw)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("OpenSSH key is %T, not RSA", k)
		}
		key = rsaKey
	default:
		return nil, fmt.Errorf("unexpected PEM type %q", block.Type)
	}

	return ssh.NewSignerFromKey(key)
}

func parseDSA(raw []byte) (ssh.Signer, error) {
	block, _ := pem.Decode(raw)
	if block.Type != "DSA PRIVATE KEY" {
		return nil, fmt.Errorf("unexpected PEM type %q", block.Type)
	}

	key, err := ssh.ParseDSAPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse DSA key: %w", err)
	}

	return ssh.NewSignerFromKey(key)
}
