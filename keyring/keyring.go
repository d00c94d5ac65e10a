// Package keyring loads signing credentials from disk and turns them
// into sign.Signer capabilities: PEM or DER encoded key and
// certificate files, and PKCS#12 keystores.
package keyring

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/pdfseal/pdfseal/sign"
)

var (
	ErrNoCertificate  = errors.New("no certificate found")
	ErrNoPrivateKey   = errors.New("no private key found")
	ErrUnknownKeyType = errors.New("unknown private key type")
)

// SignerFromFiles reads a private key and a certificate file, both PEM
// or DER encoded, and pairs them into a software signer. A certificate
// file holding a full chain contributes the extra certificates as the
// intermediate chain. passphrase decrypts legacy encrypted PEM keys
// and may be nil.
func SignerFromFiles(keyPath, certPath string, passphrase []byte) (*sign.KeySigner, error) {
	key, err := LoadPrivateKey(keyPath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", keyPath, err)
	}
	certs, err := LoadCertificates(certPath)
	if err != nil {
		return nil, fmt.Errorf("load certificate %s: %w", certPath, err)
	}
	return sign.NewKeySigner(key, certs[0], certs[1:]...)
}

// SignerFromPKCS12 reads a PKCS#12 keystore and pairs its key with the
// contained certificate; CA certificates in the keystore become the
// intermediate chain.
func SignerFromPKCS12(path, passphrase string) (*sign.KeySigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore %s: %w", path, err)
	}
	key, cert, caCerts, err := pkcs12.DecodeChain(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decode keystore %s: %w", path, err)
	}
	signerKey, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownKeyType, key)
	}
	return sign.NewKeySigner(signerKey, cert, caCerts...)
}

// LoadCertificates reads every certificate from a PEM or DER encoded
// file. PEM input may hold multiple CERTIFICATE blocks, DER input a
// single certificate or a concatenated sequence.
func LoadCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCertificates(data)
}

// ParseCertificates reads every certificate from PEM or DER encoded
// data.
func ParseCertificates(data []byte) ([]*x509.Certificate, error) {
	if !isPEM(data) {
		certs, err := x509.ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("parse DER certificate: %w", err)
		}
		if len(certs) == 0 {
			return nil, ErrNoCertificate
		}
		return certs, nil
	}

	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, ErrNoCertificate
	}
	return certs, nil
}

// LoadPrivateKey reads a private key from a PEM or DER encoded file.
// Legacy encrypted PEM blocks are decrypted with passphrase.
func LoadPrivateKey(path string, passphrase []byte) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isPEM(data) {
		return parsePEMKey(data, passphrase)
	}
	return parseDERKey(data)
}

func parsePEMKey(data, passphrase []byte) (crypto.Signer, error) {
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, ErrNoPrivateKey
		}
		if block.Type == "CERTIFICATE" {
			continue
		}

		keyBytes := block.Bytes
		if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // legacy key files still use RFC 1423 encryption
			if len(passphrase) == 0 {
				return nil, errors.New("private key is encrypted and no passphrase was given")
			}
			var err error
			keyBytes, err = x509.DecryptPEMBlock(block, passphrase) //nolint:staticcheck
			if err != nil {
				return nil, fmt.Errorf("decrypt private key: %w", err)
			}
		}

		switch block.Type {
		case "RSA PRIVATE KEY":
			return x509.ParsePKCS1PrivateKey(keyBytes)
		case "EC PRIVATE KEY":
			return x509.ParseECPrivateKey(keyBytes)
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(keyBytes)
			if err != nil {
				return nil, fmt.Errorf("parse PKCS#8 private key: %w", err)
			}
			return toSigner(key)
		default:
			return nil, fmt.Errorf("%w: PEM block %q", ErrUnknownKeyType, block.Type)
		}
	}
}

func parseDERKey(data []byte) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(data); err == nil {
		return toSigner(key)
	}
	if key, err := x509.ParsePKCS1PrivateKey(data); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(data); err == nil {
		return key, nil
	}
	return nil, ErrNoPrivateKey
}

func toSigner(key any) (crypto.Signer, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	case ed25519.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKeyType, key)
	}
}

func isPEM(data []byte) bool {
	return len(data) > 10 && string(data[:5]) == "-----"
}
