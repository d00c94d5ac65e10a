package sign

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
)

var (
	ErrNilSigner      = errors.New("signer cannot be nil")
	ErrNilPublicKey   = errors.New("public key cannot be nil")
	ErrNilCertificate = errors.New("certificate cannot be nil")
	ErrUnsupportedKey = errors.New("unsupported key type")
	ErrKeyMismatch    = errors.New("signer public key does not match certificate")
)

// Signer is the capability that produces signature values. It extends
// crypto.Signer with the certificate the value is attributed to, so a
// software key and a hardware token session are interchangeable.
type Signer interface {
	crypto.Signer

	// Certificate returns the end entity certificate of the signer.
	Certificate() *x509.Certificate
}

// ChainCarrier is implemented by signers that can supply intermediate
// certificates for embedding in the container, signer excluded.
type ChainCarrier interface {
	CertificateChain() []*x509.Certificate
}

// SizeHinter is implemented by signers that know the size of the
// signature values they produce. Used for placeholder reservation when
// the public key type alone is not conclusive.
type SizeHinter interface {
	SignatureSizeHint() int
}

// KeySigner is the software variant of the Signer capability: a
// private key held in memory together with its certificate and an
// optional intermediate chain.
type KeySigner struct {
	key   crypto.Signer
	cert  *x509.Certificate
	chain []*x509.Certificate
}

// NewKeySigner pairs a private key with its certificate. The chain, if
// given, holds the intermediates up to (and optionally including) the
// root, signer certificate excluded. The key and certificate must
// match.
func NewKeySigner(key crypto.Signer, cert *x509.Certificate, chain ...*x509.Certificate) (*KeySigner, error) {
	if err := validateKeyCertificateMatch(key, cert); err != nil {
		return nil, err
	}
	return &KeySigner{key: key, cert: cert, chain: chain}, nil
}

func (s *KeySigner) Public() crypto.PublicKey { return s.key.Public() }

func (s *KeySigner) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return s.key.Sign(rand, digest, opts)
}

func (s *KeySigner) Certificate() *x509.Certificate { return s.cert }

func (s *KeySigner) CertificateChain() []*x509.Certificate { return s.chain }

func validateKeyCertificateMatch(key crypto.Signer, cert *x509.Certificate) error {
	if key == nil {
		return ErrNilSigner
	}
	if cert == nil {
		return ErrNilCertificate
	}
	pub := key.Public()
	if pub == nil {
		return ErrNilPublicKey
	}

	keyBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("marshal signer public key: %w", err)
	}
	certBytes, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal certificate public key: %w", err)
	}
	if !bytes.Equal(keyBytes, certBytes) {
		return ErrKeyMismatch
	}
	return nil
}

// DefaultSignatureSize is the reservation fallback for signers whose
// signature value size cannot be derived from the public key.
const DefaultSignatureSize = 8192

// SignatureSize returns the maximum signature value size in bytes that
// the signer produces. The certificate's SignatureAlgorithm is
// deliberately not consulted: it describes how the CA signed the
// certificate, not what this key produces.
func SignatureSize(signer Signer) (int, error) {
	if signer == nil {
		return 0, ErrNilSigner
	}
	if h, ok := signer.(SizeHinter); ok {
		if n := h.SignatureSizeHint(); n > 0 {
			return n, nil
		}
	}
	return PublicKeySignatureSize(signer.Public())
}

// PublicKeySignatureSize returns the maximum signature value size for
// a public key.
func PublicKeySignatureSize(pub crypto.PublicKey) (int, error) {
	if pub == nil {
		return 0, ErrNilPublicKey
	}

	switch k := pub.(type) {
	case *rsa.PublicKey:
		if k.N == nil {
			return 0, fmt.Errorf("%w: RSA key has nil modulus", ErrUnsupportedKey)
		}
		return k.Size(), nil

	case *ecdsa.PublicKey:
		if k.Curve == nil {
			return 0, fmt.Errorf("%w: ECDSA key has nil curve", ErrUnsupportedKey)
		}
		// DER SEQUENCE { r INTEGER, s INTEGER } per RFC 3279: two
		// coordinates plus tag, length and padding overhead.
		coordSize := (k.Curve.Params().BitSize + 7) / 8
		return 2*coordSize + 9, nil

	case ed25519.PublicKey:
		return ed25519.SignatureSize, nil

	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

// signerChain returns the intermediate chain advertised by the signer,
// or nil when it carries none.
func signerChain(s Signer) []*x509.Certificate {
	if cc, ok := s.(ChainCarrier); ok {
		return cc.CertificateChain()
	}
	return nil
}
