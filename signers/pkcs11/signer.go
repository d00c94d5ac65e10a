package pkcs11

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"io"
	"math/big"

	p11 "github.com/miekg/pkcs11"
)

// Signer signs digests with a private key held on the token. The
// token never releases the key; each Sign call runs on the session
// the signer was created from.
type Signer struct {
	session *Session
	key     p11.ObjectHandle
	cert    *x509.Certificate
}

// Public returns the public key of the paired certificate.
func (s *Signer) Public() crypto.PublicKey {
	return s.cert.PublicKey
}

// Certificate returns the signing certificate stored on the token.
func (s *Signer) Certificate() *x509.Certificate {
	return s.cert
}

// SignatureSizeHint reports the maximum signature length for the key,
// zero when the key type is unknown.
func (s *Signer) SignatureSizeHint() int {
	switch pub := s.cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return pub.Size()
	case *ecdsa.PublicKey:
		// two scalars plus DER framing
		return 2*((pub.Curve.Params().BitSize+7)/8) + 9
	}
	return 0
}

// Sign signs digest on the token. The rand parameter is ignored, the
// token uses its own entropy source.
func (s *Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	switch s.cert.PublicKey.(type) {
	case *rsa.PublicKey:
		// CKM_RSA_PKCS applies the PKCS#1 v1.5 padding but not the
		// DigestInfo wrapping, that part is on the caller.
		prefix, ok := digestInfoPrefix[opts.HashFunc()]
		if !ok {
			return nil, fmt.Errorf("pkcs11: unsupported hash %v", opts.HashFunc())
		}
		data := make([]byte, 0, len(prefix)+len(digest))
		data = append(data, prefix...)
		data = append(data, digest...)
		sig, err := s.session.sign(p11.CKM_RSA_PKCS, s.key, data)
		if err != nil {
			return nil, fmt.Errorf("pkcs11: sign: %w", err)
		}
		return sig, nil
	case *ecdsa.PublicKey:
		raw, err := s.session.sign(p11.CKM_ECDSA, s.key, digest)
		if err != nil {
			return nil, fmt.Errorf("pkcs11: sign: %w", err)
		}
		return ecdsaRawToDER(raw)
	default:
		return nil, fmt.Errorf("pkcs11: unsupported key type %T", s.cert.PublicKey)
	}
}

// digestInfoPrefix maps a hash function to the DER encoded DigestInfo
// header that precedes its digest in an RSA PKCS#1 v1.5 signature.
var digestInfoPrefix = map[crypto.Hash][]byte{
	crypto.SHA1: {
		0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02,
		0x1a, 0x05, 0x00, 0x04, 0x14,
	},
	crypto.SHA256: {
		0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
		0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20,
	},
	crypto.SHA384: {
		0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
		0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30,
	},
	crypto.SHA512: {
		0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
		0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40,
	},
}

type ecdsaSignature struct {
	R, S *big.Int
}

// ecdsaRawToDER converts the token's fixed width r||s output to the
// ASN.1 sequence the rest of the world expects.
func ecdsaRawToDER(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, fmt.Errorf("pkcs11: malformed ECDSA signature of %d bytes", len(raw))
	}
	half := len(raw) / 2
	return asn1.Marshal(ecdsaSignature{
		R: new(big.Int).SetBytes(raw[:half]),
		S: new(big.Int).SetBytes(raw[half:]),
	})
}
