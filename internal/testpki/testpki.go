// Package testpki builds throwaway certificate hierarchies for tests:
// a root CA, an optional intermediate chain, leaf certificates with
// revocation pointers, and an httptest responder that serves CRL,
// OCSP and RFC3161 timestamp requests for them.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/digitorus/timestamp"
	"golang.org/x/crypto/ocsp"
)

// KeyProfile selects the key algorithm for every certificate in the
// hierarchy.
type KeyProfile string

const (
	RSA2048   KeyProfile = "rsa-2048"
	RSA3072   KeyProfile = "rsa-3072"
	ECDSAP256 KeyProfile = "ecdsa-p256"
	ECDSAP384 KeyProfile = "ecdsa-p384"
	ECDSAP521 KeyProfile = "ecdsa-p521"
	Ed25519   KeyProfile = "ed25519"
)

// Profiles lists every supported key profile, for table driven tests.
var Profiles = []KeyProfile{RSA2048, RSA3072, ECDSAP256, ECDSAP384, ECDSAP521, Ed25519}

// Config controls hierarchy generation.
type Config struct {
	Profile       KeyProfile
	Intermediates int
}

// PKI is a complete in-memory certificate authority hierarchy.
type PKI struct {
	TB                testing.TB
	Profile           KeyProfile
	RootKey           crypto.Signer
	RootCert          *x509.Certificate
	IntermediateKeys  []crypto.Signer
	IntermediateCerts []*x509.Certificate
	Server            *httptest.Server

	// FailOCSP makes the OCSP endpoint answer with a server error,
	// set it before triggering requests.
	FailOCSP bool

	tsaKey  crypto.Signer
	tsaCert *x509.Certificate

	mu           sync.Mutex
	crl          []byte
	revoked      []pkix.RevokedCertificate
	crlRequests  int
	ocspRequests int
	tsaRequests  int
	serial       int64
}

// New builds a hierarchy with one intermediate on P-256 keys, the
// fastest profile to generate.
func New(tb testing.TB) *PKI {
	return NewWithConfig(tb, Config{Profile: ECDSAP256, Intermediates: 1})
}

// NewWithConfig builds a hierarchy to order. A nil tb switches failure
// reporting to log.Fatalf so the helpers work from Example functions.
func NewWithConfig(tb testing.TB, cfg Config) *PKI {
	if cfg.Profile == "" {
		cfg.Profile = ECDSAP256
	}

	p := &PKI{TB: tb, Profile: cfg.Profile, serial: 1}

	p.RootKey = GenerateKey(tb, cfg.Profile)
	p.RootCert = p.createCertificate(&x509.Certificate{
		SerialNumber:          p.nextSerial(),
		Subject:               pkix.Name{CommonName: "Seal Test Root CA", Organization: []string{"Seal Test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          []byte{1, 2, 3, 4},
	}, nil, nil, p.RootKey.Public())

	parentKey, parentCert := p.RootKey, p.RootCert
	for i := 0; i < cfg.Intermediates; i++ {
		key := GenerateKey(tb, cfg.Profile)
		cert := p.createCertificate(&x509.Certificate{
			SerialNumber:          p.nextSerial(),
			Subject:               pkix.Name{CommonName: fmt.Sprintf("Seal Test Issuing CA %d", i+1), Organization: []string{"Seal Test"}},
			NotBefore:             time.Now().Add(-time.Hour),
			NotAfter:              time.Now().Add(24 * time.Hour),
			KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
			BasicConstraintsValid: true,
			IsCA:                  true,
			MaxPathLen:            0,
			AuthorityKeyId:        parentCert.SubjectKeyId,
			SubjectKeyId:          []byte{5, 6, 7, byte(i)},
		}, parentCert, parentKey, key.Public())
		p.IntermediateKeys = append(p.IntermediateKeys, key)
		p.IntermediateCerts = append(p.IntermediateCerts, cert)
		parentKey, parentCert = key, cert
	}

	p.tsaKey = GenerateKey(tb, cfg.Profile)
	p.tsaCert = p.createCertificate(&x509.Certificate{
		SerialNumber: p.nextSerial(),
		Subject:      pkix.Name{CommonName: "Seal Test TSA", Organization: []string{"Seal Test"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageTimeStamping},
	}, p.RootCert, p.RootKey, p.tsaKey.Public())

	return p
}

func (p *PKI) createCertificate(template, parent *x509.Certificate, parentKey crypto.Signer, pub crypto.PublicKey) *x509.Certificate {
	if parent == nil {
		parent = template
		parentKey = p.RootKey
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, parentKey)
	if err != nil {
		Fail(p.TB, "create certificate %q: %v", template.Subject.CommonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		Fail(p.TB, "parse certificate %q: %v", template.Subject.CommonName, err)
	}
	return cert
}

func (p *PKI) nextSerial() *big.Int {
	s := p.serial
	p.serial++
	return big.NewInt(s)
}

// issuer returns the CA that signs leaf certificates and revocation
// data, the deepest intermediate or the root itself.
func (p *PKI) issuer() (crypto.Signer, *x509.Certificate) {
	if n := len(p.IntermediateCerts); n > 0 {
		return p.IntermediateKeys[n-1], p.IntermediateCerts[n-1]
	}
	return p.RootKey, p.RootCert
}

// IssueLeaf issues a signing certificate. When the responder is
// running the certificate carries CRL, OCSP and issuing-CA URLs
// pointing at it; without a server it has no revocation pointers.
func (p *PKI) IssueLeaf(commonName string) (crypto.Signer, *x509.Certificate) {
	key := GenerateKey(p.TB, p.Profile)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		Fail(p.TB, "generate serial: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName, Organization: []string{"Seal Test"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		// id-kp-documentSigning, not expressible as an x509.ExtKeyUsage value
		UnknownExtKeyUsage: []asn1.ObjectIdentifier{{1, 3, 6, 1, 5, 5, 7, 3, 36}},
	}
	if p.Server != nil {
		template.CRLDistributionPoints = []string{p.Server.URL + "/crl"}
		template.OCSPServer = []string{p.Server.URL + "/ocsp"}
		template.IssuingCertificateURL = []string{p.Server.URL + "/ca"}
	}

	issuerKey, issuerCert := p.issuer()
	cert := p.createCertificate(template, issuerCert, issuerKey, key.Public())
	return key, cert
}

// Chain returns the issuing chain for leaves, deepest intermediate
// first, root last.
func (p *PKI) Chain() []*x509.Certificate {
	var chain []*x509.Certificate
	for i := len(p.IntermediateCerts) - 1; i >= 0; i-- {
		chain = append(chain, p.IntermediateCerts[i])
	}
	return append(chain, p.RootCert)
}

// Anchors returns the trust anchor set for this hierarchy.
func (p *PKI) Anchors() []*x509.Certificate {
	return []*x509.Certificate{p.RootCert}
}

// StartResponder starts the HTTP endpoints and generates the initial
// empty CRL. Call before IssueLeaf when leaves should carry
// revocation pointers.
func (p *PKI) StartResponder() {
	p.rebuildCRL()

	p.Server = httptest.NewServer(http.HandlerFunc(p.route))
	if p.TB != nil {
		p.TB.Cleanup(p.Close)
	}
}

// route dispatches by hand. ServeMux would clean double slashes out of
// the path with a redirect, mangling OCSP GET requests whose base64
// payload contains them.
func (p *PKI) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/crl":
		p.handleCRL(w, r)
	case r.URL.Path == "/ocsp" || strings.HasPrefix(r.URL.Path, "/ocsp/"):
		p.handleOCSP(w, r)
	case r.URL.Path == "/tsa":
		p.handleTSA(w, r)
	case r.URL.Path == "/ca":
		p.handleCA(w, r)
	default:
		http.NotFound(w, r)
	}
}

// Close stops the responder. Safe to call twice.
func (p *PKI) Close() {
	if p.Server != nil {
		p.Server.Close()
		p.Server = nil
	}
}

// TSAURL returns the timestamp endpoint of the running responder.
func (p *PKI) TSAURL() string {
	if p.Server == nil {
		Fail(p.TB, "responder not running, call StartResponder first")
	}
	return p.Server.URL + "/tsa"
}

// Revoke marks a serial number revoked for both CRL and OCSP answers.
func (p *PKI) Revoke(serial *big.Int) {
	p.mu.Lock()
	p.revoked = append(p.revoked, pkix.RevokedCertificate{
		SerialNumber:   serial,
		RevocationTime: time.Now(),
	})
	p.mu.Unlock()
	p.rebuildCRL()
}

func (p *PKI) rebuildCRL() {
	issuerKey, issuerCert := p.issuer()

	p.mu.Lock()
	revoked := append([]pkix.RevokedCertificate(nil), p.revoked...)
	p.mu.Unlock()

	crl, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:              big.NewInt(time.Now().UnixNano()),
		ThisUpdate:          time.Now().Add(-time.Minute),
		NextUpdate:          time.Now().Add(24 * time.Hour),
		RevokedCertificates: revoked,
	}, issuerCert, issuerKey)
	if err != nil {
		Fail(p.TB, "create CRL: %v", err)
	}
	p.mu.Lock()
	p.crl = crl
	p.mu.Unlock()
}

func (p *PKI) handleCRL(w http.ResponseWriter, _ *http.Request) {
	p.mu.Lock()
	p.crlRequests++
	crl := p.crl
	p.mu.Unlock()
	w.Header().Set("Content-Type", "application/pkix-crl")
	_, _ = w.Write(crl)
}

func (p *PKI) handleOCSP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.ocspRequests++
	p.mu.Unlock()

	if p.FailOCSP {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	// RFC 6960 appendix A: GET requests carry the base64 encoded
	// request in the URL path, POST requests carry it in the body.
	var body []byte
	var err error
	if r.Method == http.MethodGet {
		body, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(r.URL.Path, "/ocsp/"))
	} else {
		body, err = io.ReadAll(r.Body)
	}
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	req, err := ocsp.ParseRequest(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	now := time.Now()
	template := ocsp.Response{
		Status:       ocsp.Good,
		SerialNumber: req.SerialNumber,
		ThisUpdate:   now.Add(-time.Hour),
		NextUpdate:   now.Add(24 * time.Hour),
	}
	p.mu.Lock()
	for _, rc := range p.revoked {
		if rc.SerialNumber.Cmp(req.SerialNumber) == 0 {
			template.Status = ocsp.Revoked
			template.RevokedAt = rc.RevocationTime
			template.RevocationReason = ocsp.KeyCompromise
		}
	}
	p.mu.Unlock()

	issuerKey, issuerCert := p.issuer()
	resp, err := ocsp.CreateResponse(issuerCert, issuerCert, template, issuerKey)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/ocsp-response")
	_, _ = w.Write(resp)
}

func (p *PKI) handleTSA(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.tsaRequests++
	serial := p.serial
	p.serial++
	p.mu.Unlock()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	req, err := timestamp.ParseRequest(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	token := timestamp.Timestamp{
		HashAlgorithm:     req.HashAlgorithm,
		HashedMessage:     req.HashedMessage,
		Time:              time.Now(),
		Policy:            asn1.ObjectIdentifier{1, 2, 3, 4, 1},
		SerialNumber:      big.NewInt(serial),
		Nonce:             req.Nonce,
		AddTSACertificate: req.Certificates,
	}
	resp, err := token.CreateResponse(p.tsaCert, p.tsaKey)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/timestamp-reply")
	_, _ = w.Write(resp)
}

func (p *PKI) handleCA(w http.ResponseWriter, _ *http.Request) {
	_, issuerCert := p.issuer()
	w.Header().Set("Content-Type", "application/pkix-cert")
	_, _ = w.Write(issuerCert.Raw)
}

// CRLRequests reports how many times the CRL endpoint was hit.
func (p *PKI) CRLRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.crlRequests
}

// OCSPRequests reports how many times the OCSP endpoint was hit.
func (p *PKI) OCSPRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ocspRequests
}

// TSARequests reports how many times the timestamp endpoint was hit.
func (p *PKI) TSARequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tsaRequests
}

// Fail aborts through tb when a test is attached, through log.Fatalf
// otherwise.
func Fail(tb testing.TB, format string, args ...interface{}) {
	if tb != nil {
		tb.Fatalf(format, args...)
	} else {
		log.Fatalf(format, args...)
	}
}

// GenerateKey generates a private key for the given profile.
func GenerateKey(tb testing.TB, profile KeyProfile) crypto.Signer {
	var (
		key crypto.Signer
		err error
	)
	switch profile {
	case RSA2048:
		key, err = rsa.GenerateKey(rand.Reader, 2048)
	case RSA3072:
		key, err = rsa.GenerateKey(rand.Reader, 3072)
	case ECDSAP256:
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case ECDSAP384:
		key, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case ECDSAP521:
		key, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case Ed25519:
		_, key, err = ed25519.GenerateKey(rand.Reader)
	default:
		Fail(tb, "unknown key profile %q", profile)
	}
	if err != nil {
		Fail(tb, "generate %s key: %v", profile, err)
	}
	return key
}

// KeyPEM returns the PKCS#8 PEM encoding of a private key.
func KeyPEM(tb testing.TB, key crypto.Signer) []byte {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		Fail(tb, "marshal private key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// CertPEM returns the PEM encoding of one or more certificates,
// concatenated in order.
func CertPEM(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, cert := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	}
	return out
}
