package sign

import (
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/ocsp"

	"github.com/pdfseal/pdfseal/revocation"
)

// RevocationCache stores fetched revocation responses so repeated
// signings do not hit the responder for every signature.
type RevocationCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte)
}

// MemoryCache is a thread safe in memory RevocationCache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string][]byte),
	}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.items[key]
	return data, ok
}

func (c *MemoryCache) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = data
}

func embedOCSPRevocationStatus(cert, issuer *x509.Certificate, i *revocation.InfoArchival, cache RevocationCache) error {
	req, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return err
	}

	ocspURL := fmt.Sprintf("%s/%s", strings.TrimRight(cert.OCSPServer[0], "/"),
		base64.StdEncoding.EncodeToString(req))

	if cache != nil {
		if data, ok := cache.Get(ocspURL); ok {
			return i.AddOCSP(data)
		}
	}

	resp, err := http.Get(ocspURL)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	ocspResp, err := ocsp.ParseResponseForCert(body, cert, issuer)
	if err != nil {
		return err
	}
	if ocspResp.Status != ocsp.Good {
		return fmt.Errorf("OCSP status is not good: %v", ocspResp.Status)
	}

	if cache != nil {
		cache.Put(ocspURL, body)
	}

	return i.AddOCSP(body)
}

func embedCRLRevocationStatus(cert, issuer *x509.Certificate, i *revocation.InfoArchival, cache RevocationCache) error {
	crlURL := cert.CRLDistributionPoints[0]
	if cache != nil {
		if data, ok := cache.Get(crlURL); ok {
			return i.AddCRL(data)
		}
	}

	resp, err := http.Get(crlURL)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	crl, err := x509.ParseRevocationList(body)
	if err != nil {
		return fmt.Errorf("parse CRL: %w", err)
	}

	// The issuer is unknown for the last chain certificate, the CRL
	// is then embedded without a signature check.
	if issuer != nil {
		if err := crl.CheckSignatureFrom(issuer); err != nil {
			return fmt.Errorf("CRL signature invalid: %w", err)
		}
	}

	for _, revoked := range crl.RevokedCertificateEntries {
		if revoked.SerialNumber.Cmp(cert.SerialNumber) == 0 {
			return fmt.Errorf("certificate %q is listed as revoked", cert.Subject.CommonName)
		}
	}

	if cache != nil {
		cache.Put(crlURL, body)
	}

	return i.AddCRL(body)
}

// RevocationOptions configures how revocation status is fetched and
// embedded.
type RevocationOptions struct {
	EmbedOCSP     bool
	EmbedCRL      bool
	PreferCRL     bool            // try CRL before OCSP
	StopOnSuccess bool            // stop after one status embedded
	Cache         RevocationCache // optional cache for fetched responses
}

// NewRevocationFunction builds a RevocationFunction from the options.
// Sources a certificate does not advertise are skipped silently, a
// source that was tried and failed only surfaces as error when
// nothing could be embedded.
func NewRevocationFunction(opts RevocationOptions) RevocationFunction {
	return func(cert, issuer *x509.Certificate, i *revocation.InfoArchival) error {
		tryOCSP := func() (bool, error) {
			if !opts.EmbedOCSP || issuer == nil || len(cert.OCSPServer) == 0 {
				return false, nil
			}
			if err := embedOCSPRevocationStatus(cert, issuer, i, opts.Cache); err != nil {
				return false, err
			}
			return true, nil
		}
		tryCRL := func() (bool, error) {
			if !opts.EmbedCRL || len(cert.CRLDistributionPoints) == 0 {
				return false, nil
			}
			if err := embedCRLRevocationStatus(cert, issuer, i, opts.Cache); err != nil {
				return false, err
			}
			return true, nil
		}

		first, second := tryOCSP, tryCRL
		if opts.PreferCRL {
			first, second = tryCRL, tryOCSP
		}

		firstOK, firstErr := first()
		if firstOK && opts.StopOnSuccess {
			return nil
		}

		secondOK, secondErr := second()
		if firstOK || secondOK {
			return nil
		}

		switch {
		case firstErr != nil && secondErr != nil:
			return fmt.Errorf("revocation embedding failed: %v, %v", firstErr, secondErr)
		case firstErr != nil:
			return firstErr
		case secondErr != nil:
			return secondErr
		}
		return nil
	}
}

// DefaultRevocationFunction embeds both OCSP and CRL status for every
// certificate that advertises the endpoints.
func DefaultRevocationFunction(cert, issuer *x509.Certificate, i *revocation.InfoArchival) error {
	return NewRevocationFunction(RevocationOptions{
		EmbedOCSP: true,
		EmbedCRL:  true,
	})(cert, issuer, i)
}
