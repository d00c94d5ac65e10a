package verify

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/ocsp"
)

const defaultHTTPTimeout = 10 * time.Second

func (o *Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.HTTPTimeout
	if timeout == 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// performExternalOCSPCheck asks the OCSP responders advertised by the
// certificate for its status. The first parseable response wins.
func performExternalOCSPCheck(cert, issuer *x509.Certificate, opts *Options) (*ocsp.Response, error) {
	if len(cert.OCSPServer) == 0 {
		return nil, fmt.Errorf("certificate advertises no OCSP server")
	}

	req, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return nil, fmt.Errorf("create OCSP request: %v", err)
	}

	client := opts.httpClient()
	var lastErr error
	for _, serverURL := range cert.OCSPServer {
		body, err := postOCSPRequest(client, serverURL, req)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := ocsp.ParseResponseForCert(body, cert, issuer)
		if err != nil {
			lastErr = fmt.Errorf("parse OCSP response from %s: %v", serverURL, err)
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

func postOCSPRequest(client *http.Client, serverURL string, req []byte) ([]byte, error) {
	resp, err := client.Post(serverURL, "application/ocsp-request", bytes.NewReader(req))
	if err != nil {
		return nil, fmt.Errorf("contact OCSP server %s: %v", serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OCSP server %s returned status %d", serverURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read OCSP response from %s: %v", serverURL, err)
	}
	return body, nil
}

// performExternalCRLCheck downloads the certificate revocation lists
// advertised by the certificate and looks the serial number up.
func performExternalCRLCheck(cert *x509.Certificate, opts *Options) (*time.Time, bool, error) {
	if len(cert.CRLDistributionPoints) == 0 {
		return nil, false, fmt.Errorf("certificate advertises no CRL distribution point")
	}

	client := opts.httpClient()
	var lastErr error
	for _, crlURL := range cert.CRLDistributionPoints {
		body, err := fetchCRL(client, crlURL)
		if err != nil {
			lastErr = err
			continue
		}
		crl, err := x509.ParseRevocationList(body)
		if err != nil {
			lastErr = fmt.Errorf("parse CRL from %s: %v", crlURL, err)
			continue
		}
		for _, entry := range crl.RevokedCertificateEntries {
			if entry.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				at := entry.RevocationTime
				return &at, true, nil
			}
		}
		return nil, false, nil
	}
	return nil, false, lastErr
}

func fetchCRL(client *http.Client, crlURL string) ([]byte, error) {
	resp, err := client.Get(crlURL)
	if err != nil {
		return nil, fmt.Errorf("download CRL from %s: %v", crlURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CRL server %s returned status %d", crlURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read CRL from %s: %v", crlURL, err)
	}
	return body, nil
}
