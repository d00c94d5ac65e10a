package verify

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/digitorus/pkcs7"
	"golang.org/x/crypto/ocsp"

	"github.com/pdfseal/pdfseal/revocation"
)

// evaluateTrust builds the certification path for the signer
// certificate and evaluates key usage policy and revocation status.
// The outcome is recorded on res: TrustTrusted only when the chain
// verifies, the policy passes and no chain certificate is revoked.
func evaluateTrust(res *Result, p7 *pkcs7.PKCS7, opts *Options) {
	res.Trust = TrustUntrusted

	leaf := leafCertificate(p7)
	if leaf == nil {
		res.fail(&TrustError{Reason: "container carries no signer certificate"})
		return
	}

	roots, err := trustRoots(opts)
	if err != nil {
		res.fail(&TrustError{Reason: fmt.Sprintf("system trust store unavailable: %v", err)})
		return
	}

	intermediates := x509.NewCertPool()
	for _, cert := range p7.Certificates {
		if !cert.Equal(leaf) {
			intermediates.AddCert(cert)
		}
	}
	for _, cert := range opts.Intermediates {
		intermediates.AddCert(cert)
	}

	// Chain building is constrained by anchors and time only; key
	// usage policy is evaluated separately so failures name the exact
	// policy that was violated.
	chains, chainErr := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   validationTime(res, opts),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})

	var path []*x509.Certificate
	if chainErr == nil && len(chains) > 0 {
		path = chains[0]
	} else {
		path = containerPath(leaf, p7)
	}

	var revInfo revocation.InfoArchival
	_ = p7.UnmarshalSignedAttribute(oidRevocationInfoArchival, &revInfo)

	revoked := false
	for i, cert := range path {
		c := summarizeCertificate(cert)
		if i == 0 {
			c.KeyUsageValid, c.KeyUsageError = validateKeyUsage(cert, opts)
			c.ExtKeyUsageValid, c.ExtKeyUsageError = validateExtKeyUsage(cert, opts)
			if chainErr != nil {
				c.VerifyError = chainErr.Error()
			}
		} else {
			// Usage policy constrains the signing certificate only.
			c.KeyUsageValid = true
			c.ExtKeyUsageValid = true
		}

		var issuer *x509.Certificate
		if i+1 < len(path) {
			issuer = path[i+1]
		}
		checkRevocation(&c, cert, issuer, &revInfo, opts)
		if c.OCSPRevoked || c.CRLRevoked {
			revoked = true
		}
		res.Certificates = append(res.Certificates, c)
	}

	leafDetail := &res.Certificates[0]
	switch {
	case chainErr != nil:
		res.fail(&TrustError{Reason: fmt.Sprintf("certificate chain: %v", chainErr)})
	case !leafDetail.KeyUsageValid:
		res.fail(&TrustError{Reason: leafDetail.KeyUsageError})
	case !leafDetail.ExtKeyUsageValid:
		res.fail(&TrustError{Reason: leafDetail.ExtKeyUsageError})
	case revoked:
		res.fail(&TrustError{Reason: "a certificate in the chain is revoked"})
	default:
		res.Trust = TrustTrusted
	}
}

// validationTime selects the point in time certificates are validated
// at: the timestamp token time when present, the claimed signing time
// when the caller opted into trusting it, otherwise now.
func validationTime(res *Result, opts *Options) time.Time {
	if ts := res.Info.TimeStamp; ts != nil && !ts.Time.IsZero() {
		return ts.Time
	}
	if opts.TrustSignatureTime && res.Info.SignatureTime != nil {
		return *res.Info.SignatureTime
	}
	return opts.clock().Now()
}

func trustRoots(opts *Options) (*x509.CertPool, error) {
	if opts.TrustReplace {
		pool := x509.NewCertPool()
		for _, cert := range opts.TrustAnchors {
			pool.AddCert(cert)
		}
		return pool, nil
	}
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, err
	}
	for _, cert := range opts.TrustAnchors {
		pool.AddCert(cert)
	}
	return pool, nil
}

// leafCertificate locates the signer certificate by the issuer and
// serial number named in the signer info, falling back to the first
// certificate of the container.
func leafCertificate(p7 *pkcs7.PKCS7) *x509.Certificate {
	if len(p7.Signers) > 0 {
		si := p7.Signers[0]
		for _, cert := range p7.Certificates {
			if cert.SerialNumber.Cmp(si.IssuerAndSerialNumber.SerialNumber) == 0 &&
				bytes.Equal(cert.RawIssuer, si.IssuerAndSerialNumber.IssuerName.FullBytes) {
				return cert
			}
		}
	}
	if len(p7.Certificates) > 0 {
		return p7.Certificates[0]
	}
	return nil
}

// containerPath is the reporting order used when no verified chain is
// available: the leaf first, then the remaining container certificates.
func containerPath(leaf *x509.Certificate, p7 *pkcs7.PKCS7) []*x509.Certificate {
	path := []*x509.Certificate{leaf}
	for _, cert := range p7.Certificates {
		if !cert.Equal(leaf) {
			path = append(path, cert)
		}
	}
	return path
}

func summarizeCertificate(cert *x509.Certificate) Certificate {
	return Certificate{
		Certificate:  cert,
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		SerialNumber: cert.SerialNumber.String(),
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
	}
}

// checkRevocation evaluates the revocation status of one chain
// certificate: embedded OCSP responses and CRLs first, external
// endpoints when enabled and nothing was embedded, a warning when no
// information is available at all.
func checkRevocation(c *Certificate, cert, issuer *x509.Certificate, revInfo *revocation.InfoArchival, opts *Options) {
	for _, raw := range revInfo.OCSP {
		resp, err := ocsp.ParseResponseForCert(raw.FullBytes, cert, nil)
		if err != nil {
			continue
		}
		c.OCSPEmbedded = true
		if issuer != nil {
			if warn := checkResponderSignature(resp, issuer); warn != "" {
				c.RevocationWarning = warn
			}
		}
		if resp.Status == ocsp.Revoked {
			c.OCSPRevoked = true
			at := resp.RevokedAt
			c.RevocationTime = &at
		}
		break
	}

	for _, raw := range revInfo.CRL {
		crl, err := x509.ParseRevocationList(raw.FullBytes)
		if err != nil {
			continue
		}
		// A list issued by someone else says nothing about this
		// certificate.
		if !bytes.Equal(crl.RawIssuer, cert.RawIssuer) {
			continue
		}
		c.CRLEmbedded = true
		for _, entry := range crl.RevokedCertificateEntries {
			if entry.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				c.CRLRevoked = true
				at := entry.RevocationTime
				c.RevocationTime = &at
			}
		}
		break
	}

	if opts.ExternalRevocationCheck {
		if !c.OCSPEmbedded && issuer != nil && len(cert.OCSPServer) > 0 {
			if resp, err := performExternalOCSPCheck(cert, issuer, opts); err == nil {
				c.OCSPExternal = true
				if resp.Status == ocsp.Revoked {
					c.OCSPRevoked = true
					at := resp.RevokedAt
					c.RevocationTime = &at
				}
			} else if c.RevocationWarning == "" {
				c.RevocationWarning = fmt.Sprintf("external OCSP check failed: %v", err)
			}
		}
		if !c.CRLEmbedded && len(cert.CRLDistributionPoints) > 0 {
			if at, isRevoked, err := performExternalCRLCheck(cert, opts); err == nil {
				c.CRLExternal = true
				if isRevoked {
					c.CRLRevoked = true
					c.RevocationTime = at
				}
			} else if c.RevocationWarning == "" {
				c.RevocationWarning = fmt.Sprintf("external CRL check failed: %v", err)
			}
		}
	}

	if !c.OCSPEmbedded && !c.CRLEmbedded && !c.OCSPExternal && !c.CRLExternal && c.RevocationWarning == "" {
		if len(cert.OCSPServer) > 0 || len(cert.CRLDistributionPoints) > 0 {
			c.RevocationWarning = "no embedded revocation status; certificate advertises distribution points"
		} else {
			c.RevocationWarning = "no revocation status available for this certificate"
		}
	}
}

// checkResponderSignature verifies that the OCSP response was signed
// by the certificate issuer or by a responder certificate the issuer
// delegated to.
func checkResponderSignature(resp *ocsp.Response, issuer *x509.Certificate) string {
	if resp.Certificate != nil {
		if err := resp.Certificate.CheckSignatureFrom(issuer); err != nil {
			return fmt.Sprintf("OCSP responder certificate not issued by certificate issuer: %v", err)
		}
		return ""
	}
	if err := resp.CheckSignatureFrom(issuer); err != nil {
		return fmt.Sprintf("OCSP response not signed by certificate issuer: %v", err)
	}
	return ""
}
