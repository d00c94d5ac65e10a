// Package revocation models the Adobe revocation-archival structure
// (adbe-revocationInfoArchival, OID 1.2.840.113583.1.1.8) that carries
// CRLs and OCSP responses inside a signature container.
package revocation

import (
	"crypto/x509"
	"encoding/asn1"
	"time"

	"golang.org/x/crypto/ocsp"
)

// InfoArchival is the archival container embedded as a signed attribute.
// The explicit context tags are fixed by the Adobe specification.
type InfoArchival struct {
	CRL   CRL   `asn1:"tag:0,optional,explicit"`
	OCSP  OCSP  `asn1:"tag:1,optional,explicit"`
	Other Other `asn1:"tag:2,optional,explicit"`
}

// CRL holds raw DER revocation lists, parseable with
// x509.ParseRevocationList.
type CRL []asn1.RawValue

// OCSP holds raw DER OCSP responses, parseable with
// x/crypto/ocsp.ParseResponse.
type OCSP []asn1.RawValue

// Other carries revocation information in a format identified by OID.
type Other struct {
	Type  asn1.ObjectIdentifier
	Value []byte
}

// AddCRL appends the raw bytes of a DER encoded CRL.
func (r *InfoArchival) AddCRL(b []byte) error {
	r.CRL = append(r.CRL, asn1.RawValue{FullBytes: b})
	return nil
}

// AddOCSP appends the raw bytes of a DER encoded OCSP response.
func (r *InfoArchival) AddOCSP(b []byte) error {
	r.OCSP = append(r.OCSP, asn1.RawValue{FullBytes: b})
	return nil
}

// IsEmpty reports whether no revocation information is embedded.
func (r *InfoArchival) IsEmpty() bool {
	return len(r.CRL) == 0 && len(r.OCSP) == 0 && len(r.Other.Value) == 0
}

// IsRevoked reports whether any embedded CRL or OCSP response marks the
// certificate as revoked. Blobs that fail to parse are skipped; absence
// of information is not treated as revocation.
func (r *InfoArchival) IsRevoked(c *x509.Certificate) bool {
	_, revoked := r.RevocationTime(c)
	return revoked
}

// RevocationTime returns the earliest revocation time recorded for the
// certificate in the embedded CRLs and OCSP responses. The second
// return value reports whether the certificate is revoked at all.
func (r *InfoArchival) RevocationTime(c *x509.Certificate) (time.Time, bool) {
	var at time.Time
	revoked := false

	record := func(t time.Time) {
		if !revoked || t.Before(at) {
			at = t
		}
		revoked = true
	}

	for _, raw := range r.CRL {
		crl, err := x509.ParseRevocationList(raw.FullBytes)
		if err != nil {
			continue
		}
		for _, entry := range crl.RevokedCertificateEntries {
			if entry.SerialNumber.Cmp(c.SerialNumber) == 0 {
				record(entry.RevocationTime)
			}
		}
	}

	for _, raw := range r.OCSP {
		resp, err := ocsp.ParseResponseForCert(raw.FullBytes, c, nil)
		if err != nil {
			continue
		}
		if resp.Status == ocsp.Revoked {
			record(resp.RevokedAt)
		}
	}

	return at, revoked
}
