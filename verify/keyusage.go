package verify

import (
	"crypto/x509"
	"encoding/asn1"
)

// id-kp-documentSigning per RFC 9336. The standard library has no
// enum value for it, so it surfaces in UnknownExtKeyUsage.
var oidDocumentSigning = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 36}

// validateKeyUsage checks the key usage bits of the signing
// certificate against the options.
func validateKeyUsage(cert *x509.Certificate, opts *Options) (bool, string) {
	valid := true
	msg := ""

	if opts.RequireDigitalSignatureKU && cert.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		valid = false
		msg = "certificate does not assert the digital signature key usage"
	}
	if opts.RequireNonRepudiation && cert.KeyUsage&x509.KeyUsageContentCommitment == 0 {
		valid = false
		if msg != "" {
			msg += "; certificate does not assert the non-repudiation key usage"
		} else {
			msg = "certificate does not assert the non-repudiation key usage"
		}
	}
	return valid, msg
}

// validateExtKeyUsage checks the extended key usage of the signing
// certificate. Without explicit requirements the document signing
// usage of RFC 9336 is expected; AllowedEKUs widen the policy with
// acceptable alternatives such as email protection.
func validateExtKeyUsage(cert *x509.Certificate, opts *Options) (bool, string) {
	if len(cert.ExtKeyUsage) == 0 && len(cert.UnknownExtKeyUsage) == 0 {
		return false, "certificate has no extended key usage extension"
	}
	if hasEKU(cert, x509.ExtKeyUsageAny) {
		return true, ""
	}

	if len(opts.RequiredEKUs) == 0 {
		if hasDocumentSigningEKU(cert) || anyEKU(cert, opts.AllowedEKUs) {
			return true, ""
		}
		return false, "certificate does not assert the document signing extended key usage"
	}
	if anyEKU(cert, opts.RequiredEKUs) || anyEKU(cert, opts.AllowedEKUs) {
		return true, ""
	}
	return false, "certificate does not assert an accepted extended key usage"
}

func hasEKU(cert *x509.Certificate, eku x509.ExtKeyUsage) bool {
	for _, u := range cert.ExtKeyUsage {
		if u == eku {
			return true
		}
	}
	return false
}

func anyEKU(cert *x509.Certificate, ekus []x509.ExtKeyUsage) bool {
	for _, eku := range ekus {
		if hasEKU(cert, eku) {
			return true
		}
	}
	return false
}

func hasDocumentSigningEKU(cert *x509.Certificate) bool {
	for _, oid := range cert.UnknownExtKeyUsage {
		if oid.Equal(oidDocumentSigning) {
			return true
		}
	}
	return false
}
