package sign

import (
	"encoding/hex"

	"github.com/digitorus/pkcs7"
)

// signatureBaseLength covers CMS framing, signed attributes and OID
// overhead that does not scale with certificates or key size.
const signatureBaseLength = 512

// timestampTokenLength is a generous upper bound for RFC 3161 tokens.
// Authorities differ widely in response size, mostly through the
// certificates they include.
const timestampTokenLength = 9000

// estimateContentsLength returns the number of hex characters to
// reserve for the Contents placeholder. An explicit override wins,
// otherwise the reservation grows with everything that ends up inside
// the container: the signature value, digests, the certificate chain,
// embedded revocation material and an eventual timestamp token.
func estimateContentsLength(req *Request) (int, error) {
	if req.ReserveOverride > 0 {
		return int(req.ReserveOverride), nil
	}

	length := hex.EncodedLen(signatureBaseLength)

	if req.CertType != TimeStampSignature {
		sigSize, err := SignatureSize(req.Signer)
		if err != nil {
			sigSize = DefaultSignatureSize
		}
		length += hex.EncodedLen(sigSize)

		// Digest appears twice, once over the file and once inside
		// the signing certificate attribute.
		length += hex.EncodedLen(req.DigestAlgorithm.Size() * 2)

		certs := signerChain(req.Signer)
		all := make([][]byte, 0, len(certs)+1)
		all = append(all, req.Signer.Certificate().Raw)
		for _, cert := range certs {
			all = append(all, cert.Raw)
		}
		for _, raw := range all {
			degenerated, err := pkcs7.DegenerateCertificate(raw)
			if err != nil {
				return 0, &SignerError{Err: err}
			}
			length += hex.EncodedLen(len(degenerated))
		}
		length += hex.EncodedLen(len(req.Signer.Certificate().RawIssuer))

		for _, crl := range req.RevocationData.CRL {
			length += hex.EncodedLen(len(crl.FullBytes))
		}
		for _, ocsp := range req.RevocationData.OCSP {
			length += hex.EncodedLen(len(ocsp.FullBytes))
		}
	}

	if req.TSA.URL != "" || req.CertType == TimeStampSignature {
		length += hex.EncodedLen(timestampTokenLength)
	}

	return length, nil
}
