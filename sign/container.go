package sign

import (
	"crypto"
	"encoding/asn1"
	"fmt"

	"github.com/digitorus/pkcs7"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidAdbeRevocationInfoArchival = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}
	oidSigningCertificate         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 12}
	oidSigningCertificateV2       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}
	oidTimeStampToken             = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
)

// signingCertificateAttribute builds the ESS signing certificate
// signed attribute binding the signer certificate to the signature.
// SHA-1 selects the v1 form, everything else the v2 form where the
// algorithm identifier is omitted for the SHA-256 default.
func signingCertificateAttribute(req *Request) (*pkcs7.Attribute, error) {
	hash := req.DigestAlgorithm.New()
	hash.Write(req.Signer.Certificate().Raw)

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SigningCertificate
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // []ESSCertID, []ESSCertIDv2
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // ESSCertID, ESSCertIDv2
				if req.DigestAlgorithm.HashFunc() != crypto.SHA1 &&
					req.DigestAlgorithm.HashFunc() != crypto.SHA256 {
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // AlgorithmIdentifier
						b.AddASN1ObjectIdentifier(getOIDFromHashAlgorithm(req.DigestAlgorithm))
					})
				}
				b.AddASN1OctetString(hash.Sum(nil)) // certHash
			})
		})
	})

	der, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	attribute := pkcs7.Attribute{
		Type:  oidSigningCertificateV2,
		Value: asn1.RawValue{FullBytes: der},
	}
	if req.DigestAlgorithm.HashFunc() == crypto.SHA1 {
		attribute.Type = oidSigningCertificate
	}
	return &attribute, nil
}

// buildContainer produces the detached CMS SignedData over content,
// carrying the certificate chain, embedded revocation material and,
// when a timestamp authority is configured, an RFC 3161 token as
// unauthenticated attribute.
func buildContainer(req *Request, content []byte) ([]byte, error) {
	signedData, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, &SignerError{Err: fmt.Errorf("new signed data: %w", err)}
	}
	signedData.SetDigestAlgorithm(getOIDFromHashAlgorithm(req.DigestAlgorithm))

	signingCertificate, err := signingCertificateAttribute(req)
	if err != nil {
		return nil, &SignerError{Err: fmt.Errorf("signing certificate attribute: %w", err)}
	}

	config := pkcs7.SignerInfoConfig{
		ExtraSignedAttributes: []pkcs7.Attribute{
			{
				Type:  oidAdbeRevocationInfoArchival,
				Value: req.RevocationData,
			},
			*signingCertificate,
		},
	}

	if err := signedData.AddSignerChain(req.Signer.Certificate(), req.Signer, signerChain(req.Signer), config); err != nil {
		return nil, &SignerError{Err: fmt.Errorf("add signer chain: %w", err)}
	}

	// The document bytes stay in the file, not in the container.
	signedData.Detach()

	if req.TSA.URL != "" {
		inner := signedData.GetSignedData()
		token, err := fetchTimestampToken(&req.TSA, inner.SignerInfos[0].EncryptedDigest)
		if err != nil {
			return nil, err
		}
		attribute := pkcs7.Attribute{
			Type:  oidTimeStampToken,
			Value: asn1.RawValue{FullBytes: token},
		}
		if err := inner.SignerInfos[0].SetUnauthenticatedAttributes([]pkcs7.Attribute{attribute}); err != nil {
			return nil, &SignerError{Err: fmt.Errorf("attach timestamp token: %w", err)}
		}
	}

	container, err := signedData.Finish()
	if err != nil {
		return nil, &SignerError{Err: fmt.Errorf("finish signed data: %w", err)}
	}
	return container, nil
}

// buildTimestampContainer produces the bare RFC 3161 token for a
// document timestamp, where the token itself is the signature value
// and the imprint covers the byte range directly.
func buildTimestampContainer(req *Request, content []byte) ([]byte, error) {
	hash := req.DigestAlgorithm.New()
	hash.Write(content)
	return fetchTimestampTokenForDigest(&req.TSA, hash.Sum(nil), req.DigestAlgorithm.HashFunc())
}
