package verify

import (
	"bytes"
	"crypto"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
)

var (
	oidTimeStampToken         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
	oidRevocationInfoArchival = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}
)

// verifyOne evaluates a single signature field. Every failure is
// recorded on the returned Result so that sibling signatures keep
// being evaluated.
func verifyOne(file io.ReaderAt, size int64, sf signedField, opts *Options) (res Result) {
	res.Field = sf.name

	// Resolving lazily parsed objects can panic on damaged input.
	defer func() {
		if r := recover(); r != nil {
			res.fail(&MalformedSignatureError{Reason: fmt.Sprintf("signature dictionary unreadable: %v", r)})
		}
	}()

	v := sf.sig
	if v.Kind() != pdf.Dict {
		res.fail(&MalformedSignatureError{Reason: "field value is not a signature dictionary"})
		return res
	}
	res.Type = classifySignature(v)

	res.Info.Name = v.Key("Name").Text()
	res.Info.Reason = v.Key("Reason").Text()
	res.Info.Location = v.Key("Location").Text()
	res.Info.ContactInfo = v.Key("ContactInfo").Text()
	if m := v.Key("M"); !m.IsNull() {
		if t, err := parseDate(m.Text()); err == nil {
			res.Info.SignatureTime = &t
		}
	}

	br, err := declaredByteRange(v, size)
	if err != nil {
		res.fail(err)
		return res
	}
	if signedEnd := br[len(br)-2] + br[len(br)-1]; signedEnd == size {
		res.Coverage = CoverageEntireFile
	} else {
		res.Coverage = CoveragePriorRevision
	}

	content, err := readByteRange(file, br)
	if err != nil {
		res.fail(&MalformedSignatureError{Reason: fmt.Sprintf("declared byte range is unreadable: %v", err)})
		return res
	}

	contents := v.Key("Contents")
	if contents.Kind() != pdf.String {
		res.fail(&MalformedSignatureError{Reason: "missing /Contents value"})
		return res
	}
	raw := []byte(contents.RawString())

	p7, err := pkcs7.Parse(raw)
	if err != nil {
		res.fail(&MalformedSignatureError{Reason: fmt.Sprintf("cryptographic container: %v", err)})
		return res
	}

	if res.Type == TypeDocumentTimestamp {
		verifyDocTimeStamp(raw, content, p7, &res)
	} else {
		verifyDetached(content, p7, &res)
	}
	if res.Integrity != IntegrityIntact {
		// Trust in a broken signature is meaningless.
		res.Trust = TrustUnchecked
		return res
	}

	reportDocMDPChanges(v, &res)

	if opts.CheckTrust {
		evaluateTrust(&res, p7, opts)
	} else {
		res.Trust = TrustUnchecked
	}
	return res
}

// classifySignature derives the signature flavor from the dictionary.
func classifySignature(v pdf.Value) string {
	if v.Key("Type").Name() == "DocTimeStamp" || v.Key("SubFilter").Name() == "ETSI.RFC3161" {
		return TypeDocumentTimestamp
	}
	if refs := v.Key("Reference"); refs.Kind() == pdf.Array {
		for i := 0; i < refs.Len(); i++ {
			switch refs.Index(i).Key("TransformMethod").Name() {
			case "DocMDP":
				return TypeCertification
			case "UR", "UR3":
				return TypeUsageRights
			}
		}
	}
	return TypeApproval
}

// declaredByteRange reads and validates the /ByteRange array. The
// intervals must be non-negative, in ascending order, inside the file
// and start at offset zero.
func declaredByteRange(v pdf.Value, fileSize int64) ([]int64, error) {
	br := v.Key("ByteRange")
	if br.Kind() != pdf.Array || br.Len() < 4 || br.Len()%2 != 0 {
		return nil, &MalformedSignatureError{Reason: "missing or invalid /ByteRange"}
	}

	vals := make([]int64, br.Len())
	for i := range vals {
		e := br.Index(i)
		if e.Kind() != pdf.Integer {
			return nil, &MalformedSignatureError{Reason: "/ByteRange holds a non-integer entry"}
		}
		vals[i] = e.Int64()
	}

	if vals[0] != 0 {
		return nil, &MalformedSignatureError{Reason: "/ByteRange does not start at offset 0"}
	}
	var prevEnd int64
	for i := 0; i < len(vals); i += 2 {
		offset, length := vals[i], vals[i+1]
		if offset < 0 || length < 0 {
			return nil, &MalformedSignatureError{Reason: "/ByteRange holds a negative entry"}
		}
		if offset < prevEnd {
			return nil, &MalformedSignatureError{Reason: "/ByteRange intervals overlap"}
		}
		if offset+length > fileSize {
			return nil, &MalformedSignatureError{Reason: "/ByteRange exceeds the file size"}
		}
		prevEnd = offset + length
	}
	return vals, nil
}

// readByteRange assembles the covered intervals into one contiguous
// buffer, the digest input the signer saw.
func readByteRange(file io.ReaderAt, br []int64) ([]byte, error) {
	var parts []io.Reader
	var total int64
	for i := 0; i < len(br); i += 2 {
		parts = append(parts, io.NewSectionReader(file, br[i], br[i+1]))
		total += br[i+1]
	}

	content := make([]byte, total)
	if _, err := io.ReadFull(io.MultiReader(parts...), content); err != nil {
		return nil, err
	}
	return content, nil
}

// verifyDocTimeStamp checks a document timestamp: the token must parse,
// its message imprint must match the covered bytes and the token
// signature itself must verify against the embedded TSA certificate.
func verifyDocTimeStamp(raw, content []byte, p7 *pkcs7.PKCS7, res *Result) {
	// timestamp.Parse wants the full ContentInfo, not the inner
	// TSTInfo carried in p7.Content.
	ts, err := timestamp.Parse(raw)
	if err != nil {
		res.fail(&MalformedSignatureError{Reason: fmt.Sprintf("timestamp token: %v", err)})
		return
	}
	res.Info.TimeStamp = ts
	res.Info.HashAlgorithm = ts.HashAlgorithm.String()

	if !ts.HashAlgorithm.Available() {
		res.fail(&MalformedSignatureError{Reason: fmt.Sprintf("unsupported timestamp digest algorithm %v", ts.HashAlgorithm)})
		return
	}
	h := ts.HashAlgorithm.New()
	h.Write(content)
	digest := h.Sum(nil)
	res.Info.DocumentHash = hex.EncodeToString(digest)

	if !bytes.Equal(digest, ts.HashedMessage) {
		res.Integrity = IntegrityTampered
		res.fail(&IntegrityTamperedError{Reason: "document digest does not match the timestamp token"})
		return
	}
	if err := p7.Verify(); err != nil {
		res.Integrity = IntegrityTampered
		res.fail(&IntegrityTamperedError{Reason: fmt.Sprintf("timestamp token signature: %v", err)})
		return
	}
	res.Integrity = IntegrityIntact
}

// verifyDetached checks a detached CMS signature over content.
func verifyDetached(content []byte, p7 *pkcs7.PKCS7, res *Result) {
	if len(p7.Signers) == 0 {
		res.fail(&MalformedSignatureError{Reason: "container carries no signer"})
		return
	}
	signerInfo := p7.Signers[0]

	hash, err := hashForOID(signerInfo.DigestAlgorithm.Algorithm)
	if err != nil {
		res.fail(&MalformedSignatureError{Reason: err.Error()})
		return
	}
	res.Info.HashAlgorithm = hash.String()

	h := hash.New()
	h.Write(content)
	res.Info.DocumentHash = hex.EncodeToString(h.Sum(nil))

	h = hash.New()
	h.Write(signerInfo.EncryptedDigest)
	res.Info.SignatureHash = hex.EncodeToString(h.Sum(nil))

	if err := processTimestamp(p7, hash, res); err != nil {
		res.Integrity = IntegrityTampered
		res.fail(&IntegrityTamperedError{Reason: err.Error()})
		return
	}

	p7.Content = content
	if err := p7.Verify(); err != nil {
		res.Integrity = IntegrityTampered
		res.fail(&IntegrityTamperedError{Reason: fmt.Sprintf("signature does not match the covered bytes: %v", err)})
		return
	}
	res.Integrity = IntegrityIntact
}

// processTimestamp extracts the RFC 3161 token attached as an
// unauthenticated attribute and checks its imprint against the
// signature value.
func processTimestamp(p7 *pkcs7.PKCS7, fallback crypto.Hash, res *Result) error {
	for _, s := range p7.Signers {
		for _, attr := range s.UnauthenticatedAttributes {
			if !attr.Type.Equal(oidTimeStampToken) {
				continue
			}
			ts, err := timestamp.Parse(attr.Value.Bytes)
			if err != nil {
				return fmt.Errorf("embedded timestamp token: %v", err)
			}
			res.Info.TimeStamp = ts

			hash := ts.HashAlgorithm
			if !hash.Available() {
				hash = fallback
			}
			h := hash.New()
			h.Write(s.EncryptedDigest)
			if !bytes.Equal(h.Sum(nil), ts.HashedMessage) {
				return fmt.Errorf("embedded timestamp does not match the signature value")
			}
			return nil
		}
	}
	return nil
}

// reportDocMDPChanges warns when the file grew past the certified
// revision. A certification with P=1 permits no change at all; higher
// levels permit changes this validator does not content-inspect.
func reportDocMDPChanges(v pdf.Value, res *Result) {
	if res.Coverage != CoveragePriorRevision {
		return
	}
	refs := v.Key("Reference")
	if refs.Kind() != pdf.Array {
		return
	}
	for i := 0; i < refs.Len(); i++ {
		ref := refs.Index(i)
		if ref.Key("TransformMethod").Name() != "DocMDP" {
			continue
		}
		perm := int64(2)
		if p := ref.Key("TransformParams").Key("P"); p.Kind() == pdf.Integer {
			perm = p.Int64()
		}
		switch perm {
		case 1:
			res.Warnings = append(res.Warnings, "document was extended after a certification that permits no changes")
		default:
			res.Warnings = append(res.Warnings, fmt.Sprintf("document was extended after certification; changes were not inspected against permission level %d", perm))
		}
	}
}

func hashForOID(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	for hash, candidate := range hashOIDs {
		if candidate.Equal(oid) {
			return hash, nil
		}
	}
	return 0, fmt.Errorf("unsupported digest algorithm %v", oid)
}

var hashOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA1:   {1, 3, 14, 3, 2, 26},
	crypto.SHA256: {2, 16, 840, 1, 101, 3, 4, 2, 1},
	crypto.SHA384: {2, 16, 840, 1, 101, 3, 4, 2, 2},
	crypto.SHA512: {2, 16, 840, 1, 101, 3, 4, 2, 3},
}
