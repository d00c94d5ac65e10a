package sign

import (
	"compress/zlib"
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/digitorus/pdf"
)

// SignFile signs the document at input and writes the result to
// output. The output file is only written after the signature has
// been assembled completely, a failed signing never leaves a partial
// file behind.
func SignFile(input string, output string, req Request) error {
	inputFile, err := os.Open(input)
	if err != nil {
		return err
	}
	defer func() {
		_ = inputFile.Close()
	}()

	finfo, err := inputFile.Stat()
	if err != nil {
		return err
	}
	size := finfo.Size()

	rdr, err := pdf.NewReader(inputFile, size)
	if err != nil {
		return structuralf("open", "parse document: %v", err)
	}

	staged, err := sign(inputFile, rdr, size, &req)
	if err != nil {
		return err
	}
	return os.WriteFile(output, staged, 0644)
}

// Sign appends one signed incremental update to the document read
// from input and writes the complete signed document to output.
func Sign(input io.ReadSeeker, output io.Writer, rdr *pdf.Reader, size int64, req Request) error {
	staged, err := sign(input, rdr, size, &req)
	if err != nil {
		return err
	}
	_, err = output.Write(staged)
	return err
}

func sign(input io.ReadSeeker, rdr *pdf.Reader, size int64, req *Request) (_ []byte, err error) {
	// The underlying parser panics on malformed structures.
	defer func() {
		if r := recover(); r != nil {
			err = structuralf("parse", "malformed document: %v", r)
		}
	}()

	if err := req.applyDefaults(); err != nil {
		return nil, err
	}

	fields, err := EnumerateFields(rdr)
	if err != nil {
		return nil, err
	}
	if err := checkCertificationState(rdr, fields, req); err != nil {
		return nil, err
	}
	target, err := resolveField(fields, req.Field)
	if err != nil {
		return nil, err
	}

	rev, err := newRevision(input, rdr, size, req.CompressLevel)
	if err != nil {
		return nil, err
	}

	// Revocation material is gathered before sizing the placeholder,
	// CRLs in particular can be large.
	if req.RevocationFunction != nil && req.CertType != TimeStampSignature {
		if err := collectRevocationData(req); err != nil {
			return nil, err
		}
	}

	contentsCap, err := estimateContentsLength(req)
	if err != nil {
		return nil, err
	}

	sigBody, ph := buildSignatureDict(req, contentsCap)
	sigID, bodyStart, err := rev.addObject(sigBody)
	if err != nil {
		return nil, err
	}
	ph.rebase(bodyStart)

	appearance := req.Appearance
	if target.existing != nil && appearance.Visible {
		rect := target.existing.Rect
		if rect[2]-rect[0] < 1 || rect[3]-rect[1] < 1 {
			return nil, &FieldResolutionError{Field: target.name, Reason: "field has no visible area for an appearance"}
		}
		appearance.Rect = rect
	}

	var apID uint32
	if appearance.Visible {
		apID, err = rev.buildAppearance(appearance)
		if err != nil {
			return nil, err
		}
	}

	var newFieldIDs []uint32
	if target.existing != nil {
		if err := rev.fillExistingField(target.existing, sigID, apID); err != nil {
			return nil, err
		}
	} else {
		rect := [4]float64{}
		pageNum := 1
		if appearance.Visible {
			rect = appearance.Rect
			pageNum = appearance.Page
		}
		page, err := findPage(rdr, pageNum)
		if err != nil {
			return nil, err
		}
		widgetID, err := rev.AddObject(widgetBody(target.name, sigID, rect, page.GetPtr().GetID(), apID))
		if err != nil {
			return nil, err
		}
		if err := rev.addWidgetToPage(page, widgetID); err != nil {
			return nil, err
		}
		newFieldIDs = []uint32{widgetID}
	}

	var docMDP uint32
	if req.CertType == CertificationSignature {
		docMDP = sigID
	}
	catalogID, err := rev.updateCatalog(newFieldIDs, docMDP)
	if err != nil {
		return nil, err
	}

	if err := rev.finalize(catalogID); err != nil {
		return nil, err
	}

	br := computeByteRange(rev.len(), ph)
	token, err := formatByteRange(br)
	if err != nil {
		return nil, err
	}
	if err := rev.patch(ph.byteRangeOff, token); err != nil {
		return nil, err
	}

	content := signedContent(rev.bytes(), br)

	var container []byte
	if req.CertType == TimeStampSignature {
		container, err = buildTimestampContainer(req, content)
	} else {
		container, err = buildContainer(req, content)
	}
	if err != nil {
		return nil, err
	}

	encoded := make([]byte, hex.EncodedLen(len(container)))
	hex.Encode(encoded, container)
	if len(encoded) > ph.hexLen {
		return nil, &PlaceholderOverflowError{Reserved: ph.hexLen, Needed: len(encoded)}
	}
	if err := rev.patch(ph.hexOff, encoded); err != nil {
		return nil, err
	}

	return rev.bytes(), nil
}

func (req *Request) applyDefaults() error {
	if req.CertType == 0 {
		req.CertType = ApprovalSignature
	}
	if req.DocMDPPerm == 0 {
		req.DocMDPPerm = PermFormFill
	}
	if !req.DigestAlgorithm.Available() {
		req.DigestAlgorithm = crypto.SHA256
	}
	if req.Info.Date.IsZero() {
		req.Info.Date = time.Now()
	}
	if req.Appearance.Page == 0 {
		req.Appearance.Page = 1
	}
	if req.CompressLevel == 0 {
		req.CompressLevel = zlib.DefaultCompression
	}

	switch req.CertType {
	case TimeStampSignature:
		if req.TSA.URL == "" {
			return fmt.Errorf("document timestamps need a timestamp authority URL")
		}
	case ApprovalSignature, CertificationSignature, UsageRightsSignature:
		if req.Signer == nil {
			return ErrNilSigner
		}
		if req.Signer.Certificate() == nil {
			return ErrNilCertificate
		}
	default:
		return fmt.Errorf("unknown certification type %d", req.CertType)
	}

	if req.Appearance.Visible {
		switch req.CertType {
		case ApprovalSignature, CertificationSignature:
		default:
			return fmt.Errorf("visible appearances are limited to approval and certification signatures")
		}
		// When the signature targets an existing field the widget
		// keeps its rectangle, otherwise the request must supply one.
		if !req.Field.ExistingOnly && req.Field.Name == "" {
			rect := req.Appearance.Rect
			if rect[2]-rect[0] < 1 || rect[3]-rect[1] < 1 {
				return fmt.Errorf("appearance rectangle is empty")
			}
		}
	}

	if req.CertType == CertificationSignature {
		switch req.DocMDPPerm {
		case PermNoChanges, PermFormFill, PermFormFillAndAnnotate:
		default:
			return fmt.Errorf("unknown modification detection permission %d", req.DocMDPPerm)
		}
	}
	return nil
}

// checkCertificationState enforces certification exclusivity: a
// document carries at most one certification signature, and it must
// be the first signature applied.
func checkCertificationState(rdr *pdf.Reader, fields []FieldInfo, req *Request) error {
	docMDP := rdr.Trailer().Key("Root").Key("Perms").Key("DocMDP")
	if !docMDP.IsNull() {
		if req.CertType == CertificationSignature {
			return ErrAlreadyCertified
		}
		if docMDPPermOf(docMDP) == PermNoChanges {
			return fmt.Errorf("%w and permits no further changes", ErrAlreadyCertified)
		}
	}
	if req.CertType == CertificationSignature {
		for _, f := range fields {
			if f.State == FieldFilled {
				return ErrCertifyAfterApproval
			}
		}
	}
	return nil
}

// docMDPPermOf extracts the P transform parameter of a certification
// signature, defaulting to form filling when absent.
func docMDPPermOf(sig pdf.Value) DocMDPPerm {
	reference := sig.Key("Reference")
	for i := 0; i < reference.Len(); i++ {
		ref := reference.Index(i)
		if ref.Key("TransformMethod").Name() != "DocMDP" {
			continue
		}
		if p := ref.Key("TransformParams").Key("P"); p.Kind() == pdf.Integer {
			return DocMDPPerm(p.Int64())
		}
	}
	return PermFormFill
}

// collectRevocationData runs the revocation function over the signer
// certificate and its chain, accumulating the archival payload.
func collectRevocationData(req *Request) error {
	chain := append([]*x509.Certificate{req.Signer.Certificate()}, signerChain(req.Signer)...)
	for i, cert := range chain {
		var issuer *x509.Certificate
		if i+1 < len(chain) {
			issuer = chain[i+1]
		}
		if err := req.RevocationFunction(cert, issuer, &req.RevocationData); err != nil {
			return fmt.Errorf("collect revocation information for %q: %w", cert.Subject.CommonName, err)
		}
	}
	return nil
}
