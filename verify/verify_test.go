package verify

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/digitorus/pdf"

	"github.com/pdfseal/pdfseal/internal/testpdf"
	"github.com/pdfseal/pdfseal/internal/testpki"
	"github.com/pdfseal/pdfseal/sign"
)

func fixtureSigner(t *testing.T, pki *testpki.PKI, commonName string) *sign.KeySigner {
	t.Helper()
	key, cert := pki.IssueLeaf(commonName)
	signer, err := sign.NewKeySigner(key, cert, pki.Chain()...)
	if err != nil {
		t.Fatalf("new key signer: %v", err)
	}
	return signer
}

// signFixture signs base and returns the grown document.
func signFixture(t *testing.T, base []byte, req sign.Request) []byte {
	t.Helper()
	rdr, err := pdf.NewReader(bytes.NewReader(base), int64(len(base)))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	var out bytes.Buffer
	if err := sign.Sign(bytes.NewReader(base), &out, rdr, int64(len(base)), req); err != nil {
		t.Fatalf("sign fixture: %v", err)
	}
	return out.Bytes()
}

func verifyData(t *testing.T, data []byte, opts Options) *Response {
	t.Helper()
	resp, err := Reader(bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	return resp
}

func anchoredOptions(pki *testpki.PKI) Options {
	return Options{
		CheckTrust:   true,
		TrustAnchors: pki.Anchors(),
		TrustReplace: true,
	}
}

func TestReaderUnsignedDocument(t *testing.T) {
	resp := verifyData(t, testpdf.MinimalTable(), Options{})
	if len(resp.Results) != 0 {
		t.Errorf("got %d results for an unsigned document", len(resp.Results))
	}
	if resp.DocumentInfo.Pages != 1 {
		t.Errorf("pages = %d, want 1", resp.DocumentInfo.Pages)
	}
}

func TestReaderGarbageInput(t *testing.T) {
	data := []byte("this is not a portable document")
	resp, err := Reader(bytes.NewReader(data), int64(len(data)), Options{})
	var serr *StructuralError
	if !errors.As(err, &serr) {
		t.Fatalf("got %v, want a structural error", err)
	}
	if resp != nil {
		t.Error("response returned alongside a structural error")
	}
}

func TestVerifyApprovalSignature(t *testing.T) {
	pki := testpki.New(t)
	signer := fixtureSigner(t, pki, "Jordan Reyes")

	signed := signFixture(t, testpdf.MinimalTable(), sign.Request{
		Signer: signer,
		Info: sign.Metadata{
			Name:        "Jordan Reyes",
			Location:    "Rotterdam",
			Reason:      "Offer accepted",
			ContactInfo: "jordan@example.com",
		},
	})

	resp := verifyData(t, signed, Options{})
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(resp.Results))
	}
	res := resp.Results[0]
	if err := res.Err(); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if res.Field != "Signature1" {
		t.Errorf("field = %q, want Signature1", res.Field)
	}
	if res.Type != TypeApproval {
		t.Errorf("type = %q, want approval", res.Type)
	}
	if res.Coverage != CoverageEntireFile {
		t.Errorf("coverage = %v, want entire file", res.Coverage)
	}
	if res.Integrity != IntegrityIntact {
		t.Errorf("integrity = %v, want intact", res.Integrity)
	}
	if res.Trust != TrustUnchecked {
		t.Errorf("trust = %v, want unchecked without options", res.Trust)
	}
	if res.Info.Name != "Jordan Reyes" || res.Info.Location != "Rotterdam" ||
		res.Info.Reason != "Offer accepted" || res.Info.ContactInfo != "jordan@example.com" {
		t.Errorf("metadata not carried: %+v", res.Info)
	}
	if res.Info.SignatureTime == nil {
		t.Error("signature time missing")
	}
	if res.Info.HashAlgorithm != "SHA-256" {
		t.Errorf("hash algorithm = %q, want SHA-256", res.Info.HashAlgorithm)
	}
	if res.Info.DocumentHash == "" || res.Info.SignatureHash == "" {
		t.Error("digest fields empty")
	}
	if got := res.Summary(); got != "INTACT:UNCHECKED" {
		t.Errorf("summary = %q", got)
	}
}

func TestVerifyTamperedDocument(t *testing.T) {
	pki := testpki.New(t)
	signer := fixtureSigner(t, pki, "Tamper Victim")
	signed := signFixture(t, testpdf.MinimalTable(), sign.Request{Signer: signer})

	idx := bytes.Index(signed, []byte("Offer letter"))
	if idx < 0 {
		t.Fatal("page content not found")
	}
	signed[idx] ^= 0xff

	resp := verifyData(t, signed, Options{})
	res := resp.Results[0]
	if res.Integrity != IntegrityTampered {
		t.Fatalf("integrity = %v, want tampered", res.Integrity)
	}
	var terr *IntegrityTamperedError
	if !errors.As(res.Err(), &terr) {
		t.Errorf("got %v, want an integrity error", res.Err())
	}
	if got := res.Summary(); got != "TAMPERED:UNCHECKED" {
		t.Errorf("summary = %q", got)
	}
}

func TestVerifyMultipleRevisions(t *testing.T) {
	pki := testpki.New(t)
	base := testpdf.WithEmptyFields("First", "Second")

	once := signFixture(t, base, sign.Request{
		Signer: fixtureSigner(t, pki, "First Signer"),
		Field:  sign.FieldOptions{Name: "First"},
	})
	twice := signFixture(t, once, sign.Request{
		Signer: fixtureSigner(t, pki, "Second Signer"),
		Field:  sign.FieldOptions{Name: "Second"},
	})

	resp := verifyData(t, twice, Options{})
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	first, second := resp.Results[0], resp.Results[1]
	if first.Field != "First" || second.Field != "Second" {
		t.Errorf("fields = %q, %q", first.Field, second.Field)
	}
	if first.Integrity != IntegrityIntact || second.Integrity != IntegrityIntact {
		t.Error("an intact signature reported tampered")
	}
	if first.Coverage != CoveragePriorRevision {
		t.Errorf("first coverage = %v, want prior revision", first.Coverage)
	}
	if second.Coverage != CoverageEntireFile {
		t.Errorf("second coverage = %v, want entire file", second.Coverage)
	}
}

func TestVerifyBrokenSiblingDoesNotAbort(t *testing.T) {
	pki := testpki.New(t)
	base := testpdf.WithEmptyFields("First", "Second")

	once := signFixture(t, base, sign.Request{
		Signer: fixtureSigner(t, pki, "Kept Signer"),
		Field:  sign.FieldOptions{Name: "First"},
	})
	twice := signFixture(t, once, sign.Request{
		Signer: fixtureSigner(t, pki, "Broken Signer"),
		Field:  sign.FieldOptions{Name: "Second"},
	})

	// Zero the leading bytes of the second container so it no longer
	// parses. The bytes sit in the signature gap, so the first
	// signature is unaffected.
	idx := bytes.LastIndex(twice, []byte("/Contents <"))
	if idx < 0 {
		t.Fatal("signature contents not found")
	}
	copy(twice[idx+len("/Contents <"):], "00000000")

	resp := verifyData(t, twice, Options{})
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	if resp.Results[0].Integrity != IntegrityIntact {
		t.Errorf("first signature integrity = %v, want intact", resp.Results[0].Integrity)
	}
	var merr *MalformedSignatureError
	if !errors.As(resp.Results[1].Err(), &merr) {
		t.Fatalf("got %v, want a malformed signature error", resp.Results[1].Err())
	}
	if !strings.Contains(merr.Reason, "cryptographic container") {
		t.Errorf("reason = %q", merr.Reason)
	}
	if got := resp.Results[1].Summary(); got != "MALFORMED" {
		t.Errorf("summary = %q", got)
	}
}

func TestVerifyStringSignatureValue(t *testing.T) {
	resp := verifyData(t, testpdf.WithStringSignatureValue(), Options{})
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(resp.Results))
	}
	res := resp.Results[0]
	if res.Field != "Broken" {
		t.Errorf("field = %q, want Broken", res.Field)
	}
	var merr *MalformedSignatureError
	if !errors.As(res.Err(), &merr) {
		t.Fatalf("got %v, want a malformed signature error", res.Err())
	}
	if !strings.Contains(merr.Reason, "not a signature dictionary") {
		t.Errorf("reason = %q", merr.Reason)
	}
}

func TestVerifyNestedFieldName(t *testing.T) {
	resp := verifyData(t, testpdf.WithNestedSignedField(), Options{})
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(resp.Results))
	}
	res := resp.Results[0]
	if res.Field != "legal.approval" {
		t.Errorf("field = %q, want the dotted name legal.approval", res.Field)
	}
	var merr *MalformedSignatureError
	if !errors.As(res.Err(), &merr) {
		t.Fatalf("got %v, want a malformed signature error", res.Err())
	}
	if !strings.Contains(merr.Reason, "/ByteRange") {
		t.Errorf("reason = %q", merr.Reason)
	}
}

func TestVerifyDocumentTimestamp(t *testing.T) {
	pki := testpki.New(t)
	pki.StartResponder()

	signed := signFixture(t, testpdf.MinimalTable(), sign.Request{
		CertType: sign.TimeStampSignature,
		TSA:      sign.TSA{URL: pki.TSAURL()},
	})

	resp := verifyData(t, signed, Options{})
	res := resp.Results[0]
	if err := res.Err(); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if res.Type != TypeDocumentTimestamp {
		t.Errorf("type = %q, want document timestamp", res.Type)
	}
	if res.Integrity != IntegrityIntact {
		t.Errorf("integrity = %v, want intact", res.Integrity)
	}
	if res.Coverage != CoverageEntireFile {
		t.Errorf("coverage = %v, want entire file", res.Coverage)
	}
	if res.Info.TimeStamp == nil {
		t.Error("timestamp token not reported")
	}
}

func TestVerifyCertificationExtension(t *testing.T) {
	pki := testpki.New(t)

	certified := signFixture(t, testpdf.MinimalTable(), sign.Request{
		Signer:   fixtureSigner(t, pki, "Certifier"),
		CertType: sign.CertificationSignature,
	})
	extended := signFixture(t, certified, sign.Request{
		Signer: fixtureSigner(t, pki, "Approver"),
	})

	resp := verifyData(t, extended, Options{})
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	cert := resp.Results[0]
	if cert.Type != TypeCertification {
		t.Errorf("type = %q, want certification", cert.Type)
	}
	if cert.Coverage != CoveragePriorRevision {
		t.Errorf("coverage = %v, want prior revision", cert.Coverage)
	}
	if len(cert.Warnings) == 0 || !strings.Contains(cert.Warnings[0], "permission level 2") {
		t.Errorf("warnings = %q, want an extension warning", cert.Warnings)
	}
	if resp.Results[1].Type != TypeApproval {
		t.Errorf("second type = %q, want approval", resp.Results[1].Type)
	}
}

func TestVerifyExtensionAfterNoChanges(t *testing.T) {
	pki := testpki.New(t)

	certified := signFixture(t, testpdf.MinimalTable(), sign.Request{
		Signer:     fixtureSigner(t, pki, "Strict Certifier"),
		CertType:   sign.CertificationSignature,
		DocMDPPerm: sign.PermNoChanges,
	})
	extended := append(append([]byte{}, certified...), "\n% appended after certification\n"...)

	resp := verifyData(t, extended, Options{})
	res := resp.Results[0]
	if res.Integrity != IntegrityIntact {
		t.Fatalf("integrity = %v, want intact", res.Integrity)
	}
	if res.Coverage != CoveragePriorRevision {
		t.Errorf("coverage = %v, want prior revision", res.Coverage)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "permits no changes") {
		t.Errorf("warnings = %q, want the no-changes warning", res.Warnings)
	}
}

func TestVerifyFile(t *testing.T) {
	pki := testpki.New(t)
	signer := fixtureSigner(t, pki, "File Signer")
	signed := signFixture(t, testpdf.MinimalTable(), sign.Request{Signer: signer})

	path := filepath.Join(t.TempDir(), "signed.pdf")
	if err := os.WriteFile(path, signed, 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	resp, err := File(f, Options{})
	if err != nil {
		t.Fatalf("verify file: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Integrity != IntegrityIntact {
		t.Errorf("unexpected results: %+v", resp.Results)
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		res  Result
		want string
	}{
		{Result{Integrity: IntegrityIntact, Trust: TrustTrusted, Coverage: CoverageEntireFile}, "INTACT:TRUSTED"},
		{Result{Integrity: IntegrityIntact, Trust: TrustUnchecked, Coverage: CoveragePriorRevision}, "INTACT:UNCHECKED,PRIOR_REVISION"},
		{Result{Integrity: IntegrityTampered, Trust: TrustUnchecked, Coverage: CoverageEntireFile}, "TAMPERED:UNCHECKED"},
		{Result{}, "MALFORMED"},
	}
	for _, tt := range tests {
		if got := tt.res.Summary(); got != tt.want {
			t.Errorf("summary = %q, want %q", got, tt.want)
		}
	}
}

func TestEnumJSON(t *testing.T) {
	tests := []struct {
		v    any
		want string
	}{
		{CoverageEntireFile, `"ENTIRE_FILE"`},
		{CoveragePriorRevision, `"PRIOR_REVISION"`},
		{IntegrityIntact, `"INTACT"`},
		{IntegrityTampered, `"TAMPERED"`},
		{TrustUnchecked, `"UNCHECKED"`},
		{TrustTrusted, `"TRUSTED"`},
		{TrustUntrusted, `"UNTRUSTED"`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.v)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.v, err)
		}
		if string(got) != tt.want {
			t.Errorf("marshal %v = %s, want %s", tt.v, got, tt.want)
		}
	}
}
