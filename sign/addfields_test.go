package sign

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfseal/pdfseal/internal/testpdf"
	"github.com/pdfseal/pdfseal/internal/testpki"
	"github.com/pdfseal/pdfseal/verify"
)

func appendFieldsBytes(t *testing.T, base []byte, specs ...FieldSpec) []byte {
	t.Helper()
	rdr := readDocument(t, base)
	var out bytes.Buffer
	if err := AppendFields(bytes.NewReader(base), &out, rdr, int64(len(base)), specs...); err != nil {
		t.Fatalf("append fields: %v", err)
	}
	return out.Bytes()
}

func TestAppendFieldsCreatesEmptyFields(t *testing.T) {
	rect := [4]float64{150, 100, 400, 160}
	updated := appendFieldsBytes(t, testpdf.MinimalTable(),
		FieldSpec{Name: "Reviewer", Page: 1, Rect: rect},
		FieldSpec{Name: "Witness"},
	)

	fields, err := EnumerateFields(readDocument(t, updated))
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(fields))
	}
	reviewer, witness := fields[0], fields[1]
	if reviewer.Name != "Reviewer" || reviewer.State != FieldEmpty {
		t.Errorf("reviewer = %+v", reviewer)
	}
	if reviewer.Rect != rect {
		t.Errorf("reviewer rect = %v, want %v", reviewer.Rect, rect)
	}
	if reviewer.Page != 1 {
		t.Errorf("reviewer page = %d", reviewer.Page)
	}
	if witness.Name != "Witness" || witness.Rect != [4]float64{} {
		t.Errorf("witness = %+v", witness)
	}

	// The added fields are ready for filling.
	pki := testpki.New(t)
	signed := signBytes(t, updated, Request{
		Signer: newTestSigner(t, pki, "Field Filler"),
		Field:  FieldOptions{Name: "Reviewer", ExistingOnly: true},
	})
	resp := verifyBytes(t, signed, verify.Options{})
	if len(resp.Results) != 1 || resp.Results[0].Field != "Reviewer" {
		t.Fatalf("results: %+v", resp.Results)
	}
	if resp.Results[0].Integrity != verify.IntegrityIntact {
		t.Errorf("integrity = %v", resp.Results[0].Integrity)
	}
}

func TestAppendFieldsPreservesExisting(t *testing.T) {
	updated := appendFieldsBytes(t, testpdf.WithEmptyFields("First"), FieldSpec{Name: "Second"})

	fields, err := EnumerateFields(readDocument(t, updated))
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	var names []string
	for _, f := range fields {
		names = append(names, f.Name)
	}
	if len(names) != 2 || names[0] != "First" || names[1] != "Second" {
		t.Errorf("fields = %v", names)
	}
}

func TestAppendFieldsAfterSignature(t *testing.T) {
	pki := testpki.New(t)
	signed := signBytes(t, testpdf.MinimalTable(), Request{
		Signer: newTestSigner(t, pki, "First Signer"),
	})

	updated := appendFieldsBytes(t, signed, FieldSpec{Name: "Countersign"})

	resp := verifyBytes(t, updated, verify.Options{})
	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(resp.Results))
	}
	res := resp.Results[0]
	if res.Integrity != verify.IntegrityIntact {
		t.Errorf("integrity = %v", res.Integrity)
	}
	if res.Coverage != verify.CoveragePriorRevision {
		t.Errorf("coverage = %v, want PRIOR_REVISION", res.Coverage)
	}

	fields, err := EnumerateFields(readDocument(t, updated))
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(fields) != 2 || fields[1].Name != "Countersign" || fields[1].State != FieldEmpty {
		t.Errorf("fields = %+v", fields)
	}
}

func TestAppendFieldsValidation(t *testing.T) {
	base := testpdf.MinimalTable()
	rdr := readDocument(t, base)
	run := func(specs ...FieldSpec) error {
		var out bytes.Buffer
		return AppendFields(bytes.NewReader(base), &out, rdr, int64(len(base)), specs...)
	}

	tests := []struct {
		name    string
		specs   []FieldSpec
		wantErr string
	}{
		{"no specs", nil, "no fields to add"},
		{"empty name", []FieldSpec{{}}, "must not be empty"},
		{"dotted name", []FieldSpec{{Name: "a.b"}}, "cannot appear in a name"},
		{"negative page", []FieldSpec{{Name: "X", Page: -1}}, "must be positive"},
		{"thin rectangle", []FieldSpec{{Name: "X", Rect: [4]float64{10, 10, 10.5, 40}}}, "rectangle is empty"},
		{"duplicate in one call", []FieldSpec{{Name: "X"}, {Name: "X"}}, "already exists"},
		{"missing page", []FieldSpec{{Name: "X", Page: 5}}, "page 5 not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.specs...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestAppendFieldsRejectsExistingName(t *testing.T) {
	base := testpdf.WithEmptyFields("Reviewer")
	rdr := readDocument(t, base)
	var out bytes.Buffer
	err := AppendFields(bytes.NewReader(base), &out, rdr, int64(len(base)), FieldSpec{Name: "Reviewer"})
	var fre *FieldResolutionError
	if !errors.As(err, &fre) || fre.Field != "Reviewer" {
		t.Errorf("got %v, want a field resolution error for Reviewer", err)
	}
}

func TestAppendFieldsRejectsFilledName(t *testing.T) {
	pki := testpki.New(t)
	signed := signBytes(t, testpdf.MinimalTable(), Request{
		Signer: newTestSigner(t, pki, "Occupant"),
	})

	rdr := readDocument(t, signed)
	var out bytes.Buffer
	err := AppendFields(bytes.NewReader(signed), &out, rdr, int64(len(signed)), FieldSpec{Name: "Signature1"})
	var fre *FieldResolutionError
	if !errors.As(err, &fre) || fre.Field != "Signature1" {
		t.Errorf("got %v, want a field resolution error for Signature1", err)
	}
}

func TestAppendFieldsRefusedWhenLocked(t *testing.T) {
	pki := testpki.New(t)
	certified := signBytes(t, testpdf.MinimalTable(), Request{
		Signer:     newTestSigner(t, pki, "Certifier"),
		CertType:   CertificationSignature,
		DocMDPPerm: PermNoChanges,
	})

	rdr := readDocument(t, certified)
	var out bytes.Buffer
	err := AppendFields(bytes.NewReader(certified), &out, rdr, int64(len(certified)), FieldSpec{Name: "Late"})
	if !errors.Is(err, ErrAlreadyCertified) {
		t.Errorf("got %v, want ErrAlreadyCertified", err)
	}
}

func TestAppendFieldsFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.pdf")
	output := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(input, testpdf.MinimalTable(), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := AppendFieldsFile(input, output, FieldSpec{Name: "Approver"}); err != nil {
		t.Fatalf("append fields: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	fields, err := EnumerateFields(readDocument(t, data))
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(fields) != 1 || fields[0].Name != "Approver" {
		t.Errorf("fields = %+v", fields)
	}

	if err := AppendFieldsFile(filepath.Join(dir, "absent.pdf"), output); err == nil {
		t.Error("missing input accepted")
	}
}
