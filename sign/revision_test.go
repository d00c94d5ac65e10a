package sign

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/digitorus/pdf"

	"github.com/pdfseal/pdfseal/internal/testpdf"
)

func newTestRevision(t *testing.T, base []byte) *Revision {
	t.Helper()
	rdr, err := pdf.NewReader(bytes.NewReader(base), int64(len(base)))
	if err != nil {
		t.Fatalf("parse base document: %v", err)
	}
	rev, err := newRevision(bytes.NewReader(base), rdr, int64(len(base)), zlib.DefaultCompression)
	if err != nil {
		t.Fatalf("new revision: %v", err)
	}
	return rev
}

// baseStartxref reads the cross reference offset the base document
// declares in its startxref line.
func baseStartxref(t *testing.T, base []byte) int64 {
	t.Helper()
	i := bytes.LastIndex(base, []byte("startxref\n"))
	if i < 0 {
		t.Fatal("no startxref in fixture")
	}
	var off int64
	if _, err := fmt.Sscanf(string(base[i:]), "startxref\n%d", &off); err != nil {
		t.Fatalf("parse startxref: %v", err)
	}
	return off
}

func TestRevisionPreservesBase(t *testing.T) {
	base := testpdf.MinimalTable()
	rev := newTestRevision(t, base)

	staged := rev.bytes()
	if !bytes.Equal(staged[:len(base)], base) {
		t.Error("staging changed the base document bytes")
	}
	if staged[len(base)] != '\n' {
		t.Error("no separator after the base document")
	}
}

func TestRevisionObjectNumbering(t *testing.T) {
	// The fixture trailer declares Size 6, so object 6 is the first
	// free number.
	rev := newTestRevision(t, testpdf.MinimalTable())

	if got := rev.nextID(); got != 6 {
		t.Errorf("nextID = %d, want 6", got)
	}

	body := []byte("<< /Kind /First >>")
	id, bodyStart, err := rev.addObject(body)
	if err != nil {
		t.Fatalf("add object: %v", err)
	}
	if id != 6 {
		t.Errorf("first added object = %d, want 6", id)
	}
	if got := rev.bytes()[bodyStart : bodyStart+int64(len(body))]; !bytes.Equal(got, body) {
		t.Errorf("body offset points at %q, want %q", got, body)
	}

	id2, err := rev.AddObject([]byte("<< /Kind /Second >>"))
	if err != nil {
		t.Fatalf("add object: %v", err)
	}
	if id2 != 7 {
		t.Errorf("second added object = %d, want 7", id2)
	}
}

func TestRevisionUpdateObject(t *testing.T) {
	rev := newTestRevision(t, testpdf.MinimalTable())

	if err := rev.UpdateObject(0, []byte("<< >>")); err == nil {
		t.Error("object 0 was accepted")
	}
	if err := rev.UpdateObject(99, []byte("<< >>")); err == nil {
		t.Error("object beyond the base document was accepted")
	}

	if err := rev.UpdateObject(1, []byte("<< /Try 1 >>")); err != nil {
		t.Fatalf("update object: %v", err)
	}
	second := rev.len()
	if err := rev.UpdateObject(1, []byte("<< /Try 2 >>")); err != nil {
		t.Fatalf("update object again: %v", err)
	}

	if len(rev.updated) != 1 {
		t.Fatalf("got %d cross reference entries for object 1, want 1", len(rev.updated))
	}
	if rev.updated[0].Offset != second {
		t.Errorf("entry points at %d, want the second copy at %d", rev.updated[0].Offset, second)
	}
}

func TestRevisionPatch(t *testing.T) {
	rev := newTestRevision(t, testpdf.MinimalTable())

	if _, err := rev.AddObject([]byte("<< /Marker 0000 >>")); err != nil {
		t.Fatal(err)
	}
	marker := bytes.Index(rev.bytes(), []byte("0000 >>"))
	if marker < 0 {
		t.Fatal("marker not staged")
	}

	if err := rev.patch(rev.baseSize-1, []byte("x")); err == nil {
		t.Error("patch into the base document was accepted")
	}
	if err := rev.patch(rev.len()-1, []byte("xx")); err == nil {
		t.Error("patch past the staged end was accepted")
	}

	before := rev.len()
	if err := rev.patch(int64(marker), []byte("1234")); err != nil {
		t.Fatalf("patch: %v", err)
	}
	if rev.len() != before {
		t.Errorf("patch changed the staged size from %d to %d", before, rev.len())
	}
	if !bytes.Contains(rev.bytes(), []byte("/Marker 1234 >>")) {
		t.Error("patched bytes not present")
	}
}

func TestRevisionFinalizeTable(t *testing.T) {
	base := testpdf.MinimalTable()
	rev := newTestRevision(t, base)

	addedID, err := rev.AddObject([]byte("<< /Kind /Added >>"))
	if err != nil {
		t.Fatal(err)
	}
	if err := rev.UpdateObject(1, []byte("<< /Type /Catalog /Pages 2 0 R >>")); err != nil {
		t.Fatal(err)
	}
	if err := rev.finalize(1); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	tail := string(rev.bytes()[rev.baseSize:])
	if !strings.Contains(tail, "xref\n") {
		t.Error("no cross reference section appended")
	}
	if !strings.Contains(tail, "1 1\n") {
		t.Error("no single entry subsection for the superseded object")
	}
	if !strings.Contains(tail, fmt.Sprintf("%d 1\n", addedID)) {
		t.Error("no subsection for the added object")
	}
	if !strings.Contains(tail, fmt.Sprintf("/Prev %d", baseStartxref(t, base))) {
		t.Error("trailer does not chain to the previous cross reference section")
	}
	if !strings.Contains(tail, fmt.Sprintf("/Size %d", addedID+1)) {
		t.Error("trailer does not extend the object count")
	}
	if !strings.HasSuffix(tail, fmt.Sprintf("startxref\n%d\n%%%%EOF\n", rev.xrefStart)) {
		t.Error("startxref does not point at the appended section")
	}

	// The result must parse as a chained document.
	if _, err := pdf.NewReader(bytes.NewReader(rev.bytes()), rev.len()); err != nil {
		t.Errorf("finalized output does not parse: %v", err)
	}
}

func TestRevisionFinalizeStream(t *testing.T) {
	base := testpdf.MinimalStream()
	rev := newTestRevision(t, base)

	addedID, err := rev.AddObject([]byte("<< /Kind /Added >>"))
	if err != nil {
		t.Fatal(err)
	}
	if err := rev.finalize(1); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	tail := rev.bytes()[rev.xrefStart:]
	if !bytes.Contains(tail, []byte("/Type /XRef")) {
		t.Fatal("no cross reference stream appended")
	}
	if !bytes.Contains(tail, []byte(fmt.Sprintf("/Prev %d", baseStartxref(t, base)))) {
		t.Error("stream does not chain to the previous section")
	}
	if !bytes.Contains(tail, []byte(fmt.Sprintf("/Index [ %d 2 ]", addedID))) {
		t.Errorf("index does not cover objects %d and %d", addedID, addedID+1)
	}

	// Decode the stream data and check that the final entry describes
	// the stream object itself at its actual offset.
	entries := decodeXrefStream(t, tail)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[len(entries)-1] != uint32(rev.xrefStart) {
		t.Errorf("self entry points at %d, want %d", entries[len(entries)-1], rev.xrefStart)
	}

	if _, err := pdf.NewReader(bytes.NewReader(rev.bytes()), rev.len()); err != nil {
		t.Errorf("finalized output does not parse: %v", err)
	}
}

// decodeXrefStream inflates the stream payload of a cross reference
// stream object and returns the offsets of its in use entries.
func decodeXrefStream(t *testing.T, obj []byte) []uint32 {
	t.Helper()
	start := bytes.Index(obj, []byte("stream\n"))
	end := bytes.Index(obj, []byte("\nendstream"))
	if start < 0 || end < 0 {
		t.Fatal("no stream payload")
	}
	zr, err := zlib.NewReader(bytes.NewReader(obj[start+len("stream\n") : end]))
	if err != nil {
		t.Fatalf("open stream payload: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("inflate stream payload: %v", err)
	}
	if len(raw)%6 != 0 {
		t.Fatalf("payload is %d bytes, not a multiple of the 6 byte row width", len(raw))
	}

	var offsets []uint32
	for i := 0; i < len(raw); i += 6 {
		if raw[i] != 1 {
			t.Fatalf("entry %d has type %d, want 1", i/6, raw[i])
		}
		offsets = append(offsets, binary.BigEndian.Uint32(raw[i+1:i+5]))
	}
	return offsets
}

func TestRevisionRejectsSizeMismatch(t *testing.T) {
	base := testpdf.MinimalTable()
	rdr, err := pdf.NewReader(bytes.NewReader(base), int64(len(base)))
	if err != nil {
		t.Fatal(err)
	}

	_, err = newRevision(bytes.NewReader(base), rdr, int64(len(base))+10, zlib.DefaultCompression)
	var se *StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("got %v, want a structural error", err)
	}
	if se.Op != "open" {
		t.Errorf("op = %q, want open", se.Op)
	}
}
