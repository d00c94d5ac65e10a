// Package verify validates the digital signatures of a PDF document.
//
// Every signature field that carries a value is checked on three
// independent axes: integrity (do the covered bytes still match the
// cryptographic container), coverage (does the signature cover the
// whole file or only an earlier revision) and, when requested through
// Options, trust (does the signer certificate chain to an accepted
// anchor and is it unrevoked). One broken signature never stops the
// evaluation of the others.
package verify

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/digitorus/pdf"
)

// File verifies all signatures of the document in file.
func File(file *os.File, opts Options) (*Response, error) {
	finfo, err := file.Stat()
	if err != nil {
		return nil, err
	}
	return Reader(file, finfo.Size(), opts)
}

// Reader verifies all signatures of the size bytes long document
// readable from file.
//
// A document without signatures yields a Response with an empty
// Results slice and a nil error. Structural damage that prevents
// reading the document at all is returned as a *StructuralError;
// damage local to one signature is recorded on that signature's
// Result instead.
func Reader(file io.ReaderAt, size int64, opts Options) (resp *Response, err error) {
	// The parser panics on malformed input.
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &StructuralError{Op: "parse", Err: fmt.Errorf("malformed document: %v", r)}
		}
	}()

	rdr, err := pdf.NewReader(file, size)
	if err != nil {
		return nil, &StructuralError{Op: "parse", Err: err}
	}

	resp = &Response{}
	parseDocumentInfo(rdr, &resp.DocumentInfo)

	signed, err := collectSignedFields(rdr)
	if err != nil {
		return nil, err
	}
	for _, sf := range signed {
		resp.Results = append(resp.Results, verifyOne(file, size, sf, &opts))
	}
	return resp, nil
}

// signedField pairs a fully qualified field name with the signature
// dictionary stored as its value.
type signedField struct {
	name string
	sig  pdf.Value
}

// collectSignedFields walks the interactive form tree and returns the
// signature fields that carry a value, in document order. Fields whose
// value is present but not a dictionary are included so that the
// malformed state can be reported per field.
func collectSignedFields(rdr *pdf.Reader) ([]signedField, error) {
	catalog := rdr.Trailer().Key("Root")
	if catalog.Kind() != pdf.Dict {
		return nil, &StructuralError{Op: "catalog", Err: errors.New("document catalog not found")}
	}
	fields := catalog.Key("AcroForm").Key("Fields")
	if fields.Kind() != pdf.Array {
		return nil, nil
	}

	var out []signedField
	seen := make(map[uint32]bool)
	for i := 0; i < fields.Len(); i++ {
		collectFromField(fields.Index(i), "", "", seen, &out)
	}
	return out, nil
}

func collectFromField(field pdf.Value, prefix, inheritedFT string, seen map[uint32]bool, out *[]signedField) {
	if field.Kind() != pdf.Dict {
		return
	}
	if id := field.GetPtr().GetID(); id > 0 {
		if seen[id] {
			return
		}
		seen[id] = true
	}

	name := prefix
	if t := field.Key("T"); t.Kind() == pdf.String {
		if name != "" {
			name += "."
		}
		name += t.Text()
	}
	ft := inheritedFT
	if v := field.Key("FT"); v.Kind() == pdf.Name {
		ft = v.Name()
	}

	// Kids that carry a partial name are child fields of a non-terminal
	// field; kids without one are widget annotations of this field.
	if kids := field.Key("Kids"); kids.Kind() == pdf.Array {
		childFields := false
		for i := 0; i < kids.Len(); i++ {
			kid := kids.Index(i)
			if kid.Kind() == pdf.Dict && kid.Key("T").Kind() == pdf.String {
				childFields = true
				collectFromField(kid, name, ft, seen, out)
			}
		}
		if childFields {
			return
		}
	}

	if ft != "Sig" {
		return
	}
	if sig := field.Key("V"); !sig.IsNull() {
		*out = append(*out, signedField{name: name, sig: sig})
	}
}
