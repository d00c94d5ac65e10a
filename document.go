// Package pdfseal signs and verifies PDF documents through
// incremental updates. Every operation appends a new revision to the
// document, existing bytes are never rewritten, so prior signatures
// stay valid.
//
// Basic usage:
//
//	doc, err := pdfseal.Open("contract.pdf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer doc.Close()
//
//	signer, err := keyring.SignerFromFiles("key.pem", "cert.pem", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = doc.SignTo("contract-signed.pdf", sign.Request{
//	    Signer: signer,
//	    Info:   sign.Metadata{Name: "Jane Doe", Reason: "Approval"},
//	})
//
// The sign and verify packages expose the underlying engine for
// callers that manage their own streams.
package pdfseal

import (
	"fmt"
	"io"
	"os"

	"github.com/digitorus/pdf"

	"github.com/pdfseal/pdfseal/sign"
	"github.com/pdfseal/pdfseal/verify"
)

// Document is an open PDF file. It owns the underlying file handle;
// Close releases it. Operations never modify the file itself, signed
// output always goes to a separate writer.
type Document struct {
	file *os.File
	rdr  *pdf.Reader
	size int64
}

// Open opens the document at path and parses its structure.
func Open(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	doc, err := newDocument(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return doc, nil
}

func newDocument(file *os.File) (_ *Document, err error) {
	// The underlying parser panics on malformed structures.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse document: %v", r)
		}
	}()

	finfo, err := file.Stat()
	if err != nil {
		return nil, err
	}
	rdr, err := pdf.NewReader(file, finfo.Size())
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Document{file: file, rdr: rdr, size: finfo.Size()}, nil
}

// Close releases the underlying file handle.
func (d *Document) Close() error {
	return d.file.Close()
}

// Size returns the document length in bytes.
func (d *Document) Size() int64 {
	return d.size
}

// Reader exposes the low-level PDF reader for direct object access.
func (d *Document) Reader() *pdf.Reader {
	return d.rdr
}

// Fields lists the signature fields of the document in document
// order, including their fill state.
func (d *Document) Fields() ([]sign.FieldInfo, error) {
	return sign.EnumerateFields(d.rdr)
}

// Sign appends one signed revision and writes the complete signed
// document to output. The receiver's file is read, never written.
func (d *Document) Sign(output io.Writer, req sign.Request) error {
	return sign.Sign(d.file, output, d.rdr, d.size, req)
}

// SignTo signs the document into a new file at path. The file is
// created only when signing succeeds up to the point of writing; a
// failure during the write removes the partial file.
func (d *Document) SignTo(path string, req sign.Request) error {
	return d.writeTo(path, func(out io.Writer) error {
		return d.Sign(out, req)
	})
}

// AddFields appends one revision containing the given empty signature
// fields and writes the updated document to output.
func (d *Document) AddFields(output io.Writer, specs ...sign.FieldSpec) error {
	return sign.AppendFields(d.file, output, d.rdr, d.size, specs...)
}

// AddFieldsTo writes the updated document to a new file at path.
func (d *Document) AddFieldsTo(path string, specs ...sign.FieldSpec) error {
	return d.writeTo(path, func(out io.Writer) error {
		return d.AddFields(out, specs...)
	})
}

// Verify checks every signature in the document and reports coverage,
// integrity and, when requested in opts, trust.
func (d *Document) Verify(opts verify.Options) (*verify.Response, error) {
	return verify.Reader(d.file, d.size, opts)
}

func (d *Document) writeTo(path string, write func(io.Writer) error) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(out); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return err
	}
	return out.Close()
}
