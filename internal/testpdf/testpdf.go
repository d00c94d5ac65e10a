// Package testpdf generates small deterministic PDF documents for
// tests. All offsets are computed while assembling, so the fixtures
// stay valid when their content changes.
package testpdf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"strings"
)

type builder struct {
	buf     bytes.Buffer
	offsets map[int]int
	infoID  int
}

func newBuilder() *builder {
	b := &builder{offsets: make(map[int]int)}
	b.buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	return b
}

func (b *builder) object(id int, body string) {
	b.offsets[id] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", id, body)
}

func (b *builder) stream(id int, extra string, data []byte) {
	b.offsets[id] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n<< /Length %d%s >>\nstream\n", id, len(data), extra)
	b.buf.Write(data)
	b.buf.WriteString("\nendstream\nendobj\n")
}

// finishTable closes the document with a classic cross reference
// table covering objects 0 through size-1.
func (b *builder) finishTable(size int) []byte {
	start := b.buf.Len()
	fmt.Fprintf(&b.buf, "xref\n0 %d\n", size)
	b.buf.WriteString("0000000000 65535 f\r\n")
	for id := 1; id < size; id++ {
		fmt.Fprintf(&b.buf, "%010d 00000 n\r\n", b.offsets[id])
	}
	trailer := fmt.Sprintf("<< /Size %d /Root 1 0 R", size)
	if b.infoID != 0 {
		trailer += fmt.Sprintf(" /Info %d 0 R", b.infoID)
	}
	trailer += " >>"
	fmt.Fprintf(&b.buf, "trailer\n%s\nstartxref\n%d\n%%%%EOF\n", trailer, start)
	return b.buf.Bytes()
}

// finishStream closes the document with a cross reference stream
// stored in object xrefID, which must be the highest object number.
func (b *builder) finishStream(xrefID int) []byte {
	start := b.buf.Len()
	b.offsets[xrefID] = start
	size := xrefID + 1

	rows := bytes.NewBuffer(nil)
	rows.Write([]byte{0, 0, 0, 0, 0, 255})
	for id := 1; id <= xrefID; id++ {
		row := [6]byte{1, 0, 0, 0, 0, 0}
		binary.BigEndian.PutUint32(row[1:5], uint32(b.offsets[id]))
		rows.Write(row[:])
	}
	compressed := bytes.NewBuffer(nil)
	zw := zlib.NewWriter(compressed)
	if _, err := zw.Write(rows.Bytes()); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}

	fmt.Fprintf(&b.buf,
		"%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 1] /Index [0 %d] /Filter /FlateDecode /Root 1 0 R /Length %d >>\nstream\n",
		xrefID, size, size, compressed.Len())
	b.buf.Write(compressed.Bytes())
	b.buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&b.buf, "startxref\n%d\n%%%%EOF\n", start)
	return b.buf.Bytes()
}

// writeSinglePage emits objects 1 through 5 (catalog, page tree, page,
// font, contents) plus one widget annotation per field name starting
// at object 6. It returns the next free object number.
func writeSinglePage(b *builder, fieldNames []string) int {
	nextID := 6
	var fields, annots []string
	for range fieldNames {
		ref := fmt.Sprintf("%d 0 R", nextID)
		fields = append(fields, ref)
		annots = append(annots, ref)
		nextID++
	}

	catalog := "<< /Type /Catalog /Pages 2 0 R"
	if len(fields) > 0 {
		catalog += fmt.Sprintf(" /AcroForm << /Fields [%s] /SigFlags 3 >>", strings.Join(fields, " "))
	}
	catalog += " >>"
	b.object(1, catalog)
	b.object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")

	page := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R"
	if len(annots) > 0 {
		page += fmt.Sprintf(" /Annots [%s]", strings.Join(annots, " "))
	}
	page += " >>"
	b.object(3, page)
	b.object(4, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	b.stream(5, "", []byte("BT /F1 24 Tf 72 720 Td (Offer letter) Tj ET"))

	for i, name := range fieldNames {
		b.object(6+i, fmt.Sprintf(
			"<< /Type /Annot /Subtype /Widget /FT /Sig /T (%s) /Rect [150 %d 400 %d] /F 4 /P 3 0 R >>",
			name, 100+60*i, 150+60*i))
	}
	return nextID
}

// MinimalTable returns a one page document closed by a classic cross
// reference table.
func MinimalTable() []byte {
	b := newBuilder()
	writeSinglePage(b, nil)
	return b.finishTable(6)
}

// MinimalStream returns a one page document closed by a cross
// reference stream.
func MinimalStream() []byte {
	b := newBuilder()
	writeSinglePage(b, nil)
	return b.finishStream(6)
}

// WithEmptyFields returns a one page document that already carries an
// empty signature field per given name, closed by a classic table.
func WithEmptyFields(names ...string) []byte {
	b := newBuilder()
	next := writeSinglePage(b, names)
	return b.finishTable(next)
}

// WithEmptyFieldsStream is WithEmptyFields closed by a cross
// reference stream.
func WithEmptyFieldsStream(names ...string) []byte {
	b := newBuilder()
	next := writeSinglePage(b, names)
	return b.finishStream(next)
}

// WithInfo returns a one page document carrying a document information
// dictionary in its trailer.
func WithInfo() []byte {
	b := newBuilder()
	writeSinglePage(b, nil)
	b.object(6, "<< /Title (Offer letter) /Author (Jordan Reyes) /Subject (Employment) /Creator (pdfseal) /Producer (pdfseal) /Name (Offer packet) "+
		"/Keywords (offer, employment, signed) /CreationDate (D:20240102150405+01'00') /ModDate (D:20240301080000+00'00') >>")
	b.infoID = 6
	return b.finishTable(7)
}

// WithStringSignatureValue returns a document whose single signature
// field holds a string where the signature dictionary belongs.
func WithStringSignatureValue() []byte {
	b := newBuilder()
	b.object(1, "<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [6 0 R] /SigFlags 3 >> >>")
	b.object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.object(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R /Annots [6 0 R] >>")
	b.object(4, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	b.stream(5, "", []byte("BT /F1 24 Tf 72 720 Td (Offer letter) Tj ET"))
	b.object(6, "<< /Type /Annot /Subtype /Widget /FT /Sig /T (Broken) /Rect [150 100 400 150] /F 4 /P 3 0 R /V (not a signature) >>")
	return b.finishTable(7)
}

// WithNestedSignedField returns a document where the signed field sits
// below a parent field, so its fully qualified name is dotted. The
// signature dictionary is present but carries no byte range.
func WithNestedSignedField() []byte {
	b := newBuilder()
	b.object(1, "<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [6 0 R] /SigFlags 3 >> >>")
	b.object(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	b.object(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R /Annots [7 0 R] >>")
	b.object(4, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	b.stream(5, "", []byte("BT /F1 24 Tf 72 720 Td (Offer letter) Tj ET"))
	b.object(6, "<< /T (legal) /FT /Sig /Kids [7 0 R] >>")
	b.object(7, "<< /Type /Annot /Subtype /Widget /T (approval) /Parent 6 0 R /Rect [150 100 400 150] /F 4 /P 3 0 R /V 8 0 R >>")
	b.object(8, "<< /Type /Sig /Filter /Adobe.PPKLite /SubFilter /adbe.pkcs7.detached >>")
	return b.finishTable(9)
}

// MultiPage returns a document with the given number of pages, each
// with its own content stream, closed by a classic table.
func MultiPage(pages int) []byte {
	if pages < 1 {
		pages = 1
	}
	b := newBuilder()

	var kids []string
	for i := 0; i < pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+i))
	}
	fontID := 3 + pages

	b.object(1, "<< /Type /Catalog /Pages 2 0 R >>")
	b.object(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		b.object(3+i, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			fontID, fontID+1+i))
	}
	b.object(fontID, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i := 0; i < pages; i++ {
		b.stream(fontID+1+i, "", []byte(fmt.Sprintf("BT /F1 24 Tf 72 720 Td (Page %d) Tj ET", i+1)))
	}
	return b.finishTable(fontID + 1 + pages)
}
