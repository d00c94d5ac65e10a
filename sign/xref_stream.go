package sign

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/digitorus/pdf"
)

// xrefStreamColumns is the field layout advertised through /W: a one
// byte entry type, a four byte offset and a one byte generation.
var xrefStreamColumns = [3]int{1, 4, 1}

// writeXrefStreamObject appends a cross reference stream covering the
// objects staged in this revision, including the stream object itself.
func (r *Revision) writeXrefStreamObject(catalogID uint32) error {
	selfID := r.nextID()
	selfOffset := r.len()

	entries := make([]xrefEntry, 0, len(r.updated)+len(r.added)+1)
	entries = append(entries, r.updated...)
	entries = append(entries, r.added...)
	entries = append(entries, xrefEntry{ID: selfID, Offset: selfOffset})

	streamData, err := r.encodeXrefStream(entries)
	if err != nil {
		return err
	}

	dict := bytes.NewBuffer(nil)
	fmt.Fprintf(dict, "%d 0 obj\n", selfID)
	dict.WriteString("<< /Type /XRef\n")
	fmt.Fprintf(dict, "  /Length %d\n", len(streamData))
	dict.WriteString("  /Filter /FlateDecode\n")
	fmt.Fprintf(dict, "  /W [ %d %d %d ]\n", xrefStreamColumns[0], xrefStreamColumns[1], xrefStreamColumns[2])
	fmt.Fprintf(dict, "  /Prev %d\n", r.rdr.XrefInformation.StartPos)
	fmt.Fprintf(dict, "  /Size %d\n", selfID+1)

	dict.WriteString("  /Index [")
	for _, entry := range r.updated {
		fmt.Fprintf(dict, " %d 1", entry.ID)
	}
	fmt.Fprintf(dict, " %d %d ]\n", r.lastID+1, len(r.added)+1)

	fmt.Fprintf(dict, "  /Root %d 0 R\n", catalogID)

	if id := r.rdr.Trailer().Key("ID"); id.Kind() == pdf.Array && id.Len() == 2 {
		fmt.Fprintf(dict, "  /ID [<%X><%X>]\n", id.Index(0).RawString(), id.Index(1).RawString())
	}

	dict.WriteString(">>\n")
	dict.WriteString("stream\n")
	dict.Write(streamData)
	dict.WriteString("\nendstream\nendobj\n")

	_, err = r.buf.Write(dict.Bytes())
	return err
}

// encodeXrefStream serializes in use entries in the /W layout and
// compresses them with zlib, the self describing form of FlateDecode.
func (r *Revision) encodeXrefStream(entries []xrefEntry) ([]byte, error) {
	data := bytes.NewBuffer(nil)
	for _, entry := range entries {
		if entry.Offset > math.MaxUint32 {
			return nil, structuralf("finalize", "object %d offset %d exceeds the 4 byte field width", entry.ID, entry.Offset)
		}
		data.WriteByte(1)
		if err := binary.Write(data, binary.BigEndian, uint32(entry.Offset)); err != nil {
			return nil, err
		}
		data.WriteByte(0)
	}

	compressed := bytes.NewBuffer(nil)
	zw, err := zlib.NewWriterLevel(compressed, r.compressLevel)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data.Bytes()); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return compressed.Bytes(), nil
}
