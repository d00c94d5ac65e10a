package sign

import (
	"bytes"
	"fmt"
)

// writeTableTrailer appends the trailer dictionary for a classic
// cross reference table. Size, Root and Prev are owned by this
// revision, remaining entries carry over from the base trailer.
func (r *Revision) writeTableTrailer(catalogID uint32) error {
	trailer := r.rdr.Trailer()

	buffer := bytes.NewBuffer(nil)
	buffer.WriteString("trailer\n")
	fmt.Fprintf(buffer, "<< /Size %d\n", r.lastID+uint32(len(r.added))+1)
	fmt.Fprintf(buffer, "  /Root %d 0 R\n", catalogID)
	fmt.Fprintf(buffer, "  /Prev %d\n", r.rdr.XrefInformation.StartPos)

	for _, key := range trailer.Keys() {
		switch key {
		// Size, Root and Prev are replaced above. XRefStm points into
		// an older revision and must not leak into this trailer.
		case "Size", "Root", "Prev", "XRefStm":
			continue
		}
		fmt.Fprintf(buffer, "  /%s %s\n", key, serializeValue(trailer.Key(key)))
	}

	buffer.WriteString(">>\n")
	if _, err := r.buf.Write(buffer.Bytes()); err != nil {
		return err
	}
	return r.writeStartxref()
}
