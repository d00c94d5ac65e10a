package sign

import (
	"bytes"
	"fmt"
)

const xrefLine = "%010d %05d n\r\n"

// writeXrefTable appends a classic cross reference section covering
// the objects staged in this revision. Superseded objects each get a
// single entry subsection, added objects share one contiguous
// subsection starting after the base document's highest number.
func (r *Revision) writeXrefTable() error {
	buffer := bytes.NewBuffer(nil)
	buffer.WriteString("xref\n")

	for _, entry := range r.updated {
		fmt.Fprintf(buffer, "%d %d\n", entry.ID, 1)
		fmt.Fprintf(buffer, xrefLine, entry.Offset, 0)
	}

	if len(r.added) > 0 {
		fmt.Fprintf(buffer, "%d %d\n", r.lastID+1, len(r.added))
		for _, entry := range r.added {
			fmt.Fprintf(buffer, xrefLine, entry.Offset, 0)
		}
	}

	_, err := r.buf.Write(buffer.Bytes())
	return err
}
