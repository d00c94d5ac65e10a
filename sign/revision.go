package sign

import (
	"fmt"
	"io"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"
)

// ObjectWriter appends indirect objects to the revision under
// construction. Appearance renderers receive it to register supporting
// objects such as images and fonts.
type ObjectWriter interface {
	AddObject(body []byte) (uint32, error)
}

type xrefEntry struct {
	ID     uint32
	Offset int64
}

// Revision stages one incremental update: a copy of the base document
// followed by added and superseded objects, closed by a cross
// reference section and trailer. Prior bytes are never touched.
type Revision struct {
	buf *filebuffer.Buffer
	rdr *pdf.Reader

	baseSize      int64
	lastID        uint32
	added         []xrefEntry
	updated       []xrefEntry
	updatedIndex  map[uint32]int
	compressLevel int

	xrefStart int64
}

// newRevision copies the base document into the staging buffer and
// prepares object bookkeeping. The base document is validated enough
// to guarantee the appended revision can reference it.
func newRevision(input io.ReadSeeker, rdr *pdf.Reader, size int64, compressLevel int) (*Revision, error) {
	trailer := rdr.Trailer()
	if !trailer.Key("Encrypt").IsNull() {
		return nil, structuralf("open", "encrypted documents are not supported")
	}
	lastID := trailer.Key("Size").Int64()
	if lastID <= 0 {
		return nil, structuralf("open", "trailer has no valid Size entry")
	}
	if trailer.Key("Root").Kind() != pdf.Dict {
		return nil, structuralf("open", "trailer has no document catalog")
	}

	buf := filebuffer.New(nil)
	if _, err := input.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek input: %w", err)
	}
	if n, err := io.Copy(buf, input); err != nil {
		return nil, fmt.Errorf("copy input: %w", err)
	} else if n != size {
		return nil, structuralf("open", "input is %d bytes, expected %d", n, size)
	}

	// Separate the new revision from the previous one. Readers accept
	// a missing final newline, appended objects do not.
	if _, err := buf.Write([]byte("\n")); err != nil {
		return nil, err
	}

	return &Revision{
		buf:           buf,
		rdr:           rdr,
		baseSize:      size,
		lastID:        uint32(lastID) - 1,
		updatedIndex:  make(map[uint32]int),
		compressLevel: compressLevel,
	}, nil
}

// len returns the current size of the staged output.
func (r *Revision) len() int64 {
	return int64(r.buf.Buff.Len())
}

// nextID returns the object number the next AddObject call will use.
func (r *Revision) nextID() uint32 {
	return r.lastID + uint32(len(r.added)) + 1
}

// AddObject appends a new indirect object and returns its number.
func (r *Revision) AddObject(body []byte) (uint32, error) {
	id, _, err := r.addObject(body)
	return id, err
}

// addObject appends a new indirect object and returns its number and
// the absolute offset at which the object body starts.
func (r *Revision) addObject(body []byte) (uint32, int64, error) {
	id := r.nextID()
	start := r.len()

	header := fmt.Sprintf("%d 0 obj\n", id)
	if _, err := r.buf.Write([]byte(header)); err != nil {
		return 0, 0, err
	}
	bodyStart := r.len()
	if _, err := r.buf.Write(body); err != nil {
		return 0, 0, err
	}
	if _, err := r.buf.Write([]byte("\nendobj\n")); err != nil {
		return 0, 0, err
	}

	r.added = append(r.added, xrefEntry{ID: id, Offset: start})
	return id, bodyStart, nil
}

// UpdateObject stages a superseding copy of an existing object.
// Updating the same object twice keeps only the last version in the
// cross reference section.
func (r *Revision) UpdateObject(id uint32, body []byte) error {
	if id == 0 || id > r.lastID {
		return fmt.Errorf("cannot update object %d: not part of the base document", id)
	}

	start := r.len()
	if _, err := fmt.Fprintf(r.buf, "%d 0 obj\n", id); err != nil {
		return err
	}
	if _, err := r.buf.Write(body); err != nil {
		return err
	}
	if _, err := r.buf.Write([]byte("\nendobj\n")); err != nil {
		return err
	}

	if i, ok := r.updatedIndex[id]; ok {
		r.updated[i].Offset = start
		return nil
	}
	r.updatedIndex[id] = len(r.updated)
	r.updated = append(r.updated, xrefEntry{ID: id, Offset: start})
	return nil
}

// finalize writes the cross reference section and trailer matching the
// base document's style. After finalize only in place patching of
// reserved placeholders may modify the buffer.
func (r *Revision) finalize(catalogID uint32) error {
	switch r.rdr.XrefInformation.Type {
	case "table":
		r.xrefStart = r.len()
		if err := r.writeXrefTable(); err != nil {
			return err
		}
		return r.writeTableTrailer(catalogID)
	case "stream":
		r.xrefStart = r.len()
		if err := r.writeXrefStreamObject(catalogID); err != nil {
			return err
		}
		return r.writeStartxref()
	default:
		return structuralf("finalize", "unknown xref type %q", r.rdr.XrefInformation.Type)
	}
}

func (r *Revision) writeStartxref() error {
	_, err := fmt.Fprintf(r.buf, "startxref\n%d\n%%%%EOF\n", r.xrefStart)
	return err
}

// patch overwrites length bytes at the given offset. The staged size
// never changes, so reserved regions can be filled after finalize.
func (r *Revision) patch(offset int64, data []byte) error {
	if offset < r.baseSize {
		return fmt.Errorf("refusing to patch base document bytes at offset %d", offset)
	}
	if offset+int64(len(data)) > r.len() {
		return fmt.Errorf("patch at offset %d overruns staged output", offset)
	}
	if _, err := r.buf.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	if _, err := r.buf.Write(data); err != nil {
		return err
	}
	_, err := r.buf.Seek(0, io.SeekEnd)
	return err
}

// bytes exposes the staged output. The slice remains owned by the
// revision and is only valid until the next write.
func (r *Revision) bytes() []byte {
	return r.buf.Buff.Bytes()
}

// writeTo copies the staged output to w.
func (r *Revision) writeTo(w io.Writer) error {
	_, err := w.Write(r.buf.Buff.Bytes())
	return err
}
