package sign

import (
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/digitorus/pdf"
)

// FieldSpec describes one empty signature field to add: where it goes
// and what it is called.
type FieldSpec struct {
	Name string

	// Page receiving the widget, 1-based. Zero means the first page.
	Page int

	// Rect is the widget rectangle. The zero rectangle creates an
	// invisible field.
	Rect [4]float64
}

func (s FieldSpec) validate() error {
	if s.Name == "" {
		return &FieldResolutionError{Reason: "field name must not be empty"}
	}
	if strings.ContainsRune(s.Name, '.') {
		return &FieldResolutionError{Field: s.Name, Reason: "periods separate parent and child fields and cannot appear in a name"}
	}
	if s.Page < 0 {
		return &FieldResolutionError{Field: s.Name, Reason: "page number must be positive"}
	}
	rect := s.Rect
	if rect != [4]float64{} && (rect[2]-rect[0] < 1 || rect[3]-rect[1] < 1) {
		return &FieldResolutionError{Field: s.Name, Reason: "rectangle is empty"}
	}
	return nil
}

// AppendFieldsFile adds empty signature fields to the document at
// input and writes the result to output.
func AppendFieldsFile(input string, output string, specs ...FieldSpec) error {
	inputFile, err := os.Open(input)
	if err != nil {
		return err
	}
	defer func() {
		_ = inputFile.Close()
	}()

	finfo, err := inputFile.Stat()
	if err != nil {
		return err
	}
	size := finfo.Size()

	rdr, err := pdf.NewReader(inputFile, size)
	if err != nil {
		return structuralf("open", "parse document: %v", err)
	}

	staged, err := appendFields(inputFile, rdr, size, specs)
	if err != nil {
		return err
	}
	return os.WriteFile(output, staged, 0644)
}

// AppendFields adds empty signature fields in a single incremental
// update, ready to be filled by later signing operations.
func AppendFields(input io.ReadSeeker, output io.Writer, rdr *pdf.Reader, size int64, specs ...FieldSpec) error {
	staged, err := appendFields(input, rdr, size, specs)
	if err != nil {
		return err
	}
	_, err = output.Write(staged)
	return err
}

func appendFields(input io.ReadSeeker, rdr *pdf.Reader, size int64, specs []FieldSpec) (_ []byte, err error) {
	// The underlying parser panics on malformed structures.
	defer func() {
		if r := recover(); r != nil {
			err = structuralf("parse", "malformed document: %v", r)
		}
	}()

	if len(specs) == 0 {
		return nil, fmt.Errorf("no fields to add")
	}

	docMDP := rdr.Trailer().Key("Root").Key("Perms").Key("DocMDP")
	if !docMDP.IsNull() && docMDPPermOf(docMDP) == PermNoChanges {
		return nil, fmt.Errorf("%w and permits no further changes", ErrAlreadyCertified)
	}

	existing, err := EnumerateFields(rdr)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(existing))
	for _, f := range existing {
		taken[f.Name] = true
	}
	for _, spec := range specs {
		if err := spec.validate(); err != nil {
			return nil, err
		}
		if taken[spec.Name] {
			return nil, &FieldResolutionError{Field: spec.Name, Reason: "a field with this name already exists"}
		}
		taken[spec.Name] = true
	}

	rev, err := newRevision(input, rdr, size, zlib.DefaultCompression)
	if err != nil {
		return nil, err
	}

	// Widgets are grouped per page so each page object is superseded
	// exactly once, in the order pages are first referenced.
	var fieldIDs []uint32
	var pageOrder []uint32
	byPage := make(map[uint32][]uint32)
	pageValues := make(map[uint32]pdf.Value)

	for _, spec := range specs {
		pageNum := spec.Page
		if pageNum == 0 {
			pageNum = 1
		}
		page, err := findPage(rdr, pageNum)
		if err != nil {
			return nil, err
		}
		pageID := page.GetPtr().GetID()

		widgetID, err := rev.AddObject(widgetBody(spec.Name, 0, spec.Rect, pageID, 0))
		if err != nil {
			return nil, err
		}
		fieldIDs = append(fieldIDs, widgetID)

		if _, ok := byPage[pageID]; !ok {
			pageOrder = append(pageOrder, pageID)
			pageValues[pageID] = page
		}
		byPage[pageID] = append(byPage[pageID], widgetID)
	}

	for _, pageID := range pageOrder {
		if err := rev.addWidgetToPage(pageValues[pageID], byPage[pageID]...); err != nil {
			return nil, err
		}
	}

	catalogID, err := rev.updateCatalog(fieldIDs, 0)
	if err != nil {
		return nil, err
	}
	if err := rev.finalize(catalogID); err != nil {
		return nil, err
	}
	return rev.bytes(), nil
}
