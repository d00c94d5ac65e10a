package sign

import (
	"fmt"
	"strings"

	"github.com/digitorus/pdf"
)

// FieldState classifies a signature field for selection purposes.
type FieldState int

const (
	FieldEmpty FieldState = iota + 1
	FieldFilled
	FieldMalformed
)

func (fs FieldState) String() string {
	switch fs {
	case FieldEmpty:
		return "EMPTY"
	case FieldFilled:
		return "FILLED"
	case FieldMalformed:
		return "MALFORMED"
	}
	return "UNKNOWN"
}

// FieldInfo describes one signature field of a document. Name is the
// fully qualified field name with dots separating parent fields. Page
// is 1 based and zero when the widget could not be located on a page.
type FieldInfo struct {
	Name     string
	State    FieldState
	Page     int
	Rect     [4]float64
	ObjectID uint32

	value pdf.Value
}

// pageIndex maps object numbers back to 1 based page numbers, both
// for page objects themselves and for the annotations they list.
type pageIndex struct {
	pages  map[uint32]int
	annots map[uint32]int
	count  int
}

func buildPageIndex(rdr *pdf.Reader) *pageIndex {
	idx := &pageIndex{
		pages:  make(map[uint32]int),
		annots: make(map[uint32]int),
	}
	seen := make(map[uint32]bool)
	idx.walk(rdr.Trailer().Key("Root").Key("Pages"), seen)
	return idx
}

func (idx *pageIndex) walk(node pdf.Value, seen map[uint32]bool) {
	if node.Kind() != pdf.Dict {
		return
	}
	if id := node.GetPtr().GetID(); id != 0 {
		if seen[id] {
			return
		}
		seen[id] = true
	}

	switch node.Key("Type").Name() {
	case "Pages":
		kids := node.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			idx.walk(kids.Index(i), seen)
		}
	case "Page":
		idx.count++
		if id := node.GetPtr().GetID(); id != 0 {
			idx.pages[id] = idx.count
		}
		annots := node.Key("Annots")
		for i := 0; i < annots.Len(); i++ {
			if id := annots.Index(i).GetPtr().GetID(); id != 0 {
				idx.annots[id] = idx.count
			}
		}
	}
}

// EnumerateFields walks the interactive form and returns every
// signature field, including non terminal descendants reached through
// Kids. Documents without a form yield an empty list.
func EnumerateFields(rdr *pdf.Reader) ([]FieldInfo, error) {
	catalog := rdr.Trailer().Key("Root")
	if catalog.Kind() != pdf.Dict {
		return nil, structuralf("fields", "document has no catalog")
	}
	fields := catalog.Key("AcroForm").Key("Fields")
	if fields.Kind() != pdf.Array {
		return nil, nil
	}

	idx := buildPageIndex(rdr)
	seen := make(map[uint32]bool)
	var out []FieldInfo
	for i := 0; i < fields.Len(); i++ {
		collectSignatureFields(fields.Index(i), "", "", idx, seen, &out)
	}
	return out, nil
}

func collectSignatureFields(field pdf.Value, prefix, parentFT string, idx *pageIndex, seen map[uint32]bool, out *[]FieldInfo) {
	if field.Kind() != pdf.Dict {
		return
	}
	id := field.GetPtr().GetID()
	if id != 0 {
		if seen[id] {
			return
		}
		seen[id] = true
	}

	name := prefix
	hasPartialName := field.Key("T").Kind() == pdf.String
	if hasPartialName {
		if name != "" {
			name += "."
		}
		name += field.Key("T").Text()
	}

	ft := parentFT
	if f := field.Key("FT"); f.Kind() == pdf.Name {
		ft = f.Name()
	}

	// Kids carrying their own partial names are child fields, kids
	// without one are widget annotations of this terminal field.
	kids := field.Key("Kids")
	if kids.Kind() == pdf.Array && kids.Len() > 0 {
		childFields := false
		for i := 0; i < kids.Len(); i++ {
			if kids.Index(i).Key("T").Kind() == pdf.String {
				childFields = true
				break
			}
		}
		if childFields {
			for i := 0; i < kids.Len(); i++ {
				collectSignatureFields(kids.Index(i), name, ft, idx, seen, out)
			}
			return
		}
	}

	if ft != "Sig" {
		return
	}

	info := FieldInfo{
		Name:     name,
		State:    FieldEmpty,
		ObjectID: id,
		value:    field,
	}
	if !hasPartialName {
		info.State = FieldMalformed
	}
	if v := field.Key("V"); !v.IsNull() {
		if v.Kind() == pdf.Dict && info.State != FieldMalformed {
			info.State = FieldFilled
		} else {
			info.State = FieldMalformed
		}
	}

	widget := field
	widgetID := id
	if kids.Kind() == pdf.Array && kids.Len() > 0 {
		widget = kids.Index(0)
		widgetID = widget.GetPtr().GetID()
	}
	if rect, ok := rectFromValue(widget.Key("Rect")); ok {
		info.Rect = rect
	} else if !widget.Key("Rect").IsNull() && info.State == FieldEmpty {
		info.State = FieldMalformed
	}
	if pageID := widget.Key("P").GetPtr().GetID(); pageID != 0 {
		info.Page = idx.pages[pageID]
	}
	if info.Page == 0 {
		info.Page = idx.annots[widgetID]
	}

	*out = append(*out, info)
}

func rectFromValue(v pdf.Value) ([4]float64, bool) {
	var rect [4]float64
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return rect, false
	}
	for i := 0; i < 4; i++ {
		n := v.Index(i)
		switch n.Kind() {
		case pdf.Integer:
			rect[i] = float64(n.Int64())
		case pdf.Real:
			rect[i] = n.Float64()
		default:
			return rect, false
		}
	}
	return rect, true
}

// fieldTarget is the outcome of field resolution. Either an existing
// empty field is selected or a fresh field with the given name must
// be created.
type fieldTarget struct {
	existing *FieldInfo
	name     string
}

func resolveField(fields []FieldInfo, opts FieldOptions) (fieldTarget, error) {
	if opts.Name != "" {
		for i := range fields {
			f := &fields[i]
			if f.Name != opts.Name {
				continue
			}
			switch f.State {
			case FieldFilled:
				return fieldTarget{}, &FieldResolutionError{Field: opts.Name, Reason: "field already holds a signature"}
			case FieldMalformed:
				return fieldTarget{}, &FieldResolutionError{Field: opts.Name, Reason: "field structure is malformed"}
			}
			return fieldTarget{existing: f, name: f.Name}, nil
		}
		if opts.ExistingOnly {
			return fieldTarget{}, &FieldResolutionError{Field: opts.Name, Reason: "no signature field with this name"}
		}
		if strings.ContainsRune(opts.Name, '.') {
			return fieldTarget{}, &FieldResolutionError{Field: opts.Name, Reason: "periods separate parent and child fields and cannot appear in a name"}
		}
		return fieldTarget{name: opts.Name}, nil
	}

	var empty []*FieldInfo
	for i := range fields {
		if fields[i].State == FieldEmpty {
			empty = append(empty, &fields[i])
		}
	}
	switch {
	case len(empty) == 1:
		return fieldTarget{existing: empty[0], name: empty[0].Name}, nil
	case len(empty) > 1:
		names := make([]string, len(empty))
		for i, f := range empty {
			names[i] = f.Name
		}
		return fieldTarget{}, &FieldResolutionError{Reason: fmt.Sprintf("multiple empty signature fields, pick one of: %s", strings.Join(names, ", "))}
	case opts.ExistingOnly:
		return fieldTarget{}, &FieldResolutionError{Reason: "document has no empty signature field"}
	}
	return fieldTarget{name: freshFieldName(fields)}, nil
}

// freshFieldName returns the lowest numbered Signature name not taken
// by any existing field.
func freshFieldName(fields []FieldInfo) string {
	taken := make(map[string]bool, len(fields))
	for _, f := range fields {
		taken[f.Name] = true
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("Signature%d", i)
		if !taken[name] {
			return name
		}
	}
}
