package sign

import (
	"bytes"
	"fmt"

	"github.com/digitorus/pdf"
)

// buildAppearance runs the configured renderer and registers the
// resulting appearance stream. Returns zero when no renderer is set.
func (r *Revision) buildAppearance(app Appearance) (uint32, error) {
	if app.Renderer == nil {
		return 0, nil
	}
	body, err := app.Renderer(r, app.Rect)
	if err != nil {
		return 0, fmt.Errorf("render appearance: %w", err)
	}
	return r.AddObject(body)
}

// widgetBody serializes a signature field merged with its widget
// annotation. A zero sigID leaves the field empty, a zero apID omits
// the appearance.
func widgetBody(name string, sigID uint32, rect [4]float64, pageID uint32, apID uint32) []byte {
	buffer := bytes.NewBuffer(nil)
	buffer.WriteString("<< /Type /Annot")
	buffer.WriteString(" /Subtype /Widget")
	fmt.Fprintf(buffer, " /Rect [%s %s %s %s]",
		pdfFloat(rect[0]), pdfFloat(rect[1]), pdfFloat(rect[2]), pdfFloat(rect[3]))
	if pageID != 0 {
		fmt.Fprintf(buffer, " /P %d 0 R", pageID)
	}
	buffer.WriteString(" /F 4")
	buffer.WriteString(" /FT /Sig")
	fmt.Fprintf(buffer, " /T %s", pdfString(name))
	buffer.WriteString(" /Ff 0")
	if sigID != 0 {
		fmt.Fprintf(buffer, " /V %d 0 R", sigID)
	}
	if apID != 0 {
		fmt.Fprintf(buffer, " /AP << /N %d 0 R >>", apID)
	}
	buffer.WriteString(" >>")
	return buffer.Bytes()
}

// fillExistingField supersedes an empty signature field with a copy
// whose V points at the signature. A non zero apID also replaces the
// appearance so the stamp reflects this signing.
func (r *Revision) fillExistingField(field *FieldInfo, sigID uint32, apID uint32) error {
	buffer := bytes.NewBuffer(nil)
	buffer.WriteString("<<")
	for _, key := range field.value.Keys() {
		if key == "V" || (key == "AP" && apID != 0) {
			continue
		}
		fmt.Fprintf(buffer, " /%s %s", key, serializeValue(field.value.Key(key)))
	}
	fmt.Fprintf(buffer, " /V %d 0 R", sigID)
	if apID != 0 {
		fmt.Fprintf(buffer, " /AP << /N %d 0 R >>", apID)
	}
	buffer.WriteString(" >>")
	return r.UpdateObject(field.ObjectID, buffer.Bytes())
}

// addWidgetToPage appends widgets to the page's annotation array.
// An indirect Annots array is superseded directly, otherwise the page
// object is superseded with the merged array inline. Widgets landing
// on the same page must arrive in one call, later calls would rebuild
// the array from the base document again.
func (r *Revision) addWidgetToPage(page pdf.Value, widgetIDs ...uint32) error {
	pageID := page.GetPtr().GetID()
	if pageID == 0 {
		return structuralf("widget", "page is not an indirect object")
	}

	annots := page.Key("Annots")
	list := bytes.NewBuffer(nil)
	list.WriteString("[")
	if annots.Kind() == pdf.Array {
		for i := 0; i < annots.Len(); i++ {
			list.WriteString(" " + serializeValue(annots.Index(i)))
		}
	}
	for _, widgetID := range widgetIDs {
		fmt.Fprintf(list, " %d 0 R", widgetID)
	}
	list.WriteString(" ]")

	if annotsID := annots.GetPtr().GetID(); annotsID != 0 {
		return r.UpdateObject(annotsID, list.Bytes())
	}

	buffer := bytes.NewBuffer(nil)
	buffer.WriteString("<<")
	for _, key := range page.Keys() {
		if key == "Annots" {
			continue
		}
		fmt.Fprintf(buffer, " /%s %s", key, serializeValue(page.Key(key)))
	}
	fmt.Fprintf(buffer, " /Annots %s >>", list.Bytes())
	return r.UpdateObject(pageID, buffer.Bytes())
}
