package sign

import (
	"bytes"
	"fmt"

	"github.com/digitorus/pdf"
)

// updateCatalog supersedes the document catalog with a copy whose
// interactive form lists the given additional fields. When docMDP is
// non zero a Perms entry pointing at that signature certifies the
// document. All other catalog entries carry over unchanged.
func (r *Revision) updateCatalog(newFieldIDs []uint32, docMDP uint32) (uint32, error) {
	catalog := r.rdr.Trailer().Key("Root")
	catalogID := catalog.GetPtr().GetID()
	if catalogID == 0 {
		return 0, structuralf("catalog", "document catalog is not an indirect object")
	}

	buffer := bytes.NewBuffer(nil)
	buffer.WriteString("<< /Type /Catalog\n")
	for _, key := range catalog.Keys() {
		switch {
		case key == "Type" || key == "AcroForm":
			continue
		case key == "Perms" && docMDP != 0:
			continue
		}
		fmt.Fprintf(buffer, "  /%s %s\n", key, serializeValue(catalog.Key(key)))
	}

	acroForm := catalog.Key("AcroForm")
	buffer.WriteString("  /AcroForm << /Fields [")
	if fields := acroForm.Key("Fields"); fields.Kind() == pdf.Array {
		for i := 0; i < fields.Len(); i++ {
			buffer.WriteString(" " + serializeValue(fields.Index(i)))
		}
	}
	for _, id := range newFieldIDs {
		fmt.Fprintf(buffer, " %d 0 R", id)
	}
	buffer.WriteString(" ] /SigFlags 3")
	if acroForm.Kind() == pdf.Dict {
		for _, key := range acroForm.Keys() {
			if key == "Fields" || key == "SigFlags" {
				continue
			}
			fmt.Fprintf(buffer, " /%s %s", key, serializeValue(acroForm.Key(key)))
		}
	}
	buffer.WriteString(" >>\n")

	if docMDP != 0 {
		fmt.Fprintf(buffer, "  /Perms << /DocMDP %d 0 R", docMDP)
		if perms := catalog.Key("Perms"); perms.Kind() == pdf.Dict {
			for _, key := range perms.Keys() {
				if key == "DocMDP" {
					continue
				}
				fmt.Fprintf(buffer, " /%s %s", key, serializeValue(perms.Key(key)))
			}
		}
		buffer.WriteString(" >>\n")
	}

	buffer.WriteString(">>")
	if err := r.UpdateObject(catalogID, buffer.Bytes()); err != nil {
		return 0, err
	}
	return catalogID, nil
}
