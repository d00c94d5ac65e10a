package sign

import (
	"crypto"
	"encoding/asn1"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/digitorus/pdf"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// pdfString renders a text string: UTF-16BE with BOM when the text is
// not ASCII, an escaped literal string otherwise.
func pdfString(text string) string {
	if !isASCII(text) {
		enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
		res, _, err := transform.String(enc, text)
		if err != nil {
			panic(err)
		}
		return "(" + res + ")"
	}

	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, ")", "\\)")
	text = strings.ReplaceAll(text, "(", "\\(")
	text = strings.ReplaceAll(text, "\r", "\\r")
	text = strings.ReplaceAll(text, "\n", "\\n")
	return "(" + text + ")"
}

// pdfRawString renders a string object preserving its exact bytes,
// using hex form when the content is not printable.
func pdfRawString(raw string) string {
	printable := true
	for i := 0; i < len(raw); i++ {
		if raw[i] < 0x20 || raw[i] > 0x7e {
			printable = false
			break
		}
	}
	if printable {
		return pdfString(raw)
	}
	return fmt.Sprintf("<%X>", raw)
}

// pdfDateTime renders a date as D:YYYYMMDDHHMMSS with the timezone
// offset in the PDF notation.
func pdfDateTime(date time.Time) string {
	_, offset := date.Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := offset / 3600
	minutes := offset % 3600 / 60

	return pdfString(fmt.Sprintf("D:%s%s%02d'%02d'", date.Format("20060102150405"), sign, hours, minutes))
}

// pdfFloat renders a real number without an exponent, as required by
// the PDF syntax.
func pdfFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > '\u007F' {
			return false
		}
	}
	return true
}

// validPDFName reports whether s can be written as a name or text
// token without escaping. Field names are restricted to this set so
// they survive round trips through every reader.
func validPDFName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == ' ':
		default:
			return false
		}
	}
	return true
}

var hashOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA1:   asn1.ObjectIdentifier([]int{1, 3, 14, 3, 2, 26}),
	crypto.SHA256: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 1}),
	crypto.SHA384: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 2}),
	crypto.SHA512: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 3}),
}

func getOIDFromHashAlgorithm(target crypto.Hash) asn1.ObjectIdentifier {
	for hash, oid := range hashOIDs {
		if hash == target {
			return oid
		}
	}
	return nil
}

// serializeValue renders a parsed object back to PDF syntax. Values
// that were reached through an indirect reference are written as the
// reference itself, everything else inline. Streams are always
// indirect so only their reference is written.
func serializeValue(v pdf.Value) string {
	if ptr := v.GetPtr(); ptr.GetID() > 0 {
		return fmt.Sprintf("%d %d R", ptr.GetID(), ptr.GetGen())
	}
	return serializeInline(v)
}

func serializeInline(v pdf.Value) string {
	switch v.Kind() {
	case pdf.Null:
		return "null"
	case pdf.Bool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case pdf.Integer:
		return strconv.FormatInt(v.Int64(), 10)
	case pdf.Real:
		return pdfFloat(v.Float64())
	case pdf.String:
		return pdfRawString(v.RawString())
	case pdf.Name:
		return "/" + v.Name()
	case pdf.Array:
		var sb strings.Builder
		sb.WriteString("[")
		for i := 0; i < v.Len(); i++ {
			sb.WriteString(" ")
			sb.WriteString(serializeValue(v.Index(i)))
		}
		sb.WriteString(" ]")
		return sb.String()
	case pdf.Dict, pdf.Stream:
		var sb strings.Builder
		sb.WriteString("<<")
		for _, key := range v.Keys() {
			sb.WriteString(" /")
			sb.WriteString(key)
			sb.WriteString(" ")
			sb.WriteString(serializeValue(v.Key(key)))
		}
		sb.WriteString(" >>")
		return sb.String()
	}
	return "null"
}

// findPage walks the page tree and returns the page with the given
// 1-based number.
func findPage(rdr *pdf.Reader, pageNum int) (pdf.Value, error) {
	if pageNum < 1 {
		return pdf.Value{}, structuralf("find page", "invalid page number %d", pageNum)
	}
	pages := rdr.Trailer().Key("Root").Key("Pages")
	if pages.IsNull() {
		return pdf.Value{}, structuralf("find page", "document has no page tree")
	}
	page, remaining := findPageRec(pages, pageNum)
	if page.Kind() == pdf.Null {
		return pdf.Value{}, structuralf("find page", "page %d not found (%d pages missing)", pageNum, remaining)
	}
	return page, nil
}

func findPageRec(node pdf.Value, pageNum int) (pdf.Value, int) {
	switch node.Key("Type").Name() {
	case "Page":
		if pageNum == 1 {
			return node, 0
		}
		return pdf.Value{}, pageNum - 1
	case "Pages":
		kids := node.Key("Kids")
		if kids.Kind() != pdf.Array {
			return pdf.Value{}, pageNum
		}
		for i := 0; i < kids.Len(); i++ {
			page, n := findPageRec(kids.Index(i), pageNum)
			if page.Kind() != pdf.Null {
				return page, 0
			}
			pageNum = n
		}
	}
	return pdf.Value{}, pageNum
}
