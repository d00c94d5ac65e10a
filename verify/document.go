package verify

import (
	"strings"
	"time"

	"github.com/digitorus/pdf"

	"github.com/pdfseal/pdfseal/common"
)

// parseDocumentInfo fills info from the document information
// dictionary and the page tree. Damaged or missing entries are left at
// their zero value, metadata never fails a verification.
func parseDocumentInfo(rdr *pdf.Reader, info *common.DocumentInfo) {
	if pages := rdr.Trailer().Key("Root").Key("Pages").Key("Count"); pages.Kind() == pdf.Integer {
		info.Pages = int(pages.Int64())
	}

	dict := rdr.Trailer().Key("Info")
	if dict.Kind() != pdf.Dict {
		return
	}

	str := func(key string) string {
		if v := dict.Key(key); v.Kind() == pdf.String {
			return v.Text()
		}
		return ""
	}

	info.Author = str("Author")
	info.Creator = str("Creator")
	info.Hash = str("Hash")
	info.Name = str("Name")
	info.Permission = str("Permission")
	info.Producer = str("Producer")
	info.Subject = str("Subject")
	info.Title = str("Title")

	if kw := str("Keywords"); kw != "" {
		info.Keywords = parseKeywords(kw)
	}
	if v := str("CreationDate"); v != "" {
		if t, err := parseDate(v); err == nil {
			info.CreationDate = t
		}
	}
	if v := str("ModDate"); v != "" {
		if t, err := parseDate(v); err == nil {
			info.ModDate = t
		}
	}
}

// parseDate parses a PDF formatted date of the form
// D:YYYYMMDDHHmmSSOHH'mm' where O is +, - or Z. Dropping the quotes
// first lets one layout cover whole and half hour offsets alike.
func parseDate(v string) (time.Time, error) {
	return time.Parse("D:20060102150405Z0700", strings.ReplaceAll(v, "'", ""))
}

// parseKeywords splits the Keywords metadata entry. Commas and
// semicolons are the common separators, bare spaces the fallback.
func parseKeywords(value string) []string {
	separators := []string{", ", ": ", ",", ":", " ", "; ", ";", " ;"}
	for _, s := range separators {
		if strings.Contains(value, s) {
			return strings.Split(value, s)
		}
	}
	return []string{value}
}
