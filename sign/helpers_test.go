package sign

import (
	"crypto"
	"testing"
	"time"

	"github.com/pdfseal/pdfseal/internal/testpdf"
)

func TestPDFString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Jane Doe", "(Jane Doe)"},
		{"parentheses", "a(b)c", `(a\(b\)c)`},
		{"backslash", `a\b`, `(a\\b)`},
		{"line break", "a\nb", `(a\nb)`},
		{"carriage return", "a\rb", `(a\rb)`},
		{"unicode", "Žürich", "(\xfe\xff\x01\x7d\x00\xfc\x00\x72\x00\x69\x00\x63\x00\x68)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pdfString(tt.in); got != tt.want {
				t.Errorf("pdfString(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPDFRawString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc", "(abc)"},
		{"\x01\x02", "<0102>"},
		{"ab\x00", "<616200>"},
	}
	for _, tt := range tests {
		if got := pdfRawString(tt.in); got != tt.want {
			t.Errorf("pdfRawString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPDFDateTime(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want string
	}{
		{"utc", time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), "(D:20260102150405+00'00')"},
		{"east", time.Date(2026, 1, 2, 15, 4, 5, 0, time.FixedZone("IST", 5*3600+30*60)), "(D:20260102150405+05'30')"},
		{"west", time.Date(2026, 1, 2, 15, 4, 5, 0, time.FixedZone("MST", -7*3600)), "(D:20260102150405-07'00')"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pdfDateTime(tt.date); got != tt.want {
				t.Errorf("pdfDateTime(%v) = %q, want %q", tt.date, got, tt.want)
			}
		})
	}
}

func TestPDFFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{2, "2"},
		{1.5, "1.5"},
		{0.125, "0.125"},
		{-3.25, "-3.25"},
	}
	for _, tt := range tests {
		if got := pdfFloat(tt.in); got != tt.want {
			t.Errorf("pdfFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidPDFName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Signature1", true},
		{"with space", true},
		{"dash-dot._ok", true},
		{"", false},
		{"naïve", false},
		{"slash/", false},
		{"tab\tstop", false},
	}
	for _, tt := range tests {
		if got := validPDFName(tt.in); got != tt.want {
			t.Errorf("validPDFName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSerializeValue(t *testing.T) {
	rdr := readDocument(t, testpdf.WithEmptyFields("A"))
	fields, err := EnumerateFields(rdr)
	if err != nil || len(fields) != 1 {
		t.Fatalf("fixture fields: %v, %v", fields, err)
	}
	field := fields[0].value
	catalog := rdr.Trailer().Key("Root")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"indirect dict", serializeValue(catalog), "1 0 R"},
		{"indirect field", serializeValue(field), "6 0 R"},
		{"name", serializeValue(field.Key("FT")), "/Sig"},
		{"string", serializeValue(field.Key("T")), "(A)"},
		{"integer", serializeValue(field.Key("F")), "4"},
		{"array", serializeValue(field.Key("Rect")), "[ 150 100 400 150 ]"},
		{"reference in dict", serializeValue(field.Key("P")), "3 0 R"},
		{"inline dict", serializeValue(catalog.Key("AcroForm")), "<< /Fields [ 6 0 R ] /SigFlags 3 >>"},
		{"null", serializeValue(catalog.Key("Nope")), "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestFindPage(t *testing.T) {
	rdr := readDocument(t, testpdf.MultiPage(3))

	seen := make(map[uint32]bool)
	for pageNum := 1; pageNum <= 3; pageNum++ {
		page, err := findPage(rdr, pageNum)
		if err != nil {
			t.Fatalf("find page %d: %v", pageNum, err)
		}
		if page.Key("Type").Name() != "Page" {
			t.Errorf("page %d resolved to a %s object", pageNum, page.Key("Type").Name())
		}
		id := page.GetPtr().GetID()
		if seen[id] {
			t.Errorf("page %d resolved to an already seen object %d", pageNum, id)
		}
		seen[id] = true
	}

	if _, err := findPage(rdr, 0); err == nil {
		t.Error("page 0 was accepted")
	}
	if _, err := findPage(rdr, 4); err == nil {
		t.Error("page beyond the document was accepted")
	}
}

func TestHashOIDLookup(t *testing.T) {
	if oid := getOIDFromHashAlgorithm(crypto.SHA256); !oid.Equal(hashOIDs[crypto.SHA256]) {
		t.Errorf("SHA-256 resolved to %v", oid)
	}
	if oid := getOIDFromHashAlgorithm(crypto.MD5); oid != nil {
		t.Errorf("MD5 resolved to %v, want none", oid)
	}
}
