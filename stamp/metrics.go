package stamp

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/encoding/charmap"
)

// Metrics holds the advance widths of a parsed font, in font units,
// for every character reachable through the WinAnsi code page.
type Metrics struct {
	unitsPerEm int
	widths     map[rune]int
}

// ParseFont parses a TrueType or OpenType font and extracts its
// PostScript name and the metrics needed for width tables and line
// measurement.
func ParseFont(data []byte) (string, *Metrics, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return "", nil, fmt.Errorf("parse font: %w", err)
	}

	var buf sfnt.Buffer
	name, err := f.Name(&buf, sfnt.NameIDPostScript)
	if err != nil || name == "" {
		name = "EmbeddedFont"
	}
	name = sanitizeFontName(name)

	m := &Metrics{
		unitsPerEm: int(f.UnitsPerEm()),
		widths:     make(map[rune]int),
	}
	if m.unitsPerEm == 0 {
		m.unitsPerEm = 1000
	}
	for code := 32; code < 256; code++ {
		r := charmap.Windows1252.DecodeByte(byte(code))
		if r == utf8.RuneError {
			continue
		}
		index, err := f.GlyphIndex(&buf, r)
		if err != nil || index == 0 {
			continue
		}
		advance, err := f.GlyphAdvance(&buf, index, fixed.I(m.unitsPerEm), font.HintingNone)
		if err != nil {
			continue
		}
		m.widths[r] = advance.Round()
	}
	return name, m, nil
}

// StringWidth measures text at the given size in points. Characters
// without a glyph fall back to half an em, the same default the width
// table uses.
func (m *Metrics) StringWidth(text string, size float64) float64 {
	if m == nil || len(m.widths) == 0 {
		return float64(len(text)) * size * 0.5
	}
	var units int
	for _, r := range text {
		w, ok := m.widths[r]
		if !ok {
			w = m.unitsPerEm / 2
		}
		units += w
	}
	return float64(units) * size / float64(m.unitsPerEm)
}

// WidthsArray returns the advance widths for byte codes 32 through
// 255 under WinAnsi, scaled to the 1000 units per em that font
// dictionaries expect.
func (m *Metrics) WidthsArray() []int {
	widths := make([]int, 0, 224)
	for code := 32; code < 256; code++ {
		w := m.unitsPerEm / 2
		r := charmap.Windows1252.DecodeByte(byte(code))
		if r != utf8.RuneError {
			if known, ok := m.widths[r]; ok {
				w = known
			}
		}
		widths = append(widths, w*1000/m.unitsPerEm)
	}
	return widths
}

// sanitizeFontName strips characters that cannot appear in a name
// object, keeping the rest of the PostScript name intact.
func sanitizeFontName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r > '!' && r <= '~' && !strings.ContainsRune("()<>[]{}/%#", r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "EmbeddedFont"
	}
	return b.String()
}
