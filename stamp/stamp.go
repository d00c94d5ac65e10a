// Package stamp renders visible signature appearances. A Style
// describes what the stamp looks like (text template, font, optional
// background image and border) and produces renderers that draw a
// form XObject sized to the signature widget rectangle.
//
// Styles are plain data until Renderer is called, so one Style can
// serve any number of signatures with different variable values.
package stamp

import (
	"fmt"
	"os"
	"time"

	"github.com/pdfseal/pdfseal/config"
	"github.com/pdfseal/pdfseal/sign"
)

// DefaultContent is the text template used when a style does not
// declare its own. Line breaks separate stamp lines.
const DefaultContent = "Digitally signed by {{Name}}\n{{Date}}"

// Style describes the visual layout of a signature stamp.
type Style struct {
	// Content is the text template. {{Name}}, {{Date}}, {{Reason}}
	// and {{Location}} expand per signature; unknown variables are
	// left in place. Newlines start new lines on the stamp.
	Content string

	// FontSize fixes the text size in points. Zero selects the
	// largest size at which every line fits the widget rectangle.
	FontSize float64

	// BorderWidth draws a rectangular border of the given width in
	// points around the stamp. Zero disables the border.
	BorderWidth float64

	fontName   string
	fontData   []byte
	metrics    *Metrics
	background []byte
}

// New returns a style with the default text template and the standard
// Helvetica font, which every reader provides without embedding.
func New() *Style {
	return &Style{Content: DefaultContent, fontName: "Helvetica"}
}

// FromConfig builds a style from its configuration entry, loading the
// font file and background image eagerly so that signing cannot fail
// midway through on a bad path. A nil entry yields the default style.
func FromConfig(c *config.StampStyle) (*Style, error) {
	s := New()
	if c == nil {
		return s, nil
	}
	if c.Content != "" {
		s.Content = c.Content
	}
	s.FontSize = c.FontSize
	s.BorderWidth = c.BorderWidth
	if c.FontFile != "" {
		data, err := os.ReadFile(c.FontFile)
		if err != nil {
			return nil, fmt.Errorf("load stamp font: %w", err)
		}
		name, metrics, err := ParseFont(data)
		if err != nil {
			return nil, fmt.Errorf("parse stamp font %s: %w", c.FontFile, err)
		}
		s.fontName = name
		s.fontData = data
		s.metrics = metrics
	}
	if c.Background != "" {
		data, err := os.ReadFile(c.Background)
		if err != nil {
			return nil, fmt.Errorf("load stamp background: %w", err)
		}
		s.background = data
	}
	return s, nil
}

// Vars carries the per-signature values substituted into the text
// template.
type Vars struct {
	Name     string
	Reason   string
	Location string
	Date     time.Time
}

// Renderer returns an appearance renderer that draws this style with
// the given variables. The result plugs into sign.Appearance.
func (s *Style) Renderer(vars Vars) sign.AppearanceRenderer {
	return func(w sign.ObjectWriter, rect [4]float64) ([]byte, error) {
		return s.render(w, rect, vars)
	}
}
