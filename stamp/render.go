package stamp

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/pdfseal/pdfseal/sign"
)

const (
	padding     = 4.0
	lineSpacing = 1.2
	minFontSize = 4.0
	maxAutoSize = 14.0
)

// render assembles the form XObject for one signature. Subsidiary
// objects (font, background image) are registered through w and
// referenced from the form's resource dictionary.
func (s *Style) render(w sign.ObjectWriter, rect [4]float64, vars Vars) ([]byte, error) {
	width := rect[2] - rect[0]
	height := rect[3] - rect[1]
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("appearance rectangle [%s %s %s %s] is empty",
			ft(rect[0]), ft(rect[1]), ft(rect[2]), ft(rect[3]))
	}

	var fonts, xobjects string
	stream := bytes.NewBuffer(nil)
	stream.WriteString("q\n")

	if len(s.background) > 0 {
		imageID, err := registerImage(w, s.background)
		if err != nil {
			return nil, err
		}
		xobjects = fmt.Sprintf(" /XObject << /Im1 %d 0 R >>", imageID)
		fmt.Fprintf(stream, "q %s 0 0 %s 0 0 cm /Im1 Do Q\n", ft(width), ft(height))
	}

	if s.BorderWidth > 0 {
		inset := s.BorderWidth / 2
		fmt.Fprintf(stream, "%s w 0 0 0 RG %s %s %s %s re S\n",
			ft(s.BorderWidth), ft(inset), ft(inset),
			ft(width-s.BorderWidth), ft(height-s.BorderWidth))
	}

	lines := splitLines(Expand(s.Content, vars))
	if len(lines) > 0 {
		fontID, err := s.registerFont(w)
		if err != nil {
			return nil, err
		}
		fonts = fmt.Sprintf(" /Font << /F1 %d 0 R >>", fontID)

		size := s.FontSize
		if size <= 0 {
			size = s.fitSize(lines, width-2*padding, height-2*padding)
		}
		y := height - padding - size
		for _, line := range lines {
			if strings.TrimSpace(line) != "" {
				fmt.Fprintf(stream, "BT /F1 %s Tf 0.2 0.2 0.6 rg %s %s Td <%X> Tj ET\n",
					ft(size), ft(padding), ft(y), winAnsiBytes(line))
			}
			y -= size * lineSpacing
		}
	}

	stream.WriteString("Q")

	body := bytes.NewBuffer(nil)
	fmt.Fprintf(body, "<< /Type /XObject /Subtype /Form /FormType 1 /BBox [0 0 %s %s] /Matrix [1 0 0 1 0 0]",
		ft(width), ft(height))
	if fonts != "" || xobjects != "" {
		fmt.Fprintf(body, " /Resources <<%s%s >>", fonts, xobjects)
	}
	fmt.Fprintf(body, " /Length %d >>\nstream\n", stream.Len())
	body.Write(stream.Bytes())
	body.WriteString("\nendstream")
	return body.Bytes(), nil
}

// registerFont writes the font objects for this style. Without an
// embedded font program a single standard Type1 dictionary suffices,
// otherwise the TrueType program is embedded with its descriptor and
// width table.
func (s *Style) registerFont(w sign.ObjectWriter) (uint32, error) {
	if len(s.fontData) == 0 {
		dict := fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /%s /Encoding /WinAnsiEncoding >>", s.fontName)
		return w.AddObject([]byte(dict))
	}

	compressed := bytes.NewBuffer(nil)
	zw := zlib.NewWriter(compressed)
	if _, err := zw.Write(s.fontData); err != nil {
		return 0, fmt.Errorf("compress font program: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("compress font program: %w", err)
	}

	file := bytes.NewBuffer(nil)
	fmt.Fprintf(file, "<< /Filter /FlateDecode /Length %d /Length1 %d >>\nstream\n",
		compressed.Len(), len(s.fontData))
	file.Write(compressed.Bytes())
	file.WriteString("\nendstream")
	fileID, err := w.AddObject(file.Bytes())
	if err != nil {
		return 0, err
	}

	descriptor := fmt.Sprintf("<< /Type /FontDescriptor /FontName /%s /Flags 32"+
		" /FontBBox [-500 -200 1000 900] /ItalicAngle 0 /Ascent 800 /Descent -200"+
		" /CapHeight 700 /StemV 80 /FontFile2 %d 0 R >>", s.fontName, fileID)
	descriptorID, err := w.AddObject([]byte(descriptor))
	if err != nil {
		return 0, err
	}

	dict := bytes.NewBuffer(nil)
	fmt.Fprintf(dict, "<< /Type /Font /Subtype /TrueType /BaseFont /%s /FirstChar 32 /LastChar 255 /Widths [", s.fontName)
	for i, width := range s.metrics.WidthsArray() {
		if i > 0 {
			dict.WriteByte(' ')
		}
		fmt.Fprintf(dict, "%d", width)
	}
	fmt.Fprintf(dict, "] /FontDescriptor %d 0 R /Encoding /WinAnsiEncoding >>", descriptorID)
	return w.AddObject(dict.Bytes())
}

// registerImage embeds a JPEG background as an image XObject. JPEG
// data passes through untouched under DCTDecode, which keeps stamps
// small without a recompression pass.
func registerImage(w sign.ObjectWriter, data []byte) (uint32, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode background image: %w", err)
	}
	if format != "jpeg" {
		return 0, fmt.Errorf("background image format %q not supported, use JPEG", format)
	}
	colorSpace := "DeviceRGB"
	switch cfg.ColorModel {
	case color.GrayModel:
		colorSpace = "DeviceGray"
	case color.CMYKModel:
		colorSpace = "DeviceCMYK"
	}
	buffer := bytes.NewBuffer(nil)
	fmt.Fprintf(buffer, "<< /Type /XObject /Subtype /Image /Width %d /Height %d"+
		" /ColorSpace /%s /BitsPerComponent 8 /Filter /DCTDecode /Length %d >>\nstream\n",
		cfg.Width, cfg.Height, colorSpace, len(data))
	buffer.Write(data)
	buffer.WriteString("\nendstream")
	return w.AddObject(buffer.Bytes())
}

// fitSize picks the largest size at which every line fits the given
// box, starting from the height budget and shrinking until the widest
// line fits.
func (s *Style) fitSize(lines []string, width, height float64) float64 {
	size := height / (float64(len(lines)) * lineSpacing)
	if size > maxAutoSize {
		size = maxAutoSize
	}
	for size > minFontSize && s.maxLineWidth(lines, size) > width {
		size -= 0.5
	}
	if size < minFontSize {
		size = minFontSize
	}
	return size
}

func (s *Style) maxLineWidth(lines []string, size float64) float64 {
	var widest float64
	for _, line := range lines {
		if w := s.lineWidth(line, size); w > widest {
			widest = w
		}
	}
	return widest
}

func (s *Style) lineWidth(line string, size float64) float64 {
	if s.metrics != nil {
		return s.metrics.StringWidth(line, size)
	}
	return float64(len(line)) * size * 0.5
}

func splitLines(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// winAnsiBytes converts text to the WinAnsi code page used by the
// stamp fonts. Characters outside the code page are replaced rather
// than dropped so widths stay aligned with the width table.
func winAnsiBytes(text string) []byte {
	encoder := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	b, err := encoder.Bytes([]byte(text))
	if err != nil {
		return []byte(text)
	}
	return b
}

func ft(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
