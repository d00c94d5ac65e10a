package cli

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/pdfseal/pdfseal/sign"
)

// AddFieldsCommand adds empty signature fields to a document in a
// single incremental update. Each field argument uses the grammar
// PAGE/X1,Y1,X2,Y2/NAME.
func AddFieldsCommand() {
	fs := flag.NewFlagSet("addfields", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s addfields <input.pdf> <output.pdf> <PAGE/X1,Y1,X2,Y2/NAME>...\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Example:")
		fmt.Fprintf(os.Stderr, "  %s addfields offer.pdf out.pdf 1/360,40,570,110/Employee 2/360,40,570,110/Manager\n", os.Args[0])
	}

	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 3 {
		fs.Usage()
		osExit(1)
		return
	}
	input, output := fs.Arg(0), fs.Arg(1)

	var specs []sign.FieldSpec
	for _, arg := range fs.Args()[2:] {
		spec, err := parseFieldSpec(arg)
		if err != nil {
			fatal(err)
			return
		}
		specs = append(specs, spec)
	}

	if err := sign.AppendFieldsFile(input, output, specs...); err != nil {
		fatal(err)
		return
	}
	log.Printf("added %d signature field(s), written to %s", len(specs), output)
}

// parseBox parses a widget placement of the form PAGE/X1,Y1,X2,Y2.
func parseBox(s string) (page int, rect [4]float64, err error) {
	pagePart, rectPart, ok := strings.Cut(s, "/")
	if !ok {
		return 0, rect, fmt.Errorf("invalid placement %q, expected PAGE/X1,Y1,X2,Y2", s)
	}
	page, err = strconv.Atoi(pagePart)
	if err != nil || page < 1 {
		return 0, rect, fmt.Errorf("invalid page number in %q", s)
	}
	coords := strings.Split(rectPart, ",")
	if len(coords) != 4 {
		return 0, rect, fmt.Errorf("invalid rectangle in %q, expected four coordinates", s)
	}
	for i, c := range coords {
		rect[i], err = strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return 0, rect, fmt.Errorf("invalid coordinate %q in %q", c, s)
		}
	}
	return page, rect, nil
}

// parseFieldSpec parses PAGE/X1,Y1,X2,Y2/NAME. The name extends to the
// end of the argument and may itself contain slashes.
func parseFieldSpec(s string) (sign.FieldSpec, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[2] == "" {
		return sign.FieldSpec{}, fmt.Errorf("invalid field %q, expected PAGE/X1,Y1,X2,Y2/NAME", s)
	}
	page, rect, err := parseBox(parts[0] + "/" + parts[1])
	if err != nil {
		return sign.FieldSpec{}, err
	}
	return sign.FieldSpec{Name: parts[2], Page: page, Rect: rect}, nil
}
