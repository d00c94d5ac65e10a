package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/pdfseal/pdfseal"
)

// ListCommand prints one line per signature field, the name followed
// by its state. With -validate, filled fields additionally carry the
// verification verdict.
func ListCommand() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)

	configPath := fs.String("config", "", "configuration file (YAML)")
	contextName := fs.String("context", "", "validation context from the configuration")
	skipStatus := fs.Bool("skip-status", false, "print field names only")
	validate := fs.Bool("validate", false, "verify filled fields and append the verdict")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s list [options] <input.pdf>\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, "\nExample:")
		fmt.Fprintf(os.Stderr, "  %s list -validate signed.pdf\n", os.Args[0])
	}

	_ = fs.Parse(os.Args[2:])
	if fs.NArg() != 1 {
		fs.Usage()
		osExit(1)
		return
	}

	doc, err := pdfseal.Open(fs.Arg(0))
	if err != nil {
		fatal(err)
		return
	}
	defer func() {
		_ = doc.Close()
	}()

	fields, err := doc.Fields()
	if err != nil {
		fatal(err)
		return
	}

	verdicts := make(map[string]string)
	if *validate {
		opts := verifyOptions(loadConfig(*configPath), *contextName)
		opts.CheckTrust = true
		resp, err := doc.Verify(opts)
		if err != nil {
			fatal(err)
			return
		}
		for i := range resp.Results {
			r := &resp.Results[i]
			verdicts[r.Field] = r.Summary()
		}
	}

	for _, f := range fields {
		if *skipStatus {
			fmt.Println(f.Name)
			continue
		}
		line := f.Name + ":" + f.State.String()
		if v, ok := verdicts[f.Name]; ok {
			line += ":" + v
		}
		fmt.Println(line)
	}
}
