// Command pdfseal signs PDF documents, verifies their signatures and
// manages signature fields.
package main

import (
	"fmt"
	"os"

	"github.com/pdfseal/pdfseal/cli"
)

func main() {
	if len(os.Args) < 2 {
		cli.Usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sign":
		cli.SignCommand()
	case "verify":
		cli.VerifyCommand()
	case "list":
		cli.ListCommand()
	case "addfields":
		cli.AddFieldsCommand()
	case "-h", "--help", "help":
		cli.Usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		cli.Usage()
		os.Exit(1)
	}
}
