// Package cli implements the subcommands of the pdfseal tool: sign,
// verify, list and addfields. Each command parses its own flag set,
// prints results to stdout and terminates the process through osExit
// on failure, so the main package stays a plain dispatch switch.
package cli

import (
	"crypto"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/pdfseal/pdfseal/config"
	"github.com/pdfseal/pdfseal/keyring"
	"github.com/pdfseal/pdfseal/sign"
)

// osExit is swapped out in tests.
var osExit = os.Exit

// Usage prints the top level usage message to stderr.
func Usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  sign       Add a signature or document timestamp to a PDF")
	fmt.Fprintln(os.Stderr, "  verify     Check the signatures of a PDF")
	fmt.Fprintln(os.Stderr, "  list       List the signature fields of a PDF")
	fmt.Fprintln(os.Stderr, "  addfields  Add empty signature fields to a PDF")
	fmt.Fprintf(os.Stderr, "\nRun '%s <command> -h' for the options of a command.\n", os.Args[0])
}

func fatal(err error) {
	log.Println(err)
	osExit(1)
}

func fatalf(format string, args ...any) {
	log.Printf(format, args...)
	osExit(1)
}

// loadConfig parses the configuration file when one is named. Commands
// run against an empty configuration otherwise.
func loadConfig(path string) *config.Config {
	if path == "" {
		return &config.Config{}
	}
	cfg, err := config.Load(path)
	if err != nil {
		fatal(err)
	}
	return cfg
}

// readPassphrase reads a passphrase file, trimming the trailing line
// break an editor leaves behind.
func readPassphrase(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fatal(err)
	}
	return strings.TrimRight(string(data), "\r\n")
}

// credentialFlags are the signer credential options shared by commands
// that produce signatures.
type credentialFlags struct {
	p12      string
	key      string
	cert     string
	chain    string
	passFile string
}

func (c *credentialFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.p12, "p12", "", "PKCS#12 keystore holding the key and certificates")
	fs.StringVar(&c.key, "key", "", "private key file (PEM or DER)")
	fs.StringVar(&c.cert, "cert", "", "certificate file, optionally followed by its chain (PEM or DER)")
	fs.StringVar(&c.chain, "chain", "", "extra intermediate certificates (PEM or DER)")
	fs.StringVar(&c.passFile, "passfile", "", "file holding the keystore or key passphrase")
}

// signer builds the signing capability from the credential flags.
func (c *credentialFlags) signer() *sign.KeySigner {
	pass := readPassphrase(c.passFile)

	var s *sign.KeySigner
	var err error
	switch {
	case c.p12 != "":
		s, err = keyring.SignerFromPKCS12(c.p12, pass)
	case c.key != "" && c.cert != "":
		s, err = keyring.SignerFromFiles(c.key, c.cert, []byte(pass))
	default:
		fatalf("credentials required: either -p12, or both -key and -cert")
		return nil
	}
	if err != nil {
		fatal(err)
	}

	if c.chain == "" {
		return s
	}
	extra, err := keyring.LoadCertificates(c.chain)
	if err != nil {
		fatal(err)
	}
	// KeySigner is itself a crypto.Signer, so rebuilding with the
	// extended chain keeps the key and certificate pairing intact.
	s, err = sign.NewKeySigner(s, s.Certificate(), append(s.CertificateChain(), extra...)...)
	if err != nil {
		fatal(err)
	}
	return s
}

var digestAlgorithms = map[string]crypto.Hash{
	"sha1":   crypto.SHA1,
	"sha256": crypto.SHA256,
	"sha384": crypto.SHA384,
	"sha512": crypto.SHA512,
}

func parseDigest(name string) crypto.Hash {
	h, ok := digestAlgorithms[strings.ToLower(name)]
	if !ok {
		fatalf("unknown digest algorithm %q, expected sha1, sha256, sha384 or sha512", name)
	}
	return h
}
