package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pdfseal/pdfseal/config"
	"github.com/pdfseal/pdfseal/keyring"
	"github.com/pdfseal/pdfseal/verify"
)

// VerifyCommand checks every signature of a document and prints one
// verdict line per signature, or the full report with -json. The exit
// status is non zero when any signature fails integrity or trust.
func VerifyCommand() {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)

	configPath := fs.String("config", "", "configuration file (YAML)")
	contextName := fs.String("context", "", "validation context from the configuration")
	trustFile := fs.String("trust", "", "file with additional trust anchors (PEM or DER)")
	trustReplace := fs.Bool("trust-replace", false, "trust only the supplied anchors, not the system pool")
	noTrust := fs.Bool("no-trust", false, "skip trust evaluation, check integrity and coverage only")
	external := fs.Bool("external", false, "fetch OCSP and CRL status when the document embeds none")
	requireDS := fs.Bool("require-digital-signature", false, "require the digital signature key usage")
	nonRepudiation := fs.Bool("non-repudiation", false, "require the non-repudiation key usage")
	sigTime := fs.Bool("signature-time", false, "accept the claimed signing time when no timestamp is present")
	httpTimeout := fs.Duration("http-timeout", 10*time.Second, "timeout for external revocation requests")
	jsonOut := fs.Bool("json", false, "print the full report as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s verify [options] <input.pdf>\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, "\nExamples:")
		fmt.Fprintf(os.Stderr, "  %s verify signed.pdf\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s verify -config pdfseal.yml -context internal -json signed.pdf\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s verify -trust root.pem -trust-replace -external signed.pdf\n", os.Args[0])
	}

	_ = fs.Parse(os.Args[2:])
	if fs.NArg() != 1 {
		fs.Usage()
		osExit(1)
		return
	}
	input := fs.Arg(0)

	opts := verifyOptions(loadConfig(*configPath), *contextName)
	opts.CheckTrust = !*noTrust
	opts.ExternalRevocationCheck = *external
	opts.RequireDigitalSignatureKU = *requireDS
	opts.RequireNonRepudiation = *nonRepudiation
	opts.TrustSignatureTime = *sigTime
	opts.HTTPTimeout = *httpTimeout
	if *trustFile != "" {
		anchors, err := keyring.LoadCertificates(*trustFile)
		if err != nil {
			fatal(err)
			return
		}
		opts.TrustAnchors = append(opts.TrustAnchors, anchors...)
	}
	if *trustReplace {
		opts.TrustReplace = true
	}

	file, err := os.Open(input)
	if err != nil {
		fatal(err)
		return
	}
	defer func() {
		_ = file.Close()
	}()

	resp, err := verify.File(file, opts)
	if err != nil {
		fatal(err)
		return
	}
	if len(resp.Results) == 0 {
		fatalf("no signatures in %s", input)
		return
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			fatal(err)
			return
		}
	} else {
		printReport(resp)
	}

	for i := range resp.Results {
		r := &resp.Results[i]
		if r.Err() != nil || r.Integrity != verify.IntegrityIntact || r.Trust == verify.TrustUntrusted {
			osExit(1)
			return
		}
	}
}

// verifyOptions maps the named trust profile of the configuration onto
// verification options.
func verifyOptions(cfg *config.Config, contextName string) verify.Options {
	profile, err := cfg.ValidationContext(contextName)
	if err != nil {
		fatal(err)
		return verify.Options{}
	}
	return verify.Options{
		TrustAnchors:  profile.TrustAnchors,
		TrustReplace:  profile.TrustReplace,
		Intermediates: profile.OtherCerts,
	}
}

func printReport(resp *verify.Response) {
	for i := range resp.Results {
		r := &resp.Results[i]
		fmt.Printf("%s: %s\n", r.Field, r.Summary())
		if r.Error != "" {
			fmt.Printf("  error: %s\n", r.Error)
			continue
		}
		if r.Info.Name != "" {
			fmt.Printf("  signed by %s\n", r.Info.Name)
		}
		if r.Info.Reason != "" {
			fmt.Printf("  reason: %s\n", r.Info.Reason)
		}
		if r.Info.TimeStamp != nil {
			fmt.Printf("  timestamped at %s\n", r.Info.TimeStamp.Time.Format(time.RFC3339))
		} else if r.Info.SignatureTime != nil {
			fmt.Printf("  signing time %s (declared by the signer)\n", r.Info.SignatureTime.Format(time.RFC3339))
		}
		for _, w := range r.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}
}
