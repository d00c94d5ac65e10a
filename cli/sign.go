package cli

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pdfseal/pdfseal/sign"
	"github.com/pdfseal/pdfseal/stamp"
)

// SignCommand signs a document or adds a document timestamp, writing
// the result to a new file as an incremental revision.
func SignCommand() {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)

	configPath := fs.String("config", "", "configuration file (YAML)")
	var creds credentialFlags
	creds.register(fs)

	field := fs.String("field", "", "signature field to fill, created when absent (default: the single empty field)")
	existingOnly := fs.Bool("existing-only", false, "never create a new signature field")

	name := fs.String("name", "", "name of the signatory")
	reason := fs.String("reason", "", "reason for signing")
	location := fs.String("location", "", "location of signing")
	contact := fs.String("contact", "", "contact information of the signatory")

	certify := fs.Bool("certify", false, "write a certification signature instead of an approval")
	perm := fs.Int("perm", 2, "changes a certification permits: 1 none, 2 form filling, 3 form filling and annotations")

	docTimestamp := fs.Bool("doc-timestamp", false, "write a document timestamp instead of a signature")
	withTimestamp := fs.Bool("timestamp", false, "timestamp the signature with the configured authority")
	tsaURL := fs.String("tsa", "", "RFC3161 timestamp authority URL (default from the configuration)")
	digest := fs.String("digest", "sha256", "digest algorithm: sha1, sha256, sha384 or sha512")
	embedRevocation := fs.Bool("embed-revocation", false, "embed OCSP and CRL status for the signing chain")

	visible := fs.Bool("visible", false, "draw a stamp in the rectangle of the existing field")
	styleName := fs.String("style", "", "stamp style from the configuration")
	box := fs.String("box", "", "visible widget placement as PAGE/X1,Y1,X2,Y2")

	reserve := fs.Uint("reserve", 0, "reserved signature capacity in bytes, 0 for automatic")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s sign [options] <input.pdf> <output.pdf>\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, "\nExamples:")
		fmt.Fprintf(os.Stderr, "  %s sign -p12 alice.p12 -passfile pass.txt -reason Approval contract.pdf signed.pdf\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s sign -key key.pem -cert cert.pem -field Employee -box 1/360,40,570,110 contract.pdf signed.pdf\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s sign -doc-timestamp -tsa http://tsa.example/tsr contract.pdf stamped.pdf\n", os.Args[0])
	}

	_ = fs.Parse(os.Args[2:])
	if fs.NArg() != 2 {
		fs.Usage()
		osExit(1)
		return
	}
	input, output := fs.Arg(0), fs.Arg(1)

	cfg := loadConfig(*configPath)

	req := sign.Request{
		Field: sign.FieldOptions{
			Name: *field,
			// Without an explicit field name only existing fields are
			// filled, so a misspelled name cannot silently grow the form.
			ExistingOnly: *existingOnly || *field == "",
		},
		Info: sign.Metadata{
			Name:        *name,
			Reason:      *reason,
			Location:    *location,
			ContactInfo: *contact,
			Date:        time.Now(),
		},
		DigestAlgorithm: parseDigest(*digest),
		ReserveOverride: uint32(*reserve),
	}

	switch {
	case *docTimestamp && *certify:
		fatalf("-doc-timestamp and -certify are mutually exclusive")
		return
	case *docTimestamp:
		req.CertType = sign.TimeStampSignature
	case *certify:
		req.CertType = sign.CertificationSignature
		req.DocMDPPerm = sign.DocMDPPerm(*perm)
	default:
		req.CertType = sign.ApprovalSignature
	}

	if *docTimestamp || *withTimestamp || *tsaURL != "" {
		url := *tsaURL
		if url == "" {
			url = cfg.TimeStampURL
		}
		if url == "" {
			fatalf("no timestamp authority: pass -tsa or set time-stamp-url in the configuration")
			return
		}
		req.TSA = sign.TSA{URL: url}
	}

	if *embedRevocation {
		req.RevocationFunction = sign.DefaultRevocationFunction
	}

	if *box != "" || *visible {
		req.Appearance = sign.Appearance{Visible: true}
		if *box != "" {
			page, rect, err := parseBox(*box)
			if err != nil {
				fatal(err)
				return
			}
			req.Appearance.Page = page
			req.Appearance.Rect = rect
		}
		styleCfg, err := cfg.StampStyleByName(*styleName)
		if err != nil {
			fatal(err)
			return
		}
		style, err := stamp.FromConfig(styleCfg)
		if err != nil {
			fatal(err)
			return
		}
		req.Appearance.Renderer = style.Renderer(stamp.Vars{
			Name:     *name,
			Reason:   *reason,
			Location: *location,
			Date:     req.Info.Date,
		})
	} else if *styleName != "" {
		fatalf("-style needs -box or -visible to place the stamp")
		return
	}

	if req.CertType != sign.TimeStampSignature {
		req.Signer = creds.signer()
	}

	if err := sign.SignFile(input, output, req); err != nil {
		fatal(err)
		return
	}
	log.Println("signed document written to " + output)
}
