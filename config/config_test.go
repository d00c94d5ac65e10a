package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfseal/pdfseal/internal/testpki"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseFullConfiguration(t *testing.T) {
	pki := testpki.New(t)
	rootPEM := writeFile(t, "root.pem", testpki.CertPEM(pki.RootCert))
	chainPEM := writeFile(t, "chain.pem", testpki.CertPEM(pki.Chain()...))

	doc := fmt.Sprintf(`
time-stamp-url: http://tsa.example.com/rfc3161
default-validation-context: corporate
default-stamp-style: approval

validation-contexts:
  corporate:
    trust: %s
    trust-replace: true
    other-certs: %s
  audit:
    trust:
      - %s
      - %s

stamp-styles:
  approval:
    type: text
    content: "Signed by {{Name}} on {{Date}}"
    font-size: 9
    border-width: 0.5
`, rootPEM, chainPEM, rootPEM, rootPEM)

	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.TimeStampURL != "http://tsa.example.com/rfc3161" {
		t.Errorf("time-stamp-url = %q", cfg.TimeStampURL)
	}
	if cfg.DefaultValidationContext != "corporate" {
		t.Errorf("default-validation-context = %q", cfg.DefaultValidationContext)
	}

	corporate := cfg.ValidationContexts["corporate"]
	if corporate == nil {
		t.Fatal("corporate profile missing")
	}
	if len(corporate.TrustAnchors) != 1 {
		t.Errorf("got %d trust anchors, want 1", len(corporate.TrustAnchors))
	}
	if !corporate.TrustReplace {
		t.Error("trust-replace not set")
	}
	if len(corporate.OtherCerts) != len(pki.Chain()) {
		t.Errorf("got %d other certs, want the chain of %d", len(corporate.OtherCerts), len(pki.Chain()))
	}

	audit := cfg.ValidationContexts["audit"]
	if audit == nil {
		t.Fatal("audit profile missing")
	}
	if len(audit.TrustFiles) != 2 || len(audit.TrustAnchors) != 2 {
		t.Errorf("audit anchors: files=%d certs=%d, want 2 each", len(audit.TrustFiles), len(audit.TrustAnchors))
	}

	style := cfg.StampStyles["approval"]
	if style == nil {
		t.Fatal("approval style missing")
	}
	if !strings.Contains(style.Content, "{{Name}}") {
		t.Errorf("content = %q", style.Content)
	}
	if style.FontSize != 9 || style.BorderWidth != 0.5 {
		t.Errorf("font-size = %v, border-width = %v", style.FontSize, style.BorderWidth)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	profile, err := cfg.ValidationContext("")
	if err != nil {
		t.Fatalf("validation context: %v", err)
	}
	if len(profile.TrustAnchors) != 0 || profile.TrustReplace {
		t.Errorf("empty configuration yields a non-empty profile: %+v", profile)
	}
}

func TestParseUnknownKeyRejected(t *testing.T) {
	_, err := Parse([]byte("tymestamp-url: http://example.com\n"))
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want a configuration error", err)
	}
	if !strings.Contains(cerr.Message, "tymestamp-url") {
		t.Errorf("message = %q, want the offending key named", cerr.Message)
	}
}

func TestParseBadTrustValue(t *testing.T) {
	doc := `
validation-contexts:
  broken:
    trust:
      nested: mapping
`
	_, err := Parse([]byte(doc))
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want a configuration error", err)
	}
	if !strings.Contains(err.Error(), "string or a list of strings") {
		t.Errorf("error = %v", err)
	}
}

func TestParseMissingCertificateFile(t *testing.T) {
	doc := `
validation-contexts:
  broken:
    trust: /nonexistent/anchors.pem
`
	_, err := Parse([]byte(doc))
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want a configuration error", err)
	}
	if cerr.Section != "validation-contexts.broken" {
		t.Errorf("section = %q", cerr.Section)
	}
}

func TestStampStyleValidation(t *testing.T) {
	tests := []struct {
		styleType string
		wantErr   string
	}{
		{"", ""},
		{"text", ""},
		{"qr", "qr stamp styles are not supported"},
		{"watermark", "unknown stamp style type"},
	}
	for _, tt := range tests {
		doc := fmt.Sprintf("stamp-styles:\n  probe:\n    type: %q\n", tt.styleType)
		_, err := Parse([]byte(doc))
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("type %q rejected: %v", tt.styleType, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("type %q: got %v, want %q", tt.styleType, err, tt.wantErr)
		}
	}
}

func TestValidationContextSelection(t *testing.T) {
	pki := testpki.New(t)
	rootPEM := writeFile(t, "root.pem", testpki.CertPEM(pki.RootCert))

	doc := fmt.Sprintf(`
validation-contexts:
  default:
    trust: %s
  strict:
    trust: %s
    trust-replace: true
`, rootPEM, rootPEM)

	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	named, err := cfg.ValidationContext("strict")
	if err != nil || !named.TrustReplace {
		t.Errorf("strict profile: %+v, %v", named, err)
	}

	// Empty name falls back to the profile called "default".
	fallback, err := cfg.ValidationContext("")
	if err != nil || fallback != cfg.ValidationContexts["default"] {
		t.Errorf("default fallback: %+v, %v", fallback, err)
	}

	if _, err := cfg.ValidationContext("absent"); err == nil {
		t.Error("unknown profile accepted")
	}

	cfg.DefaultValidationContext = "strict"
	redirected, err := cfg.ValidationContext("")
	if err != nil || redirected != cfg.ValidationContexts["strict"] {
		t.Errorf("redirected default: %+v, %v", redirected, err)
	}
}

func TestStampStyleSelection(t *testing.T) {
	doc := `
default-stamp-style: fancy
stamp-styles:
  fancy:
    content: "{{Name}}"
    border-width: 2
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	style, err := cfg.StampStyleByName("")
	if err != nil || style.BorderWidth != 2 {
		t.Errorf("default style: %+v, %v", style, err)
	}
	if _, err := cfg.StampStyleByName("absent"); err == nil {
		t.Error("unknown style accepted")
	}

	// Without styles an empty selection yields the plain zero style.
	bare, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	plain, err := bare.StampStyleByName("")
	if err != nil || plain.Content != "" || plain.Type != "" {
		t.Errorf("plain style: %+v, %v", plain, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("got %v, want a configuration error", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := writeFile(t, "pdfseal.yaml", []byte("time-stamp-url: http://tsa.local/\n"))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TimeStampURL != "http://tsa.local/" {
		t.Errorf("time-stamp-url = %q", cfg.TimeStampURL)
	}
}
