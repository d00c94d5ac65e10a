// Package config loads the YAML configuration of the command line
// tool: named trust profiles for validation, named stamp styles for
// visible signatures and a default timestamp authority.
//
// Decoding is strict. Unknown keys, wrong types and unreadable
// certificate files are rejected at load time with a
// *ConfigurationError so that a broken configuration never surfaces
// halfway through a signing operation.
package config

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pdfseal/pdfseal/keyring"
)

// DefaultName selects the profile or style used when the caller names
// none.
const DefaultName = "default"

// ConfigurationError reports a rejected configuration.
type ConfigurationError struct {
	Section string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Section, e.Message)
	}
	return "configuration error: " + e.Message
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Config is the parsed configuration file.
type Config struct {
	// ValidationContexts are named trust profiles for verification.
	ValidationContexts map[string]*TrustProfile `yaml:"validation-contexts"`

	// DefaultValidationContext names the profile used when the caller
	// does not pick one. Empty means "default".
	DefaultValidationContext string `yaml:"default-validation-context"`

	// StampStyles are named visible-signature styles.
	StampStyles map[string]*StampStyle `yaml:"stamp-styles"`

	// DefaultStampStyle names the style used when the caller does not
	// pick one. Empty means "default".
	DefaultStampStyle string `yaml:"default-stamp-style"`

	// TimeStampURL is the RFC3161 authority applied to signatures when
	// the caller requests timestamping without naming an authority.
	TimeStampURL string `yaml:"time-stamp-url"`
}

// TrustProfile resolves the trust inputs of verification. Certificate
// files are loaded eagerly when the configuration is parsed.
type TrustProfile struct {
	// TrustFiles hold the accepted trust anchors, a single path or a
	// list of paths.
	TrustFiles StringList `yaml:"trust"`

	// TrustReplace makes the anchors replace the system pool instead
	// of extending it.
	TrustReplace bool `yaml:"trust-replace"`

	// OtherCertFiles hold additional untrusted certificates usable for
	// chain building, a single path or a list of paths.
	OtherCertFiles StringList `yaml:"other-certs"`

	TrustAnchors []*x509.Certificate `yaml:"-"`
	OtherCerts   []*x509.Certificate `yaml:"-"`
}

// StampStyle describes a visible-signature appearance. Only text
// styles are supported.
type StampStyle struct {
	// Type of the style. Empty means "text".
	Type string `yaml:"type"`

	// Content is the stamp text template. Lines are separated by
	// newlines; {{Name}}, {{Date}}, {{Reason}} and {{Location}} expand
	// to the signature metadata.
	Content string `yaml:"content"`

	// FontFile is a TrueType font used to render the text. Empty
	// selects a built-in typeface.
	FontFile string `yaml:"font"`

	// FontSize in points. Zero selects a size that fits the box.
	FontSize float64 `yaml:"font-size"`

	// Background is the path of a JPEG image drawn behind the text.
	Background string `yaml:"background"`

	// BorderWidth in points, zero for no border.
	BorderWidth float64 `yaml:"border-width"`
}

// StringList accepts a YAML scalar as a one-element list.
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var s []string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*l = StringList(s)
		return nil
	}
	return fmt.Errorf("expected a string or a list of strings on line %d", value.Line)
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("read %s: %v", path, err), Err: err}
	}
	return Parse(data)
}

// Parse parses configuration data. Unknown keys are rejected and every
// referenced certificate file is loaded immediately.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, &ConfigurationError{Message: err.Error(), Err: err}
	}

	for name, profile := range cfg.ValidationContexts {
		if profile == nil {
			return nil, &ConfigurationError{
				Section: "validation-contexts." + name,
				Message: "profile must be a mapping",
			}
		}
		if err := profile.load(); err != nil {
			return nil, &ConfigurationError{
				Section: "validation-contexts." + name,
				Message: err.Error(),
				Err:     err,
			}
		}
	}
	for name, style := range cfg.StampStyles {
		if style == nil {
			return nil, &ConfigurationError{
				Section: "stamp-styles." + name,
				Message: "style must be a mapping",
			}
		}
		if err := style.validate(); err != nil {
			return nil, &ConfigurationError{
				Section: "stamp-styles." + name,
				Message: err.Error(),
				Err:     err,
			}
		}
	}
	return &cfg, nil
}

func (p *TrustProfile) load() error {
	for _, path := range p.TrustFiles {
		certs, err := keyring.LoadCertificates(path)
		if err != nil {
			return fmt.Errorf("trust %s: %w", path, err)
		}
		p.TrustAnchors = append(p.TrustAnchors, certs...)
	}
	for _, path := range p.OtherCertFiles {
		certs, err := keyring.LoadCertificates(path)
		if err != nil {
			return fmt.Errorf("other-certs %s: %w", path, err)
		}
		p.OtherCerts = append(p.OtherCerts, certs...)
	}
	return nil
}

func (s *StampStyle) validate() error {
	switch s.Type {
	case "", "text":
		return nil
	case "qr":
		return fmt.Errorf("qr stamp styles are not supported")
	default:
		return fmt.Errorf("unknown stamp style type %q", s.Type)
	}
}

// ValidationContext returns the named trust profile, or the default
// profile for an empty name. An absent default on an otherwise valid
// configuration yields an empty profile, which verifies against the
// system trust store.
func (c *Config) ValidationContext(name string) (*TrustProfile, error) {
	selected := name
	if selected == "" {
		selected = c.DefaultValidationContext
		if selected == "" {
			selected = DefaultName
		}
	}
	if profile, ok := c.ValidationContexts[selected]; ok {
		return profile, nil
	}
	if name == "" {
		return &TrustProfile{}, nil
	}
	return nil, &ConfigurationError{
		Section: "validation-contexts",
		Message: fmt.Sprintf("no validation context named %q", name),
	}
}

// StampStyleByName returns the named stamp style, or the default style
// for an empty name. An absent default yields a plain text style.
func (c *Config) StampStyleByName(name string) (*StampStyle, error) {
	selected := name
	if selected == "" {
		selected = c.DefaultStampStyle
		if selected == "" {
			selected = DefaultName
		}
	}
	if style, ok := c.StampStyles[selected]; ok {
		return style, nil
	}
	if name == "" {
		return &StampStyle{}, nil
	}
	return nil, &ConfigurationError{
		Section: "stamp-styles",
		Message: fmt.Sprintf("no stamp style named %q", name),
	}
}
