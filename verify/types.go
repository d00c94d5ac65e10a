package verify

import (
	"crypto/x509"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pdfseal/pdfseal/common"
)

// Options controls how far verification goes beyond the integrity
// check. The zero value checks integrity only and leaves trust
// unchecked.
type Options struct {
	// CheckTrust enables certification path building and revocation
	// evaluation. Without it every result reports TrustUnchecked.
	CheckTrust bool

	// TrustAnchors are accepted as chain roots. With TrustReplace they
	// are the only accepted roots, otherwise they extend the system
	// pool.
	TrustAnchors  []*x509.Certificate
	TrustReplace  bool
	Intermediates []*x509.Certificate

	// RequiredEKUs must be present on the signer certificate. Empty
	// means the document signing usage per RFC 9336.
	RequiredEKUs []x509.ExtKeyUsage

	// AllowedEKUs are acceptable alternatives, commonly email
	// protection or client authentication.
	AllowedEKUs []x509.ExtKeyUsage

	// RequireDigitalSignatureKU requires the digital signature bit in
	// the certificate key usage.
	RequireDigitalSignatureKU bool

	// RequireNonRepudiation requires the non repudiation bit.
	RequireNonRepudiation bool

	// TrustSignatureTime accepts the signing time claimed in the
	// signature dictionary as validation time when no timestamp token
	// is present. That time is chosen by the signer.
	TrustSignatureTime bool

	// ExternalRevocationCheck fetches OCSP and CRL status from the
	// endpoints advertised in certificates when the document embeds
	// none.
	ExternalRevocationCheck bool

	// HTTPClient used for external revocation checking, nil selects a
	// client with HTTPTimeout applied.
	HTTPClient  *http.Client
	HTTPTimeout time.Duration

	// Clock supplies the validation time, nil means the wall clock.
	Clock clockwork.Clock
}

func (o *Options) clock() clockwork.Clock {
	if o.Clock != nil {
		return o.Clock
	}
	return clockwork.NewRealClock()
}

// Signature flavors reported in Result.Type.
const (
	TypeApproval          = "approval"
	TypeCertification     = "certification"
	TypeUsageRights       = "usage rights"
	TypeDocumentTimestamp = "document timestamp"
)

// Coverage states how much of the file a signature covers.
type Coverage int

const (
	CoverageEntireFile Coverage = iota + 1
	CoveragePriorRevision
)

func (c Coverage) String() string {
	switch c {
	case CoverageEntireFile:
		return "ENTIRE_FILE"
	case CoveragePriorRevision:
		return "PRIOR_REVISION"
	}
	return "UNKNOWN"
}

// Integrity states whether the covered bytes still match the
// signature.
type Integrity int

const (
	IntegrityIntact Integrity = iota + 1
	IntegrityTampered
)

func (i Integrity) String() string {
	switch i {
	case IntegrityIntact:
		return "INTACT"
	case IntegrityTampered:
		return "TAMPERED"
	}
	return "UNKNOWN"
}

// TrustStatus states the outcome of certification path and revocation
// evaluation.
type TrustStatus int

const (
	TrustUnchecked TrustStatus = iota + 1
	TrustTrusted
	TrustUntrusted
)

func (t TrustStatus) String() string {
	switch t {
	case TrustUnchecked:
		return "UNCHECKED"
	case TrustTrusted:
		return "TRUSTED"
	case TrustUntrusted:
		return "UNTRUSTED"
	}
	return "UNKNOWN"
}

// Certificate reports one certificate carried by the signature
// container together with its evaluation outcome.
type Certificate struct {
	Certificate *x509.Certificate `json:"-"`

	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serial_number"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`

	VerifyError string `json:"verify_error,omitempty"`

	KeyUsageValid    bool   `json:"key_usage_valid"`
	KeyUsageError    string `json:"key_usage_error,omitempty"`
	ExtKeyUsageValid bool   `json:"ext_key_usage_valid"`
	ExtKeyUsageError string `json:"ext_key_usage_error,omitempty"`

	OCSPEmbedded bool `json:"ocsp_embedded"`
	OCSPExternal bool `json:"ocsp_external"`
	OCSPRevoked  bool `json:"ocsp_revoked"`
	CRLEmbedded  bool `json:"crl_embedded"`
	CRLExternal  bool `json:"crl_external"`
	CRLRevoked   bool `json:"crl_revoked"`

	RevocationTime    *time.Time `json:"revocation_time,omitempty"`
	RevocationWarning string     `json:"revocation_warning,omitempty"`
}

// Result is the verdict for one signature. Failures local to this
// signature are recorded here and never abort sibling signatures.
type Result struct {
	Field string `json:"field"`

	// Type is the signature flavor: approval, certification, usage
	// rights or document timestamp.
	Type string `json:"type"`

	Coverage  Coverage    `json:"coverage"`
	Integrity Integrity   `json:"integrity"`
	Trust     TrustStatus `json:"trust"`

	Info         common.SignatureInfo `json:"info"`
	Certificates []Certificate        `json:"certificates"`
	Warnings     []string             `json:"warnings,omitempty"`

	// Error mirrors Err for serialized reports.
	Error string `json:"error,omitempty"`

	err error
}

// Err returns the failure that stopped evaluation of this signature,
// if any.
func (r *Result) Err() error { return r.err }

// Summary is a compact machine readable verdict like
// "INTACT:TRUSTED" or "TAMPERED:UNCHECKED,PRIOR_REVISION".
func (r *Result) Summary() string {
	if r.Integrity == 0 {
		return "MALFORMED"
	}
	s := r.Integrity.String() + ":" + r.Trust.String()
	if r.Coverage == CoveragePriorRevision {
		s += ",PRIOR_REVISION"
	}
	return s
}

func (r *Result) fail(err error) {
	r.err = err
	r.Error = err.Error()
}

// Response collects the verdicts for every signature of a document.
type Response struct {
	DocumentInfo common.DocumentInfo `json:"document_info"`
	Results      []Result            `json:"signatures"`
}

func (c Coverage) MarshalJSON() ([]byte, error)    { return marshalEnum(c.String()) }
func (i Integrity) MarshalJSON() ([]byte, error)   { return marshalEnum(i.String()) }
func (t TrustStatus) MarshalJSON() ([]byte, error) { return marshalEnum(t.String()) }

func marshalEnum(s string) ([]byte, error) {
	return []byte(`"` + s + `"`), nil
}
