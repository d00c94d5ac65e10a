package sign

import (
	"crypto"
	"crypto/x509"
	"time"

	"github.com/pdfseal/pdfseal/revocation"
)

// CertType selects the kind of signature written into the document.
type CertType uint

const (
	// CertificationSignature certifies the document and declares, via a
	// DocMDP transform, which changes remain permitted afterwards. A
	// document carries at most one and it must be the first signature.
	CertificationSignature CertType = iota + 1

	// ApprovalSignature approves the current state of the document.
	ApprovalSignature

	// UsageRightsSignature enables reader extensions (UR3 transform).
	UsageRightsSignature

	// TimeStampSignature writes a document level RFC3161 timestamp
	// instead of a signer bound signature.
	TimeStampSignature
)

func (c CertType) String() string {
	switch c {
	case CertificationSignature:
		return "CertificationSignature"
	case ApprovalSignature:
		return "ApprovalSignature"
	case UsageRightsSignature:
		return "UsageRightsSignature"
	case TimeStampSignature:
		return "TimeStampSignature"
	}
	return "UnknownCertType"
}

// DocMDPPerm is the modification permission declared by a certification
// signature.
type DocMDPPerm uint

const (
	// PermNoChanges forbids any change to the certified document.
	PermNoChanges DocMDPPerm = iota + 1

	// PermFormFill permits form filling and additional signatures.
	PermFormFill

	// PermFormFillAndAnnotate additionally permits annotation changes.
	PermFormFillAndAnnotate
)

func (p DocMDPPerm) String() string {
	switch p {
	case PermNoChanges:
		return "NoChanges"
	case PermFormFill:
		return "FormFill"
	case PermFormFillAndAnnotate:
		return "FormFillAndAnnotate"
	}
	return "UnknownPerm"
}

// Metadata is the signer supplied information recorded in the signature
// dictionary. A zero Date means the current time at signing.
type Metadata struct {
	Name        string
	Location    string
	Reason      string
	ContactInfo string
	Date        time.Time
}

// FieldOptions selects the signature field that receives the signature.
type FieldOptions struct {
	// Name of the target field. Empty selects automatically: the
	// single unfilled field when exactly one exists, a fresh field
	// with a generated name when none exist. Several unfilled fields
	// need an explicit pick. A named field that does not exist yet is
	// created unless ExistingOnly forbids it.
	Name string

	// ExistingOnly forbids creating a new field when the target does
	// not exist.
	ExistingOnly bool
}

// TSA describes a Time-Stamp Authority used for RFC3161 tokens.
type TSA struct {
	URL      string
	Username string
	Password string
}

// RevocationFunction collects revocation information for one
// certificate and its issuer into the archival container.
type RevocationFunction func(cert, issuer *x509.Certificate, i *revocation.InfoArchival) error

// AppearanceRenderer draws the visible content of a signature widget.
// It receives an ObjectWriter for registering supporting objects
// (images, fonts) and the widget rectangle, and returns the complete
// form XObject of the appearance.
type AppearanceRenderer func(w ObjectWriter, rect [4]float64) ([]byte, error)

// Appearance places a visible widget for the signature. The zero value
// keeps the signature invisible.
type Appearance struct {
	Visible bool

	// Page receiving the widget, 1-based. Zero means the first page.
	Page int

	// Rect is the widget rectangle: lower-left x, lower-left y,
	// upper-right x, upper-right y in PDF points.
	Rect [4]float64

	// Renderer draws the widget content. When nil the widget is drawn
	// with an empty appearance stream.
	Renderer AppearanceRenderer
}

// Request describes one signing operation: the target field, the
// signer capability, and the signature properties.
type Request struct {
	Field FieldOptions
	Info  Metadata

	// CertType defaults to ApprovalSignature.
	CertType CertType

	// DocMDPPerm applies to certification signatures and defaults to
	// PermFormFill.
	DocMDPPerm DocMDPPerm

	// Signer produces the raw signature value and identifies the
	// signer certificate. Not used for TimeStampSignature.
	Signer Signer

	// DigestAlgorithm defaults to crypto.SHA256.
	DigestAlgorithm crypto.Hash

	TSA TSA

	// RevocationData is embedded as the archival signed attribute.
	// RevocationFunction, when set, is invoked for the signer
	// certificate and every chain certificate to extend it first.
	RevocationData     revocation.InfoArchival
	RevocationFunction RevocationFunction

	Appearance Appearance

	// ReserveOverride fixes the hex capacity reserved for the
	// signature container instead of the estimated size.
	ReserveOverride uint32

	// CompressLevel is the zlib level for streams written by this
	// operation, such as cross reference streams. Zero means the
	// default level.
	CompressLevel int
}
