package sign

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyCertified is returned when a certification signature is
	// requested for a document that already carries one.
	ErrAlreadyCertified = errors.New("document is already certified")

	// ErrCertifyAfterApproval is returned when a certification
	// signature is requested after approval signatures exist. A
	// certification signature must be the first signature.
	ErrCertifyAfterApproval = errors.New("cannot certify a document that already carries signatures")
)

// StructuralError reports that the base document could not be used as
// the foundation of an incremental update: broken cross reference
// data, a missing catalog, or unsupported structure.
type StructuralError struct {
	Op  string
	Err error
}

func (e *StructuralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pdf structure: %s: %v", e.Op, e.Err)
	}
	return "pdf structure: " + e.Op
}

func (e *StructuralError) Unwrap() error { return e.Err }

func structuralf(op string, format string, args ...interface{}) *StructuralError {
	return &StructuralError{Op: op, Err: fmt.Errorf(format, args...)}
}

// FieldResolutionError reports that the target signature field could
// not be determined or a field specification is invalid: a missing or
// ambiguous target, a name collision, or bad geometry.
type FieldResolutionError struct {
	Field  string
	Reason string
}

func (e *FieldResolutionError) Error() string {
	if e.Field == "" {
		return "field resolution: " + e.Reason
	}
	return fmt.Sprintf("field resolution: %q: %s", e.Field, e.Reason)
}

func fieldErrorf(field, format string, args ...interface{}) *FieldResolutionError {
	return &FieldResolutionError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// PlaceholderOverflowError reports that the produced signature
// container does not fit in the reserved hex capacity. The operation
// fails without output; re-sign with a larger ReserveOverride.
type PlaceholderOverflowError struct {
	Reserved int
	Needed   int
}

func (e *PlaceholderOverflowError) Error() string {
	return fmt.Sprintf("signature container needs %d bytes but only %d were reserved", e.Needed, e.Reserved)
}

// SignerError reports that the signer capability failed to produce a
// signature value. The input document is left untouched.
type SignerError struct {
	Err error
}

func (e *SignerError) Error() string {
	return "signer: " + e.Err.Error()
}

func (e *SignerError) Unwrap() error { return e.Err }
