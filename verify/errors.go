package verify

import "fmt"

// StructuralError reports a document that cannot be examined at all,
// as opposed to failures local to one signature.
type StructuralError struct {
	Op  string
	Err error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// MalformedSignatureError reports a signature dictionary or container
// too broken to evaluate: missing Contents, an unusable ByteRange or
// an unparseable container.
type MalformedSignatureError struct {
	Reason string
}

func (e *MalformedSignatureError) Error() string {
	return "malformed signature: " + e.Reason
}

// IntegrityTamperedError reports that the covered bytes no longer
// match the signature value.
type IntegrityTamperedError struct {
	Reason string
}

func (e *IntegrityTamperedError) Error() string {
	return "integrity check failed: " + e.Reason
}

// TrustError reports that a certification path could not be built to
// an accepted anchor, or that policy or revocation checks rejected
// the chain.
type TrustError struct {
	Reason string
}

func (e *TrustError) Error() string {
	return "trust check failed: " + e.Reason
}
