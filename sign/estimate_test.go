package sign

import (
	"crypto"
	"encoding/hex"
	"testing"

	"github.com/pdfseal/pdfseal/internal/testpki"
)

func TestEstimateContentsLength(t *testing.T) {
	pki := testpki.New(t)
	signer := newTestSigner(t, pki, "Estimate Signer")

	plain := &Request{Signer: signer, DigestAlgorithm: crypto.SHA256}
	base, err := estimateContentsLength(plain)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if base%2 != 0 {
		t.Error("capacity is not an even number of hex digits")
	}
	if base <= hex.EncodedLen(signatureBaseLength) {
		t.Errorf("capacity %d does not cover the certificate chain", base)
	}

	withTSA := &Request{Signer: signer, DigestAlgorithm: crypto.SHA256, TSA: TSA{URL: "http://tsa.example"}}
	if got, _ := estimateContentsLength(withTSA); got != base+hex.EncodedLen(timestampTokenLength) {
		t.Errorf("timestamp reservation = %d, want %d", got, base+hex.EncodedLen(timestampTokenLength))
	}

	withCRL := &Request{Signer: signer, DigestAlgorithm: crypto.SHA256}
	if err := withCRL.RevocationData.AddCRL(make([]byte, 100)); err != nil {
		t.Fatal(err)
	}
	if got, _ := estimateContentsLength(withCRL); got != base+hex.EncodedLen(100) {
		t.Errorf("revocation reservation = %d, want %d", got, base+hex.EncodedLen(100))
	}
}

func TestEstimateReserveOverride(t *testing.T) {
	got, err := estimateContentsLength(&Request{ReserveOverride: 777})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if got != 777 {
		t.Errorf("capacity = %d, want the override 777", got)
	}
}

func TestEstimateDocumentTimestamp(t *testing.T) {
	got, err := estimateContentsLength(&Request{CertType: TimeStampSignature})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	want := hex.EncodedLen(signatureBaseLength) + hex.EncodedLen(timestampTokenLength)
	if got != want {
		t.Errorf("capacity = %d, want %d", got, want)
	}
}
