// Package common holds report types shared by the signing and
// verification packages.
package common

import (
	"time"

	"github.com/digitorus/timestamp"
)

// DocumentInfo describes metadata read from the document information
// dictionary of a PDF, independent of any signature.
type DocumentInfo struct {
	Author     string `json:"author"`
	Creator    string `json:"creator"`
	Hash       string `json:"hash"`
	Name       string `json:"name"`
	Permission string `json:"permission"`
	Producer   string `json:"producer"`
	Subject    string `json:"subject"`
	Title      string `json:"title"`

	Pages        int       `json:"pages"`
	Keywords     []string  `json:"keywords"`
	ModDate      time.Time `json:"mod_date"`
	CreationDate time.Time `json:"creation_date"`
}

// SignatureInfo describes the signer metadata carried by a single
// signature dictionary and its cryptographic container.
type SignatureInfo struct {
	Name          string               `json:"name"`
	Reason        string               `json:"reason"`
	Location      string               `json:"location"`
	ContactInfo   string               `json:"contact_info"`
	SignatureTime *time.Time           `json:"signature_time,omitempty"`
	TimeStamp     *timestamp.Timestamp `json:"time_stamp,omitempty"`
	DocumentHash  string               `json:"document_hash"`
	SignatureHash string               `json:"signature_hash"`
	HashAlgorithm string               `json:"hash_algorithm"`
}
