package sign

import (
	"bytes"
	"fmt"
	"strconv"
)

const byteRangePlaceholder = "/ByteRange[0 ********** ********** **********]"

// placeholder records where the reserved regions of the signature
// dictionary ended up in the staged output. Offsets are relative to
// the dictionary body until rebase, absolute afterwards.
type placeholder struct {
	byteRangeOff int64
	hexOff       int64
	hexLen       int
}

func (p *placeholder) rebase(bodyStart int64) {
	p.byteRangeOff += bodyStart
	p.hexOff += bodyStart
}

// buildSignatureDict serializes the signature dictionary with a byte
// range placeholder and a zero filled Contents reservation of
// contentsCap hex characters.
func buildSignatureDict(req *Request, contentsCap int) ([]byte, placeholder) {
	var buffer bytes.Buffer
	var ph placeholder

	if req.CertType == TimeStampSignature {
		buffer.WriteString("<< /Type /DocTimeStamp")
		buffer.WriteString(" /Filter /Adobe.PPKLite")
		buffer.WriteString(" /SubFilter /ETSI.RFC3161")
	} else {
		buffer.WriteString("<< /Type /Sig")
		buffer.WriteString(" /Filter /Adobe.PPKLite")
		buffer.WriteString(" /SubFilter /adbe.pkcs7.detached")
	}

	buffer.WriteString(" ")
	ph.byteRangeOff = int64(buffer.Len())
	buffer.WriteString(byteRangePlaceholder)

	buffer.WriteString(" /Contents<")
	ph.hexOff = int64(buffer.Len())
	ph.hexLen = contentsCap
	buffer.Write(bytes.Repeat([]byte("0"), contentsCap))
	buffer.WriteString(">")

	switch req.CertType {
	case CertificationSignature:
		buffer.WriteString(" /Reference [")
		buffer.WriteString(" << /Type /SigRef")
		buffer.WriteString(" /TransformMethod /DocMDP")
		buffer.WriteString(" /TransformParams <<")
		buffer.WriteString(" /Type /TransformParams")
		buffer.WriteString(" /P " + strconv.Itoa(int(req.DocMDPPerm)))
		buffer.WriteString(" /V /1.2")
		buffer.WriteString(" >> >> ]")
	case UsageRightsSignature:
		buffer.WriteString(" /Reference [")
		buffer.WriteString(" << /Type /SigRef")
		buffer.WriteString(" /TransformMethod /UR3")
		buffer.WriteString(" /TransformParams <<")
		buffer.WriteString(" /Type /TransformParams")
		buffer.WriteString(" /V /2.2")
		buffer.WriteString(" >> >> ]")
	}

	if req.CertType != TimeStampSignature {
		if req.Info.Name != "" {
			buffer.WriteString(" /Name ")
			buffer.WriteString(pdfString(req.Info.Name))
		}
		if req.Info.Location != "" {
			buffer.WriteString(" /Location ")
			buffer.WriteString(pdfString(req.Info.Location))
		}
		if req.Info.Reason != "" {
			buffer.WriteString(" /Reason ")
			buffer.WriteString(pdfString(req.Info.Reason))
		}
		if req.Info.ContactInfo != "" {
			buffer.WriteString(" /ContactInfo ")
			buffer.WriteString(pdfString(req.Info.ContactInfo))
		}
		buffer.WriteString(" /M ")
		buffer.WriteString(pdfDateTime(req.Info.Date))
	}

	buffer.WriteString(" >>")
	return buffer.Bytes(), ph
}

// computeByteRange splits the staged output around the Contents
// reservation. The excluded gap spans the hex string including its
// angle bracket delimiters.
func computeByteRange(totalSize int64, ph placeholder) [4]int64 {
	gapStart := ph.hexOff - 1
	gapEnd := ph.hexOff + int64(ph.hexLen) + 1
	return [4]int64{0, gapStart, gapEnd, totalSize - gapEnd}
}

// formatByteRange renders the final byte range token padded with
// spaces to exactly the placeholder width, so patching it in place
// cannot shift any recorded offset.
func formatByteRange(br [4]int64) ([]byte, error) {
	token := fmt.Sprintf("/ByteRange[%d %d %d %d]", br[0], br[1], br[2], br[3])
	if len(token) > len(byteRangePlaceholder) {
		return nil, structuralf("byterange", "byte range %q exceeds its %d byte reservation", token, len(byteRangePlaceholder))
	}
	return append([]byte(token), bytes.Repeat([]byte(" "), len(byteRangePlaceholder)-len(token))...), nil
}

// signedContent concatenates the two ranges covered by the signature.
func signedContent(data []byte, br [4]int64) []byte {
	content := make([]byte, 0, br[1]+br[3])
	content = append(content, data[br[0]:br[0]+br[1]]...)
	content = append(content, data[br[2]:br[2]+br[3]]...)
	return content
}
