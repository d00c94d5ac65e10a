package sign

import (
	"bytes"
	"crypto"
	"fmt"
	"io"
	"net/http"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
)

// fetchTimestampToken obtains an RFC 3161 token over the given
// message, typically the signature value being countersigned.
func fetchTimestampToken(tsa *TSA, message []byte) ([]byte, error) {
	tsq, err := timestamp.CreateRequest(bytes.NewReader(message), &timestamp.RequestOptions{
		Certificates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create timestamp request: %w", err)
	}
	return postTimestampQuery(tsa, tsq)
}

// fetchTimestampTokenForDigest obtains a token over an already
// computed digest, as needed for document timestamps where the
// imprint covers the byte range directly.
func fetchTimestampTokenForDigest(tsa *TSA, digest []byte, hash crypto.Hash) ([]byte, error) {
	tsq, err := (&timestamp.Request{
		HashAlgorithm: hash,
		HashedMessage: digest,
		Certificates:  true,
	}).Marshal()
	if err != nil {
		return nil, fmt.Errorf("create timestamp request: %w", err)
	}
	return postTimestampQuery(tsa, tsq)
}

func postTimestampQuery(tsa *TSA, tsq []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, tsa.URL, bytes.NewReader(tsq))
	if err != nil {
		return nil, fmt.Errorf("prepare timestamp request (%s): %w", tsa.URL, err)
	}

	req.Header.Add("Content-Type", "application/timestamp-query")
	req.Header.Add("Content-Transfer-Encoding", "binary")
	if tsa.Username != "" && tsa.Password != "" {
		req.SetBasicAuth(tsa.Username, tsa.Password)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("timestamp request failed (%s): %w", tsa.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read timestamp response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("timestamp authority returned status %d: %s", resp.StatusCode, body)
	}

	ts, err := timestamp.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp response: %w", err)
	}
	if _, err := pkcs7.Parse(ts.RawToken); err != nil {
		return nil, fmt.Errorf("parse timestamp token: %w", err)
	}
	return ts.RawToken, nil
}
