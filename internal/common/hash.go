package common

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/twmb/murmur3"
)

// HashRequestBody computes a stable fingerprint of a job's request body for
// idempotent resubmission. The body is decoded and re-encoded so that JSON
// key order and whitespace do not change the hash, then run through 128-bit
// MurmurHash3 and rendered as a UUID. A nil or empty body hashes as JSON
// null.
func HashRequestBody(body json.RawMessage) (string, error) {
	canonical, err := canonicalJSON(body)
	if err != nil {
		return "", err
	}

	h1, h2 := murmur3.Sum128(canonical)

	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(h1 >> (8 * (7 - i)))
		buf[8+i] = byte(h2 >> (8 * (7 - i)))
	}

	id, err := uuid.FromBytes(buf[:])
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// canonicalJSON re-encodes raw JSON into Go's deterministic encoding.
// encoding/json marshals map keys in sorted order, which normalises key
// order across equivalent payloads.
func canonicalJSON(body json.RawMessage) ([]byte, error) {
	if len(body) == 0 {
		return []byte("null"), nil
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, err
	}
	return json.Marshal(decoded)
}
