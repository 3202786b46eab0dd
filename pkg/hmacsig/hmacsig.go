// Package hmacsig implements the signed, timestamp-scoped authentication
// applied to all worker<->backend traffic. A signature covers the exact byte
// sequence of the request body concatenated after the unix timestamp, so any
// re-serialization on either side invalidates it.
package hmacsig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DefaultTolerance is the maximum clock skew accepted between the timestamp
// header and server time before a request is treated as a replay.
const DefaultTolerance = 300 * time.Second

var (
	ErrSignatureMismatch = errors.New("hmac signature mismatch")
	ErrTimestampSkew     = errors.New("timestamp outside tolerance window")
	ErrBadTimestamp      = errors.New("malformed timestamp")
)

// Sign computes hex(HMAC-SHA256(timestamp + body, secret)).
func Sign(timestamp string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignNow signs the body with the current unix timestamp and returns both
// the signature and the timestamp used, ready for the X-HMAC-Signature and
// X-Timestamp headers.
func SignNow(body []byte, secret string) (signature, timestamp string) {
	timestamp = strconv.FormatInt(time.Now().Unix(), 10)
	return Sign(timestamp, body, secret), timestamp
}

// Verify recomputes the signature over the received bytes and compares in
// constant time, then checks the timestamp against the tolerance window.
// A zero tolerance falls back to DefaultTolerance.
func Verify(signature, timestamp string, body []byte, secret string, tolerance time.Duration) error {
	expected := Sign(timestamp, body, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadTimestamp, timestamp)
	}

	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	skew := time.Since(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return ErrTimestampSkew
	}
	return nil
}
