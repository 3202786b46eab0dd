package hmacsig

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignDeterministic(t *testing.T) {
	sig1 := Sign("1700000000", []byte(`{"a":1}`), "secret")
	sig2 := Sign("1700000000", []byte(`{"a":1}`), "secret")
	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 64)
}

func TestSignCoversTimestampAndBody(t *testing.T) {
	base := Sign("1700000000", []byte("body"), "secret")

	assert.NotEqual(t, base, Sign("1700000001", []byte("body"), "secret"))
	assert.NotEqual(t, base, Sign("1700000000", []byte("body2"), "secret"))
	assert.NotEqual(t, base, Sign("1700000000", []byte("body"), "other"))
}

func TestVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"event":"message"}`)
	sig, ts := SignNow(body, "secret")

	require.NoError(t, Verify(sig, ts, body, "secret", DefaultTolerance))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	sig, ts := SignNow([]byte("original"), "secret")

	err := Verify(sig, ts, []byte("tampered"), "secret", DefaultTolerance)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	sig, ts := SignNow([]byte("body"), "secret")

	err := Verify(sig, ts, []byte("body"), "other-secret", DefaultTolerance)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerifyToleranceWindow(t *testing.T) {
	body := []byte("body")

	cases := []struct {
		name    string
		age     time.Duration
		wantErr error
	}{
		{name: "just inside window", age: 299 * time.Second, wantErr: nil},
		{name: "just outside window", age: 301 * time.Second, wantErr: ErrTimestampSkew},
		{name: "future timestamp inside window", age: -299 * time.Second, wantErr: nil},
		{name: "future timestamp outside window", age: -301 * time.Second, wantErr: ErrTimestampSkew},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := strconv.FormatInt(time.Now().Add(-tc.age).Unix(), 10)
			sig := Sign(ts, body, "secret")

			err := Verify(sig, ts, body, "secret", 300*time.Second)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestVerifyRejectsBadTimestamp(t *testing.T) {
	ts := "not-a-unix-time"
	sig := Sign(ts, []byte("body"), "secret")

	err := Verify(sig, ts, []byte("body"), "secret", DefaultTolerance)
	assert.ErrorIs(t, err, ErrBadTimestamp)
}

func TestVerifySignatureCheckedBeforeTimestamp(t *testing.T) {
	// A forged request with a garbage timestamp must fail on the signature,
	// not leak whether the timestamp parsed.
	err := Verify("deadbeef", "garbage", []byte("body"), "secret", DefaultTolerance)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}
