package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "plain digits", in: "5215512345678", want: "5215512345678", ok: true},
		{name: "plus prefix", in: "+5215512345678", want: "5215512345678", ok: true},
		{name: "double zero prefix", in: "005215512345678", want: "5215512345678", ok: true},
		{name: "spaces and dashes", in: "+52 1 55-1234-5678", want: "5215512345678", ok: true},
		{name: "parentheses and dots", in: "(52) 155.1234.5678", want: "5215512345678", ok: true},
		{name: "minimum length", in: "1234567", want: "1234567", ok: true},
		{name: "empty", in: "", ok: false},
		{name: "only separators", in: " - ", ok: false},
		{name: "letters", in: "52abc5512345678", ok: false},
		{name: "too short", in: "123456", ok: false},
		{name: "too long", in: "1234567890123456", ok: false},
		{name: "leading zero after strip", in: "+0215512345678", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrInvalidNumber)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
