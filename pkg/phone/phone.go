// Package phone normalizes phone numbers to the canonical international form
// every provider adapter dispatches with: digits only, no leading plus, no
// separators. Numbers that cannot be normalized are rejected before any
// network call is made.
package phone

import (
	"errors"
	"strings"
)

var ErrInvalidNumber = errors.New("invalid phone number")

const (
	minDigits = 7
	maxDigits = 15 // E.164 upper bound
)

// Normalize converts a raw phone number into canonical international form.
// Accepts "+", "00" international prefixes, spaces, dots, dashes and
// parentheses. Returns ErrInvalidNumber for anything else.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidNumber
	}

	if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separator, drop
		default:
			return "", ErrInvalidNumber
		}
	}

	digits := b.String()
	digits = strings.TrimPrefix(digits, "00")

	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", ErrInvalidNumber
	}
	if digits[0] == '0' {
		return "", ErrInvalidNumber
	}
	return digits, nil
}
