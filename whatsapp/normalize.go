package whatsapp

import (
	"errors"
	"strings"
)

var errEmptyNumber = errors.New("empty phone number")

// NormalizeNumber strips everything but digits from a raw recipient and
// prepends the default country code when the number is local. A number of
// exactly localLength digits lacks a code by definition, even when it
// happens to start with the code digits.
func NormalizeNumber(raw, countryCode string, localLength int) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", errEmptyNumber
	}
	if len(digits) == localLength {
		digits = countryCode + digits
	}
	return digits, nil
}
