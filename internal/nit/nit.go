// Package nit computes and verifies the check digit ("DV") of a national
// tax identifier (NIT).
//
// The digits are read from the least significant end and multiplied by a
// fixed prime weight table; the weighted sum modulo 11 yields the check
// digit. Only the first len(weights) digits participate.
package nit

import (
	"strings"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
)

// MinDigits is the shortest digit sequence accepted as a tax identifier.
const MinDigits = 5

var weights = [...]int{71, 67, 59, 53, 47, 43, 41, 37, 29, 23, 19, 17, 13, 7, 3}

// Result is a validated tax identifier.
type Result struct {
	Digits     string
	CheckDigit int
}

// Digits strips every character that is not 0-9.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Split separates the printed check digit from a tax identifier written as
// "<base>-<dv>". Only a single digit after the last hyphen is a check
// digit; otherwise hyphens are separators and the whole input is the base.
func Split(raw string) (base, printed string) {
	raw = strings.TrimSpace(raw)
	i := strings.LastIndex(raw, "-")
	if i < 0 {
		return raw, ""
	}
	suffix := strings.TrimSpace(raw[i+1:])
	if len(suffix) != 1 || suffix[0] < '0' || suffix[0] > '9' {
		return raw, ""
	}
	return raw[:i], suffix
}

// CheckDigit computes the check digit of a digits-only sequence. The result
// is always in [0, 10].
func CheckDigit(digits string) (int, error) {
	if len(digits) < MinDigits {
		return 0, common.Newf(common.KindInvalidIdentifier,
			"tax identifier must have at least %d digits", MinDigits)
	}

	sum := 0
	for i := 0; i < len(weights) && i < len(digits); i++ {
		c := digits[len(digits)-1-i]
		if c < '0' || c > '9' {
			return 0, common.New(common.KindInvalidIdentifier, "tax identifier must contain digits only")
		}
		sum += int(c-'0') * weights[i]
	}

	r := sum % 11
	if r > 1 {
		return 11 - r, nil
	}
	return r, nil
}

// Validate normalizes raw (dropping any printed check digit and separators),
// computes its check digit and, when explicit is non-nil, requires it to
// match.
func Validate(raw string, explicit *int) (Result, error) {
	base, _ := Split(raw)
	digits := Digits(base)

	dv, err := CheckDigit(digits)
	if err != nil {
		return Result{}, err
	}

	if explicit != nil && *explicit != dv {
		return Result{}, common.Newf(common.KindCheckDigitMismatch,
			"check digit %d does not match computed %d", *explicit, dv)
	}

	return Result{Digits: digits, CheckDigit: dv}, nil
}
