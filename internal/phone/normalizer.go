// Package phone derives canonical identities from raw transport
// identifiers. Everything here is pure; the original identifier is never
// modified, only compared through its canonical form.
package phone

import "strings"

const (
	brazilCountryCode = "55"

	// A Brazilian mobile number is CC(2) + area(2) + 9-digit subscriber
	// beginning with 9. The legacy form omits that leading 9.
	brazilMobileLen       = 13
	brazilLegacyMobileLen = 12
)

// Digits strips the chat suffix and every non-digit character from a raw
// identifier, leaving only the dialable number for comparison.
func Digits(raw string) string {
	if at := strings.IndexByte(raw, '@'); at >= 0 {
		raw = raw[:at]
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Canonical maps a raw identifier to its canonical identity. With
// mergeBrazil enabled, the 12-digit legacy form of a Brazilian mobile
// number collapses into the 13-digit with-9 form, which is preferred as
// canonical whenever both variants are observed.
func Canonical(raw string, mergeBrazil bool) string {
	digits := Digits(raw)
	if !mergeBrazil {
		return digits
	}
	if isBrazilLegacyMobile(digits) {
		return digits[:4] + "9" + digits[4:]
	}
	return digits
}

// Variants returns the identities that should be treated as the same
// contact as raw, canonical form first. Without the merge policy, or for
// non-Brazilian numbers, the canonical identity is the only variant.
func Variants(raw string, mergeBrazil bool) []string {
	canonical := Canonical(raw, mergeBrazil)
	if !mergeBrazil || !isBrazilMobile(canonical) {
		return []string{canonical}
	}
	legacy := canonical[:4] + canonical[5:]
	return []string{canonical, legacy}
}

// IsValid reports whether an identifier carries enough digits to be a
// dialable phone number.
func IsValid(raw string) bool {
	n := len(Digits(raw))
	return n >= 8 && n <= 15
}

func isBrazilMobile(digits string) bool {
	return len(digits) == brazilMobileLen &&
		strings.HasPrefix(digits, brazilCountryCode) &&
		digits[4] == '9'
}

func isBrazilLegacyMobile(digits string) bool {
	if len(digits) != brazilLegacyMobileLen || !strings.HasPrefix(digits, brazilCountryCode) {
		return false
	}
	// Legacy subscriber numbers start 6-9; landlines (2-5) keep 12 digits
	// and must not gain a 9.
	return digits[4] >= '6' && digits[4] <= '9'
}
