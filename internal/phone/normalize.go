// Package phone turns user-entered Brazilian phone numbers into the canonical
// country-prefixed digit string the messaging provider expects.
package phone

import "strings"

const (
	CountryCode    = "55"
	trunkPrefix    = "00"
	localMaxLen    = 11
	legacyLocalLen = 10
	areaCodeLen    = 2
)

// Normalize returns "55" followed by 11 local digits, or "" when raw cannot be
// turned into a mobile number. A 10-digit local part (area code plus an
// 8-digit number) gets the mobile "9" inserted after the area code.
func Normalize(raw string) string {
	digits := onlyDigits(raw)
	if digits == "" {
		return ""
	}

	digits = strings.TrimPrefix(digits, trunkPrefix)

	local := strings.TrimPrefix(digits, CountryCode)
	local = strings.TrimLeft(local, "0")

	if len(local) > localMaxLen {
		local = local[len(local)-localMaxLen:]
	}

	if len(local) == legacyLocalLen {
		local = local[:areaCodeLen] + "9" + local[areaCodeLen:]
	}

	if len(local) != localMaxLen {
		return ""
	}
	return CountryCode + local
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
