// Package phone canonicalizes raw phone strings and expands them into the
// alternate representations a Brazilian mobile number may be stored under.
package phone

import (
	"github.com/nyaruka/phonenumbers"
)

// CountryCodeBR is the Brazilian country calling code.
const CountryCodeBR = "55"

// mobilePrefix is the extra leading digit of Brazilian mobile subscriber numbers.
const mobilePrefix = '9'

// Normalize strips everything but digits from raw. It returns false when no
// digits remain.
func Normalize(raw string) (string, bool) {
	digits := phonenumbers.NormalizeDigitsOnly(raw)
	if digits == "" {
		return "", false
	}
	return digits, true
}

// Variants returns the de-duplicated representations of raw, canonical form
// first. Only the Brazilian numbering plan ambiguity is modeled:
//
//   - 13 digits "55"+area+"9"+8 digits -> also the 12 digit form without the 9
//   - 12 digits "55"+area+8 digits     -> also the 13 digit form with the 9
//   - 11 digits area+"9"+8 digits      -> "55" prepended, and its 12 digit form
//   - 10 digits area+8 digits          -> "55" prepended with the 9 inserted
//
// 10 and 11 digit numbers are too short to carry the country code, so area
// code 55 is treated as an area code there.
//
// An invalid raw value yields nil.
func Variants(raw string) []string {
	canonical, ok := Normalize(raw)
	if !ok {
		return nil
	}

	out := []string{canonical}
	add := func(v string) {
		for _, existing := range out {
			if existing == v {
				return
			}
		}
		out = append(out, v)
	}

	hasCC := len(canonical) >= 2 && canonical[:2] == CountryCodeBR
	switch {
	case len(canonical) == 13 && hasCC:
		if canonical[4] == mobilePrefix {
			add(canonical[:4] + canonical[5:])
		}
	case len(canonical) == 12 && hasCC:
		add(canonical[:4] + string(mobilePrefix) + canonical[4:])
	case len(canonical) == 11:
		withCC := CountryCodeBR + canonical
		add(withCC)
		if canonical[2] == mobilePrefix {
			add(withCC[:4] + withCC[5:])
		}
	case len(canonical) == 10:
		add(CountryCodeBR + canonical[:2] + string(mobilePrefix) + canonical[2:])
	}
	return out
}

// Region returns the ISO region of a canonical number, or "" when unknown.
// It is used for log context only.
func Region(canonical string) string {
	if canonical == "" {
		return ""
	}
	num, err := phonenumbers.Parse("+"+canonical, "")
	if err != nil {
		return ""
	}
	return phonenumbers.GetRegionCodeForNumber(num)
}
