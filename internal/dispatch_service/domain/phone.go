package domain

import "strings"

// DigitsOnly strips every non-digit rune from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// HasPlausiblePhone reports whether s looks like a deliverable phone number:
// non-empty with at least 10 digits after stripping formatting.
func HasPlausiblePhone(s string) bool {
	return len(DigitsOnly(s)) >= 10
}

// NormalizePhone converts a contact number to the international digit form the
// gateway expects. countryCode is prepended when absent (Brazilian numbers by
// default), and the mobile '9' is inserted for 12-digit numbers that lack it.
func NormalizePhone(s, countryCode string) string {
	clean := DigitsOnly(s)
	// A number can only already be international at country-code length plus
	// ten digits or more; below that, leading digits matching the country code
	// are an area code (Brazilian area code 55 exists).
	international := countryCode != "" &&
		len(clean) >= len(countryCode)+10 &&
		strings.HasPrefix(clean, countryCode)
	if countryCode != "" && len(clean) >= 10 && !international {
		clean = countryCode + clean
	}
	// Brazilian mobile numbers are CC(2) + area(2) + 9 + subscriber(8).
	if countryCode == "55" && len(clean) == 12 && clean[4] != '9' {
		clean = clean[:4] + "9" + clean[4:]
	}
	return clean
}
