// Package phone normalises and formats the phone numbers carried on call
// platform endpoints.
package phone

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	defaultRegion  = "US"
	nationalLength = 10
)

var grouping = regexp.MustCompile(`([0-9]+)([0-9]{3})([0-9]{3})([0-9]{4})`)

// Digits strips everything but digits, so "sip:+1 (555) 123-4567" becomes
// "15551234567".
func Digits(raw string) string {
	return phonenumbers.NormalizeDigitsOnly(strings.TrimSpace(raw))
}

// E164 returns the number in E.164 form. Ten digit numbers are read as
// national numbers of the default region. Numbers that do not parse are
// returned as "+" followed by their digits.
func E164(raw string) string {
	digits := Digits(raw)
	if digits == "" {
		return ""
	}

	candidate := "+" + digits
	if len(digits) == nationalLength {
		candidate = digits
	}
	number, err := phonenumbers.Parse(candidate, defaultRegion)
	if err == nil && phonenumbers.IsValidNumber(number) {
		return phonenumbers.Format(number, phonenumbers.E164)
	}
	if len(digits) == nationalLength {
		return "+1" + digits
	}
	return "+" + digits
}

// Display renders a number for the operator, e.g. "+1 (555) 123-4567".
func Display(raw string) string {
	digits := Digits(raw)
	if digits == "" {
		return ""
	}

	number, err := phonenumbers.Parse("+"+digits, defaultRegion)
	if err == nil && phonenumbers.IsValidNumber(number) {
		if number.GetCountryCode() == 1 {
			return "+1 " + phonenumbers.Format(number, phonenumbers.NATIONAL)
		}
		return phonenumbers.Format(number, phonenumbers.INTERNATIONAL)
	}

	return grouping.ReplaceAllString(digits, "+$1 ($2) $3-$4")
}
