package utils

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// E.164: a plus sign, a non-zero leading digit, at most 15 digits total
	e164Regex = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
	// Separators people type between digit groups
	separatorRegex = regexp.MustCompile(`[\s\-().]`)
	digitsRegex    = regexp.MustCompile(`^[0-9]+$`)
)

var (
	ErrEmptyPhone       = errors.New("phone number cannot be empty")
	ErrInvalidPhone     = errors.New("invalid phone number format")
	ErrInvalidCountryCd = errors.New("invalid default country code")
)

// NormalizePhoneNumber strips separators and returns the number in E.164 form.
// Numbers without an international prefix get defaultCountryCode prepended; a
// single leading trunk zero is dropped first ("050 123 4567" -> "+233501234567"
// for country code 233). A "00" international prefix is treated like "+".
func NormalizePhoneNumber(phone string, defaultCountryCode string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", ErrEmptyPhone
	}

	normalized := separatorRegex.ReplaceAllString(phone, "")

	switch {
	case strings.HasPrefix(normalized, "+"):
		// already international
	case strings.HasPrefix(normalized, "00"):
		normalized = "+" + normalized[2:]
	default:
		cc := strings.TrimPrefix(strings.TrimSpace(defaultCountryCode), "+")
		if cc == "" || !digitsRegex.MatchString(cc) || cc[0] == '0' {
			return "", ErrInvalidCountryCd
		}
		normalized = "+" + cc + strings.TrimPrefix(normalized, "0")
	}

	if !e164Regex.MatchString(normalized) {
		return "", ErrInvalidPhone
	}

	return normalized, nil
}

// IsE164 reports whether phone is already in canonical E.164 form.
func IsE164(phone string) bool {
	return e164Regex.MatchString(phone)
}

// MaskPhoneNumber hides all but the last four digits for logs and receipts.
// Example: "+233501234567" -> "+********4567"
func MaskPhoneNumber(phone string) string {
	if len(phone) <= 5 {
		return phone
	}
	return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
}
