// Package credential turns what a voter types into the canonical key that
// identifies them. Resolution is pure: the same input always yields the same
// key, which is also the storage key of the voter and its ballot.
package credential

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ballot-engine/pkg/utils"
)

var (
	ErrInvalidFormat = errors.New("invalid credential format")
	ErrUnknownScheme = errors.New("unknown credential scheme")
	ErrNoSecondary   = errors.New("scheme has no secondary credential")
)

// Scheme selects which fields identify a voter
type Scheme string

const (
	SchemeEmailPhone Scheme = "email_phone"
	SchemeStudentID  Scheme = "student_id"
	SchemeStaffID    Scheme = "staff_id"
	SchemeMemberID   Scheme = "member_id"
	SchemeNationalID Scheme = "national_id"
	SchemeCustomPIN  Scheme = "custom_pin"
)

type kind int

const (
	kindNone kind = iota
	kindContact
	kindEmail
	kindPhone
	kindIdentifier
)

type rule struct {
	primary          kind
	secondary        kind
	secondaryAtLogin bool
	primaryLabel     string
	secondaryLabel   string
}

var rules = map[Scheme]rule{
	SchemeEmailPhone: {primary: kindContact, secondary: kindContact, primaryLabel: "Email or phone", secondaryLabel: "Alternate contact"},
	SchemeStudentID:  {primary: kindIdentifier, secondary: kindEmail, primaryLabel: "Student ID", secondaryLabel: "Email"},
	SchemeStaffID:    {primary: kindIdentifier, secondary: kindEmail, primaryLabel: "Staff ID", secondaryLabel: "Email"},
	SchemeMemberID:   {primary: kindIdentifier, secondary: kindPhone, primaryLabel: "Member ID", secondaryLabel: "Phone"},
	SchemeNationalID: {primary: kindIdentifier, secondary: kindPhone, secondaryAtLogin: true, primaryLabel: "National ID", secondaryLabel: "Phone"},
	SchemeCustomPIN:  {primary: kindIdentifier, secondary: kindNone, primaryLabel: "PIN"},
}

// Schemes lists every supported scheme
func Schemes() []Scheme {
	return []Scheme{SchemeEmailPhone, SchemeStudentID, SchemeStaffID, SchemeMemberID, SchemeNationalID, SchemeCustomPIN}
}

// Valid reports whether s is a known scheme
func (s Scheme) Valid() bool {
	_, ok := rules[s]
	return ok
}

// SecondaryRequiredAtLogin reports whether login must present a matching secondary credential
func (s Scheme) SecondaryRequiredAtLogin() bool {
	return rules[s].secondaryAtLogin
}

// HasSecondary reports whether the scheme defines a secondary field at all
func (s Scheme) HasSecondary() bool {
	return rules[s].secondary != kindNone
}

// Labels returns display names for the primary and secondary fields
func (s Scheme) Labels() (primary, secondary string) {
	r := rules[s]
	return r.primaryLabel, r.secondaryLabel
}

var (
	emailRegex      = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`)
	identifierRegex = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// Resolver resolves credentials. The zero value is not usable for phone
// numbers without a country prefix; set DefaultCountryCode.
type Resolver struct {
	DefaultCountryCode string
}

// NewResolver creates a resolver using defaultCountryCode for national phone numbers
func NewResolver(defaultCountryCode string) *Resolver {
	return &Resolver{DefaultCountryCode: defaultCountryCode}
}

// Resolve validates raw under scheme's primary field and returns the canonical key
func (r *Resolver) Resolve(scheme Scheme, raw string) (string, error) {
	rl, ok := rules[scheme]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return r.resolveKind(rl.primary, raw)
}

// ResolveSecondary validates raw under scheme's secondary field
func (r *Resolver) ResolveSecondary(scheme Scheme, raw string) (string, error) {
	rl, ok := rules[scheme]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	if rl.secondary == kindNone {
		return "", ErrNoSecondary
	}
	return r.resolveKind(rl.secondary, raw)
}

func (r *Resolver) resolveKind(k kind, raw string) (string, error) {
	switch k {
	case kindContact:
		if strings.Contains(raw, "@") {
			return normalizeEmail(raw)
		}
		return r.normalizePhone(raw)
	case kindEmail:
		return normalizeEmail(raw)
	case kindPhone:
		return r.normalizePhone(raw)
	case kindIdentifier:
		return normalizeIdentifier(raw)
	}
	return "", ErrNoSecondary
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if !emailRegex.MatchString(email) {
		return "", fmt.Errorf("%w: not a valid email address", ErrInvalidFormat)
	}
	return strings.ToLower(email), nil
}

func (r *Resolver) normalizePhone(raw string) (string, error) {
	phone, err := utils.NormalizePhoneNumber(raw, r.DefaultCountryCode)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return phone, nil
}

func normalizeIdentifier(raw string) (string, error) {
	id := whitespaceRun.ReplaceAllString(strings.TrimSpace(raw), "-")
	if len(id) < 3 {
		return "", fmt.Errorf("%w: identifier must be at least 3 characters", ErrInvalidFormat)
	}
	if !identifierRegex.MatchString(id) {
		return "", fmt.Errorf("%w: identifier may only contain letters, digits, '-' and '_'", ErrInvalidFormat)
	}
	return strings.ToUpper(id), nil
}
