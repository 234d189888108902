// Package validate holds the pure input validators used by the intake flow.
// Nothing here touches the network or the record store.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidEmail is returned for text that does not match a
	// local@domain address.
	ErrInvalidEmail = errors.New("validate: invalid email")

	// ErrInvalidFormat is returned when a birth date does not match
	// DD/MM/AAAA.
	ErrInvalidFormat = errors.New("validate: invalid date format")

	// ErrInvalidCalendarDate is returned for well-formed dates that do
	// not exist on the calendar (e.g. 31/02).
	ErrInvalidCalendarDate = errors.New("validate: date does not exist")

	// ErrInvalidPostalCode is returned when a postal code is not exactly
	// 8 digits after stripping punctuation.
	ErrInvalidPostalCode = errors.New("validate: invalid postal code")

	// ErrInvalidNationalID is returned when a national id is not exactly
	// 11 digits after stripping punctuation.
	ErrInvalidNationalID = errors.New("validate: invalid national id")
)

var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	dateRe  = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)
	idRe    = regexp.MustCompile(`\d{3}\.?\d{3}\.?\d{3}-?\d{2}`)
)

// DigitsOnly strips everything but ASCII digits from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Email trims and lowercases s, then checks it against a standard
// local@domain pattern. Returns the normalized address.
func Email(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !emailRe.MatchString(s) {
		return "", ErrInvalidEmail
	}
	return s, nil
}

// BirthDate parses a DD/MM/AAAA date. Format and calendar failures are
// distinct so the pipeline can name the right problem in its re-prompt.
func BirthDate(s string) (time.Time, error) {
	m := dateRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, ErrInvalidFormat
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range components; a round-trip mismatch
	// means the date never existed.
	if d.Day() != day || d.Month() != time.Month(month) || d.Year() != year {
		return time.Time{}, ErrInvalidCalendarDate
	}
	return d, nil
}

// Age computes full years between birth and now, adjusting when the
// birthday has not yet happened this year.
func Age(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	anniversary := birth.AddDate(age, 0, 0)
	if now.Before(anniversary) {
		age--
	}
	return age
}

// PostalCode strips punctuation and requires exactly 8 digits. Returns the
// digit-only code.
func PostalCode(s string) (string, error) {
	code := DigitsOnly(s)
	if len(code) != 8 {
		return "", ErrInvalidPostalCode
	}
	return code, nil
}

// ID is a normalized national identifier in both stored forms.
type ID struct {
	Digits    string // 11 digits
	Formatted string // XXX.XXX.XXX-XX
}

// NationalID strips punctuation and requires exactly 11 digits. The record
// store may hold either the digit-only or the formatted form, so both are
// returned for lookups.
func NationalID(s string) (ID, error) {
	digits := DigitsOnly(s)
	if len(digits) != 11 {
		return ID{}, ErrInvalidNationalID
	}
	return ID{
		Digits:    digits,
		Formatted: fmt.Sprintf("%s.%s.%s-%s", digits[:3], digits[3:6], digits[6:9], digits[9:]),
	}, nil
}

// Masked returns the identifier with the middle digits hidden, for
// user-facing echoes and logs.
func (id ID) Masked() string {
	return id.Digits[:3] + "***" + id.Digits[9:]
}

// FindNationalID scans free text for an embedded 11-digit identifier,
// formatted or not. Returns the digit-only form, or "" when absent. Used as
// the deterministic fallback when the classifier is unavailable.
func FindNationalID(text string) string {
	for _, cand := range idRe.FindAllString(text, -1) {
		digits := DigitsOnly(cand)
		if len(digits) == 11 {
			return digits
		}
	}
	// Last resort: the whole message might be a bare id with spaces. Only
	// taken when the message carries no letters, so "ligue 11 98765-4321"
	// is not mistaken for an id.
	if strings.IndexFunc(text, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	}) == -1 {
		if digits := DigitsOnly(text); len(digits) == 11 {
			return digits
		}
	}
	return ""
}
