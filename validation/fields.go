package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/arturoeanton/witness-runtime/model"
)

// Length limits, counted in characters after trimming.
const (
	MaxPhoneLength        = 20
	MaxEmailLength        = 254
	MaxNameLength         = 50
	DefaultMaxTextLength  = 1000
	MaxRelationshipLength = 50
	MaxAddressLength      = 500
)

var (
	// international form: optional +, 1-3 digit country code not starting
	// with 0, separators, 6-14 digits
	phoneInternationalRegex = regexp.MustCompile(`^\+?[1-9][0-9]{0,2}[\s\-()]*(?:[0-9][\s\-()]*){6,14}$`)
	// a leading + always introduces a country code
	phoneSimpleRegex = regexp.MustCompile(`^(?:\+[1-9][0-9]{5,14}|[0-9]{6,15})$`)
	phoneSeparatorsRegex    = regexp.MustCompile(`[\s\-()]`)
	phoneDisallowedRegex    = regexp.MustCompile(`[^0-9+\-() ]`)

	emailRegex = regexp.MustCompile("^[a-z0-9!#$%&'*+/=?^_`{|}~-]+(?:\\.[a-z0-9!#$%&'*+/=?^_`{|}~-]+)*" +
		"@(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\\.)+[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$")

	nameRegex = regexp.MustCompile(`^[a-zA-ZÀ-ÿ\s\-']{2,50}$`)

	tagRegex          = regexp.MustCompile(`<[^>]*>`)
	jsSchemeRegex     = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerRegex = regexp.MustCompile(`(?i)on\w+\s*=`)
)

// ValidatePhoneNumber accepts international and plain digit phone numbers.
// The sanitized value keeps digits, '+', '-', '(', ')' and spaces only.
func ValidatePhoneNumber(phone string) Result {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return invalid(KindEmptyField, "Phone number is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxPhoneLength {
		return invalid(KindTooLong, fmt.Sprintf("Phone number must be %d characters or less", MaxPhoneLength))
	}

	normalized := phoneSeparatorsRegex.ReplaceAllString(trimmed, "")
	if !phoneInternationalRegex.MatchString(trimmed) && !phoneSimpleRegex.MatchString(normalized) {
		return invalid(KindFormatError, "Invalid phone number format")
	}

	return valid(phoneDisallowedRegex.ReplaceAllString(trimmed, ""))
}

// ValidateEmail lower-cases and trims the address before matching it.
func ValidateEmail(email string) Result {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return invalid(KindEmptyField, "Email is required")
	}
	if utf8.RuneCountInString(normalized) > MaxEmailLength {
		return invalid(KindTooLong, fmt.Sprintf("Email must be %d characters or less", MaxEmailLength))
	}
	if !emailRegex.MatchString(normalized) {
		return invalid(KindFormatError, "Invalid email format")
	}
	return valid(normalized)
}

// ValidateName accepts letters (Latin-1 accents included), spaces, hyphens
// and apostrophes.
func ValidateName(name string) Result {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return invalid(KindEmptyField, "Name is required")
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return invalid(KindTooLong, fmt.Sprintf("Name must be %d characters or less", MaxNameLength))
	}
	if !nameRegex.MatchString(trimmed) {
		return invalid(KindFormatError, "Name can only contain letters, spaces, hyphens and apostrophes")
	}
	return valid(tagRegex.ReplaceAllString(trimmed, ""))
}

// ValidateText validates free text of at most maxLength characters and strips
// markup that could execute when rendered. It is defence in depth: callers
// still encode for their own output context.
func ValidateText(text string, maxLength int) Result {
	return validateText(text, maxLength, "Text")
}

// ValidateTextDefault is ValidateText with DefaultMaxTextLength.
func ValidateTextDefault(text string) Result {
	return ValidateText(text, DefaultMaxTextLength)
}

func validateText(text string, maxLength int, label string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return invalid(KindEmptyField, label+" is required")
	}
	if utf8.RuneCountInString(trimmed) > maxLength {
		return invalid(KindTooLong, fmt.Sprintf("%s must be %d characters or less", label, maxLength))
	}

	sanitized := tagRegex.ReplaceAllString(trimmed, "")
	sanitized = jsSchemeRegex.ReplaceAllString(sanitized, "")
	sanitized = eventHandlerRegex.ReplaceAllString(sanitized, "")
	sanitized = strings.TrimSpace(sanitized)
	if sanitized == "" {
		return invalid(KindAllCharactersInvalid, label+" contains only invalid characters")
	}
	return valid(sanitized)
}

// ValidateRelationship treats a blank relationship as valid and empty, the
// field being optional.
func ValidateRelationship(relationship string) Result {
	if strings.TrimSpace(relationship) == "" {
		return valid("")
	}
	return validateText(relationship, MaxRelationshipLength, "Relationship")
}

// LocationResult is the outcome of ValidateLocation. Location holds the
// sanitized coordinates and address when the result is valid.
type LocationResult struct {
	Result
	Location model.Location `json:"location"`
}

// ValidateLocation checks coordinate ranges and the optional address.
func ValidateLocation(loc model.Location) LocationResult {
	if !inRange(loc.Latitude, -90, 90) {
		return LocationResult{Result: invalid(KindOutOfRange, "Latitude must be between -90 and 90")}
	}
	if !inRange(loc.Longitude, -180, 180) {
		return LocationResult{Result: invalid(KindOutOfRange, "Longitude must be between -180 and 180")}
	}

	out := model.Location{Latitude: loc.Latitude, Longitude: loc.Longitude}
	if loc.Address == nil || *loc.Address == "" {
		return LocationResult{Result: valid(""), Location: out}
	}

	r := validateText(*loc.Address, MaxAddressLength, "Address")
	if !r.IsValid {
		return LocationResult{Result: r}
	}
	address := r.SanitizedValue
	out.Address = &address
	return LocationResult{Result: r, Location: out}
}

func inRange(v, lo, hi float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= lo && v <= hi
}
