// Package validation provides field-level validators and sanitizers for the
// data written by the emergency flows (contacts, locations, alerts).
//
// Validators never panic and never return Go errors. Every call produces a
// fresh Result value carrying a human-readable message for the end user and an
// ErrorKind tag for the caller.
package validation

import "strings"

// ErrorKind tags the reason a value was rejected.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindEmptyField           ErrorKind = "empty_field"
	KindTooLong              ErrorKind = "too_long"
	KindFormatError          ErrorKind = "format_error"
	KindAllCharactersInvalid ErrorKind = "all_characters_invalid"
	KindOutOfRange           ErrorKind = "out_of_range"
)

// Result is the outcome of a single validation call.
//
// When IsValid is true, SanitizedValue holds the value the caller must use
// instead of the raw input. When IsValid is false, Error and Kind describe the
// first rule that failed.
type Result struct {
	IsValid        bool      `json:"is_valid"`
	Error          string    `json:"error,omitempty"`
	SanitizedValue string    `json:"sanitized_value,omitempty"`
	Kind           ErrorKind `json:"kind,omitempty"`
}

func valid(sanitized string) Result {
	return Result{IsValid: true, SanitizedValue: sanitized}
}

func invalid(kind ErrorKind, message string) Result {
	return Result{IsValid: false, Error: message, Kind: kind}
}

// prefixed returns a copy of r with its message scoped to a field. Messages
// that already start with the field name are left alone.
func prefixed(r Result, field string) Result {
	if r.IsValid || strings.HasPrefix(r.Error, field+" ") {
		return r
	}
	r.Error = field + ": " + r.Error
	return r
}
