// Package sanitizer removes sensitive data from log payloads before they are
// buffered, printed or forwarded. Every payload written by the logger goes
// through Redactor.Sanitize.
package sanitizer

import (
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"
)

// Defaults for Config.
const (
	DefaultMaxDepth        = 5
	DefaultMaxStringLength = 200
)

// Config holds redactor configuration
type Config struct {
	MaxDepth        int               `toml:"max_depth"`         // Deepest level walked before the marker is returned (default: 5)
	MaxStringLength int               `toml:"max_string_length"` // Strings are truncated past this many characters (default: 200)
	CustomPatterns  map[string]string `toml:"custom_patterns"`   // name -> regex, replaced by [REDACTED]
}

// Redactor walks values and replaces sensitive keys and substrings with
// markers. It holds no mutable state after construction, so Sanitize is
// deterministic and safe for concurrent use.
type Redactor struct {
	patterns        []Pattern
	maxDepth        int
	maxStringLength int
}

// NewRedactor creates a redactor. A nil config uses the defaults.
func NewRedactor(config *Config) (*Redactor, error) {
	if config == nil {
		config = &Config{}
	}

	r := &Redactor{
		patterns:        defaultPatterns(),
		maxDepth:        config.MaxDepth,
		maxStringLength: config.MaxStringLength,
	}
	if r.maxDepth <= 0 {
		r.maxDepth = DefaultMaxDepth
	}
	if r.maxStringLength <= 0 {
		r.maxStringLength = DefaultMaxStringLength
	}

	names := make([]string, 0, len(config.CustomPatterns))
	for name := range config.CustomPatterns {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		compiled, err := regexp.Compile(config.CustomPatterns[name])
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", name, err)
		}
		r.patterns = append(r.patterns, Pattern{
			Type:        TypeCustom,
			Name:        name,
			Regex:       compiled,
			Replacement: RedactedMarker,
		})
	}

	return r, nil
}

// MustNewRedactor is NewRedactor for configurations known to be valid.
func MustNewRedactor(config *Config) *Redactor {
	r, err := NewRedactor(config)
	if err != nil {
		panic(err)
	}
	return r
}

// Sanitize returns a redacted copy of v. The input is never modified.
func (r *Redactor) Sanitize(v Value) Value {
	return r.sanitize(v, 0)
}

// SanitizeAny converts v with FromAny and sanitizes the result.
func (r *Redactor) SanitizeAny(v any) Value {
	return r.sanitize(FromAny(v), 0)
}

func (r *Redactor) sanitize(v Value, depth int) Value {
	if depth > r.maxDepth {
		return String(MaxDepthMarker)
	}

	switch t := v.(type) {
	case nil:
		return Null{}
	case Null, Number, Bool:
		return t
	case String:
		return String(r.SanitizeString(string(t)))
	case List:
		out := make(List, len(t))
		for i, e := range t {
			out[i] = r.sanitize(e, depth+1)
		}
		return out
	case Map:
		out := make(Map, len(t))
		for k, e := range t {
			key := r.sanitizeKey(k)
			if key != k || IsSensitiveKey(k) {
				out[key] = String(RedactedMarker)
				continue
			}
			// two keys can rewrite to the same marker; a redacted value wins
			if _, taken := out[key]; !taken {
				out[key] = r.sanitize(e, depth+1)
			}
		}
		return out
	}
	return String(UnserializableMarker)
}

// SanitizeString applies every pattern in order and truncates the result.
func (r *Redactor) SanitizeString(s string) string {
	if s == "" {
		return s
	}

	result := r.applyPatterns(s)
	if utf8.RuneCountInString(result) > r.maxStringLength {
		// cutting can turn a longer digit run into a match, so apply again
		result = truncateRunes(r.applyPatterns(truncateRunes(result, r.maxStringLength)), r.maxStringLength) + TruncationMarker
	}
	return result
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// sanitizeKey rewrites personal data found in a map key. The word rule is
// skipped since IsSensitiveKey already covers sensitive key names.
func (r *Redactor) sanitizeKey(k string) string {
	for _, p := range r.patterns {
		if p.Type == TypeSensitiveWord {
			continue
		}
		k = p.Regex.ReplaceAllString(k, p.Replacement)
	}
	return k
}

func (r *Redactor) applyPatterns(s string) string {
	for _, p := range r.patterns {
		s = p.Regex.ReplaceAllString(s, p.Replacement)
	}
	return s
}

// ContainsSensitiveData reports whether any pattern matches s.
func (r *Redactor) ContainsSensitiveData(s string) bool {
	for _, p := range r.patterns {
		if p.Regex.MatchString(s) {
			return true
		}
	}
	return false
}

// Patterns returns the patterns in application order.
func (r *Redactor) Patterns() []Pattern {
	out := make([]Pattern, len(r.patterns))
	copy(out, r.patterns)
	return out
}
