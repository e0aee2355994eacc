package sanitizer

import "regexp"

// SensitiveDataType identifies the type of sensitive data
type SensitiveDataType string

const (
	TypeSensitiveWord SensitiveDataType = "sensitive_word"
	TypeBearerToken   SensitiveDataType = "bearer_token"
	TypeEmail         SensitiveDataType = "email"
	TypeCreditCard    SensitiveDataType = "credit_card"
	TypePhone         SensitiveDataType = "phone"
	TypeCustom        SensitiveDataType = "custom"
)

// Markers written in place of removed data.
const (
	RedactedMarker       = "[REDACTED]"
	EmailMarker          = "[EMAIL]"
	PhoneMarker          = "[PHONE]"
	CardMarker           = "[CARD]"
	BearerMarker         = "Bearer [REDACTED]"
	MaxDepthMarker       = "[MAX_DEPTH_REACHED]"
	TruncationMarker     = "..."
	UnserializableMarker = "[UNSERIALIZABLE]"
)

// Pattern pairs a match rule with a fixed replacement. Replacement may refer
// to submatches with ${n}.
type Pattern struct {
	Type        SensitiveDataType
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// sensitiveWords is shared by the key rule and the in-text word rule.
const sensitiveWords = `passw(?:or)?d|pwd|token|secret|api[_-]?key|key|authorization|cookie|session|credit|ssn|phone|e-?mail|address`

// sensitiveKeyRegex matches map keys whose values are dropped wholesale.
// It matches anywhere in the key so that apiKey, sessionId or phoneNumber
// are all caught.
var sensitiveKeyRegex = regexp.MustCompile(`(?i)(` + sensitiveWords + `)`)

// defaultPatterns are applied to string values, in order. Bearer tokens and
// emails go before the word rule so a domain or local part such as
// "session" or "address" cannot break the email match.
func defaultPatterns() []Pattern {
	return []Pattern{
		{
			Type:        TypeBearerToken,
			Name:        "Bearer Token",
			Regex:       regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`),
			Replacement: BearerMarker,
		},
		{
			Type:        TypeEmail,
			Name:        "Email Address",
			Regex:       regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
			Replacement: EmailMarker,
		},
		{
			Type: TypeSensitiveWord,
			Name: "Sensitive Word",
			// the leading group keeps markers like [PHONE] from matching
			Regex:       regexp.MustCompile(`(?i)(^|[^\[\w])(?:` + sensitiveWords + `)\b`),
			Replacement: "${1}" + RedactedMarker,
		},
		{
			Type:        TypeCreditCard,
			Name:        "Credit Card",
			Regex:       regexp.MustCompile(`\b(?:\d{4}[\s-]?){3}\d{4}\b`),
			Replacement: CardMarker,
		},
		{
			Type:        TypePhone,
			Name:        "Phone Number",
			Regex:       regexp.MustCompile(`(?:\+\d{1,3}[\s.-]?)?\(?\b\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`),
			Replacement: PhoneMarker,
		},
	}
}

// IsSensitiveKey reports whether values stored under key must be redacted.
func IsSensitiveKey(key string) bool {
	return sensitiveKeyRegex.MatchString(key)
}
