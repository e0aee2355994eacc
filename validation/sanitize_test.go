package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeString(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"plain text", "plain text"},
		{"<script>", "&lt;script&gt;"},
		{`a & b "c" 'd' /e`, "a &amp; b &quot;c&quot; &#x27;d&#x27; &#x2F;e"},
		{"", ""},
	}

	for _, tc := range testCases {
		result := SanitizeString(tc.input)
		if result != tc.expected {
			t.Errorf("Input: %s\nExpected: %s\nGot: %s", tc.input, tc.expected, result)
		}
	}
}

func TestSanitizeString_FixedPointOnlyForSafeStrings(t *testing.T) {
	safe := "hello world 123"
	assert.Equal(t, safe, SanitizeString(SanitizeString(safe)))

	once := SanitizeString("<script>alert('x')</script>")
	assert.NotContains(t, once, "<")
	assert.NotContains(t, once, ">")
	assert.NotEqual(t, once, SanitizeString(once), "ampersands are escaped again")
}

func TestContainsSQLInjection(t *testing.T) {
	attacks := []string{
		"1' OR '1'='1",
		"admin' --",
		"x; DROP TABLE contacts",
		"1 UNION SELECT password FROM users",
		"/* comment */",
		"INSERT INTO users VALUES (1)",
		"exec(xp_cmdshell)",
	}
	for _, a := range attacks {
		if !ContainsSQLInjection(a) {
			t.Errorf("expected %q to be flagged", a)
		}
	}

	benign := []string{
		"John O'Brien",
		"Brother",
		"Call me when you land",
		"+1 (555) 123-4567",
		strings.Repeat("a", 500),
	}
	for _, b := range benign {
		if ContainsSQLInjection(b) {
			t.Errorf("expected %q not to be flagged", b)
		}
	}
}
