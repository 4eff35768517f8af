package shortener

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	MinCodeLength = 3
	MaxCodeLength = 64
	MaxURLLength  = 2048
)

// Reason names why a code or URL was rejected.
type Reason string

const (
	ReasonEmpty        Reason = "EMPTY"
	ReasonTooShort     Reason = "TOO_SHORT"
	ReasonTooLong      Reason = "TOO_LONG"
	ReasonInvalidChars Reason = "INVALID_CHARS"
	ReasonReserved     Reason = "RESERVED"
	ReasonNoScheme     Reason = "NO_SCHEME"
	ReasonMalformed    Reason = "MALFORMED"
	ReasonOutOfRange   Reason = "OUT_OF_RANGE"
)

// ValidationError is a client-correctable input problem.
type ValidationError struct {
	Field  string
	Reason Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message())
}

// Message is a human-readable description of the failure.
func (e *ValidationError) Message() string {
	switch e.Reason {
	case ReasonEmpty:
		return "is required"
	case ReasonTooShort:
		return fmt.Sprintf("must be at least %d characters", MinCodeLength)
	case ReasonTooLong:
		if e.Field == FieldOriginalURL {
			return fmt.Sprintf("must be at most %d characters", MaxURLLength)
		}
		return fmt.Sprintf("must be at most %d characters", MaxCodeLength)
	case ReasonInvalidChars:
		return "may only contain letters, digits and dashes"
	case ReasonReserved:
		return "is reserved"
	case ReasonNoScheme:
		return "must start with http:// or https://"
	case ReasonMalformed:
		if e.Field == FieldOriginalURL {
			return "is not a valid URL"
		}
		return "is malformed"
	case ReasonOutOfRange:
		return "is out of range"
	default:
		return string(e.Reason)
	}
}

const (
	FieldShortCode   = "short_code"
	FieldOriginalURL = "original_url"
)

// reservedCodes are path segments the application serves itself.
var reservedCodes = map[string]struct{}{
	"about":          {},
	"admin":          {},
	"api":            {},
	"auth":           {},
	"create-url":     {},
	"data-url":       {},
	"health":         {},
	"home":           {},
	"login":          {},
	"logout":         {},
	"register":       {},
	"reset-password": {},
	"signin":         {},
	"signup":         {},
	"static":         {},
	"x":              {},
}

// NormalizeCode returns the canonical stored form of code.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// IsReserved reports whether code collides with an application route.
func IsReserved(code string) bool {
	_, ok := reservedCodes[strings.ToLower(code)]
	return ok
}

// ValidateCode checks a candidate short code. Character checks run before
// length checks so any code with a foreign character reports INVALID_CHARS.
func ValidateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return &ValidationError{Field: FieldShortCode, Reason: ReasonEmpty}
	}
	for i := 0; i < len(code); i++ {
		if !isCodeChar(code[i]) {
			return &ValidationError{Field: FieldShortCode, Reason: ReasonInvalidChars}
		}
	}
	n := utf8.RuneCountInString(code)
	if n < MinCodeLength {
		return &ValidationError{Field: FieldShortCode, Reason: ReasonTooShort}
	}
	if n > MaxCodeLength {
		return &ValidationError{Field: FieldShortCode, Reason: ReasonTooLong}
	}
	if IsReserved(code) {
		return &ValidationError{Field: FieldShortCode, Reason: ReasonReserved}
	}
	return nil
}

func isCodeChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	default:
		return c == '-'
	}
}

// ValidateURL checks that raw is an absolute http or https URL with a host.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &ValidationError{Field: FieldOriginalURL, Reason: ReasonEmpty}
	}
	if len(raw) > MaxURLLength {
		return &ValidationError{Field: FieldOriginalURL, Reason: ReasonTooLong}
	}

	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return &ValidationError{Field: FieldOriginalURL, Reason: ReasonNoScheme}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.Hostname() == "" {
		return &ValidationError{Field: FieldOriginalURL, Reason: ReasonMalformed}
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return &ValidationError{Field: FieldOriginalURL, Reason: ReasonMalformed}
	}
	return nil
}
