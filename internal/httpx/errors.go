package httpx

import (
	"net/http"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

// CodeRateLimited is the "error" value of a 429 answer. It has no errx.Kind
// because only middleware produces it.
const CodeRateLimited = "rate_limited"

type kindMapping struct {
	status int
	code   string
}

var kinds = map[errx.Kind]kindMapping{
	errx.NotFound:     {http.StatusNotFound, "not_found"},
	errx.Conflict:     {http.StatusConflict, "conflict"},
	errx.Invalid:      {http.StatusBadRequest, "invalid_input"},
	errx.Unauthorized: {http.StatusUnauthorized, "unauthorized"},
	errx.Forbidden:    {http.StatusForbidden, "forbidden"},
	errx.Unavailable:  {http.StatusServiceUnavailable, "unavailable"},
}

var internalMapping = kindMapping{http.StatusInternalServerError, "internal_error"}

func mappingFor(kind errx.Kind) kindMapping {
	if m, ok := kinds[kind]; ok {
		return m
	}
	return internalMapping
}

// ErrorKindToStatus maps errx.Kind to HTTP status codes. Unknown and
// Internal both become 500.
func ErrorKindToStatus(kind errx.Kind) int { return mappingFor(kind).status }

// ErrorKindToCode maps errx.Kind to the machine-readable "error" field.
func ErrorKindToCode(kind errx.Kind) string { return mappingFor(kind).code }

// WriteKind answers with the status, code and user-facing message for kind.
// The wrapped error text is never sent to the client.
func WriteKind(w http.ResponseWriter, kind errx.Kind, details any) {
	m := mappingFor(kind)
	WriteError(w, m.status, m.code, errx.Message(kind), details)
}
