// Package httpx holds the JSON, error and middleware plumbing shared by the
// HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// MaxRequestBodySize is the maximum allowed request body size (64KB). Link
// payloads are a URL and a code, so anything larger is a client bug.
const MaxRequestBodySize = 64 << 10

// DecodeJSON decodes a single JSON object from the request body into T.
// Unknown fields, trailing data and non-JSON content types are rejected.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var v T

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			return v, fmt.Errorf("unsupported content type %q", ct)
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&v); err != nil {
		var syntaxErr *json.SyntaxError
		var unmarshalErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxErr):
			return v, fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return v, errors.New("malformed JSON")
		case errors.As(err, &unmarshalErr):
			return v, fmt.Errorf("invalid value for field %q", unmarshalErr.Field)
		case errors.As(err, &maxBytesErr):
			return v, fmt.Errorf("request body too large (max %d bytes)", MaxRequestBodySize)
		case errors.Is(err, io.EOF):
			return v, errors.New("request body is empty")
		default:
			return v, fmt.Errorf("failed to decode JSON: %w", err)
		}
	}

	if decoder.More() {
		return v, errors.New("request body contains multiple JSON objects")
	}
	return v, nil
}
