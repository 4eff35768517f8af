// Package errx carries an operation name and a failure category through the
// shortlink call chain so the HTTP layer can answer without inspecting
// driver errors. Unauthorized and Forbidden are HTTP-flavoured but live here
// because identity checks happen below the handlers.
package errx

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Unknown Kind = iota
	NotFound
	Conflict
	Invalid
	Unauthorized
	Forbidden
	Unavailable
	Internal
)

// Error annotates err with the operation that failed and its category.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

// E wraps err. A nil err stays nil so callers can wrap unconditionally.
func E(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// Wrap re-annotates err under op while keeping the kind it already carries.
func Wrap(op string, err error) error {
	return E(op, KindOf(err), err)
}

func (k Kind) String() string {
	switch k {
	case Unknown:
		return "Unknown"
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case Invalid:
		return "Invalid"
	case Unauthorized:
		return "Unauthorized"
	case Forbidden:
		return "Forbidden"
	case Unavailable:
		return "Unavailable"
	case Internal:
		return "Internal"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Message is the user-facing sentence for a kind. It never includes the
// wrapped error text.
func Message(k Kind) string {
	switch k {
	case NotFound:
		return "link not found"
	case Conflict:
		return "this short code is already taken"
	case Invalid:
		return "the request is invalid"
	case Unauthorized:
		return "sign in to continue"
	case Forbidden:
		return "you do not own this link"
	case Unavailable:
		return "the service is temporarily unavailable, please try again"
	default:
		return "something went wrong, please try again"
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func OpOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Is reports whether the outermost errx.Error in err's chain has kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
