package shortener

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Repository is the Link Store: the only reader and writer of persisted
// links. Code lookups are case-insensitive, and the store's unique index on
// the lower-cased code is the final authority on uniqueness.
//
// Errors are *errx.Error values: NotFound, Conflict (duplicate code),
// Forbidden (caller is not the owner), Invalid, or Unavailable for every
// transport or backend failure.
type Repository interface {
	FindByCode(ctx context.Context, code string) (Link, error)
	FindByID(ctx context.Context, id uuid.UUID) (Link, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Insert(ctx context.Context, link Link) (Link, error)
	Update(ctx context.Context, id, ownerID uuid.UUID, upd LinkUpdate) (Link, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID, p ListParams) ([]Link, int64, error)
	ListAll(ctx context.Context, p ListParams) ([]Link, int64, error)
}

// likePattern turns search text into a case-insensitive substring pattern,
// escaping LIKE metacharacters with a backslash. Empty search yields "".
// Only ASCII is folded, matching SQLite's lower().
func likePattern(search string) string {
	if search == "" {
		return ""
	}
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + asciiLower(r.Replace(search)) + "%"
}

func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}
