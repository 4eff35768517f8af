package shortener

import (
	"time"

	"github.com/google/uuid"
)

// Link maps a short code to its destination. ShortCode is stored in its
// canonical lower-case form.
type Link struct {
	ID          uuid.UUID
	ShortCode   string
	OriginalURL string
	OwnerID     uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LinkUpdate carries the fields an owner may change. Nil fields keep their
// stored value.
type LinkUpdate struct {
	OriginalURL *string
	ShortCode   *string
}

// Empty reports whether the update changes nothing.
func (u LinkUpdate) Empty() bool {
	return u.OriginalURL == nil && u.ShortCode == nil
}

// ListParams selects one page of links. Page is 1-indexed.
type ListParams struct {
	Search   string
	Page     int
	PageSize int
}

func (p ListParams) offset() int {
	return (p.Page - 1) * p.PageSize
}

// Page is one page of a listing together with the total number of matches.
type Page struct {
	Items      []Link
	TotalCount int64
	Page       int
	PageSize   int
}
