package shortener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	db "github.com/sundayezeilo/shortlink/internal/db/sqlc"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/idgen"
)

// querier is an internal interface that abstracts *db.Queries
type querier interface {
	CreateLink(ctx context.Context, arg db.CreateLinkParams) (db.Link, error)
	GetLinkByCode(ctx context.Context, code string) (db.Link, error)
	GetLinkByID(ctx context.Context, id uuid.UUID) (db.Link, error)
	LinkCodeExists(ctx context.Context, code string) (bool, error)
	GetLinkOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	UpdateLink(ctx context.Context, arg db.UpdateLinkParams) (db.Link, error)
	DeleteLink(ctx context.Context, arg db.DeleteLinkParams) (int64, error)
	ListLinksByOwner(ctx context.Context, arg db.ListLinksByOwnerParams) ([]db.Link, error)
	CountLinksByOwner(ctx context.Context, arg db.CountLinksByOwnerParams) (int64, error)
	ListAllLinks(ctx context.Context, arg db.ListAllLinksParams) ([]db.Link, error)
	CountAllLinks(ctx context.Context, pattern string) (int64, error)
}

type repo struct {
	q   querier
	ids idgen.Generator
}

// RepositoryConfig holds configuration for the repository
type RepositoryConfig struct {
	IDGenerator idgen.Generator
}

// NewRepository returns the PostgreSQL Link Store.
func NewRepository(q querier, config *RepositoryConfig) Repository {
	if config == nil {
		config = &RepositoryConfig{}
	}
	if config.IDGenerator == nil {
		config.IDGenerator = idgen.NewV7(idgen.WithRetries(1))
	}

	return &repo{
		q:   q,
		ids: config.IDGenerator,
	}
}

func mustTime(ts pgtype.Timestamptz, field string) (time.Time, error) {
	if !ts.Valid {
		return time.Time{}, fmt.Errorf("%s unexpectedly NULL", field)
	}
	return ts.Time, nil
}

func textOrNull(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func toDomainLink(x db.Link) (Link, error) {
	createdAt, err := mustTime(x.CreatedAt, "created_at")
	if err != nil {
		return Link{}, err
	}
	updatedAt, err := mustTime(x.UpdatedAt, "updated_at")
	if err != nil {
		return Link{}, err
	}

	return Link{
		ID:          x.ID,
		ShortCode:   x.ShortCode,
		OriginalURL: x.OriginalUrl,
		OwnerID:     x.OwnerID,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func toDomainLinks(rows []db.Link) ([]Link, error) {
	out := make([]Link, 0, len(rows))
	for _, row := range rows {
		l, err := toDomainLink(row)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func mapRepoError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, err)

	case isShortCodeUniqueViolation(err):
		return errx.E(op, errx.Conflict, err)

	case isOwnerForeignKeyViolation(err):
		return errx.E(op, errx.Invalid, fmt.Errorf("owner account does not exist: %w", err))

	case isCheckViolation(err):
		return errx.E(op, errx.Invalid, err)

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}

func (r *repo) FindByCode(ctx context.Context, code string) (Link, error) {
	const op = "shortener.repo.FindByCode"

	row, err := r.q.GetLinkByCode(ctx, code)
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}
	link, err := toDomainLink(row)
	if err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}
	return link, nil
}

func (r *repo) FindByID(ctx context.Context, id uuid.UUID) (Link, error) {
	const op = "shortener.repo.FindByID"

	row, err := r.q.GetLinkByID(ctx, id)
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}
	link, err := toDomainLink(row)
	if err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}
	return link, nil
}

func (r *repo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	const op = "shortener.repo.ExistsByCode"

	exists, err := r.q.LinkCodeExists(ctx, code)
	if err != nil {
		return false, mapRepoError(op, err)
	}
	return exists, nil
}

func (r *repo) Insert(ctx context.Context, link Link) (Link, error) {
	const op = "shortener.repo.Insert"

	if link.ID == uuid.Nil {
		id, err := r.ids.Generate()
		if err != nil {
			return Link{}, errx.E(op, errx.Unavailable, err)
		}
		link.ID = id
	}

	row, err := r.q.CreateLink(ctx, db.CreateLinkParams{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		OriginalUrl: link.OriginalURL,
		OwnerID:     link.OwnerID,
	})
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}

	created, err := toDomainLink(row)
	if err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}
	return created, nil
}

// Update changes the row only when ownerID owns it. A miss is resolved into
// NotFound or Forbidden by looking up the row's owner.
func (r *repo) Update(ctx context.Context, id, ownerID uuid.UUID, upd LinkUpdate) (Link, error) {
	const op = "shortener.repo.Update"

	row, err := r.q.UpdateLink(ctx, db.UpdateLinkParams{
		OriginalUrl: textOrNull(upd.OriginalURL),
		ShortCode:   textOrNull(upd.ShortCode),
		ID:          id,
		OwnerID:     ownerID,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Link{}, r.explainMiss(ctx, op, id)
	}
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}

	updated, err := toDomainLink(row)
	if err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}
	return updated, nil
}

func (r *repo) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	const op = "shortener.repo.Delete"

	n, err := r.q.DeleteLink(ctx, db.DeleteLinkParams{ID: id, OwnerID: ownerID})
	if err != nil {
		return mapRepoError(op, err)
	}
	if n == 0 {
		return r.explainMiss(ctx, op, id)
	}
	return nil
}

func (r *repo) explainMiss(ctx context.Context, op string, id uuid.UUID) error {
	_, err := r.q.GetLinkOwner(ctx, id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, err)
	case err != nil:
		return mapRepoError(op, err)
	default:
		return errx.E(op, errx.Forbidden, errors.New("link belongs to another account"))
	}
}

func (r *repo) ListByOwner(ctx context.Context, ownerID uuid.UUID, p ListParams) ([]Link, int64, error) {
	const op = "shortener.repo.ListByOwner"

	pattern := likePattern(p.Search)
	rows, err := r.q.ListLinksByOwner(ctx, db.ListLinksByOwnerParams{
		OwnerID: ownerID,
		Pattern: pattern,
		Limit:   int32(p.PageSize),
		Offset:  int32(p.offset()),
	})
	if err != nil {
		return nil, 0, mapRepoError(op, err)
	}
	total, err := r.q.CountLinksByOwner(ctx, db.CountLinksByOwnerParams{
		OwnerID: ownerID,
		Pattern: pattern,
	})
	if err != nil {
		return nil, 0, mapRepoError(op, err)
	}

	links, err := toDomainLinks(rows)
	if err != nil {
		return nil, 0, errx.E(op, errx.Internal, err)
	}
	return links, total, nil
}

func (r *repo) ListAll(ctx context.Context, p ListParams) ([]Link, int64, error) {
	const op = "shortener.repo.ListAll"

	pattern := likePattern(p.Search)
	rows, err := r.q.ListAllLinks(ctx, db.ListAllLinksParams{
		Pattern: pattern,
		Limit:   int32(p.PageSize),
		Offset:  int32(p.offset()),
	})
	if err != nil {
		return nil, 0, mapRepoError(op, err)
	}
	total, err := r.q.CountAllLinks(ctx, pattern)
	if err != nil {
		return nil, 0, mapRepoError(op, err)
	}

	links, err := toDomainLinks(rows)
	if err != nil {
		return nil, 0, errx.E(op, errx.Internal, err)
	}
	return links, total, nil
}
