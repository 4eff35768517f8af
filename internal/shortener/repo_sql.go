package shortener

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/shortlink/internal/db/sqlite"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/idgen"
)

const linkColumns = `id, short_code, original_url, owner_id, created_at, updated_at`

const searchClause = `(? = '' OR lower(original_url) LIKE ? ESCAPE '\' OR lower(short_code) LIKE ? ESCAPE '\')`

// sqlRepo is the Link Store over database/sql, used with the embedded
// SQLite driver and hosted libsql databases.
type sqlRepo struct {
	db  *sql.DB
	ids idgen.Generator
	now func() time.Time
}

// SQLRepositoryConfig holds configuration for the SQL repository.
type SQLRepositoryConfig struct {
	IDGenerator idgen.Generator
	Clock       func() time.Time
}

// NewSQLRepository returns a Link Store backed by a SQLite-compatible database.
func NewSQLRepository(db *sql.DB, config *SQLRepositoryConfig) Repository {
	if config == nil {
		config = &SQLRepositoryConfig{}
	}
	r := &sqlRepo{db: db, ids: config.IDGenerator, now: config.Clock}
	if r.ids == nil {
		r.ids = idgen.NewV7(idgen.WithRetries(1))
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (Link, error) {
	var (
		l                Link
		id, owner        string
		created, updated int64
	)
	if err := row.Scan(&id, &l.ShortCode, &l.OriginalURL, &owner, &created, &updated); err != nil {
		return Link{}, err
	}

	var err error
	if l.ID, err = uuid.Parse(id); err != nil {
		return Link{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	if l.OwnerID, err = uuid.Parse(owner); err != nil {
		return Link{}, fmt.Errorf("parse owner_id %q: %w", owner, err)
	}
	l.CreatedAt = time.Unix(0, created).UTC()
	l.UpdatedAt = time.Unix(0, updated).UTC()
	return l, nil
}

func mapSQLError(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errx.E(op, errx.NotFound, err)

	case sqlite.IsUniqueViolation(err, shortCodeUniqueIndex):
		return errx.E(op, errx.Conflict, err)

	case sqlite.IsForeignKeyViolation(err):
		return errx.E(op, errx.Invalid, fmt.Errorf("owner account does not exist: %w", err))

	case sqlite.IsCheckViolation(err):
		return errx.E(op, errx.Invalid, err)

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}

func (r *sqlRepo) FindByCode(ctx context.Context, code string) (Link, error) {
	const op = "shortener.sqlrepo.FindByCode"

	row := r.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE lower(short_code) = lower(?)`, code)
	link, err := scanLink(row)
	if err != nil {
		return Link{}, mapSQLError(op, err)
	}
	return link, nil
}

func (r *sqlRepo) FindByID(ctx context.Context, id uuid.UUID) (Link, error) {
	const op = "shortener.sqlrepo.FindByID"

	row := r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ?`, id.String())
	link, err := scanLink(row)
	if err != nil {
		return Link{}, mapSQLError(op, err)
	}
	return link, nil
}

func (r *sqlRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	const op = "shortener.sqlrepo.ExistsByCode"

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM links WHERE lower(short_code) = lower(?))`, code,
	).Scan(&exists)
	if err != nil {
		return false, mapSQLError(op, err)
	}
	return exists, nil
}

func (r *sqlRepo) Insert(ctx context.Context, link Link) (Link, error) {
	const op = "shortener.sqlrepo.Insert"

	if link.ID == uuid.Nil {
		id, err := r.ids.Generate()
		if err != nil {
			return Link{}, errx.E(op, errx.Unavailable, err)
		}
		link.ID = id
	}
	now := r.now().UnixNano()

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO links (id, short_code, original_url, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING `+linkColumns,
		link.ID.String(), link.ShortCode, link.OriginalURL, link.OwnerID.String(), now, now,
	)
	created, err := scanLink(row)
	if err != nil {
		return Link{}, mapSQLError(op, err)
	}
	return created, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (r *sqlRepo) Update(ctx context.Context, id, ownerID uuid.UUID, upd LinkUpdate) (Link, error) {
	const op = "shortener.sqlrepo.Update"

	row := r.db.QueryRowContext(ctx,
		`UPDATE links
		 SET original_url = COALESCE(?, original_url),
		     short_code   = COALESCE(?, short_code),
		     updated_at   = ?
		 WHERE id = ? AND owner_id = ?
		 RETURNING `+linkColumns,
		nullString(upd.OriginalURL), nullString(upd.ShortCode), r.now().UnixNano(),
		id.String(), ownerID.String(),
	)
	updated, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Link{}, r.explainMiss(ctx, op, id)
	}
	if err != nil {
		return Link{}, mapSQLError(op, err)
	}
	return updated, nil
}

func (r *sqlRepo) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	const op = "shortener.sqlrepo.Delete"

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM links WHERE id = ? AND owner_id = ?`, id.String(), ownerID.String())
	if err != nil {
		return mapSQLError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapSQLError(op, err)
	}
	if n == 0 {
		return r.explainMiss(ctx, op, id)
	}
	return nil
}

func (r *sqlRepo) explainMiss(ctx context.Context, op string, id uuid.UUID) error {
	var owner string
	err := r.db.QueryRowContext(ctx, `SELECT owner_id FROM links WHERE id = ?`, id.String()).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errx.E(op, errx.NotFound, err)
	case err != nil:
		return mapSQLError(op, err)
	default:
		return errx.E(op, errx.Forbidden, errors.New("link belongs to another account"))
	}
}

func (r *sqlRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, p ListParams) ([]Link, int64, error) {
	const op = "shortener.sqlrepo.ListByOwner"

	pattern := likePattern(p.Search)
	links, err := r.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM links
		 WHERE owner_id = ? AND `+searchClause+`
		 ORDER BY created_at ASC, id ASC
		 LIMIT ? OFFSET ?`,
		ownerID.String(), pattern, pattern, pattern, p.PageSize, p.offset(),
	)
	if err != nil {
		return nil, 0, mapSQLError(op, err)
	}

	var total int64
	err = r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM links WHERE owner_id = ? AND `+searchClause,
		ownerID.String(), pattern, pattern, pattern,
	).Scan(&total)
	if err != nil {
		return nil, 0, mapSQLError(op, err)
	}
	return links, total, nil
}

func (r *sqlRepo) ListAll(ctx context.Context, p ListParams) ([]Link, int64, error) {
	const op = "shortener.sqlrepo.ListAll"

	pattern := likePattern(p.Search)
	links, err := r.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM links
		 WHERE `+searchClause+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		pattern, pattern, pattern, p.PageSize, p.offset(),
	)
	if err != nil {
		return nil, 0, mapSQLError(op, err)
	}

	var total int64
	err = r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM links WHERE `+searchClause, pattern, pattern, pattern,
	).Scan(&total)
	if err != nil {
		return nil, 0, mapSQLError(op, err)
	}
	return links, total, nil
}

func (r *sqlRepo) queryLinks(ctx context.Context, query string, args ...any) ([]Link, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
