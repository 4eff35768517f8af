package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	db "github.com/sundayezeilo/shortlink/internal/db/sqlc"
	"github.com/sundayezeilo/shortlink/internal/errx"
)

// Repository persists mirrored accounts. Upsert inserts a new account with
// the user role, or refreshes the email of an existing one and keeps its role.
type Repository interface {
	Upsert(ctx context.Context, id uuid.UUID, email string) (Account, error)
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	SetRole(ctx context.Context, id uuid.UUID, role Role) (Account, error)
}

type querier interface {
	UpsertUser(ctx context.Context, arg db.UpsertUserParams) (db.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (db.User, error)
	SetUserRole(ctx context.Context, arg db.SetUserRoleParams) (db.User, error)
}

type pgRepo struct {
	q querier
}

// NewRepository returns the PostgreSQL account store.
func NewRepository(q querier) Repository {
	return &pgRepo{q: q}
}

func toAccount(u db.User) (Account, error) {
	if !u.CreatedAt.Valid {
		return Account{}, errors.New("created_at unexpectedly NULL")
	}
	return Account{
		ID:        u.ID,
		Email:     u.Email,
		Role:      Role(u.Role),
		CreatedAt: u.CreatedAt.Time,
	}, nil
}

func mapPGError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errx.E(op, errx.NotFound, err)
	}
	return errx.E(op, errx.Unavailable, err)
}

func (r *pgRepo) Upsert(ctx context.Context, id uuid.UUID, email string) (Account, error) {
	const op = "account.repo.Upsert"

	u, err := r.q.UpsertUser(ctx, db.UpsertUserParams{ID: id, Email: email})
	if err != nil {
		return Account{}, mapPGError(op, err)
	}
	a, err := toAccount(u)
	if err != nil {
		return Account{}, errx.E(op, errx.Internal, err)
	}
	return a, nil
}

func (r *pgRepo) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	const op = "account.repo.Get"

	u, err := r.q.GetUser(ctx, id)
	if err != nil {
		return Account{}, mapPGError(op, err)
	}
	a, err := toAccount(u)
	if err != nil {
		return Account{}, errx.E(op, errx.Internal, err)
	}
	return a, nil
}

func (r *pgRepo) SetRole(ctx context.Context, id uuid.UUID, role Role) (Account, error) {
	const op = "account.repo.SetRole"

	u, err := r.q.SetUserRole(ctx, db.SetUserRoleParams{ID: id, Role: string(role)})
	if err != nil {
		return Account{}, mapPGError(op, err)
	}
	a, err := toAccount(u)
	if err != nil {
		return Account{}, errx.E(op, errx.Internal, err)
	}
	return a, nil
}

type sqlRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLRepository returns the account store for SQLite and libsql.
func NewSQLRepository(db *sql.DB) Repository {
	return &sqlRepo{db: db, now: time.Now}
}

func scanAccount(row *sql.Row) (Account, error) {
	var (
		a       Account
		id      string
		role    string
		created int64
	)
	if err := row.Scan(&id, &a.Email, &role, &created); err != nil {
		return Account{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Account{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	a.ID = parsed
	a.Role = Role(role)
	a.CreatedAt = time.Unix(0, created).UTC()
	return a, nil
}

func mapSQLError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errx.E(op, errx.NotFound, err)
	}
	return errx.E(op, errx.Unavailable, err)
}

func (r *sqlRepo) Upsert(ctx context.Context, id uuid.UUID, email string) (Account, error) {
	const op = "account.sqlrepo.Upsert"

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, role, created_at) VALUES (?, ?, 'user', ?)
		 ON CONFLICT (id) DO UPDATE SET email = excluded.email
		 RETURNING id, email, role, created_at`,
		id.String(), email, r.now().UnixNano(),
	)
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, mapSQLError(op, err)
	}
	return a, nil
}

func (r *sqlRepo) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	const op = "account.sqlrepo.Get"

	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, role, created_at FROM users WHERE id = ?`, id.String())
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, mapSQLError(op, err)
	}
	return a, nil
}

func (r *sqlRepo) SetRole(ctx context.Context, id uuid.UUID, role Role) (Account, error) {
	const op = "account.sqlrepo.SetRole"

	row := r.db.QueryRowContext(ctx,
		`UPDATE users SET role = ? WHERE id = ? RETURNING id, email, role, created_at`,
		string(role), id.String())
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, mapSQLError(op, err)
	}
	return a, nil
}
