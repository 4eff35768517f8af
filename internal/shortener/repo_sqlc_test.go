package shortener

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	db "github.com/sundayezeilo/shortlink/internal/db/sqlc"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/idgen"
)

/***************
 * Mocks / Stubs
 ***************/

// mockQueries implements the querier interface for testing.
type mockQueries struct {
	createLinkFunc        func(ctx context.Context, arg db.CreateLinkParams) (db.Link, error)
	getLinkByCodeFunc     func(ctx context.Context, code string) (db.Link, error)
	getLinkByIDFunc       func(ctx context.Context, id uuid.UUID) (db.Link, error)
	linkCodeExistsFunc    func(ctx context.Context, code string) (bool, error)
	getLinkOwnerFunc      func(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	updateLinkFunc        func(ctx context.Context, arg db.UpdateLinkParams) (db.Link, error)
	deleteLinkFunc        func(ctx context.Context, arg db.DeleteLinkParams) (int64, error)
	listLinksByOwnerFunc  func(ctx context.Context, arg db.ListLinksByOwnerParams) ([]db.Link, error)
	countLinksByOwnerFunc func(ctx context.Context, arg db.CountLinksByOwnerParams) (int64, error)
	listAllLinksFunc      func(ctx context.Context, arg db.ListAllLinksParams) ([]db.Link, error)
	countAllLinksFunc     func(ctx context.Context, pattern string) (int64, error)
}

func (m *mockQueries) CreateLink(ctx context.Context, arg db.CreateLinkParams) (db.Link, error) {
	if m.createLinkFunc != nil {
		return m.createLinkFunc(ctx, arg)
	}
	return db.Link{}, nil
}

func (m *mockQueries) GetLinkByCode(ctx context.Context, code string) (db.Link, error) {
	if m.getLinkByCodeFunc != nil {
		return m.getLinkByCodeFunc(ctx, code)
	}
	return db.Link{}, pgx.ErrNoRows
}

func (m *mockQueries) GetLinkByID(ctx context.Context, id uuid.UUID) (db.Link, error) {
	if m.getLinkByIDFunc != nil {
		return m.getLinkByIDFunc(ctx, id)
	}
	return db.Link{}, pgx.ErrNoRows
}

func (m *mockQueries) LinkCodeExists(ctx context.Context, code string) (bool, error) {
	if m.linkCodeExistsFunc != nil {
		return m.linkCodeExistsFunc(ctx, code)
	}
	return false, nil
}

func (m *mockQueries) GetLinkOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	if m.getLinkOwnerFunc != nil {
		return m.getLinkOwnerFunc(ctx, id)
	}
	return uuid.Nil, pgx.ErrNoRows
}

func (m *mockQueries) UpdateLink(ctx context.Context, arg db.UpdateLinkParams) (db.Link, error) {
	if m.updateLinkFunc != nil {
		return m.updateLinkFunc(ctx, arg)
	}
	return db.Link{}, pgx.ErrNoRows
}

func (m *mockQueries) DeleteLink(ctx context.Context, arg db.DeleteLinkParams) (int64, error) {
	if m.deleteLinkFunc != nil {
		return m.deleteLinkFunc(ctx, arg)
	}
	return 0, nil
}

func (m *mockQueries) ListLinksByOwner(ctx context.Context, arg db.ListLinksByOwnerParams) ([]db.Link, error) {
	if m.listLinksByOwnerFunc != nil {
		return m.listLinksByOwnerFunc(ctx, arg)
	}
	return nil, nil
}

func (m *mockQueries) CountLinksByOwner(ctx context.Context, arg db.CountLinksByOwnerParams) (int64, error) {
	if m.countLinksByOwnerFunc != nil {
		return m.countLinksByOwnerFunc(ctx, arg)
	}
	return 0, nil
}

func (m *mockQueries) ListAllLinks(ctx context.Context, arg db.ListAllLinksParams) ([]db.Link, error) {
	if m.listAllLinksFunc != nil {
		return m.listAllLinksFunc(ctx, arg)
	}
	return nil, nil
}

func (m *mockQueries) CountAllLinks(ctx context.Context, pattern string) (int64, error) {
	if m.countAllLinksFunc != nil {
		return m.countAllLinksFunc(ctx, pattern)
	}
	return 0, nil
}

// stubIDGen lets tests control generated IDs deterministically.
type stubIDGen struct {
	id    uuid.UUID
	err   error
	calls int
}

func (g *stubIDGen) Generate() (uuid.UUID, error) {
	g.calls++
	return g.id, g.err
}

/***************
 * Helpers
 ***************/

func makeValidTimestamp(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func makeTestDBLink(now time.Time, owner uuid.UUID) db.Link {
	return db.Link{
		ID:          uuid.New(),
		ShortCode:   "promo",
		OriginalUrl: "https://example.com",
		OwnerID:     owner,
		CreatedAt:   makeValidTimestamp(now),
		UpdatedAt:   makeValidTimestamp(now),
	}
}

/***************
 * Unit tests: helpers
 ***************/

func TestMustTime(t *testing.T) {
	t.Run("returns time when timestamp is valid", func(t *testing.T) {
		now := time.Now()

		got, err := mustTime(makeValidTimestamp(now), "test_field")
		if err != nil {
			t.Fatalf("mustTime() unexpected error: %v", err)
		}
		if !got.Equal(now) {
			t.Errorf("mustTime() = %v, want %v", got, now)
		}
	})

	t.Run("returns error when timestamp is NULL", func(t *testing.T) {
		_, err := mustTime(pgtype.Timestamptz{}, "test_field")
		if err == nil {
			t.Fatal("mustTime() expected error, got nil")
		}
		if want := "test_field unexpectedly NULL"; err.Error() != want {
			t.Errorf("mustTime() error = %q, want %q", err.Error(), want)
		}
	})
}

func TestTextOrNull(t *testing.T) {
	if got := textOrNull(nil); got.Valid {
		t.Errorf("textOrNull(nil) = %+v, want NULL", got)
	}
	s := "promo"
	if got := textOrNull(&s); !got.Valid || got.String != "promo" {
		t.Errorf("textOrNull(&promo) = %+v, want valid promo", got)
	}
}

func TestToDomainLink(t *testing.T) {
	now := time.Now()
	owner := uuid.New()

	t.Run("converts a valid row", func(t *testing.T) {
		row := makeTestDBLink(now, owner)

		got, err := toDomainLink(row)
		if err != nil {
			t.Fatalf("toDomainLink() unexpected error: %v", err)
		}
		if got.ID != row.ID || got.ShortCode != row.ShortCode || got.OriginalURL != row.OriginalUrl {
			t.Errorf("toDomainLink() = %+v, want fields copied from %+v", got, row)
		}
		if got.OwnerID != owner {
			t.Errorf("OwnerID = %v, want %v", got.OwnerID, owner)
		}
	})

	t.Run("rejects NULL created_at", func(t *testing.T) {
		row := makeTestDBLink(now, owner)
		row.CreatedAt = pgtype.Timestamptz{}
		if _, err := toDomainLink(row); err == nil {
			t.Fatal("toDomainLink() expected error for NULL created_at")
		}
	})

	t.Run("rejects NULL updated_at", func(t *testing.T) {
		row := makeTestDBLink(now, owner)
		row.UpdatedAt = pgtype.Timestamptz{}
		if _, err := toDomainLink(row); err == nil {
			t.Fatal("toDomainLink() expected error for NULL updated_at")
		}
	})
}

func TestMapRepoError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errx.Kind
	}{
		{"no rows is NotFound", pgx.ErrNoRows, errx.NotFound},
		{
			"short code unique violation is Conflict",
			&pgconn.PgError{Code: "23505", ConstraintName: shortCodeUniqueIndex},
			errx.Conflict,
		},
		{
			"other unique violation is Unavailable",
			&pgconn.PgError{Code: "23505", ConstraintName: "links_pkey"},
			errx.Unavailable,
		},
		{
			"owner foreign key violation is Invalid",
			&pgconn.PgError{Code: "23503", ConstraintName: "links_owner_id_fkey"},
			errx.Invalid,
		},
		{
			"check violation is Invalid",
			&pgconn.PgError{Code: "23514", ConstraintName: "links_short_code_length"},
			errx.Invalid,
		},
		{"undefined table is Unavailable", &pgconn.PgError{Code: "42P01"}, errx.Unavailable},
		{"timeout is Unavailable", context.DeadlineExceeded, errx.Unavailable},
		{"generic error is Unavailable", errors.New("connection refused"), errx.Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapRepoError("test.op", tt.err)
			if got := errx.KindOf(err); got != tt.want {
				t.Errorf("KindOf(err) = %v, want %v", got, tt.want)
			}
			if errx.OpOf(err) != "test.op" {
				t.Errorf("OpOf(err) = %q, want %q", errx.OpOf(err), "test.op")
			}
		})
	}
}

func TestLikePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"Promo", "%promo%"},
		{"50%", `%50\%%`},
		{"a_b", `%a\_b%`},
		{`c:\x`, `%c:\\x%`},
		{"CAFÉ", "%cafÉ%"},
		{"\u212A", "%\u212A%"},
	}
	for _, tt := range tests {
		if got := likePattern(tt.in); got != tt.want {
			t.Errorf("likePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

/***************
 * Unit tests: repo methods
 ***************/

func TestRepoInsert(t *testing.T) {
	now := time.Now()
	owner := uuid.New()

	t.Run("generates an ID when link.ID is zero", func(t *testing.T) {
		wantID := uuid.New()
		gen := &stubIDGen{id: wantID}

		mock := &mockQueries{
			createLinkFunc: func(_ context.Context, arg db.CreateLinkParams) (db.Link, error) {
				if arg.ID != wantID {
					t.Errorf("CreateLink ID = %v, want %v", arg.ID, wantID)
				}
				if arg.OwnerID != owner || arg.ShortCode != "promo" {
					t.Errorf("CreateLink params = %+v", arg)
				}
				row := makeTestDBLink(now, owner)
				row.ID = arg.ID
				return row, nil
			},
		}

		r := NewRepository(mock, &RepositoryConfig{IDGenerator: gen})
		got, err := r.Insert(context.Background(), Link{ShortCode: "promo", OriginalURL: "https://example.com", OwnerID: owner})
		if err != nil {
			t.Fatalf("Insert() unexpected error: %v", err)
		}
		if got.ID != wantID {
			t.Errorf("ID = %v, want %v", got.ID, wantID)
		}
		if gen.calls != 1 {
			t.Errorf("generator calls = %d, want 1", gen.calls)
		}
	})

	t.Run("keeps a caller-supplied ID", func(t *testing.T) {
		gen := &stubIDGen{id: uuid.New()}
		given := uuid.New()

		mock := &mockQueries{
			createLinkFunc: func(_ context.Context, arg db.CreateLinkParams) (db.Link, error) {
				row := makeTestDBLink(now, owner)
				row.ID = arg.ID
				return row, nil
			},
		}

		r := NewRepository(mock, &RepositoryConfig{IDGenerator: gen})
		got, err := r.Insert(context.Background(), Link{ID: given, ShortCode: "promo", OwnerID: owner})
		if err != nil {
			t.Fatalf("Insert() unexpected error: %v", err)
		}
		if got.ID != given || gen.calls != 0 {
			t.Errorf("ID = %v (calls %d), want %v without generating", got.ID, gen.calls, given)
		}
	})

	t.Run("id generation failure is Unavailable", func(t *testing.T) {
		gen := &stubIDGen{err: errors.New("entropy exhausted")}
		r := NewRepository(&mockQueries{}, &RepositoryConfig{IDGenerator: gen})

		_, err := r.Insert(context.Background(), Link{ShortCode: "promo", OwnerID: owner})
		if errx.KindOf(err) != errx.Unavailable {
			t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.Unavailable)
		}
	})

	t.Run("duplicate code is Conflict", func(t *testing.T) {
		mock := &mockQueries{
			createLinkFunc: func(context.Context, db.CreateLinkParams) (db.Link, error) {
				return db.Link{}, &pgconn.PgError{Code: "23505", ConstraintName: shortCodeUniqueIndex}
			},
		}
		r := NewRepository(mock, nil)

		_, err := r.Insert(context.Background(), Link{ShortCode: "promo", OwnerID: owner})
		if errx.KindOf(err) != errx.Conflict {
			t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.Conflict)
		}
	})

	t.Run("row with NULL timestamp is Internal", func(t *testing.T) {
		mock := &mockQueries{
			createLinkFunc: func(context.Context, db.CreateLinkParams) (db.Link, error) {
				row := makeTestDBLink(now, owner)
				row.CreatedAt = pgtype.Timestamptz{}
				return row, nil
			},
		}
		r := NewRepository(mock, nil)

		_, err := r.Insert(context.Background(), Link{ShortCode: "promo", OwnerID: owner})
		if errx.KindOf(err) != errx.Internal {
			t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.Internal)
		}
	})
}

func TestRepoFindByCode(t *testing.T) {
	now := time.Now()
	owner := uuid.New()

	t.Run("found", func(t *testing.T) {
		mock := &mockQueries{
			getLinkByCodeFunc: func(_ context.Context, code string) (db.Link, error) {
				if code != "promo" {
					t.Errorf("GetLinkByCode code = %q, want promo", code)
				}
				return makeTestDBLink(now, owner), nil
			},
		}
		got, err := NewRepository(mock, nil).FindByCode(context.Background(), "promo")
		if err != nil {
			t.Fatalf("FindByCode() unexpected error: %v", err)
		}
		if got.OriginalURL != "https://example.com" {
			t.Errorf("OriginalURL = %q", got.OriginalURL)
		}
	})

	t.Run("missing is NotFound", func(t *testing.T) {
		_, err := NewRepository(&mockQueries{}, nil).FindByCode(context.Background(), "nope")
		if errx.KindOf(err) != errx.NotFound {
			t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.NotFound)
		}
	})

	t.Run("store failure is Unavailable, never NotFound", func(t *testing.T) {
		mock := &mockQueries{
			getLinkByCodeFunc: func(context.Context, string) (db.Link, error) {
				return db.Link{}, context.DeadlineExceeded
			},
		}
		_, err := NewRepository(mock, nil).FindByCode(context.Background(), "promo")
		if errx.KindOf(err) != errx.Unavailable {
			t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.Unavailable)
		}
	})
}

func TestRepoUpdate(t *testing.T) {
	now := time.Now()
	owner := uuid.New()
	id := uuid.New()
	newCode := "fresh"

	tests := []struct {
		name     string
		mock     *mockQueries
		wantKind errx.Kind
	}{
		{
			name: "owner updates",
			mock: &mockQueries{
				updateLinkFunc: func(_ context.Context, arg db.UpdateLinkParams) (db.Link, error) {
					if arg.ID != id || arg.OwnerID != owner {
						t.Errorf("UpdateLink scoped to %v/%v, want %v/%v", arg.ID, arg.OwnerID, id, owner)
					}
					if arg.OriginalUrl.Valid {
						t.Error("OriginalUrl should be NULL when not updated")
					}
					if !arg.ShortCode.Valid || arg.ShortCode.String != newCode {
						t.Errorf("ShortCode = %+v, want %q", arg.ShortCode, newCode)
					}
					row := makeTestDBLink(now, owner)
					row.ShortCode = newCode
					return row, nil
				},
			},
		},
		{
			name:     "missing row is NotFound",
			mock:     &mockQueries{},
			wantKind: errx.NotFound,
		},
		{
			name: "row owned by someone else is Forbidden",
			mock: &mockQueries{
				getLinkOwnerFunc: func(context.Context, uuid.UUID) (uuid.UUID, error) {
					return uuid.New(), nil
				},
			},
			wantKind: errx.Forbidden,
		},
		{
			name: "duplicate code is Conflict",
			mock: &mockQueries{
				updateLinkFunc: func(context.Context, db.UpdateLinkParams) (db.Link, error) {
					return db.Link{}, &pgconn.PgError{Code: "23505", ConstraintName: shortCodeUniqueIndex}
				},
			},
			wantKind: errx.Conflict,
		},
		{
			name: "owner probe failure is Unavailable",
			mock: &mockQueries{
				getLinkOwnerFunc: func(context.Context, uuid.UUID) (uuid.UUID, error) {
					return uuid.Nil, errors.New("connection reset")
				},
			},
			wantKind: errx.Unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRepository(tt.mock, nil).Update(context.Background(), id, owner, LinkUpdate{ShortCode: &newCode})
			if tt.wantKind != errx.Unknown {
				if errx.KindOf(err) != tt.wantKind {
					t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Update() unexpected error: %v", err)
			}
			if got.ShortCode != newCode {
				t.Errorf("ShortCode = %q, want %q", got.ShortCode, newCode)
			}
		})
	}
}

func TestRepoDelete(t *testing.T) {
	owner := uuid.New()
	id := uuid.New()

	tests := []struct {
		name     string
		mock     *mockQueries
		wantKind errx.Kind
	}{
		{
			name: "owner deletes",
			mock: &mockQueries{
				deleteLinkFunc: func(_ context.Context, arg db.DeleteLinkParams) (int64, error) {
					if arg.ID != id || arg.OwnerID != owner {
						t.Errorf("DeleteLink scoped to %+v", arg)
					}
					return 1, nil
				},
			},
		},
		{
			name:     "nothing deleted and no row is NotFound",
			mock:     &mockQueries{},
			wantKind: errx.NotFound,
		},
		{
			name: "nothing deleted but row exists is Forbidden",
			mock: &mockQueries{
				getLinkOwnerFunc: func(context.Context, uuid.UUID) (uuid.UUID, error) {
					return uuid.New(), nil
				},
			},
			wantKind: errx.Forbidden,
		},
		{
			name: "store failure is Unavailable",
			mock: &mockQueries{
				deleteLinkFunc: func(context.Context, db.DeleteLinkParams) (int64, error) {
					return 0, errors.New("broken pipe")
				},
			},
			wantKind: errx.Unavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRepository(tt.mock, nil).Delete(context.Background(), id, owner)
			if tt.wantKind == errx.Unknown {
				if err != nil {
					t.Fatalf("Delete() unexpected error: %v", err)
				}
				return
			}
			if errx.KindOf(err) != tt.wantKind {
				t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), tt.wantKind)
			}
		})
	}
}

func TestRepoListByOwner(t *testing.T) {
	now := time.Now()
	owner := uuid.New()

	mock := &mockQueries{
		listLinksByOwnerFunc: func(_ context.Context, arg db.ListLinksByOwnerParams) ([]db.Link, error) {
			if arg.OwnerID != owner {
				t.Errorf("OwnerID = %v, want %v", arg.OwnerID, owner)
			}
			if arg.Pattern != "%pro%" {
				t.Errorf("Pattern = %q, want %%pro%%", arg.Pattern)
			}
			if arg.Limit != 10 || arg.Offset != 20 {
				t.Errorf("Limit/Offset = %d/%d, want 10/20", arg.Limit, arg.Offset)
			}
			return []db.Link{makeTestDBLink(now, owner)}, nil
		},
		countLinksByOwnerFunc: func(_ context.Context, arg db.CountLinksByOwnerParams) (int64, error) {
			if arg.Pattern != "%pro%" {
				t.Errorf("count Pattern = %q, want %%pro%%", arg.Pattern)
			}
			return 21, nil
		},
	}

	items, total, err := NewRepository(mock, nil).ListByOwner(context.Background(), owner, ListParams{Search: "PRO", Page: 3, PageSize: 10})
	if err != nil {
		t.Fatalf("ListByOwner() unexpected error: %v", err)
	}
	if len(items) != 1 || total != 21 {
		t.Errorf("ListByOwner() = %d items, total %d; want 1, 21", len(items), total)
	}
}

func TestRepoListAll(t *testing.T) {
	mock := &mockQueries{
		listAllLinksFunc: func(_ context.Context, arg db.ListAllLinksParams) ([]db.Link, error) {
			if arg.Pattern != "" || arg.Limit != 5 || arg.Offset != 0 {
				t.Errorf("ListAllLinks params = %+v", arg)
			}
			return nil, nil
		},
		countAllLinksFunc: func(context.Context, string) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}

	_, _, err := NewRepository(mock, nil).ListAll(context.Background(), ListParams{Page: 1, PageSize: 5})
	if errx.KindOf(err) != errx.Unavailable {
		t.Errorf("KindOf(err) = %v, want %v", errx.KindOf(err), errx.Unavailable)
	}
}

func TestNewRepository_DefaultsToUUIDv7(t *testing.T) {
	var got uuid.UUID
	mock := &mockQueries{
		createLinkFunc: func(_ context.Context, arg db.CreateLinkParams) (db.Link, error) {
			got = arg.ID
			row := makeTestDBLink(time.Now(), arg.OwnerID)
			row.ID = arg.ID
			return row, nil
		},
	}

	if _, err := NewRepository(mock, nil).Insert(context.Background(), Link{ShortCode: "promo", OwnerID: uuid.New()}); err != nil {
		t.Fatalf("Insert() unexpected error: %v", err)
	}
	if got.Version() != 7 {
		t.Errorf("generated ID version = %d, want 7", got.Version())
	}
}

func TestNewRepository_AllowsCustomGenerator(t *testing.T) {
	fixed := uuid.New()
	r := NewRepository(&mockQueries{
		createLinkFunc: func(_ context.Context, arg db.CreateLinkParams) (db.Link, error) {
			row := makeTestDBLink(time.Now(), arg.OwnerID)
			row.ID = arg.ID
			return row, nil
		},
	}, &RepositoryConfig{IDGenerator: idgen.Func(func() (uuid.UUID, error) { return fixed, nil })})

	got, err := r.Insert(context.Background(), Link{ShortCode: "promo", OwnerID: uuid.New()})
	if err != nil {
		t.Fatalf("Insert() unexpected error: %v", err)
	}
	if got.ID != fixed {
		t.Errorf("ID = %v, want %v", got.ID, fixed)
	}
}
