package shortener

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/shortlink/internal/db/migrations"
	"github.com/sundayezeilo/shortlink/internal/db/sqlite"
	"github.com/sundayezeilo/shortlink/internal/errx"
)

// newSQLiteStore opens a migrated database in a per-test file and returns a
// repository whose clock advances one millisecond per call, so creation
// order is deterministic.
func newSQLiteStore(t *testing.T) (*sql.DB, Repository) {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, "file:"+filepath.Join(t.TempDir(), "links.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := migrations.SQLite(ctx, db); err != nil {
		t.Fatalf("migrations.SQLite() error: %v", err)
	}

	var tick atomic.Int64
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Millisecond)
	}
	return db, NewSQLRepository(db, &SQLRepositoryConfig{Clock: clock})
}

func addUser(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(`INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)`,
		id.String(), id.String()+"@example.com", time.Now().UnixNano())
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return id
}

func TestSQLRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db, repo := newSQLiteStore(t)
	owner := addUser(t, db)

	svc := newTestService(repo, nil, nil)
	created, err := svc.Create(ctx, owner, CreateLinkRequest{OriginalURL: "https://example.com/x", ShortCode: "ex1"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if created.ID.Version() != 7 {
		t.Errorf("ID version = %d, want 7", created.ID.Version())
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Errorf("timestamps = %v / %v", created.CreatedAt, created.UpdatedAt)
	}

	resolver := NewResolver(repo, &ResolverConfig{Logger: discardLogger()})
	for _, code := range []string{"ex1", "EX1", "Ex1"} {
		got, err := resolver.Resolve(ctx, code)
		if err != nil {
			t.Fatalf("Resolve(%q) error: %v", code, err)
		}
		if got != "https://example.com/x" {
			t.Errorf("Resolve(%q) = %q", code, got)
		}
	}

	if _, err := resolver.Resolve(ctx, "doesnotexist"); errx.KindOf(err) != errx.NotFound {
		t.Errorf("Resolve(doesnotexist) kind = %v, want %v", errx.KindOf(err), errx.NotFound)
	}
}

func TestSQLRepository_Uniqueness(t *testing.T) {
	ctx := context.Background()
	db, repo := newSQLiteStore(t)
	alice, bob := addUser(t, db), addUser(t, db)

	if _, err := repo.Insert(ctx, Link{ShortCode: "abc", OriginalURL: "https://a.example", OwnerID: alice}); err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	svc := newTestService(repo, nil, nil)
	for _, tc := range []struct {
		owner uuid.UUID
		code  string
	}{
		{bob, "abc"},
		{alice, "ABC"},
	} {
		_, err := svc.Create(ctx, tc.owner, CreateLinkRequest{OriginalURL: "https://b.example", ShortCode: tc.code})
		if errx.KindOf(err) != errx.Conflict {
			t.Errorf("Create(%q) kind = %v, want %v", tc.code, errx.KindOf(err), errx.Conflict)
		}
	}

	// The unique index is authoritative even when the service pre-check is bypassed.
	_, err := repo.Insert(ctx, Link{ShortCode: "ABC", OriginalURL: "https://b.example", OwnerID: bob})
	if errx.KindOf(err) != errx.Conflict {
		t.Errorf("raw Insert(ABC) kind = %v, want %v", errx.KindOf(err), errx.Conflict)
	}
}

func TestSQLRepository_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	db, repo := newSQLiteStore(t)
	svc := newTestService(repo, nil, nil)

	const n = 8
	owners := make([]uuid.UUID, n)
	for i := range owners {
		owners[i] = addUser(t, db)
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(owner uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := svc.Create(ctx, owner, CreateLinkRequest{
				OriginalURL: "https://race.example",
				ShortCode:   "race",
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errx.KindOf(err) == errx.Conflict:
				conflicts.Add(1)
			default:
				t.Errorf("Create() unexpected error: %v", err)
			}
		}(owners[i])
	}
	close(start)
	wg.Wait()

	if successes.Load() != 1 {
		t.Errorf("successes = %d, want exactly 1", successes.Load())
	}
	if conflicts.Load() != n-1 {
		t.Errorf("conflicts = %d, want %d", conflicts.Load(), n-1)
	}
}

func TestSQLRepository_Pagination(t *testing.T) {
	ctx := context.Background()
	db, repo := newSQLiteStore(t)
	owner, other := addUser(t, db), addUser(t, db)

	for i := 0; i < 25; i++ {
		_, err := repo.Insert(ctx, Link{
			ShortCode:   fmt.Sprintf("link-%02d", i),
			OriginalURL: fmt.Sprintf("https://example.com/%d", i),
			OwnerID:     owner,
		})
		if err != nil {
			t.Fatalf("Insert(%d) error: %v", i, err)
		}
	}
	if _, err := repo.Insert(ctx, Link{ShortCode: "elsewhere", OriginalURL: "https://x.example", OwnerID: other}); err != nil {
		t.Fatalf("Insert(other) error: %v", err)
	}

	svc := newTestService(repo, nil, nil)
	for page, want := range map[int]int{1: 10, 2: 10, 3: 5, 4: 0} {
		got, err := svc.List(ctx, owner, ListParams{Page: page, PageSize: 10})
		if err != nil {
			t.Fatalf("List(page %d) error: %v", page, err)
		}
		if len(got.Items) != want {
			t.Errorf("page %d: %d items, want %d", page, len(got.Items), want)
		}
		if got.TotalCount != 25 {
			t.Errorf("page %d: total_count = %d, want 25", page, got.TotalCount)
		}
	}

	first, err := svc.List(ctx, owner, ListParams{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if first.Items[0].ShortCode != "link-00" || first.Items[9].ShortCode != "link-09" {
		t.Errorf("owner listing order = %s..%s, want link-00..link-09",
			first.Items[0].ShortCode, first.Items[9].ShortCode)
	}

	all, err := svc.ListAll(ctx, ListParams{Page: 1, PageSize: 3})
	if err != nil {
		t.Fatalf("ListAll() error: %v", err)
	}
	if all.TotalCount != 26 {
		t.Errorf("ListAll total_count = %d, want 26", all.TotalCount)
	}
	if all.Items[0].ShortCode != "elsewhere" {
		t.Errorf("ListAll first = %s, want newest (elsewhere)", all.Items[0].ShortCode)
	}
}

func TestSQLRepository_Search(t *testing.T) {
	ctx := context.Background()
	db, repo := newSQLiteStore(t)
	owner := addUser(t, db)

	for _, l := range []Link{
		{ShortCode: "summer", OriginalURL: "https://shop.example/sale?off=50%25"},
		{ShortCode: "winter", OriginalURL: "https://shop.example/Promo_Winter"},
		{ShortCode: "docs", OriginalURL: "https://docs.example/guide"},
		{ShortCode: "cafe", OriginalURL: "https://example.org/Menü/CAFÉ"},
	} {
		l.OwnerID = owner
		if _, err := repo.Insert(ctx, l); err != nil {
			t.Fatalf("Insert(%s) error: %v", l.ShortCode, err)
		}
	}

	tests := []struct {
		search string
		want   int64
	}{
		{"", 4},
		{"SHOP", 2},
		{"CAFÉ", 1},
		{"menü", 1},
		{"promo_", 1},
		{"_", 1},
		{"%", 1},
		{"DOCS", 1},
		{"nothing", 0},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			_, total, err := repo.ListByOwner(ctx, owner, ListParams{Search: tt.search, Page: 1, PageSize: 10})
			if err != nil {
				t.Fatalf("ListByOwner() error: %v", err)
			}
			if total != tt.want {
				t.Errorf("search %q matched %d, want %d", tt.search, total, tt.want)
			}
		})
	}
}

func TestSQLRepository_Ownership(t *testing.T) {
	ctx := context.Background()
	db, repo := newSQLiteStore(t)
	owner, intruder := addUser(t, db), addUser(t, db)

	link, err := repo.Insert(ctx, Link{ShortCode: "mine", OriginalURL: "https://mine.example", OwnerID: owner})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	newURL := "https://stolen.example"

	if _, err := repo.Update(ctx, link.ID, intruder, LinkUpdate{OriginalURL: &newURL}); errx.KindOf(err) != errx.Forbidden {
		t.Errorf("intruder Update kind = %v, want %v", errx.KindOf(err), errx.Forbidden)
	}
	if err := repo.Delete(ctx, link.ID, intruder); errx.KindOf(err) != errx.Forbidden {
		t.Errorf("intruder Delete kind = %v, want %v", errx.KindOf(err), errx.Forbidden)
	}
	if _, err := repo.Update(ctx, uuid.New(), owner, LinkUpdate{OriginalURL: &newURL}); errx.KindOf(err) != errx.NotFound {
		t.Errorf("Update(missing) kind = %v, want %v", errx.KindOf(err), errx.NotFound)
	}
	if err := repo.Delete(ctx, uuid.New(), owner); errx.KindOf(err) != errx.NotFound {
		t.Errorf("Delete(missing) kind = %v, want %v", errx.KindOf(err), errx.NotFound)
	}

	got, err := repo.FindByID(ctx, link.ID)
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if got.OriginalURL != "https://mine.example" {
		t.Errorf("OriginalURL = %q after rejected update", got.OriginalURL)
	}
}

func TestSQLRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	db, repo := newSQLiteStore(t)
	owner := addUser(t, db)
	svc := newTestService(repo, nil, nil)

	link, err := svc.Create(ctx, owner, CreateLinkRequest{OriginalURL: "https://one.example", ShortCode: "first"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	updated, err := svc.Update(ctx, owner, link.ID, UpdateLinkRequest{ShortCode: ptr("Second")})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.ShortCode != "second" || updated.OriginalURL != "https://one.example" {
		t.Errorf("Update() = %+v", updated)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", updated.UpdatedAt, updated.CreatedAt)
	}
	if !updated.CreatedAt.Equal(link.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", link.CreatedAt, updated.CreatedAt)
	}

	// The old code is free again.
	if taken, _ := repo.ExistsByCode(ctx, "first"); taken {
		t.Error("old code still taken after update")
	}

	if err := svc.Delete(ctx, owner, link.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := repo.FindByCode(ctx, "second"); errx.KindOf(err) != errx.NotFound {
		t.Errorf("FindByCode after delete kind = %v, want %v", errx.KindOf(err), errx.NotFound)
	}
	// Hard delete: the code is immediately reusable.
	if _, err := svc.Create(ctx, owner, CreateLinkRequest{OriginalURL: "https://two.example", ShortCode: "second"}); err != nil {
		t.Errorf("re-Create of deleted code error: %v", err)
	}
}

func TestSQLRepository_UnknownOwner(t *testing.T) {
	_, repo := newSQLiteStore(t)

	_, err := repo.Insert(context.Background(), Link{ShortCode: "orphan", OriginalURL: "https://x.example", OwnerID: uuid.New()})
	if errx.KindOf(err) != errx.Invalid {
		t.Errorf("Insert(unknown owner) kind = %v, want %v", errx.KindOf(err), errx.Invalid)
	}
}
