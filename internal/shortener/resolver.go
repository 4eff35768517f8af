package shortener

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

// ErrInvalidTarget marks a stored destination that no longer passes URL
// validation.
var ErrInvalidTarget = errors.New("stored destination is not a valid http(s) URL")

// Cache holds resolved destinations keyed by canonical code.
//
// Generation changes on every Invalidate. Store drops the entry when the
// generation moved since the caller read it, so a lookup that raced with an
// update or delete never repopulates the cache with the old destination.
type Cache interface {
	Get(code string) (string, bool)
	Generation() uint64
	Store(code, target string, generation uint64)
	Invalidate(codes ...string)
}

type noopCache struct{}

func (noopCache) Get(string) (string, bool) { return "", false }
func (noopCache) Generation() uint64 { return 0 }
func (noopCache) Store(string, string, uint64) {}
func (noopCache) Invalidate(...string) {}

// Resolver is the public redirect path.
type Resolver struct {
	repo   Repository
	cache  Cache
	logger *slog.Logger
}

// ResolverConfig holds optional collaborators for the resolver.
type ResolverConfig struct {
	Cache  Cache
	Logger *slog.Logger
}

func NewResolver(repo Repository, config *ResolverConfig) *Resolver {
	if config == nil {
		config = &ResolverConfig{}
	}
	r := &Resolver{repo: repo, cache: config.Cache, logger: config.Logger}
	if r.cache == nil {
		r.cache = noopCache{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve returns the destination for code. Reserved and malformed codes are
// NotFound without a store lookup. A stored destination that fails
// validation is reported as Invalid wrapping ErrInvalidTarget.
func (r *Resolver) Resolve(ctx context.Context, code string) (string, error) {
	const op = "shortener.resolver.Resolve"

	if err := ValidateCode(code); err != nil {
		return "", errx.E(op, errx.NotFound, err)
	}
	key := strings.ToLower(code)

	if target, ok := r.cache.Get(key); ok {
		return target, nil
	}
	gen := r.cache.Generation()

	link, err := r.repo.FindByCode(ctx, key)
	if err != nil {
		return "", errx.Wrap(op, err)
	}

	if err := ValidateURL(link.OriginalURL); err != nil {
		r.logger.ErrorContext(ctx, "stored destination failed validation",
			"link_id", link.ID.String(),
			"short_code", link.ShortCode,
			"error", err.Error(),
		)
		return "", errx.E(op, errx.Invalid, ErrInvalidTarget)
	}

	r.cache.Store(key, link.OriginalURL, gen)
	return link.OriginalURL, nil
}
