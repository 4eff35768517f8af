package shortener

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// CreateLinkRequest represents the parameters for creating a new link.
type CreateLinkRequest struct {
	OriginalURL string
	ShortCode   string
}

// UpdateLinkRequest carries optional replacements; nil leaves a field as is.
type UpdateLinkRequest struct {
	OriginalURL *string
	ShortCode   *string
}

// Availability is the advisory answer to "can I use this code?".
type Availability struct {
	Code      string
	Available bool
	Reason    Reason
}

// Service is the Allocation Service. Every mutating call takes the caller's
// account id explicitly; the service never reads identity from ambient state.
type Service interface {
	Create(ctx context.Context, ownerID uuid.UUID, req CreateLinkRequest) (Link, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, req UpdateLinkRequest) (Link, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	List(ctx context.Context, ownerID uuid.UUID, p ListParams) (Page, error)
	ListAll(ctx context.Context, p ListParams) (Page, error)
	Availability(ctx context.Context, code string) (Availability, error)
	CodeTaken(ctx context.Context, code string) (bool, error)
}

// Reserver holds short-lived claims on codes that are being allocated, so
// two concurrent requests for one code fail fast instead of racing to the
// unique index. ok is false when another request holds the claim.
type Reserver interface {
	Reserve(ctx context.Context, code string) (release func(context.Context), ok bool, err error)
}

type noopReserver struct{}

func (noopReserver) Reserve(context.Context, string) (func(context.Context), bool, error) {
	return func(context.Context) {}, true, nil
}

type service struct {
	repo     Repository
	reserver Reserver
	cache    Cache
	logger   *slog.Logger
}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	Reserver Reserver
	Cache    Cache // invalidated on update and delete
	Logger   *slog.Logger
}

// NewService creates a new service instance.
func NewService(repo Repository, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}

	s := &service{
		repo:     repo,
		reserver: config.Reserver,
		cache:    config.Cache,
		logger:   config.Logger,
	}
	if s.reserver == nil {
		s.reserver = noopReserver{}
	}
	if s.cache == nil {
		s.cache = noopCache{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func requireOwner(op string, ownerID uuid.UUID) error {
	if ownerID == uuid.Nil {
		return errx.E(op, errx.Unauthorized, errors.New("missing account id"))
	}
	return nil
}

// Create validates the request, runs the advisory availability check and
// inserts. A duplicate reported by the store is returned as Conflict; the
// code is never swapped for another one.
func (s *service) Create(ctx context.Context, ownerID uuid.UUID, req CreateLinkRequest) (Link, error) {
	const op = "shortener.service.Create"

	if err := requireOwner(op, ownerID); err != nil {
		return Link{}, err
	}

	target := strings.TrimSpace(req.OriginalURL)
	if err := ValidateURL(target); err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}
	code, err := canonicalCode(req.ShortCode)
	if err != nil {
		return Link{}, errx.E(op, errx.Invalid, err)
	}

	taken, err := s.repo.ExistsByCode(ctx, code)
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	if taken {
		return Link{}, errx.E(op, errx.Conflict, errors.New("short code already in use"))
	}

	release, err := s.reserve(ctx, op, code)
	if err != nil {
		return Link{}, err
	}
	defer release(context.WithoutCancel(ctx))

	created, err := s.repo.Insert(ctx, Link{
		ShortCode:   code,
		OriginalURL: target,
		OwnerID:     ownerID,
	})
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}

	s.logger.InfoContext(ctx, "link created",
		"link_id", created.ID.String(),
		"short_code", created.ShortCode,
		"owner_id", ownerID.String(),
	)
	return created, nil
}

// reserve claims code, treating a reserver failure as advisory: the
// allocation continues and the unique index decides.
func (s *service) reserve(ctx context.Context, op, code string) (func(context.Context), error) {
	release, ok, err := s.reserver.Reserve(ctx, code)
	if err != nil {
		s.logger.WarnContext(ctx, "code reservation unavailable, relying on unique index",
			"short_code", code,
			"error", err.Error(),
		)
		return func(context.Context) {}, nil
	}
	if !ok {
		return nil, errx.E(op, errx.Conflict, errors.New("short code is being claimed by another request"))
	}
	return release, nil
}

func (s *service) Update(ctx context.Context, ownerID, id uuid.UUID, req UpdateLinkRequest) (Link, error) {
	const op = "shortener.service.Update"

	if err := requireOwner(op, ownerID); err != nil {
		return Link{}, err
	}

	var upd LinkUpdate
	if req.OriginalURL != nil {
		target := strings.TrimSpace(*req.OriginalURL)
		if err := ValidateURL(target); err != nil {
			return Link{}, errx.E(op, errx.Invalid, err)
		}
		upd.OriginalURL = &target
	}
	if req.ShortCode != nil {
		code, err := canonicalCode(*req.ShortCode)
		if err != nil {
			return Link{}, errx.E(op, errx.Invalid, err)
		}
		upd.ShortCode = &code
	}
	if upd.Empty() {
		return Link{}, errx.E(op, errx.Invalid, &ValidationError{Field: "body", Reason: ReasonEmpty})
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	if current.OwnerID != ownerID {
		return Link{}, errx.E(op, errx.Forbidden, errors.New("link belongs to another account"))
	}

	if upd.ShortCode != nil && *upd.ShortCode != current.ShortCode {
		holder, err := s.repo.FindByCode(ctx, *upd.ShortCode)
		switch {
		case err == nil && holder.ID != id:
			return Link{}, errx.E(op, errx.Conflict, errors.New("short code already in use"))
		case err != nil && !errx.Is(err, errx.NotFound):
			return Link{}, errx.Wrap(op, err)
		}

		release, err := s.reserve(ctx, op, *upd.ShortCode)
		if err != nil {
			return Link{}, err
		}
		defer release(context.WithoutCancel(ctx))
	}

	updated, err := s.repo.Update(ctx, id, ownerID, upd)
	if err != nil {
		return Link{}, errx.Wrap(op, err)
	}
	s.cache.Invalidate(current.ShortCode, updated.ShortCode)

	s.logger.InfoContext(ctx, "link updated",
		"link_id", id.String(),
		"short_code", updated.ShortCode,
		"previous_code", current.ShortCode,
	)
	return updated, nil
}

func (s *service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	const op = "shortener.service.Delete"

	if err := requireOwner(op, ownerID); err != nil {
		return err
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return errx.Wrap(op, err)
	}
	if current.OwnerID != ownerID {
		return errx.E(op, errx.Forbidden, errors.New("link belongs to another account"))
	}

	if err := s.repo.Delete(ctx, id, ownerID); err != nil {
		return errx.Wrap(op, err)
	}
	s.cache.Invalidate(current.ShortCode)

	s.logger.InfoContext(ctx, "link deleted",
		"link_id", id.String(),
		"short_code", current.ShortCode,
	)
	return nil
}

// canonicalCode validates the trimmed input as typed and only then lowers
// it. Lowering first would let non-ASCII runes such as the Kelvin sign fold
// into the code alphabet.
func canonicalCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if err := ValidateCode(code); err != nil {
		return code, err
	}
	return NormalizeCode(code), nil
}

// validatePage bounds paging so the row offset fits the int32 the queries take.
func validatePage(p ListParams) error {
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		return &ValidationError{Field: "page_size", Reason: ReasonOutOfRange}
	}
	if p.Page < 1 || int64(p.Page-1)*int64(p.PageSize) > math.MaxInt32 {
		return &ValidationError{Field: "page", Reason: ReasonOutOfRange}
	}
	return nil
}

func (s *service) List(ctx context.Context, ownerID uuid.UUID, p ListParams) (Page, error) {
	const op = "shortener.service.List"

	if err := requireOwner(op, ownerID); err != nil {
		return Page{}, err
	}
	if err := validatePage(p); err != nil {
		return Page{}, errx.E(op, errx.Invalid, err)
	}
	p.Search = strings.TrimSpace(p.Search)

	items, total, err := s.repo.ListByOwner(ctx, ownerID, p)
	if err != nil {
		return Page{}, errx.Wrap(op, err)
	}
	return Page{Items: items, TotalCount: total, Page: p.Page, PageSize: p.PageSize}, nil
}

// ListAll lists every owner's links. Callers gate it on the admin role.
func (s *service) ListAll(ctx context.Context, p ListParams) (Page, error) {
	const op = "shortener.service.ListAll"

	if err := validatePage(p); err != nil {
		return Page{}, errx.E(op, errx.Invalid, err)
	}
	p.Search = strings.TrimSpace(p.Search)

	items, total, err := s.repo.ListAll(ctx, p)
	if err != nil {
		return Page{}, errx.Wrap(op, err)
	}
	return Page{Items: items, TotalCount: total, Page: p.Page, PageSize: p.PageSize}, nil
}

// Availability validates code and checks whether it is free right now. The
// answer is advisory; a later create may still lose a race.
func (s *service) Availability(ctx context.Context, code string) (Availability, error) {
	const op = "shortener.service.Availability"

	code, err := canonicalCode(code)
	if err != nil {
		var ve *ValidationError
		errors.As(err, &ve)
		return Availability{Code: code, Reason: ve.Reason}, nil
	}

	taken, err := s.repo.ExistsByCode(ctx, code)
	if err != nil {
		return Availability{}, errx.Wrap(op, err)
	}
	return Availability{Code: code, Available: !taken}, nil
}

func (s *service) CodeTaken(ctx context.Context, code string) (bool, error) {
	taken, err := s.repo.ExistsByCode(ctx, NormalizeCode(code))
	if err != nil {
		return false, errx.Wrap("shortener.service.CodeTaken", err)
	}
	return taken, nil
}
