package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sundayezeilo/shortlink/internal/errx"
)

type Service interface {
	// Ensure returns the local account for an authenticated identity,
	// creating it with the user role on first access.
	Ensure(ctx context.Context, id uuid.UUID, email string) (Account, error)
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	// SetRole is an operator action exposed through the CLI only.
	SetRole(ctx context.Context, id uuid.UUID, role Role) (Account, error)
}

type service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{repo: repo, logger: logger}
}

// Ensure reads first so the common case, a known account with an unchanged
// email, costs no write.
func (s *service) Ensure(ctx context.Context, id uuid.UUID, email string) (Account, error) {
	const op = "account.service.Ensure"

	if id == uuid.Nil {
		return Account{}, errx.E(op, errx.Unauthorized, errors.New("identity has no subject"))
	}
	email = strings.TrimSpace(email)

	existing, err := s.repo.Get(ctx, id)
	switch {
	case err == nil && existing.Email == email:
		return existing, nil
	case err != nil && !errx.Is(err, errx.NotFound):
		return Account{}, errx.Wrap(op, err)
	}
	firstSeen := err != nil

	a, err := s.repo.Upsert(ctx, id, email)
	if err != nil {
		return Account{}, errx.Wrap(op, err)
	}
	if firstSeen {
		s.logger.InfoContext(ctx, "account mirrored", "account_id", id.String())
	}
	return a, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, errx.Wrap("account.service.Get", err)
	}
	return a, nil
}

func (s *service) SetRole(ctx context.Context, id uuid.UUID, role Role) (Account, error) {
	const op = "account.service.SetRole"

	if !role.Valid() {
		return Account{}, errx.E(op, errx.Invalid, errors.New("role must be user or admin"))
	}
	a, err := s.repo.SetRole(ctx, id, role)
	if err != nil {
		return Account{}, errx.Wrap(op, err)
	}
	s.logger.InfoContext(ctx, "account role changed", "account_id", id.String(), "role", string(role))
	return a, nil
}
