// Package auth verifies bearer tokens issued by the external identity
// provider and puts the caller's identity on the request context.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sundayezeilo/shortlink/internal/account"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/httpx"
	"github.com/sundayezeilo/shortlink/internal/idgen"
)

// Identity is the authenticated caller. Handlers read it once and pass
// UserID explicitly into service calls.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   account.Role
}

func (id Identity) IsAdmin() bool { return id.Role == account.RoleAdmin }

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && id.UserID != uuid.Nil
}

// Claims is the token payload. The subject is the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type VerifierConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
}

type Verifier struct {
	secret []byte
	opts   []jwt.ParserOption
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: secret is required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{secret: cfg.Secret, opts: opts}, nil
}

// Verify parses and validates a raw token and returns the subject and email.
func (v *Verifier) Verify(raw string) (uuid.UUID, string, error) {
	const op = "auth.Verify"

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, v.opts...)
	if err != nil {
		return uuid.Nil, "", errx.E(op, errx.Unauthorized, err)
	}
	sub, err := idgen.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", errx.E(op, errx.Unauthorized, fmt.Errorf("subject %q: %w", claims.Subject, err))
	}
	return sub, claims.Email, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticate rejects requests without a valid bearer token, mirrors the
// caller into the account store and attaches the resulting Identity.
func Authenticate(v *Verifier, accounts account.Service, logger *slog.Logger) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				httpx.WriteKind(w, errx.Unauthorized, nil)
				return
			}
			sub, email, err := v.Verify(raw)
			if err != nil {
				logger.DebugContext(r.Context(), "token rejected", "error", err)
				httpx.WriteKind(w, errx.Unauthorized, nil)
				return
			}

			acct, err := accounts.Ensure(r.Context(), sub, email)
			if err != nil {
				kind := errx.KindOf(err)
				if kind != errx.Unauthorized {
					logger.ErrorContext(r.Context(), "account mirror failed",
						"error", err,
						"op", errx.OpOf(err),
					)
				}
				httpx.WriteKind(w, kind, nil)
				return
			}

			ctx := WithIdentity(r.Context(), Identity{UserID: acct.ID, Email: acct.Email, Role: acct.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after Authenticate.
func RequireRole(role account.Role) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				httpx.WriteKind(w, errx.Unauthorized, nil)
				return
			}
			if id.Role != role {
				httpx.WriteError(w, http.StatusForbidden, httpx.ErrorKindToCode(errx.Forbidden),
					"this action requires the "+string(role)+" role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type MeResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Me handles GET /api/me.
func Me(w http.ResponseWriter, r *http.Request) {
	id, ok := FromContext(r.Context())
	if !ok {
		httpx.WriteKind(w, errx.Unauthorized, nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, MeResponse{ID: id.UserID.String(), Email: id.Email, Role: string(id.Role)})
}
