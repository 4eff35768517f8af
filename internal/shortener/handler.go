package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/sundayezeilo/shortlink/internal/auth"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/httpx"
	"github.com/sundayezeilo/shortlink/internal/idgen"
	"github.com/sundayezeilo/shortlink/sluggen"
)

const (
	suggestionCount = 3
	qrMaxAge        = 5 * time.Minute

	DefaultQRSize = 256
	MinQRSize     = 128
	MaxQRSize     = 1024
)

// HTTPCreateLinkRequest represents the JSON request body for creating a link.
type HTTPCreateLinkRequest struct {
	OriginalURL string `json:"original_url"`
	ShortCode   string `json:"short_code"`
}

// HTTPUpdateLinkRequest is a partial update; absent fields are kept.
type HTTPUpdateLinkRequest struct {
	OriginalURL *string `json:"original_url,omitempty"`
	ShortCode   *string `json:"short_code,omitempty"`
}

// LinkResponse represents a link in JSON responses.
type LinkResponse struct {
	ID          string `json:"id"`
	ShortCode   string `json:"short_code"`
	OriginalURL string `json:"original_url"`
	ShortURL    string `json:"short_url"`
	OwnerID     string `json:"owner_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type ListResponse struct {
	Items      []LinkResponse `json:"items"`
	TotalCount int64          `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}

type AvailabilityResponse struct {
	Code        string   `json:"code"`
	Available   bool     `json:"available"`
	Reason      Reason   `json:"reason,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Resolving is the read side the handler redirects through.
type Resolving interface {
	Resolve(ctx context.Context, code string) (string, error)
}

// Handler provides HTTP handlers for the URL shortener service.
type Handler struct {
	service   Service
	resolver  Resolving
	suggester *sluggen.Suggester
	logger    *slog.Logger
	baseURL   string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service  Service
	Resolver Resolving
	Logger   *slog.Logger
	BaseURL  string // Base URL for constructing short URLs (e.g., "https://short.ly")
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service:   cfg.Service,
		resolver:  cfg.Resolver,
		suggester: sluggen.NewSuggester(cfg.Service.CodeTaken, ValidateCode, nil),
		logger:    logger,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

func (h *Handler) toResponse(l Link, withOwner bool) LinkResponse {
	resp := LinkResponse{
		ID:          l.ID.String(),
		ShortCode:   l.ShortCode,
		OriginalURL: l.OriginalURL,
		ShortURL:    h.baseURL + "/" + l.ShortCode,
		CreatedAt:   l.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   l.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if withOwner {
		resp.OwnerID = l.OwnerID.String()
	}
	return resp
}

// identity is set by auth.Authenticate on every /api route.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteKind(w, errx.Unauthorized, nil)
	}
	return id, ok
}

// CreateLink handles POST /api/links.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	id, ok := identity(w, r)
	if !ok {
		return
	}

	req, err := httpx.DecodeJSON[HTTPCreateLinkRequest](w, r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	link, err := h.service.Create(ctx, id.UserID, CreateLinkRequest{
		OriginalURL: req.OriginalURL,
		ShortCode:   req.ShortCode,
	})
	if err != nil {
		h.handleError(ctx, logger, w, err, req.ShortCode)
		return
	}

	logger.InfoContext(ctx, "link created successfully",
		"link_id", link.ID.String(),
		"short_code", link.ShortCode,
	)
	httpx.WriteJSON(w, http.StatusCreated, h.toResponse(link, false))
}

// ListLinks handles GET /api/links for the caller's own links.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	id, ok := identity(w, r)
	if !ok {
		return
	}
	p, err := parseListParams(r)
	if err != nil {
		h.handleError(ctx, logger, w, err, "")
		return
	}

	page, err := h.service.List(ctx, id.UserID, p)
	if err != nil {
		h.handleError(ctx, logger, w, err, "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toListResponse(page, false))
}

// ListAllLinks handles GET /api/admin/links. The route is gated on the admin
// role before it reaches here.
func (h *Handler) ListAllLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	p, err := parseListParams(r)
	if err != nil {
		h.handleError(ctx, logger, w, err, "")
		return
	}

	page, err := h.service.ListAll(ctx, p)
	if err != nil {
		h.handleError(ctx, logger, w, err, "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.toListResponse(page, true))
}

func (h *Handler) toListResponse(p Page, withOwner bool) ListResponse {
	items := make([]LinkResponse, 0, len(p.Items))
	for _, l := range p.Items {
		items = append(items, h.toResponse(l, withOwner))
	}
	return ListResponse{Items: items, TotalCount: p.TotalCount, Page: p.Page, PageSize: p.PageSize}
}

// Availability handles GET /api/links/availability?code=...
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	if _, ok := identity(w, r); !ok {
		return
	}

	a, err := h.service.Availability(ctx, r.URL.Query().Get("code"))
	if err != nil {
		h.handleError(ctx, logger, w, err, "")
		return
	}

	resp := AvailabilityResponse{Code: a.Code, Available: a.Available, Reason: a.Reason}
	if !a.Available && a.Reason == "" {
		resp.Suggestions = h.suggester.Suggest(ctx, a.Code, suggestionCount)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// UpdateLink handles PATCH /api/links/{id}.
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	id, ok := identity(w, r)
	if !ok {
		return
	}
	linkID, ok := pathID(w, r)
	if !ok {
		return
	}

	req, err := httpx.DecodeJSON[HTTPUpdateLinkRequest](w, r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	link, err := h.service.Update(ctx, id.UserID, linkID, UpdateLinkRequest{
		OriginalURL: req.OriginalURL,
		ShortCode:   req.ShortCode,
	})
	if err != nil {
		var wanted string
		if req.ShortCode != nil {
			wanted = *req.ShortCode
		}
		h.handleError(ctx, logger, w, err, wanted)
		return
	}

	logger.InfoContext(ctx, "link updated successfully",
		"link_id", link.ID.String(),
		"short_code", link.ShortCode,
	)
	httpx.WriteJSON(w, http.StatusOK, h.toResponse(link, false))
}

// DeleteLink handles DELETE /api/links/{id}.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	id, ok := identity(w, r)
	if !ok {
		return
	}
	linkID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, id.UserID, linkID); err != nil {
		h.handleError(ctx, logger, w, err, "")
		return
	}
	httpx.NoContent(w)
}

// ResolveLink handles GET /{code} and redirects to the destination.
func (h *Handler) ResolveLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	code := r.PathValue("code")

	target, err := h.resolver.Resolve(ctx, code)
	if err != nil {
		h.handleResolveError(ctx, logger, w, err, code)
		return
	}

	logger.DebugContext(ctx, "code resolved",
		"short_code", code,
		"user_agent", r.UserAgent(),
		"referer", r.Referer(),
	)
	http.Redirect(w, r, target, http.StatusFound)
}

// QRCode handles GET /{code}/qr and renders a PNG pointing at the short URL.
func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	code := r.PathValue("code")

	size, level, err := parseQRParams(r)
	if err != nil {
		h.handleError(ctx, logger, w, err, "")
		return
	}

	if _, err := h.resolver.Resolve(ctx, code); err != nil {
		h.handleResolveError(ctx, logger, w, err, code)
		return
	}

	png, err := qrcode.Encode(h.baseURL+"/"+strings.ToLower(code), level, size)
	if err != nil {
		logger.ErrorContext(ctx, "qr encoding failed", "short_code", code, "error", err.Error())
		httpx.WriteKind(w, errx.Internal, nil)
		return
	}

	httpx.WriteImage(w, "image/png", png, qrMaxAge)
}

// handleError maps a service error onto the JSON error envelope. wanted is
// the short code the caller asked for; on Conflict it seeds suggestions.
func (h *Handler) handleError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, wanted string) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind.String(),
		"operation", errx.OpOf(err),
	}

	switch kind {
	case errx.Invalid:
		logger.WarnContext(ctx, "invalid link request", logAttrs...)
		var ve *ValidationError
		if errors.As(err, &ve) {
			httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorKindToCode(kind), ve.Error(),
				map[string]string{"field": ve.Field, "reason": string(ve.Reason)})
			return
		}
		httpx.WriteKind(w, kind, nil)

	case errx.Conflict:
		logger.WarnContext(ctx, "short code conflict", logAttrs...)
		var details any
		if wanted != "" {
			if s := h.suggester.Suggest(ctx, wanted, suggestionCount); len(s) > 0 {
				details = map[string]any{"suggestions": s}
			}
		}
		httpx.WriteKind(w, kind, details)

	case errx.NotFound, errx.Forbidden, errx.Unauthorized:
		logger.WarnContext(ctx, "link request rejected", logAttrs...)
		httpx.WriteKind(w, kind, nil)

	case errx.Unavailable:
		logger.ErrorContext(ctx, "service unavailable", logAttrs...)
		httpx.WriteKind(w, kind, nil)

	default:
		logger.ErrorContext(ctx, "unexpected error", logAttrs...)
		httpx.WriteKind(w, errx.Internal, nil)
	}
}

// handleResolveError never exposes why a code failed to resolve: not found,
// malformed and corrupt destinations all answer 404 "link not found".
func (h *Handler) handleResolveError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, code string) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind.String(),
		"operation", errx.OpOf(err),
		"short_code", code,
	}

	switch kind {
	case errx.NotFound:
		logger.DebugContext(ctx, "code not found", logAttrs...)
		httpx.WriteKind(w, errx.NotFound, nil)

	case errx.Invalid:
		logger.WarnContext(ctx, "code resolved to an invalid destination", logAttrs...)
		httpx.WriteKind(w, errx.NotFound, nil)

	case errx.Unavailable:
		logger.ErrorContext(ctx, "service unavailable", logAttrs...)
		httpx.WriteKind(w, errx.Unavailable, nil)

	default:
		logger.ErrorContext(ctx, "unexpected error resolving link", logAttrs...)
		httpx.WriteKind(w, errx.Internal, nil)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := idgen.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorKindToCode(errx.Invalid), "id: is not a valid link id",
			map[string]string{"field": "id", "reason": string(ReasonMalformed)})
		return uuid.Nil, false
	}
	return id, true
}

// parseListParams reads search, page and page_size. Range checks happen in
// the service; here only non-integers are rejected.
func parseListParams(r *http.Request) (ListParams, error) {
	const op = "shortener.handler.parseListParams"

	q := r.URL.Query()
	p := ListParams{Search: q.Get("search"), Page: 1, PageSize: DefaultPageSize}

	for _, f := range []struct {
		name string
		dst  *int
	}{
		{"page", &p.Page},
		{"page_size", &p.PageSize},
	} {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ListParams{}, errx.E(op, errx.Invalid, &ValidationError{Field: f.name, Reason: ReasonMalformed})
		}
		*f.dst = n
	}
	return p, nil
}

var qrLevels = map[string]qrcode.RecoveryLevel{
	"low":     qrcode.Low,
	"medium":  qrcode.Medium,
	"high":    qrcode.High,
	"highest": qrcode.Highest,
}

func parseQRParams(r *http.Request) (int, qrcode.RecoveryLevel, error) {
	const op = "shortener.handler.parseQRParams"

	q := r.URL.Query()
	size := DefaultQRSize
	if raw := q.Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errx.E(op, errx.Invalid, &ValidationError{Field: "size", Reason: ReasonMalformed})
		}
		if n < MinQRSize || n > MaxQRSize {
			return 0, 0, errx.E(op, errx.Invalid, &ValidationError{Field: "size", Reason: ReasonOutOfRange})
		}
		size = n
	}

	level := qrcode.Medium
	if raw := q.Get("level"); raw != "" {
		l, ok := qrLevels[strings.ToLower(raw)]
		if !ok {
			return 0, 0, errx.E(op, errx.Invalid, fmt.Errorf("level %q: %w", raw,
				&ValidationError{Field: "level", Reason: ReasonMalformed}))
		}
		level = l
	}
	return size, level, nil
}
