package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/leadwire/leadwire/internal/pages"
)

const (
	defaultMaxBodyBytes int64 = 1 << 20 // 1 MiB
	ackBody                   = "EVENT_RECEIVED"
)

// VerifyTokenStore looks up configured verify tokens.
type VerifyTokenStore interface {
	ListByTenant(ctx context.Context, tenantID string) ([]pages.Config, error)
	ListByVerifyToken(ctx context.Context, token string) ([]pages.Config, error)
}

// Enqueuer accepts deliveries for asynchronous processing.
type Enqueuer interface {
	Enqueue(d Delivery) bool
}

// Handler serves the platform webhook: the GET verification handshake and
// POST event delivery. POST is always acknowledged with 200.
type Handler struct {
	logger        *slog.Logger
	tokens        VerifyTokenStore
	ingest        Enqueuer
	fallbackToken string
	maxBodyBytes  int64
}

// NewHandler creates the webhook handler. fallbackToken is accepted by the
// unscoped verification URL and may be empty.
func NewHandler(log *slog.Logger, tokens VerifyTokenStore, ingest Enqueuer, fallbackToken string, maxBodyBytes int64) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{
		logger:        log.With(slog.String("handler", "meta_webhook")),
		tokens:        tokens,
		ingest:        ingest,
		fallbackToken: fallbackToken,
		maxBodyBytes:  maxBodyBytes,
	}
}

// Register registers the webhook routes.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/webhooks/meta", h.Verify)
	e.POST("/webhooks/meta", h.Receive)
	e.GET("/webhooks/meta/:tenant_id", h.Verify)
	e.POST("/webhooks/meta/:tenant_id", h.Receive)
}

// Verify godoc
// @Summary Webhook verification handshake
// @Description Echoes hub.challenge when hub.verify_token exactly matches a configured token
// @Tags webhook
// @Param hub.mode query string true "Must be subscribe"
// @Param hub.verify_token query string true "Verify token"
// @Param hub.challenge query string true "Challenge to echo"
// @Success 200 {string} string
// @Failure 403
// @Router /webhooks/meta [get]
func (h *Handler) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")
	tenantID := strings.TrimSpace(c.Param("tenant_id"))

	if mode != "subscribe" || token == "" || challenge == "" {
		return c.NoContent(http.StatusForbidden)
	}
	ok, err := h.tokenMatches(c.Request().Context(), tenantID, token)
	if err != nil {
		h.logger.Error("verify token lookup failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
		return c.NoContent(http.StatusInternalServerError)
	}
	if !ok {
		h.logger.Warn("webhook verification rejected", slog.String("tenant_id", tenantID))
		return c.NoContent(http.StatusForbidden)
	}
	return c.String(http.StatusOK, challenge)
}

// Receive godoc
// @Summary Webhook event delivery
// @Description Acknowledges immediately; entries are normalised and processed asynchronously
// @Tags webhook
// @Success 200 {string} string
// @Router /webhooks/meta [post]
func (h *Handler) Receive(c echo.Context) error {
	tenantID := strings.TrimSpace(c.Param("tenant_id"))
	log := h.logger
	if tenantID != "" {
		log = log.With(slog.String("tenant_id", tenantID))
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, h.maxBodyBytes+1))
	if err != nil {
		log.Warn("read webhook body failed", slog.Any("error", err))
		return h.ack(c)
	}
	if int64(len(body)) > h.maxBodyBytes {
		log.Warn("webhook body too large, dropping", slog.Int64("max_bytes", h.maxBodyBytes))
		return h.ack(c)
	}

	batch, err := Normalize(body)
	if err != nil {
		log.Warn("invalid webhook payload", slog.Any("error", err))
		return h.ack(c)
	}
	for _, skip := range batch.Skipped {
		log.Info("skipped webhook item",
			slog.String("channel", batch.Channel.String()),
			slog.Int("entry", skip.Entry),
			slog.Int("item", skip.Item),
			slog.String("reason", string(skip.Reason)),
		)
	}
	if len(batch.Events) == 0 {
		return h.ack(c)
	}

	delivery := Delivery{
		Meta: DeliveryMeta{
			TenantHint: tenantID,
			Signature:  c.Request().Header.Get(SignatureHeader),
			Body:       body,
			ReceivedAt: time.Now().UTC(),
		},
		Events: batch.Events,
	}
	if h.ingest == nil || !h.ingest.Enqueue(delivery) {
		log.Error("webhook delivery not queued", slog.Int("events", len(batch.Events)))
	}
	return h.ack(c)
}

func (h *Handler) ack(c echo.Context) error {
	return c.String(http.StatusOK, ackBody)
}

func (h *Handler) tokenMatches(ctx context.Context, tenantID, token string) (bool, error) {
	if h.tokens == nil {
		return tenantID == "" && equalToken(h.fallbackToken, token), nil
	}
	if tenantID != "" {
		configs, err := h.tokens.ListByTenant(ctx, tenantID)
		if err != nil {
			return false, err
		}
		return anyTokenMatches(configs, token), nil
	}
	if equalToken(h.fallbackToken, token) {
		return true, nil
	}
	configs, err := h.tokens.ListByVerifyToken(ctx, token)
	if err != nil && !errors.Is(err, pages.ErrNotFound) {
		return false, err
	}
	return anyTokenMatches(configs, token), nil
}

func anyTokenMatches(configs []pages.Config, token string) bool {
	for _, cfg := range configs {
		if equalToken(cfg.VerifyToken, token) {
			return true
		}
	}
	return false
}

// equalToken is an exact, constant-time comparison. An empty configured
// token never matches.
func equalToken(configured, supplied string) bool {
	if configured == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(supplied)) == 1
}
