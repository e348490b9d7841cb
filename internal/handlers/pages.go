package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/leadwire/leadwire/internal/graphapi"
	"github.com/leadwire/leadwire/internal/pages"
)

// PageStore is the page configuration storage used by PagesHandler.
type PageStore interface {
	Upsert(ctx context.Context, cfg pages.Config) (pages.Config, error)
	ListByTenant(ctx context.Context, tenantID string) ([]pages.Config, error)
	SetInstagramAccountID(ctx context.Context, tenantID, pageID, accountID string) (pages.Config, error)
}

// GraphClient performs the outbound platform calls.
type GraphClient interface {
	SubscribePage(ctx context.Context, pageID, accessToken string) error
	LinkedAccount(ctx context.Context, pageID, accessToken string) (graphapi.LinkedAccount, error)
}

// PagesHandler lets operators configure their pages and run the platform
// subscription flows.
type PagesHandler struct {
	store  PageStore
	graph  GraphClient
	logger *slog.Logger
}

// upsertPageRequest carries no Instagram account; that is only set through
// the link flow, from what the platform reports for the page.
type upsertPageRequest struct {
	AccessToken string `json:"accessToken" validate:"required"`
	AppSecret   string `json:"appSecret"`
	VerifyToken string `json:"verifyToken" validate:"required,min=8"`
}

type listPagesResponse struct {
	Items []pages.Config `json:"items"`
}

type subscribeResponse struct {
	PageID string   `json:"pageId"`
	Fields []string `json:"fields"`
}

func NewPagesHandler(log *slog.Logger, store PageStore, graph GraphClient) *PagesHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PagesHandler{
		store:  store,
		graph:  graph,
		logger: log.With(slog.String("handler", "pages")),
	}
}

func (h *PagesHandler) Register(e *echo.Echo) {
	g := e.Group("/pages")
	g.GET("", h.List)
	g.PUT("/:page_id", h.Upsert)
	g.POST("/:page_id/subscribe", h.Subscribe)
	g.POST("/:page_id/link", h.Link)
}

// Upsert godoc
// @Summary Configure a page
// @Tags pages
// @Param payload body upsertPageRequest true "Page credentials"
// @Success 200 {object} pages.Config
// @Failure 409 {object} ErrorResponse
// @Router /pages/{page_id} [put]
func (h *PagesHandler) Upsert(c echo.Context) error {
	claims, err := requireStaff(c)
	if err != nil {
		return err
	}
	pageID := strings.TrimSpace(c.Param("page_id"))
	if pageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "page id is required")
	}
	var req upsertPageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	cfg, err := h.store.Upsert(c.Request().Context(), pages.Config{
		PageID:      pageID,
		TenantID:    claims.TenantID,
		AccessToken: strings.TrimSpace(req.AccessToken),
		AppSecret:   strings.TrimSpace(req.AppSecret),
		VerifyToken: req.VerifyToken,
	})
	if err != nil {
		if errors.Is(err, pages.ErrOwnedByOtherTenant) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		h.logger.Error("upsert page config failed", slog.String("page_id", pageID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, cfg.Redacted())
}

// List godoc
// @Summary List configured pages
// @Description Secrets are redacted
// @Tags pages
// @Success 200 {object} listPagesResponse
// @Router /pages [get]
func (h *PagesHandler) List(c echo.Context) error {
	claims, err := requireStaff(c)
	if err != nil {
		return err
	}
	configs, err := h.store.ListByTenant(c.Request().Context(), claims.TenantID)
	if err != nil {
		h.logger.Error("list page configs failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	items := make([]pages.Config, 0, len(configs))
	for _, cfg := range configs {
		items = append(items, cfg.Redacted())
	}
	return c.JSON(http.StatusOK, listPagesResponse{Items: items})
}

// Subscribe godoc
// @Summary Subscribe the page to messaging webhooks
// @Tags pages
// @Success 200 {object} subscribeResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /pages/{page_id}/subscribe [post]
func (h *PagesHandler) Subscribe(c echo.Context) error {
	cfg, err := h.ownedPage(c)
	if err != nil {
		return err
	}
	if err := h.graph.SubscribePage(c.Request().Context(), cfg.PageID, cfg.AccessToken); err != nil {
		return h.upstreamFailure(c, "subscribe page", cfg.PageID, err)
	}
	h.logger.Info("page subscribed", slog.String("tenant_id", cfg.TenantID), slog.String("page_id", cfg.PageID))
	return c.JSON(http.StatusOK, subscribeResponse{PageID: cfg.PageID, Fields: graphapi.SubscribedFields})
}

// Link godoc
// @Summary Store the Instagram account linked to the page
// @Tags pages
// @Success 200 {object} pages.Config
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /pages/{page_id}/link [post]
func (h *PagesHandler) Link(c echo.Context) error {
	cfg, err := h.ownedPage(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	linked, err := h.graph.LinkedAccount(ctx, cfg.PageID, cfg.AccessToken)
	if err != nil {
		return h.upstreamFailure(c, "fetch linked account", cfg.PageID, err)
	}
	if linked.InstagramAccountID == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no instagram account linked to page")
	}
	updated, err := h.store.SetInstagramAccountID(ctx, cfg.TenantID, cfg.PageID, linked.InstagramAccountID)
	if errors.Is(err, pages.ErrOwnedByOtherTenant) {
		h.logger.Warn("instagram account already linked elsewhere",
			slog.String("page_id", cfg.PageID),
			slog.String("instagram_account_id", linked.InstagramAccountID),
		)
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		h.logger.Error("store linked account failed", slog.String("page_id", cfg.PageID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, updated.Redacted())
}

func (h *PagesHandler) ownedPage(c echo.Context) (pages.Config, error) {
	claims, err := requireStaff(c)
	if err != nil {
		return pages.Config{}, err
	}
	pageID := strings.TrimSpace(c.Param("page_id"))
	configs, err := h.store.ListByTenant(c.Request().Context(), claims.TenantID)
	if err != nil {
		h.logger.Error("list page configs failed", slog.Any("error", err))
		return pages.Config{}, echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	for _, cfg := range configs {
		if cfg.PageID == pageID {
			return cfg, nil
		}
	}
	return pages.Config{}, echo.NewHTTPError(http.StatusNotFound, pages.ErrNotFound.Error())
}

// upstreamFailure answers 502 with the platform error attached. Nothing is
// retried.
func (h *PagesHandler) upstreamFailure(c echo.Context, op, pageID string, err error) error {
	h.logger.Warn(op+" failed", slog.String("page_id", pageID), slog.Any("error", err))
	var gerr *graphapi.Error
	if errors.As(err, &gerr) {
		return c.JSON(http.StatusBadGateway, ErrorResponse{Message: op + " failed", Upstream: gerr})
	}
	return c.JSON(http.StatusBadGateway, ErrorResponse{Message: op + " failed: " + err.Error()})
}
