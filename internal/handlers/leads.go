package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/leadwire/leadwire/internal/auth"
	"github.com/leadwire/leadwire/internal/conversation"
	"github.com/leadwire/leadwire/internal/leads"
)

// LeadService is the lead CRUD surface used by LeadsHandler.
type LeadService interface {
	Get(ctx context.Context, tenantID, id string) (leads.Lead, error)
	List(ctx context.Context, tenantID string, limit int) ([]leads.Lead, error)
	Create(ctx context.Context, tenantID string, in leads.CreateInput) (leads.Lead, error)
	Update(ctx context.Context, tenantID, id string, in leads.UpdateInput) (leads.Lead, error)
	Move(ctx context.Context, tenantID, id string, stage leads.Stage) (leads.Lead, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// MessageLister reads a lead's conversation.
type MessageLister interface {
	ListByLead(ctx context.Context, tenantID, leadID string, limit int) ([]conversation.Message, error)
}

// LeadsHandler exposes lead CRUD to operators and the conversation history
// to operators and the lead's own customer.
type LeadsHandler struct {
	service  LeadService
	messages MessageLister
	logger   *slog.Logger
}

type moveLeadRequest struct {
	Stage leads.Stage `json:"stage" validate:"required,oneof=new contacted qualified proposal won lost"`
}

type listLeadsResponse struct {
	Items []leads.Lead `json:"items"`
}

type listMessagesResponse struct {
	Items []conversation.Message `json:"items"`
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func NewLeadsHandler(log *slog.Logger, service LeadService, messages MessageLister) *LeadsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LeadsHandler{
		service:  service,
		messages: messages,
		logger:   log.With(slog.String("handler", "leads")),
	}
}

func (h *LeadsHandler) Register(e *echo.Echo) {
	g := e.Group("/leads")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.POST("/:id/move", h.Move)
	g.DELETE("/:id", h.Delete)
	g.GET("/:id/messages", h.ListMessages)
}

// Create godoc
// @Summary Create lead
// @Tags leads
// @Param payload body leads.CreateInput true "Lead"
// @Success 201 {object} leads.Lead
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /leads [post]
func (h *LeadsHandler) Create(c echo.Context) error {
	claims, err := requireStaff(c)
	if err != nil {
		return err
	}
	var req leads.CreateInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	lead, err := h.service.Create(c.Request().Context(), claims.TenantID, req)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusCreated, lead)
}

// List godoc
// @Summary List leads
// @Tags leads
// @Param limit query int false "Max items"
// @Success 200 {object} listLeadsResponse
// @Router /leads [get]
func (h *LeadsHandler) List(c echo.Context) error {
	claims, err := requireStaff(c)
	if err != nil {
		return err
	}
	items, err := h.service.List(c.Request().Context(), claims.TenantID, parseLimit(c.QueryParam("limit")))
	if err != nil {
		return h.fail(err)
	}
	if items == nil {
		items = []leads.Lead{}
	}
	return c.JSON(http.StatusOK, listLeadsResponse{Items: items})
}

// Get godoc
// @Summary Get lead
// @Tags leads
// @Success 200 {object} leads.Lead
// @Failure 404 {object} ErrorResponse
// @Router /leads/{id} [get]
func (h *LeadsHandler) Get(c echo.Context) error {
	claims, err := requireStaff(c)
	if err != nil {
		return err
	}
	lead, err := h.service.Get(c.Request().Context(), claims.TenantID, c.Param("id"))
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusOK, lead)
}

// Update godoc
// @Summary Update lead
// @Tags leads
// @Param payload body leads.UpdateInput true "Changes"
// @Success 200 {object} leads.Lead
// @Failure 404 {object} ErrorResponse
// @Router /leads/{id} [patch]
func (h *LeadsHandler) Update(c echo.Context) error {
	claims, err := requireStaff(c)
	if err != nil {
		return err
	}
	var req leads.UpdateInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	lead, err := h.service.Update(c.Request().Context(), claims.TenantID, c.Param("id"), req)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusOK, lead)
}

// Move godoc
// @Summary Move lead to a pipeline stage
// @Tags leads
// @Param payload body moveLeadRequest true "Target stage"
// @Success 200 {object} leads.Lead
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /leads/{id}/move [post]
func (h *LeadsHandler) Move(c echo.Context) error {
	claims, err := requireStaff(c)
	if err != nil {
		return err
	}
	var req moveLeadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	lead, err := h.service.Move(c.Request().Context(), claims.TenantID, c.Param("id"), req.Stage)
	if err != nil {
		return h.fail(err)
	}
	return c.JSON(http.StatusOK, lead)
}

// Delete godoc
// @Summary Delete lead
// @Tags leads
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /leads/{id} [delete]
func (h *LeadsHandler) Delete(c echo.Context) error {
	claims, err := requireStaff(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), claims.TenantID, c.Param("id")); err != nil {
		return h.fail(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListMessages godoc
// @Summary List a lead's conversation
// @Description Customers may read only conversations of their own leads
// @Tags leads
// @Success 200 {object} listMessagesResponse
// @Failure 404 {object} ErrorResponse
// @Router /leads/{id}/messages [get]
func (h *LeadsHandler) ListMessages(c echo.Context) error {
	claims, err := auth.ClaimsFromContext(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	lead, err := h.service.Get(ctx, claims.TenantID, c.Param("id"))
	if err != nil {
		return h.fail(err)
	}
	if claims.IsClient() && (claims.CustomerID == "" || lead.ScopeCustomerID() != claims.CustomerID) {
		// same answer as a missing lead so ids of other customers do not leak
		return echo.NewHTTPError(http.StatusNotFound, leads.ErrNotFound.Error())
	}
	items, err := h.messages.ListByLead(ctx, claims.TenantID, lead.ID, parseLimit(c.QueryParam("limit")))
	if err != nil {
		return h.fail(err)
	}
	if items == nil {
		items = []conversation.Message{}
	}
	return c.JSON(http.StatusOK, listMessagesResponse{Items: items})
}

func (h *LeadsHandler) fail(err error) error {
	if errors.Is(err, leads.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if errors.Is(err, leads.ErrInvalidStage) || errors.Is(err, leads.ErrInvalidReference) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	h.logger.Error("lead operation failed", slog.Any("error", err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func parseLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
