package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/leadwire/leadwire/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	maxInboundSize = 4096
	authFrameType  = "auth"
)

// TransportConfig holds websocket session timings.
type TransportConfig struct {
	SendBuffer   int
	AuthTimeout  time.Duration
	PingInterval time.Duration
}

// Handler serves the realtime websocket endpoint.
type Handler struct {
	logger     *slog.Logger
	authorizer *Authorizer
	rooms      Rooms
	upgrader   websocket.Upgrader
	cfg        TransportConfig
}

type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

func NewHandler(log *slog.Logger, authorizer *Authorizer, rooms Rooms, cfg TransportConfig) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	return &Handler{
		logger:     log.With(slog.String("handler", "realtime")),
		authorizer: authorizer,
		rooms:      rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		cfg: cfg,
	}
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/realtime", h.Connect)
}

// Connect godoc
// @Summary Realtime event stream
// @Description Websocket carrying lead and message events for the caller's scope
// @Tags realtime
// @Param token query string false "Bearer token"
// @Success 101
// @Failure 401
// @Router /realtime [get]
func (h *Handler) Connect(c echo.Context) error {
	raw := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.TrimSpace(raw) == "" {
		raw = c.QueryParam("token")
	}

	var (
		claims auth.Claims
		scope  Scope
	)
	if strings.TrimSpace(raw) != "" {
		var err error
		claims, scope, err = h.authorizer.Authorize(raw)
		if err != nil {
			h.logger.Warn("realtime handshake rejected", slog.Any("error", err))
			return c.NoContent(http.StatusUnauthorized)
		}
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return nil
	}
	defer func() { _ = conn.Close() }()
	conn.SetReadLimit(maxInboundSize)

	if scope == "" {
		claims, scope, err = h.awaitAuth(conn)
		if err != nil {
			h.logger.Warn("realtime auth payload rejected", slog.Any("error", err))
			return nil
		}
	}

	session := NewSession(claims, h.cfg.SendBuffer)
	h.rooms.Join(session, scope)
	log := h.logger.With(
		slog.String("session_id", session.ID),
		slog.String("scope", scope.String()),
	)
	log.Info("realtime session joined")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(conn, session)
	}()
	h.readPump(conn)
	h.rooms.Leave(session)
	<-done
	log.Info("realtime session left")
	return nil
}

// awaitAuth reads the first frame, which must be an auth payload.
func (h *Handler) awaitAuth(conn *websocket.Conn) (auth.Claims, Scope, error) {
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.AuthTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return auth.Claims{}, "", err
	}
	var frame authFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type != authFrameType {
		return auth.Claims{}, "", errors.Join(ErrMissingToken, err)
	}
	return h.authorizer.Authorize(frame.Token)
}

// readPump discards client frames and keeps the read deadline fresh until
// the connection fails.
func (h *Handler) readPump(conn *websocket.Conn) {
	pongWait := 2 * h.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump owns all writes to conn. It exits when the session leaves or a
// write fails; a failed write also unblocks readPump by closing conn.
func (h *Handler) writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-s.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
