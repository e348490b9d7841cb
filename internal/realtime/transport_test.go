package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwire/leadwire/internal/auth"
	"github.com/leadwire/leadwire/internal/events"
	"github.com/leadwire/leadwire/internal/leads"
)

func newTransportServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	e := echo.New()
	NewHandler(slog.New(slog.DiscardHandler), NewAuthorizer("", false), hub, TransportConfig{
		SendBuffer:   8,
		AuthTimeout:  time.Second,
		PingInterval: time.Second,
	}).Register(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"
}

func waitForCount(t *testing.T, hub *Hub, scope Scope, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Count(scope) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestTransport_HeaderCredentialJoinsScope(t *testing.T) {
	hub := newTestHub()
	srv := newTransportServer(t, hub)

	token := mustToken(t, auth.Claims{TenantID: "T", Role: "CLIENT", CustomerID: "C"}, "s")
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	defer conn.Close()

	waitForCount(t, hub, ClientScope("T", "C"), 1)
	assert.Zero(t, hub.Count(TenantScope("T")))

	NewBroadcaster(hub).HandleEvent(events.Event{
		Type:     events.LeadMoved,
		TenantID: "T",
		Payload:  leads.Lead{ID: "l1", TenantID: "T", CustomerID: "C", Stage: leads.StageQualified},
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame struct {
		Event string     `json:"event"`
		Data  leads.Lead `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "lead:moved", frame.Event)
	assert.Equal(t, "l1", frame.Data.ID)

	conn.Close()
	waitForCount(t, hub, ClientScope("T", "C"), 0)
}

func TestTransport_AuthPayload(t *testing.T) {
	hub := newTestHub()
	srv := newTransportServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	token := mustToken(t, auth.Claims{TenantID: "T", Role: "ADMIN"}, "s")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": token}))
	waitForCount(t, hub, TenantScope("T"), 1)
}

func TestTransport_InvalidHeaderRejectedBeforeUpgrade(t *testing.T) {
	hub := newTestHub()
	srv := newTransportServer(t, hub)

	header := http.Header{}
	header.Set("Authorization", "Bearer garbage")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTransport_InvalidAuthPayloadClosesWithoutJoining(t *testing.T) {
	hub := newTestHub()
	srv := newTransportServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": "nope"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, hub.Count(TenantScope("T")))
}
