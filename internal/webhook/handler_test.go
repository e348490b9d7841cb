package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwire/leadwire/internal/pages"
)

type fakeTokenStore struct {
	configs []pages.Config
	err     error
}

func (f *fakeTokenStore) ListByTenant(_ context.Context, tenantID string) ([]pages.Config, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []pages.Config
	for _, c := range f.configs {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeTokenStore) ListByVerifyToken(_ context.Context, token string) ([]pages.Config, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []pages.Config
	for _, c := range f.configs {
		if c.VerifyToken == token {
			out = append(out, c)
		}
	}
	return out, nil
}

type recordingEnqueuer struct {
	mu         sync.Mutex
	deliveries []Delivery
	reject     bool
}

func (r *recordingEnqueuer) Enqueue(d Delivery) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reject {
		return false
	}
	r.deliveries = append(r.deliveries, d)
	return true
}

func newTestServer(t *testing.T, tokens VerifyTokenStore, enq Enqueuer, fallback string, maxBody int64) *echo.Echo {
	t.Helper()
	e := echo.New()
	NewHandler(slog.New(slog.DiscardHandler), tokens, enq, fallback, maxBody).Register(e)
	return e
}

func verifyRequest(path, mode, token, challenge string) *http.Request {
	q := url.Values{}
	q.Set("hub.mode", mode)
	q.Set("hub.verify_token", token)
	q.Set("hub.challenge", challenge)
	return httptest.NewRequest(http.MethodGet, path+"?"+q.Encode(), nil)
}

func TestVerify_MatchingTokenEchoesChallenge(t *testing.T) {
	store := &fakeTokenStore{configs: []pages.Config{{PageID: "P1", TenantID: "t1", VerifyToken: "X"}}}
	e := newTestServer(t, store, &recordingEnqueuer{}, "", 0)

	for _, path := range []string{"/webhooks/meta", "/webhooks/meta/t1"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, verifyRequest(path, "subscribe", "X", "abc"))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "abc", rec.Body.String(), path)
	}
}

func TestVerify_RejectsOtherTokens(t *testing.T) {
	store := &fakeTokenStore{configs: []pages.Config{{PageID: "P1", TenantID: "t1", VerifyToken: "X"}}}
	e := newTestServer(t, store, &recordingEnqueuer{}, "", 0)

	cases := []struct {
		name string
		req  *http.Request
	}{
		{"wrong token", verifyRequest("/webhooks/meta", "subscribe", "Y", "abc")},
		{"prefix", verifyRequest("/webhooks/meta", "subscribe", "XX", "abc")},
		{"case", verifyRequest("/webhooks/meta", "subscribe", "x", "abc")},
		{"wrong mode", verifyRequest("/webhooks/meta", "unsubscribe", "X", "abc")},
		{"missing challenge", verifyRequest("/webhooks/meta", "subscribe", "X", "")},
		{"other tenant", verifyRequest("/webhooks/meta/t2", "subscribe", "X", "abc")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, tc.req)
			assert.NotEqual(t, http.StatusOK, rec.Code)
			assert.NotEqual(t, "abc", rec.Body.String())
		})
	}
}

func TestVerify_FallbackToken(t *testing.T) {
	e := newTestServer(t, &fakeTokenStore{}, &recordingEnqueuer{}, "global", 0)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, verifyRequest("/webhooks/meta", "subscribe", "global", "c1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c1", rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, verifyRequest("/webhooks/meta/t1", "subscribe", "global", "c1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVerify_StoreErrorIs500(t *testing.T) {
	e := newTestServer(t, &fakeTokenStore{err: assert.AnError}, &recordingEnqueuer{}, "", 0)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, verifyRequest("/webhooks/meta", "subscribe", "X", "abc"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func postEvent(e *echo.Echo, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestReceive_MixedBatchAcknowledged(t *testing.T) {
	enq := &recordingEnqueuer{}
	e := newTestServer(t, &fakeTokenStore{}, enq, "", 0)

	body := `{"object":"page","entry":[
		{"id":"P","messaging":[
			{"sender":{"id":"u"},"recipient":{"id":"P"},"message":{"mid":"m1","text":"hi"}},
			{"garbage":true}
		]},
		"bad entry"
	]}`
	header := http.Header{}
	header.Set(SignatureHeader, "sha256=abc")
	rec := postEvent(e, "/webhooks/meta/t1", body, header)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ackBody, rec.Body.String())
	require.Len(t, enq.deliveries, 1)
	d := enq.deliveries[0]
	require.Len(t, d.Events, 1)
	assert.Equal(t, "m1", d.Events[0].MessageID)
	assert.Equal(t, "t1", d.Meta.TenantHint)
	assert.Equal(t, "sha256=abc", d.Meta.Signature)
	assert.Equal(t, body, string(d.Meta.Body))
	assert.False(t, d.Meta.ReceivedAt.IsZero())
}

func TestReceive_AlwaysAcknowledges(t *testing.T) {
	cases := map[string]string{
		"invalid json":       `{not json`,
		"unsupported object": `{"object":"whatsapp_business_account","entry":[]}`,
		"no events":          `{"object":"page","entry":[{"id":"P","messaging":[{"sender":{"id":"u"},"recipient":{"id":"P"},"delivery":{}}]}]}`,
		"oversize":           `{"object":"page","entry":[` + strings.Repeat(" ", 512) + `]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			enq := &recordingEnqueuer{}
			e := newTestServer(t, &fakeTokenStore{}, enq, "", 256)
			rec := postEvent(e, "/webhooks/meta", body, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, enq.deliveries)
		})
	}
}

func TestReceive_QueueFullStillAcknowledged(t *testing.T) {
	enq := &recordingEnqueuer{reject: true}
	e := newTestServer(t, &fakeTokenStore{}, enq, "", 0)
	body := `{"object":"page","entry":[{"id":"P","messaging":[{"sender":{"id":"u"},"recipient":{"id":"P"},"message":{"mid":"m1","text":"hi"}}]}]}`
	rec := postEvent(e, "/webhooks/meta", body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
