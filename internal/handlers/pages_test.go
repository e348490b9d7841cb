package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwire/leadwire/internal/graphapi"
	"github.com/leadwire/leadwire/internal/pages"
)

type fakePageStore struct {
	configs map[string]pages.Config
}

// instagramTaken mimics the unique index on linked Instagram accounts.
func (f *fakePageStore) instagramTaken(pageID, accountID string) bool {
	if accountID == "" {
		return false
	}
	for id, cfg := range f.configs {
		if id != pageID && cfg.InstagramAccountID == accountID {
			return true
		}
	}
	return false
}

func (f *fakePageStore) Upsert(_ context.Context, cfg pages.Config) (pages.Config, error) {
	existing, ok := f.configs[cfg.PageID]
	if ok && existing.TenantID != cfg.TenantID {
		return pages.Config{}, pages.ErrOwnedByOtherTenant
	}
	if cfg.InstagramAccountID == "" {
		cfg.InstagramAccountID = existing.InstagramAccountID
	}
	if f.instagramTaken(cfg.PageID, cfg.InstagramAccountID) {
		return pages.Config{}, pages.ErrOwnedByOtherTenant
	}
	f.configs[cfg.PageID] = cfg
	return cfg, nil
}

func (f *fakePageStore) claiming(accountID string) int {
	n := 0
	for _, cfg := range f.configs {
		if cfg.InstagramAccountID == accountID {
			n++
		}
	}
	return n
}

func (f *fakePageStore) ListByTenant(_ context.Context, tenantID string) ([]pages.Config, error) {
	var out []pages.Config
	for _, cfg := range f.configs {
		if cfg.TenantID == tenantID {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (f *fakePageStore) SetInstagramAccountID(_ context.Context, tenantID, pageID, accountID string) (pages.Config, error) {
	cfg, ok := f.configs[pageID]
	if !ok || cfg.TenantID != tenantID {
		return pages.Config{}, pages.ErrNotFound
	}
	if f.instagramTaken(pageID, accountID) {
		return pages.Config{}, pages.ErrOwnedByOtherTenant
	}
	cfg.InstagramAccountID = accountID
	f.configs[pageID] = cfg
	return cfg, nil
}

type fakeGraph struct {
	subscribeErr error
	linked       graphapi.LinkedAccount
	linkErr      error
	gotToken     string
}

func (f *fakeGraph) SubscribePage(_ context.Context, _ string, accessToken string) error {
	f.gotToken = accessToken
	return f.subscribeErr
}

func (f *fakeGraph) LinkedAccount(_ context.Context, _ string, accessToken string) (graphapi.LinkedAccount, error) {
	f.gotToken = accessToken
	return f.linked, f.linkErr
}

func newPageStore(configs ...pages.Config) *fakePageStore {
	s := &fakePageStore{configs: map[string]pages.Config{}}
	for _, cfg := range configs {
		s.configs[cfg.PageID] = cfg
	}
	return s
}

func TestPagesHandler_UpsertAndListRedacted(t *testing.T) {
	store := newPageStore()
	e := newTestEcho(t, NewPagesHandler(nil, store, &fakeGraph{}))

	body := `{"accessToken":"EAAB-secret","appSecret":"app-secret","verifyToken":"verify-me-please"}`
	rec := doRequest(t, e, staff, http.MethodPut, "/pages/P1", strings.NewReader(body))
	mustStatus(t, rec, http.StatusOK)
	assert.NotContains(t, rec.Body.String(), "EAAB-secret")
	assert.Equal(t, "EAAB-secret", store.configs["P1"].AccessToken)
	assert.Equal(t, "t1", store.configs["P1"].TenantID)

	rec = doRequest(t, e, staff, http.MethodGet, "/pages", nil)
	mustStatus(t, rec, http.StatusOK)
	var resp listPagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "********", resp.Items[0].AccessToken)
	assert.Equal(t, "********", resp.Items[0].VerifyToken)
}

func TestPagesHandler_UpsertConflictsAcrossTenants(t *testing.T) {
	store := newPageStore(pages.Config{PageID: "P1", TenantID: "t2"})
	e := newTestEcho(t, NewPagesHandler(nil, store, &fakeGraph{}))

	body := `{"accessToken":"tok","verifyToken":"verify-me-please"}`
	rec := doRequest(t, e, staff, http.MethodPut, "/pages/P1", strings.NewReader(body))
	mustStatus(t, rec, http.StatusConflict)
}

func TestPagesHandler_UpsertValidation(t *testing.T) {
	e := newTestEcho(t, NewPagesHandler(nil, newPageStore(), &fakeGraph{}))
	rec := doRequest(t, e, staff, http.MethodPut, "/pages/P1", strings.NewReader(`{"verifyToken":"short"}`))
	mustStatus(t, rec, http.StatusBadRequest)
}

func TestPagesHandler_SubscribeUsesPageToken(t *testing.T) {
	graph := &fakeGraph{}
	store := newPageStore(pages.Config{PageID: "P1", TenantID: "t1", AccessToken: "page-token"})
	e := newTestEcho(t, NewPagesHandler(nil, store, graph))

	rec := doRequest(t, e, staff, http.MethodPost, "/pages/P1/subscribe", nil)
	mustStatus(t, rec, http.StatusOK)
	assert.Equal(t, "page-token", graph.gotToken)
	assert.Contains(t, rec.Body.String(), "messaging_postbacks")
}

func TestPagesHandler_UpstreamErrorIs502WithDetails(t *testing.T) {
	graph := &fakeGraph{subscribeErr: &graphapi.Error{StatusCode: 400, Code: 190, Type: "OAuthException", Message: "Invalid OAuth access token."}}
	store := newPageStore(pages.Config{PageID: "P1", TenantID: "t1", AccessToken: "bad"})
	e := newTestEcho(t, NewPagesHandler(nil, store, graph))

	rec := doRequest(t, e, staff, http.MethodPost, "/pages/P1/subscribe", nil)
	mustStatus(t, rec, http.StatusBadGateway)
	var resp struct {
		Message  string         `json:"message"`
		Upstream graphapi.Error `json:"upstream"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 190, resp.Upstream.Code)
	assert.Equal(t, "OAuthException", resp.Upstream.Type)
}

func TestPagesHandler_LinkStoresAccount(t *testing.T) {
	graph := &fakeGraph{linked: graphapi.LinkedAccount{PageID: "P1", InstagramAccountID: "IG9"}}
	store := newPageStore(pages.Config{PageID: "P1", TenantID: "t1", AccessToken: "tok"})
	e := newTestEcho(t, NewPagesHandler(nil, store, graph))

	rec := doRequest(t, e, staff, http.MethodPost, "/pages/P1/link", nil)
	mustStatus(t, rec, http.StatusOK)
	assert.Equal(t, "IG9", store.configs["P1"].InstagramAccountID)
}

func TestPagesHandler_OtherTenantPageNotFound(t *testing.T) {
	store := newPageStore(pages.Config{PageID: "P1", TenantID: "t2", AccessToken: "tok"})
	e := newTestEcho(t, NewPagesHandler(nil, store, &fakeGraph{}))

	rec := doRequest(t, e, staff, http.MethodPost, "/pages/P1/subscribe", nil)
	mustStatus(t, rec, http.StatusNotFound)
	rec = doRequest(t, e, client, http.MethodGet, "/pages", nil)
	mustStatus(t, rec, http.StatusForbidden)
}

func TestPagesHandler_UpsertCannotClaimInstagramAccount(t *testing.T) {
	store := newPageStore(pages.Config{PageID: "P2", TenantID: "t2", AccessToken: "tok", InstagramAccountID: "IG-T2"})
	e := newTestEcho(t, NewPagesHandler(nil, store, &fakeGraph{}))

	body := `{"accessToken":"tok","verifyToken":"verify-me-please","instagramAccountId":"IG-T2"}`
	rec := doRequest(t, e, staff, http.MethodPut, "/pages/P1", strings.NewReader(body))
	mustStatus(t, rec, http.StatusOK)
	assert.Empty(t, store.configs["P1"].InstagramAccountID)
	assert.Equal(t, 1, store.claiming("IG-T2"))
	assert.Equal(t, "t2", store.configs["P2"].TenantID)
}

func TestPagesHandler_LinkConflictsWithOtherTenantAccount(t *testing.T) {
	graph := &fakeGraph{linked: graphapi.LinkedAccount{PageID: "P1", InstagramAccountID: "IG-T2"}}
	store := newPageStore(
		pages.Config{PageID: "P1", TenantID: "t1", AccessToken: "tok"},
		pages.Config{PageID: "P2", TenantID: "t2", AccessToken: "tok2", InstagramAccountID: "IG-T2"},
	)
	e := newTestEcho(t, NewPagesHandler(nil, store, graph))

	rec := doRequest(t, e, staff, http.MethodPost, "/pages/P1/link", nil)
	mustStatus(t, rec, http.StatusConflict)
	assert.Empty(t, store.configs["P1"].InstagramAccountID)
	assert.Equal(t, 1, store.claiming("IG-T2"))
}
