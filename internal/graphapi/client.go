package graphapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// SubscribedFields is the fixed field list a page is subscribed to.
var SubscribedFields = []string{
	"messages",
	"messaging_postbacks",
	"message_deliveries",
	"message_reads",
}

const maxResponseBytes = 1 << 20

// Error is an upstream platform failure. It is returned as is so operator
// flows can surface it.
type Error struct {
	StatusCode int    `json:"status"`
	Code       int    `json:"code"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	TraceID    string `json:"fbtrace_id,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("graph api: status %d code %d (%s): %s", e.StatusCode, e.Code, e.Type, e.Message)
}

// LinkedAccount is the Instagram business account linked to a page.
type LinkedAccount struct {
	PageID             string `json:"pageId"`
	InstagramAccountID string `json:"instagramAccountId"`
}

// Client calls the platform Graph API. It never retries.
type Client struct {
	baseURL string
	version string
	timeout time.Duration
	base    *http.Client
	logger  *slog.Logger
}

// NewClient creates a Graph API client. base may be nil.
func NewClient(log *slog.Logger, baseURL, version string, timeout time.Duration, base *http.Client) *Client {
	if log == nil {
		log = slog.Default()
	}
	if base == nil {
		base = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: strings.Trim(version, "/"),
		timeout: timeout,
		base:    base,
		logger:  log.With(slog.String("service", "graphapi")),
	}
}

// SubscribePage subscribes the app to the page's SubscribedFields.
func (c *Client) SubscribePage(ctx context.Context, pageID, accessToken string) error {
	if strings.TrimSpace(pageID) == "" {
		return fmt.Errorf("page id is required")
	}
	form := url.Values{}
	form.Set("subscribed_fields", strings.Join(SubscribedFields, ","))

	var out struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, accessToken, http.MethodPost, pageID+"/subscribed_apps", form, &out); err != nil {
		return err
	}
	if !out.Success {
		return &Error{StatusCode: http.StatusOK, Type: "SubscribeFailed", Message: "platform did not confirm subscription"}
	}
	c.logger.Info("page subscribed", slog.String("page_id", pageID))
	return nil
}

// LinkedAccount fetches the Instagram business account linked to the page.
// An empty InstagramAccountID means nothing is linked.
func (c *Client) LinkedAccount(ctx context.Context, pageID, accessToken string) (LinkedAccount, error) {
	if strings.TrimSpace(pageID) == "" {
		return LinkedAccount{}, fmt.Errorf("page id is required")
	}
	query := url.Values{}
	query.Set("fields", "instagram_business_account")

	var out struct {
		ID                       string `json:"id"`
		InstagramBusinessAccount *struct {
			ID string `json:"id"`
		} `json:"instagram_business_account"`
	}
	if err := c.do(ctx, accessToken, http.MethodGet, pageID, query, &out); err != nil {
		return LinkedAccount{}, err
	}
	account := LinkedAccount{PageID: out.ID}
	if account.PageID == "" {
		account.PageID = pageID
	}
	if out.InstagramBusinessAccount != nil {
		account.InstagramAccountID = out.InstagramBusinessAccount.ID
	}
	return account, nil
}

func (c *Client) do(ctx context.Context, accessToken, method, path string, params url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/" + c.version + "/" + strings.TrimLeft(path, "/")
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
	} else {
		body = strings.NewReader(params.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient(ctx, accessToken).Do(req)
	if err != nil {
		return fmt.Errorf("graph api request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read graph api response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode graph api response: %w", err)
	}
	return nil
}

// httpClient wraps the base client so every request carries the page token
// as a bearer credential.
func (c *Client) httpClient(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

func decodeError(status int, payload []byte) error {
	var envelope struct {
		Error struct {
			Message   string `json:"message"`
			Type      string `json:"type"`
			Code      int    `json:"code"`
			FBTraceID string `json:"fbtrace_id"`
		} `json:"error"`
	}
	upstream := &Error{StatusCode: status}
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Error.Message != "" {
		upstream.Code = envelope.Error.Code
		upstream.Type = envelope.Error.Type
		upstream.Message = envelope.Error.Message
		upstream.TraceID = envelope.Error.FBTraceID
		return upstream
	}
	upstream.Type = "HTTPError"
	upstream.Message = strings.TrimSpace(string(payload))
	if upstream.Message == "" {
		upstream.Message = http.StatusText(status)
	}
	return upstream
}
