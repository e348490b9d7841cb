package pages

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no page configuration matches.
	ErrNotFound = errors.New("page config not found")
	// ErrOwnedByOtherTenant is returned when a page id or a linked Instagram
	// account is already configured by another tenant.
	ErrOwnedByOtherTenant = errors.New("already configured by another tenant")
)

// Config is a tenant's configuration for one platform page.
type Config struct {
	PageID             string    `json:"pageId"`
	TenantID           string    `json:"tenantId"`
	AccessToken        string    `json:"accessToken,omitempty"`
	AppSecret          string    `json:"appSecret,omitempty"`
	VerifyToken        string    `json:"verifyToken,omitempty"`
	InstagramAccountID string    `json:"instagramAccountId,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Redacted returns a copy safe to return to operators.
func (c Config) Redacted() Config {
	c.AccessToken = redact(c.AccessToken)
	c.AppSecret = redact(c.AppSecret)
	c.VerifyToken = redact(c.VerifyToken)
	return c
}

func redact(v string) string {
	if v == "" {
		return ""
	}
	return "********"
}

// Store persists page configurations.
type Store interface {
	Upsert(ctx context.Context, cfg Config) (Config, error)
	GetByPageID(ctx context.Context, pageID string) (Config, error)
	GetByInstagramAccountID(ctx context.Context, accountID string) (Config, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Config, error)
	ListByVerifyToken(ctx context.Context, token string) ([]Config, error)
	SetInstagramAccountID(ctx context.Context, tenantID, pageID, accountID string) (Config, error)
}
