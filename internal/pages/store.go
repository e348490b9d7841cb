package pages

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leadwire/leadwire/internal/db"
)

const selectConfig = `
SELECT page_id, tenant_id, access_token, app_secret, verify_token, instagram_account_id, created_at, updated_at
FROM page_configs
`

// PostgresStore is the Store backed by page_configs.
type PostgresStore struct {
	q db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

// Upsert writes cfg keyed by page id. A page already owned by another tenant
// is not reassigned, and an Instagram account maps to at most one page.
func (s *PostgresStore) Upsert(ctx context.Context, cfg Config) (Config, error) {
	row := s.q.QueryRow(ctx, `
INSERT INTO page_configs (page_id, tenant_id, access_token, app_secret, verify_token, instagram_account_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (page_id) DO UPDATE
SET access_token = EXCLUDED.access_token,
    app_secret = EXCLUDED.app_secret,
    verify_token = EXCLUDED.verify_token,
    instagram_account_id = CASE WHEN EXCLUDED.instagram_account_id <> '' THEN EXCLUDED.instagram_account_id ELSE page_configs.instagram_account_id END,
    updated_at = now()
WHERE page_configs.tenant_id = EXCLUDED.tenant_id
RETURNING page_id, tenant_id, access_token, app_secret, verify_token, instagram_account_id, created_at, updated_at`,
		cfg.PageID, cfg.TenantID, cfg.AccessToken, cfg.AppSecret, cfg.VerifyToken, cfg.InstagramAccountID)
	stored, err := scanConfig(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Config{}, fmt.Errorf("%w: page %s", ErrOwnedByOtherTenant, cfg.PageID)
		}
		if db.IsUniqueViolation(err) {
			return Config{}, fmt.Errorf("%w: instagram account %s", ErrOwnedByOtherTenant, cfg.InstagramAccountID)
		}
		return Config{}, fmt.Errorf("upsert page config: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) GetByPageID(ctx context.Context, pageID string) (Config, error) {
	return s.getOne(ctx, selectConfig+`WHERE page_id = $1`, pageID)
}

func (s *PostgresStore) GetByInstagramAccountID(ctx context.Context, accountID string) (Config, error) {
	return s.getOne(ctx, selectConfig+`WHERE instagram_account_id = $1 AND instagram_account_id <> '' LIMIT 1`, accountID)
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]Config, error) {
	return s.list(ctx, selectConfig+`WHERE tenant_id = $1 ORDER BY page_id`, tenantID)
}

// ListByVerifyToken returns configs whose verify token equals token exactly.
func (s *PostgresStore) ListByVerifyToken(ctx context.Context, token string) ([]Config, error) {
	if token == "" {
		return nil, nil
	}
	return s.list(ctx, selectConfig+`WHERE verify_token = $1`, token)
}

// SetInstagramAccountID links accountID to the tenant's page. An account
// already linked to any other page fails with ErrOwnedByOtherTenant.
func (s *PostgresStore) SetInstagramAccountID(ctx context.Context, tenantID, pageID, accountID string) (Config, error) {
	cfg, err := s.getOne(ctx, `
UPDATE page_configs SET instagram_account_id = $3, updated_at = now()
WHERE tenant_id = $1 AND page_id = $2
RETURNING page_id, tenant_id, access_token, app_secret, verify_token, instagram_account_id, created_at, updated_at`,
		tenantID, pageID, accountID)
	if db.IsUniqueViolation(err) {
		return Config{}, fmt.Errorf("%w: instagram account %s", ErrOwnedByOtherTenant, accountID)
	}
	return cfg, err
}

func (s *PostgresStore) getOne(ctx context.Context, sql string, args ...any) (Config, error) {
	cfg, err := scanConfig(s.q.QueryRow(ctx, sql, args...))
	if err != nil {
		if db.IsNoRows(err) {
			return Config{}, ErrNotFound
		}
		return Config{}, err
	}
	return cfg, nil
}

func (s *PostgresStore) list(ctx context.Context, sql string, args ...any) ([]Config, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Config, 0)
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, cfg)
	}
	return items, rows.Err()
}

func scanConfig(row pgx.Row) (Config, error) {
	var cfg Config
	err := row.Scan(&cfg.PageID, &cfg.TenantID, &cfg.AccessToken, &cfg.AppSecret, &cfg.VerifyToken,
		&cfg.InstagramAccountID, &cfg.CreatedAt, &cfg.UpdatedAt)
	return cfg, err
}
