package leads

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leadwire/leadwire/internal/db"
)

const selectLead = `
SELECT l.id, l.tenant_id, l.name, l.stage,
       COALESCE(l.pipeline_id, ''), COALESCE(l.customer_id, ''),
       l.channel, l.external_contact_id, l.created_at, l.updated_at,
       COALESCE(p.name, ''), COALESCE(p.customer_id, '')
FROM leads l
LEFT JOIN pipelines p ON p.id = l.pipeline_id AND p.tenant_id = l.tenant_id
`

// PostgresStore is the Store backed by the leads and pipelines tables.
type PostgresStore struct {
	q db.Querier
}

// NewPostgresStore returns a lead store using q.
func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

func (s *PostgresStore) Create(ctx context.Context, lead Lead) (Lead, error) {
	_, err := s.q.Exec(ctx, `
INSERT INTO leads (id, tenant_id, name, stage, pipeline_id, customer_id, channel, external_contact_id)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)`,
		lead.ID, lead.TenantID, lead.Name, string(lead.Stage), lead.PipelineID, lead.CustomerID, lead.Channel, lead.ExternalContactID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Lead{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
		}
		return Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	return s.Get(ctx, lead.TenantID, lead.ID)
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, id string) (Lead, error) {
	row := s.q.QueryRow(ctx, selectLead+`WHERE l.tenant_id = $1 AND l.id = $2`, tenantID, id)
	lead, err := scanLead(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return lead, nil
}

func (s *PostgresStore) List(ctx context.Context, tenantID string, limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.Query(ctx, selectLead+`WHERE l.tenant_id = $1 ORDER BY l.updated_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lead)
	}
	return items, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, lead Lead) (Lead, error) {
	tag, err := s.q.Exec(ctx, `
UPDATE leads
SET name = $3, stage = $4, pipeline_id = NULLIF($5, ''), customer_id = NULLIF($6, ''), updated_at = now()
WHERE tenant_id = $1 AND id = $2`,
		lead.TenantID, lead.ID, lead.Name, string(lead.Stage), lead.PipelineID, lead.CustomerID)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Lead{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
		}
		return Lead{}, fmt.Errorf("update lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Lead{}, ErrNotFound
	}
	return s.Get(ctx, lead.TenantID, lead.ID)
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM leads WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindOrCreateByContact inserts lead unless a row with the same
// (tenant, channel, external contact) exists. The bool reports creation.
func (s *PostgresStore) FindOrCreateByContact(ctx context.Context, lead Lead) (Lead, bool, error) {
	var id string
	err := s.q.QueryRow(ctx, `
INSERT INTO leads (id, tenant_id, name, stage, channel, external_contact_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (tenant_id, channel, external_contact_id) WHERE external_contact_id <> '' DO NOTHING
RETURNING id`,
		lead.ID, lead.TenantID, lead.Name, string(lead.Stage), lead.Channel, lead.ExternalContactID).Scan(&id)
	created := true
	if err != nil {
		if !db.IsNoRows(err) {
			return Lead{}, false, fmt.Errorf("upsert lead: %w", err)
		}
		created = false
		err = s.q.QueryRow(ctx, `
SELECT id FROM leads WHERE tenant_id = $1 AND channel = $2 AND external_contact_id = $3`,
			lead.TenantID, lead.Channel, lead.ExternalContactID).Scan(&id)
		if err != nil {
			return Lead{}, false, fmt.Errorf("find lead by contact: %w", err)
		}
	}
	found, err := s.Get(ctx, lead.TenantID, id)
	if err != nil {
		return Lead{}, false, err
	}
	return found, created, nil
}

func scanLead(row pgx.Row) (Lead, error) {
	var (
		lead         Lead
		stage        string
		pipelineName string
		pipelineCust string
	)
	if err := row.Scan(
		&lead.ID, &lead.TenantID, &lead.Name, &stage,
		&lead.PipelineID, &lead.CustomerID,
		&lead.Channel, &lead.ExternalContactID, &lead.CreatedAt, &lead.UpdatedAt,
		&pipelineName, &pipelineCust,
	); err != nil {
		return Lead{}, err
	}
	lead.Stage = Stage(stage)
	if lead.PipelineID != "" {
		lead.Pipeline = &PipelineRef{ID: lead.PipelineID, Name: pipelineName, CustomerID: pipelineCust}
	}
	return lead, nil
}
