package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leadwire/leadwire/internal/db"
)

const selectMessage = `
SELECT id, tenant_id, lead_id, channel, external_message_id, sender_external_id,
       direction, text, attachments, sent_at, created_at
FROM conversation_messages
`

// PostgresStore is the Store backed by conversation_messages.
type PostgresStore struct {
	q db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

func (s *PostgresStore) Append(ctx context.Context, msg Message) (Message, bool, error) {
	attachments, err := json.Marshal(nonNilAttachments(msg.Attachments))
	if err != nil {
		return Message{}, false, fmt.Errorf("marshal attachments: %w", err)
	}
	direction := msg.Direction
	if direction == "" {
		direction = DirectionInbound
	}
	row := s.q.QueryRow(ctx, `
INSERT INTO conversation_messages
    (id, tenant_id, lead_id, channel, external_message_id, sender_external_id, direction, text, attachments, sent_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (tenant_id, external_message_id) DO NOTHING
RETURNING id, tenant_id, lead_id, channel, external_message_id, sender_external_id,
          direction, text, attachments, sent_at, created_at`,
		msg.ID, msg.TenantID, msg.LeadID, msg.Channel, msg.ExternalMessageID, msg.SenderExternalID,
		direction, msg.Text, attachments, msg.SentAt)
	stored, err := scanMessage(row)
	if err == nil {
		return stored, true, nil
	}
	if !db.IsNoRows(err) {
		return Message{}, false, fmt.Errorf("append message: %w", err)
	}
	existing, err := scanMessage(s.q.QueryRow(ctx, selectMessage+`WHERE tenant_id = $1 AND external_message_id = $2`,
		msg.TenantID, msg.ExternalMessageID))
	if err != nil {
		return Message{}, false, fmt.Errorf("load existing message: %w", err)
	}
	return existing, false, nil
}

func (s *PostgresStore) ListByLead(ctx context.Context, tenantID, leadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.Query(ctx, selectMessage+`WHERE tenant_id = $1 AND lead_id = $2 ORDER BY sent_at DESC LIMIT $3`,
		tenantID, leadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, msg)
	}
	return items, rows.Err()
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		msg         Message
		attachments []byte
	)
	if err := row.Scan(
		&msg.ID, &msg.TenantID, &msg.LeadID, &msg.Channel, &msg.ExternalMessageID, &msg.SenderExternalID,
		&msg.Direction, &msg.Text, &attachments, &msg.SentAt, &msg.CreatedAt,
	); err != nil {
		return Message{}, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return Message{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return msg, nil
}

func nonNilAttachments(items []Attachment) []Attachment {
	if items == nil {
		return []Attachment{}
	}
	return items
}
