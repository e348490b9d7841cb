package conversation

import (
	"context"
	"time"
)

// Attachment is a media item carried by a message.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Message is one persisted conversation entry on a lead.
type Message struct {
	ID                string       `json:"id"`
	TenantID          string       `json:"tenantId"`
	LeadID            string       `json:"leadId"`
	Channel           string       `json:"channel"`
	ExternalMessageID string       `json:"externalMessageId"`
	SenderExternalID  string       `json:"senderExternalId"`
	Direction         string       `json:"direction"`
	Text              string       `json:"text,omitempty"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	SentAt            time.Time    `json:"sentAt"`
	CreatedAt         time.Time    `json:"createdAt"`
}

const DirectionInbound = "inbound"

// Store persists conversation messages. Append must be append-if-absent on
// (tenant, external message id): the bool reports whether a row was written,
// and on a duplicate the stored message is returned.
type Store interface {
	Append(ctx context.Context, msg Message) (Message, bool, error)
	ListByLead(ctx context.Context, tenantID, leadID string, limit int) ([]Message, error)
}
