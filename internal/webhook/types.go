package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/leadwire/leadwire/internal/conversation"
	"github.com/leadwire/leadwire/internal/leads"
)

var (
	// ErrInvalidPayload means the body is not a recognised platform payload.
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrUnresolved means no tenant owns the receiving page.
	ErrUnresolved = errors.New("unresolved page")
	// ErrSignatureMismatch means the payload signature did not match the page's app secret.
	ErrSignatureMismatch = errors.New("payload signature mismatch")
)

// Channel is the messaging channel an event arrived on.
type Channel string

const (
	ChannelMessenger Channel = "messenger"
	ChannelInstagram Channel = "instagram"
)

func (c Channel) String() string { return string(c) }

// ChannelForObject maps the payload's top-level object to a channel.
func ChannelForObject(object string) (Channel, bool) {
	switch object {
	case "page":
		return ChannelMessenger, true
	case "instagram":
		return ChannelInstagram, true
	}
	return "", false
}

// InboundMessageEvent is the canonical form of one platform message.
type InboundMessageEvent struct {
	Channel     Channel                   `json:"channel"`
	SenderID    string                    `json:"senderId"`
	RecipientID string                    `json:"recipientId"`
	MessageID   string                    `json:"messageId"`
	Text        string                    `json:"text,omitempty"`
	Attachments []conversation.Attachment `json:"attachments,omitempty"`
	Postback    bool                      `json:"postback,omitempty"`
	Timestamp   time.Time                 `json:"timestamp"`
}

// SkipReason explains why a payload entry or item produced no event.
type SkipReason string

const (
	SkipMalformedEntry   SkipReason = "malformed_entry"
	SkipMalformedItem    SkipReason = "malformed_item"
	SkipUnsupportedEntry SkipReason = "unsupported_entry"
	SkipUnsupportedItem  SkipReason = "unsupported_item"
	SkipMissingSender    SkipReason = "missing_sender"
	SkipMissingRecipient SkipReason = "missing_recipient"
	SkipMissingMessageID SkipReason = "missing_message_id"
	SkipEcho             SkipReason = "echo"
	SkipEmpty            SkipReason = "empty"
)

// Skip records one skipped entry (Item < 0) or messaging item.
type Skip struct {
	Entry  int
	Item   int
	Reason SkipReason
}

// Batch is the normalised form of one delivery body.
type Batch struct {
	Channel Channel
	Events  []InboundMessageEvent
	Skipped []Skip
}

// wire shapes

type payload struct {
	Object string            `json:"object"`
	Entry  []json.RawMessage `json:"entry"`
}

type entry struct {
	ID        string            `json:"id"`
	Time      int64             `json:"time"`
	Messaging []json.RawMessage `json:"messaging"`
}

type party struct {
	ID string `json:"id"`
}

type messagingItem struct {
	Sender    party        `json:"sender"`
	Recipient party        `json:"recipient"`
	Timestamp int64        `json:"timestamp"`
	Message   *messagePart `json:"message"`
	Postback  *postback    `json:"postback"`
}

type messagePart struct {
	Mid         string           `json:"mid"`
	Text        string           `json:"text"`
	IsEcho      bool             `json:"is_echo"`
	Attachments []wireAttachment `json:"attachments"`
}

type wireAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

type postback struct {
	Mid     string `json:"mid"`
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// DeliveryMeta is what the resolver may need from the original request.
type DeliveryMeta struct {
	// TenantHint is set when the delivery came in on a tenant-scoped URL.
	TenantHint string
	Signature  string
	Body       []byte
	ReceivedAt time.Time
}

// Delivery is one acknowledged webhook request awaiting processing.
type Delivery struct {
	Meta   DeliveryMeta
	Events []InboundMessageEvent
}

// Resolution is the persisted outcome of one inbound event.
type Resolution struct {
	TenantID    string
	Lead        leads.Lead
	LeadCreated bool
	Message     conversation.Message
	// Duplicate is set when the message id was already stored.
	Duplicate bool
}

// Resolver maps a normalised event to tenant, lead and stored message. When
// storing the message fails after a lead was created, the error comes with a
// Resolution that still reports LeadCreated.
type Resolver interface {
	Resolve(ctx context.Context, meta DeliveryMeta, ev InboundMessageEvent) (Resolution, error)
}

// ReceivedMessage is the message:received payload.
type ReceivedMessage struct {
	Channel  Channel              `json:"channel"`
	TenantID string               `json:"tenantId"`
	Message  conversation.Message `json:"message"`
	Lead     leads.Lead           `json:"lead"`
}

// ScopeCustomerID follows the lead's customer relation.
func (m ReceivedMessage) ScopeCustomerID() string {
	return m.Lead.ScopeCustomerID()
}
