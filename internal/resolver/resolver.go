// Package resolver maps normalised webhook events onto tenant state: it
// finds the owning tenant by the receiving page, finds or creates the lead
// for the sender and appends the message to that lead's conversation.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/leadwire/leadwire/internal/conversation"
	"github.com/leadwire/leadwire/internal/leads"
	"github.com/leadwire/leadwire/internal/pages"
	"github.com/leadwire/leadwire/internal/webhook"
)

// PageLookup finds the page configuration that received an event.
type PageLookup interface {
	GetByPageID(ctx context.Context, pageID string) (pages.Config, error)
	GetByInstagramAccountID(ctx context.Context, accountID string) (pages.Config, error)
}

// LeadFinder finds or creates the lead for an external contact.
type LeadFinder interface {
	FindOrCreateByContact(ctx context.Context, in leads.ContactInput) (leads.Lead, bool, error)
}

// MessageAppender stores a message unless its external id is already stored.
type MessageAppender interface {
	Append(ctx context.Context, msg conversation.Message) (conversation.Message, bool, error)
}

// Resolver implements webhook.Resolver.
type Resolver struct {
	logger   *slog.Logger
	pages    PageLookup
	leads    LeadFinder
	messages MessageAppender
}

func New(log *slog.Logger, pageLookup PageLookup, leadFinder LeadFinder, messages MessageAppender) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		logger:   log.With(slog.String("service", "resolver")),
		pages:    pageLookup,
		leads:    leadFinder,
		messages: messages,
	}
}

// Resolve persists ev for the tenant owning its recipient page. It returns
// webhook.ErrUnresolved when no tenant owns the page and
// webhook.ErrSignatureMismatch when the page has an app secret the delivery
// was not signed with. Neither case writes anything.
func (r *Resolver) Resolve(ctx context.Context, meta webhook.DeliveryMeta, ev webhook.InboundMessageEvent) (webhook.Resolution, error) {
	page, err := r.lookupPage(ctx, ev)
	if err != nil {
		return webhook.Resolution{}, err
	}
	if meta.TenantHint != "" && meta.TenantHint != page.TenantID {
		return webhook.Resolution{}, fmt.Errorf("%w: page %s belongs to another tenant", webhook.ErrUnresolved, ev.RecipientID)
	}
	if page.AppSecret != "" && !webhook.VerifySignature(page.AppSecret, meta.Body, meta.Signature) {
		return webhook.Resolution{}, webhook.ErrSignatureMismatch
	}

	lead, created, err := r.leads.FindOrCreateByContact(ctx, leads.ContactInput{
		TenantID:          page.TenantID,
		Channel:           ev.Channel.String(),
		ExternalContactID: ev.SenderID,
	})
	if err != nil {
		return webhook.Resolution{}, fmt.Errorf("find or create lead: %w", err)
	}
	if created {
		r.logger.Info("lead created from inbound message",
			slog.String("tenant_id", page.TenantID),
			slog.String("lead_id", lead.ID),
			slog.String("channel", ev.Channel.String()),
		)
	}

	sentAt := ev.Timestamp
	if sentAt.IsZero() {
		sentAt = meta.ReceivedAt
	}
	msg, inserted, err := r.messages.Append(ctx, conversation.Message{
		ID:                uuid.NewString(),
		TenantID:          page.TenantID,
		LeadID:            lead.ID,
		Channel:           ev.Channel.String(),
		ExternalMessageID: ev.MessageID,
		SenderExternalID:  ev.SenderID,
		Direction:         conversation.DirectionInbound,
		Text:              ev.Text,
		Attachments:       ev.Attachments,
		SentAt:            sentAt,
	})
	if err != nil {
		return webhook.Resolution{TenantID: page.TenantID, Lead: lead, LeadCreated: created},
			fmt.Errorf("append message: %w", err)
	}

	return webhook.Resolution{
		TenantID:    page.TenantID,
		Lead:        lead,
		LeadCreated: created,
		Message:     msg,
		Duplicate:   !inserted,
	}, nil
}

func (r *Resolver) lookupPage(ctx context.Context, ev webhook.InboundMessageEvent) (pages.Config, error) {
	var (
		page pages.Config
		err  error
	)
	switch ev.Channel {
	case webhook.ChannelInstagram:
		page, err = r.pages.GetByInstagramAccountID(ctx, ev.RecipientID)
	default:
		page, err = r.pages.GetByPageID(ctx, ev.RecipientID)
	}
	if errors.Is(err, pages.ErrNotFound) {
		return pages.Config{}, fmt.Errorf("%w: %s %s", webhook.ErrUnresolved, ev.Channel, ev.RecipientID)
	}
	if err != nil {
		return pages.Config{}, fmt.Errorf("lookup page: %w", err)
	}
	if page.TenantID == "" {
		return pages.Config{}, fmt.Errorf("%w: page %s has no tenant", webhook.ErrUnresolved, ev.RecipientID)
	}
	return page, nil
}
