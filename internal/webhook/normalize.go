package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/leadwire/leadwire/internal/conversation"
)

// Normalize parses a delivery body. Only an unusable top level returns an
// error; bad entries and items are skipped and listed in Batch.Skipped.
// It performs no I/O.
func Normalize(body []byte) (Batch, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	channel, ok := ChannelForObject(strings.TrimSpace(p.Object))
	if !ok {
		return Batch{}, fmt.Errorf("%w: unsupported object %q", ErrInvalidPayload, p.Object)
	}
	if p.Entry == nil {
		return Batch{}, fmt.Errorf("%w: entry is required", ErrInvalidPayload)
	}

	batch := Batch{Channel: channel}
	for i, raw := range p.Entry {
		var e entry
		if err := json.Unmarshal(raw, &e); err != nil {
			batch.Skipped = append(batch.Skipped, Skip{Entry: i, Item: -1, Reason: SkipMalformedEntry})
			continue
		}
		if len(e.Messaging) == 0 {
			batch.Skipped = append(batch.Skipped, Skip{Entry: i, Item: -1, Reason: SkipUnsupportedEntry})
			continue
		}
		for j, rawItem := range e.Messaging {
			var item messagingItem
			if err := json.Unmarshal(rawItem, &item); err != nil {
				batch.Skipped = append(batch.Skipped, Skip{Entry: i, Item: j, Reason: SkipMalformedItem})
				continue
			}
			ev, reason := normalizeItem(channel, e.ID, item)
			if reason != "" {
				batch.Skipped = append(batch.Skipped, Skip{Entry: i, Item: j, Reason: reason})
				continue
			}
			batch.Events = append(batch.Events, ev)
		}
	}
	return batch, nil
}

func normalizeItem(channel Channel, entryID string, item messagingItem) (InboundMessageEvent, SkipReason) {
	sender := strings.TrimSpace(item.Sender.ID)
	if sender == "" {
		return InboundMessageEvent{}, SkipMissingSender
	}
	recipient := strings.TrimSpace(item.Recipient.ID)
	if recipient == "" {
		recipient = strings.TrimSpace(entryID)
	}
	if recipient == "" {
		return InboundMessageEvent{}, SkipMissingRecipient
	}
	ev := InboundMessageEvent{
		Channel:     channel,
		SenderID:    sender,
		RecipientID: recipient,
	}
	if item.Timestamp > 0 {
		ev.Timestamp = time.UnixMilli(item.Timestamp).UTC()
	}

	switch {
	case item.Message != nil:
		if item.Message.IsEcho {
			return InboundMessageEvent{}, SkipEcho
		}
		ev.MessageID = strings.TrimSpace(item.Message.Mid)
		if ev.MessageID == "" {
			return InboundMessageEvent{}, SkipMissingMessageID
		}
		ev.Text = item.Message.Text
		for _, a := range item.Message.Attachments {
			if strings.TrimSpace(a.Type) == "" {
				continue
			}
			ev.Attachments = append(ev.Attachments, conversation.Attachment{Type: a.Type, URL: a.Payload.URL})
		}
		if strings.TrimSpace(ev.Text) == "" && len(ev.Attachments) == 0 {
			return InboundMessageEvent{}, SkipEmpty
		}
	case item.Postback != nil:
		ev.Postback = true
		ev.MessageID = strings.TrimSpace(item.Postback.Mid)
		if ev.MessageID == "" {
			if item.Timestamp <= 0 {
				return InboundMessageEvent{}, SkipMissingMessageID
			}
			ev.MessageID = "postback:" + sender + ":" + strconv.FormatInt(item.Timestamp, 10)
		}
		ev.Text = item.Postback.Title
		if strings.TrimSpace(ev.Text) == "" {
			ev.Text = item.Postback.Payload
		}
		if strings.TrimSpace(ev.Text) == "" {
			return InboundMessageEvent{}, SkipEmpty
		}
	default:
		// deliveries, reads, reactions and the like
		return InboundMessageEvent{}, SkipUnsupportedItem
	}
	return ev, ""
}
