package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwire/leadwire/internal/conversation"
	"github.com/leadwire/leadwire/internal/events"
	"github.com/leadwire/leadwire/internal/leads"
)

type scriptedResolver struct {
	results map[string]Resolution
	errs    map[string]error
}

func (s *scriptedResolver) Resolve(_ context.Context, _ DeliveryMeta, ev InboundMessageEvent) (Resolution, error) {
	return s.results[ev.MessageID], s.errs[ev.MessageID]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingPublisher) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func TestIngestor_ProcessPublishesInOrder(t *testing.T) {
	lead := leads.Lead{ID: "l1", TenantID: "t1"}
	resolver := &scriptedResolver{
		results: map[string]Resolution{
			"m1": {TenantID: "t1", Lead: lead, LeadCreated: true, Message: conversation.Message{ID: "c1"}},
			"m2": {TenantID: "t1", Lead: lead, Message: conversation.Message{ID: "c2"}},
			"m3": {TenantID: "t1", Lead: lead, Duplicate: true},
		},
		errs: map[string]error{
			"m4": ErrUnresolved,
			"m5": ErrSignatureMismatch,
			"m6": errors.New("db down"),
		},
	}
	pub := &recordingPublisher{}
	ing := NewIngestor(slog.New(slog.DiscardHandler), resolver, pub, IngestorConfig{})

	d := Delivery{}
	for _, id := range []string{"m1", "m4", "m2", "m3", "m5", "m6"} {
		d.Events = append(d.Events, InboundMessageEvent{Channel: ChannelMessenger, MessageID: id})
	}
	stats := ing.Process(context.Background(), d)

	assert.Equal(t, Stats{Published: 2, Duplicates: 1, Dropped: 2, Failed: 1}, stats)
	got := pub.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, events.LeadCreated, got[0].Type)
	assert.Equal(t, events.MessageReceived, got[1].Type)
	assert.Equal(t, events.MessageReceived, got[2].Type)
	msg, ok := got[1].Payload.(ReceivedMessage)
	require.True(t, ok)
	assert.Equal(t, "c1", msg.Message.ID)
	assert.Equal(t, "t1", got[2].TenantID)
}

func TestIngestor_WorkersDrainQueue(t *testing.T) {
	resolver := &scriptedResolver{results: map[string]Resolution{
		"m1": {TenantID: "t1", Message: conversation.Message{ID: "c1"}},
	}}
	pub := &recordingPublisher{}
	ing := NewIngestor(slog.New(slog.DiscardHandler), resolver, pub, IngestorConfig{Workers: 2, QueueSize: 4})

	ctx, cancel := context.WithCancel(context.Background())
	ing.Start(ctx)
	require.True(t, ing.Enqueue(Delivery{Events: []InboundMessageEvent{{MessageID: "m1"}}}))

	assert.Eventually(t, func() bool { return len(pub.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.Zero(t, ing.Wait(context.Background()))
}

func TestIngestor_WaitDrainsAcknowledgedDeliveries(t *testing.T) {
	resolver := &scriptedResolver{results: map[string]Resolution{
		"m1": {TenantID: "t1", Message: conversation.Message{ID: "c1"}},
		"m2": {TenantID: "t1", Message: conversation.Message{ID: "c2"}},
		"m3": {TenantID: "t1", Message: conversation.Message{ID: "c3"}},
	}}
	pub := &recordingPublisher{}
	ing := NewIngestor(slog.New(slog.DiscardHandler), resolver, pub, IngestorConfig{Workers: 2, QueueSize: 4})

	// No workers ran, so everything is still queued when Wait starts.
	for _, id := range []string{"m1", "m2", "m3"} {
		require.True(t, ing.Enqueue(Delivery{Events: []InboundMessageEvent{{MessageID: id}}}))
	}

	assert.Zero(t, ing.Wait(context.Background()))
	assert.Len(t, pub.snapshot(), 3)
}

func TestIngestor_WaitStopsAtDeadline(t *testing.T) {
	resolver := &scriptedResolver{results: map[string]Resolution{
		"m1": {TenantID: "t1", Message: conversation.Message{ID: "c1"}},
	}}
	pub := &recordingPublisher{}
	ing := NewIngestor(slog.New(slog.DiscardHandler), resolver, pub, IngestorConfig{QueueSize: 4})

	require.True(t, ing.Enqueue(Delivery{Events: []InboundMessageEvent{{MessageID: "m1"}}}))
	require.True(t, ing.Enqueue(Delivery{Events: []InboundMessageEvent{{MessageID: "m1"}}}))

	expired, cancelDrain := context.WithCancel(context.Background())
	cancelDrain()
	assert.Equal(t, 2, ing.Wait(expired))
	assert.Empty(t, pub.snapshot())
}

func TestIngestor_FailedAppendStillAnnouncesNewLead(t *testing.T) {
	lead := leads.Lead{ID: "l1", TenantID: "t1"}
	resolver := &scriptedResolver{
		results: map[string]Resolution{"m1": {TenantID: "t1", Lead: lead, LeadCreated: true}},
		errs:    map[string]error{"m1": errors.New("append message: db down")},
	}
	pub := &recordingPublisher{}
	ing := NewIngestor(slog.New(slog.DiscardHandler), resolver, pub, IngestorConfig{})

	stats := ing.Process(context.Background(), Delivery{Events: []InboundMessageEvent{{MessageID: "m1"}}})

	assert.Equal(t, Stats{Failed: 1}, stats)
	got := pub.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, events.LeadCreated, got[0].Type)
	assert.Equal(t, lead, got[0].Payload)
}

func TestIngestor_EnqueueFullQueue(t *testing.T) {
	ing := NewIngestor(slog.New(slog.DiscardHandler), &scriptedResolver{}, nil, IngestorConfig{QueueSize: 1})
	d := Delivery{Events: []InboundMessageEvent{{MessageID: "m1"}}}
	assert.True(t, ing.Enqueue(d))
	assert.False(t, ing.Enqueue(d))
	assert.Equal(t, int64(1), ing.Rejected())
	assert.True(t, ing.Enqueue(Delivery{}), "empty deliveries are accepted without queueing")
}
