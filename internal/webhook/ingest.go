package webhook

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leadwire/leadwire/internal/events"
)

// IngestorConfig sizes the worker pool.
type IngestorConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds the processing of one delivery.
	Timeout time.Duration
}

// Stats summarises the processing of one delivery.
type Stats struct {
	Published  int
	Duplicates int
	Dropped    int
	Failed     int
}

// Ingestor processes acknowledged deliveries off the request path. Events of
// one delivery are handled in order by one worker; deliveries run concurrently.
type Ingestor struct {
	logger    *slog.Logger
	resolver  Resolver
	publisher events.Publisher
	queue     chan Delivery
	workers   int
	timeout   time.Duration
	wg        sync.WaitGroup
	rejected  atomic.Int64
}

// NewIngestor creates an ingestor. Call Start before Enqueue.
func NewIngestor(log *slog.Logger, resolver Resolver, publisher events.Publisher, cfg IngestorConfig) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Ingestor{
		logger:    log.With(slog.String("service", "webhook_ingest")),
		resolver:  resolver,
		publisher: publisher,
		queue:     make(chan Delivery, cfg.QueueSize),
		workers:   cfg.Workers,
		timeout:   cfg.Timeout,
	}
}

// Start launches the workers. They stop when ctx is done.
func (i *Ingestor) Start(ctx context.Context) {
	for n := 0; n < i.workers; n++ {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			i.run(ctx)
		}()
	}
}

// Wait blocks until all workers have stopped, then keeps processing the
// deliveries still queued until the queue is empty or ctx is done. Queued
// deliveries were already acknowledged upstream. It returns how many were
// left unprocessed.
func (i *Ingestor) Wait(ctx context.Context) int {
	i.wg.Wait()

	var drain sync.WaitGroup
	for n := 0; n < i.workers; n++ {
		drain.Add(1)
		go func() {
			defer drain.Done()
			i.drain(ctx)
		}()
	}
	drain.Wait()

	left := len(i.queue)
	if left > 0 {
		i.logger.Warn("ingestor stopped with queued deliveries", slog.Int("queued", left))
	}
	return left
}

// Enqueue hands d to the workers without blocking. It reports false when
// the queue is full and the delivery was discarded.
func (i *Ingestor) Enqueue(d Delivery) bool {
	if len(d.Events) == 0 {
		return true
	}
	select {
	case i.queue <- d:
		return true
	default:
		i.rejected.Add(1)
		i.logger.Warn("ingest queue full, dropping delivery", slog.Int("events", len(d.Events)))
		return false
	}
}

// Rejected returns how many deliveries were discarded on a full queue.
func (i *Ingestor) Rejected() int64 {
	return i.rejected.Load()
}

func (i *Ingestor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-i.queue:
			i.Process(ctx, d)
		}
	}
}

func (i *Ingestor) drain(ctx context.Context) {
	for ctx.Err() == nil {
		select {
		case d := <-i.queue:
			i.Process(ctx, d)
		default:
			return
		}
	}
}

// Process resolves every event of d and publishes the resulting
// notifications. A failing event never stops the rest of the delivery.
func (i *Ingestor) Process(ctx context.Context, d Delivery) Stats {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
	defer cancel()

	var stats Stats
	for _, ev := range d.Events {
		log := i.logger.With(
			slog.String("channel", ev.Channel.String()),
			slog.String("recipient_id", ev.RecipientID),
			slog.String("message_id", ev.MessageID),
		)
		res, err := i.resolver.Resolve(ctx, d.Meta, ev)
		// A created lead is announced even when storing its message failed.
		if res.LeadCreated {
			i.publish(events.LeadCreated, res.TenantID, res.Lead)
		}
		switch {
		case errors.Is(err, ErrUnresolved):
			stats.Dropped++
			log.Info("dropping event for unknown page", slog.Any("error", err))
			continue
		case errors.Is(err, ErrSignatureMismatch):
			stats.Dropped++
			log.Warn("dropping event with bad signature")
			continue
		case err != nil:
			stats.Failed++
			log.Error("resolve inbound event failed", slog.Any("error", err))
			continue
		}
		if res.Duplicate {
			stats.Duplicates++
			log.Debug("duplicate message ignored", slog.String("tenant_id", res.TenantID))
			continue
		}
		i.publish(events.MessageReceived, res.TenantID, ReceivedMessage{
			Channel:  ev.Channel,
			TenantID: res.TenantID,
			Message:  res.Message,
			Lead:     res.Lead,
		})
		stats.Published++
	}
	return stats
}

func (i *Ingestor) publish(t events.Type, tenantID string, payload any) {
	if i.publisher == nil {
		return
	}
	i.publisher.Publish(events.Event{Type: t, TenantID: tenantID, Payload: payload})
}
