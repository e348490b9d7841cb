package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

const defaultBuffer = 1024

// Bus is the in-process event loop. Publish never blocks: events are queued
// and a single goroutine (Run) hands them to every handler in publish order.
// A full queue drops the event.
type Bus struct {
	logger   *slog.Logger
	queue    chan Event
	mu       sync.RWMutex
	handlers []Handler
	dropped  atomic.Int64
}

// NewBus creates a bus with the given queue capacity.
func NewBus(log *slog.Logger, buffer int) *Bus {
	if log == nil {
		log = slog.Default()
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		logger: log.With(slog.String("service", "event_bus")),
		queue:  make(chan Event, buffer),
	}
}

// Subscribe registers h for all subsequent deliveries.
func (b *Bus) Subscribe(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish enqueues ev. It reports nothing to the caller; delivery is best effort.
func (b *Bus) Publish(ev Event) {
	select {
	case b.queue <- ev:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event queue full, dropping event",
			slog.String("event", ev.Type.String()),
			slog.String("tenant_id", ev.TenantID),
		)
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Run delivers queued events until ctx is done.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			b.dispatch(ev)
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()
	for _, h := range handlers {
		b.deliver(h, ev)
	}
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				slog.String("event", ev.Type.String()),
				slog.Any("panic", r),
			)
		}
	}()
	h.HandleEvent(ev)
}
