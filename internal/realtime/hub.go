package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/leadwire/leadwire/internal/auth"
)

// Rooms is the membership primitive the broadcaster relies on.
type Rooms interface {
	Join(s *Session, scope Scope)
	Leave(s *Session)
	Broadcast(scope Scope, event string, payload any)
}

// Frame is the wire shape of one pushed event.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Session is one connected realtime client.
type Session struct {
	ID     string
	Claims auth.Claims
	send   chan []byte
	once   sync.Once
}

// NewSession creates a session with a send buffer of size buffer.
func NewSession(claims auth.Claims, buffer int) *Session {
	if buffer <= 0 {
		buffer = 64
	}
	return &Session{
		ID:     uuid.NewString(),
		Claims: claims,
		send:   make(chan []byte, buffer),
	}
}

// Send returns the outbound frame channel. It is closed when the session
// leaves the hub.
func (s *Session) Send() <-chan []byte { return s.send }

func (s *Session) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub is the in-process room registry.
type Hub struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	rooms   map[Scope]map[string]*Session
	members map[string]Scope
	dropped atomic.Int64
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		logger:  log.With(slog.String("service", "realtime_hub")),
		rooms:   map[Scope]map[string]*Session{},
		members: map[string]Scope{},
	}
}

// Join adds s to scope. A session belongs to one scope; joining again
// moves it.
func (h *Hub) Join(s *Session, scope Scope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.members[s.ID]; ok {
		h.removeLocked(s.ID, prev)
	}
	room := h.rooms[scope]
	if room == nil {
		room = map[string]*Session{}
		h.rooms[scope] = room
	}
	room[s.ID] = s
	h.members[s.ID] = scope
}

// Leave removes s and closes its send channel.
func (h *Hub) Leave(s *Session) {
	h.mu.Lock()
	if scope, ok := h.members[s.ID]; ok {
		h.removeLocked(s.ID, scope)
	}
	h.mu.Unlock()
	s.close()
}

func (h *Hub) removeLocked(id string, scope Scope) {
	delete(h.members, id)
	room := h.rooms[scope]
	delete(room, id)
	if len(room) == 0 {
		delete(h.rooms, scope)
	}
}

// Broadcast sends one frame to every session in scope. Slow sessions whose
// buffer is full miss the frame; an empty scope is a no-op.
func (h *Hub) Broadcast(scope Scope, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[scope]
	if len(room) == 0 {
		return
	}
	data, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("encode realtime frame failed", slog.String("event", event), slog.Any("error", err))
		return
	}
	for _, s := range room {
		select {
		case s.send <- data:
		default:
			h.dropped.Add(1)
			h.logger.Warn("realtime session buffer full, frame dropped",
				slog.String("session_id", s.ID),
				slog.String("scope", scope.String()),
				slog.String("event", event),
			)
		}
	}
}

// Count returns the number of sessions in scope.
func (h *Hub) Count(scope Scope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[scope])
}

// Dropped returns how many frames were dropped for slow sessions.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
