package realtime

import (
	"strings"

	"github.com/leadwire/leadwire/internal/events"
)

// Broadcaster routes bus events to scopes. Every event reaches the tenant
// scope; events whose payload names a customer also reach that customer's
// scope, except lead:deleted which stays tenant-wide.
type Broadcaster struct {
	rooms Rooms
}

func NewBroadcaster(rooms Rooms) *Broadcaster {
	return &Broadcaster{rooms: rooms}
}

// HandleEvent implements events.Handler.
func (b *Broadcaster) HandleEvent(ev events.Event) {
	if strings.TrimSpace(ev.TenantID) == "" {
		return
	}
	name := string(ev.Type)
	b.rooms.Broadcast(TenantScope(ev.TenantID), name, ev.Payload)

	if ev.Type == events.LeadDeleted {
		return
	}
	scoped, ok := ev.Payload.(events.CustomerScoped)
	if !ok {
		return
	}
	if customerID := strings.TrimSpace(scoped.ScopeCustomerID()); customerID != "" {
		b.rooms.Broadcast(ClientScope(ev.TenantID, customerID), name, ev.Payload)
	}
}
