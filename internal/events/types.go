package events

// Type names an outbound notification. The value is the wire event name.
type Type string

const (
	LeadCreated     Type = "lead:created"
	LeadUpdated     Type = "lead:updated"
	LeadMoved       Type = "lead:moved"
	LeadDeleted     Type = "lead:deleted"
	MessageReceived Type = "message:received"
)

func (t Type) String() string { return string(t) }

// Event is a change notification scoped to one tenant.
type Event struct {
	Type     Type
	TenantID string
	Payload  any
}

// CustomerScoped is implemented by payloads that may belong to an external
// customer. An empty id means tenant-wide only.
type CustomerScoped interface {
	ScopeCustomerID() string
}

// DeletedLead is the lead:deleted payload. It carries the id only.
type DeletedLead struct {
	ID string `json:"id"`
}

// Publisher accepts events for asynchronous delivery.
type Publisher interface {
	Publish(ev Event)
}

// Handler consumes delivered events.
type Handler interface {
	HandleEvent(ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev Event)

func (f HandlerFunc) HandleEvent(ev Event) { f(ev) }
