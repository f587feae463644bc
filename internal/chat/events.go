package chat

// EventType names what changed in a session.
type EventType string

const (
	EventPending   EventType = "pending"   // user turn stored, waiting on the provider
	EventCompleted EventType = "completed" // assistant turn stored
	EventFailed    EventType = "failed"    // diagnostic turn stored, banner set
	EventDismissed EventType = "dismissed" // banner cleared
)

// Event carries the session snapshot taken right after a change, so
// subscribers can redraw without reading back.
type Event struct {
	Type     EventType `json:"type"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Notifier receives session events. Publish must not block.
type Notifier interface {
	Publish(sessionID string, event Event)
}
