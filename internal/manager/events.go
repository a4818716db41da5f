package manager

// Lifecycle event names.
const (
	EventLoadStart       = "load_start"
	EventLoadReady       = "load_ready"
	EventLoadError       = "load_error"
	EventGenerationStart = "generation_start"
	EventGenerationEnd   = "generation_end"
)

// Event is one lifecycle notification. Fields carry event-specific values
// such as the request id, finish reason or load duration.
type Event struct {
	Name    string
	ModelID string
	Fields  map[string]any
}

// EventPublisher receives manager events. Publish is called on the request
// or loader goroutine and must not block.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
