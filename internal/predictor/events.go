package predictor

// Event names published by the predictor.
const (
	EventModelLoadStart  = "model_load_start"
	EventModelReady      = "model_ready"
	EventModelLoadFailed = "model_load_failed"
	EventModelClosed     = "model_closed"
	EventFallback        = "fallback"
)

// Event represents a predictor lifecycle event.
// Minimal and stable: name + artifact path and optional fields via key/values.
type Event struct {
	Name      string
	ModelPath string
	Fields    map[string]any
}

// EventPublisher receives events from the predictor. Implementations should
// be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
