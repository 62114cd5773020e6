package etl

import "time"

// Event types.
const (
	EventStepBuilt   = "step_built"
	EventStepSkipped = "step_skipped"
	EventStepFailed  = "step_failed"
)

// Event tells downstream consumers that a step finished.
type Event struct {
	Type     string    `json:"type"`
	RunID    string    `json:"run_id"`
	Step     string    `json:"step"`
	Checksum string    `json:"checksum,omitempty"`
	Path     string    `json:"path,omitempty"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(e Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(e Event) error { return nil }

func (NopPublisher) Close() error { return nil }
