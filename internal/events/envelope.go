// Package events defines the machine-readable event protocol emitted by
// birda in json and ndjson output modes.
//
// Every event is wrapped in an Envelope carrying the protocol version and a
// UTC timestamp, so consumers can check compatibility before looking at the
// payload.
package events

import "time"

// SpecVersion is the protocol version stamped into every envelope.
const SpecVersion = "1.0"

// EventType names an event in the fixed protocol vocabulary.
type EventType string

const (
	EventPipelineStarted   EventType = "pipeline_started"
	EventFileStarted       EventType = "file_started"
	EventProgress          EventType = "progress"
	EventFileCompleted     EventType = "file_completed"
	EventPipelineCompleted EventType = "pipeline_completed"
	EventResult            EventType = "result"
	EventError             EventType = "error"
	EventCancelled         EventType = "cancelled"
)

// Envelope wraps every emitted event.
type Envelope[T any] struct {
	SpecVersion string    `json:"spec_version"`
	Timestamp   time.Time `json:"timestamp"`
	Event       EventType `json:"event"`
	Payload     T         `json:"payload"`
}

// NewEnvelope wraps payload for event, stamped with the current UTC time.
func NewEnvelope[T any](event EventType, payload T) Envelope[T] {
	return Envelope[T]{
		SpecVersion: SpecVersion,
		Timestamp:   time.Now().UTC(),
		Event:       event,
		Payload:     payload,
	}
}
