// Package reporter delivers pipeline events to the user, either as
// structured JSON envelopes or as human-readable console lines.
package reporter

import (
	"github.com/tphakala/birda/internal/events"
	"github.com/tphakala/birda/internal/logger"
)

// Reporter receives every pipeline milestone. Implementations are safe for
// concurrent use and never return errors to the caller.
type Reporter interface {
	PipelineStarted(p events.PipelineStartedPayload)
	FileStarted(p events.FileStartedPayload)
	Progress(p events.ProgressPayload)
	FileCompleted(p events.FileCompletedPayload)
	PipelineCompleted(p events.PipelineCompletedPayload)
	Error(p events.ErrorPayload)
	Cancelled(p events.CancelledPayload)
	// Result emits a command result; payload is one of the events.*Result types.
	Result(payload any)
	// Flush writes any buffered output.
	Flush()
}

// GetLogger returns the reporter package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("reporter")
}

// Null discards every event.
type Null struct{}

var _ Reporter = Null{}

func (Null) PipelineStarted(events.PipelineStartedPayload)     {}
func (Null) FileStarted(events.FileStartedPayload)             {}
func (Null) Progress(events.ProgressPayload)                   {}
func (Null) FileCompleted(events.FileCompletedPayload)         {}
func (Null) PipelineCompleted(events.PipelineCompletedPayload) {}
func (Null) Error(events.ErrorPayload)                         {}
func (Null) Cancelled(events.CancelledPayload)                 {}
func (Null) Result(any)                                        {}
func (Null) Flush()                                            {}
