package reporter

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"

	"github.com/tphakala/birda/internal/events"
	"github.com/tphakala/birda/internal/logger"
)

// Mode selects when JSON envelopes reach the sink.
type Mode int

const (
	// ModeNDJSON writes one envelope per line as soon as it is emitted.
	ModeNDJSON Mode = iota
	// ModeJSON buffers envelopes and writes a single JSON array when the
	// pipeline completes or is cancelled, or on Flush.
	ModeJSON
)

// JSON serializes events as envelopes. Both modes produce identical
// payloads; only the timing of writes differs.
type JSON struct {
	mu        sync.Mutex
	mode      Mode
	w         *bufio.Writer
	buffer    []json.RawMessage
	throttler *events.Throttler
	broken    bool
}

var _ Reporter = (*JSON)(nil)

// NewJSON creates a JSON reporter writing to w.
func NewJSON(w io.Writer, mode Mode) *JSON {
	return &JSON{
		mode:      mode,
		w:         bufio.NewWriter(w),
		throttler: events.NewThrottler(events.DefaultThrottleStep, events.DefaultThrottleInterval),
	}
}

func (r *JSON) PipelineStarted(p events.PipelineStartedPayload) {
	emit(r, events.EventPipelineStarted, p)
}

// FileStarted emits the event and resets progress throttling for the file.
func (r *JSON) FileStarted(p events.FileStartedPayload) {
	r.throttler.Reset()
	emit(r, events.EventFileStarted, p)
}

// Progress emits file progress through the throttler; batch-only progress
// is always emitted.
func (r *JSON) Progress(p events.ProgressPayload) {
	if p.File != nil && !r.throttler.ShouldEmit(p.File.Percent) {
		return
	}
	emit(r, events.EventProgress, p)
}

func (r *JSON) FileCompleted(p events.FileCompletedPayload) {
	emit(r, events.EventFileCompleted, p)
}

func (r *JSON) PipelineCompleted(p events.PipelineCompletedPayload) {
	emit(r, events.EventPipelineCompleted, p)
	r.Flush()
}

func (r *JSON) Error(p events.ErrorPayload) {
	emit(r, events.EventError, p)
}

func (r *JSON) Cancelled(p events.CancelledPayload) {
	emit(r, events.EventCancelled, p)
	r.Flush()
}

func (r *JSON) Result(payload any) {
	emit(r, events.EventResult, payload)
}

// Flush writes the buffered array in json mode.
func (r *JSON) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode != ModeJSON || len(r.buffer) == 0 {
		return
	}

	out, err := json.MarshalIndent(r.buffer, "", "  ")
	r.buffer = r.buffer[:0]
	if err != nil {
		GetLogger().Error("failed to encode event array", logger.Error(err))
		return
	}
	r.writeLocked(append(out, '\n'))
}

func emit[T any](r *JSON, event events.EventType, payload T) {
	data, err := json.Marshal(events.NewEnvelope(event, payload))
	if err != nil {
		GetLogger().Error("failed to encode event", logger.String("event", string(event)), logger.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mode == ModeJSON {
		r.buffer = append(r.buffer, data)
		return
	}
	r.writeLocked(append(data, '\n'))
}

// writeLocked writes and flushes data. The first sink failure is logged and
// every later write is dropped; a closed pipe stays closed.
func (r *JSON) writeLocked(data []byte) {
	if r.broken {
		return
	}
	_, err := r.w.Write(data)
	if err == nil {
		err = r.w.Flush()
	}
	if err != nil {
		r.broken = true
		GetLogger().Warn("failed to write events, further events are dropped", logger.Error(err))
	}
}
