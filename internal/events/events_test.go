package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is advanced manually by tests
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func newTestThrottler(c *fakeClock) *Throttler {
	th := NewThrottler(0, 0)
	th.now = c.now
	th.Reset()
	return th
}

func TestThrottlerBoundaries(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	th := newTestThrottler(clock)

	assert.True(t, th.ShouldEmit(0))
	assert.False(t, th.ShouldEmit(5))
	assert.True(t, th.ShouldEmit(10))
	assert.False(t, th.ShouldEmit(19.9))
	assert.True(t, th.ShouldEmit(20))
	assert.True(t, th.ShouldEmit(100))
	assert.True(t, th.ShouldEmit(100))
}

func TestThrottlerFloorsPercent(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	th := newTestThrottler(clock)

	require.True(t, th.ShouldEmit(0))
	// 99.99 floors to 99, which is not a forced emission
	assert.True(t, th.ShouldEmit(99.99))
	assert.False(t, th.ShouldEmit(99.999))
	assert.True(t, th.ShouldEmit(150), "values above 100 clamp to 100")
	assert.True(t, th.ShouldEmit(-3), "negative values clamp to 0")
}

func TestThrottlerIntervalLiveness(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	th := newTestThrottler(clock)

	require.True(t, th.ShouldEmit(0))
	clock.advance(100 * time.Millisecond)
	assert.False(t, th.ShouldEmit(3))
	clock.advance(DefaultThrottleInterval)
	assert.True(t, th.ShouldEmit(4))
	assert.False(t, th.ShouldEmit(5))
}

func TestThrottlerReset(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	th := newTestThrottler(clock)

	require.True(t, th.ShouldEmit(90))
	assert.False(t, th.ShouldEmit(95))

	th.Reset()
	assert.True(t, th.ShouldEmit(10))
}

func TestPercent(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 50.0, Percent(1, 2), 1e-9)
	assert.InDelta(t, 100.0, Percent(0, 0), 1e-9)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PipelineSuccess, StatusFor(3, 0))
	assert.Equal(t, PipelineSuccess, StatusFor(0, 0))
	assert.Equal(t, PipelinePartialSuccess, StatusFor(2, 1))
	assert.Equal(t, PipelineFailed, StatusFor(0, 4))
}

func TestEnvelopeShape(t *testing.T) {
	t.Parallel()

	env := NewEnvelope(EventPipelineStarted, PipelineStartedPayload{
		TotalFiles:    10,
		Model:         "birdnet-v24",
		MinConfidence: 0.1,
	})
	assert.Equal(t, time.UTC, env.Timestamp.Location())

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "1.0", decoded["spec_version"])
	assert.Equal(t, "pipeline_started", decoded["event"])
	assert.Contains(t, decoded, "timestamp")

	payload, ok := decoded["payload"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 10, payload["total_files"], 1e-9)
	assert.NotContains(t, payload, "run_id")
}

func TestOptionalFieldsOmitted(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ProgressPayload{Batch: &BatchProgress{Current: 1, Total: 10, Percent: 10}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"batch"`)
	assert.NotContains(t, string(data), `"file"`)

	data, err = json.Marshal(FileCompletedPayload{File: "a.wav", Status: FileLocked})
	require.NoError(t, err)
	assert.JSONEq(t, `{"file":"a.wav","status":"locked"}`, string(data))
}
