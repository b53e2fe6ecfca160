package myaudio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birda/internal/errors"
)

func TestChunkPadsFinalChunk(t *testing.T) {
	t.Parallel()

	samples := make([]float32, 60_000) // 1.25 s at 48 kHz
	for i := range samples {
		samples[i] = 0.5
	}

	chunks := Chunk(samples, 48_000, 1.0, 0)
	require.Len(t, chunks, 2)

	assert.Len(t, chunks[1].Samples, 48_000)
	assert.InDelta(t, 1.0, chunks[1].StartTime, 1e-9)
	assert.InDelta(t, 2.0, chunks[1].EndTime, 1e-9)
	assert.InDelta(t, 0.5, chunks[1].Samples[11_999], 1e-9)
	assert.InDelta(t, 0.0, chunks[1].Samples[12_000], 1e-9)
}

func TestChunkOverlap(t *testing.T) {
	t.Parallel()

	chunks := Chunk(make([]float32, 144_000), 48_000, 1.0, 0.5)
	require.Len(t, chunks, 6)
	assert.InDelta(t, 0.5, chunks[1].StartTime, 1e-9)
	assert.Equal(t, EstimateSegments(3.0, 1.0, 0.5), len(chunks))
}

func TestChunkEdgeCases(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Chunk(nil, 48_000, 3, 0))
	assert.Empty(t, Chunk(make([]float32, 1000), 48_000, 1.0, 1.0), "overlap equal to chunk length")
	assert.Empty(t, Chunk(make([]float32, 1000), 48_000, 1.0, 2.0))
}

func TestEstimateSegments(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2, EstimateSegments(1.25, 1, 0))
	assert.Equal(t, 1, EstimateSegments(3, 3, 0))
	assert.Equal(t, 0, EstimateSegments(0, 3, 0))
	assert.Equal(t, 0, EstimateSegments(10, 3, 3))
}

func TestResample(t *testing.T) {
	t.Parallel()

	in := make([]float32, 32_000)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 32_000))
	}

	same, err := Resample(in, 32_000, 32_000)
	require.NoError(t, err)
	assert.Len(t, same, len(in))

	up, err := Resample(in, 32_000, 48_000)
	require.NoError(t, err)
	assert.Len(t, up, 48_000)
	for _, s := range up {
		assert.LessOrEqual(t, math.Abs(float64(s)), 1.1)
	}

	short, err := Resample([]float32{0.1, 0.2}, 24_000, 48_000)
	require.NoError(t, err)
	assert.Len(t, short, 4)

	_, err = Resample(in, 0, 48_000)
	require.Error(t, err)
	assert.Equal(t, errors.CodeResampleError, errors.Code(err))
}

func TestWriteWAVRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clips", "tone.wav")
	samples := make([]float32, 24_000)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*1000*float64(i)/48_000))
	}

	require.NoError(t, WriteWAV(path, samples, 48_000))

	audio, err := Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 48_000, audio.SampleRate)
	require.Len(t, audio.Samples, len(samples))
	assert.InDelta(t, 0.5, audio.Duration, 1e-9)
	for i := 0; i < len(samples); i += 1000 {
		assert.InDelta(t, samples[i], audio.Samples[i], 1e-3)
	}

	d, err := ProbeDuration(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, d, 1e-3)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := Decode(filepath.Join(dir, "missing.wav"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeDecodeError, errors.Code(err))

	bogus := filepath.Join(dir, "bogus.wav")
	require.NoError(t, os.WriteFile(bogus, []byte("not a wav file"), 0o600))
	_, err = Decode(bogus)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bogus)

	_, err = Decode(filepath.Join(dir, "notes.txt"))
	require.Error(t, err)
}

func TestAppendMonoDownmix(t *testing.T) {
	t.Parallel()

	out := appendMono(nil, []int{16384, -16384, 32767, 32767}, 2, 32768)
	require.Len(t, out, 2)
	assert.InDelta(t, 0.0, out[0], 1e-6)
	assert.InDelta(t, 0.99997, out[1], 1e-4)
}

func TestReadSample24BitSignExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, readSample([]byte{0xFF, 0xFF, 0xFF}, 24))
	assert.Equal(t, 8388607, readSample([]byte{0xFF, 0xFF, 0x7F}, 24))
	assert.Equal(t, -32768, readSample([]byte{0x00, 0x80}, 16))
}

func TestSliceClamps(t *testing.T) {
	t.Parallel()

	a := newAudio(make([]float32, 48_000), 48_000)
	assert.Len(t, a.Slice(0.5, 2.0), 24_000)
	assert.Len(t, a.Slice(-1, 0.25), 12_000)
	assert.Empty(t, a.Slice(0.6, 0.5))
}

func TestIsSupported(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSupported("/a/b/REC.WAV"))
	assert.True(t, IsSupported("x.m4a"))
	assert.False(t, IsSupported("x.ogg"))
	assert.False(t, IsSupported("noext"))
}
