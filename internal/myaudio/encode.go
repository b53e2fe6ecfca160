package myaudio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth    = 16
	wavNumChannels = 1
)

// WriteWAV saves mono float samples as a 16-bit PCM WAV file, creating
// parent directories as needed. The file is written to a temporary name and
// renamed into place.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	tmpPath := path + ".tmp"
	outFile, err := os.Create(tmpPath) //nolint:gosec // path built from the clip output directory
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = os.Remove(tmpPath) }()

	enc := wav.NewEncoder(outFile, sampleRate, wavBitDepth, wavNumChannels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Data:           floatToInt16(samples),
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: wavNumChannels},
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		_ = outFile.Close()
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = outFile.Close()
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return fmt.Errorf("failed to close WAV file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// floatToInt16 scales samples to 16-bit integers with clipping.
func floatToInt16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		out[i] = int(max(-32768, min(32767, v)))
	}
	return out
}
