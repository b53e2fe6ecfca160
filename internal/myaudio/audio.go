// Package myaudio decodes audio files into mono float samples and prepares
// them for inference: resampling, fixed length chunking and WAV encoding of
// extracted clips.
package myaudio

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/logger"
)

// Audio is a decoded recording, down-mixed to mono.
type Audio struct {
	Samples    []float32
	SampleRate int
	Duration   float64 // seconds
}

// SupportedExtensions lists the input extensions birda decodes, lower case
// and without the dot.
var SupportedExtensions = []string{"wav", "flac", "mp3", "m4a", "aac"}

// GetLogger returns the audio package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audio")
}

// IsSupported reports whether path has a supported audio extension.
func IsSupported(path string) bool {
	ext := extension(path)
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Decode reads the file at path into mono float samples at the file's own
// sample rate. The decoder is chosen by extension.
func Decode(path string) (*Audio, error) {
	var (
		audio *Audio
		err   error
	)
	switch ext := extension(path); ext {
	case "wav":
		audio, err = decodeWAV(path)
	case "flac":
		audio, err = decodeFLAC(path)
	case "mp3":
		audio, err = decodeMP3(path)
	case "m4a", "aac":
		audio, err = decodeFFmpeg(path)
	default:
		err = fmt.Errorf("unsupported audio format %q", ext)
	}
	if err != nil {
		return nil, decodeError(path, err)
	}

	GetLogger().Debug("decoded audio",
		logger.String("path", path),
		logger.Int("sample_rate", audio.SampleRate),
		logger.Int("samples", len(audio.Samples)),
		logger.Float64("duration_seconds", audio.Duration))
	return audio, nil
}

func newAudio(samples []float32, sampleRate int) *Audio {
	a := &Audio{Samples: samples, SampleRate: sampleRate}
	if sampleRate > 0 {
		a.Duration = float64(len(samples)) / float64(sampleRate)
	}
	return a
}

// Slice returns the samples between start and end seconds, clamped to the
// recording.
func (a *Audio) Slice(start, end float64) []float32 {
	if a.SampleRate <= 0 || end <= start {
		return nil
	}
	from := clampIndex(int(start*float64(a.SampleRate)), len(a.Samples))
	to := clampIndex(int(end*float64(a.SampleRate)), len(a.Samples))
	return a.Samples[from:to]
}

func clampIndex(i, n int) int {
	return max(0, min(i, n))
}

func decodeError(path string, err error) error {
	return errors.New(fmt.Errorf("failed to decode %s: %w", path, err)).
		Component("myaudio").
		Category(errors.CategoryAudioDecode).
		FileContext(path).
		Build()
}

// sampleDivisor returns the scale that maps signed integer PCM of the given
// bit depth into [-1, 1).
func sampleDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	}
	return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
}

// appendMono averages interleaved frames of numChans channels into dst.
func appendMono(dst []float32, interleaved []int, numChans int, divisor float32) []float32 {
	if numChans <= 1 {
		for _, s := range interleaved {
			dst = append(dst, float32(s)/divisor)
		}
		return dst
	}
	scale := divisor * float32(numChans)
	for i := 0; i+numChans <= len(interleaved); i += numChans {
		sum := 0
		for c := range numChans {
			sum += interleaved[i+c]
		}
		dst = append(dst, float32(sum)/scale)
	}
	return dst
}
