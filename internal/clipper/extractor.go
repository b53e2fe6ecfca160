package clipper

import (
	"fmt"
	"time"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/myaudio"
	"github.com/tphakala/birda/internal/observability/metrics"
)

// DecodeFunc decodes a source recording.
type DecodeFunc func(path string) (*myaudio.Audio, error)

// Clip is an extracted slice of a recording.
type Clip struct {
	Samples    []float32
	SampleRate int
	Start      float64
	End        float64
}

// Source is a decoded recording that clips are cut from.
type Source struct {
	Path  string
	audio *myaudio.Audio
}

// Extractor decodes source recordings and slices clips out of them.
type Extractor struct {
	decode  DecodeFunc
	metrics *metrics.ClipMetrics
}

// NewExtractor creates an extractor. A nil decode uses myaudio.Decode.
func NewExtractor(decode DecodeFunc, m *metrics.ClipMetrics) *Extractor {
	if decode == nil {
		decode = myaudio.Decode
	}
	return &Extractor{decode: decode, metrics: m}
}

// Open decodes path once so that any number of clips can be cut from it.
func (e *Extractor) Open(path string) (*Source, error) {
	start := time.Now()
	audio, err := e.decode(path)
	if e.metrics != nil {
		e.metrics.SourceDecode.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	return &Source{Path: path, audio: audio}, nil
}

// Duration returns the source length in seconds.
func (s *Source) Duration() float64 {
	return s.audio.Duration
}

// Extract returns the samples of group, with the end clamped to the length
// of the recording.
func (s *Source) Extract(group *DetectionGroup) (*Clip, error) {
	end := min(group.End, s.audio.Duration)
	if group.Start >= end {
		return nil, errors.Newf("clip %.1fs-%.1fs is outside %s (%.1fs long)",
			group.Start, group.End, s.Path, s.audio.Duration).
			Component("clipper").
			Category(errors.CategoryClip).
			FileContext(s.Path).
			Build()
	}
	samples := s.audio.Slice(group.Start, end)
	if len(samples) == 0 {
		return nil, errors.New(fmt.Errorf("clip %.1fs-%.1fs of %s is empty", group.Start, end, s.Path)).
			Component("clipper").
			Category(errors.CategoryClip).
			FileContext(s.Path).
			Build()
	}
	return &Clip{
		Samples:    samples,
		SampleRate: s.audio.SampleRate,
		Start:      group.Start,
		End:        end,
	}, nil
}
