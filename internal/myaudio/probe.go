package myaudio

import (
	"fmt"

	"github.com/tphakala/birda/internal/logger"
)

// ProbeDuration returns the duration of the recording in seconds from its
// headers or frame index, without decoding the audio. It is used to estimate
// the segment count before decoding starts.
func ProbeDuration(path string) (float64, error) {
	var (
		d   float64
		err error
	)
	switch ext := extension(path); ext {
	case "wav":
		d, err = probeWAV(path)
	case "flac":
		d, err = probeFLAC(path)
	case "mp3":
		d, err = probeMP3(path)
	case "m4a", "aac":
		d, err = probeFFprobe(path)
	default:
		err = fmt.Errorf("unsupported audio format %q", ext)
	}
	if err != nil {
		GetLogger().Debug("duration probe failed", logger.String("path", path), logger.Error(err))
		return 0, err
	}
	return d, nil
}

// EstimateSegments returns the number of chunks Chunk will produce for a
// recording of the given duration.
func EstimateSegments(duration, chunkDuration, overlap float64) int {
	step := chunkDuration - overlap
	if duration <= 0 || step <= 0 {
		return 0
	}
	n := int(duration / step)
	if float64(n)*step < duration {
		n++
	}
	return n
}
