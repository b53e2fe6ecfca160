package myaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ffmpegSampleRate is the rate ffmpeg decodes to; it matches BirdNET so the
// resampler is a no-op for the common model.
const ffmpegSampleRate = 48000

// FFmpegPath and FFprobePath may be set to override PATH lookup.
var (
	FFmpegPath  = ""
	FFprobePath = ""
)

func lookupBinary(override, name string) (string, error) {
	if override != "" {
		return override, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s is required for this format but was not found in PATH: %w", name, err)
	}
	return path, nil
}

// decodeFFmpeg decodes any container ffmpeg understands into mono 32-bit
// float samples read from its stdout.
func decodeFFmpeg(path string) (*Audio, error) {
	ffmpeg, err := lookupBinary(FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-f", "f32le",
		"-ac", "1",
		"-ar", strconv.Itoa(ffmpegSampleRate),
		"-",
	}
	cmd := exec.Command(ffmpeg, args...) //nolint:gosec // fixed arguments, path is a user input file
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	raw := stdout.Bytes()
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return newAudio(samples, ffmpegSampleRate), nil
}

func probeFFprobe(path string) (float64, error) {
	ffprobe, err := lookupBinary(FFprobePath, "ffprobe")
	if err != nil {
		return 0, err
	}
	out, err := exec.Command(ffprobe, //nolint:gosec // fixed arguments
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	return strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
}
