package myaudio

import (
	"encoding/binary"
	"errors"
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/tcolgate/mp3"
)

// go-mp3 always produces 16-bit little endian stereo.
const (
	mp3Channels      = 2
	mp3BytesPerFrame = 4
)

func decodeMP3(path string) (*Audio, error) {
	file, err := os.Open(path) //nolint:gosec // user supplied input file
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	decoder, err := gomp3.NewDecoder(file)
	if err != nil {
		return nil, err
	}

	var samples []float32
	if n := decoder.Length(); n > 0 {
		samples = make([]float32, 0, n/mp3BytesPerFrame)
	}

	buf := make([]byte, 16384)
	ints := make([]int, 0, len(buf)/2)
	carry := 0
	for {
		n, err := decoder.Read(buf[carry:])
		n += carry
		// keep a partial frame for the next read
		whole := n - n%mp3BytesPerFrame

		ints = ints[:0]
		for i := 0; i < whole; i += 2 {
			ints = append(ints, int(int16(binary.LittleEndian.Uint16(buf[i:])))) //nolint:gosec // PCM bits
		}
		samples = appendMono(samples, ints, mp3Channels, 32768.0)

		carry = copy(buf, buf[whole:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	return newAudio(samples, decoder.SampleRate()), nil
}

// probeMP3 sums frame durations without decoding audio.
func probeMP3(path string) (float64, error) {
	file, err := os.Open(path) //nolint:gosec // user supplied input file
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()

	decoder := mp3.NewDecoder(file)
	var (
		frame   mp3.Frame
		skipped int
		total   float64
	)
	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
		total += frame.Duration().Seconds()
	}
	return total, nil
}
