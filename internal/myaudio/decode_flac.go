package myaudio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tphakala/flac"
)

func decodeFLAC(path string) (*Audio, error) {
	file, err := os.Open(path) //nolint:gosec // user supplied input file
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return nil, err
	}

	numChans := decoder.NChannels
	bitDepth := decoder.BitsPerSample
	if numChans < 1 {
		return nil, fmt.Errorf("unsupported number of channels: %d", numChans)
	}
	divisor, err := sampleDivisor(bitDepth)
	if err != nil {
		return nil, err
	}

	samples := make([]float32, 0, decoder.TotalSamples)
	ints := make([]int, 0, 4096*numChans)
	bytesPerSample := bitDepth / 8

	for {
		frame, err := decoder.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		ints = ints[:0]
		for i := 0; i+bytesPerSample <= len(frame); i += bytesPerSample {
			ints = append(ints, readSample(frame[i:], bitDepth))
		}
		samples = appendMono(samples, ints, numChans, divisor)
	}

	return newAudio(samples, decoder.SampleRate), nil
}

// readSample decodes one little endian signed sample.
func readSample(b []byte, bitDepth int) int {
	switch bitDepth {
	case 16:
		return int(int16(binary.LittleEndian.Uint16(b))) //nolint:gosec // reinterpretation of PCM bits
	case 24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		// sign extend from 24 bits
		return int(v<<8) >> 8
	default:
		return int(int32(binary.LittleEndian.Uint32(b))) //nolint:gosec // reinterpretation of PCM bits
	}
}

func probeFLAC(path string) (float64, error) {
	file, err := os.Open(path) //nolint:gosec // user supplied input file
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()

	decoder, err := flac.NewDecoder(file)
	if err != nil {
		return 0, err
	}
	if decoder.SampleRate <= 0 || decoder.TotalSamples <= 0 {
		return 0, errors.New("flac stream has no sample count")
	}
	return float64(decoder.TotalSamples) / float64(decoder.SampleRate), nil
}
