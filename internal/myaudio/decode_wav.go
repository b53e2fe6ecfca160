package myaudio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM = 1
	// frames read per PCMBuffer call
	wavReadFrames = 48000
)

func decodeWAV(path string) (*Audio, error) {
	file, err := os.Open(path) //nolint:gosec // user supplied input file
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.New("input is not a valid WAV audio file")
	}

	// float and compressed WAV variants are handed to ffmpeg
	if decoder.WavAudioFormat != wavFormatPCM {
		GetLogger().Debug("non-PCM WAV, decoding with ffmpeg")
		return decodeFFmpeg(path)
	}

	numChans := int(decoder.NumChans)
	if numChans < 1 {
		return nil, fmt.Errorf("unsupported number of channels: %d", numChans)
	}
	divisor, err := sampleDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, err
	}

	sampleRate := int(decoder.SampleRate)
	buf := &audio.IntBuffer{
		Data:   make([]int, wavReadFrames*numChans),
		Format: &audio.Format{SampleRate: sampleRate, NumChannels: numChans},
	}

	var samples []float32
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		samples = appendMono(samples, buf.Data[:n], numChans, divisor)
	}

	return newAudio(samples, sampleRate), nil
}

func probeWAV(path string) (float64, error) {
	file, err := os.Open(path) //nolint:gosec // user supplied input file
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()

	decoder := wav.NewDecoder(file)
	d, err := decoder.Duration()
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}
