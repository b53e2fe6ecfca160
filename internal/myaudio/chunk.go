package myaudio

// AudioChunk is a fixed length window of samples fed to one inference call.
type AudioChunk struct {
	Samples   []float32
	StartTime float64
	EndTime   float64
}

// Chunk splits samples into windows of chunkDuration seconds that start
// every chunkDuration-overlap seconds. The last window is zero padded to the
// full length. An overlap equal to or longer than the chunk yields no chunks.
func Chunk(samples []float32, sampleRate int, chunkDuration, overlap float64) []AudioChunk {
	chunkSamples := int(chunkDuration * float64(sampleRate))
	overlapSamples := int(overlap * float64(sampleRate))
	step := chunkSamples - overlapSamples
	if step <= 0 || chunkSamples <= 0 {
		return nil
	}

	chunks := make([]AudioChunk, 0, (len(samples)+step-1)/step)
	for pos := 0; pos < len(samples); pos += step {
		end := min(pos+chunkSamples, len(samples))
		data := make([]float32, chunkSamples)
		copy(data, samples[pos:end])

		start := float64(pos) / float64(sampleRate)
		chunks = append(chunks, AudioChunk{
			Samples:   data,
			StartTime: start,
			EndTime:   start + chunkDuration,
		})
	}
	return chunks
}
