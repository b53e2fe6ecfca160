package output

import "strings"

const ravenHeader = "Selection\tView\tChannel\tBegin Time (s)\tEnd Time (s)\tLow Freq (Hz)\tHigh Freq (Hz)\tCommon Name\tSpecies Code\tConfidence\tBegin Path\tFile Offset (s)\n"

// Raven selection tables span the BirdNET frequency range.
const (
	ravenLowFreq  = 150
	ravenHighFreq = 15000
)

type ravenWriter struct {
	sink      *fileSink
	selection int
}

func newRavenWriter(path string) (*ravenWriter, error) {
	sink, err := createSink(path)
	if err != nil {
		return nil, err
	}
	return &ravenWriter{sink: sink}, nil
}

func (r *ravenWriter) WriteHeader() error {
	return r.sink.printf("%s", ravenHeader)
}

func (r *ravenWriter) WriteDetection(d *Detection) error {
	r.selection++
	return r.sink.printf("%d\tSpectrogram 1\t1\t%.1f\t%.1f\t%d\t%d\t%s\t%s\t%.4f\t%s\t%.1f\n",
		r.selection,
		d.StartTime,
		d.EndTime,
		ravenLowFreq,
		ravenHighFreq,
		strings.ReplaceAll(d.CommonName, " ", "_"),
		SpeciesCode(d.CommonName),
		d.Confidence,
		d.FilePath,
		d.StartTime,
	)
}

func (r *ravenWriter) Finalize() error {
	return r.sink.close()
}

// SpeciesCode derives a short code from a common name: "unkn" for an empty
// name, the first four letters of a single word, otherwise the first three
// letters of the first and last words.
func SpeciesCode(commonName string) string {
	words := strings.Fields(commonName)
	switch len(words) {
	case 0:
		return "unkn"
	case 1:
		return strings.ToLower(prefix(words[0], 4))
	}
	return strings.ToLower(prefix(words[0], 3) + prefix(words[len(words)-1], 3))
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
