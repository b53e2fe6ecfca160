package output

import "strings"

// audacityWriter writes an Audacity label track. The format has no header.
type audacityWriter struct {
	sink *fileSink
}

func newAudacityWriter(path string) (*audacityWriter, error) {
	sink, err := createSink(path)
	if err != nil {
		return nil, err
	}
	return &audacityWriter{sink: sink}, nil
}

func (a *audacityWriter) WriteHeader() error { return nil }

func (a *audacityWriter) WriteDetection(d *Detection) error {
	return a.sink.printf("%.1f\t%.1f\t%s\t%.4f\n",
		d.StartTime,
		d.EndTime,
		strings.ReplaceAll(d.CommonName, "_", ", "),
		d.Confidence,
	)
}

func (a *audacityWriter) Finalize() error {
	return a.sink.close()
}
