package output

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/tphakala/birda/internal/errors"
)

// Output format names.
const (
	FormatCSV          = "csv"
	FormatRaven        = "raven"
	FormatAudacity     = "audacity"
	FormatKaleidoscope = "kaleidoscope"
	FormatJSON         = "json"
	FormatParquet      = "parquet"
	FormatSQLite       = "sqlite"
)

var formatSuffixes = map[string]string{
	FormatCSV:          ".BirdNET.results.csv",
	FormatRaven:        ".BirdNET.selection.table.txt",
	FormatAudacity:     ".BirdNET.results.txt",
	FormatKaleidoscope: ".BirdNET.results.kaleidoscope.csv",
	FormatJSON:         ".BirdNET.results.json",
	FormatParquet:      ".BirdNET.results.parquet",
	FormatSQLite:       ".BirdNET.results.sqlite",
}

// Writer is implemented by every output format.
type Writer interface {
	WriteHeader() error
	WriteDetection(d *Detection) error
	Finalize() error
}

// Options carries the run settings some formats record alongside the
// detections.
type Options struct {
	SourceFile    string   // audio file the detections came from
	CSVColumns    []string // extra CSV metadata columns, in output order
	CSVBOM        bool
	RunID         string
	Model         string
	MinConfidence float64
	Overlap       float64
	Latitude      *float64
	Longitude     *float64
	Week          *int
	AudioDuration float64   // seconds
	AnalysisDate  time.Time // zero means now
}

// Suffix returns the file name suffix for format.
func Suffix(format string) (string, error) {
	suffix, ok := formatSuffixes[format]
	if !ok {
		return "", errors.Newf("unknown output format: %s", format).
			Component("output").
			Category(errors.CategoryValidation).
			Build()
	}
	return suffix, nil
}

// New creates the writer for format at path. The file is created
// immediately, truncating any previous result.
func New(format, path string, opts *Options) (Writer, error) {
	if opts == nil {
		opts = &Options{}
	}
	switch format {
	case FormatCSV:
		return newCSVWriter(path, opts)
	case FormatRaven:
		return newRavenWriter(path)
	case FormatAudacity:
		return newAudacityWriter(path)
	case FormatKaleidoscope:
		return newKaleidoscopeWriter(path)
	case FormatJSON:
		return newJSONWriter(path, opts)
	case FormatParquet:
		return newParquetWriter(path)
	case FormatSQLite:
		return newSQLiteWriter(path, opts)
	}
	_, err := Suffix(format)
	return nil, err
}

// WriteAll runs the full writer contract for dets. The writer is finalized
// even when a detection fails to write so the file handle is released.
func WriteAll(w Writer, dets []Detection) error {
	if err := w.WriteHeader(); err != nil {
		return errors.Join(err, w.Finalize())
	}
	for i := range dets {
		if err := w.WriteDetection(&dets[i]); err != nil {
			return errors.Join(err, w.Finalize())
		}
	}
	return w.Finalize()
}

// WriteFile creates the writer for format at path and writes dets to it.
func WriteFile(format, path string, dets []Detection, opts *Options) error {
	w, err := New(format, path, opts)
	if err != nil {
		return err
	}
	return WriteAll(w, dets)
}

// fileSink is the buffered file shared by the text formats.
type fileSink struct {
	path   string
	file   *os.File
	w      *bufio.Writer
	closed bool
}

func createSink(path string) (*fileSink, error) {
	f, err := os.Create(path) //nolint:gosec // path built from the output directory
	if err != nil {
		return nil, outputError(path, "create", err)
	}
	return &fileSink{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

func (s *fileSink) printf(format string, args ...any) error {
	if s.closed {
		return outputError(s.path, "write", errWriterFinalized)
	}
	if _, err := fmt.Fprintf(s.w, format, args...); err != nil {
		return outputError(s.path, "write", err)
	}
	return nil
}

func (s *fileSink) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		return outputError(s.path, "close", err)
	}
	return nil
}

var errWriterFinalized = errors.NewStd("writer already finalized")

func outputError(path, op string, err error) error {
	return errors.New(fmt.Errorf("output %s failed: %w", op, err)).
		Component("output").
		Category(errors.CategoryOutput).
		FileContext(path).
		Context("operation", op).
		Build()
}
