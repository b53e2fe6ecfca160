package clipper

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/tphakala/birda/internal/errors"
)

// Required detection file columns.
const (
	ColumnStart          = "Start (s)"
	ColumnEnd            = "End (s)"
	ColumnScientificName = "Scientific name"
	ColumnCommonName     = "Common name"
	ColumnConfidence     = "Confidence"
)

// Detection is one row read from a detection result file.
type Detection struct {
	Start          float64
	End            float64
	ScientificName string
	CommonName     string
	Confidence     float64
}

// ParseFile reads the detections in the CSV result file at path.
func ParseFile(path string) ([]Detection, error) {
	f, err := os.Open(path) //nolint:gosec // user supplied detection file
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open detection file: %w", err)).
			Component("clipper").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	defer func() { _ = f.Close() }()

	dets, err := Parse(f)
	if err != nil {
		return nil, errors.New(fmt.Errorf("%s: %w", path, err)).
			Component("clipper").
			Category(errors.CategoryFileParsing).
			FileContext(path).
			Build()
	}
	return dets, nil
}

// Parse reads detections from CSV content. A leading UTF-8 BOM is dropped,
// columns are located by header name and extra columns are ignored.
func Parse(r io.Reader) ([]Detection, error) {
	decoder := unicode.UTF8.NewDecoder()
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(decoder)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("detection file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols, err := columnIndexes(header)
	if err != nil {
		return nil, err
	}

	var dets []Detection
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if isBlank(record) {
			continue
		}
		det, err := parseRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		dets = append(dets, det)
	}
	return dets, nil
}

type columns struct {
	start, end, scientific, common, confidence int
}

func columnIndexes(header []string) (columns, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	lookup := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("missing required column %q", name)
		}
		return i, nil
	}

	var c columns
	var err error
	if c.start, err = lookup(ColumnStart); err != nil {
		return c, err
	}
	if c.end, err = lookup(ColumnEnd); err != nil {
		return c, err
	}
	if c.scientific, err = lookup(ColumnScientificName); err != nil {
		return c, err
	}
	if c.common, err = lookup(ColumnCommonName); err != nil {
		return c, err
	}
	if c.confidence, err = lookup(ColumnConfidence); err != nil {
		return c, err
	}
	return c, nil
}

func parseRecord(record []string, c columns) (Detection, error) {
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	number := func(i int, name string) (float64, error) {
		v, err := strconv.ParseFloat(field(i), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q", name, field(i))
		}
		return v, nil
	}

	start, err := number(c.start, ColumnStart)
	if err != nil {
		return Detection{}, err
	}
	end, err := number(c.end, ColumnEnd)
	if err != nil {
		return Detection{}, err
	}
	if end < start {
		return Detection{}, fmt.Errorf("end %.3f is before start %.3f", end, start)
	}
	confidence, err := number(c.confidence, ColumnConfidence)
	if err != nil {
		return Detection{}, err
	}

	return Detection{
		Start:          start,
		End:            end,
		ScientificName: field(c.scientific),
		CommonName:     field(c.common),
		Confidence:     confidence,
	}, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// FilterByConfidence returns the detections at or above minConfidence.
func FilterByConfidence(dets []Detection, minConfidence float64) []Detection {
	if minConfidence <= 0 {
		return dets
	}
	out := dets[:0:0]
	for _, d := range dets {
		if d.Confidence >= minConfidence {
			out = append(out, d)
		}
	}
	return out
}
