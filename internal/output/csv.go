package output

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/tphakala/birda/internal/errors"
)

var csvHeader = []string{"Start (s)", "End (s)", "Scientific name", "Common name", "Confidence", "File"}

const utf8BOM = "\xEF\xBB\xBF"

type csvWriter struct {
	path    string
	file    *os.File
	w       *csv.Writer
	columns []string
	bom     bool
	done    bool
}

func newCSVWriter(path string, opts *Options) (*csvWriter, error) {
	f, err := os.Create(path) //nolint:gosec // path built from the output directory
	if err != nil {
		return nil, outputError(path, "create", err)
	}
	return &csvWriter{
		path:    path,
		file:    f,
		w:       csv.NewWriter(f),
		columns: opts.CSVColumns,
		bom:     opts.CSVBOM,
	}, nil
}

func (c *csvWriter) WriteHeader() error {
	if c.bom {
		if _, err := c.file.WriteString(utf8BOM); err != nil {
			return outputError(c.path, "write", err)
		}
	}
	header := append(append([]string(nil), csvHeader...), c.columns...)
	return c.write(header)
}

func (c *csvWriter) WriteDetection(d *Detection) error {
	record := make([]string, 0, len(csvHeader)+len(c.columns))
	record = append(record,
		formatSeconds(d.StartTime),
		formatSeconds(d.EndTime),
		d.ScientificName,
		d.CommonName,
		formatConfidence(d.Confidence),
		d.FilePath,
	)
	for _, col := range c.columns {
		record = append(record, metadataValue(&d.Metadata, col))
	}
	return c.write(record)
}

func (c *csvWriter) write(record []string) error {
	if c.done {
		return outputError(c.path, "write", errWriterFinalized)
	}
	if err := c.w.Write(record); err != nil {
		return outputError(c.path, "write", err)
	}
	return nil
}

func (c *csvWriter) Finalize() error {
	if c.done {
		return nil
	}
	c.done = true
	c.w.Flush()
	if err := errors.Join(c.w.Error(), c.file.Close()); err != nil {
		return outputError(c.path, "close", err)
	}
	return nil
}

// metadataValue renders one optional CSV column; absent values are empty.
func metadataValue(m *Metadata, column string) string {
	switch column {
	case "lat":
		return formatOptionalFloat(m.Lat)
	case "lon":
		return formatOptionalFloat(m.Lon)
	case "week":
		if m.Week != nil {
			return strconv.Itoa(*m.Week)
		}
	case "model":
		return m.Model
	case "overlap":
		return formatOptionalFloat(m.Overlap)
	case "sensitivity":
		return formatOptionalFloat(m.Sensitivity)
	case "min_conf":
		return formatOptionalFloat(m.MinConfidence)
	case "species_list":
		return m.SpeciesList
	}
	return ""
}

func formatOptionalFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func formatConfidence(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
