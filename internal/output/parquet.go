package output

import (
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/tphakala/birda/internal/errors"
)

// ParquetRow is the schema of parquet result files. Metadata columns are
// optional and null when the feature was inactive.
type ParquetRow struct {
	StartS         float32  `parquet:"start_s"`
	EndS           float32  `parquet:"end_s"`
	ScientificName string   `parquet:"scientific_name"`
	CommonName     string   `parquet:"common_name"`
	Confidence     float32  `parquet:"confidence"`
	File           string   `parquet:"file"`
	Lat            *float64 `parquet:"lat"`
	Lon            *float64 `parquet:"lon"`
	Week           *int32   `parquet:"week"`
	Model          *string  `parquet:"model"`
	Overlap        *float32 `parquet:"overlap"`
	Sensitivity    *float32 `parquet:"sensitivity"`
	MinConf        *float32 `parquet:"min_conf"`
	SpeciesList    *string  `parquet:"species_list"`
}

const parquetBatchSize = 1000

type parquetWriter struct {
	path   string
	file   *os.File
	w      *parquet.GenericWriter[ParquetRow]
	buffer []ParquetRow
	done   bool
}

func newParquetWriter(path string) (*parquetWriter, error) {
	f, err := os.Create(path) //nolint:gosec // path built from the output directory
	if err != nil {
		return nil, outputError(path, "create", err)
	}
	return &parquetWriter{
		path:   path,
		file:   f,
		w:      parquet.NewGenericWriter[ParquetRow](f, parquet.Compression(&parquet.Snappy)),
		buffer: make([]ParquetRow, 0, parquetBatchSize),
	}, nil
}

// WriteHeader is a no-op; the schema is embedded in the file footer.
func (p *parquetWriter) WriteHeader() error { return nil }

func (p *parquetWriter) WriteDetection(d *Detection) error {
	if p.done {
		return outputError(p.path, "write", errWriterFinalized)
	}
	p.buffer = append(p.buffer, toParquetRow(d))
	if len(p.buffer) >= parquetBatchSize {
		return p.flush()
	}
	return nil
}

func (p *parquetWriter) flush() error {
	if len(p.buffer) == 0 {
		return nil
	}
	if _, err := p.w.Write(p.buffer); err != nil {
		return outputError(p.path, "write", err)
	}
	p.buffer = p.buffer[:0]
	return nil
}

func (p *parquetWriter) Finalize() error {
	if p.done {
		return nil
	}
	p.done = true

	flushErr := p.flush()
	var closeErr error
	if err := p.w.Close(); err != nil {
		closeErr = outputError(p.path, "close", err)
	}
	var fileErr error
	if err := p.file.Close(); err != nil {
		fileErr = outputError(p.path, "close", err)
	}
	return errors.Join(flushErr, closeErr, fileErr)
}

func toParquetRow(d *Detection) ParquetRow {
	row := ParquetRow{
		StartS:         float32(d.StartTime),
		EndS:           float32(d.EndTime),
		ScientificName: d.ScientificName,
		CommonName:     d.CommonName,
		Confidence:     float32(d.Confidence),
		File:           filepath.Base(d.FilePath),
		Lat:            d.Metadata.Lat,
		Lon:            d.Metadata.Lon,
		Overlap:        float32Ptr(d.Metadata.Overlap),
		Sensitivity:    float32Ptr(d.Metadata.Sensitivity),
		MinConf:        float32Ptr(d.Metadata.MinConfidence),
	}
	if d.Metadata.Week != nil {
		w := int32(*d.Metadata.Week) //nolint:gosec // week is 1..48
		row.Week = &w
	}
	if d.Metadata.Model != "" {
		model := d.Metadata.Model
		row.Model = &model
	}
	if d.Metadata.SpeciesList != "" {
		list := d.Metadata.SpeciesList
		row.SpeciesList = &list
	}
	return row
}

func float32Ptr(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}
