package output

import (
	"path/filepath"
	"strings"
)

const kaleidoscopeHeader = "INDIR,FOLDER,IN FILE,OFFSET,DURATION,TOP1MATCH,TOP1DIST\n"

type kaleidoscopeWriter struct {
	sink *fileSink
}

func newKaleidoscopeWriter(path string) (*kaleidoscopeWriter, error) {
	sink, err := createSink(path)
	if err != nil {
		return nil, err
	}
	return &kaleidoscopeWriter{sink: sink}, nil
}

func (k *kaleidoscopeWriter) WriteHeader() error {
	return k.sink.printf("%s", kaleidoscopeHeader)
}

// WriteDetection splits the source path into the INDIR (grandparent
// directory), FOLDER (parent directory name) and IN FILE columns.
func (k *kaleidoscopeWriter) WriteDetection(d *Detection) error {
	parent := filepath.Dir(d.FilePath)
	folder, indir := "", ""
	if parent != "." {
		folder = filepath.Base(parent)
		if gp := filepath.Dir(parent); gp != "." {
			indir = gp
		}
	}
	return k.sink.printf("%s,%s,%s,%.1f,%.1f,%s,%.4f\n",
		indir,
		folder,
		filepath.Base(d.FilePath),
		d.StartTime,
		d.EndTime-d.StartTime,
		strings.ReplaceAll(d.CommonName, " ", "_"),
		d.Confidence,
	)
}

func (k *kaleidoscopeWriter) Finalize() error {
	return k.sink.close()
}
