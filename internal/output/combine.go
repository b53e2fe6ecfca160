package output

import (
	"path/filepath"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/logger"
)

var combinedSuffixes = map[string]string{
	FormatCSV:          "_CombinedTable.csv",
	FormatRaven:        "_SelectionTable.txt",
	FormatKaleidoscope: "_Kaleidoscope.csv",
	FormatParquet:      "_Combined.parquet",
}

// CombinedPath returns the combined result path for format, or false when
// the format has no combined variant.
func CombinedPath(outputDir, prefix, format string) (string, bool) {
	suffix, ok := combinedSuffixes[format]
	if !ok {
		return "", false
	}
	return filepath.Join(outputDir, prefix+suffix), true
}

// WriteCombined writes the detections of every processed file into one
// result file per supported format. Formats without a combined variant are
// ignored. It returns the paths written.
func WriteCombined(outputDir, prefix string, formats []string, dets []Detection, opts *Options) ([]string, error) {
	var written []string
	var errs []error
	for _, format := range formats {
		path, ok := CombinedPath(outputDir, prefix, format)
		if !ok {
			continue
		}
		if err := WriteFile(format, path, dets, opts); err != nil {
			errs = append(errs, err)
			continue
		}
		written = append(written, path)
		GetLogger().Info("combined results written",
			logger.String("format", format),
			logger.String("path", path),
			logger.Int("detections", len(dets)))
	}
	return written, errors.Join(errs...)
}
