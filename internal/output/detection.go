// Package output writes detections in the result formats birda supports.
//
// Every writer follows the same three step contract: WriteHeader once,
// WriteDetection for each detection, then Finalize. Nothing may be called on
// a writer after Finalize.
package output

import (
	"cmp"
	"slices"
	"strings"

	"github.com/tphakala/birda/internal/logger"
)

// Metadata holds the optional per-detection settings. Fields are only set
// when the corresponding feature was active for the run.
type Metadata struct {
	Lat           *float64
	Lon           *float64
	Week          *int
	Model         string
	Overlap       *float64
	Sensitivity   *float64
	MinConfidence *float64
	SpeciesList   string
}

// Detection is a single species detection within an audio file.
type Detection struct {
	FilePath       string
	StartTime      float64
	EndTime        float64
	ScientificName string
	CommonName     string
	Confidence     float64
	Metadata       Metadata
}

// GetLogger returns the output package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("output")
}

// SplitLabel splits a "Scientific name_Common name" label on the first
// underscore. A label without an underscore is used for both names.
func SplitLabel(label string) (scientific, common string) {
	sci, com, found := strings.Cut(label, "_")
	if !found {
		return label, label
	}
	return sci, com
}

// NewDetection builds a detection from a classifier label.
func NewDetection(filePath, label string, confidence, start, end float64) Detection {
	sci, com := SplitLabel(label)
	return Detection{
		FilePath:       filePath,
		StartTime:      start,
		EndTime:        end,
		ScientificName: sci,
		CommonName:     com,
		Confidence:     confidence,
	}
}

// SortDetections orders detections by start time, then by descending
// confidence. The sort is stable so equal detections keep their order.
func SortDetections(dets []Detection) {
	slices.SortStableFunc(dets, func(a, b Detection) int {
		if c := cmp.Compare(a.StartTime, b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(b.Confidence, a.Confidence)
	})
}
