package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

type jsonSettings struct {
	MinConfidence float64  `json:"min_confidence"`
	Overlap       float64  `json:"overlap"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	Week          *int     `json:"week,omitempty"`
}

type jsonDetection struct {
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
	ScientificName string  `json:"scientific_name"`
	CommonName     string  `json:"common_name"`
	Confidence     float64 `json:"confidence"`
}

type jsonSummary struct {
	TotalDetections      int     `json:"total_detections"`
	UniqueSpecies        int     `json:"unique_species"`
	AudioDurationSeconds float64 `json:"audio_duration_seconds"`
}

// ResultDocument is the structure of a JSON result file.
type ResultDocument struct {
	SourceFile   string          `json:"source_file"`
	RunID        string          `json:"run_id,omitempty"`
	AnalysisDate string          `json:"analysis_date"`
	Model        string          `json:"model"`
	Settings     jsonSettings    `json:"settings"`
	Detections   []jsonDetection `json:"detections"`
	Summary      jsonSummary     `json:"summary"`
}

// jsonWriter collects detections and writes one document on Finalize.
type jsonWriter struct {
	path    string
	doc     ResultDocument
	species map[string]struct{}
	done    bool
}

func newJSONWriter(path string, opts *Options) (*jsonWriter, error) {
	date := opts.AnalysisDate
	if date.IsZero() {
		date = time.Now()
	}
	// fail early on an unwritable path
	f, err := os.Create(path) //nolint:gosec // path built from the output directory
	if err != nil {
		return nil, outputError(path, "create", err)
	}
	if err := f.Close(); err != nil {
		return nil, outputError(path, "create", err)
	}

	return &jsonWriter{
		path: path,
		doc: ResultDocument{
			SourceFile:   filepath.Base(opts.SourceFile),
			RunID:        opts.RunID,
			AnalysisDate: date.UTC().Format(time.RFC3339),
			Model:        opts.Model,
			Settings: jsonSettings{
				MinConfidence: opts.MinConfidence,
				Overlap:       opts.Overlap,
				Lat:           opts.Latitude,
				Lon:           opts.Longitude,
				Week:          opts.Week,
			},
			Detections: []jsonDetection{},
			Summary:    jsonSummary{AudioDurationSeconds: opts.AudioDuration},
		},
		species: make(map[string]struct{}),
	}, nil
}

func (j *jsonWriter) WriteHeader() error { return nil }

func (j *jsonWriter) WriteDetection(d *Detection) error {
	if j.done {
		return outputError(j.path, "write", errWriterFinalized)
	}
	j.doc.Detections = append(j.doc.Detections, jsonDetection{
		StartTime:      d.StartTime,
		EndTime:        d.EndTime,
		ScientificName: d.ScientificName,
		CommonName:     d.CommonName,
		Confidence:     d.Confidence,
	})
	j.species[d.ScientificName] = struct{}{}
	return nil
}

func (j *jsonWriter) Finalize() error {
	if j.done {
		return nil
	}
	j.done = true

	j.doc.Summary.TotalDetections = len(j.doc.Detections)
	j.doc.Summary.UniqueSpecies = len(j.species)

	data, err := json.MarshalIndent(j.doc, "", "  ")
	if err != nil {
		return outputError(j.path, "encode", err)
	}
	if err := os.WriteFile(j.path, append(data, '\n'), 0o644); err != nil { //nolint:gosec // result files are meant to be shared
		return outputError(j.path, "write", err)
	}
	return nil
}
