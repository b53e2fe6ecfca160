package events

// FileStatus is the outcome of one input file.
type FileStatus string

const (
	FileProcessed FileStatus = "processed"
	FileFailed    FileStatus = "failed"
	FileSkipped   FileStatus = "skipped" // outputs already exist
	FileLocked    FileStatus = "locked"  // another process holds the lock
)

// PipelineStatus is the overall outcome of a run.
type PipelineStatus string

const (
	PipelineSuccess        PipelineStatus = "success"
	PipelinePartialSuccess PipelineStatus = "partial_success"
	PipelineFailed         PipelineStatus = "failed"
)

// StatusFor derives the pipeline status from file counts: success with no
// failures, partial success when at least one file was processed.
func StatusFor(processed, failed int) PipelineStatus {
	switch {
	case failed == 0:
		return PipelineSuccess
	case processed > 0:
		return PipelinePartialSuccess
	default:
		return PipelineFailed
	}
}

// ErrorSeverity distinguishes fatal errors from warnings.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"
	SeverityWarning ErrorSeverity = "warning"
)

// CancelReason explains why a run stopped early.
type CancelReason string

const (
	CancelUserInterrupt CancelReason = "user_interrupt"
	CancelTimeout       CancelReason = "timeout"
)

// ResultType discriminates result payloads.
type ResultType string

const (
	ResultAnalysis       ResultType = "analysis"
	ResultModelInfo      ResultType = "model_info"
	ResultClipExtraction ResultType = "clip_extraction"
	ResultSpeciesList    ResultType = "species_list"
	ResultConfig         ResultType = "config"
	ResultProviders      ResultType = "providers"
	ResultVersion        ResultType = "version"
)

type PipelineStartedPayload struct {
	TotalFiles    int     `json:"total_files"`
	Model         string  `json:"model"`
	MinConfidence float64 `json:"min_confidence"`
	RunID         string  `json:"run_id,omitempty"`
}

type FileStartedPayload struct {
	File              string   `json:"file"`
	Index             int      `json:"index"`
	EstimatedSegments int      `json:"estimated_segments"`
	DurationSeconds   *float64 `json:"duration_seconds,omitempty"`
}

// FileProgress reports segment progress within one file.
type FileProgress struct {
	Path          string  `json:"path"`
	SegmentsDone  int     `json:"segments_done"`
	SegmentsTotal int     `json:"segments_total"`
	Percent       float64 `json:"percent"`
}

// BatchProgress reports file progress within the run.
type BatchProgress struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

type ProgressPayload struct {
	File  *FileProgress  `json:"file,omitempty"`
	Batch *BatchProgress `json:"batch,omitempty"`
}

// FileError is the error detail of a failed file.
type FileError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type FileCompletedPayload struct {
	File       string     `json:"file"`
	Status     FileStatus `json:"status"`
	Detections *int       `json:"detections,omitempty"`
	DurationMS *int64     `json:"duration_ms,omitempty"`
	Error      *FileError `json:"error,omitempty"`
}

type PipelineCompletedPayload struct {
	Status          PipelineStatus `json:"status"`
	FilesProcessed  int            `json:"files_processed"`
	FilesFailed     int            `json:"files_failed"`
	FilesSkipped    int            `json:"files_skipped"`
	TotalDetections int            `json:"total_detections"`
	TotalSegments   int            `json:"total_segments"`
	DurationMS      int64          `json:"duration_ms"`
	RealtimeFactor  float64        `json:"realtime_factor"`
}

type ErrorPayload struct {
	Code       string        `json:"code"`
	Severity   ErrorSeverity `json:"severity"`
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion,omitempty"`
}

type CancelledPayload struct {
	Reason         CancelReason `json:"reason"`
	FilesCompleted int          `json:"files_completed"`
	FilesTotal     int          `json:"files_total"`
}

// DetectionInfo is one detection in an analysis result.
type DetectionInfo struct {
	Species        string  `json:"species"`
	CommonName     string  `json:"common_name"`
	ScientificName string  `json:"scientific_name"`
	Confidence     float64 `json:"confidence"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
}

// AnalysisResult carries detections for one file in --stdout mode.
type AnalysisResult struct {
	ResultType ResultType      `json:"result_type"`
	File       string          `json:"file"`
	Detections []DetectionInfo `json:"detections"`
}

// ClipEntry describes one extracted clip.
type ClipEntry struct {
	SourceAudio    string  `json:"source_audio"`
	ScientificName string  `json:"scientific_name"`
	Confidence     float64 `json:"confidence"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
	OutputFile     string  `json:"output_file"`
}

type ClipExtractionResult struct {
	ResultType ResultType  `json:"result_type"`
	OutputDir  string      `json:"output_dir"`
	TotalClips int         `json:"total_clips"`
	TotalFiles int         `json:"total_files"`
	Clips      []ClipEntry `json:"clips"`
}

// SpeciesEntry is one species in a generated species list.
type SpeciesEntry struct {
	ScientificName string  `json:"scientific_name"`
	CommonName     string  `json:"common_name"`
	Frequency      float64 `json:"frequency"`
}

type SpeciesListResult struct {
	ResultType   ResultType     `json:"result_type"`
	Lat          float64        `json:"lat"`
	Lon          float64        `json:"lon"`
	Week         int            `json:"week"`
	Threshold    float64        `json:"threshold"`
	SpeciesCount int            `json:"species_count"`
	OutputFile   string         `json:"output_file,omitempty"`
	Species      []SpeciesEntry `json:"species"`
}

type ConfigResult struct {
	ResultType ResultType `json:"result_type"`
	ConfigPath string     `json:"config_path"`
	Config     any        `json:"config"`
}

// ModelDetails describes a configured model.
type ModelDetails struct {
	ID            string `json:"id"`
	ModelType     string `json:"model_type"`
	Path          string `json:"path,omitempty"`
	LabelsPath    string `json:"labels_path,omitempty"`
	MetaModelPath string `json:"meta_model_path,omitempty"`
	IsDefault     bool   `json:"is_default"`
}

type ModelInfoResult struct {
	ResultType ResultType     `json:"result_type"`
	Models     []ModelDetails `json:"models"`
}

// ProviderInfo describes an inference execution provider.
type ProviderInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
}

// SystemInfo is host information reported with providers.
type SystemInfo struct {
	CPUBrand     string   `json:"cpu_brand"`
	LogicalCores int      `json:"logical_cores"`
	Features     []string `json:"features,omitempty"`
	TotalMemory  uint64   `json:"total_memory_bytes,omitempty"`
	FreeMemory   uint64   `json:"available_memory_bytes,omitempty"`
}

type ProvidersResult struct {
	ResultType ResultType     `json:"result_type"`
	Providers  []ProviderInfo `json:"providers"`
	System     SystemInfo     `json:"system"`
}

type VersionResult struct {
	ResultType ResultType `json:"result_type"`
	Version    string     `json:"version"`
	Commit     string     `json:"commit,omitempty"`
	BuildDate  string     `json:"build_date,omitempty"`
}
