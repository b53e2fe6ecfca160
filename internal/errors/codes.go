package errors

// Stable error codes carried in structured events. Consumers match on these,
// so existing values must not change.
const (
	CodeProcessingError = "processing_error"
	CodeDecodeError     = "decode_error"
	CodeResampleError   = "resample_error"
	CodeInferenceError  = "inference_error"
	CodeOutputError     = "output_error"
	CodeLockError       = "lock_error"
	CodeConfigError     = "config_error"
	CodeModelError      = "model_error"
	CodeRangeFilter     = "range_filter_error"
	CodeFileNotFound    = "file_not_found"
	CodeClipError       = "clip_error"
	CodeCancelled       = "cancelled"
)

var categoryCodes = map[ErrorCategory]string{
	CategoryAudioDecode:   CodeDecodeError,
	CategoryResample:      CodeResampleError,
	CategoryInference:     CodeInferenceError,
	CategoryOutput:        CodeOutputError,
	CategoryLock:          CodeLockError,
	CategoryValidation:    CodeConfigError,
	CategoryConfiguration: CodeConfigError,
	CategoryModelLoad:     CodeModelError,
	CategoryLabelLoad:     CodeModelError,
	CategoryRangeFilter:   CodeRangeFilter,
	CategoryNotFound:      CodeFileNotFound,
	CategoryClip:          CodeClipError,
	CategoryCancellation:  CodeCancelled,
}

// Code maps an error to the snake_case code reported in events.
// Unknown or uncategorized errors map to CodeProcessingError.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var catErr CategorizedError
	if As(err, &catErr) {
		if code, ok := categoryCodes[catErr.ErrorCategory()]; ok {
			return code
		}
	}
	return CodeProcessingError
}

// Suggestion returns a short remediation hint for well-known failures.
func Suggestion(err error) string {
	switch {
	case IsCategory(err, CategoryModelLoad), IsCategory(err, CategoryLabelLoad):
		return "check --model-path and --labels-path, or the model section of the config file"
	case IsCategory(err, CategoryValidation), IsCategory(err, CategoryConfiguration):
		return "run 'birda config show' to inspect the effective configuration"
	case IsCategory(err, CategoryLock):
		return "check that the output directory is writable"
	}
	return ""
}
