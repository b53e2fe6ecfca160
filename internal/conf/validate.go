package conf

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tphakala/birda/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(ve.Errors, "; ")
}

// ErrorCategory implements errors.CategorizedError
func (ve ValidationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryValidation
}

// ValidateSettings checks settings that would otherwise fail in the middle
// of a run. It runs before any input file is touched.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateDefaults(&settings.Defaults)...)
	ve.Errors = append(ve.Errors, validateInference(&settings.Inference)...)
	ve.Errors = append(ve.Errors, validateOutput(&settings.Output)...)
	ve.Errors = append(ve.Errors, validateClip(&settings.Clip)...)

	for name := range settings.Models {
		model := settings.Models[name]
		if model.Path == "" {
			ve.Errors = append(ve.Errors, fmt.Sprintf("model %q: path is required", name))
		}
		if model.Labels == "" {
			ve.Errors = append(ve.Errors, fmt.Sprintf("model %q: labels is required", name))
		}
		switch model.Type {
		case "", ModelTypeBirdNETv24, ModelTypePerchV2:
		default:
			ve.Errors = append(ve.Errors, fmt.Sprintf("model %q: unknown type %q", name, model.Type))
		}
	}

	if settings.Locking.StaleTimeout < 0 {
		ve.Errors = append(ve.Errors, "locking.stale_timeout must not be negative")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateDefaults(d *DefaultsConfig) []string {
	var errs []string

	if d.MinConfidence < 0 || d.MinConfidence > 1 {
		errs = append(errs, fmt.Sprintf("min confidence must be between 0.0 and 1.0, got %g", d.MinConfidence))
	}
	if d.Overlap < 0 {
		errs = append(errs, fmt.Sprintf("overlap must not be negative, got %g", d.Overlap))
	}
	if d.BatchSize < 1 {
		errs = append(errs, fmt.Sprintf("batch size must be at least 1, got %d", d.BatchSize))
	}
	if d.Sensitivity <= 0 || d.Sensitivity > 1.5 {
		errs = append(errs, fmt.Sprintf("sensitivity must be greater than 0.0 and at most 1.5, got %g", d.Sensitivity))
	}
	if d.TopK < 1 {
		errs = append(errs, fmt.Sprintf("top-k must be at least 1, got %d", d.TopK))
	}
	if d.RangeThreshold < 0 || d.RangeThreshold > 1 {
		errs = append(errs, fmt.Sprintf("range threshold must be between 0.0 and 1.0, got %g", d.RangeThreshold))
	}
	if d.Latitude != nil && (*d.Latitude < -90 || *d.Latitude > 90) {
		errs = append(errs, fmt.Sprintf("latitude must be between -90 and 90, got %g", *d.Latitude))
	}
	if d.Longitude != nil && (*d.Longitude < -180 || *d.Longitude > 180) {
		errs = append(errs, fmt.Sprintf("longitude must be between -180 and 180, got %g", *d.Longitude))
	}
	if len(d.Formats) == 0 {
		errs = append(errs, "at least one output format is required")
	}
	for _, f := range d.Formats {
		if _, err := NormalizeFormat(f); err != nil {
			errs = append(errs, err.Error())
		}
	}
	for _, c := range d.CSVColumns {
		if !slices.Contains(CSVMetadataColumns, c) {
			errs = append(errs, fmt.Sprintf("unknown csv column %q (valid: %s)", c, strings.Join(CSVMetadataColumns, ", ")))
		}
	}
	return errs
}

func validateInference(in *InferenceConfig) []string {
	var errs []string
	if err := validateEnvDevice(in.Device); err != nil {
		errs = append(errs, "inference.device "+err.Error())
	}
	if in.Threads < 0 {
		errs = append(errs, "inference.threads must not be negative")
	}
	if in.Timeout < 0 {
		errs = append(errs, "inference.timeout must not be negative")
	}
	return errs
}

func validateOutput(out *OutputConfig) []string {
	if err := validateEnvOutputMode(out.Mode); err != nil {
		return []string{"output mode " + err.Error()}
	}
	return nil
}

func validateClip(c *ClipConfig) []string {
	var errs []string
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, "clip.min_confidence must be between 0.0 and 1.0")
	}
	if c.PreRoll < 0 || c.PostRoll < 0 {
		errs = append(errs, "clip padding must not be negative")
	}
	if c.Workers < 1 {
		errs = append(errs, "clip.workers must be at least 1")
	}
	return errs
}

// NormalizeFormat lowercases a format name and resolves aliases.
func NormalizeFormat(name string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(name))
	if f == "table" {
		f = "raven"
	}
	if !slices.Contains(OutputFormats, f) {
		return "", fmt.Errorf("unknown output format %q (valid: %s)", name, strings.Join(OutputFormats, ", "))
	}
	return f, nil
}
