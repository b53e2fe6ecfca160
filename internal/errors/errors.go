// Package errors provides categorized errors with structured context.
//
//	return errors.Newf("model file not found: %s", path).
//		Component("birdnet").
//		Category(errors.CategoryModelLoad).
//		FileContext(path).
//		Build()
//
// Categories map to the stable error codes of the event protocol; see Code.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"time"
)

// ErrorCategory groups errors by what failed.
type ErrorCategory string

// CategorizedError is implemented by errors that know their category.
type CategorizedError interface {
	error
	ErrorCategory() ErrorCategory
}

const (
	CategoryValidation    ErrorCategory = "validation"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryFileIO        ErrorCategory = "file-io"
	CategoryAudioDecode   ErrorCategory = "audio-decode"
	CategoryResample      ErrorCategory = "resample"
	CategoryModelLoad     ErrorCategory = "model-loading"
	CategoryLabelLoad     ErrorCategory = "label-loading"
	CategoryInference     ErrorCategory = "inference"
	CategoryRangeFilter   ErrorCategory = "range-filter"
	CategoryOutput        ErrorCategory = "output-write"
	CategoryLock          ErrorCategory = "file-lock"
	CategoryConflict      ErrorCategory = "conflict"
	CategoryClip          ErrorCategory = "clip-extraction"
	CategoryFileParsing   ErrorCategory = "file-parsing"
	CategoryNotFound      ErrorCategory = "not-found"
	CategorySystem        ErrorCategory = "system-resource"
	CategoryTimeout       ErrorCategory = "timeout"
	CategoryCancellation  ErrorCategory = "cancellation"
	CategoryGeneric       ErrorCategory = "generic"
)

// EnhancedError is an error with a category, the component that raised it
// and free-form context for logs.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
}

func (ee *EnhancedError) Error() string { return ee.Err.Error() }

func (ee *EnhancedError) Unwrap() error { return ee.Err }

// Is matches another EnhancedError by category, anything else through the
// wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

func (ee *EnhancedError) ErrorCategory() ErrorCategory { return ee.Category }

// GetContext returns a copy of the error context.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	return maps.Clone(ee.Context)
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the category. Without one, Build inherits the category of
// a wrapped categorized error or guesses from the message.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// FileContext records path and its lowercase extension.
func (eb *ErrorBuilder) FileContext(path string) *ErrorBuilder {
	if path == "" {
		return eb
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		ext = "none"
	}
	return eb.Context("path", path).Context("file_extension", ext)
}

// Timing records how long operation ran before failing.
func (eb *ErrorBuilder) Timing(operation string, d time.Duration) *ErrorBuilder {
	return eb.Context("operation", operation).Context("duration_ms", d.Milliseconds())
}

func (eb *ErrorBuilder) Build() *EnhancedError {
	err := eb.err
	if err == nil {
		err = stderrors.New("unknown error")
	}
	category := eb.category
	if category == "" {
		category = detectCategory(err)
	}
	component := eb.component
	if component == "" {
		component = "unknown"
	}
	return &EnhancedError{
		Err:       err,
		Component: component,
		Category:  category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
}

func detectCategory(err error) ErrorCategory {
	var catErr CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr.ErrorCategory()
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "label"):
		return CategoryLabelLoad
	case strings.Contains(msg, "model"):
		return CategoryModelLoad
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "validation"):
		return CategoryValidation
	case strings.Contains(msg, "file"), strings.Contains(msg, "open"), strings.Contains(msg, "read"):
		return CategoryFileIO
	}
	return CategoryGeneric
}

// NewStd creates a plain error, for sentinels.
func NewStd(text string) error { return stderrors.New(text) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

// IsCategory reports whether err wraps an EnhancedError of category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EnhancedError
	return As(err, &ee) && ee.Category == category
}

// reportedError marks an error whose event has already been emitted.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// Reported marks err as already presented to the user, so the command
// layer only sets the exit code.
func Reported(err error) error {
	if err == nil {
		return nil
	}
	return reportedError{err}
}

// IsReported reports whether err was marked by Reported.
func IsReported(err error) bool {
	var r reportedError
	return As(err, &r)
}
