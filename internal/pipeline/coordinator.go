// Package pipeline runs batch analysis: it decides which input files to
// process, runs each one through decode, inference and output, and reports
// progress through a reporter.
package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/locking"
	"github.com/tphakala/birda/internal/logger"
	"github.com/tphakala/birda/internal/myaudio"
	"github.com/tphakala/birda/internal/output"
)

// ProcessCheck is the coordinator's decision for one input file.
type ProcessCheck int

const (
	Process    ProcessCheck = iota
	SkipExists              // every requested output already exists
	SkipLocked              // another process holds the lock
)

func (c ProcessCheck) String() string {
	switch c {
	case SkipExists:
		return "skip_exists"
	case SkipLocked:
		return "skip_locked"
	default:
		return "process"
	}
}

// GetLogger returns the pipeline package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("pipeline")
}

// OutputDirFor returns override when set, else the directory of input.
func OutputDirFor(input, override string) string {
	if override != "" {
		return override
	}
	dir := filepath.Dir(input)
	if dir == "" {
		return "."
	}
	return dir
}

var stemReplacer = strings.NewReplacer("/", "_", `\`, "_", "..", "_")

// OutputPathFor returns the result file path of input for format. The
// file stem is sanitized so the result always lands inside outputDir.
func OutputPathFor(input, outputDir, format string) (string, error) {
	suffix, err := output.Suffix(format)
	if err != nil {
		return "", err
	}
	base := filepath.Base(input)
	stem := stemReplacer.Replace(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" || stem == "." {
		stem = "output"
	}
	return filepath.Join(outputDir, stem+suffix), nil
}

// ShouldProcess decides whether input needs processing. A held lock always
// wins; stdout mode writes no files so existing outputs do not matter.
// Outputs are complete when every requested format exists, so an empty
// format list skips.
func ShouldProcess(input, outputDir string, formats []string, force, stdoutMode bool) ProcessCheck {
	if locking.IsLocked(input, outputDir) {
		return SkipLocked
	}
	if stdoutMode || force {
		return Process
	}
	for _, format := range formats {
		path, err := OutputPathFor(input, outputDir, format)
		if err != nil {
			return Process
		}
		if _, err := os.Stat(path); err != nil {
			return Process
		}
	}
	return SkipExists
}

// CollectInputFiles expands paths into the supported audio files they name.
// Directories are walked recursively in lexical order. Missing paths and
// unsupported files are skipped and reported in warnings.
func CollectInputFiles(paths []string) (files, warnings []string, err error) {
	for _, path := range paths {
		info, statErr := os.Stat(path)
		if statErr != nil {
			warnings = append(warnings, fmt.Sprintf("skipping non-existent path: %s", path))
			GetLogger().Warn("skipping non-existent path", logger.String("path", path))
			continue
		}

		if !info.IsDir() {
			if myaudio.IsSupported(path) {
				files = append(files, path)
			} else {
				warnings = append(warnings, fmt.Sprintf("skipping unsupported file: %s", path))
			}
			continue
		}

		walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && myaudio.IsSupported(p) {
				files = append(files, p)
			}
			return nil
		})
		if walkErr != nil {
			return nil, warnings, errors.New(fmt.Errorf("failed to scan %s: %w", path, walkErr)).
				Component("pipeline").
				Category(errors.CategoryFileIO).
				FileContext(path).
				Build()
		}
	}
	return files, warnings, nil
}
