package clipper

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/myaudio"
)

var speciesReplacer = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// SanitizeName replaces characters that are not allowed in file names.
func SanitizeName(name string) string {
	name = strings.TrimSpace(speciesReplacer.Replace(name))
	if name == "" || name == "." || name == ".." {
		return "unknown"
	}
	return name
}

// ClipWriter saves extracted clips under one directory per species.
type ClipWriter struct {
	outputDir string
	force     bool
}

// NewClipWriter creates a writer rooted at outputDir. Existing clips are
// overwritten only when force is set.
func NewClipWriter(outputDir string, force bool) *ClipWriter {
	return &ClipWriter{outputDir: outputDir, force: force}
}

// ClipPath returns where the clip for group is written.
func (w *ClipWriter) ClipPath(group *DetectionGroup) string {
	species := SanitizeName(group.ScientificName)
	percent := int(math.Round(group.MaxConfidence * 100))
	name := fmt.Sprintf("%s_%dp_%.1f-%.1f.wav", species, percent, group.Start, group.End)
	return filepath.Join(w.outputDir, species, name)
}

// Write stores samples as a WAV clip for group. It reports skipped when the
// clip already exists and force is off.
func (w *ClipWriter) Write(samples []float32, sampleRate int, group *DetectionGroup) (path string, skipped bool, err error) {
	path = w.ClipPath(group)
	if !w.force {
		if _, statErr := os.Stat(path); statErr == nil {
			return path, true, nil
		}
	}
	if err := myaudio.WriteWAV(path, samples, sampleRate); err != nil {
		return path, false, errors.New(err).
			Component("clipper").
			Category(errors.CategoryClip).
			FileContext(path).
			Build()
	}
	return path, false, nil
}
