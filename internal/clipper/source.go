package clipper

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/myaudio"
	"github.com/tphakala/birda/internal/output"
)

const (
	resultsStemSuffix = ".BirdNET.results"
	birdnetStemSuffix = ".BirdNET"
)

var resultFormats = []string{
	output.FormatCSV,
	output.FormatRaven,
	output.FormatAudacity,
	output.FormatKaleidoscope,
	output.FormatJSON,
}

// FindSourceAudio locates the recording a detection file was produced
// from. An explicit path wins when it exists. Otherwise the known result
// suffix is stripped from the file name and the remainder, with or
// without one of the supported audio extensions, is looked up in baseDir
// or, when baseDir is empty, next to the detection file.
func FindSourceAudio(detectionFile, explicit, baseDir string) (string, error) {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit, nil
		}
		return "", sourceNotFound(detectionFile, explicit)
	}

	searchDir := baseDir
	if searchDir == "" {
		searchDir = filepath.Dir(detectionFile)
	}
	name := filepath.Base(detectionFile)

	for _, format := range resultFormats {
		suffix, err := output.Suffix(format)
		if err != nil {
			continue
		}
		if base, ok := strings.CutSuffix(name, suffix); ok && base != "" {
			if candidate := filepath.Join(searchDir, base); fileExists(candidate) {
				return candidate, nil
			}
		}
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if s, ok := strings.CutSuffix(stem, resultsStemSuffix); ok {
		stem = s
	} else if s, ok := strings.CutSuffix(stem, birdnetStemSuffix); ok {
		stem = s
	}
	for _, ext := range myaudio.SupportedExtensions {
		if s, ok := strings.CutSuffix(stem, "."+ext); ok {
			stem = s
			break
		}
	}

	if stem == "" || strings.Contains(stem, "..") || strings.ContainsAny(stem, `/\`) {
		return "", sourceNotFound(detectionFile, filepath.Join(searchDir, stem))
	}

	for _, ext := range myaudio.SupportedExtensions {
		if candidate := filepath.Join(searchDir, stem+"."+ext); fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", sourceNotFound(detectionFile, filepath.Join(searchDir, stem))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func sourceNotFound(detectionFile, audioPath string) error {
	return errors.New(fmt.Errorf("source audio not found for %s (looked for %s)", detectionFile, audioPath)).
		Component("clipper").
		Category(errors.CategoryNotFound).
		FileContext(detectionFile).
		Context("audio_path", audioPath).
		Build()
}
