package birdnet

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/tphakala/birda/internal/errors"
)

// readLines returns the trimmed, non-empty lines of a text file.
func readLines(path string) ([]string, error) {
	file, err := os.Open(path) //nolint:gosec // configured label or species list path
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// LoadLabels reads a classifier labels file, one "Scientific_Common" label
// per line, in model output order.
func LoadLabels(path string) ([]string, error) {
	labels, err := readLines(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read labels: %w", err)).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			FileContext(path).
			Build()
	}
	if len(labels) == 0 {
		return nil, errors.Newf("labels file %s is empty", path).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			FileContext(path).
			Build()
	}
	return labels, nil
}

// ReadSpeciesList reads a species list file. Each non-empty line is a full
// classifier label.
func ReadSpeciesList(path string) ([]string, error) {
	species, err := readLines(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read species list: %w", err)).
			Component("birdnet").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return species, nil
}
