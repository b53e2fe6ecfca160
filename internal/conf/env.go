package conf

import (
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tphakala/birda/internal/errors"
)

// DotEnvFile is read from the working directory before environment
// variables are bound. Variables already set in the process win.
const DotEnvFile = ".env"

// loadDotEnv exports the variables in path. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.New(fmt.Errorf("error reading %s: %w", path, err)).
			Category(errors.CategoryConfiguration).
			FileContext(path).
			Build()
	}
	return nil
}

// envBinding maps a short environment variable onto a config key
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the short-form environment variables. Every other
// key is also reachable as BIRDA_<SECTION>_<KEY> through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"defaults.model", "BIRDA_MODEL", nil},
		{"defaults.min_confidence", "BIRDA_MIN_CONFIDENCE", validateEnvUnitInterval},
		{"defaults.batch_size", "BIRDA_BATCH_SIZE", validateEnvPositiveInt},
		{"defaults.latitude", "BIRDA_LATITUDE", validateEnvLatitude},
		{"defaults.longitude", "BIRDA_LONGITUDE", validateEnvLongitude},
		{"defaults.species_list", "BIRDA_SPECIES_LIST", nil},
		{"inference.device", "BIRDA_DEVICE", validateEnvDevice},
		{"inference.threads", "BIRDA_THREADS", validateEnvNonNegativeInt},
		{"output.mode", "BIRDA_OUTPUT_MODE", validateEnvOutputMode},
		{"locking.stale_timeout", "BIRDA_STALE_LOCK_TIMEOUT", validateEnvDuration},
	}
}

// bindEnvVars binds the short-form variables and validates values that are set.
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvFloatRange(value string, lo, hi float64) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f < lo || f > hi {
		return fmt.Errorf("must be between %g and %g", lo, hi)
	}
	return nil
}

func validateEnvUnitInterval(value string) error {
	return validateEnvFloatRange(value, 0, 1)
}

func validateEnvLatitude(value string) error {
	return validateEnvFloatRange(value, -90, 90)
}

func validateEnvLongitude(value string) error {
	return validateEnvFloatRange(value, -180, 180)
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("must be zero or a positive integer")
	}
	return nil
}

func validateEnvDuration(value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("must be a duration such as 30m")
	}
	return nil
}

func validateEnvDevice(value string) error {
	switch strings.ToLower(value) {
	case DeviceAuto, DeviceCPU, DeviceGPU:
		return nil
	}
	return fmt.Errorf("must be one of auto, cpu, gpu")
}

func validateEnvOutputMode(value string) error {
	switch strings.ToLower(value) {
	case OutputModeHuman, OutputModeJSON, OutputModeNDJSON:
		return nil
	}
	return fmt.Errorf("must be one of human, json, ndjson")
}
