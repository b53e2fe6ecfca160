// Package conf provides configuration management for birda.
//
// Settings come from, in increasing precedence: built-in defaults, the YAML
// config file, BIRDA_* environment variables (including a .env file in the
// working directory) and command line flags bound through FlagBinding.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/logger"
)

// Settings is the complete configuration of a birda run.
type Settings struct {
	Models    map[string]ModelConfig `yaml:"models" mapstructure:"models"`       // named models
	Defaults  DefaultsConfig         `yaml:"defaults" mapstructure:"defaults"`   // analysis defaults
	Inference InferenceConfig        `yaml:"inference" mapstructure:"inference"` // interpreter settings
	Output    OutputConfig           `yaml:"output" mapstructure:"output"`       // output handling
	Locking   LockingConfig          `yaml:"locking" mapstructure:"locking"`
	Clip      ClipConfig             `yaml:"clip" mapstructure:"clip"`
	Logging   logger.LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// ModelConfig describes one installed classifier.
type ModelConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`             // tflite classifier model
	Labels    string `yaml:"labels" mapstructure:"labels"`         // labels file, one "Scientific_Common" per line
	MetaModel string `yaml:"meta_model" mapstructure:"meta_model"` // optional range filter model
	Type      string `yaml:"type" mapstructure:"type"`             // birdnet-v24 or perch-v2
}

// DefaultsConfig holds analysis defaults that command line flags override.
type DefaultsConfig struct {
	Model          string   `yaml:"model" mapstructure:"model"`
	MinConfidence  float64  `yaml:"min_confidence" mapstructure:"min_confidence"`
	Overlap        float64  `yaml:"overlap" mapstructure:"overlap"`
	Formats        []string `yaml:"formats" mapstructure:"formats"`
	BatchSize      int      `yaml:"batch_size" mapstructure:"batch_size"`
	Sensitivity    float64  `yaml:"sensitivity" mapstructure:"sensitivity"`
	TopK           int      `yaml:"top_k" mapstructure:"top_k"`
	Latitude       *float64 `yaml:"latitude,omitempty" mapstructure:"latitude"`
	Longitude      *float64 `yaml:"longitude,omitempty" mapstructure:"longitude"`
	MetaModel      string   `yaml:"meta_model,omitempty" mapstructure:"meta_model"`
	RangeThreshold float64  `yaml:"range_threshold" mapstructure:"range_threshold"`
	SpeciesList    string   `yaml:"species_list,omitempty" mapstructure:"species_list"`
	CSVColumns     []string `yaml:"csv_columns" mapstructure:"csv_columns"` // extra metadata columns in CSV output
	CSVBOM         bool     `yaml:"csv_bom" mapstructure:"csv_bom"`
}

// InferenceConfig configures the tflite interpreter.
type InferenceConfig struct {
	Device     string        `yaml:"device" mapstructure:"device"`   // auto, cpu or gpu
	Threads    int           `yaml:"threads" mapstructure:"threads"` // 0 selects from CPU topology
	UseXNNPACK bool          `yaml:"use_xnnpack" mapstructure:"use_xnnpack"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"` // watchdog deadline per inference call
}

// OutputConfig configures where and how results are reported.
type OutputConfig struct {
	CombinedPrefix string `yaml:"combined_prefix" mapstructure:"combined_prefix"`
	Mode           string `yaml:"mode" mapstructure:"mode"` // human, json or ndjson
	MetricsFile    string `yaml:"metrics_file,omitempty" mapstructure:"metrics_file"`
}

// LockingConfig configures stale lock recovery. Zero disables recovery.
type LockingConfig struct {
	StaleTimeout time.Duration `yaml:"stale_timeout" mapstructure:"stale_timeout"`
}

// ClipConfig holds defaults for the clip command.
type ClipConfig struct {
	OutputDir     string  `yaml:"output_dir" mapstructure:"output_dir"`
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	PreRoll       float64 `yaml:"pre_roll" mapstructure:"pre_roll"`
	PostRoll      float64 `yaml:"post_roll" mapstructure:"post_roll"`
	Workers       int     `yaml:"workers" mapstructure:"workers"`
}

// HasLocation reports whether both coordinates are configured.
func (d *DefaultsConfig) HasLocation() bool {
	return d.Latitude != nil && d.Longitude != nil
}

// ResolveModel returns the model configuration for name, falling back to
// the default model when name is empty.
func (s *Settings) ResolveModel(name string) (string, ModelConfig, error) {
	if name == "" {
		name = s.Defaults.Model
	}
	if name == "" {
		return "", ModelConfig{}, errors.Newf("no model selected; use -m or set defaults.model").
			Category(errors.CategoryConfiguration).
			Build()
	}
	model, ok := s.Models[name]
	if !ok {
		return "", ModelConfig{}, errors.Newf("model %q is not configured", name).
			Category(errors.CategoryModelLoad).
			Context("model", name).
			Build()
	}
	return name, model, nil
}

// FlagBinding ties a command line flag to a config key. The flag value is
// used only when the flag was set on the command line.
type FlagBinding struct {
	Key  string
	Flag *pflag.Flag
}

// Load reads defaults, the config file, environment variables and bound
// flags into a new Settings value. An empty configFile searches the default
// config paths; a missing config file is not an error.
func Load(configFile string, bindings ...FlagBinding) (*Settings, error) {
	v, err := initViper(configFile)
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		if b.Flag == nil {
			continue
		}
		if err := v.BindPFlag(b.Key, b.Flag); err != nil {
			return nil, errors.New(fmt.Errorf("error binding flag %s: %w", b.Flag.Name, err)).
				Category(errors.CategoryConfiguration).
				Build()
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if used := v.ConfigFileUsed(); used != "" {
		GetLogger().Debug("loaded config file", logger.String("path", used))
	}

	return settings, nil
}

// initViper creates a viper instance with defaults, env bindings and the
// config file read in.
func initViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaultConfig(v)

	if err := loadDotEnv(DotEnvFile); err != nil {
		GetLogger().Warn("ignoring env file", logger.Error(err))
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		// Invalid env values are reported but do not abort startup; the
		// settings validator catches values that would break a run.
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New(fmt.Errorf("error reading config file %s: %w", configFile, err)).
				Category(errors.CategoryConfiguration).
				FileContext(configFile).
				Build()
		}
		return v, nil
	}

	v.SetConfigName("config")
	for _, path := range GetDefaultConfigPaths() {
		v.AddConfigPath(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return v, nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in order of preference.
func GetDefaultConfigPaths() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, AppName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", AppName))
	}
	return append(paths, filepath.Join("/etc", AppName))
}

// DefaultConfigFile returns the path used by "config init" when no
// config file exists yet.
func DefaultConfigFile() string {
	return filepath.Join(GetDefaultConfigPaths()[0], ConfigFileName)
}

// FindConfigFile returns the first existing config file in the default paths.
func FindConfigFile() (string, error) {
	for _, path := range GetDefaultConfigPaths() {
		candidate := filepath.Join(path, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.Newf("config file not found").
		Category(errors.CategoryNotFound).
		Context("operation", "find-config-file").
		Build()
}

// SaveYAMLConfig writes settings to configPath through a temporary file
// and rename, creating parent directories as needed.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return errors.New(fmt.Errorf("error creating config directory: %w", err)).
			Category(errors.CategoryFileIO).
			FileContext(configPath).
			Build()
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return errors.New(fmt.Errorf("error replacing config file: %w", err)).
			Category(errors.CategoryFileIO).
			FileContext(configPath).
			Build()
	}
	return nil
}

// Defaults returns Settings populated only from built-in defaults.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	// Defaults are static; a decode failure here is a programming error
	// caught by tests.
	_ = v.Unmarshal(settings)
	return settings
}
