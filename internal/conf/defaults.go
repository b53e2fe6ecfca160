package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("defaults.model", "")
	v.SetDefault("defaults.min_confidence", DefaultMinConfidence)
	v.SetDefault("defaults.overlap", DefaultOverlap)
	v.SetDefault("defaults.formats", []string{"csv"})
	v.SetDefault("defaults.batch_size", DefaultBatchSize)
	v.SetDefault("defaults.sensitivity", DefaultSensitivity)
	v.SetDefault("defaults.top_k", DefaultTopK)
	v.SetDefault("defaults.meta_model", "")
	v.SetDefault("defaults.range_threshold", DefaultRangeThreshold)
	v.SetDefault("defaults.species_list", "")
	v.SetDefault("defaults.csv_columns", []string{})
	v.SetDefault("defaults.csv_bom", true)

	v.SetDefault("inference.device", DeviceAuto)
	v.SetDefault("inference.threads", 0)
	v.SetDefault("inference.use_xnnpack", true)
	v.SetDefault("inference.timeout", 10*time.Second)

	v.SetDefault("output.combined_prefix", DefaultCombinedPrefix)
	v.SetDefault("output.mode", OutputModeHuman)
	v.SetDefault("output.metrics_file", "")

	v.SetDefault("locking.stale_timeout", time.Duration(0))

	v.SetDefault("clip.output_dir", "clips")
	v.SetDefault("clip.min_confidence", 0.0)
	v.SetDefault("clip.pre_roll", 5.0)
	v.SetDefault("clip.post_roll", 5.0)
	v.SetDefault("clip.workers", 4)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "birda.log")
	v.SetDefault("logging.file_output.level", "debug")
}
