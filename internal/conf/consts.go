package conf

const (
	// AppName names config directories and the binary.
	AppName = "birda"

	// ConfigFileName is the config file searched for in the default paths.
	ConfigFileName = "config.yaml"

	// EnvPrefix prefixes every environment variable read by birda.
	EnvPrefix = "BIRDA"
)

// Analysis defaults.
const (
	DefaultMinConfidence  = 0.1
	DefaultOverlap        = 0.0
	DefaultBatchSize      = 1
	DefaultTopK           = 5
	DefaultSensitivity    = 1.0
	DefaultRangeThreshold = 0.01
	DefaultCombinedPrefix = "BirdNET"
)

// Model types with known input geometry.
const (
	ModelTypeBirdNETv24 = "birdnet-v24"
	ModelTypePerchV2    = "perch-v2"
)

// Output modes.
const (
	OutputModeHuman  = "human"
	OutputModeJSON   = "json"
	OutputModeNDJSON = "ndjson"
)

// Inference devices.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceGPU  = "gpu"
)

// Output formats accepted by --format.
var OutputFormats = []string{"csv", "raven", "audacity", "kaleidoscope", "json", "parquet", "sqlite"}

// CSVMetadataColumns lists the optional CSV columns in output order.
var CSVMetadataColumns = []string{"lat", "lon", "week", "model", "overlap", "sensitivity", "min_conf", "species_list"}
