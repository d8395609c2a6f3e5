//nolint:lll
package config

// Config represents the complete configuration for the cutout application.
// It covers the segment and serve commands and supports loading from
// configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Segmentation engine defaults
	Engine EngineConfig `mapstructure:"engine" yaml:"engine" json:"engine"`

	// Worker pool sizing
	Worker WorkerConfig `mapstructure:"worker" yaml:"worker" json:"worker"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`
}

// EngineConfig contains segmentation engine settings.
type EngineConfig struct {
	Iterations      int     `mapstructure:"iterations" yaml:"iterations" json:"iterations"`
	Lambda          float64 `mapstructure:"lambda" yaml:"lambda" json:"lambda"`
	MaxRegionPixels int     `mapstructure:"max_region_pixels" yaml:"max_region_pixels" json:"max_region_pixels"`
	BetaStride      int     `mapstructure:"beta_stride" yaml:"beta_stride" json:"beta_stride"`
	VarianceFloor   float64 `mapstructure:"variance_floor" yaml:"variance_floor" json:"variance_floor"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	MaxWorkers int `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
	QueueSize  int `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format   string `mapstructure:"format" yaml:"format" json:"format"`
	FullMask bool   `mapstructure:"full_mask" yaml:"full_mask" json:"full_mask"`
}
