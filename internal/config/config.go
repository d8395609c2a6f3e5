package config

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/worker"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	engine := grabcut.DefaultOptions()
	pool := worker.DefaultConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Engine: EngineConfig{
			Iterations:      engine.Iterations,
			Lambda:          engine.Lambda,
			MaxRegionPixels: engine.MaxRegionPixels,
			BetaStride:      engine.BetaStride,
			VarianceFloor:   engine.VarianceFloor,
		},
		Worker: WorkerConfig{
			MaxWorkers: pool.MaxWorkers,
			QueueSize:  pool.QueueSize,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      60,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
				MaxRequestsPerDay: 10000,
				MaxDataPerDay:     1 << 30,
			},
		},
		Output: OutputConfig{
			Format:   "png",
			FullMask: false,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"png", "json"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	if c.Engine.Iterations <= 0 || c.Engine.Iterations > grabcut.MaxIterations {
		return fmt.Errorf("invalid engine iterations: %d (must be between 1 and %d)", c.Engine.Iterations, grabcut.MaxIterations)
	}
	if c.Engine.Lambda < 0 || math.IsNaN(c.Engine.Lambda) || math.IsInf(c.Engine.Lambda, 0) {
		return fmt.Errorf("invalid engine lambda: %v (must be a finite non-negative number)", c.Engine.Lambda)
	}
	if c.Engine.MaxRegionPixels <= 0 || c.Engine.MaxRegionPixels > grabcut.RegionPixelsLimit {
		return fmt.Errorf("invalid engine max region pixels: %d (must be between 1 and %d)",
			c.Engine.MaxRegionPixels, grabcut.RegionPixelsLimit)
	}
	if c.Engine.BetaStride <= 0 {
		return fmt.Errorf("invalid engine beta stride: %d (must be positive)", c.Engine.BetaStride)
	}
	if !(c.Engine.VarianceFloor > 0) {
		return fmt.Errorf("invalid engine variance floor: %v (must be positive)", c.Engine.VarianceFloor)
	}

	if c.Worker.MaxWorkers <= 0 {
		return fmt.Errorf("invalid worker max workers: %d (must be positive)", c.Worker.MaxWorkers)
	}
	if c.Worker.QueueSize < 0 {
		return fmt.Errorf("invalid worker queue size: %d (must not be negative)", c.Worker.QueueSize)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.RateLimit.Enabled {
		rl := c.Server.RateLimit
		if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 || rl.MaxDataPerDay < 0 {
			return fmt.Errorf("invalid rate limit: limits must not be negative")
		}
	}

	return nil
}

// ToEngineOptions converts the engine section to grabcut options.
func (c *Config) ToEngineOptions() grabcut.Options {
	return grabcut.Options{
		Iterations:      c.Engine.Iterations,
		Lambda:          c.Engine.Lambda,
		MaxRegionPixels: c.Engine.MaxRegionPixels,
		BetaStride:      c.Engine.BetaStride,
		VarianceFloor:   c.Engine.VarianceFloor,
	}
}

// ToWorkerConfig converts the worker and engine sections to a pool configuration.
func (c *Config) ToWorkerConfig(logger *slog.Logger, observer worker.Observer) worker.Config {
	cfg := worker.DefaultConfig()
	cfg.MaxWorkers = c.Worker.MaxWorkers
	cfg.QueueSize = c.Worker.QueueSize
	cfg.Engine = c.ToEngineOptions()
	cfg.Logger = logger
	cfg.Observer = observer
	return cfg
}

// SlogLevel maps the configured log level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
