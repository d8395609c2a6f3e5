package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/cutout/internal/config"
	"github.com/MeKo-Tech/cutout/internal/server"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the segmentation API",
	Long: `Start an HTTP server that runs segmentations on a shared worker pool.

The server provides the following endpoints:
  POST /segment  - Segment an uploaded image (multipart form)
  GET  /ws       - WebSocket task protocol with progress and cancellation
  GET  /health   - Health check endpoint
  GET  /metrics  - Prometheus metrics

Examples:
  cutout serve
  cutout serve --port 8080
  cutout serve --host 0.0.0.0 --port 3000 --workers 4`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	serverConfig, shutdownTimeout, err := serverConfigFromFlags(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	segServer := server.NewServer(serverConfig)

	mux := http.NewServeMux()
	segServer.SetupRoutes(mux)
	go segServer.PruneClients(ctx, time.Hour)

	timeout := time.Duration(serverConfig.TimeoutSec) * time.Second
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", serverConfig.Host, serverConfig.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       timeout,
		// Segment responses are written after the wait, so allow some slack.
		WriteTimeout: timeout + 5*time.Second,
	}

	go func() {
		slog.Info("Starting segmentation server",
			"host", serverConfig.Host,
			"port", serverConfig.Port,
			"workers", serverConfig.Worker.MaxWorkers)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("Context cancelled, initiating shutdown")
	}

	slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	slog.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server shutdown completed")
	}

	slog.Info("Stopping worker pool")
	if err := segServer.Close(shutdownCtx); err != nil {
		slog.Error("Worker pool shutdown error", "error", err)
	} else {
		slog.Info("Worker pool stopped")
	}

	slog.Info("Graceful shutdown completed")
	return nil
}

// serverConfigFromFlags resolves every server setting from the configuration
// unless the matching flag was given.
func serverConfigFromFlags(cmd *cobra.Command, cfg *config.Config) (server.Config, time.Duration, error) {
	flags := cmd.Flags()

	host := cfg.Server.Host
	if flags.Changed("host") {
		host, _ = flags.GetString("host")
	}

	port := cfg.Server.Port
	if flags.Changed("port") {
		port, _ = flags.GetInt("port")
	}

	corsOrigin := cfg.Server.CORSOrigin
	if flags.Changed("cors-origin") {
		corsOrigin, _ = flags.GetString("cors-origin")
	}

	maxUploadSize := cfg.Server.MaxUploadMB
	if flags.Changed("max-upload-size") {
		maxUploadSize, _ = flags.GetInt("max-upload-size")
	}

	timeout := cfg.Server.TimeoutSec
	if flags.Changed("timeout") {
		timeout, _ = flags.GetInt("timeout")
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if flags.Changed("shutdown-timeout") {
		shutdownTimeout, _ = flags.GetInt("shutdown-timeout")
	}

	fullMask := cfg.Output.FullMask
	if flags.Changed("full-mask") {
		fullMask, _ = flags.GetBool("full-mask")
	}

	if flags.Changed("workers") {
		cfg.Worker.MaxWorkers, _ = flags.GetInt("workers")
	}
	if flags.Changed("queue-size") {
		cfg.Worker.QueueSize, _ = flags.GetInt("queue-size")
	}

	rl := cfg.Server.RateLimit
	if flags.Changed("rate-limit-enabled") {
		rl.Enabled, _ = flags.GetBool("rate-limit-enabled")
	}
	if flags.Changed("requests-per-minute") {
		rl.RequestsPerMinute, _ = flags.GetInt("requests-per-minute")
	}
	if flags.Changed("requests-per-hour") {
		rl.RequestsPerHour, _ = flags.GetInt("requests-per-hour")
	}
	if flags.Changed("max-requests-per-day") {
		rl.MaxRequestsPerDay, _ = flags.GetInt("max-requests-per-day")
	}
	if flags.Changed("max-data-per-day") {
		rl.MaxDataPerDay, _ = flags.GetInt64("max-data-per-day")
	}

	if port < 1 || port > 65535 {
		return server.Config{}, 0, fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
	}
	if cfg.Worker.MaxWorkers <= 0 {
		return server.Config{}, 0, fmt.Errorf("invalid worker count: %d (must be positive)", cfg.Worker.MaxWorkers)
	}
	if timeout <= 0 {
		return server.Config{}, 0, fmt.Errorf("invalid timeout: %d (must be positive)", timeout)
	}

	return server.Config{
		Host:        host,
		Port:        port,
		CORSOrigin:  corsOrigin,
		MaxUploadMB: int64(maxUploadSize),
		TimeoutSec:  timeout,
		FullMask:    fullMask,
		Worker:      cfg.ToWorkerConfig(slog.Default(), nil),
		RateLimit: server.RateLimitConfig{
			Enabled:           rl.Enabled,
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			MaxRequestsPerDay: rl.MaxRequestsPerDay,
			MaxDataPerDay:     rl.MaxDataPerDay,
		},
		Logger: slog.Default(),
	}, time.Duration(shutdownTimeout) * time.Second, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 50, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 60, "segmentation wait timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("full-mask", false, "return image-sized masks from /segment by default")
	// Worker pool flags
	serveCmd.Flags().Int("workers", 0, "number of segmentation workers (default: number of CPUs)")
	serveCmd.Flags().Int("queue-size", 0, "pending task capacity (default: 4 per worker)")
	// Rate limiting flags
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 60, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 1000, "maximum requests per hour per client")
	serveCmd.Flags().Int("max-requests-per-day", 10000, "maximum requests per day per client")
	serveCmd.Flags().Int64("max-data-per-day", 1<<30, "maximum data uploaded per day per client (bytes)")
}
