package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	pool        *worker.Pool
	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
	fullMask    bool
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	FullMask    bool // default for POST /segment when the form omits "full"
	Worker      worker.Config
	RateLimit   RateLimitConfig
	Logger      *slog.Logger
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version,omitempty"`
	Time    string        `json:"time"`
	Workers *worker.Stats `json:"workers,omitempty"`
}

// SegmentResponse is the JSON body of a successful POST /segment.
type SegmentResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
	SegmentationStats
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Mask   []byte `json:"mask"`
}

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Success bool              `json:"success"`
	TaskID  string            `json:"task_id,omitempty"`
	Kind    grabcut.ErrorKind `json:"kind,omitempty"`
	Error   string            `json:"error"`
}

// NewServer creates a segmentation server and starts its worker pool.
func NewServer(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wc := config.Worker
	wc.Logger = logger
	if wc.Observer == nil {
		wc.Observer = metricsObserver{}
	}
	return newServerWithPool(config, worker.NewPool(wc), logger)
}

func newServerWithPool(config Config, pool *worker.Pool, logger *slog.Logger) *Server {
	timeout := time.Duration(config.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	maxUpload := config.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 50
	}
	return &Server{
		pool:        pool,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: maxUpload,
		timeout:     timeout,
		fullMask:    config.FullMask,
		rateLimiter: NewRateLimiterFromConfig(config.RateLimit),
		logger:      logger,
	}
}

// Pool returns the worker pool serving requests.
func (s *Server) Pool() *worker.Pool { return s.pool }

// Close cancels outstanding tasks and stops the worker pool.
func (s *Server) Close(ctx context.Context) error {
	return s.pool.Close(ctx)
}

// PruneClients periodically forgets rate limit state of clients idle for a
// day until ctx is done. It returns at once when rate limiting is disabled.
func (s *Server) PruneClients(ctx context.Context, interval time.Duration) {
	if s.rateLimiter == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.rateLimiter.Prune(24 * time.Hour); n > 0 {
				s.logger.Debug("Pruned idle rate limit clients", "count", n)
			}
		}
	}
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/segment", s.corsMiddleware(s.rateLimitMiddleware(s.segmentHandler)))
	mux.HandleFunc("/ws", s.corsMiddleware(s.rateLimitMiddleware(s.webSocketHandler)))
	mux.Handle("/metrics", promhttp.Handler())
}
