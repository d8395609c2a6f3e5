package server

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/cutout/internal/testutil"
	"github.com/MeKo-Tech/cutout/internal/worker"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer starts a server with a small pool that is closed with the test.
func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Logger = discardLogger()
	if cfg.Worker.MaxWorkers == 0 {
		cfg.Worker = worker.DefaultConfig()
		cfg.Worker.MaxWorkers = 2
	}
	s := NewServer(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

// gateObserver holds every task in TaskStarted until the gate is opened.
type gateObserver struct {
	gate    chan struct{}
	started chan string
	once    sync.Once
}

func newGateObserver() *gateObserver {
	return &gateObserver{gate: make(chan struct{}), started: make(chan string, 16)}
}

func (g *gateObserver) TaskQueued(string) {}

func (g *gateObserver) TaskStarted(kind string, _ time.Duration) {
	g.started <- kind
	<-g.gate
}

func (g *gateObserver) TaskFinished(string, worker.Outcome, time.Duration) {}

func (g *gateObserver) open() { g.once.Do(func() { close(g.gate) }) }

// newGatedServer returns a single-worker server whose tasks wait for the gate.
func newGatedServer(t *testing.T, cfg Config) (*Server, *gateObserver) {
	t.Helper()
	gate := newGateObserver()
	cfg.Worker = worker.DefaultConfig()
	cfg.Worker.MaxWorkers = 1
	cfg.Worker.Observer = gate
	s := newTestServer(t, cfg)
	t.Cleanup(gate.open)
	return s, gate
}

// newHTTPServer serves s's routes over a real listener.
func newHTTPServer(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

// scenePNG encodes the default red-square scene.
func scenePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testutil.GenerateScene(testutil.DefaultSceneConfig())))
	return buf.Bytes()
}

// segmentRequest builds a multipart POST /segment request.
func segmentRequest(t *testing.T, imageData []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if imageData != nil {
		fw, err := mw.CreateFormFile("image", "scene.png")
		require.NoError(t, err)
		_, err = fw.Write(imageData)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/segment", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// redSquareFields are the form fields of the red-square scenario.
func redSquareFields() map[string]string {
	return map[string]string{
		"region":     "0,0,20,20",
		"foreground": `[{"x":10.5,"y":10.5}]`,
		"background": "1.5,1.5",
		"iterations": "1",
		"lambda":     "50",
	}
}
