package cmd

import (
	"testing"
	"time"

	"github.com/MeKo-Tech/cutout/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setServeFlags(t *testing.T, kv map[string]string) {
	t.Helper()
	resetFlags(serveCmd)
	t.Cleanup(func() { resetFlags(serveCmd) })
	for k, v := range kv {
		require.NoError(t, serveCmd.Flags().Set(k, v))
	}
}

func TestServerConfigFromFlags_Defaults(t *testing.T) {
	setServeFlags(t, nil)
	cfg := config.DefaultConfig()

	sc, shutdown, err := serverConfigFromFlags(serveCmd, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "localhost", sc.Host)
	assert.Equal(t, 8080, sc.Port)
	assert.Equal(t, "*", sc.CORSOrigin)
	assert.Equal(t, int64(50), sc.MaxUploadMB)
	assert.Equal(t, 60, sc.TimeoutSec)
	assert.False(t, sc.FullMask)
	assert.False(t, sc.RateLimit.Enabled)
	assert.Equal(t, 10*time.Second, shutdown)
	assert.Equal(t, cfg.Worker.MaxWorkers, sc.Worker.MaxWorkers)
	assert.Equal(t, cfg.ToEngineOptions(), sc.Worker.Engine)
}

func TestServerConfigFromFlags_ConfigValues(t *testing.T) {
	setServeFlags(t, nil)
	cfg := config.DefaultConfig()
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 9000
	cfg.Output.FullMask = true
	cfg.Engine.Lambda = 12

	sc, _, err := serverConfigFromFlags(serveCmd, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", sc.Host)
	assert.Equal(t, 9000, sc.Port)
	assert.True(t, sc.FullMask)
	assert.InDelta(t, 12.0, sc.Worker.Engine.Lambda, 1e-9)
}

func TestServerConfigFromFlags_FlagsWin(t *testing.T) {
	setServeFlags(t, map[string]string{
		"host":                "127.0.0.1",
		"port":                "3000",
		"workers":             "3",
		"queue-size":          "7",
		"full-mask":           "true",
		"timeout":             "5",
		"shutdown-timeout":    "2",
		"rate-limit-enabled":  "true",
		"requests-per-minute": "9",
	})
	cfg := config.DefaultConfig()
	cfg.Server.Port = 9000

	sc, shutdown, err := serverConfigFromFlags(serveCmd, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", sc.Host)
	assert.Equal(t, 3000, sc.Port)
	assert.Equal(t, 3, sc.Worker.MaxWorkers)
	assert.Equal(t, 7, sc.Worker.QueueSize)
	assert.True(t, sc.FullMask)
	assert.Equal(t, 5, sc.TimeoutSec)
	assert.Equal(t, 2*time.Second, shutdown)
	assert.True(t, sc.RateLimit.Enabled)
	assert.Equal(t, 9, sc.RateLimit.RequestsPerMinute)
	assert.Equal(t, 1000, sc.RateLimit.RequestsPerHour)
}

func TestServerConfigFromFlags_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		flags map[string]string
		want  string
	}{
		{"port zero", map[string]string{"port": "0"}, "invalid port number"},
		{"port too large", map[string]string{"port": "70000"}, "invalid port number"},
		{"negative workers", map[string]string{"workers": "-1"}, "invalid worker count"},
		{"zero timeout", map[string]string{"timeout": "0"}, "invalid timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setServeFlags(t, tt.flags)
			cfg := config.DefaultConfig()
			_, _, err := serverConfigFromFlags(serveCmd, &cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
