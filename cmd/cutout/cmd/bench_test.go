package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/cutout/internal/benchmark"
	"github.com/MeKo-Tech/cutout/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBenchCommand_Text(t *testing.T) {
	out, _, err := execute(t, "bench", "--only", "red_square", "--repeat", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "segmentation benchmark")
	assert.Contains(t, out, "red_square: 400 px, 1 runs")
	assert.Contains(t, out, "agreement: 1.0000")
}

func TestBenchCommand_JSONFromScenarioDir(t *testing.T) {
	dir := t.TempDir()
	_, err := benchmark.SaveScenario(dir, testutil.RedSquareScenario())
	require.NoError(t, err)

	out, _, err := execute(t, "bench", "--scenarios", dir, "--repeat", "2", "--format", "json")
	require.NoError(t, err)

	var results []benchmark.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "red_square", results[0].Name)
	assert.Equal(t, 2, results[0].Repeats)
	assert.Equal(t, 100, results[0].ForegroundPixels)
}

func TestBenchCommand_CSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.csv")
	out, _, err := execute(t, "bench", "--only", "red_square", "--repeat", "1", "--format", "csv", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Results saved to: "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Scenario,Region_Pixels")
	assert.Contains(t, string(data), "red_square,400,1,")
}

func TestBenchCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad repeat", []string{"bench", "--repeat", "0"}, "--repeat"},
		{"bad format", []string{"bench", "--format", "xml"}, "unsupported format"},
		{"unknown scenario", []string{"bench", "--only", "nope"}, "unknown scenario"},
		{"empty dir", []string{"bench", "--scenarios", t.TempDir()}, "no scenarios"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
