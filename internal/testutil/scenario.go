package testutil

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Scenario is a segmentation case with a known answer.
type Scenario struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Scene       SceneConfig     `json:"scene"`
	Region      image.Rectangle `json:"region"`
	Foreground  []image.Point   `json:"foreground,omitempty"`
	Background  []image.Point   `json:"background,omitempty"`
	Iterations  int             `json:"iterations"`
	Lambda      float64         `json:"lambda"`
	// Expected is the foreground area in image coordinates.
	Expected image.Rectangle `json:"expected"`
}

// ExpectedMask returns the region-sized mask the scenario should produce.
func (s Scenario) ExpectedMask() []byte {
	full := MaskFromRect(s.Scene.Size.Width, s.Scene.Size.Height, s.Expected)
	r := s.Region
	mask := make([]byte, 0, r.Dx()*r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		mask = append(mask, full[y*s.Scene.Size.Width+r.Min.X:y*s.Scene.Size.Width+r.Max.X]...)
	}
	return mask
}

// RedSquareScenario is a red square on a green border with one scribble of
// each class and a single round.
func RedSquareScenario() Scenario {
	scene := DefaultSceneConfig()
	return Scenario{
		Name:        "red_square",
		Description: "10x10 red square inside a 5px green border",
		Scene:       scene,
		Region:      image.Rect(0, 0, scene.Size.Width, scene.Size.Height),
		Foreground:  []image.Point{{10, 10}},
		Background:  []image.Point{{1, 1}},
		Iterations:  1,
		Lambda:      50,
		Expected:    scene.SubjectAt,
	}
}

// NoisyBoxScenario is a blue box on a gray background with noise and a region
// that leaves a background margin outside.
func NoisyBoxScenario() Scenario {
	scene := SceneConfig{
		Size:       SmallSize,
		Background: Gray,
		Subject:    Blue,
		SubjectAt:  image.Rect(20, 12, 44, 36),
		Noise:      12,
		Seed:       7,
	}
	return Scenario{
		Name:        "noisy_box",
		Description: "noisy blue box on gray, region with a thin margin",
		Scene:       scene,
		Region:      image.Rect(18, 10, 46, 38),
		Foreground:  []image.Point{{32, 24}},
		Iterations:  3,
		Lambda:      50,
		Expected:    scene.SubjectAt,
	}
}

// SaveScenario writes a scenario as JSON to path.
func SaveScenario(t *testing.T, s Scenario, path string) {
	t.Helper()

	require.NoError(t, EnsureDir(filepath.Dir(path)))
	data, err := json.MarshalIndent(s, "", "  ")
	require.NoError(t, err, "Failed to marshal scenario")
	require.NoError(t, os.WriteFile(path, data, 0o600), "Failed to write scenario")
}

// LoadScenario reads a scenario written by SaveScenario.
func LoadScenario(t *testing.T, path string) Scenario {
	t.Helper()

	data, err := os.ReadFile(path) //nolint:gosec // G304: test file path
	require.NoError(t, err, "Failed to read scenario %s", path)
	var s Scenario
	require.NoError(t, json.Unmarshal(data, &s), "Failed to parse scenario %s", path)
	return s
}
