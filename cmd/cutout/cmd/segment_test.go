package cmd

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/maskops"
	"github.com/MeKo-Tech/cutout/internal/testutil"
	"github.com/MeKo-Tech/cutout/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScene(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return dir, testutil.WriteScene(t, dir, "scene.png", testutil.DefaultSceneConfig())
}

func loadMask(t *testing.T, path string) ([]byte, int, int) {
	t.Helper()
	img, _, err := utils.LoadImage(path)
	require.NoError(t, err)
	return utils.MaskFromImage(img)
}

func TestSegmentCommand_RedSquare(t *testing.T) {
	dir, scene := writeScene(t)
	out := filepath.Join(dir, "mask.png")

	stdout, _, err := execute(t, "segment", scene,
		"--region", "0,0,20,20", "--fg", "10.5,10.5", "--bg", "1.5,1.5",
		"--iterations", "1", "--lambda", "50", "--output", out, "--format", "json")
	require.NoError(t, err)

	var summary segmentSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.Equal(t, out, summary.Output)
	assert.Equal(t, 1, summary.Iterations)
	assert.Equal(t, 100, summary.ForegroundPixels)
	assert.Equal(t, grabcut.Rect{Width: 20, Height: 20}, summary.Region)
	assert.NotEmpty(t, summary.TaskID)

	mask, w, h := loadMask(t, out)
	assert.Equal(t, 20, w)
	assert.Equal(t, 20, h)
	assert.Equal(t, testutil.RedSquareScenario().ExpectedMask(), mask)
}

func TestSegmentCommand_PostProcessingAndPreviews(t *testing.T) {
	dir, scene := writeScene(t)
	out := filepath.Join(dir, "mask.png")
	overlay := filepath.Join(dir, "overlay.png")
	cutout := filepath.Join(dir, "cutout.png")

	stdout, stderr, err := execute(t, "segment", scene,
		"--region", "2,2,16,16", "--fg", "10,10", "--iterations", "2",
		"--morph", "dilate", "--full", "--progress",
		"--output", out, "--overlay", overlay, "--cutout", cutout)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Mask written to")
	assert.Contains(t, stdout, "Foreground pixels: 144")
	assert.Contains(t, stderr, "Completed")

	mask, w, h := loadMask(t, out)
	assert.Equal(t, 20, w)
	assert.Equal(t, 20, h)
	assert.Equal(t, testutil.MaskFromRect(20, 20, image.Rect(4, 4, 16, 16)), mask)

	assert.FileExists(t, overlay)
	img, _, err := utils.LoadImage(cutout)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
}

func TestSegmentCommand_DefaultOutputPath(t *testing.T) {
	dir, scene := writeScene(t)

	_, _, err := execute(t, "segment", scene, "--region", "0,0,20,20", "--fg", "10,10", "-n", "1")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "scene_mask.png"))
}

func TestSegmentCommand_Errors(t *testing.T) {
	_, scene := writeScene(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing region", []string{"segment", scene}, "--region is required"},
		{"malformed region", []string{"segment", scene, "--region", "1,2"}, ""},
		{"malformed scribbles", []string{"segment", scene, "--region", "0,0,5,5", "--fg", "a,b"}, "--fg"},
		{"unknown morph", []string{"segment", scene, "--region", "0,0,5,5", "--morph", "twist"}, "--morph"},
		{"negative feather", []string{"segment", scene, "--region", "0,0,5,5", "--feather", "-1"}, "--feather"},
		{"bad format", []string{"segment", scene, "--region", "0,0,5,5", "--format", "xml"}, "unsupported format"},
		{"missing image", []string{"segment", filepath.Join(t.TempDir(), "none.png"), "--region", "0,0,5,5"}, "failed to load image"},
		{"region outside", []string{"segment", scene, "--region", "40,40,5,5"}, "segmentation failed"},
		{"no args", []string{"segment"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestSegmentCommand_RegionErrorKind(t *testing.T) {
	_, scene := writeScene(t)
	_, _, err := execute(t, "segment", scene, "--region", "40,40,5,5")
	require.Error(t, err)
	assert.ErrorIs(t, err, grabcut.ErrInvalidRegion)
}

func TestDefaultMaskPath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b_mask.png"), defaultMaskPath(filepath.Join("a", "b.jpg")))
	assert.Equal(t, "photo_mask.png", defaultMaskPath("photo"))
}

func TestPostProcess(t *testing.T) {
	// Two islands: a 2x2 block and a single pixel.
	mask := []byte{
		255, 255, 0, 0,
		255, 255, 0, 0,
		0, 0, 0, 255,
	}
	opts := segmentOptions{morph: maskops.DefaultMorphConfig(), keepLargest: true}
	out, err := postProcess(mask, 4, 3, opts)
	require.NoError(t, err)
	assert.Equal(t, 4, grabcut.CountForeground(out))
	assert.Zero(t, out[11])

	opts = segmentOptions{morph: maskops.DefaultMorphConfig(), featherSigma: 1}
	out, err = postProcess(mask, 4, 3, opts)
	require.NoError(t, err)
	assert.Len(t, out, 12)

	_, err = postProcess(mask, 5, 3, segmentOptions{keepLargest: true})
	assert.Error(t, err)
}

func TestMain(m *testing.M) {
	// Keep config lookups away from the developer's files.
	home, err := os.MkdirTemp("", "cutout-cmd-test-*")
	if err != nil {
		panic(err)
	}
	_ = os.Setenv("HOME", home)
	_ = os.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	code := m.Run()
	_ = os.RemoveAll(home)
	os.Exit(code)
}
