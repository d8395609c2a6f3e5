package support

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/testutil"
	"github.com/MeKo-Tech/cutout/internal/utils"
	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
)

// aRedSquareSceneImage writes the default 20x20 scene into the temp dir and
// makes it available as ${SCENE}.
func (testCtx *TestContext) aRedSquareSceneImage() error {
	return testCtx.aRedSquareSceneImageNamed("scene.png")
}

// aRedSquareSceneImageNamed writes the default scene in the format implied
// by name's extension.
func (testCtx *TestContext) aRedSquareSceneImageNamed(name string) error {
	path := filepath.Join(testCtx.TempDir, name)
	if err := imaging.Save(testutil.GenerateScene(testutil.DefaultSceneConfig()), path); err != nil {
		return fmt.Errorf("failed to write scene: %w", err)
	}
	testCtx.ScenePath = path
	return nil
}

// aNonImageFile writes a file that no decoder accepts.
func (testCtx *TestContext) aNonImageFile(name string) error {
	path := filepath.Join(testCtx.TempDir, name)
	if err := os.WriteFile(path, []byte("this is not an image"), 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	testCtx.ScenePath = path
	return nil
}

func (testCtx *TestContext) loadMask(path string) ([]byte, int, int, error) {
	img, _, err := utils.LoadImage(testCtx.resolvePath(path))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to load mask: %w", err)
	}
	mask, w, h := utils.MaskFromImage(img)
	return mask, w, h, nil
}

// theMaskShouldMatchTheRedSquare compares a 20x20 mask to the subject.
func (testCtx *TestContext) theMaskShouldMatchTheRedSquare(path string) error {
	mask, _, _, err := testCtx.loadMask(path)
	if err != nil {
		return err
	}
	want := testutil.RedSquareScenario().ExpectedMask()
	if !bytes.Equal(mask, want) {
		agreement, _ := testutil.MaskAgreement(mask, want)
		return fmt.Errorf("mask %s differs from the red square (agreement %.3f)", path, agreement)
	}
	return nil
}

// theMaskShouldBeSized checks mask dimensions.
func (testCtx *TestContext) theMaskShouldBeSized(path string, width, height int) error {
	_, w, h, err := testCtx.loadMask(path)
	if err != nil {
		return err
	}
	if w != width || h != height {
		return fmt.Errorf("mask %s is %dx%d, expected %dx%d", path, w, h, width, height)
	}
	return nil
}

// theMaskShouldHaveForegroundPixels counts 255 bytes in the mask.
func (testCtx *TestContext) theMaskShouldHaveForegroundPixels(path string, want int) error {
	mask, _, _, err := testCtx.loadMask(path)
	if err != nil {
		return err
	}
	if got := grabcut.CountForeground(mask); got != want {
		return fmt.Errorf("mask %s has %d foreground pixels, expected %d", path, got, want)
	}
	return nil
}

// RegisterSceneSteps registers image fixture and mask assertion steps.
func (testCtx *TestContext) RegisterSceneSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a red square scene image$`, testCtx.aRedSquareSceneImage)
	sc.Step(`^a red square scene image "([^"]*)"$`, testCtx.aRedSquareSceneImageNamed)
	sc.Step(`^a file "([^"]*)" that is not an image$`, testCtx.aNonImageFile)
	sc.Step(`^the mask "([^"]*)" should match the red square$`, testCtx.theMaskShouldMatchTheRedSquare)
	sc.Step(`^the mask "([^"]*)" should be (\d+)x(\d+)$`, testCtx.theMaskShouldBeSized)
	sc.Step(`^the mask "([^"]*)" should have (\d+) foreground pixels$`, testCtx.theMaskShouldHaveForegroundPixels)
}
