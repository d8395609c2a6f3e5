package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/cutout/internal/benchmark"
	"github.com/MeKo-Tech/cutout/internal/testutil"
	"github.com/disintegration/imaging"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		generateImages    = flag.Bool("images", true, "Write the rendered scene of every scenario as PNG")
		generateScenarios = flag.Bool("scenarios", true, "Write scenario JSON files")
		outDir            = flag.String("out", "", "Output directory (default: <project root>/testdata/scenarios)")
		verbose           = flag.Bool("v", false, "Verbose output")
		help              = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate segmentation scenarios for cutout testing and benchmarking.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                     # Generate all test data\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -images=false       # Generate only scenario files\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -out /tmp/scenarios # Write somewhere else\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	dir := *outDir
	if dir == "" {
		root, err := testutil.GetProjectRoot()
		if err != nil {
			slog.Error("Failed to find project root", "error", err)
			os.Exit(1)
		}
		dir = filepath.Join(root, "testdata", "scenarios")
	}

	slog.Info("Starting test data generation...", "dir", dir)
	if err := generate(dir, *generateScenarios, *generateImages, *verbose); err != nil {
		slog.Error("Failed to generate test data", "error", err)
		os.Exit(1)
	}
	slog.Info("Test data generation completed successfully!")
}

// generate writes every built-in scenario, and optionally its rendered
// scene, into dir.
func generate(dir string, scenarios, images, verbose bool) error {
	if err := testutil.EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	for _, s := range benchmark.DefaultScenarios() {
		if scenarios {
			path, err := benchmark.SaveScenario(dir, s)
			if err != nil {
				return fmt.Errorf("failed to save scenario %s: %w", s.Name, err)
			}
			if verbose {
				slog.Info("Wrote scenario", "name", s.Name, "path", path)
			}
		}
		if images {
			path := filepath.Join(dir, s.Name+".png")
			if err := imaging.Save(testutil.GenerateScene(s.Scene), path); err != nil {
				return fmt.Errorf("failed to save scene %s: %w", s.Name, err)
			}
			if verbose {
				slog.Info("Wrote scene", "name", s.Name, "path", path)
			}
		}
	}
	return nil
}
