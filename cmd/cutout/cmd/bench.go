package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/MeKo-Tech/cutout/internal/benchmark"
	"github.com/spf13/cobra"
)

// benchCmd times the engine on synthetic scenarios.
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark segmentation on synthetic scenarios",
	Long: `Run the segmentation engine on synthetic scenes with a known answer and
report the average run time, allocations and how closely each mask matches
the expected foreground.

Scenarios are the built-in ones unless --scenarios names a directory of
scenario JSON files (as written by generate-test-data).

Examples:
  cutout bench
  cutout bench --repeat 10 --only red_square,noisy_box
  cutout bench --scenarios testdata/scenarios --format csv --output bench.csv`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	repeat, _ := cmd.Flags().GetInt("repeat")
	only, _ := cmd.Flags().GetString("only")
	dir, _ := cmd.Flags().GetString("scenarios")
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")

	if repeat < 1 {
		return fmt.Errorf("--repeat must be positive, got %d", repeat)
	}
	switch format {
	case "text", "json", "csv":
	default:
		return fmt.Errorf("unsupported format %q (must be text, json or csv)", format)
	}

	scenarios := benchmark.DefaultScenarios()
	if dir != "" {
		var err error
		if scenarios, err = benchmark.LoadScenarios(dir); err != nil {
			return err
		}
	}
	var names []string
	if only != "" {
		names = strings.Split(only, ",")
	}
	scenarios, err := benchmark.SelectScenarios(scenarios, names)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	slog.Info("Running benchmark", "scenarios", len(scenarios), "repeat", repeat)
	results := benchmark.NewRunner(cfg.ToEngineOptions(), slog.Default()).RunAll(ctx, scenarios, repeat)

	w := cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output) //nolint:gosec // G304: user-selected output path
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err := writeBenchResults(w, results, format); err != nil {
		return err
	}
	if output != "" {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Results saved to: %s\n", output)
	}

	for _, r := range results {
		if r.Error != "" {
			return fmt.Errorf("scenario %s failed: %s", r.Name, r.Error)
		}
	}
	return nil
}

func writeBenchResults(w io.Writer, results []benchmark.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "csv":
		return benchmark.WriteCSV(w, results)
	default:
		_, _ = fmt.Fprintln(w, "cutout segmentation benchmark")
		_, _ = fmt.Fprintln(w, "=============================")
		for _, r := range results {
			_, _ = fmt.Fprintln(w, r.String())
		}
		return nil
	}
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().Int("repeat", 3, "runs per scenario")
	benchCmd.Flags().String("only", "", "comma-separated scenario names to run")
	benchCmd.Flags().String("scenarios", "", "directory of scenario JSON files (default: built-in scenarios)")
	benchCmd.Flags().StringP("format", "f", "text", "output format: text, json or csv")
	benchCmd.Flags().StringP("output", "o", "", "write results to this file instead of stdout")
}
