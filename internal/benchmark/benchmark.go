// Package benchmark times the segmentation engine on synthetic scenarios and
// scores the masks it produces against the known answer.
package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/testutil"
)

// Timer measures a single named interval.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer starts a timer with the given name.
func NewTimer(name string) *Timer {
	return &Timer{name: name, start: time.Now()}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

func (t *Timer) String() string {
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64
	TotalAllocBytes uint64
	NumGC           uint32
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		NumGC:           m.NumGC,
	}
}

// Result holds the outcome of repeated runs of one scenario.
type Result struct {
	Name             string        `json:"name"`
	RegionPixels     int           `json:"region_pixels"`
	Repeats          int           `json:"repeats"`
	Duration         time.Duration `json:"duration_ns"`
	AllocatedBytes   uint64        `json:"allocated_bytes"`
	ForegroundPixels int           `json:"foreground_pixels"`
	Agreement        float64       `json:"agreement"`
	Error            string        `json:"error,omitempty"`
}

// Average returns the mean duration of one run.
func (r Result) Average() time.Duration {
	if r.Repeats == 0 {
		return 0
	}
	return r.Duration / time.Duration(r.Repeats)
}

func (r Result) String() string {
	if r.Error != "" {
		return fmt.Sprintf("%s: ERROR - %s", r.Name, r.Error)
	}
	return fmt.Sprintf("%s: %d px, %d runs, avg: %v, alloc/run: %d KB, agreement: %.4f",
		r.Name, r.RegionPixels, r.Repeats, r.Average(),
		r.AllocatedBytes/uint64(max(r.Repeats, 1))/1024, r.Agreement)
}

// DefaultScenarios returns the built-in scenarios, smallest first.
func DefaultScenarios() []testutil.Scenario {
	return []testutil.Scenario{
		testutil.RedSquareScenario(),
		testutil.NoisyBoxScenario(),
		LargeScenario(),
	}
}

// LargeScenario is a noisy 320x240 scene with a region around the subject.
func LargeScenario() testutil.Scenario {
	scene := testutil.SceneConfig{
		Size:       testutil.MediumSize,
		Background: testutil.White,
		Subject:    testutil.Blue,
		SubjectAt:  image.Rect(100, 60, 220, 180),
		Noise:      16,
		Seed:       11,
	}
	return testutil.Scenario{
		Name:        "large_box",
		Description: "noisy blue box on white in a medium image",
		Scene:       scene,
		Region:      image.Rect(80, 40, 240, 200),
		Foreground:  []image.Point{{160, 120}},
		Iterations:  5,
		Lambda:      50,
		Expected:    scene.SubjectAt,
	}
}

// Job converts a scenario into an engine job.
func Job(s testutil.Scenario) grabcut.Job {
	return grabcut.Job{
		TaskID:     s.Name,
		Image:      grabcut.FromNRGBA(testutil.GenerateScene(s.Scene)),
		Region:     grabcut.Rect{X: s.Region.Min.X, Y: s.Region.Min.Y, Width: s.Region.Dx(), Height: s.Region.Dy()},
		Foreground: toPoints(s.Foreground),
		Background: toPoints(s.Background),
		Iterations: s.Iterations,
		Lambda:     s.Lambda,
	}
}

// toPoints maps integer pixels to their centers.
func toPoints(pts []image.Point) []grabcut.Point {
	out := make([]grabcut.Point, len(pts))
	for i, p := range pts {
		out[i] = grabcut.Point{X: float64(p.X) + 0.5, Y: float64(p.Y) + 0.5}
	}
	return out
}

// Runner runs scenarios on one controller.
type Runner struct {
	ctrl *grabcut.Controller
}

// NewRunner creates a runner with the given engine options.
func NewRunner(opts grabcut.Options, logger *slog.Logger) *Runner {
	return &Runner{ctrl: grabcut.NewController(opts, nil, logger)}
}

// Run segments s repeats times. The image is generated once, outside the
// timed section.
func (r *Runner) Run(ctx context.Context, s testutil.Scenario, repeats int) Result {
	repeats = max(repeats, 1)
	res := Result{Name: s.Name, RegionPixels: s.Region.Dx() * s.Region.Dy(), Repeats: repeats}
	job := Job(s)

	runtime.GC()
	before := GetMemoryStats()
	timer := NewTimer(s.Name)
	var last *grabcut.Result
	for range repeats {
		out, err := r.ctrl.Run(ctx, job, nil)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		last = out
	}
	res.Duration = timer.Stop()
	res.AllocatedBytes = GetMemoryStats().TotalAllocBytes - before.TotalAllocBytes

	res.ForegroundPixels = last.ForegroundPixels
	agreement, err := testutil.MaskAgreement(last.Mask, s.ExpectedMask())
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Agreement = agreement
	return res
}

// RunAll runs every scenario in order and stops early when ctx ends.
func (r *Runner) RunAll(ctx context.Context, scenarios []testutil.Scenario, repeats int) []Result {
	results := make([]Result, 0, len(scenarios))
	for _, s := range scenarios {
		if ctx.Err() != nil {
			break
		}
		results = append(results, r.Run(ctx, s, repeats))
	}
	return results
}

// SelectScenarios keeps the scenarios whose names appear in names. An empty
// list keeps everything.
func SelectScenarios(all []testutil.Scenario, names []string) ([]testutil.Scenario, error) {
	if len(names) == 0 {
		return all, nil
	}
	var out []testutil.Scenario
	for _, name := range names {
		i := slices.IndexFunc(all, func(s testutil.Scenario) bool { return s.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		out = append(out, all[i])
	}
	return out, nil
}

// LoadScenarios reads every *.json scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]testutil.Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}
	slices.Sort(paths)
	out := make([]testutil.Scenario, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p) //nolint:gosec // G304: user-selected scenario directory
		if err != nil {
			return nil, fmt.Errorf("reading scenario: %w", err)
		}
		var s testutil.Scenario
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing scenario %s: %w", p, err)
		}
		if s.Name == "" {
			s.Name = strings.TrimSuffix(filepath.Base(p), ".json")
		}
		out = append(out, s)
	}
	return out, nil
}

// SaveScenario writes s as indented JSON to dir/<name>.json.
func SaveScenario(dir string, s testutil.Scenario) (string, error) {
	if s.Name == "" {
		return "", errors.New("scenario has no name")
	}
	if err := testutil.EnsureDir(dir); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, s.Name+".json")
	return path, os.WriteFile(path, data, 0o600)
}

// WriteCSV writes one row per result with a header.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Scenario", "Region_Pixels", "Runs", "Avg_ms", "Alloc_KB_per_run", "Foreground_Pixels", "Agreement", "Error"})
	for _, r := range results {
		_ = cw.Write([]string{
			r.Name,
			strconv.Itoa(r.RegionPixels),
			strconv.Itoa(r.Repeats),
			strconv.FormatFloat(float64(r.Average().Nanoseconds())/1e6, 'f', 2, 64),
			strconv.FormatUint(r.AllocatedBytes/uint64(max(r.Repeats, 1))/1024, 10),
			strconv.Itoa(r.ForegroundPixels),
			strconv.FormatFloat(r.Agreement, 'f', 4, 64),
			r.Error,
		})
	}
	cw.Flush()
	return cw.Error()
}
