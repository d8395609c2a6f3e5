package grabcut

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"time"

	"github.com/MeKo-Tech/cutout/internal/maxflow"
)

// MaxIterations bounds the number of rounds a single job may request.
const MaxIterations = 100

// RegionPixelsLimit is the largest region the graph can index. Each pixel
// adds up to four edges of two arcs each.
const RegionPixelsLimit = maxflow.MaxArcs / 8

// Stage tags the step of a round a progress event refers to.
type Stage string

const (
	StageStats   Stage = "stats"
	StageGraph   Stage = "graph"
	StageCut     Stage = "cut"
	StageRelabel Stage = "relabel"
)

var stageFraction = map[Stage]float64{
	StageStats:   0.25,
	StageGraph:   0.5,
	StageCut:     0.75,
	StageRelabel: 1,
}

// Progress is emitted once per stage per round.
type Progress struct {
	TaskID     string  `json:"task_id"`
	Stage      Stage   `json:"stage"`
	Iteration  int     `json:"iteration"`
	Iterations int     `json:"iterations"`
	Progress   float64 `json:"progress"`
	Overall    float64 `json:"overall"`
}

// ProgressFunc receives progress events synchronously on the solving goroutine.
type ProgressFunc func(Progress)

// Canceller reports whether a task has been asked to stop.
type Canceller interface {
	IsCancelled(taskID string) bool
}

// Controller runs segmentation jobs. A Controller holds no per-job state and
// may be shared, but each Run is single-threaded.
type Controller struct {
	opts   Options
	cancel Canceller
	logger *slog.Logger
}

// NewController creates a controller. cancel may be nil when jobs are never
// cancelled; logger defaults to slog.Default().
func NewController(opts Options, cancel Canceller, logger *slog.Logger) *Controller {
	def := DefaultOptions()
	if opts.Iterations <= 0 {
		opts.Iterations = def.Iterations
	}
	if opts.Lambda < 0 || math.IsNaN(opts.Lambda) {
		opts.Lambda = def.Lambda
	}
	if opts.MaxRegionPixels <= 0 {
		opts.MaxRegionPixels = def.MaxRegionPixels
	}
	opts.MaxRegionPixels = min(opts.MaxRegionPixels, RegionPixelsLimit)
	if opts.BetaStride <= 0 {
		opts.BetaStride = def.BetaStride
	}
	if !(opts.VarianceFloor > 0) {
		opts.VarianceFloor = def.VarianceFloor
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{opts: opts, cancel: cancel, logger: logger}
}

// Options returns the effective options.
func (c *Controller) Options() Options { return c.opts }

func (c *Controller) cancelled(ctx context.Context, taskID string) bool {
	if ctx.Err() != nil {
		return true
	}
	return c.cancel != nil && c.cancel.IsCancelled(taskID)
}

// Run executes job. Cancellation is checked before every round and once more
// after the last one; a cancelled job returns ErrCancelled and no result.
func (c *Controller) Run(ctx context.Context, job Job, progress ProgressFunc) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Segmentation panicked", "task_id", job.TaskID, "panic", r, "stack", string(debug.Stack()))
			result = nil
			err = NewComputationError("internal failure", fmt.Errorf("panic: %v", r))
		}
	}()

	if err := job.Image.Validate(); err != nil {
		return nil, err
	}
	region, err := ClipRegion(job.Region, job.Image.Width, job.Image.Height)
	if err != nil {
		return nil, err
	}
	if region != job.Region {
		c.logger.Debug("Clipped region to image bounds", "task_id", job.TaskID,
			"requested", job.Region.String(), "clipped", region.String())
	}
	if area := region.Area(); area > c.opts.MaxRegionPixels {
		return nil, NewResourceError(fmt.Sprintf("region of %d pixels exceeds the limit of %d", area, c.opts.MaxRegionPixels))
	}

	iterations := job.Iterations
	if iterations <= 0 {
		iterations = c.opts.Iterations
	}
	if iterations > MaxIterations {
		return nil, NewRequestError(fmt.Sprintf("iterations %d exceeds the limit of %d", iterations, MaxIterations))
	}
	if job.Lambda < 0 || math.IsNaN(job.Lambda) || math.IsInf(job.Lambda, 0) {
		return nil, NewRequestError(fmt.Sprintf("lambda must be a finite non-negative number, got %v", job.Lambda))
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	start := time.Now()
	labels := NewLabelGrid(job.Image.Width, job.Image.Height, region)
	dropped := labels.ApplyScribbles(region, job.Foreground, job.Background, c.logger.With("task_id", job.TaskID))

	builder := NewBuilder(job.Image, region, c.opts.BetaStride)
	graph := maxflow.New(0, 0)
	defer graph.Release()

	report := func(stage Stage, round int) {
		frac := stageFraction[stage]
		progress(Progress{
			TaskID:     job.TaskID,
			Stage:      stage,
			Iteration:  round,
			Iterations: iterations,
			Progress:   frac,
			Overall:    (float64(round) + frac) / float64(iterations),
		})
	}

	var flow float64
	for round := range iterations {
		if c.cancelled(ctx, job.TaskID) {
			c.logger.Info("Segmentation cancelled", "task_id", job.TaskID, "round", round)
			return nil, ErrCancelled
		}

		fg, bg := EstimateStats(job.Image, labels, c.opts.VarianceFloor)
		report(StageStats, round)

		info, err := builder.Build(graph, labels, fg, bg, job.Lambda)
		if err != nil {
			return nil, err
		}
		report(StageGraph, round)

		flow, err = graph.MaxFlow(builder.Source(), builder.Sink())
		if err != nil {
			return nil, NewComputationError("max-flow failed", err)
		}
		report(StageCut, round)

		changed := builder.Relabel(graph, labels)
		report(StageRelabel, round)

		stats := graph.Stats()
		c.logger.Debug("Round complete",
			"task_id", job.TaskID,
			"round", round,
			"fg_pixels", fg.Count,
			"bg_pixels", bg.Count,
			"edges", info.NeighborEdges+info.TerminalEdges,
			"flow", flow,
			"phases", stats.Phases,
			"changed", changed)
	}

	if c.cancelled(ctx, job.TaskID) {
		c.logger.Info("Segmentation cancelled after final round", "task_id", job.TaskID)
		return nil, ErrCancelled
	}

	mask := ExtractMask(labels, region, job.FullMask)
	result = &Result{
		TaskID:           job.TaskID,
		Mask:             mask,
		Width:            region.Width,
		Height:           region.Height,
		Region:           region,
		Iterations:       iterations,
		ForegroundPixels: CountForeground(mask),
		DroppedScribbles: dropped,
		Flow:             flow,
		Beta:             builder.Beta(),
	}
	if job.FullMask {
		result.Width, result.Height = job.Image.Width, job.Image.Height
	}

	c.logger.Info("Segmentation complete",
		"task_id", job.TaskID,
		"region", region.String(),
		"iterations", iterations,
		"foreground_pixels", result.ForegroundPixels,
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// IsCancelled reports whether err marks a cancelled job.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
