package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MeKo-Tech/cutout/internal/config"
	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/maskops"
	"github.com/MeKo-Tech/cutout/internal/utils"
	"github.com/MeKo-Tech/cutout/internal/worker"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

// segmentCmd represents the segment command.
var segmentCmd = &cobra.Command{
	Use:   "segment <image>",
	Short: "Segment the foreground of an image into a mask",
	Long: `Segment the object inside a rectangle and write a grayscale mask
(255 = foreground, 0 = background).

Scribbles are given as "x,y;x,y" in image coordinates. Foreground scribbles
must lie inside the region; scribbles that cannot be used are dropped and
reported.

Examples:
  cutout segment photo.jpg --region 40,30,200,180
  cutout segment photo.jpg --region 40,30,200,180 --fg "120,110;130,90" --bg "45,35"
  cutout segment photo.jpg --region 40,30,200,180 --morph close --feather 1.5 --output mask.png
  cutout segment photo.jpg --region 40,30,200,180 --overlay preview.png --cutout object.png --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSegment,
}

// segmentOptions holds the resolved settings of one segment invocation.
type segmentOptions struct {
	region     grabcut.Rect
	foreground []grabcut.Point
	background []grabcut.Point
	iterations int
	lambda     float64
	fullMask   bool

	morph        maskops.MorphConfig
	featherSigma float64
	keepLargest  bool
	outputPath   string
	overlayPath  string
	cutoutPath   string
	format       string
	showProgress bool
}

// segmentSummary is what segment prints after writing its files.
type segmentSummary struct {
	TaskID           string       `json:"task_id"`
	Image            string       `json:"image"`
	Region           grabcut.Rect `json:"region"`
	Iterations       int          `json:"iterations"`
	Lambda           float64      `json:"lambda"`
	Width            int          `json:"width"`
	Height           int          `json:"height"`
	ForegroundPixels int          `json:"foreground_pixels"`
	DroppedScribbles int          `json:"dropped_scribbles"`
	Flow             float64      `json:"flow"`
	Beta             float64      `json:"beta"`
	Output           string       `json:"output"`
	Overlay          string       `json:"overlay,omitempty"`
	Cutout           string       `json:"cutout,omitempty"`
	DurationMs       int64        `json:"duration_ms"`
}

func runSegment(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	imagePath := args[0]

	opts, err := segmentOptionsFromFlags(cmd, cfg, imagePath)
	if err != nil {
		return err
	}

	start := time.Now()
	img, meta, err := utils.LoadImage(imagePath)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	engineImg, err := utils.ToEngineImage(img)
	if err != nil {
		return fmt.Errorf("failed to convert image: %w", err)
	}
	slog.Debug("Loaded image", "path", meta.Path, "format", meta.Format, "width", meta.Width, "height", meta.Height)

	job := grabcut.Job{
		TaskID:     worker.NewTaskID(),
		Image:      engineImg,
		Region:     opts.region,
		Foreground: opts.foreground,
		Background: opts.background,
		Iterations: opts.iterations,
		Lambda:     opts.lambda,
		FullMask:   opts.fullMask,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress worker.ProgressCallback = worker.NoOpProgressCallback{}
	if opts.showProgress {
		progress = worker.NewThrottledProgressCallback(
			worker.NewConsoleProgressCallback(cmd.ErrOrStderr(), ""), 50*time.Millisecond)
	}

	res, err := runJob(ctx, cfg, job, progress)
	if err != nil {
		return err
	}

	mask, err := postProcess(res.Mask, res.Width, res.Height, opts)
	if err != nil {
		return fmt.Errorf("failed to post-process mask: %w", err)
	}
	if err := utils.SaveMask(opts.outputPath, mask, res.Width, res.Height); err != nil {
		return fmt.Errorf("failed to write mask: %w", err)
	}

	if opts.overlayPath != "" {
		if err := writeOverlay(opts.overlayPath, img, mask, res, opts.fullMask); err != nil {
			return err
		}
	}
	if opts.cutoutPath != "" {
		cut, err := utils.ApplyMask(img, mask, res.Region)
		if err != nil {
			return fmt.Errorf("failed to apply mask: %w", err)
		}
		if err := imaging.Save(cut, opts.cutoutPath); err != nil {
			return fmt.Errorf("failed to write cutout: %w", err)
		}
	}

	summary := segmentSummary{
		TaskID:           res.TaskID,
		Image:            imagePath,
		Region:           res.Region,
		Iterations:       res.Iterations,
		Lambda:           opts.lambda,
		Width:            res.Width,
		Height:           res.Height,
		ForegroundPixels: grabcut.CountForeground(mask),
		DroppedScribbles: res.DroppedScribbles,
		Flow:             res.Flow,
		Beta:             res.Beta,
		Output:           opts.outputPath,
		Overlay:          opts.overlayPath,
		Cutout:           opts.cutoutPath,
		DurationMs:       time.Since(start).Milliseconds(),
	}
	return printSummary(cmd.OutOrStdout(), summary, opts.format)
}

// segmentOptionsFromFlags resolves flags against the configuration.
func segmentOptionsFromFlags(cmd *cobra.Command, cfg *config.Config, imagePath string) (segmentOptions, error) {
	opts := segmentOptions{
		iterations: cfg.Engine.Iterations,
		lambda:     cfg.Engine.Lambda,
		fullMask:   cfg.Output.FullMask,
		morph:      maskops.DefaultMorphConfig(),
		format:     "text",
	}

	regionStr, _ := cmd.Flags().GetString("region")
	if strings.TrimSpace(regionStr) == "" {
		return opts, errors.New("--region is required (x,y,width,height)")
	}
	var err error
	if opts.region, err = utils.ParseRect(regionStr); err != nil {
		return opts, err
	}

	fg, _ := cmd.Flags().GetString("fg")
	if opts.foreground, err = utils.ParsePoints(fg); err != nil {
		return opts, fmt.Errorf("--fg: %w", err)
	}
	bg, _ := cmd.Flags().GetString("bg")
	if opts.background, err = utils.ParsePoints(bg); err != nil {
		return opts, fmt.Errorf("--bg: %w", err)
	}

	if cmd.Flags().Changed("iterations") {
		opts.iterations, _ = cmd.Flags().GetInt("iterations")
	}
	if cmd.Flags().Changed("lambda") {
		opts.lambda, _ = cmd.Flags().GetFloat64("lambda")
	}
	if cmd.Flags().Changed("full") {
		opts.fullMask, _ = cmd.Flags().GetBool("full")
	}

	morphName, _ := cmd.Flags().GetString("morph")
	if opts.morph.Operation, err = maskops.ParseMorphOp(morphName); err != nil {
		return opts, fmt.Errorf("--morph: %w", err)
	}
	opts.morph.KernelSize, _ = cmd.Flags().GetInt("kernel")
	opts.morph.Iterations, _ = cmd.Flags().GetInt("morph-iterations")
	opts.featherSigma, _ = cmd.Flags().GetFloat64("feather")
	if opts.featherSigma < 0 {
		return opts, fmt.Errorf("--feather must not be negative, got %v", opts.featherSigma)
	}
	opts.keepLargest, _ = cmd.Flags().GetBool("largest")

	opts.outputPath, _ = cmd.Flags().GetString("output")
	if opts.outputPath == "" {
		opts.outputPath = defaultMaskPath(imagePath)
	}
	opts.overlayPath, _ = cmd.Flags().GetString("overlay")
	opts.cutoutPath, _ = cmd.Flags().GetString("cutout")

	opts.format, _ = cmd.Flags().GetString("format")
	if opts.format != "text" && opts.format != "json" {
		return opts, fmt.Errorf("unsupported format %q (must be text or json)", opts.format)
	}
	opts.showProgress, _ = cmd.Flags().GetBool("progress")
	return opts, nil
}

// defaultMaskPath puts the mask next to the image as <name>_mask.png.
func defaultMaskPath(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + "_mask.png"
}

// runJob runs job on a single-worker pool and waits for its terminal event.
// When ctx ends first the task is cancelled and its cancellation awaited.
func runJob(ctx context.Context, cfg *config.Config, job grabcut.Job, progress worker.ProgressCallback) (*grabcut.Result, error) {
	wc := cfg.ToWorkerConfig(slog.Default(), nil)
	wc.MaxWorkers = 1
	wc.QueueSize = 1
	pool := worker.NewPool(wc)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Close(closeCtx)
	}()

	iterations := job.Iterations
	if iterations <= 0 {
		iterations = pool.EngineOptions().Iterations
	}
	progress.OnStart(job.TaskID, iterations)

	done := make(chan worker.Event, 1)
	id, err := pool.Handle(worker.SegmentRequest{Job: job}, worker.CallbackSink(progress, func(ev worker.Event) {
		if worker.IsTerminal(ev) {
			done <- ev
		}
	}))
	if err != nil {
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}

	var ev worker.Event
	select {
	case ev = <-done:
	case <-ctx.Done():
		slog.Info("Interrupted, cancelling segmentation", "task_id", id)
		pool.Cancel(id)
		ev = <-done
	}

	switch e := ev.(type) {
	case worker.ResultEvent:
		return e.Segmentation, nil
	case worker.CancelledEvent:
		return nil, fmt.Errorf("segmentation %s: %w", id, grabcut.ErrCancelled)
	case worker.ErrorEvent:
		return nil, fmt.Errorf("segmentation failed: %w", e)
	default:
		return nil, fmt.Errorf("unexpected event %T", ev)
	}
}

// postProcess applies the optional mask operations in a fixed order:
// morphology, largest component, feathering.
func postProcess(mask []byte, width, height int, opts segmentOptions) ([]byte, error) {
	var err error
	if opts.morph.Operation != maskops.MorphNone {
		if mask, err = maskops.Morph(mask, width, height, opts.morph); err != nil {
			return nil, err
		}
	}
	if opts.keepLargest {
		if mask, err = maskops.KeepLargestComponent(mask, width, height); err != nil {
			return nil, err
		}
	}
	if opts.featherSigma > 0 {
		if mask, err = maskops.Feather(mask, width, height, opts.featherSigma); err != nil {
			return nil, err
		}
	}
	return mask, nil
}

// writeOverlay renders the mask over img. A region-sized mask is first
// placed into an image-sized one.
func writeOverlay(path string, img image.Image, mask []byte, res *grabcut.Result, full bool) error {
	if !full {
		b := img.Bounds()
		var err error
		if mask, err = utils.ExpandMask(mask, res.Region, b.Dx(), b.Dy()); err != nil {
			return fmt.Errorf("failed to expand mask: %w", err)
		}
	}
	preview, err := utils.Overlay(img, mask, res.Region, utils.DefaultOverlayConfig())
	if err != nil {
		return fmt.Errorf("failed to render overlay: %w", err)
	}
	if err := imaging.Save(preview, path); err != nil {
		return fmt.Errorf("failed to write overlay: %w", err)
	}
	return nil
}

func printSummary(w io.Writer, s segmentSummary, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	_, _ = fmt.Fprintf(w, "Mask written to %s (%dx%d)\n", s.Output, s.Width, s.Height)
	_, _ = fmt.Fprintf(w, "Region: %s, rounds: %d, lambda: %g\n", s.Region, s.Iterations, s.Lambda)
	_, _ = fmt.Fprintf(w, "Foreground pixels: %d\n", s.ForegroundPixels)
	if s.DroppedScribbles > 0 {
		_, _ = fmt.Fprintf(w, "Dropped scribbles: %d\n", s.DroppedScribbles)
	}
	if s.Overlay != "" {
		_, _ = fmt.Fprintf(w, "Overlay written to %s\n", s.Overlay)
	}
	if s.Cutout != "" {
		_, _ = fmt.Fprintf(w, "Cutout written to %s\n", s.Cutout)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(segmentCmd)

	segmentCmd.Flags().StringP("region", "r", "", "region containing the object as x,y,width,height (required)")
	segmentCmd.Flags().String("fg", "", `foreground scribbles as "x,y;x,y"`)
	segmentCmd.Flags().String("bg", "", `background scribbles as "x,y;x,y"`)
	segmentCmd.Flags().IntP("iterations", "n", 5, "number of estimate/cut rounds (default from config)")
	segmentCmd.Flags().Float64("lambda", 50, "smoothness weight (default from config)")
	segmentCmd.Flags().Bool("full", false, "write an image-sized mask instead of a region-sized one")

	segmentCmd.Flags().String("morph", "none", "morphological post-processing: none, dilate, erode, open, close")
	segmentCmd.Flags().Int("kernel", 3, "morphology kernel size")
	segmentCmd.Flags().Int("morph-iterations", 1, "morphology repetitions")
	segmentCmd.Flags().Bool("largest", false, "keep only the largest foreground component")
	segmentCmd.Flags().Float64("feather", 0, "feather mask edges with a Gaussian of this sigma (0 = off)")

	segmentCmd.Flags().StringP("output", "o", "", "mask output path (default <image>_mask.png)")
	segmentCmd.Flags().String("overlay", "", "write a preview with the background dimmed to this path")
	segmentCmd.Flags().String("cutout", "", "write the region with the mask as alpha to this path (PNG)")
	segmentCmd.Flags().StringP("format", "f", "text", "summary format: text or json")
	segmentCmd.Flags().Bool("progress", false, "show a progress bar on stderr")
}
