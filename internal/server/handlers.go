package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/utils"
	"github.com/MeKo-Tech/cutout/internal/version"
	"github.com/MeKo-Tech/cutout/internal/worker"
)

const (
	formatPNG  = "png"
	formatJSON = "json"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.pool.Stats()
	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
		Workers: &stats,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Error encoding health response", "error", err)
	}
}

// segmentHandler runs one segmentation on an uploaded image and waits for it.
func (s *Server) segmentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "", "", "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "", grabcut.KindInvalidRequest, "Failed to parse form data", http.StatusBadRequest)
		}
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "", grabcut.KindInvalidRequest, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	img, _, err := utils.DecodeImage(file)
	if err != nil {
		s.writeErrorResponse(w, "", grabcut.KindInvalidImage, "Invalid image format", http.StatusBadRequest)
		return
	}
	engineImg, err := utils.ToEngineImage(img)
	if err != nil {
		s.writeErrorResponse(w, "", grabcut.KindInvalidImage, err.Error(), http.StatusBadRequest)
		return
	}

	job, format, err := s.parseSegmentForm(r)
	if err != nil {
		s.writeErrorResponse(w, "", grabcut.KindInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}
	job.Image = engineImg

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	id, ev, err := s.submitAndWait(ctx, worker.SegmentRequest{Job: job})
	if err != nil {
		kind := grabcut.KindOf(err)
		s.writeErrorResponse(w, id, kind, err.Error(), statusForKind(kind))
		return
	}
	switch e := ev.(type) {
	case worker.ResultEvent:
		recordSegmentation(e.Segmentation)
		s.writeSegmentResult(w, id, e, format)
	case worker.ErrorEvent:
		s.writeErrorResponse(w, id, e.Kind, e.Message, statusForKind(e.Kind))
	case worker.CancelledEvent:
		s.writeErrorResponse(w, id, "", "Segmentation cancelled", http.StatusServiceUnavailable)
	case nil:
		s.writeErrorResponse(w, id, "", "Segmentation timed out", http.StatusGatewayTimeout)
	}
}

// submitAndWait hands req to the pool and returns its terminal event, or nil
// when ctx ends first. In that case the task is cancelled. A request the pool
// refuses outright is returned as an error.
func (s *Server) submitAndWait(ctx context.Context, req worker.Request) (string, worker.Event, error) {
	done := make(chan worker.Event, 1)
	id, err := s.pool.Handle(req, func(ev worker.Event) {
		if worker.IsTerminal(ev) {
			done <- ev
		}
	})
	if err != nil {
		return id, nil, err
	}

	select {
	case ev := <-done:
		return id, ev, nil
	case <-ctx.Done():
		s.pool.Cancel(id)
		s.logger.Warn("Request ended before segmentation finished", "task_id", id, "error", ctx.Err())
		return id, nil, nil
	}
}

// parseSegmentForm reads the segmentation parameters of a multipart form.
func (s *Server) parseSegmentForm(r *http.Request) (grabcut.Job, string, error) {
	job := grabcut.Job{
		TaskID:   r.FormValue("task_id"),
		Lambda:   s.pool.EngineOptions().Lambda,
		FullMask: s.fullMask,
	}

	region, err := parseRegionValue(r.FormValue("region"))
	if err != nil {
		return job, "", err
	}
	job.Region = region

	if job.Foreground, err = parsePointsValue(r.FormValue("foreground")); err != nil {
		return job, "", fmt.Errorf("foreground: %w", err)
	}
	if job.Background, err = parsePointsValue(r.FormValue("background")); err != nil {
		return job, "", fmt.Errorf("background: %w", err)
	}

	if v := r.FormValue("iterations"); v != "" {
		if job.Iterations, err = strconv.Atoi(v); err != nil {
			return job, "", fmt.Errorf("iterations: %w", err)
		}
	}
	if v := r.FormValue("lambda"); v != "" {
		if job.Lambda, err = strconv.ParseFloat(v, 64); err != nil {
			return job, "", fmt.Errorf("lambda: %w", err)
		}
	}
	if v := r.FormValue("full"); v != "" {
		if job.FullMask, err = strconv.ParseBool(v); err != nil {
			return job, "", fmt.Errorf("full: %w", err)
		}
	}

	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	if format == "" {
		format = formatPNG
	}
	if format != formatPNG && format != formatJSON {
		return job, "", fmt.Errorf("unsupported format %q", format)
	}
	return job, format, nil
}

// parseRegionValue accepts a JSON object or "x,y,width,height".
func parseRegionValue(v string) (grabcut.Rect, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return grabcut.Rect{}, errors.New("region is required")
	}
	if strings.HasPrefix(v, "{") {
		var r grabcut.Rect
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return grabcut.Rect{}, fmt.Errorf("region: %w", err)
		}
		return r, nil
	}
	return utils.ParseRect(v)
}

// parsePointsValue accepts a JSON array of {x,y} or "x,y;x,y".
func parsePointsValue(v string) ([]grabcut.Point, error) {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "[") {
		var pts []grabcut.Point
		if err := json.Unmarshal([]byte(v), &pts); err != nil {
			return nil, err
		}
		return pts, nil
	}
	return utils.ParsePoints(v)
}

func (s *Server) writeSegmentResult(w http.ResponseWriter, id string, ev worker.ResultEvent, format string) {
	res := ev.Segmentation
	if format == formatJSON {
		w.Header().Set("Content-Type", "application/json")
		response := SegmentResponse{
			Success: true,
			TaskID:  id,
			Width:   ev.Mask.Width,
			Height:  ev.Mask.Height,
			Mask:    ev.Mask.Pixels,
		}
		if res != nil {
			response.SegmentationStats = SegmentationStats{
				Region:           res.Region,
				Iterations:       res.Iterations,
				ForegroundPixels: res.ForegroundPixels,
				DroppedScribbles: res.DroppedScribbles,
				Flow:             res.Flow,
				Beta:             res.Beta,
			}
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			s.logger.Error("Error encoding segment response", "task_id", id, "error", err)
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Task-ID", id)
	if res != nil {
		w.Header().Set("X-Region", res.Region.String())
		w.Header().Set("X-Foreground-Pixels", strconv.Itoa(res.ForegroundPixels))
	}
	if err := utils.EncodeMaskPNG(w, ev.Mask.Pixels, ev.Mask.Width, ev.Mask.Height); err != nil {
		s.logger.Error("Error encoding mask", "task_id", id, "error", err)
	}
}

// statusForKind maps an error kind to an HTTP status.
func statusForKind(kind grabcut.ErrorKind) int {
	switch kind {
	case grabcut.KindInvalidRegion, grabcut.KindInvalidScribble, grabcut.KindInvalidImage, grabcut.KindInvalidRequest:
		return http.StatusBadRequest
	case grabcut.KindResourceExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, id string, kind grabcut.ErrorKind, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Success: false,
		TaskID:  id,
		Kind:    kind,
		Error:   message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Error writing error response", "error", err)
	}
}
