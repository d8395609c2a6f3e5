package server

import (
	"fmt"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/maskops"
	"github.com/MeKo-Tech/cutout/internal/worker"
)

// Message types on the /ws protocol.
const (
	MessageSegment   = "segment"
	MessageCancel    = "cancel"
	MessageMorph     = "morph"
	MessageFeather   = "feather"
	MessageProgress  = "progress"
	MessageResult    = "result"
	MessageCancelled = "cancelled"
	MessageError     = "error"
)

// WireImage is an RGBA image; Pixels is base64 in JSON.
type WireImage struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels []byte `json:"pixels"`
}

// WireMask is a one-byte-per-pixel mask; Pixels is base64 in JSON.
type WireMask struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels []byte `json:"pixels"`
}

// ClientMessage is any message a client sends, tagged by Type.
type ClientMessage struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`

	// segment
	Image      *WireImage      `json:"image,omitempty"`
	Region     *grabcut.Rect   `json:"region,omitempty"`
	Foreground []grabcut.Point `json:"foreground,omitempty"`
	Background []grabcut.Point `json:"background,omitempty"`
	Lambda     *float64        `json:"lambda,omitempty"`
	FullMask   bool            `json:"full_mask,omitempty"`

	// segment and morph
	Iterations int `json:"iterations,omitempty"`

	// morph and feather
	Mask       *WireMask `json:"mask,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	KernelSize int       `json:"kernel_size,omitempty"`
	Sigma      float64   `json:"sigma,omitempty"`
}

// SegmentationStats summarises a completed segmentation.
type SegmentationStats struct {
	Region           grabcut.Rect `json:"region"`
	Iterations       int          `json:"iterations"`
	ForegroundPixels int          `json:"foreground_pixels"`
	DroppedScribbles int          `json:"dropped_scribbles"`
	Flow             float64      `json:"flow"`
	Beta             float64      `json:"beta"`
}

// ProgressMessage reports a finished stage of a segmentation round.
type ProgressMessage struct {
	Type       string        `json:"type"`
	TaskID     string        `json:"task_id"`
	Stage      grabcut.Stage `json:"stage"`
	Iteration  int           `json:"iteration"`
	Iterations int           `json:"iterations"`
	Progress   float64       `json:"progress"`
	Overall    float64       `json:"overall"`
}

// ResultMessage carries the output mask of a task.
type ResultMessage struct {
	Type   string             `json:"type"`
	TaskID string             `json:"task_id"`
	Mask   WireMask           `json:"mask"`
	Stats  *SegmentationStats `json:"stats,omitempty"`
}

// CancelledMessage acknowledges a cancelled task.
type CancelledMessage struct {
	Type      string `json:"type"`
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}

// ErrorMessage reports a failed task or an unreadable client message.
type ErrorMessage struct {
	Type    string            `json:"type"`
	TaskID  string            `json:"task_id,omitempty"`
	Error   grabcut.ErrorKind `json:"error"`
	Message string            `json:"message"`
}

// ServerMessage is the union of all server messages, for clients that
// decode them without knowing the type up front.
type ServerMessage struct {
	Type       string             `json:"type"`
	TaskID     string             `json:"task_id"`
	Stage      grabcut.Stage      `json:"stage"`
	Iteration  int                `json:"iteration"`
	Iterations int                `json:"iterations"`
	Progress   float64            `json:"progress"`
	Overall    float64            `json:"overall"`
	Mask       *WireMask          `json:"mask"`
	Stats      *SegmentationStats `json:"stats"`
	Cancelled  bool               `json:"cancelled"`
	Error      grabcut.ErrorKind  `json:"error"`
	Message    string             `json:"message"`
}

// ToRequest converts a client message into a pool request. defaultLambda
// applies when a segment message carries no lambda.
func (m ClientMessage) ToRequest(defaultLambda float64) (worker.Request, error) {
	switch m.Type {
	case MessageSegment:
		if m.Image == nil {
			return nil, grabcut.NewRequestError("segment message has no image")
		}
		if m.Region == nil {
			return nil, grabcut.NewRequestError("segment message has no region")
		}
		lambda := defaultLambda
		if m.Lambda != nil {
			lambda = *m.Lambda
		}
		return worker.SegmentRequest{Job: grabcut.Job{
			TaskID:     m.TaskID,
			Image:      grabcut.Image{Width: m.Image.Width, Height: m.Image.Height, Pix: m.Image.Pixels},
			Region:     *m.Region,
			Foreground: m.Foreground,
			Background: m.Background,
			Iterations: m.Iterations,
			Lambda:     lambda,
			FullMask:   m.FullMask,
		}}, nil

	case MessageCancel:
		if m.TaskID == "" {
			return nil, grabcut.NewRequestError("cancel message has no task_id")
		}
		return worker.CancelRequest{ID: m.TaskID}, nil

	case MessageMorph:
		if m.Mask == nil {
			return nil, grabcut.NewRequestError("morph message has no mask")
		}
		op, err := maskops.ParseMorphOp(m.Operation)
		if err != nil {
			return nil, grabcut.NewRequestError(err.Error())
		}
		cfg := maskops.DefaultMorphConfig()
		cfg.Operation = op
		if m.KernelSize > 0 {
			cfg.KernelSize = m.KernelSize
		}
		if m.Iterations > 0 {
			cfg.Iterations = m.Iterations
		}
		return worker.MorphRequest{ID: m.TaskID, Mask: m.Mask.toMask(), Config: cfg}, nil

	case MessageFeather:
		if m.Mask == nil {
			return nil, grabcut.NewRequestError("feather message has no mask")
		}
		return worker.FeatherRequest{ID: m.TaskID, Mask: m.Mask.toMask(), Sigma: m.Sigma}, nil

	default:
		return nil, grabcut.NewRequestError(fmt.Sprintf("unsupported message type %q", m.Type))
	}
}

func (m *WireMask) toMask() worker.Mask {
	return worker.Mask{Width: m.Width, Height: m.Height, Pixels: m.Pixels}
}

// EncodeEvent converts a pool event into its wire message.
func EncodeEvent(ev worker.Event) any {
	switch e := ev.(type) {
	case worker.ProgressEvent:
		return ProgressMessage{
			Type:       MessageProgress,
			TaskID:     e.TaskID,
			Stage:      e.Stage,
			Iteration:  e.Iteration,
			Iterations: e.Iterations,
			Progress:   e.Progress.Progress,
			Overall:    e.Overall,
		}
	case worker.ResultEvent:
		msg := ResultMessage{
			Type:   MessageResult,
			TaskID: e.ID,
			Mask:   WireMask{Width: e.Mask.Width, Height: e.Mask.Height, Pixels: e.Mask.Pixels},
		}
		if res := e.Segmentation; res != nil {
			msg.Stats = &SegmentationStats{
				Region:           res.Region,
				Iterations:       res.Iterations,
				ForegroundPixels: res.ForegroundPixels,
				DroppedScribbles: res.DroppedScribbles,
				Flow:             res.Flow,
				Beta:             res.Beta,
			}
		}
		return msg
	case worker.CancelledEvent:
		return CancelledMessage{Type: MessageCancelled, TaskID: e.ID, Cancelled: true}
	case worker.ErrorEvent:
		return ErrorMessage{Type: MessageError, TaskID: e.ID, Error: e.Kind, Message: e.Message}
	default:
		return ErrorMessage{
			Type:    MessageError,
			TaskID:  ev.Task(),
			Error:   grabcut.KindComputation,
			Message: fmt.Sprintf("unknown event %T", ev),
		}
	}
}
