package grabcut

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/cutout/internal/testutil"
)

func newTestController(cancel Canceller) *Controller {
	return NewController(DefaultOptions(), cancel, nil)
}

func TestRun_RedSquareScenario(t *testing.T) {
	s := testutil.RedSquareScenario()
	res, err := newTestController(nil).Run(context.Background(), scenarioJob(s), nil)
	require.NoError(t, err)

	assert.Equal(t, s.ExpectedMask(), res.Mask)
	assert.Equal(t, 20, res.Width)
	assert.Equal(t, 20, res.Height)
	assert.Equal(t, 100, res.ForegroundPixels)
	assert.Equal(t, 1, res.Iterations)
	assert.Zero(t, res.DroppedScribbles)
	assert.Positive(t, res.Beta)
}

func TestRun_NoisyBoxScenario(t *testing.T) {
	s := testutil.NoisyBoxScenario()
	res, err := newTestController(nil).Run(context.Background(), scenarioJob(s), nil)
	require.NoError(t, err)

	require.Len(t, res.Mask, s.Region.Dx()*s.Region.Dy())
	agreement, err := testutil.MaskAgreement(s.ExpectedMask(), res.Mask)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, agreement, 0.97)
}

func TestRun_Deterministic(t *testing.T) {
	job := scenarioJob(testutil.NoisyBoxScenario())
	job.Foreground = nil

	c := newTestController(nil)
	first, err := c.Run(context.Background(), job, nil)
	require.NoError(t, err)
	second, err := c.Run(context.Background(), job, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Mask, second.Mask)
	assert.InDelta(t, first.Flow, second.Flow, 1e-9)
}

func TestRun_FullMask(t *testing.T) {
	s := testutil.NoisyBoxScenario()
	job := scenarioJob(s)
	job.FullMask = true

	res, err := newTestController(nil).Run(context.Background(), job, nil)
	require.NoError(t, err)
	require.Len(t, res.Mask, s.Scene.Size.Width*s.Scene.Size.Height)
	assert.Equal(t, s.Scene.Size.Width, res.Width)

	w := s.Scene.Size.Width
	for y := range s.Scene.Size.Height {
		for x := range w {
			if !toRect(s.Region).Contains(x, y) {
				require.Zero(t, res.Mask[y*w+x], "pixel (%d, %d) is outside the region", x, y)
			}
		}
	}
}

func TestRun_InvalidInputs(t *testing.T) {
	base := scenarioJob(testutil.RedSquareScenario())

	tests := []struct {
		name   string
		mutate func(*Job)
		want   error
	}{
		{"zero width region", func(j *Job) { j.Region.Width = 0 }, ErrInvalidRegion},
		{"region outside image", func(j *Job) { j.Region = Rect{30, 30, 5, 5} }, ErrInvalidRegion},
		{"short pixel buffer", func(j *Job) { j.Image.Pix = j.Image.Pix[:10] }, ErrInvalidImage},
		{"negative lambda", func(j *Job) { j.Lambda = -1 }, ErrInvalidRequest},
		{"too many iterations", func(j *Job) { j.Iterations = MaxIterations + 1 }, ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := base
			tt.mutate(&job)
			res, err := newTestController(nil).Run(context.Background(), job, nil)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
		})
	}
}

func TestRun_ClipsRegion(t *testing.T) {
	job := scenarioJob(testutil.RedSquareScenario())
	job.Region = Rect{-5, -5, 40, 40}

	res, err := newTestController(nil).Run(context.Background(), job, nil)
	require.NoError(t, err)
	assert.Equal(t, Rect{0, 0, 20, 20}, res.Region)
	assert.Len(t, res.Mask, 400)
}

func TestRun_ForegroundOutsideRegionIsDropped(t *testing.T) {
	job := scenarioJob(testutil.RedSquareScenario())
	job.Region = Rect{2, 2, 16, 16}
	job.Foreground = append(job.Foreground, Point{X: 0.5, Y: 0.5})

	res, err := newTestController(nil).Run(context.Background(), job, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DroppedScribbles)
	assert.Len(t, res.Mask, 16*16)
}

func TestRun_ResourceExhausted(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRegionPixels = 99
	c := NewController(opts, nil, nil)

	_, err := c.Run(context.Background(), scenarioJob(testutil.RedSquareScenario()), nil)
	require.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, KindResourceExhausted, KindOf(err))
}

func TestNewController_ClampsRegionLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRegionPixels = math.MaxInt
	assert.Equal(t, RegionPixelsLimit, NewController(opts, nil, nil).Options().MaxRegionPixels)

	opts.MaxRegionPixels = RegionPixelsLimit - 1
	assert.Equal(t, RegionPixelsLimit-1, NewController(opts, nil, nil).Options().MaxRegionPixels)
}

func TestRun_DefaultIterations(t *testing.T) {
	job := scenarioJob(testutil.RedSquareScenario())
	job.Iterations = 0

	var events []Progress
	res, err := newTestController(nil).Run(context.Background(), job, func(p Progress) { events = append(events, p) })
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions().Iterations, res.Iterations)
	assert.Len(t, events, 4*DefaultOptions().Iterations)
}

func TestRun_ProgressOrder(t *testing.T) {
	job := scenarioJob(testutil.RedSquareScenario())
	job.Iterations = 2

	var events []Progress
	_, err := newTestController(nil).Run(context.Background(), job, func(p Progress) { events = append(events, p) })
	require.NoError(t, err)

	stages := []Stage{StageStats, StageGraph, StageCut, StageRelabel}
	require.Len(t, events, 8)
	last := 0.0
	for i, ev := range events {
		assert.Equal(t, job.TaskID, ev.TaskID)
		assert.Equal(t, stages[i%4], ev.Stage)
		assert.Equal(t, i/4, ev.Iteration)
		assert.Equal(t, 2, ev.Iterations)
		assert.Greater(t, ev.Overall, last)
		assert.LessOrEqual(t, ev.Progress, 1.0)
		last = ev.Overall
	}
	assert.InDelta(t, 1.0, last, 1e-12)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	job := scenarioJob(testutil.RedSquareScenario())
	c := newTestController(cancelSet{job.TaskID: true})

	events := 0
	res, err := c.Run(context.Background(), job, func(Progress) { events++ })
	require.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, res)
	assert.Zero(t, events)
}

func TestRun_CancelledOtherTaskUnaffected(t *testing.T) {
	job := scenarioJob(testutil.RedSquareScenario())
	c := newTestController(cancelSet{"someone-else": true})

	res, err := c.Run(context.Background(), job, nil)
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestRun_CancelledBetweenRounds(t *testing.T) {
	job := scenarioJob(testutil.RedSquareScenario())
	job.Iterations = 3
	cancel := cancelSet{}
	c := newTestController(cancel)

	var events []Progress
	res, err := c.Run(context.Background(), job, func(p Progress) {
		events = append(events, p)
		if p.Stage == StageRelabel && p.Iteration == 0 {
			cancel[job.TaskID] = true
		}
	})
	require.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, res)
	require.Len(t, events, 4)
	assert.Equal(t, 0, events[3].Iteration)
}

func TestRun_CancelledAfterFinalRound(t *testing.T) {
	job := scenarioJob(testutil.RedSquareScenario())
	cancel := cancelSet{}
	c := newTestController(cancel)

	res, err := c.Run(context.Background(), job, func(p Progress) {
		if p.Stage == StageRelabel {
			cancel[job.TaskID] = true
		}
	})
	require.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, res)
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestController(nil).Run(ctx, scenarioJob(testutil.RedSquareScenario()), nil)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestRun_PanicBecomesComputationError(t *testing.T) {
	job := scenarioJob(testutil.RedSquareScenario())
	res, err := newTestController(nil).Run(context.Background(), job, func(Progress) { panic("progress sink failed") })
	require.ErrorIs(t, err, ErrComputation)
	assert.Nil(t, res)
}
