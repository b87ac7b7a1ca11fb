package gesture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/holla2040/droidscript/internal/actuator"
)

// ClickOptions shape a single human tap.
type ClickOptions struct {
	Offset   Range `yaml:"offset"`
	Delay    Range `yaml:"delay"`
	Duration Range `yaml:"duration"`
}

// DoubleClickOptions shape two taps on the same spot.
type DoubleClickOptions struct {
	Offset   Range `yaml:"offset"`
	Interval Range `yaml:"interval"`
	Duration Range `yaml:"duration"`
}

// LongPressOptions shape a press and hold.
type LongPressOptions struct {
	Duration Range `yaml:"duration"`
	Offset   Range `yaml:"offset"`
	Delay    Range `yaml:"delay"`
}

// DragOptions shape a drag from one point to another.
type DragOptions struct {
	Trajectory Trajectory `yaml:"trajectory"`
	Speed      SpeedMode  `yaml:"speed"`
	Duration   float64    `yaml:"duration"` // seconds
	NumPoints  int        `yaml:"num_points"`
	Offset     Range      `yaml:"offset"`
	Jitter     Range      `yaml:"jitter"`
	Delay      Range      `yaml:"delay"`
}

func DefaultClickOptions() ClickOptions {
	return ClickOptions{Offset: R(3, 10), Delay: R(0.05, 0.3), Duration: R(0.05, 0.15)}
}

func DefaultDoubleClickOptions() DoubleClickOptions {
	return DoubleClickOptions{Offset: R(3, 8), Interval: R(0.1, 0.2), Duration: R(0.03, 0.08)}
}

func DefaultLongPressOptions() LongPressOptions {
	return LongPressOptions{Duration: R(0.8, 1.5), Offset: R(3, 10), Delay: R(0.05, 0.2)}
}

func DefaultDragOptions() DragOptions {
	return DragOptions{
		Trajectory: Bezier,
		Speed:      EaseInOut,
		Duration:   1.0,
		NumPoints:  50,
		Offset:     R(3, 10),
		Jitter:     R(1, 5),
		Delay:      R(0.05, 0.2),
	}
}

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Humanizer performs taps and drags on an actuator with randomized
// placement and timing.
type Humanizer struct {
	act    actuator.Actuator
	synth  *Synthesizer
	sleep  SleepFunc
	logger *zap.Logger
}

// Option configures a Humanizer.
type Option func(*Humanizer)

// WithSynthesizer sets the random source, for reproducible gestures.
func WithSynthesizer(s *Synthesizer) Option {
	return func(h *Humanizer) { h.synth = s }
}

// WithSleep replaces the wait between steps.
func WithSleep(fn SleepFunc) Option {
	return func(h *Humanizer) { h.sleep = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Humanizer) { h.logger = l }
}

// NewHumanizer returns a Humanizer driving act.
func NewHumanizer(act actuator.Actuator, opts ...Option) *Humanizer {
	h := &Humanizer{act: act, sleep: Sleep, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	if h.synth == nil {
		h.synth = NewSynthesizer(nil)
	}
	return h
}

// Synthesizer returns the random source in use.
func (h *Humanizer) Synthesizer() *Synthesizer { return h.synth }

// Click waits a short random delay, then presses near target.
func (h *Humanizer) Click(ctx context.Context, target actuator.Point, o ClickOptions) error {
	if err := h.sleep(ctx, h.synth.Seconds(o.Delay)); err != nil {
		return err
	}
	pt := h.synth.RandomOffset(Pt(target), o.Offset).Device()
	hold := h.synth.Seconds(o.Duration)
	h.logger.Debug("human click", zap.Int("x", pt.X), zap.Int("y", pt.Y), zap.Duration("hold", hold))
	if err := h.act.LongClick(ctx, pt, hold); err != nil {
		return fmt.Errorf("human click: %w", err)
	}
	return nil
}

// DoubleClick presses twice on one randomized spot near target.
func (h *Humanizer) DoubleClick(ctx context.Context, target actuator.Point, o DoubleClickOptions) error {
	pt := h.synth.RandomOffset(Pt(target), o.Offset).Device()
	for i := 0; i < 2; i++ {
		if i > 0 {
			if err := h.sleep(ctx, h.synth.Seconds(o.Interval)); err != nil {
				return err
			}
		}
		if err := h.act.LongClick(ctx, pt, h.synth.Seconds(o.Duration)); err != nil {
			return fmt.Errorf("human double click: %w", err)
		}
	}
	h.logger.Debug("human double click", zap.Int("x", pt.X), zap.Int("y", pt.Y))
	return nil
}

// LongPress waits a short random delay, then holds near target.
func (h *Humanizer) LongPress(ctx context.Context, target actuator.Point, o LongPressOptions) error {
	if err := h.sleep(ctx, h.synth.Seconds(o.Delay)); err != nil {
		return err
	}
	pt := h.synth.RandomOffset(Pt(target), o.Offset).Device()
	hold := h.synth.Seconds(o.Duration)
	h.logger.Debug("human long press", zap.Int("x", pt.X), zap.Int("y", pt.Y), zap.Duration("hold", hold))
	if err := h.act.LongClick(ctx, pt, hold); err != nil {
		return fmt.Errorf("human long press: %w", err)
	}
	return nil
}

// Plan holds a synthesized drag before it is played back.
type Plan struct {
	Raw        []Point // trajectory before speed shaping
	Points     []Point
	PerSegment time.Duration
}

// PlanDrag builds the path Drag would follow from one point to another.
func (h *Humanizer) PlanDrag(from, to actuator.Point, o DragOptions) Plan {
	return PlanDrag(h.synth, from, to, o)
}

// PlanDrag offsets both ends, draws the trajectory, shapes it by speed and
// spreads the duration over the segments.
func PlanDrag(s *Synthesizer, from, to actuator.Point, o DragOptions) Plan {
	n := o.NumPoints
	if n < 1 {
		n = DefaultDragOptions().NumPoints
	}
	start := s.RandomOffset(Pt(from), o.Offset)
	end := s.RandomOffset(Pt(to), o.Offset)

	var raw []Point
	if o.Trajectory == LinearJitter {
		raw = s.LinearWithJitter(start, end, n, o.Jitter)
	} else {
		raw = s.BezierCurve(start, end, BezierControlPoints, n)
	}
	pts := s.ResampleBySpeed(raw, o.Speed, n)
	return Plan{
		Raw:        raw,
		Points:     pts,
		PerSegment: SegmentDuration(seconds(o.Duration), len(pts)),
	}
}

// Drag waits a short random delay, then plays a planned path as one swipe.
func (h *Humanizer) Drag(ctx context.Context, from, to actuator.Point, o DragOptions) error {
	if err := h.sleep(ctx, h.synth.Seconds(o.Delay)); err != nil {
		return err
	}
	plan := h.PlanDrag(from, to, o)
	h.logger.Debug("human drag",
		zap.String("trajectory", string(o.Trajectory)),
		zap.String("speed", string(o.Speed)),
		zap.Int("points", len(plan.Points)),
		zap.Duration("per_segment", plan.PerSegment))
	if err := h.act.SwipePath(ctx, DevicePath(plan.Points), plan.PerSegment); err != nil {
		return fmt.Errorf("human drag: %w", err)
	}
	return nil
}
