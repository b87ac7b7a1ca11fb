package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/gesture"
	"github.com/holla2040/droidscript/internal/script/ast"
	"github.com/holla2040/droidscript/internal/script/variable"
)

// humanOptions holds the `k=v` options of a human_* command plus the
// positional numbers in the order they appeared.
type humanOptions struct {
	values  map[string]interface{}
	numbers []int64
}

// parseHumanOptions splits args into named options and positional numbers.
// Option values containing "." parse as floats, others as ints, falling back
// to the raw string.
func parseHumanOptions(args []interface{}) humanOptions {
	o := humanOptions{values: map[string]interface{}{}}
	for _, a := range args {
		switch v := a.(type) {
		case string:
			key, raw, ok := strings.Cut(v, "=")
			if !ok {
				continue
			}
			key, raw = strings.TrimSpace(key), strings.TrimSpace(raw)
			o.values[key] = optionValue(raw)
		case int64:
			o.numbers = append(o.numbers, v)
		case float64:
			o.numbers = append(o.numbers, int64(v))
		}
	}
	return o
}

func optionValue(raw string) interface{} {
	if strings.Contains(raw, ".") {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return raw
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	return raw
}

// float returns option key as a number, or def when absent.
func (o humanOptions) float(key string, def float64) (float64, error) {
	v, ok := o.values[key]
	if !ok {
		return def, nil
	}
	f, err := variable.ToFloat(v)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return f, nil
}

// rng overrides r with name_min and name_max.
func (o humanOptions) rng(name string, r gesture.Range) (gesture.Range, error) {
	lo, err := o.float(name+"_min", r.Min)
	if err != nil {
		return r, err
	}
	hi, err := o.float(name+"_max", r.Max)
	if err != nil {
		return r, err
	}
	return gesture.R(lo, hi), nil
}

func (o humanOptions) str(key, def string) string {
	if v, ok := o.values[key]; ok {
		return variable.ToString(v)
	}
	return def
}

// point returns the first two positional numbers.
func (o humanOptions) point() (actuator.Point, bool) {
	if len(o.numbers) < 2 {
		return actuator.Point{}, false
	}
	return actuator.Point{X: int(o.numbers[0]), Y: int(o.numbers[1])}, true
}

// humanTarget resolves the point of a human tap: x y numbers first, then
// the command's selector.
func (e *Executor) humanTarget(inv *invocation, o humanOptions) (actuator.Point, bool, error) {
	if pt, ok := o.point(); ok {
		return pt, true, nil
	}
	if pt, ok, err := e.coordSelector(inv); ok || err != nil {
		return pt, ok, err
	}
	el, err := e.element(inv)
	if err != nil || el == nil {
		return actuator.Point{}, false, err
	}
	return el.Bounds.Center(), true, nil
}

func (e *Executor) cmdHumanClick(inv *invocation) (interface{}, error) {
	o := parseHumanOptions(inv.args)
	opts := e.profile.Click
	var err error
	if opts.Offset, err = o.rng("offset", opts.Offset); err != nil {
		return false, err
	}
	if opts.Delay, err = o.rng("delay", opts.Delay); err != nil {
		return false, err
	}
	if opts.Duration, err = o.rng("duration", opts.Duration); err != nil {
		return false, err
	}
	pt, found, err := e.humanTarget(inv, o)
	if err != nil || !found {
		return false, err
	}
	if err := e.human.Click(e.ctx, pt, opts); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) cmdHumanDoubleClick(inv *invocation) (interface{}, error) {
	o := parseHumanOptions(inv.args)
	opts := e.profile.DoubleClick
	var err error
	if opts.Offset, err = o.rng("offset", opts.Offset); err != nil {
		return false, err
	}
	if opts.Interval, err = o.rng("interval", opts.Interval); err != nil {
		return false, err
	}
	if opts.Duration, err = o.rng("duration", opts.Duration); err != nil {
		return false, err
	}
	pt, found, err := e.humanTarget(inv, o)
	if err != nil || !found {
		return false, err
	}
	if err := e.human.DoubleClick(e.ctx, pt, opts); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) cmdHumanLongPress(inv *invocation) (interface{}, error) {
	o := parseHumanOptions(inv.args)
	opts := e.profile.LongPress
	var err error
	if opts.Duration, err = o.rng("duration", opts.Duration); err != nil {
		return false, err
	}
	if opts.Offset, err = o.rng("offset", opts.Offset); err != nil {
		return false, err
	}
	if opts.Delay, err = o.rng("delay", opts.Delay); err != nil {
		return false, err
	}
	pt, found, err := e.humanTarget(inv, o)
	if err != nil || !found {
		return false, err
	}
	if err := e.human.LongPress(e.ctx, pt, opts); err != nil {
		return false, err
	}
	return true, nil
}

// dragOptions applies the command's options over the profile defaults.
// Unknown trajectory or speed names fall back to the built-in defaults.
func (e *Executor) dragOptions(o humanOptions) (gesture.DragOptions, error) {
	opts := e.profile.Drag
	if t, ok := gesture.ParseTrajectory(o.str("trajectory", string(opts.Trajectory))); ok {
		opts.Trajectory = t
	} else {
		opts.Trajectory = gesture.Bezier
	}
	if s, ok := gesture.ParseSpeedMode(o.str("speed", string(opts.Speed))); ok {
		opts.Speed = s
	} else {
		opts.Speed = gesture.EaseInOut
	}
	var err error
	if opts.Duration, err = o.float("duration", opts.Duration); err != nil {
		return opts, err
	}
	n, err := o.float("num_points", float64(opts.NumPoints))
	if err != nil {
		return opts, err
	}
	opts.NumPoints = int(n)
	if opts.NumPoints < 1 {
		return opts, fmt.Errorf("num_points must be at least 1, got %d", opts.NumPoints)
	}
	if opts.Offset, err = o.rng("offset", opts.Offset); err != nil {
		return opts, err
	}
	if opts.Jitter, err = o.rng("jitter", opts.Jitter); err != nil {
		return opts, err
	}
	if opts.Delay, err = o.rng("delay", opts.Delay); err != nil {
		return opts, err
	}
	return opts, nil
}

// cmdHumanDrag drags between the first four numbers, or from the command's
// selector to the element named by end_selector_type/end_selector_value.
func (e *Executor) cmdHumanDrag(inv *invocation) (interface{}, error) {
	o := parseHumanOptions(inv.args)
	opts, err := e.dragOptions(o)
	if err != nil {
		return false, err
	}

	var from, to actuator.Point
	if len(o.numbers) >= 4 {
		from = actuator.Point{X: int(o.numbers[0]), Y: int(o.numbers[1])}
		to = actuator.Point{X: int(o.numbers[2]), Y: int(o.numbers[3])}
	} else {
		start, err := e.element(inv)
		if err != nil || start == nil {
			return false, err
		}
		kind, ok := selectorKinds[ast.SelectorKind(strings.ToLower(o.str("end_selector_type", "")))]
		value := o.str("end_selector_value", "")
		if !ok || value == "" {
			return false, nil
		}
		end, err := e.act.Element(e.ctx, actuator.Selector{Kind: kind, Value: value})
		if err != nil || end == nil {
			return false, err
		}
		from, to = start.Bounds.Center(), end.Bounds.Center()
	}

	if err := e.human.Drag(e.ctx, from, to, opts); err != nil {
		return false, err
	}
	return true, nil
}
