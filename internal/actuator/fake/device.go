// Package fake simulates an Android device in memory: a settable UI
// hierarchy, installed apps, a focused text field and a log of every action.
package fake

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/holla2040/droidscript/internal/actuator"
)

// ErrInjected is returned when a simulated failure fires.
var ErrInjected = errors.New("fake: injected failure")

// Call is one recorded actuator invocation.
type Call struct {
	Method string
	Args   []interface{}
}

func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Method
	}
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = fmt.Sprint(a)
	}
	return c.Method + " " + strings.Join(parts, " ")
}

// App is an installed package.
type App struct {
	Version  string
	Activity string
}

// Options configure a new Device.
type Options struct {
	Serial       string
	ProductName  string
	APILevel     int
	Width        int
	Height       int
	Hierarchy    string
	Apps         map[string]App
	FailRate     float64       // probability that an input action fails
	PollInterval time.Duration // wait_element polling
}

// DefaultOptions describes a 1080x2400 phone with no UI loaded.
func DefaultOptions() Options {
	return Options{
		Serial:       "emulator-5554",
		ProductName:  "sdk_gphone64",
		APILevel:     34,
		Width:        1080,
		Height:       2400,
		Hierarchy:    EmptyHierarchy,
		PollInterval: 10 * time.Millisecond,
	}
}

// EmptyHierarchy is a dump with only the root window.
const EmptyHierarchy = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?><hierarchy rotation="0"></hierarchy>`

// Device is an in-memory actuator.Actuator.
type Device struct {
	mu        sync.RWMutex
	opts      Options
	hierarchy *actuator.Hierarchy
	raw       string
	connected bool
	screenOn  bool
	apps      map[string]App
	current   actuator.AppInfo
	field     string
	shell     map[string]string
	calls     []Call
	rng       *rand.Rand
	onCall    func(Call)
}

var _ actuator.Actuator = (*Device)(nil)

// New creates a disconnected device. It fails only when opts.Hierarchy is
// not a valid dump.
func New(opts Options) (*Device, error) {
	def := DefaultOptions()
	if opts.Serial == "" {
		opts.Serial = def.Serial
	}
	if opts.ProductName == "" {
		opts.ProductName = def.ProductName
	}
	if opts.APILevel == 0 {
		opts.APILevel = def.APILevel
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = def.Width, def.Height
	}
	if opts.Hierarchy == "" {
		opts.Hierarchy = def.Hierarchy
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	d := &Device{
		opts:     opts,
		apps:     make(map[string]App),
		shell:    make(map[string]string),
		screenOn: true,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for pkg, app := range opts.Apps {
		d.apps[pkg] = app
	}
	if err := d.SetHierarchy(opts.Hierarchy); err != nil {
		return nil, err
	}
	return d, nil
}

// MustNew is New for tests and fixed inputs.
func MustNew(opts Options) *Device {
	d, err := New(opts)
	if err != nil {
		panic(err)
	}
	return d
}

// SetHierarchy replaces the current screen.
func (d *Device) SetHierarchy(xml string) error {
	h, err := actuator.ParseHierarchy(xml)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.hierarchy, d.raw = h, xml
	d.mu.Unlock()
	return nil
}

// SetShellOutput fixes the output returned for a shell command.
func (d *Device) SetShellOutput(cmd, out string) {
	d.mu.Lock()
	d.shell[cmd] = out
	d.mu.Unlock()
}

// OnCall registers a hook run after each recorded call, outside the lock.
// Tests use it to change the screen in response to input.
func (d *Device) OnCall(fn func(Call)) {
	d.mu.Lock()
	d.onCall = fn
	d.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (d *Device) Calls() []Call {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Call(nil), d.calls...)
}

// CallNames returns the recorded method names in order.
func (d *Device) CallNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.calls))
	for i, c := range d.calls {
		out[i] = c.Method
	}
	return out
}

// Reset forgets recorded calls.
func (d *Device) Reset() {
	d.mu.Lock()
	d.calls = nil
	d.mu.Unlock()
}

// Text returns what has been typed into the focused field.
func (d *Device) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.field
}

// Connected reports the session state.
func (d *Device) Connected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// ScreenOn reports the simulated power state.
func (d *Device) ScreenOn() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.screenOn
}

// record logs a call and, for input actions, rolls the failure dice.
// It must be called with d.mu held.
func (d *Device) record(input bool, method string, args ...interface{}) (Call, error) {
	c := Call{Method: method, Args: args}
	d.calls = append(d.calls, c)
	if input && d.opts.FailRate > 0 && d.rng.Float64() < d.opts.FailRate {
		return c, fmt.Errorf("%s: %w", method, ErrInjected)
	}
	return c, nil
}

// do records a call under the lock, applies fn and then runs the hook.
func (d *Device) do(ctx context.Context, input bool, method string, fn func() error, args ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	c, err := d.record(input, method, args...)
	if err == nil && fn != nil {
		err = fn()
	}
	hook := d.onCall
	d.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return err
}

func (d *Device) query(ctx context.Context, fn func(h *actuator.Hierarchy) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.RLock()
	h := d.hierarchy
	d.mu.RUnlock()
	return fn(h)
}

// ---------------------------------------------------------------------------
// Selector queries
// ---------------------------------------------------------------------------

func (d *Device) Exists(ctx context.Context, sel actuator.Selector) (bool, error) {
	el, err := d.Element(ctx, sel)
	return el != nil, err
}

func (d *Device) Element(ctx context.Context, sel actuator.Selector) (*actuator.Element, error) {
	var el *actuator.Element
	err := d.query(ctx, func(h *actuator.Hierarchy) error {
		var err error
		el, err = h.First(sel)
		return err
	})
	return el, err
}

func (d *Device) Elements(ctx context.Context, sel actuator.Selector) ([]actuator.Element, error) {
	var els []actuator.Element
	err := d.query(ctx, func(h *actuator.Hierarchy) error {
		var err error
		els, err = h.Find(sel)
		return err
	})
	return els, err
}

func (d *Device) WaitExists(ctx context.Context, sel actuator.Selector, timeout time.Duration) (bool, error) {
	return actuator.Poll(ctx, timeout, d.opts.PollInterval, func(ctx context.Context) (bool, error) {
		return d.Exists(ctx, sel)
	})
}

func (d *Device) WaitGone(ctx context.Context, sel actuator.Selector, timeout time.Duration) (bool, error) {
	return actuator.Poll(ctx, timeout, d.opts.PollInterval, func(ctx context.Context) (bool, error) {
		ok, err := d.Exists(ctx, sel)
		return !ok, err
	})
}

// ---------------------------------------------------------------------------
// Input
// ---------------------------------------------------------------------------

func (d *Device) Click(ctx context.Context, p actuator.Point) error {
	return d.do(ctx, true, "Click", nil, p.X, p.Y)
}

func (d *Device) LongClick(ctx context.Context, p actuator.Point, hold time.Duration) error {
	return d.do(ctx, true, "LongClick", nil, p.X, p.Y, hold)
}

func (d *Device) Swipe(ctx context.Context, from, to actuator.Point, dur time.Duration) error {
	return d.do(ctx, true, "Swipe", nil, from, to, dur)
}

func (d *Device) SwipePath(ctx context.Context, points []actuator.Point, perSegment time.Duration) error {
	if len(points) < 2 {
		return fmt.Errorf("swipe path needs at least 2 points, got %d", len(points))
	}
	path := append([]actuator.Point(nil), points...)
	return d.do(ctx, true, "SwipePath", nil, path, perSegment)
}

func (d *Device) SendKeys(ctx context.Context, text string) error {
	return d.do(ctx, true, "SendKeys", func() error {
		d.field += text
		return nil
	}, text)
}

func (d *Device) ClearText(ctx context.Context) error {
	return d.do(ctx, true, "ClearText", func() error {
		d.field = ""
		return nil
	})
}

func (d *Device) PressKey(ctx context.Context, key actuator.Key) error {
	return d.do(ctx, true, "PressKey", func() error {
		switch key {
		case actuator.KeyWakeup:
			d.screenOn = true
		case actuator.KeySleep:
			d.screenOn = false
		case actuator.KeyHome:
			d.current = actuator.AppInfo{Package: "com.android.launcher3", Activity: ".Launcher"}
		}
		return nil
	}, string(key))
}

func (d *Device) Unlock(ctx context.Context) error {
	return d.do(ctx, true, "Unlock", func() error {
		d.screenOn = true
		return nil
	})
}

func (d *Device) WindowSize(ctx context.Context) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	return d.opts.Width, d.opts.Height, nil
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

func (d *Device) DumpHierarchy(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.raw, nil
}

func (d *Device) Shell(ctx context.Context, cmd string) (string, error) {
	var out string
	err := d.do(ctx, false, "Shell", func() error {
		if v, ok := d.shell[cmd]; ok {
			out = v
			return nil
		}
		if rest, ok := strings.CutPrefix(cmd, "echo "); ok {
			out = rest
		}
		return nil
	}, cmd)
	return out, err
}

// ---------------------------------------------------------------------------
// App lifecycle
// ---------------------------------------------------------------------------

func (d *Device) StartApp(ctx context.Context, pkg string) error {
	return d.do(ctx, false, "StartApp", func() error {
		app, ok := d.apps[pkg]
		if !ok {
			return fmt.Errorf("start %s: package not installed", pkg)
		}
		d.current = actuator.AppInfo{Package: pkg, Activity: app.Activity, PID: 1000 + d.rng.Intn(9000)}
		return nil
	}, pkg)
}

func (d *Device) StopApp(ctx context.Context, pkg string) error {
	return d.do(ctx, false, "StopApp", func() error {
		if d.current.Package == pkg {
			d.current = actuator.AppInfo{}
		}
		return nil
	}, pkg)
}

func (d *Device) ClearApp(ctx context.Context, pkg string) error {
	return d.do(ctx, false, "ClearApp", nil, pkg)
}

func (d *Device) AppVersion(ctx context.Context, pkg string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.apps[pkg].Version, nil
}

func (d *Device) CurrentApp(ctx context.Context) (actuator.AppInfo, error) {
	if err := ctx.Err(); err != nil {
		return actuator.AppInfo{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current, nil
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Connect accepts an empty serial (auto-select) or the device's own serial.
func (d *Device) Connect(ctx context.Context, serial string) (actuator.DeviceInfo, error) {
	var info actuator.DeviceInfo
	err := d.do(ctx, false, "Connect", func() error {
		if serial != "" && serial != d.opts.Serial {
			return fmt.Errorf("device %s not found", serial)
		}
		d.connected = true
		info = actuator.DeviceInfo{
			Serial:       d.opts.Serial,
			ProductName:  d.opts.ProductName,
			APILevel:     d.opts.APILevel,
			BatteryLevel: 100,
		}
		return nil
	}, serial)
	return info, err
}

func (d *Device) Disconnect(ctx context.Context) error {
	return d.do(ctx, false, "Disconnect", func() error {
		d.connected = false
		return nil
	})
}

func (d *Device) Status(ctx context.Context) (*actuator.Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.connected {
		return nil, nil
	}
	return &actuator.Status{
		Serial:        d.opts.Serial,
		ProductName:   d.opts.ProductName,
		APILevel:      d.opts.APILevel,
		DisplayWidth:  d.opts.Width,
		DisplayHeight: d.opts.Height,
	}, nil
}
