// Package adb drives a real Android device through the adb command line:
// `input` for pointer and key events, `uiautomator dump` for the UI
// hierarchy, and `am`/`pm`/`dumpsys` for apps and device state.
package adb

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/holla2040/droidscript/internal/actuator"
)

// DumpPath is where uiautomator writes the window dump on the device.
const DumpPath = "/sdcard/window_dump.xml"

// Runner executes one adb invocation and returns its combined output.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs the adb binary found at Path.
type ExecRunner struct {
	Path string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	path := r.Path
	if path == "" {
		path = "adb"
	}
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Config tunes a Device.
type Config struct {
	InputRate    float64       // input events per second, 0 for unlimited
	PollInterval time.Duration // wait_element polling
}

// Device is an actuator.Actuator backed by adb.
type Device struct {
	run     Runner
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger

	mu     sync.Mutex
	serial string // empty until Connect
}

var _ actuator.Actuator = (*Device)(nil)

// New creates a disconnected device.
func New(run Runner, cfg Config, logger *zap.Logger) *Device {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = actuator.DefaultPollInterval
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.InputRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.InputRate), 1)
	}
	return &Device{run: run, cfg: cfg, limiter: limiter, logger: logger.Named("adb")}
}

func (d *Device) current() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.serial == "" {
		return "", actuator.ErrNotConnected
	}
	return d.serial, nil
}

// shell runs a device shell command.
func (d *Device) shell(ctx context.Context, args ...string) (string, error) {
	serial, err := d.current()
	if err != nil {
		return "", err
	}
	full := append([]string{"-s", serial, "shell"}, args...)
	out, err := d.run.Run(ctx, full...)
	if err != nil {
		d.logger.Debug("shell failed", zap.Strings("args", args), zap.Error(err))
	}
	return out, err
}

// input sends an input event after waiting for the rate limiter.
func (d *Device) input(ctx context.Context, args ...string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := d.shell(ctx, append([]string{"input"}, args...)...)
	return err
}

func itoa(n int) string { return strconv.Itoa(n) }

// ---------------------------------------------------------------------------
// Selector queries
// ---------------------------------------------------------------------------

func (d *Device) hierarchy(ctx context.Context) (*actuator.Hierarchy, error) {
	xml, err := d.DumpHierarchy(ctx)
	if err != nil {
		return nil, err
	}
	return actuator.ParseHierarchy(xml)
}

func (d *Device) Exists(ctx context.Context, sel actuator.Selector) (bool, error) {
	el, err := d.Element(ctx, sel)
	return el != nil, err
}

func (d *Device) Element(ctx context.Context, sel actuator.Selector) (*actuator.Element, error) {
	h, err := d.hierarchy(ctx)
	if err != nil {
		return nil, err
	}
	return h.First(sel)
}

func (d *Device) Elements(ctx context.Context, sel actuator.Selector) ([]actuator.Element, error) {
	h, err := d.hierarchy(ctx)
	if err != nil {
		return nil, err
	}
	return h.Find(sel)
}

func (d *Device) WaitExists(ctx context.Context, sel actuator.Selector, timeout time.Duration) (bool, error) {
	return actuator.Poll(ctx, timeout, d.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		return d.Exists(ctx, sel)
	})
}

func (d *Device) WaitGone(ctx context.Context, sel actuator.Selector, timeout time.Duration) (bool, error) {
	return actuator.Poll(ctx, timeout, d.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		ok, err := d.Exists(ctx, sel)
		return !ok, err
	})
}

// ---------------------------------------------------------------------------
// Input
// ---------------------------------------------------------------------------

func (d *Device) Click(ctx context.Context, p actuator.Point) error {
	return d.input(ctx, "tap", itoa(p.X), itoa(p.Y))
}

// LongClick is a zero-length swipe held for hold.
func (d *Device) LongClick(ctx context.Context, p actuator.Point, hold time.Duration) error {
	return d.input(ctx, "swipe", itoa(p.X), itoa(p.Y), itoa(p.X), itoa(p.Y), strconv.FormatInt(hold.Milliseconds(), 10))
}

func (d *Device) Swipe(ctx context.Context, from, to actuator.Point, dur time.Duration) error {
	return d.input(ctx, "swipe", itoa(from.X), itoa(from.Y), itoa(to.X), itoa(to.Y), strconv.FormatInt(dur.Milliseconds(), 10))
}

// SwipePath replays points as one touch: DOWN at the first point, a MOVE
// per later point spaced by perSegment, and UP at the last.
func (d *Device) SwipePath(ctx context.Context, points []actuator.Point, perSegment time.Duration) error {
	if len(points) < 2 {
		return fmt.Errorf("swipe path needs at least 2 points, got %d", len(points))
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	event := func(action string, p actuator.Point) error {
		_, err := d.shell(ctx, "input", "motionevent", action, itoa(p.X), itoa(p.Y))
		return err
	}
	if err := event("DOWN", points[0]); err != nil {
		return err
	}
	last := points[len(points)-1]
	for _, p := range points[1:] {
		if err := sleep(ctx, perSegment); err != nil {
			_ = event("UP", p)
			return err
		}
		if err := event("MOVE", p); err != nil {
			return err
		}
	}
	return event("UP", last)
}

func sleep(ctx context.Context, d time.Duration) error {
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

func (d *Device) SendKeys(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return d.input(ctx, "text", EscapeText(text))
}

// clearKeystrokes is how many deletes ClearText sends.
const clearKeystrokes = 64

func (d *Device) ClearText(ctx context.Context) error {
	if err := d.input(ctx, "keyevent", "KEYCODE_MOVE_END"); err != nil {
		return err
	}
	args := []string{"keyevent"}
	for i := 0; i < clearKeystrokes; i++ {
		args = append(args, "KEYCODE_DEL")
	}
	return d.input(ctx, args...)
}

var keyCodes = map[actuator.Key]string{
	actuator.KeyBack:   "KEYCODE_BACK",
	actuator.KeyHome:   "KEYCODE_HOME",
	actuator.KeyMenu:   "KEYCODE_MENU",
	actuator.KeyRecent: "KEYCODE_APP_SWITCH",
	actuator.KeyWakeup: "KEYCODE_WAKEUP",
	actuator.KeySleep:  "KEYCODE_SLEEP",
}

func (d *Device) PressKey(ctx context.Context, key actuator.Key) error {
	code, ok := keyCodes[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return d.input(ctx, "keyevent", code)
}

func (d *Device) Unlock(ctx context.Context) error {
	if err := d.PressKey(ctx, actuator.KeyWakeup); err != nil {
		return err
	}
	_, err := d.shell(ctx, "wm", "dismiss-keyguard")
	return err
}

func (d *Device) WindowSize(ctx context.Context) (int, int, error) {
	out, err := d.shell(ctx, "wm", "size")
	if err != nil {
		return 0, 0, err
	}
	return ParseWindowSize(out)
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

func (d *Device) DumpHierarchy(ctx context.Context) (string, error) {
	if _, err := d.shell(ctx, "uiautomator", "dump", DumpPath); err != nil {
		return "", err
	}
	out, err := d.shell(ctx, "cat", DumpPath)
	if err != nil {
		return "", err
	}
	start := strings.Index(out, "<?xml")
	if start < 0 {
		start = strings.Index(out, "<hierarchy")
	}
	if start < 0 {
		return "", errors.New("uiautomator dump produced no hierarchy")
	}
	return strings.TrimSpace(out[start:]), nil
}

func (d *Device) Shell(ctx context.Context, cmd string) (string, error) {
	return d.shell(ctx, cmd)
}

// ---------------------------------------------------------------------------
// App lifecycle
// ---------------------------------------------------------------------------

func (d *Device) StartApp(ctx context.Context, pkg string) error {
	out, err := d.shell(ctx, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return err
	}
	if strings.Contains(out, "No activities found") {
		return fmt.Errorf("start %s: no launchable activity", pkg)
	}
	return nil
}

func (d *Device) StopApp(ctx context.Context, pkg string) error {
	_, err := d.shell(ctx, "am", "force-stop", pkg)
	return err
}

func (d *Device) ClearApp(ctx context.Context, pkg string) error {
	_, err := d.shell(ctx, "pm", "clear", pkg)
	return err
}

func (d *Device) AppVersion(ctx context.Context, pkg string) (string, error) {
	out, err := d.shell(ctx, "dumpsys", "package", pkg)
	if err != nil {
		return "", err
	}
	return ParseVersionName(out), nil
}

func (d *Device) CurrentApp(ctx context.Context) (actuator.AppInfo, error) {
	out, err := d.shell(ctx, "dumpsys", "window")
	if err != nil {
		return actuator.AppInfo{}, err
	}
	app := ParseCurrentFocus(out)
	if app.Package == "" {
		return app, nil
	}
	if pid, err := d.shell(ctx, "pidof", app.Package); err == nil {
		fields := strings.Fields(pid)
		if len(fields) > 0 {
			app.PID, _ = strconv.Atoi(fields[0])
		}
	}
	return app, nil
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Connect selects serial, or the first attached device when serial is
// empty, and reads its identity.
func (d *Device) Connect(ctx context.Context, serial string) (actuator.DeviceInfo, error) {
	out, err := d.run.Run(ctx, "devices")
	if err != nil {
		return actuator.DeviceInfo{}, err
	}
	attached := ParseDevices(out)
	if serial == "" {
		if len(attached) == 0 {
			return actuator.DeviceInfo{}, errors.New("no adb devices attached")
		}
		serial = attached[0]
	} else if !contains(attached, serial) {
		return actuator.DeviceInfo{}, fmt.Errorf("device %s not attached", serial)
	}

	d.mu.Lock()
	d.serial = serial
	d.mu.Unlock()

	info := actuator.DeviceInfo{Serial: serial}
	info.ProductName = d.prop(ctx, "ro.product.name")
	info.APILevel, _ = strconv.Atoi(d.prop(ctx, "ro.build.version.sdk"))
	if out, err := d.shell(ctx, "dumpsys", "battery"); err == nil {
		info.BatteryLevel = ParseBatteryLevel(out)
	}
	d.logger.Info("connected", zap.String("serial", serial), zap.String("product", info.ProductName))
	return info, nil
}

func (d *Device) prop(ctx context.Context, name string) string {
	out, err := d.shell(ctx, "getprop", name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func (d *Device) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	d.serial = ""
	d.mu.Unlock()
	return ctx.Err()
}

func (d *Device) Status(ctx context.Context) (*actuator.Status, error) {
	d.mu.Lock()
	serial := d.serial
	d.mu.Unlock()
	if serial == "" {
		return nil, nil
	}
	st := &actuator.Status{Serial: serial}
	st.ProductName = d.prop(ctx, "ro.product.name")
	st.APILevel, _ = strconv.Atoi(d.prop(ctx, "ro.build.version.sdk"))
	w, h, err := d.WindowSize(ctx)
	if err != nil {
		return nil, err
	}
	st.DisplayWidth, st.DisplayHeight = w, h
	if out, err := d.shell(ctx, "dumpsys", "input"); err == nil {
		st.DisplayRotation = ParseRotation(out)
	}
	return st, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
