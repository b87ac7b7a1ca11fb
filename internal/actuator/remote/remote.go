// Package remote implements actuator.Actuator by forwarding every call to a
// device agent over Redis streams. The agent owns the physical device and
// replies with the method's result.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/protocol"
)

// DefaultCallTimeout bounds a single round trip.
const DefaultCallTimeout = 10 * time.Second

// Caller delivers a request message and returns the correlated reply.
type Caller interface {
	Call(ctx context.Context, req *protocol.Message, timeout time.Duration) (*protocol.Message, error)
}

// Device is a device owned by a remote agent.
type Device struct {
	caller  Caller
	source  protocol.Source
	serial  string
	timeout time.Duration
}

var _ actuator.Actuator = (*Device)(nil)

// Option configures a Device.
type Option func(*Device)

// WithSerial addresses one device on a multi-device agent.
func WithSerial(serial string) Option {
	return func(d *Device) { d.serial = serial }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(t time.Duration) Option {
	return func(d *Device) { d.timeout = t }
}

// New creates a Device that sends requests as source through caller.
func New(caller Caller, source protocol.Source, opts ...Option) *Device {
	d := &Device{caller: caller, source: source, timeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// call runs one method remotely. extra extends the timeout for methods that
// wait on the device themselves.
func (d *Device) call(ctx context.Context, method string, params protocol.ActuatorParams, extra time.Duration) (*protocol.ActuatorResult, error) {
	timeout := d.timeout + extra
	req, err := protocol.BuildActuatorRequest(d.source, d.serial, method, params, int(timeout.Milliseconds()))
	if err != nil {
		return nil, err
	}
	resp, err := d.caller.Call(ctx, req, timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	p, err := protocol.ParseActuatorResponse(resp)
	if err != nil {
		return nil, err
	}
	if !p.Success {
		return nil, responseError(method, p.Error)
	}
	return &p.Result, nil
}

func responseError(method string, e *protocol.Error) error {
	if e == nil {
		return fmt.Errorf("%s: agent reported failure", method)
	}
	if e.Code == protocol.CodeNotConnected {
		return fmt.Errorf("%s: %w", method, actuator.ErrNotConnected)
	}
	return fmt.Errorf("%s: %s", method, e.Message)
}

func boolResult(r *protocol.ActuatorResult) bool {
	return r.Bool != nil && *r.Bool
}

func ms(d time.Duration) int64 { return d.Milliseconds() }

// ---------------------------------------------------------------------------
// Selector queries
// ---------------------------------------------------------------------------

func (d *Device) Exists(ctx context.Context, sel actuator.Selector) (bool, error) {
	r, err := d.call(ctx, protocol.MethodExists, protocol.ActuatorParams{Selector: &sel}, 0)
	if err != nil {
		return false, err
	}
	return boolResult(r), nil
}

func (d *Device) Element(ctx context.Context, sel actuator.Selector) (*actuator.Element, error) {
	r, err := d.call(ctx, protocol.MethodElement, protocol.ActuatorParams{Selector: &sel}, 0)
	if err != nil {
		return nil, err
	}
	return r.Element, nil
}

func (d *Device) Elements(ctx context.Context, sel actuator.Selector) ([]actuator.Element, error) {
	r, err := d.call(ctx, protocol.MethodElements, protocol.ActuatorParams{Selector: &sel}, 0)
	if err != nil {
		return nil, err
	}
	return r.Elements, nil
}

func (d *Device) WaitExists(ctx context.Context, sel actuator.Selector, timeout time.Duration) (bool, error) {
	r, err := d.call(ctx, protocol.MethodWaitExists, protocol.ActuatorParams{Selector: &sel, TimeoutMs: ms(timeout)}, timeout)
	if err != nil {
		return false, err
	}
	return boolResult(r), nil
}

func (d *Device) WaitGone(ctx context.Context, sel actuator.Selector, timeout time.Duration) (bool, error) {
	r, err := d.call(ctx, protocol.MethodWaitGone, protocol.ActuatorParams{Selector: &sel, TimeoutMs: ms(timeout)}, timeout)
	if err != nil {
		return false, err
	}
	return boolResult(r), nil
}

// ---------------------------------------------------------------------------
// Input
// ---------------------------------------------------------------------------

func (d *Device) Click(ctx context.Context, p actuator.Point) error {
	_, err := d.call(ctx, protocol.MethodClick, protocol.ActuatorParams{Point: &p}, 0)
	return err
}

func (d *Device) LongClick(ctx context.Context, p actuator.Point, hold time.Duration) error {
	_, err := d.call(ctx, protocol.MethodLongClick, protocol.ActuatorParams{Point: &p, DurationMs: ms(hold)}, hold)
	return err
}

func (d *Device) Swipe(ctx context.Context, from, to actuator.Point, dur time.Duration) error {
	_, err := d.call(ctx, protocol.MethodSwipe, protocol.ActuatorParams{Point: &from, To: &to, DurationMs: ms(dur)}, dur)
	return err
}

func (d *Device) SwipePath(ctx context.Context, points []actuator.Point, perSegment time.Duration) error {
	total := perSegment * time.Duration(len(points))
	_, err := d.call(ctx, protocol.MethodSwipePath, protocol.ActuatorParams{Path: points, DurationMs: ms(perSegment)}, total)
	return err
}

func (d *Device) SendKeys(ctx context.Context, text string) error {
	_, err := d.call(ctx, protocol.MethodSendKeys, protocol.ActuatorParams{Text: text}, 0)
	return err
}

func (d *Device) ClearText(ctx context.Context) error {
	_, err := d.call(ctx, protocol.MethodClearText, protocol.ActuatorParams{}, 0)
	return err
}

func (d *Device) PressKey(ctx context.Context, key actuator.Key) error {
	_, err := d.call(ctx, protocol.MethodPressKey, protocol.ActuatorParams{Key: key}, 0)
	return err
}

func (d *Device) Unlock(ctx context.Context) error {
	_, err := d.call(ctx, protocol.MethodUnlock, protocol.ActuatorParams{}, 0)
	return err
}

func (d *Device) WindowSize(ctx context.Context) (int, int, error) {
	r, err := d.call(ctx, protocol.MethodWindowSize, protocol.ActuatorParams{}, 0)
	if err != nil {
		return 0, 0, err
	}
	return r.Width, r.Height, nil
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

func (d *Device) DumpHierarchy(ctx context.Context) (string, error) {
	r, err := d.call(ctx, protocol.MethodDumpHierarchy, protocol.ActuatorParams{}, 0)
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

func (d *Device) Shell(ctx context.Context, cmd string) (string, error) {
	r, err := d.call(ctx, protocol.MethodShell, protocol.ActuatorParams{Command: cmd}, 0)
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

// ---------------------------------------------------------------------------
// App lifecycle
// ---------------------------------------------------------------------------

func (d *Device) StartApp(ctx context.Context, pkg string) error {
	_, err := d.call(ctx, protocol.MethodStartApp, protocol.ActuatorParams{Package: pkg}, 0)
	return err
}

func (d *Device) StopApp(ctx context.Context, pkg string) error {
	_, err := d.call(ctx, protocol.MethodStopApp, protocol.ActuatorParams{Package: pkg}, 0)
	return err
}

func (d *Device) ClearApp(ctx context.Context, pkg string) error {
	_, err := d.call(ctx, protocol.MethodClearApp, protocol.ActuatorParams{Package: pkg}, 0)
	return err
}

func (d *Device) AppVersion(ctx context.Context, pkg string) (string, error) {
	r, err := d.call(ctx, protocol.MethodAppVersion, protocol.ActuatorParams{Package: pkg}, 0)
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

func (d *Device) CurrentApp(ctx context.Context) (actuator.AppInfo, error) {
	r, err := d.call(ctx, protocol.MethodCurrentApp, protocol.ActuatorParams{}, 0)
	if err != nil {
		return actuator.AppInfo{}, err
	}
	if r.App == nil {
		return actuator.AppInfo{}, nil
	}
	return *r.App, nil
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Connect asks the agent to open serial, or its default device when serial
// is empty. Later calls address the connected serial.
func (d *Device) Connect(ctx context.Context, serial string) (actuator.DeviceInfo, error) {
	r, err := d.call(ctx, protocol.MethodConnect, protocol.ActuatorParams{Serial: serial}, 0)
	if err != nil {
		return actuator.DeviceInfo{}, err
	}
	if r.Device == nil {
		return actuator.DeviceInfo{}, errors.New("connect: agent returned no device info")
	}
	if r.Device.Serial != "" {
		d.serial = r.Device.Serial
	}
	return *r.Device, nil
}

func (d *Device) Disconnect(ctx context.Context) error {
	_, err := d.call(ctx, protocol.MethodDisconnect, protocol.ActuatorParams{}, 0)
	return err
}

func (d *Device) Status(ctx context.Context) (*actuator.Status, error) {
	r, err := d.call(ctx, protocol.MethodStatus, protocol.ActuatorParams{}, 0)
	if err != nil {
		return nil, err
	}
	return r.Status, nil
}
