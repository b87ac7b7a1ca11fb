package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/script/ast"
	"github.com/holla2040/droidscript/internal/script/result"
	"github.com/holla2040/droidscript/internal/script/variable"
)

// Command timing.
const (
	DefaultWaitTimeout = 10 * time.Second
	InputSettle        = 300 * time.Millisecond
	SwipeDuration      = 300 * time.Millisecond
	DefaultSwipeRatio  = 0.5
)

// maxRecordedValue bounds the value kept in a CommandRecord.
const maxRecordedValue = 200

// invocation is one command call with its arguments already expanded.
type invocation struct {
	stmt *ast.CommandStmt
	name string
	args []interface{}
}

// fail wraps err as a RuntimeError for the invoking line.
func (inv *invocation) fail(err error) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}
	return &RuntimeError{Line: inv.stmt.Position.Line, Command: inv.name, Err: err}
}

func (inv *invocation) arg(i int) (interface{}, bool) {
	if i < len(inv.args) {
		return inv.args[i], true
	}
	return nil, false
}

// stringArg returns args[i] as a string, or "" when absent.
func (inv *invocation) stringArg(i int) string {
	v, ok := inv.arg(i)
	if !ok {
		return ""
	}
	return variable.ToString(v)
}

// invocation expands the arguments of cmd against the current variables.
func (e *Executor) invocation(cmd *ast.CommandStmt) *invocation {
	name := cmd.Name
	if name == "" {
		name = cmd.Command.String()
	}
	args := make([]interface{}, len(cmd.Args))
	for i, a := range cmd.Args {
		args[i] = e.env.Expand(a)
	}
	return &invocation{stmt: cmd, name: name, args: args}
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

type handler func(e *Executor, inv *invocation) (interface{}, error)

var handlers map[ast.Command]handler

// deviceless commands run without an actuator.
var deviceless = map[ast.Command]bool{
	ast.CmdLog:  true,
	ast.CmdWait: true,
}

func init() {
	handlers = map[ast.Command]handler{
		ast.CmdClick:            (*Executor).cmdClick,
		ast.CmdClickText:        (*Executor).cmdClickText,
		ast.CmdClickID:          (*Executor).cmdClickID,
		ast.CmdInput:            (*Executor).cmdInput,
		ast.CmdClear:            (*Executor).cmdClear,
		ast.CmdSwipe:            (*Executor).cmdSwipe,
		ast.CmdWait:             (*Executor).cmdWait,
		ast.CmdWaitElement:      (*Executor).cmdWaitElement,
		ast.CmdWaitGone:         (*Executor).cmdWaitGone,
		ast.CmdBack:             keyHandler(actuator.KeyBack),
		ast.CmdHome:             keyHandler(actuator.KeyHome),
		ast.CmdMenu:             keyHandler(actuator.KeyMenu),
		ast.CmdRecent:           keyHandler(actuator.KeyRecent),
		ast.CmdStartApp:         appHandler(actuator.Actuator.StartApp),
		ast.CmdStopApp:          appHandler(actuator.Actuator.StopApp),
		ast.CmdClearApp:         appHandler(actuator.Actuator.ClearApp),
		ast.CmdScreenOn:         keyHandler(actuator.KeyWakeup),
		ast.CmdScreenOff:        keyHandler(actuator.KeySleep),
		ast.CmdUnlock:           (*Executor).cmdUnlock,
		ast.CmdGetText:          (*Executor).cmdGetText,
		ast.CmdGetInfo:          (*Executor).cmdGetInfo,
		ast.CmdFindElement:      (*Executor).cmdFindElement,
		ast.CmdFindElements:     (*Executor).cmdFindElements,
		ast.CmdDumpHierarchy:    (*Executor).cmdDumpHierarchy,
		ast.CmdExists:           (*Executor).cmdExists,
		ast.CmdLog:              (*Executor).cmdLog,
		ast.CmdShell:            (*Executor).cmdShell,
		ast.CmdHumanClick:       (*Executor).cmdHumanClick,
		ast.CmdHumanDoubleClick: (*Executor).cmdHumanDoubleClick,
		ast.CmdHumanLongPress:   (*Executor).cmdHumanLongPress,
		ast.CmdHumanDrag:        (*Executor).cmdHumanDrag,
		ast.CmdConnect:          (*Executor).cmdConnect,
		ast.CmdGetStatus:        (*Executor).cmdGetStatus,
		ast.CmdDisconnect:       (*Executor).cmdDisconnect,
		ast.CmdGetAppVersion:    (*Executor).cmdGetAppVersion,
		ast.CmdGetCurrentApp:    (*Executor).cmdGetCurrentApp,
	}
}

// execCommand runs one device command. announce controls the
// "Executing: ..." log line; exists conditions run without it.
func (e *Executor) execCommand(cmd *ast.CommandStmt, announce bool) (interface{}, error) {
	if e.Stopped() {
		return nil, ErrStopped
	}
	inv := e.invocation(cmd)
	h, ok := handlers[cmd.Command]
	if !ok {
		e.log("Unknown command: %s", inv.name)
		return nil, nil
	}
	if announce {
		e.log("Executing: %s %v", inv.name, inv.args)
	}
	if e.act == nil && !deviceless[cmd.Command] {
		return nil, inv.fail(ErrNoDevice)
	}

	start := e.now()
	val, err := h(e, inv)
	rec := result.CommandRecord{
		Line:       cmd.Position.Line,
		Command:    inv.name,
		Args:       fmt.Sprint(inv.args),
		Success:    err == nil,
		DurationMs: e.now().Sub(start).Milliseconds(),
	}
	if err == nil {
		rec.Value = truncate(variable.Display(val), maxRecordedValue)
	} else {
		rec.Error = err.Error()
	}
	e.out.RecordCommand(rec)

	if err != nil {
		if e.Stopped() {
			return nil, ErrStopped
		}
		e.logger.Debug("command failed", zap.String("command", inv.name), zap.Int("line", cmd.Position.Line), zap.Error(err))
		return nil, inv.fail(err)
	}
	return val, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ---------------------------------------------------------------------------
// Pointer commands
// ---------------------------------------------------------------------------

func (e *Executor) cmdClick(inv *invocation) (interface{}, error) {
	pt, found, err := e.target(inv)
	if err != nil || !found {
		return false, err
	}
	if err := e.act.Click(e.ctx, pt); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) cmdClickText(inv *invocation) (interface{}, error) {
	return e.clickBy(inv, actuator.ByText)
}

func (e *Executor) cmdClickID(inv *invocation) (interface{}, error) {
	return e.clickBy(inv, actuator.ByID)
}

// clickBy clicks the first element whose kind matches args[0], or the
// selector value when no argument is given.
func (e *Executor) clickBy(inv *invocation, kind actuator.SelectorKind) (interface{}, error) {
	value := inv.stringArg(0)
	if value == "" && inv.stmt.Selector != nil {
		value = e.expandString(inv.stmt.Selector.Value)
	}
	if value == "" {
		return false, nil
	}
	el, err := e.act.Element(e.ctx, actuator.Selector{Kind: kind, Value: value})
	if err != nil || el == nil {
		return false, err
	}
	if err := e.act.Click(e.ctx, el.Bounds.Center()); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) cmdInput(inv *invocation) (interface{}, error) {
	text := inv.stringArg(0)
	if e.selector(inv) != nil {
		el, err := e.element(inv)
		if err != nil || el == nil {
			return false, err
		}
		if err := e.act.Click(e.ctx, el.Bounds.Center()); err != nil {
			return false, err
		}
		if err := e.sleep(e.ctx, InputSettle); err != nil {
			return false, err
		}
		if err := e.act.SendKeys(e.ctx, text); err != nil {
			return false, err
		}
		return true, nil
	}
	if len(inv.args) == 0 {
		return false, nil
	}
	if err := e.act.SendKeys(e.ctx, text); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) cmdClear(inv *invocation) (interface{}, error) {
	if e.selector(inv) != nil {
		el, err := e.element(inv)
		if err != nil || el == nil {
			return false, err
		}
		if err := e.act.Click(e.ctx, el.Bounds.Center()); err != nil {
			return false, err
		}
	}
	if err := e.act.ClearText(e.ctx); err != nil {
		return false, err
	}
	return true, nil
}

// cmdSwipe swipes from the screen center along direction, covering ratio of
// the screen. "up" moves the finger upward. An unknown direction evaluates
// to false without touching the device.
func (e *Executor) cmdSwipe(inv *invocation) (interface{}, error) {
	if len(inv.args) == 0 {
		return false, nil
	}
	dir := strings.ToLower(inv.stringArg(0))
	ratio := DefaultSwipeRatio
	if v, ok := inv.arg(1); ok {
		f, err := variable.ToFloat(v)
		if err != nil {
			return false, fmt.Errorf("invalid swipe percent: %w", err)
		}
		ratio = f
	}
	w, h, err := e.act.WindowSize(e.ctx)
	if err != nil {
		return false, err
	}
	cx, cy := w/2, h/2
	dx := int(float64(w) * ratio / 2)
	dy := int(float64(h) * ratio / 2)

	from := actuator.Point{X: cx, Y: cy}
	to := from
	switch dir {
	case "up":
		from.Y, to.Y = cy+dy, cy-dy
	case "down":
		from.Y, to.Y = cy-dy, cy+dy
	case "left":
		from.X, to.X = cx+dx, cx-dx
	case "right":
		from.X, to.X = cx-dx, cx+dx
	default:
		e.log("Invalid swipe direction: %s", dir)
		return false, nil
	}
	if err := e.act.Swipe(e.ctx, from, to, SwipeDuration); err != nil {
		return false, err
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Waiting
// ---------------------------------------------------------------------------

func (e *Executor) cmdWait(inv *invocation) (interface{}, error) {
	v, ok := inv.arg(0)
	if !ok {
		return false, nil
	}
	secs, err := variable.ToFloat(v)
	if err != nil {
		return false, fmt.Errorf("invalid wait duration: %w", err)
	}
	if err := e.sleep(e.ctx, seconds(secs)); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) waitTimeout(inv *invocation) (time.Duration, error) {
	v, ok := inv.arg(0)
	if !ok {
		return DefaultWaitTimeout, nil
	}
	secs, err := variable.ToFloat(v)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	return seconds(secs), nil
}

func (e *Executor) cmdWaitElement(inv *invocation) (interface{}, error) {
	sel := e.selector(inv)
	if sel == nil {
		return false, nil
	}
	timeout, err := e.waitTimeout(inv)
	if err != nil {
		return false, err
	}
	return e.act.WaitExists(e.ctx, *sel, timeout)
}

func (e *Executor) cmdWaitGone(inv *invocation) (interface{}, error) {
	sel := e.selector(inv)
	if sel == nil {
		return false, nil
	}
	timeout, err := e.waitTimeout(inv)
	if err != nil {
		return false, err
	}
	return e.act.WaitGone(e.ctx, *sel, timeout)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ---------------------------------------------------------------------------
// Keys, power and apps
// ---------------------------------------------------------------------------

func keyHandler(key actuator.Key) handler {
	return func(e *Executor, inv *invocation) (interface{}, error) {
		if err := e.act.PressKey(e.ctx, key); err != nil {
			return false, err
		}
		return true, nil
	}
}

func (e *Executor) cmdUnlock(inv *invocation) (interface{}, error) {
	if err := e.act.Unlock(e.ctx); err != nil {
		return false, err
	}
	return true, nil
}

type appFunc func(a actuator.Actuator, ctx context.Context, pkg string) error

func appHandler(fn appFunc) handler {
	return func(e *Executor, inv *invocation) (interface{}, error) {
		pkg := inv.stringArg(0)
		if pkg == "" {
			return false, nil
		}
		if err := fn(e.act, e.ctx, pkg); err != nil {
			return false, err
		}
		return true, nil
	}
}

func (e *Executor) cmdGetAppVersion(inv *invocation) (interface{}, error) {
	pkg := inv.stringArg(0)
	if pkg == "" {
		return nil, nil
	}
	v, err := e.act.AppVersion(e.ctx, pkg)
	if err != nil {
		return nil, err
	}
	var val interface{}
	if v != "" {
		val = v
	}
	e.log("App %s version: %s", pkg, variable.Display(val))
	return val, nil
}

func (e *Executor) cmdGetCurrentApp(inv *invocation) (interface{}, error) {
	app, err := e.act.CurrentApp(e.ctx)
	if err != nil {
		return nil, err
	}
	val := map[string]interface{}{
		"package":  app.Package,
		"activity": app.Activity,
		"pid":      int64(app.PID),
	}
	e.log("Current app: %s", variable.Display(val))
	return val, nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

func (e *Executor) cmdGetText(inv *invocation) (interface{}, error) {
	el, err := e.element(inv)
	if err != nil || el == nil {
		return "", err
	}
	return el.Text, nil
}

func (e *Executor) cmdGetInfo(inv *invocation) (interface{}, error) {
	el, err := e.element(inv)
	if err != nil {
		return nil, err
	}
	return elementInfo(el, true), nil
}

// cmdFindElement logs the lookup whether or not the element is on screen;
// without a selector it only reports absence.
func (e *Executor) cmdFindElement(inv *invocation) (interface{}, error) {
	sel := e.selector(inv)
	if sel == nil {
		return elementInfo(nil, false), nil
	}
	el, err := e.act.Element(e.ctx, *sel)
	if err != nil {
		return nil, err
	}
	val := elementInfo(el, false)
	e.log("Found element: %s", variable.Display(val))
	return val, nil
}

func (e *Executor) cmdFindElements(inv *invocation) (interface{}, error) {
	items := []interface{}{}
	if sel := e.selector(inv); sel != nil {
		els, err := e.act.Elements(e.ctx, *sel)
		if err != nil {
			return nil, err
		}
		for _, el := range els {
			items = append(items, elementSummary(el))
		}
	}
	e.log("Found %d elements", len(items))
	return map[string]interface{}{
		"elements": items,
		"count":    int64(len(items)),
	}, nil
}

func (e *Executor) cmdDumpHierarchy(inv *invocation) (interface{}, error) {
	xml, err := e.act.DumpHierarchy(e.ctx)
	if err != nil {
		return nil, err
	}
	e.log("Hierarchy dump: %d chars", len(xml))
	return xml, nil
}

func (e *Executor) cmdExists(inv *invocation) (interface{}, error) {
	sel := e.selector(inv)
	if sel == nil {
		return false, nil
	}
	return e.act.Exists(e.ctx, *sel)
}

// ---------------------------------------------------------------------------
// Log and shell
// ---------------------------------------------------------------------------

func (e *Executor) cmdLog(inv *invocation) (interface{}, error) {
	if len(inv.args) == 0 {
		return true, nil
	}
	parts := make([]string, len(inv.args))
	for i, a := range inv.args {
		parts[i] = variable.ToString(a)
	}
	e.log("[LOG] %s", strings.Join(parts, " "))
	return true, nil
}

func (e *Executor) cmdShell(inv *invocation) (interface{}, error) {
	cmd := inv.stringArg(0)
	if cmd == "" {
		return "", nil
	}
	out, err := e.act.Shell(e.ctx, cmd)
	if err != nil {
		return nil, err
	}
	e.log("[SHELL] %s -> %s", cmd, out)
	return out, nil
}

// ---------------------------------------------------------------------------
// Device session
// ---------------------------------------------------------------------------

func (e *Executor) cmdConnect(inv *invocation) (interface{}, error) {
	serial := inv.stringArg(0)
	info, err := e.act.Connect(e.ctx, serial)
	if err != nil {
		return nil, err
	}
	if serial != "" {
		e.log("Connected to device: %s (%s)", info.Serial, info.ProductName)
	} else {
		e.log("Auto-connected to device: %s (%s)", info.Serial, info.ProductName)
	}
	return info.Serial, nil
}

func (e *Executor) cmdGetStatus(inv *invocation) (interface{}, error) {
	st, err := e.act.Status(e.ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return map[string]interface{}{"connected": false}, nil
	}
	return map[string]interface{}{
		"connected":        true,
		"serial":           st.Serial,
		"product_name":     st.ProductName,
		"api_level":        int64(st.APILevel),
		"display_rotation": int64(st.DisplayRotation),
		"display_size": map[string]interface{}{
			"width":  int64(st.DisplayWidth),
			"height": int64(st.DisplayHeight),
		},
	}, nil
}

func (e *Executor) cmdDisconnect(inv *invocation) (interface{}, error) {
	if err := e.act.Disconnect(e.ctx); err != nil {
		return false, err
	}
	e.log("Device disconnected")
	return true, nil
}
