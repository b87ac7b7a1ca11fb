package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/protocol"
)

// Execute runs one request against act and describes the outcome. It never
// returns an error; failures are reported in the payload.
func Execute(ctx context.Context, act actuator.Actuator, req *protocol.ActuatorRequestPayload) protocol.ActuatorResponsePayload {
	start := time.Now()
	resp := protocol.ActuatorResponsePayload{Serial: req.Serial, Method: req.Method}

	if err := protocol.ValidateActuatorRequest(req); err != nil {
		code := protocol.CodeBadParams
		if !isMethod(req.Method) {
			code = protocol.CodeUnknownMethod
		}
		resp.Error = &protocol.Error{Code: code, Message: err.Error()}
		return finish(resp, start)
	}

	result, err := dispatch(ctx, act, req.Method, req.Params)
	if err != nil {
		resp.Error = errorFor(err)
		return finish(resp, start)
	}
	resp.Success = true
	resp.Result = result
	return finish(resp, start)
}

func finish(resp protocol.ActuatorResponsePayload, start time.Time) protocol.ActuatorResponsePayload {
	ms := int(time.Since(start).Milliseconds())
	resp.DurationMs = &ms
	return resp
}

func isMethod(name string) bool {
	for _, m := range protocol.Methods {
		if m == name {
			return true
		}
	}
	return false
}

func errorFor(err error) *protocol.Error {
	switch {
	case errors.Is(err, actuator.ErrNotConnected):
		return &protocol.Error{Code: protocol.CodeNotConnected, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &protocol.Error{Code: protocol.CodeTimeout, Message: err.Error()}
	default:
		return &protocol.Error{Code: protocol.CodeDeviceError, Message: err.Error()}
	}
}

func millis(n int64) time.Duration { return time.Duration(n) * time.Millisecond }

func dispatch(ctx context.Context, act actuator.Actuator, method string, p protocol.ActuatorParams) (protocol.ActuatorResult, error) {
	var r protocol.ActuatorResult
	flag := func(b bool, err error) (protocol.ActuatorResult, error) {
		r.Bool = &b
		return r, err
	}
	text := func(s string, err error) (protocol.ActuatorResult, error) {
		r.Text = s
		return r, err
	}

	switch method {
	case protocol.MethodExists:
		return flag(act.Exists(ctx, *p.Selector))
	case protocol.MethodElement:
		el, err := act.Element(ctx, *p.Selector)
		r.Element = el
		return r, err
	case protocol.MethodElements:
		els, err := act.Elements(ctx, *p.Selector)
		r.Elements = els
		return r, err
	case protocol.MethodWaitExists:
		return flag(act.WaitExists(ctx, *p.Selector, millis(p.TimeoutMs)))
	case protocol.MethodWaitGone:
		return flag(act.WaitGone(ctx, *p.Selector, millis(p.TimeoutMs)))
	case protocol.MethodClick:
		return r, act.Click(ctx, *p.Point)
	case protocol.MethodLongClick:
		return r, act.LongClick(ctx, *p.Point, millis(p.DurationMs))
	case protocol.MethodSwipe:
		return r, act.Swipe(ctx, *p.Point, *p.To, millis(p.DurationMs))
	case protocol.MethodSwipePath:
		return r, act.SwipePath(ctx, p.Path, millis(p.DurationMs))
	case protocol.MethodSendKeys:
		return r, act.SendKeys(ctx, p.Text)
	case protocol.MethodClearText:
		return r, act.ClearText(ctx)
	case protocol.MethodPressKey:
		return r, act.PressKey(ctx, p.Key)
	case protocol.MethodUnlock:
		return r, act.Unlock(ctx)
	case protocol.MethodWindowSize:
		w, h, err := act.WindowSize(ctx)
		r.Width, r.Height = w, h
		return r, err
	case protocol.MethodDumpHierarchy:
		return text(act.DumpHierarchy(ctx))
	case protocol.MethodShell:
		return text(act.Shell(ctx, p.Command))
	case protocol.MethodStartApp:
		return r, act.StartApp(ctx, p.Package)
	case protocol.MethodStopApp:
		return r, act.StopApp(ctx, p.Package)
	case protocol.MethodClearApp:
		return r, act.ClearApp(ctx, p.Package)
	case protocol.MethodAppVersion:
		return text(act.AppVersion(ctx, p.Package))
	case protocol.MethodCurrentApp:
		app, err := act.CurrentApp(ctx)
		r.App = &app
		return r, err
	case protocol.MethodConnect:
		info, err := act.Connect(ctx, p.Serial)
		if err == nil {
			r.Device = &info
		}
		return r, err
	case protocol.MethodDisconnect:
		return r, act.Disconnect(ctx)
	case protocol.MethodStatus:
		st, err := act.Status(ctx)
		r.Status = st
		return r, err
	}
	return r, fmt.Errorf("unhandled method %q", method)
}
