package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Actuator method names carried in ActuatorRequestPayload.Method.
const (
	MethodExists        = "exists"
	MethodElement       = "element"
	MethodElements      = "elements"
	MethodWaitExists    = "wait_exists"
	MethodWaitGone      = "wait_gone"
	MethodClick         = "click"
	MethodLongClick     = "long_click"
	MethodSwipe         = "swipe"
	MethodSwipePath     = "swipe_path"
	MethodSendKeys      = "send_keys"
	MethodClearText     = "clear_text"
	MethodPressKey      = "press_key"
	MethodUnlock        = "unlock"
	MethodWindowSize    = "window_size"
	MethodDumpHierarchy = "dump_hierarchy"
	MethodShell         = "shell"
	MethodStartApp      = "start_app"
	MethodStopApp       = "stop_app"
	MethodClearApp      = "clear_app"
	MethodAppVersion    = "app_version"
	MethodCurrentApp    = "current_app"
	MethodConnect       = "connect"
	MethodDisconnect    = "disconnect"
	MethodStatus        = "status"
)

// Methods lists every actuator method an agent serves.
var Methods = []string{
	MethodExists, MethodElement, MethodElements, MethodWaitExists, MethodWaitGone,
	MethodClick, MethodLongClick, MethodSwipe, MethodSwipePath,
	MethodSendKeys, MethodClearText, MethodPressKey, MethodUnlock, MethodWindowSize,
	MethodDumpHierarchy, MethodShell,
	MethodStartApp, MethodStopApp, MethodClearApp, MethodAppVersion, MethodCurrentApp,
	MethodConnect, MethodDisconnect, MethodStatus,
}

// BuildActuatorRequest creates an actuator.call.request message ready to send
// to an agent. It generates a correlation_id and sets reply_to to
// "responses:{source.Instance}".
func BuildActuatorRequest(source Source, serial, method string, params ActuatorParams, timeoutMs int) (*Message, error) {
	env := NewEnvelope(source, TypeActuatorRequest)
	env.CorrelationID = uuid.New().String()
	env.ReplyTo = ResponseStream(source.Instance)

	payload := ActuatorRequestPayload{
		Serial:    serial,
		Method:    method,
		Params:    params,
		TimeoutMs: &timeoutMs,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal actuator request payload: %w", err)
	}

	return &Message{
		Envelope: env,
		Payload:  json.RawMessage(payloadBytes),
	}, nil
}

// BuildActuatorResponse creates the reply to req, correlated by its
// correlation_id.
func BuildActuatorResponse(source Source, req *Message, payload ActuatorResponsePayload) (*Message, error) {
	env := NewEnvelope(source, TypeActuatorResponse)
	env.CorrelationID = req.Envelope.CorrelationID

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal actuator response payload: %w", err)
	}

	return &Message{
		Envelope: env,
		Payload:  json.RawMessage(payloadBytes),
	}, nil
}
