// Package protocol defines the JSON messages exchanged over Redis between
// interpreters and device agents: actuator calls, their replies, agent
// heartbeats and the stop-all broadcast.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/holla2040/droidscript/internal/actuator"
)

// Message type constants.
const (
	TypeActuatorRequest  = "actuator.call.request"
	TypeActuatorResponse = "actuator.call.response"
	TypeAgentHeartbeat   = "agent.heartbeat"
	TypeSystemStopAll    = "system.stop_all"
)

// ValidMessageTypes lists all valid message types.
var ValidMessageTypes = []string{
	TypeActuatorRequest,
	TypeActuatorResponse,
	TypeAgentHeartbeat,
	TypeSystemStopAll,
}

// SchemaVersion is the current protocol version.
const SchemaVersion = "v1.0.0"

// Redis pub/sub channels.
const (
	HeartbeatChannel = "events:heartbeat"
	StopChannel      = "events:stop"
)

// CommandStream is the stream an agent consumes calls from.
func CommandStream(agent string) string { return "commands:" + agent }

// ResponseStream is where a caller instance reads its replies.
func ResponseStream(instance string) string { return "responses:" + instance }

// Message is the top-level protocol message containing an envelope and payload.
type Message struct {
	Envelope Envelope        `json:"envelope"`
	Payload  json.RawMessage `json:"payload"`
}

// Envelope contains message metadata and routing information.
type Envelope struct {
	ID            string `json:"id"`
	Timestamp     int64  `json:"timestamp"`
	Source        Source `json:"source"`
	SchemaVersion string `json:"schema_version"`
	Type          string `json:"type"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ReplyTo       string `json:"reply_to,omitempty"`
}

// Source identifies who sent a message.
type Source struct {
	Service  string `json:"service"`
	Instance string `json:"instance"`
	Version  string `json:"version"`
}

// Error is a standard error object used in response payloads.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error codes carried in responses.
const (
	CodeNotConnected  = "not_connected"
	CodeUnknownMethod = "unknown_method"
	CodeBadParams     = "bad_params"
	CodeDeviceError   = "device_error"
	CodeTimeout       = "timeout"
)

// HeartbeatPayload is published by an agent every few seconds.
type HeartbeatPayload struct {
	Status         string                         `json:"status"`
	UptimeSeconds  int64                          `json:"uptime_seconds"`
	Devices        []string                       `json:"devices"`
	DeviceInfo     map[string]actuator.DeviceInfo `json:"device_info,omitempty"`
	Backend        string                         `json:"backend"`
	CallsProcessed *int                           `json:"calls_processed,omitempty"`
	CallsFailed    *int                           `json:"calls_failed,omitempty"`
	LastError      *string                        `json:"last_error"`
	AgentVersion   string                         `json:"agent_version"`
}

// ActuatorParams is the union of every actuator method's arguments. Only
// the fields the method reads are set.
type ActuatorParams struct {
	Selector   *actuator.Selector `json:"selector,omitempty"`
	Point      *actuator.Point    `json:"point,omitempty"`
	To         *actuator.Point    `json:"to,omitempty"`
	Path       []actuator.Point   `json:"path,omitempty"`
	DurationMs int64              `json:"duration_ms,omitempty"`
	TimeoutMs  int64              `json:"timeout_ms,omitempty"`
	Text       string             `json:"text,omitempty"`
	Key        actuator.Key       `json:"key,omitempty"`
	Package    string             `json:"package,omitempty"`
	Serial     string             `json:"serial,omitempty"`
	Command    string             `json:"command,omitempty"`
}

// ActuatorRequestPayload asks an agent to run one actuator method.
type ActuatorRequestPayload struct {
	Serial    string         `json:"serial,omitempty"`
	Method    string         `json:"method"`
	Params    ActuatorParams `json:"params"`
	TimeoutMs *int           `json:"timeout_ms,omitempty"`
}

// ActuatorResult is the union of every actuator method's return values.
type ActuatorResult struct {
	Bool     *bool                `json:"bool,omitempty"`
	Element  *actuator.Element    `json:"element,omitempty"`
	Elements []actuator.Element   `json:"elements,omitempty"`
	Text     string               `json:"text,omitempty"`
	Width    int                  `json:"width,omitempty"`
	Height   int                  `json:"height,omitempty"`
	App      *actuator.AppInfo    `json:"app,omitempty"`
	Device   *actuator.DeviceInfo `json:"device,omitempty"`
	Status   *actuator.Status     `json:"status,omitempty"`
}

// ActuatorResponsePayload is an agent's reply to one request.
type ActuatorResponsePayload struct {
	Serial     string         `json:"serial,omitempty"`
	Method     string         `json:"method"`
	Success    bool           `json:"success"`
	Result     ActuatorResult `json:"result"`
	Error      *Error         `json:"error,omitempty"`
	DurationMs *int           `json:"duration_ms,omitempty"`
}

// StopAllPayload asks every agent to abandon in-flight calls.
type StopAllPayload struct {
	Reason    string `json:"reason"`
	Initiator string `json:"initiator,omitempty"`
}

// NewEnvelope creates a new envelope with a generated UUIDv4 and current UTC timestamp.
func NewEnvelope(source Source, msgType string) Envelope {
	return Envelope{
		ID:            uuid.New().String(),
		Timestamp:     time.Now().UTC().Unix(),
		Source:        source,
		SchemaVersion: SchemaVersion,
		Type:          msgType,
	}
}

// NewMessage builds a complete message with envelope and marshaled payload.
func NewMessage(source Source, msgType string, payload interface{}) (*Message, error) {
	env := NewEnvelope(source, msgType)

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return &Message{
		Envelope: env,
		Payload:  json.RawMessage(payloadBytes),
	}, nil
}

// Parse unmarshals JSON bytes into a Message.
func Parse(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return &msg, nil
}

// ParseHeartbeat extracts a HeartbeatPayload from a Message.
func ParseHeartbeat(msg *Message) (*HeartbeatPayload, error) {
	var p HeartbeatPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, fmt.Errorf("parse heartbeat payload: %w", err)
	}
	return &p, nil
}

// ParseActuatorRequest extracts an ActuatorRequestPayload from a Message.
func ParseActuatorRequest(msg *Message) (*ActuatorRequestPayload, error) {
	var p ActuatorRequestPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, fmt.Errorf("parse actuator request payload: %w", err)
	}
	return &p, nil
}

// ParseActuatorResponse extracts an ActuatorResponsePayload from a Message.
func ParseActuatorResponse(msg *Message) (*ActuatorResponsePayload, error) {
	var p ActuatorResponsePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, fmt.Errorf("parse actuator response payload: %w", err)
	}
	return &p, nil
}

// ParseStopAll extracts a StopAllPayload from a Message.
func ParseStopAll(msg *Message) (*StopAllPayload, error) {
	var p StopAllPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, fmt.Errorf("parse stop-all payload: %w", err)
	}
	return &p, nil
}
