package protocol

import (
	"encoding/json"
	"testing"

	"github.com/holla2040/droidscript/internal/actuator"
)

func testSource() Source {
	return Source{Service: "droidscript", Instance: "host-01", Version: "1.0.0"}
}

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(testSource(), TypeAgentHeartbeat)
	if !uuidV4Pattern.MatchString(env.ID) {
		t.Errorf("ID is not valid UUIDv4: %q", env.ID)
	}
	if env.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %q, want %q", env.SchemaVersion, SchemaVersion)
	}
	if env.Timestamp <= 0 {
		t.Errorf("Timestamp should be positive, got %d", env.Timestamp)
	}
	if env.CorrelationID != "" || env.ReplyTo != "" {
		t.Errorf("plain envelope should not be correlated: %+v", env)
	}
}

func TestNewMessageRoundTrip(t *testing.T) {
	calls := 12
	hb := HeartbeatPayload{
		Status:         "running",
		UptimeSeconds:  60,
		Devices:        []string{"emulator-5554"},
		DeviceInfo:     map[string]actuator.DeviceInfo{"emulator-5554": {Serial: "emulator-5554", APILevel: 34}},
		Backend:        "fake",
		CallsProcessed: &calls,
		AgentVersion:   "1.0.0",
	}
	msg, err := NewMessage(testSource(), TypeAgentHeartbeat, hb)
	if err != nil {
		t.Fatalf("NewMessage() error: %v", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if err := Validate(parsed); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	got, err := ParseHeartbeat(parsed)
	if err != nil {
		t.Fatalf("ParseHeartbeat() error: %v", err)
	}
	if got.Devices[0] != "emulator-5554" || got.DeviceInfo["emulator-5554"].APILevel != 34 {
		t.Errorf("heartbeat = %+v", got)
	}
	if got.CallsProcessed == nil || *got.CallsProcessed != 12 {
		t.Errorf("CallsProcessed = %v", got.CallsProcessed)
	}
	if got.LastError != nil {
		t.Errorf("LastError = %v, want nil", *got.LastError)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("{not json")); err == nil {
		t.Error("expected error")
	}
	msg := &Message{Payload: json.RawMessage(`[1,2]`)}
	if _, err := ParseActuatorRequest(msg); err == nil {
		t.Error("expected payload error")
	}
	if _, err := ParseStopAll(msg); err == nil {
		t.Error("expected payload error")
	}
}

func TestStreamNames(t *testing.T) {
	if got := CommandStream("bench-1"); got != "commands:bench-1" {
		t.Errorf("CommandStream = %q", got)
	}
	if got := ResponseStream("host-01"); got != "responses:host-01" {
		t.Errorf("ResponseStream = %q", got)
	}
}
