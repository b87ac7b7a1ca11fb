package registry

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/protocol"
)

func makePayload(serials []string) *protocol.HeartbeatPayload {
	processed, failed := 12, 1
	lastErr := "tap: device offline"
	info := make(map[string]actuator.DeviceInfo, len(serials))
	for _, s := range serials {
		info[s] = actuator.DeviceInfo{Serial: s, ProductName: "pixel", APILevel: 34}
	}
	return &protocol.HeartbeatPayload{
		Status:         "online",
		UptimeSeconds:  3600,
		Devices:        serials,
		DeviceInfo:     info,
		Backend:        "adb",
		CallsProcessed: &processed,
		CallsFailed:    &failed,
		LastError:      &lastErr,
		AgentVersion:   "1.0.0",
	}
}

func TestNewRegistryIsEmpty(t *testing.T) {
	r := New()
	if got := r.ListDevices(); len(got) != 0 {
		t.Fatalf("expected 0 devices, got %d", len(got))
	}
	if got := r.ListAgents(); len(got) != 0 {
		t.Fatalf("expected 0 agents, got %d", len(got))
	}
}

func TestUpdateFromHeartbeatAddsAgentAndDevices(t *testing.T) {
	r := New()
	r.UpdateFromHeartbeat("agent-1", makePayload([]string{"emulator-5554", "R58M"}))

	agents := r.ListAgents()
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}
	a := agents[0]
	if a.Instance != "agent-1" {
		t.Errorf("expected instance agent-1, got %s", a.Instance)
	}
	if a.Status != StatusOnline {
		t.Errorf("expected status online, got %s", a.Status)
	}
	if a.Backend != "adb" {
		t.Errorf("expected backend adb, got %s", a.Backend)
	}
	if a.CallsProcessed != 12 || a.CallsFailed != 1 {
		t.Errorf("expected 12/1 calls, got %d/%d", a.CallsProcessed, a.CallsFailed)
	}
	if a.LastError != "tap: device offline" {
		t.Errorf("unexpected last error %q", a.LastError)
	}
	if a.UptimeSeconds != 3600 {
		t.Errorf("expected UptimeSeconds 3600, got %d", a.UptimeSeconds)
	}

	devices := r.ListDevices()
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	if devices[0].Serial != "R58M" || devices[1].Serial != "emulator-5554" {
		t.Errorf("devices not sorted by serial: %s, %s", devices[0].Serial, devices[1].Serial)
	}
	if devices[0].APILevel != 34 || devices[0].ProductName != "pixel" {
		t.Errorf("device info not copied: %+v", devices[0])
	}
}

func TestDeviceReconciliation(t *testing.T) {
	tests := []struct {
		name   string
		first  []string
		second []string
		want   []string
	}{
		{"adds new devices", []string{"a"}, []string{"a", "b"}, []string{"a", "b"}},
		{"removes old devices", []string{"a", "b"}, []string{"a"}, []string{"a"}},
		{"mixed add and remove", []string{"a", "b"}, []string{"b", "c"}, []string{"b", "c"}},
		{"all devices gone", []string{"a"}, []string{}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			r.UpdateFromHeartbeat("agent-1", makePayload(tt.first))
			r.UpdateFromHeartbeat("agent-1", makePayload(tt.second))

			devices := r.ListDevices()
			if len(devices) != len(tt.want) {
				t.Fatalf("expected %d devices, got %d", len(tt.want), len(devices))
			}
			for i, d := range devices {
				if d.Serial != tt.want[i] {
					t.Errorf("device %d: expected %s, got %s", i, tt.want[i], d.Serial)
				}
			}
		})
	}
}

func TestLookupDeviceReturnsCorrectEntry(t *testing.T) {
	r := New()
	r.UpdateFromHeartbeat("agent-1", makePayload([]string{"emulator-5554"}))

	entry := r.LookupDevice("emulator-5554")
	if entry == nil {
		t.Fatal("expected entry, got nil")
	}
	if entry.Agent != "agent-1" {
		t.Errorf("expected agent agent-1, got %s", entry.Agent)
	}
	if entry.CommandStream != "commands:agent-1" {
		t.Errorf("expected CommandStream commands:agent-1, got %s", entry.CommandStream)
	}
	if entry.Status != StatusOnline {
		t.Errorf("expected status online, got %s", entry.Status)
	}
	if r.LookupDevice("nonexistent") != nil {
		t.Error("expected nil for unknown device")
	}
}

func TestLookupReturnsCopies(t *testing.T) {
	r := New()
	r.UpdateFromHeartbeat("agent-1", makePayload([]string{"a"}))

	entry := r.LookupDevice("a")
	entry.Status = "mutated"
	if r.LookupDevice("a").Status == "mutated" {
		t.Error("LookupDevice should return a copy")
	}

	agent := r.LookupAgent("agent-1")
	agent.Devices[0] = "mutated"
	if r.LookupAgent("agent-1").Devices[0] == "mutated" {
		t.Error("LookupAgent should copy the device list")
	}
}

func TestSerialMovesToLatestAgent(t *testing.T) {
	r := New()
	r.UpdateFromHeartbeat("agent-1", makePayload([]string{"a"}))
	r.UpdateFromHeartbeat("agent-2", makePayload([]string{"a"}))

	d := r.LookupDevice("a")
	if d.Agent != "agent-2" {
		t.Fatalf("expected agent-2, got %s", d.Agent)
	}

	// agent-1 going quiet must not mark agent-2's device stale.
	r.SetAgentLastHeartbeat("agent-1", time.Now().Add(-OfflineThreshold-time.Second))
	r.RunHealthCheck(time.Now())
	if got := r.LookupDevice("a").Status; got != StatusOnline {
		t.Errorf("expected online, got %s", got)
	}
}

func TestHealthCheckTransitions(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want string
	}{
		{"fresh stays online", 0, StatusOnline},
		{"becomes stale", StaleThreshold + time.Second, StatusStale},
		{"becomes offline", OfflineThreshold + time.Second, StatusOffline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			r.UpdateFromHeartbeat("agent-1", makePayload([]string{"a"}))
			now := time.Now()
			r.SetAgentLastHeartbeat("agent-1", now.Add(-tt.age))

			changed := r.RunHealthCheck(now)

			if got := r.ListAgents()[0].Status; got != tt.want {
				t.Errorf("agent: expected %s, got %s", tt.want, got)
			}
			if got := r.LookupDevice("a").Status; got != tt.want {
				t.Errorf("device: expected %s, got %s", tt.want, got)
			}
			if tt.want == StatusOnline && len(changed) != 0 {
				t.Errorf("expected no changes, got %v", changed)
			}
			if tt.want != StatusOnline && (len(changed) != 1 || changed[0] != "agent-1") {
				t.Errorf("expected agent-1 to change, got %v", changed)
			}
		})
	}
}

func TestHealthCheckRestoredAfterNewHeartbeat(t *testing.T) {
	r := New()
	r.UpdateFromHeartbeat("agent-1", makePayload([]string{"a"}))

	r.SetAgentLastHeartbeat("agent-1", time.Now().Add(-StaleThreshold-time.Second))
	r.RunHealthCheck(time.Now())
	if s := r.ListAgents()[0].Status; s != StatusStale {
		t.Fatalf("expected stale, got %s", s)
	}

	r.UpdateFromHeartbeat("agent-1", makePayload([]string{"a"}))
	if s := r.ListAgents()[0].Status; s != StatusOnline {
		t.Errorf("expected online after new heartbeat, got %s", s)
	}
	if d := r.LookupDevice("a"); d.Status != StatusOnline {
		t.Errorf("expected device online after new heartbeat, got %s", d.Status)
	}
}

func TestHandleHeartbeatParsesMessage(t *testing.T) {
	r := New()
	src := protocol.Source{Service: "droidscript_agent", Instance: "agent-7", Version: "1.0.0"}
	msg, err := protocol.NewMessage(src, protocol.TypeAgentHeartbeat, makePayload([]string{"a"}))
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	instance, payload, err := r.HandleHeartbeat(string(data))
	if err != nil {
		t.Fatal(err)
	}
	if instance != "agent-7" || payload.Backend != "adb" {
		t.Errorf("unexpected heartbeat %s %+v", instance, payload)
	}
	if r.LookupDevice("a") == nil {
		t.Error("device should be registered")
	}

	if _, _, err := r.HandleHeartbeat("{not json"); err == nil {
		t.Error("expected parse error")
	}
}

func TestConcurrentUpdateAndLookup(t *testing.T) {
	r := New()
	r.UpdateFromHeartbeat("agent-1", makePayload([]string{"a"}))

	var wg sync.WaitGroup
	const iterations = 100

	wg.Add(4)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			r.UpdateFromHeartbeat("agent-1", makePayload([]string{"a", "b"}))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			_ = r.LookupDevice("a")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			_ = r.ListDevices()
			_ = r.ListAgents()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			r.RunHealthCheck(time.Now())
		}
	}()
	wg.Wait()

	if r.LookupDevice("a") == nil {
		t.Fatal("a should exist after concurrent operations")
	}
}

func TestSetAgentLastHeartbeatNoOpForUnknown(t *testing.T) {
	r := New()
	r.SetAgentLastHeartbeat("nonexistent", time.Now())
}
