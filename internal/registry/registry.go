// Package registry tracks device agents and the devices they serve, as
// learned from heartbeats.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/holla2040/droidscript/internal/protocol"
)

// Status constants for agents and devices.
const (
	StatusOnline  = "online"
	StatusStale   = "stale"
	StatusOffline = "offline"
)

// Health check thresholds.
const (
	StaleThreshold   = 15 * time.Second
	OfflineThreshold = 30 * time.Second
)

// DeviceEntry is one device reachable through an agent.
type DeviceEntry struct {
	Serial        string    `json:"serial"`
	Agent         string    `json:"agent"`
	CommandStream string    `json:"command_stream"`
	ProductName   string    `json:"product_name,omitempty"`
	APILevel      int       `json:"api_level,omitempty"`
	Status        string    `json:"status"`
	LastSeen      time.Time `json:"last_seen"`
}

// AgentEntry is an agent's most recent heartbeat.
type AgentEntry struct {
	Instance       string    `json:"instance"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
	Status         string    `json:"status"`
	Devices        []string  `json:"devices"`
	Backend        string    `json:"backend"`
	AgentVersion   string    `json:"agent_version"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	CallsProcessed int       `json:"calls_processed"`
	CallsFailed    int       `json:"calls_failed"`
	LastError      string    `json:"last_error,omitempty"`
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*DeviceEntry // serial -> entry
	agents  map[string]*AgentEntry  // instance -> entry
	now     func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		devices: make(map[string]*DeviceEntry),
		agents:  make(map[string]*AgentEntry),
		now:     time.Now,
	}
}

// UpdateFromHeartbeat upserts an agent and reconciles its device list.
func (r *Registry) UpdateFromHeartbeat(instance string, payload *protocol.HeartbeatPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	agent, exists := r.agents[instance]
	if !exists {
		agent = &AgentEntry{Instance: instance}
		r.agents[instance] = agent
	}
	agent.LastHeartbeat = now
	agent.Status = StatusOnline
	agent.Devices = append([]string(nil), payload.Devices...)
	agent.Backend = payload.Backend
	agent.AgentVersion = payload.AgentVersion
	agent.UptimeSeconds = payload.UptimeSeconds
	if payload.CallsProcessed != nil {
		agent.CallsProcessed = *payload.CallsProcessed
	}
	if payload.CallsFailed != nil {
		agent.CallsFailed = *payload.CallsFailed
	}
	agent.LastError = ""
	if payload.LastError != nil {
		agent.LastError = *payload.LastError
	}

	reported := make(map[string]struct{}, len(payload.Devices))
	for _, serial := range payload.Devices {
		reported[serial] = struct{}{}
	}

	// Drop devices this agent no longer reports.
	for serial, entry := range r.devices {
		if entry.Agent == instance {
			if _, ok := reported[serial]; !ok {
				delete(r.devices, serial)
			}
		}
	}

	// A serial moves to whichever agent reported it last.
	stream := protocol.CommandStream(instance)
	for _, serial := range payload.Devices {
		entry, ok := r.devices[serial]
		if !ok {
			entry = &DeviceEntry{Serial: serial}
			r.devices[serial] = entry
		}
		entry.Agent = instance
		entry.CommandStream = stream
		entry.Status = StatusOnline
		entry.LastSeen = now
		if info, ok := payload.DeviceInfo[serial]; ok {
			entry.ProductName = info.ProductName
			entry.APILevel = info.APILevel
		}
	}
}

// LookupDevice returns a copy of the device entry, or nil if not found.
func (r *Registry) LookupDevice(serial string) *DeviceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.devices[serial]
	if !ok {
		return nil
	}
	cp := *entry
	return &cp
}

// LookupAgent returns a copy of the agent entry, or nil if not found.
func (r *Registry) LookupAgent(instance string) *AgentEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.agents[instance]
	if !ok {
		return nil
	}
	cp := *entry
	cp.Devices = append([]string(nil), entry.Devices...)
	return &cp
}

// ListDevices returns copies of all device entries sorted by serial.
func (r *Registry) ListDevices() []*DeviceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*DeviceEntry, 0, len(r.devices))
	for _, entry := range r.devices {
		cp := *entry
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Serial < result[j].Serial })
	return result
}

// ListAgents returns copies of all agent entries sorted by instance.
func (r *Registry) ListAgents() []*AgentEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*AgentEntry, 0, len(r.agents))
	for _, entry := range r.agents {
		cp := *entry
		cp.Devices = append([]string(nil), entry.Devices...)
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Instance < result[j].Instance })
	return result
}

// RunHealthCheck updates every agent and its devices from the time since
// the last heartbeat, and returns the instances whose status changed.
// Pass time.Now() in production; tests pass a fixed time.
func (r *Registry) RunHealthCheck(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed []string
	for _, agent := range r.agents {
		elapsed := now.Sub(agent.LastHeartbeat)

		status := StatusOnline
		switch {
		case elapsed >= OfflineThreshold:
			status = StatusOffline
		case elapsed >= StaleThreshold:
			status = StatusStale
		}
		if status != agent.Status {
			changed = append(changed, agent.Instance)
		}
		agent.Status = status

		for _, serial := range agent.Devices {
			if dev, ok := r.devices[serial]; ok && dev.Agent == agent.Instance {
				dev.Status = status
				dev.LastSeen = agent.LastHeartbeat
			}
		}
	}
	sort.Strings(changed)
	return changed
}

// SetAgentLastHeartbeat overrides an agent's LastHeartbeat so tests can
// exercise the health thresholds.
func (r *Registry) SetAgentLastHeartbeat(instance string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if agent, ok := r.agents[instance]; ok {
		agent.LastHeartbeat = t
	}
}
