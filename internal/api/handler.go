package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/holla2040/droidscript/internal/library"
	"github.com/holla2040/droidscript/internal/redishealth"
	"github.com/holla2040/droidscript/internal/registry"
	"github.com/holla2040/droidscript/internal/report"
	"github.com/holla2040/droidscript/internal/session"
	"github.com/holla2040/droidscript/internal/stopall"
	"github.com/holla2040/droidscript/internal/store"
)

// DefaultRunLimit is used by GET /runs when no limit is given.
const DefaultRunLimit = 50

// systemStatus is the response for GET /system/status.
type systemStatus struct {
	AgentCount   int                 `json:"agent_count"`
	DeviceCount  int                 `json:"device_count"`
	SessionCount int                 `json:"session_count"`
	StopAll      stopall.State       `json:"stop_all"`
	Redis        *redishealth.Status `json:"redis,omitempty"`
}

// stopAllRequest is the JSON body for POST /system/stop-all.
type stopAllRequest struct {
	Reason string `json:"reason"`
}

// Handler holds all dependencies for HTTP request handling. Registry and
// RedisStatus are nil when the server runs without Redis.
type Handler struct {
	Library     *library.Library
	Sessions    *session.Manager
	Store       *store.Store
	Registry    *registry.Registry
	StopAll     *stopall.Coordinator
	RedisStatus func() redishealth.Status
	// PublishStopAll fans a stop-all out to agents and other controllers.
	PublishStopAll func(ctx context.Context, state stopall.State) error
	Logger         *zap.Logger
	// Serial is recorded with every run.
	Serial string
}

// RegisterRoutes adds all API routes to the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /scripts", h.listScripts)
	mux.HandleFunc("POST /scripts", h.saveScript)
	mux.HandleFunc("POST /scripts/execute", h.executeSource)
	mux.HandleFunc("POST /scripts/execute/stream", h.streamSource)
	mux.HandleFunc("POST /scripts/validate", h.validateSource)
	mux.HandleFunc("GET /scripts/{name}", h.getScript)
	mux.HandleFunc("DELETE /scripts/{name}", h.deleteScript)
	mux.HandleFunc("POST /scripts/{name}/execute", h.executeFile)
	mux.HandleFunc("POST /scripts/{name}/execute/stream", h.streamFile)

	mux.HandleFunc("GET /sessions", h.listSessions)
	mux.HandleFunc("POST /sessions/{id}/stop", h.stopSession)
	mux.HandleFunc("GET /sessions/{id}/ws", h.watchSession)

	mux.HandleFunc("GET /runs", h.listRuns)
	mux.HandleFunc("GET /runs/{id}", h.getRun)
	mux.HandleFunc("GET /runs/{id}/csv", h.exportCSV)
	mux.HandleFunc("GET /runs/{id}/json", h.exportJSON)
	mux.HandleFunc("GET /runs/{id}/pdf", h.exportPDF)

	mux.HandleFunc("GET /devices", h.listDevices)
	mux.HandleFunc("GET /devices/{serial}", h.getDevice)
	mux.HandleFunc("GET /devices/{serial}/events", h.listDeviceEvents)
	mux.HandleFunc("GET /agents", h.listAgents)

	mux.HandleFunc("GET /system/status", h.getSystemStatus)
	mux.HandleFunc("POST /system/stop-all", h.triggerStopAll)
	mux.HandleFunc("POST /system/stop-all/clear", h.clearStopAll)
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Sessions.List())
}

// watchSession streams a running session's events over a WebSocket.
func (h *Handler) watchSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	ServeSession(w, r, s, h.logger())
}

func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Sessions.Stop(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Stop signal sent to session: " + id})
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRunLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := h.Store.QueryRuns(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to query runs: %v", err)})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	rep, err := report.Build(h.Store, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.runExists(w, id) {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", id))
	if err := report.ExportCSV(w, h.Store, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) exportJSON(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.runExists(w, id) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := report.ExportJSON(w, h.Store, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.runExists(w, id) {
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", id))
	if err := report.ExportPDF(w, h.Store, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// runExists writes a 404 before any export header is set.
func (h *Handler) runExists(w http.ResponseWriter, id string) bool {
	run, err := h.Store.GetRun(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to get run: %v", err)})
		return false
	}
	if run == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found: " + id})
		return false
	}
	return true
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		writeJSON(w, http.StatusOK, []*registry.DeviceEntry{})
		return
	}
	writeJSON(w, http.StatusOK, h.Registry.ListDevices())
}

func (h *Handler) getDevice(w http.ResponseWriter, r *http.Request) {
	var device *registry.DeviceEntry
	if h.Registry != nil {
		device = h.Registry.LookupDevice(r.PathValue("serial"))
	}
	if device == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (h *Handler) listDeviceEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Store.QueryDeviceEvents(r.PathValue("serial"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to query device events: %v", err)})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		writeJSON(w, http.StatusOK, []*registry.AgentEntry{})
		return
	}
	writeJSON(w, http.StatusOK, h.Registry.ListAgents())
}

func (h *Handler) getSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := systemStatus{
		SessionCount: len(h.Sessions.List()),
		StopAll:      h.StopAll.GetState(),
	}
	if h.Registry != nil {
		status.AgentCount = len(h.Registry.ListAgents())
		status.DeviceCount = len(h.Registry.ListDevices())
	}
	if h.RedisStatus != nil {
		rs := h.RedisStatus()
		status.Redis = &rs
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) triggerStopAll(w http.ResponseWriter, r *http.Request) {
	var req stopAllRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "operator request"
	}
	state := h.StopAll.Trigger(req.Reason, getOperator(r))
	h.logger().Warn("stop-all triggered", zap.String("reason", state.Reason), zap.String("initiator", state.Initiator))
	if h.PublishStopAll != nil {
		if err := h.PublishStopAll(r.Context(), state); err != nil {
			h.logger().Error("stop-all publish failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) clearStopAll(w http.ResponseWriter, r *http.Request) {
	h.StopAll.Clear()
	h.logger().Info("stop-all cleared", zap.String("operator", getOperator(r)))
	writeJSON(w, http.StatusOK, h.StopAll.GetState())
}

// statusFor maps package sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, library.ErrNotFound),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, report.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, library.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, stopall.ErrLatched):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
