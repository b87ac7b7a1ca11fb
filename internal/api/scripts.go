package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/holla2040/droidscript/internal/library"
	"github.com/holla2040/droidscript/internal/script/validate"
	"github.com/holla2040/droidscript/internal/session"
)

// scriptContent is the JSON body for inline execute and validate.
type scriptContent struct {
	Content   string                 `json:"content"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// scriptFile is the JSON body for POST /scripts.
type scriptFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (h *Handler) listScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.Library.List()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to list scripts: %v", err)})
		return
	}
	writeJSON(w, http.StatusOK, scripts)
}

func (h *Handler) getScript(w http.ResponseWriter, r *http.Request) {
	name, err := library.Normalize(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	content, err := h.Library.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "content": content})
}

func (h *Handler) saveScript(w http.ResponseWriter, r *http.Request) {
	var req scriptFile
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	name, err := h.Library.Save(req.Name, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Script saved: " + name})
}

func (h *Handler) deleteScript(w http.ResponseWriter, r *http.Request) {
	name, err := library.Normalize(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Library.Delete(name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Script deleted: " + name})
}

func (h *Handler) validateSource(w http.ResponseWriter, r *http.Request) {
	var req scriptContent
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	writeJSON(w, http.StatusOK, validate.ValidateSource(req.Content))
}

func (h *Handler) executeSource(w http.ResponseWriter, r *http.Request) {
	req, ok := h.inlineRequest(w, r)
	if !ok {
		return
	}
	h.execute(w, r, req)
}

func (h *Handler) streamSource(w http.ResponseWriter, r *http.Request) {
	req, ok := h.inlineRequest(w, r)
	if !ok {
		return
	}
	h.stream(w, r, req)
}

func (h *Handler) executeFile(w http.ResponseWriter, r *http.Request) {
	req, ok := h.fileRequest(w, r)
	if !ok {
		return
	}
	h.execute(w, r, req)
}

func (h *Handler) streamFile(w http.ResponseWriter, r *http.Request) {
	req, ok := h.fileRequest(w, r)
	if !ok {
		return
	}
	h.stream(w, r, req)
}

// inlineRequest decodes a scriptContent body. Inline scripts resolve call
// statements against the library directory.
func (h *Handler) inlineRequest(w http.ResponseWriter, r *http.Request) (session.StartRequest, bool) {
	var body scriptContent
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return session.StartRequest{}, false
	}
	return session.StartRequest{
		ScriptName: "inline",
		Source:     body.Content,
		Variables:  body.Variables,
		ScriptDir:  h.Library.Dir(),
		Serial:     h.Serial,
	}, true
}

// fileRequest loads a stored script; the optional body is its variables.
func (h *Handler) fileRequest(w http.ResponseWriter, r *http.Request) (session.StartRequest, bool) {
	name, err := library.Normalize(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return session.StartRequest{}, false
	}
	content, err := h.Library.Get(name)
	if err != nil {
		writeError(w, err)
		return session.StartRequest{}, false
	}
	var vars map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&vars); err != nil && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return session.StartRequest{}, false
	}
	return session.StartRequest{
		ScriptName: name,
		Source:     content,
		Variables:  vars,
		ScriptDir:  h.Library.Dir(),
		Serial:     h.Serial,
	}, true
}

// execute runs to completion and returns the full result. A client that
// disconnects first stops the run.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request, req session.StartRequest) {
	s, err := h.Sessions.Start(req)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.Wait(r.Context())
	if err != nil {
		h.abandon(s.ID())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// stream writes every session event as a server-sent event:
//
//	data: {"type":"log","data":"..."}
//
// The first event carries the session id and the last one is end.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req session.StartRequest) {
	rc := http.NewResponseController(w)
	s, err := h.Sessions.Start(req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	err = s.Stream(r.Context(), func(ev session.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	})
	if err != nil {
		h.logger().Debug("stream ended early", zap.String("session_id", s.ID()), zap.Error(err))
		h.abandon(s.ID())
	}
}

// abandon stops a session nobody is listening to any more.
func (h *Handler) abandon(id string) {
	if err := h.Sessions.Stop(id); err == nil {
		h.logger().Info("client went away, session stopped", zap.String("session_id", id))
	}
}
