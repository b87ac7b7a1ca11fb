package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/holla2040/droidscript/internal/session"
)

const wsWriteTimeout = 5 * time.Second

// WSEvent is the JSON envelope sent to WebSocket clients.
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// SessionPayload is the payload of a session.<type> event.
type SessionPayload struct {
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data"`
}

// SessionEnvelope wraps one session event as session.<type>.
func SessionEnvelope(id string, ev session.Event) WSEvent {
	return WSEvent{
		Type:    "session." + ev.Type,
		Payload: SessionPayload{SessionID: id, Data: ev.Data},
	}
}

type outbound struct {
	typ  string
	data []byte
}

// Hub fans events out to the /ws clients: session events, script library
// changes, stop-all and device status. A client may narrow what it gets
// with ?topic= prefixes, e.g. ?topic=session.&topic=stop_all.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *zap.Logger

	registerCh   chan *client
	unregisterCh chan *client
	broadcastCh  chan outbound
	done         chan struct{}
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	topics []string
}

func (c *client) wants(eventType string) bool {
	if len(c.topics) == 0 {
		return true
	}
	for _, t := range c.topics {
		if strings.HasPrefix(eventType, t) {
			return true
		}
	}
	return false
}

// NewHub creates a hub. logger may be nil.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:      make(map[*client]struct{}),
		logger:       logger.Named("websocket"),
		registerCh:   make(chan *client, 16),
		unregisterCh: make(chan *client, 16),
		broadcastCh:  make(chan outbound, 256),
		done:         make(chan struct{}),
	}
}

// Run delivers queued events until ctx is cancelled, then drops every
// client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			close(h.done)
			return

		case c := <-h.registerCh:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregisterCh:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()

		case out := <-h.broadcastCh:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(out.typ) {
					continue
				}
				select {
				case c.send <- out.data:
				default:
					h.logger.Debug("client queue full, dropping event", zap.String("type", out.typ))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) enqueue(ev WSEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	select {
	case h.broadcastCh <- outbound{typ: ev.Type, data: data}:
	default:
		h.logger.Warn("broadcast channel full, dropping event", zap.String("type", ev.Type))
	}
}

// BroadcastEvent queues an event for every interested client. Safe to call
// from any goroutine.
func (h *Hub) BroadcastEvent(eventType string, payload interface{}) {
	h.enqueue(WSEvent{Type: eventType, Payload: payload})
}

// SessionEvent mirrors one session event to the hub.
func (h *Hub) SessionEvent(id string, ev session.Event) {
	h.enqueue(SessionEnvelope(id, ev))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func acceptWebSocket(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // bench tools connect from any origin
	})
}

// HandleWebSocket serves /ws: live events from the moment of connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := acceptWebSocket(w, r)
	if err != nil {
		h.logger.Warn("accept failed", zap.Error(err))
		return
	}
	c := &client{
		conn:   conn,
		send:   make(chan []byte, 64),
		topics: r.URL.Query()["topic"],
	}
	select {
	case h.registerCh <- c:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.logger.Debug("client connected", zap.String("remote", r.RemoteAddr), zap.Strings("topics", c.topics))

	// Clients only listen; CloseRead ends ctx when the peer goes away.
	ctx := conn.CloseRead(r.Context())
	defer func() {
		select {
		case h.unregisterCh <- c:
		case <-h.done:
		}
	}()
	defer conn.Close(websocket.StatusNormalClosure, "")
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := writeWS(ctx, conn, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ServeSession streams one session over a WebSocket. Every event is sent
// from the start of the run, so a late subscriber still sees the whole
// transcript, and the connection closes after the end event. Disconnecting
// only stops the watch; the run carries on.
func ServeSession(w http.ResponseWriter, r *http.Request, s *session.Session, logger *zap.Logger) {
	conn, err := acceptWebSocket(w, r)
	if err != nil {
		logger.Warn("accept failed", zap.String("session_id", s.ID()), zap.Error(err))
		return
	}
	ctx := conn.CloseRead(r.Context())

	err = s.Stream(ctx, func(ev session.Event) error {
		data, err := json.Marshal(SessionEnvelope(s.ID(), ev))
		if err != nil {
			return err
		}
		return writeWS(ctx, conn, data)
	})
	if err != nil {
		logger.Debug("session watch ended early", zap.String("session_id", s.ID()), zap.Error(err))
		conn.Close(websocket.StatusGoingAway, "")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "session ended")
}

func writeWS(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}
