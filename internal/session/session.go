package session

import (
	"context"
	"sync"
	"time"

	"github.com/holla2040/droidscript/internal/script/executor"
	"github.com/holla2040/droidscript/internal/script/result"
)

// Event types, in the order a session emits them. error takes the place of
// result when the run itself could not complete.
const (
	EventSession = "session"
	EventLog     = "log"
	EventResult  = "result"
	EventError   = "error"
	EventEnd     = "end"
)

// Event is one entry of a session's stream.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ResultData is the data of a result event.
type ResultData struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Variables map[string]interface{} `json:"variables"`
}

// Info is a snapshot of a running session.
type Info struct {
	ID         string    `json:"session_id"`
	ScriptName string    `json:"script_name"`
	Serial     string    `json:"device_serial,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	Stopping   bool      `json:"stopping"`
}

// Session is one script run. Its event log is kept in full so any number of
// readers can replay it from the start.
type Session struct {
	id         string
	scriptName string
	serial     string
	startedAt  time.Time
	exec       *executor.Executor

	mu       sync.Mutex
	events   []Event
	changed  chan struct{}
	stopping bool
	res      *result.ExecutionResult

	done chan struct{}
}

func newSession(id, scriptName, serial string, startedAt time.Time) *Session {
	return &Session{
		id:         id,
		scriptName: scriptName,
		serial:     serial,
		startedAt:  startedAt,
		changed:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

// Done is closed once the end event has been emitted.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.id,
		ScriptName: s.scriptName,
		Serial:     s.serial,
		StartedAt:  s.startedAt,
		Stopping:   s.stopping,
	}
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// Events returns a copy of everything emitted so far.
func (s *Session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Stream calls fn for every event from the first one, waiting for new ones
// until the end event or ctx ends. An error from fn stops the stream and is
// returned.
func (s *Session) Stream(ctx context.Context, fn func(Event) error) error {
	next := 0
	for {
		s.mu.Lock()
		pending := s.events[next:len(s.events):len(s.events)]
		changed := s.changed
		s.mu.Unlock()

		for _, ev := range pending {
			if err := fn(ev); err != nil {
				return err
			}
			next++
			if ev.Type == EventEnd {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Wait blocks until the run finishes and returns its result.
func (s *Session) Wait(ctx context.Context) (*result.ExecutionResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.res, nil
}

func (s *Session) stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.exec.Stop()
}

func (s *Session) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}
