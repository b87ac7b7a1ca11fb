// Package session runs scripts in the background, streams their log lines
// as events and records every run in the store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/holla2040/droidscript/internal/script/executor"
	"github.com/holla2040/droidscript/internal/script/result"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrBusy            = errors.New("too many scripts running")
)

// Broadcaster mirrors session events to connected clients (e.g., WebSocket).
type Broadcaster interface {
	SessionEvent(sessionID string, ev Event)
}

// Recorder persists run history.
type Recorder interface {
	CreateRun(id, scriptName, serial string) error
	FinishRun(id string, res *result.ExecutionResult, stopped bool) error
}

// LogPollInterval is how often the pump checks an idle log queue.
const LogPollInterval = 100 * time.Millisecond

// StartRequest describes one run.
type StartRequest struct {
	ScriptName string
	Source     string
	Variables  map[string]interface{}
	// ScriptDir resolves relative call statements.
	ScriptDir string
	Serial    string
}

// Manager owns every running session.
type Manager struct {
	ctx      context.Context
	execOpts []executor.Option
	store    Recorder
	hub      Broadcaster
	gate     func() error
	max      int
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

type Option func(*Manager)

// WithExecutorOptions are applied to the executor of every session, before
// the session's own sink and script directory.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(m *Manager) { m.execOpts = append(m.execOpts, opts...) }
}

func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.store = r }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(m *Manager) { m.hub = b }
}

// WithGate is consulted before every start; a non-nil error refuses it.
func WithGate(fn func() error) Option {
	return func(m *Manager) { m.gate = fn }
}

// WithMaxSessions bounds concurrent runs. Zero or less means unbounded.
func WithMaxSessions(n int) Option {
	return func(m *Manager) { m.max = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager. Sessions end when ctx is cancelled.
func New(ctx context.Context, opts ...Option) *Manager {
	m := &Manager{
		ctx:      ctx,
		max:      1,
		logger:   zap.NewNop(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.Named("session")
	return m
}

// Start launches a run and returns its session. The session event comes
// first in its stream.
func (m *Manager) Start(req StartRequest) (*Session, error) {
	if m.gate != nil {
		if err := m.gate(); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	if m.max > 0 && len(m.sessions) >= m.max {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (limit %d)", ErrBusy, m.max)
	}

	id := uuid.NewString()
	if m.store != nil {
		if err := m.store.CreateRun(id, req.ScriptName, req.Serial); err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("create run: %w", err)
		}
	}

	queue := result.NewLogQueue()
	opts := append([]executor.Option{}, m.execOpts...)
	opts = append(opts, executor.WithSink(queue))
	if req.ScriptDir != "" {
		opts = append(opts, executor.WithScriptDir(req.ScriptDir))
	}

	s := newSession(id, req.ScriptName, req.Serial, m.now())
	s.exec = executor.New(m.ctx, opts...)
	m.sessions[id] = s
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("session started", zap.String("session_id", id), zap.String("script", req.ScriptName))
	m.publish(s, Event{Type: EventSession, Data: id})

	go m.run(s, queue, req)
	return s, nil
}

func (m *Manager) run(s *Session, queue *result.LogQueue, req StartRequest) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.sessions, s.id)
		m.mu.Unlock()
		close(s.done)
	}()

	resCh := make(chan *result.ExecutionResult, 1)
	errCh := make(chan error, 1)
	go func() {
		defer queue.Close()
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("executor panic: %v", r)
			}
		}()
		resCh <- s.exec.ExecuteScript(req.Source, req.Variables)
	}()

	for {
		entries, done, _ := queue.Next(context.Background(), LogPollInterval)
		for _, e := range entries {
			m.publish(s, Event{Type: EventLog, Data: e})
		}
		if done {
			break
		}
	}

	var res *result.ExecutionResult
	var runErr error
	select {
	case res = <-resCh:
	case runErr = <-errCh:
		m.logger.Error("session failed", zap.String("session_id", s.id), zap.Error(runErr))
		res = &result.ExecutionResult{Success: false, Error: runErr.Error(), Variables: map[string]interface{}{}}
	}

	stopped := s.stopRequested() || res.Error == executor.ErrStopped.Error()
	if m.store != nil {
		if err := m.store.FinishRun(s.id, res, stopped); err != nil {
			m.logger.Error("record run failed", zap.String("session_id", s.id), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.res = res
	s.mu.Unlock()

	if runErr != nil {
		m.publish(s, Event{Type: EventError, Data: runErr.Error()})
	} else {
		vars := res.Variables
		if vars == nil {
			vars = map[string]interface{}{}
		}
		m.publish(s, Event{Type: EventResult, Data: ResultData{Success: res.Success, Error: res.Error, Variables: vars}})
	}
	m.logger.Info("session finished",
		zap.String("session_id", s.id),
		zap.Bool("success", res.Success),
		zap.Bool("stopped", stopped),
		zap.Duration("duration", res.Duration))
	m.publish(s, Event{Type: EventEnd, Data: nil})
}

// publish appends to the session stream and mirrors it to the hub.
func (m *Manager) publish(s *Session, ev Event) {
	s.emit(ev)
	if m.hub != nil {
		m.hub.SessionEvent(s.id, ev)
	}
}

// Get returns a running session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Stop asks one running session to halt. It returns without waiting.
func (m *Manager) Stop(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.stop()
	m.logger.Info("session stop requested", zap.String("session_id", id))
	return nil
}

// StopAll asks every running session to halt and returns how many were
// asked.
func (m *Manager) StopAll() int {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		s.stop()
	}
	if len(sessions) > 0 {
		m.logger.Warn("stopped all sessions", zap.Int("count", len(sessions)))
	}
	return len(sessions)
}

// List returns running sessions, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Wait blocks until every session has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
