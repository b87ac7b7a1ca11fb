// Package redishealth watches the Redis connection that remote devices and
// agent heartbeats depend on.
package redishealth

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Status represents the current Redis connection state.
type Status struct {
	Connected  bool      `json:"connected"`
	LastPingOK time.Time `json:"last_ping_ok,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Reconnects int       `json:"reconnects"`
	Latency    string    `json:"latency,omitempty"`
}

// Pinger is the part of a Redis client the monitor uses.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// Monitor pings Redis periodically and tracks connection state. After a
// failure it retries with exponential backoff.
type Monitor struct {
	rdb         Pinger
	interval    time.Duration
	baseDelay   time.Duration
	maxAttempts int
	logger      *zap.Logger

	mu         sync.RWMutex
	connected  bool
	lastPing   time.Time
	lastErr    string
	reconnects int
	latency    time.Duration

	onDown func()
	onUp   func()
}

// Option configures the Monitor.
type Option func(*Monitor)

// WithInterval sets the health check interval (default 5s).
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.interval = d
	}
}

// WithBackoff sets the first reconnect delay and the attempts per cycle.
func WithBackoff(base time.Duration, attempts int) Option {
	return func(m *Monitor) {
		m.baseDelay = base
		m.maxAttempts = attempts
	}
}

// WithLogger sets the operator logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// WithOnDown is called when the connection transitions from up to down.
func WithOnDown(fn func()) Option {
	return func(m *Monitor) {
		m.onDown = fn
	}
}

// WithOnUp is called when the connection transitions from down to up.
func WithOnUp(fn func()) Option {
	return func(m *Monitor) {
		m.onUp = fn
	}
}

// New creates a monitor. The connection is assumed up until a ping fails.
func New(rdb Pinger, opts ...Option) *Monitor {
	m := &Monitor{
		rdb:         rdb,
		interval:    5 * time.Second,
		baseDelay:   500 * time.Millisecond,
		maxAttempts: 10,
		logger:      zap.NewNop(),
		connected:   true,
		lastPing:    time.Now(),
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.Named("redishealth")
	return m
}

// Run starts the health check loop. It blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check performs a single PING and updates state.
func (m *Monitor) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := m.rdb.Ping(pingCtx).Err()
	elapsed := time.Since(start)

	m.mu.Lock()
	wasConnected := m.connected

	if err != nil {
		m.connected = false
		m.lastErr = err.Error()
		m.mu.Unlock()

		if wasConnected {
			m.logger.Warn("connection lost", zap.Error(err))
			if m.onDown != nil {
				m.onDown()
			}
		}

		m.reconnect(ctx)
		return
	}

	m.connected = true
	m.lastPing = time.Now()
	m.latency = elapsed
	m.lastErr = ""
	m.mu.Unlock()

	if !wasConnected {
		m.logger.Info("connection restored", zap.Duration("latency", elapsed))
		if m.onUp != nil {
			m.onUp()
		}
	}
}

// reconnect retries the ping with exponential backoff, up to maxAttempts
// per cycle.
func (m *Monitor) reconnect(ctx context.Context) {
	const maxDelay = 30 * time.Second

	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		delay := time.Duration(float64(m.baseDelay) * math.Pow(2, float64(attempt)))
		if delay > maxDelay {
			delay = maxDelay
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := m.rdb.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			m.mu.Lock()
			m.connected = true
			m.lastPing = time.Now()
			m.lastErr = ""
			m.reconnects++
			m.mu.Unlock()

			m.logger.Info("reconnected", zap.Int("attempts", attempt+1))
			if m.onUp != nil {
				m.onUp()
			}
			return
		}

		m.logger.Debug("reconnect attempt failed",
			zap.Int("attempt", attempt+1), zap.Int("max", m.maxAttempts), zap.Error(err))
	}

	m.logger.Warn("reconnect failed, will retry on next health check", zap.Int("attempts", m.maxAttempts))
}

// IsConnected returns whether the last health check succeeded.
func (m *Monitor) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// GetStatus returns the current health status.
func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Status{
		Connected:  m.connected,
		LastPingOK: m.lastPing,
		Reconnects: m.reconnects,
		LastError:  m.lastErr,
	}
	if m.latency > 0 {
		s.Latency = m.latency.String()
	}
	return s
}
