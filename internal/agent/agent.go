// Package agent exposes a local actuator to remote interpreters. Requests
// arrive on the agent's Redis command stream, run one at a time against the
// device, and replies go to the stream named by each request's reply_to.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/actuator/remote"
	"github.com/holla2040/droidscript/internal/protocol"
)

// Version is reported in heartbeats.
const Version = "1.0.0"

// DefaultHeartbeatInterval is how often an agent announces itself.
const DefaultHeartbeatInterval = 3 * time.Second

// Agent serves one actuator.
type Agent struct {
	rdb       *redis.Client
	act       actuator.Actuator
	source    protocol.Source
	backend   string
	interval  time.Duration
	block     time.Duration
	logger    *zap.Logger
	startedAt time.Time

	mu        sync.Mutex
	processed int
	failed    int
	lastErr   *string
	cancel    context.CancelFunc // in-flight call, nil when idle
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the operator logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithHeartbeatInterval overrides DefaultHeartbeatInterval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(a *Agent) { a.interval = d }
}

// WithBackend names the actuator backend in heartbeats ("adb", "fake").
func WithBackend(name string) Option {
	return func(a *Agent) { a.backend = name }
}

// New creates an agent named instance. rdb may be nil when only Handle is
// used.
func New(rdb *redis.Client, act actuator.Actuator, instance string, opts ...Option) *Agent {
	a := &Agent{
		rdb: rdb,
		act: act,
		source: protocol.Source{
			Service:  "droidscript_agent",
			Instance: instance,
			Version:  Version,
		},
		interval:  DefaultHeartbeatInterval,
		block:     2 * time.Second,
		logger:    zap.NewNop(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("agent").With(zap.String("instance", instance))
	return a
}

// Source is the identity the agent stamps on its messages.
func (a *Agent) Source() protocol.Source { return a.source }

// Handle runs one actuator.call.request and builds the reply. Only one call
// runs at a time; StopCurrent cancels it.
func (a *Agent) Handle(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	if err := protocol.Validate(msg); err != nil {
		return nil, err
	}
	if msg.Envelope.Type != protocol.TypeActuatorRequest {
		return nil, fmt.Errorf("agent: unexpected message type %q", msg.Envelope.Type)
	}
	req, err := protocol.ParseActuatorRequest(msg)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if req.TimeoutMs != nil && *req.TimeoutMs > 0 {
		var cancelTimeout context.CancelFunc
		callCtx, cancelTimeout = context.WithTimeout(ctx, millis(int64(*req.TimeoutMs)))
		defer cancelTimeout()
	}
	callCtx, cancel := context.WithCancel(callCtx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	resp := Execute(callCtx, a.act, req)

	a.mu.Lock()
	a.cancel = nil
	a.processed++
	if !resp.Success {
		a.failed++
		m := resp.Error.Message
		a.lastErr = &m
	}
	a.mu.Unlock()
	cancel()

	if !resp.Success {
		a.logger.Debug("call failed",
			zap.String("method", req.Method),
			zap.String("code", resp.Error.Code),
			zap.String("error", resp.Error.Message))
	}
	return protocol.BuildActuatorResponse(a.source, msg, resp)
}

// StopCurrent cancels the call in progress, if any.
func (a *Agent) StopCurrent() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel == nil {
		return false
	}
	a.cancel()
	return true
}

// Heartbeat describes the agent and its device.
func (a *Agent) Heartbeat(ctx context.Context) protocol.HeartbeatPayload {
	a.mu.Lock()
	processed, failed, lastErr := a.processed, a.failed, a.lastErr
	a.mu.Unlock()

	hb := protocol.HeartbeatPayload{
		Status:         "online",
		UptimeSeconds:  int64(time.Since(a.startedAt).Seconds()),
		Devices:        []string{},
		Backend:        a.backend,
		CallsProcessed: &processed,
		CallsFailed:    &failed,
		LastError:      lastErr,
		AgentVersion:   Version,
	}
	st, err := a.act.Status(ctx)
	if err != nil {
		hb.Status = "degraded"
		return hb
	}
	if st != nil {
		hb.Devices = []string{st.Serial}
		hb.DeviceInfo = map[string]actuator.DeviceInfo{
			st.Serial: {Serial: st.Serial, ProductName: st.ProductName, APILevel: st.APILevel},
		}
	}
	return hb
}

// Run serves requests, publishes heartbeats and listens for stop-all until
// ctx ends.
func (a *Agent) Run(ctx context.Context) error {
	if a.rdb == nil {
		return errors.New("agent: no redis client")
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.commandLoop(ctx) })
	g.Go(func() error { return a.heartbeatLoop(ctx) })
	g.Go(func() error { return a.stopLoop(ctx) })
	a.logger.Info("agent started", zap.String("stream", protocol.CommandStream(a.source.Instance)))
	err := g.Wait()
	a.logger.Info("agent stopped")
	return err
}

func (a *Agent) commandLoop(ctx context.Context) error {
	stream := protocol.CommandStream(a.source.Instance)
	lastID := strconv.FormatInt(time.Now().UnixMilli(), 10) + "-0"

	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := a.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Count:   1,
			Block:   a.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Warn("command read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(2 * time.Second):
			}
			continue
		}
		for _, s := range streams {
			for _, entry := range s.Messages {
				lastID = entry.ID
				raw, ok := entry.Values["message"].(string)
				if !ok {
					continue
				}
				a.serve(ctx, raw)
			}
		}
	}
}

func (a *Agent) serve(ctx context.Context, raw string) {
	msg, err := protocol.Parse([]byte(raw))
	if err != nil {
		a.logger.Warn("unparsable request", zap.Error(err))
		return
	}
	reply, err := a.Handle(ctx, msg)
	if err != nil {
		a.logger.Warn("rejected request", zap.String("id", msg.Envelope.ID), zap.Error(err))
		return
	}
	if err := remote.PublishReply(ctx, a.rdb, msg.Envelope.ReplyTo, reply); err != nil && ctx.Err() == nil {
		a.logger.Warn("reply failed", zap.String("reply_to", msg.Envelope.ReplyTo), zap.Error(err))
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		a.publishHeartbeat(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Agent) publishHeartbeat(ctx context.Context) {
	msg, err := protocol.NewMessage(a.source, protocol.TypeAgentHeartbeat, a.Heartbeat(ctx))
	if err != nil {
		a.logger.Error("heartbeat build failed", zap.Error(err))
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		a.logger.Error("heartbeat marshal failed", zap.Error(err))
		return
	}
	if err := a.rdb.Publish(ctx, protocol.HeartbeatChannel, string(data)).Err(); err != nil && ctx.Err() == nil {
		a.logger.Warn("heartbeat publish failed", zap.Error(err))
	}
}

func (a *Agent) stopLoop(ctx context.Context) error {
	sub := a.rdb.Subscribe(ctx, protocol.StopChannel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return fmt.Errorf("agent: %s subscription closed", protocol.StopChannel)
			}
			a.handleStop(m.Payload)
		}
	}
}

func (a *Agent) handleStop(raw string) {
	reason := ""
	if msg, err := protocol.Parse([]byte(raw)); err == nil {
		if p, err := protocol.ParseStopAll(msg); err == nil {
			reason = p.Reason
		}
	}
	if a.StopCurrent() {
		a.logger.Info("stop-all cancelled in-flight call", zap.String("reason", reason))
	}
}
