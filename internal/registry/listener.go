package registry

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/holla2040/droidscript/internal/protocol"
)

// HandleHeartbeat applies one raw heartbeat message. It returns the sender
// and payload so callers can forward them.
func (r *Registry) HandleHeartbeat(raw string) (string, *protocol.HeartbeatPayload, error) {
	msg, err := protocol.Parse([]byte(raw))
	if err != nil {
		return "", nil, err
	}
	payload, err := protocol.ParseHeartbeat(msg)
	if err != nil {
		return "", nil, err
	}
	instance := msg.Envelope.Source.Instance
	r.UpdateFromHeartbeat(instance, payload)
	return instance, payload, nil
}

// Listen subscribes to agent heartbeats and feeds them to the registry until
// ctx ends, re-subscribing if the connection drops. onBeat may be nil.
func (r *Registry) Listen(ctx context.Context, rdb *redis.Client, logger *zap.Logger, onBeat func(instance string, p *protocol.HeartbeatPayload)) {
	logger = logger.Named("heartbeat")
	for {
		if ctx.Err() != nil {
			return
		}

		sub := rdb.Subscribe(ctx, protocol.HeartbeatChannel)
		ch := sub.Channel()

		func() {
			defer sub.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						logger.Warn("subscription closed, reconnecting")
						return
					}
					instance, payload, err := r.HandleHeartbeat(msg.Payload)
					if err != nil {
						logger.Debug("bad heartbeat", zap.Error(err))
						continue
					}
					if onBeat != nil {
						onBeat(instance, payload)
					}
				}
			}
		}()

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// RunHealthChecks calls RunHealthCheck every interval until ctx ends,
// reporting agents whose status changed.
func (r *Registry) RunHealthChecks(ctx context.Context, interval time.Duration, onChange func(*AgentEntry)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, instance := range r.RunHealthCheck(now) {
				if onChange != nil {
					if a := r.LookupAgent(instance); a != nil {
						onChange(a)
					}
				}
			}
		}
	}
}
