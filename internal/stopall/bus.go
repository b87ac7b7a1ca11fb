package stopall

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/holla2040/droidscript/internal/protocol"
)

// Publisher is the part of a Redis client Publish uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publish announces state on the stop channel as source. Agents abort their
// in-flight call; other controllers latch.
func Publish(ctx context.Context, rdb Publisher, source protocol.Source, state State) error {
	msg, err := protocol.NewMessage(source, protocol.TypeSystemStopAll, protocol.StopAllPayload{
		Reason:    state.Reason,
		Initiator: state.Initiator,
	})
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := rdb.Publish(ctx, protocol.StopChannel, string(data)).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", protocol.StopChannel, err)
	}
	return nil
}

// HandleRaw triggers from a stop channel payload. Messages sent by self are
// ignored, so a controller does not latch twice on its own announcement.
// It reports whether the latch was triggered.
func (c *Coordinator) HandleRaw(raw, self string) (bool, error) {
	msg, err := protocol.Parse([]byte(raw))
	if err != nil {
		return false, err
	}
	if msg.Envelope.Type != protocol.TypeSystemStopAll {
		return false, fmt.Errorf("unexpected message type %q", msg.Envelope.Type)
	}
	if msg.Envelope.Source.Instance == self {
		return false, nil
	}
	if err := c.HandleMessage(msg); err != nil {
		return false, err
	}
	return true, nil
}

// Listen subscribes to the stop channel until ctx ends, re-subscribing if
// the connection drops.
func (c *Coordinator) Listen(ctx context.Context, rdb *redis.Client, self string, logger *zap.Logger) {
	logger = logger.Named("stopall")
	for {
		if ctx.Err() != nil {
			return
		}

		sub := rdb.Subscribe(ctx, protocol.StopChannel)
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
					triggered, err := c.HandleRaw(msg.Payload, self)
					if err != nil {
						logger.Warn("bad stop-all message", zap.Error(err))
						continue
					}
					if triggered {
						s := c.GetState()
						logger.Warn("stop-all received", zap.String("reason", s.Reason), zap.String("initiator", s.Initiator))
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
