package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/holla2040/droidscript/internal/protocol"
)

// responseStreamMaxLen bounds each response stream.
const responseStreamMaxLen = 1000

// RedisCaller sends actuator requests to an agent's command stream and
// matches replies read from this instance's response stream.
type RedisCaller struct {
	rdb        *redis.Client
	agent      string
	instance   string
	dispatcher *ResponseDispatcher
	logger     *zap.Logger
	block      time.Duration
}

// NewRedisCaller creates a caller addressing agent. Run must be running for
// Call to see replies.
func NewRedisCaller(rdb *redis.Client, instance, agent string, logger *zap.Logger) *RedisCaller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCaller{
		rdb:        rdb,
		agent:      agent,
		instance:   instance,
		dispatcher: NewResponseDispatcher(),
		logger:     logger.Named("remote"),
		block:      2 * time.Second,
	}
}

// Call implements Caller.
func (c *RedisCaller) Call(ctx context.Context, req *protocol.Message, timeout time.Duration) (*protocol.Message, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	correlationID := req.Envelope.CorrelationID
	ch := c.dispatcher.Register(correlationID)

	streamKey := protocol.CommandStream(c.agent)
	if err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{"message": string(data)},
	}).Err(); err != nil {
		c.dispatcher.Deregister(correlationID)
		return nil, fmt.Errorf("XADD %s: %w", streamKey, err)
	}
	return c.dispatcher.Wait(ctx, correlationID, ch, timeout)
}

// Run reads the response stream and hands replies to their waiters until
// ctx ends. Only entries added after Run starts are considered.
func (c *RedisCaller) Run(ctx context.Context) error {
	stream := protocol.ResponseStream(c.instance)
	lastID := strconv.FormatInt(time.Now().UnixMilli(), 10) + "-0"

	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := c.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Count:   10,
			Block:   c.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("response read failed", zap.String("stream", stream), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
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
				msg, err := protocol.Parse([]byte(raw))
				if err != nil {
					c.logger.Debug("skipping unparsable response", zap.String("id", entry.ID), zap.Error(err))
					continue
				}
				if !c.dispatcher.Dispatch(msg) {
					c.logger.Debug("no waiter for response", zap.String("correlation_id", msg.Envelope.CorrelationID))
				}
			}
		}
	}
}

// Pending reports the number of calls awaiting a reply.
func (c *RedisCaller) Pending() int {
	return c.dispatcher.PendingCount()
}

// PublishReply writes a response to the stream named by reply_to. Agents
// use it; it lives here so both ends share the stream layout.
func PublishReply(ctx context.Context, rdb *redis.Client, replyTo string, msg *protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	return rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: replyTo,
		MaxLen: responseStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"message": string(data)},
	}).Err()
}
