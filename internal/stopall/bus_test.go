package stopall

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/holla2040/droidscript/internal/protocol"
)

type recordingPublisher struct {
	channel string
	payload string
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.payload, _ = message.(string)
	return redis.NewIntResult(1, p.err)
}

var (
	selfSource  = protocol.Source{Service: "droidscript", Instance: "ctrl-a", Version: "1.0.0"}
	otherSource = protocol.Source{Service: "droidscript", Instance: "ctrl-b", Version: "1.0.0"}
)

func TestPublishThenHandleRaw(t *testing.T) {
	pub := &recordingPublisher{}
	state := State{Active: true, Reason: "cable pulled", Initiator: "alice"}
	if err := Publish(context.Background(), pub, otherSource, state); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if pub.channel != protocol.StopChannel {
		t.Errorf("expected channel %s, got %s", protocol.StopChannel, pub.channel)
	}

	c := New(nil)
	triggered, err := c.HandleRaw(pub.payload, selfSource.Instance)
	if err != nil {
		t.Fatalf("HandleRaw: %v", err)
	}
	if !triggered {
		t.Fatal("message from another controller should trigger")
	}
	s := c.GetState()
	if !s.Active || s.Reason != "cable pulled" || s.Initiator != "alice" {
		t.Errorf("unexpected state %+v", s)
	}
}

func TestHandleRawIgnoresSelf(t *testing.T) {
	pub := &recordingPublisher{}
	if err := Publish(context.Background(), pub, selfSource, State{Reason: "mine"}); err != nil {
		t.Fatal(err)
	}
	c := New(func(State) { t.Error("own announcement must not trigger") })
	triggered, err := c.HandleRaw(pub.payload, selfSource.Instance)
	if err != nil || triggered {
		t.Fatalf("expected ignored, got triggered=%v err=%v", triggered, err)
	}
	if c.Check() != nil {
		t.Error("latch should stay clear")
	}
}

func TestHandleRawRejects(t *testing.T) {
	hb, err := protocol.NewMessage(otherSource, protocol.TypeAgentHeartbeat, protocol.HeartbeatPayload{Status: "running"})
	if err != nil {
		t.Fatal(err)
	}
	hbRaw, _ := json.Marshal(hb)

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{"},
		{"wrong type", string(hbRaw)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(nil)
			triggered, err := c.HandleRaw(tt.raw, selfSource.Instance)
			if err == nil || triggered {
				t.Fatalf("expected rejection, got triggered=%v err=%v", triggered, err)
			}
		})
	}
}

func TestPublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("connection refused")}
	err := Publish(context.Background(), pub, selfSource, State{Reason: "x"})
	if err == nil {
		t.Fatal("expected publish error")
	}
}
