// Package stopall latches an operator "stop everything" request. While the
// latch is set no new script runs may start; Clear releases it.
package stopall

import (
	"errors"
	"sync"
	"time"

	"github.com/holla2040/droidscript/internal/protocol"
)

// ErrLatched is returned by Check while a stop-all is in effect.
var ErrLatched = errors.New("stop-all in effect")

type State struct {
	Active      bool      `json:"active"`
	Reason      string    `json:"reason,omitempty"`
	Initiator   string    `json:"initiator,omitempty"`
	TriggeredAt time.Time `json:"triggered_at,omitempty"`
	Triggers    int       `json:"triggers"`
}

// Coordinator holds the latch and calls onStop on every trigger. It knows
// nothing about Redis or sessions; callers wire both through the callback.
type Coordinator struct {
	mu     sync.RWMutex
	state  State
	now    func() time.Time
	onStop func(State)
}

// New creates an inactive Coordinator. onStop may be nil.
func New(onStop func(State)) *Coordinator {
	return &Coordinator{onStop: onStop, now: time.Now}
}

// HandleMessage triggers from a system.stop_all message received from
// another controller.
func (c *Coordinator) HandleMessage(msg *protocol.Message) error {
	p, err := protocol.ParseStopAll(msg)
	if err != nil {
		return err
	}
	initiator := p.Initiator
	if initiator == "" {
		initiator = msg.Envelope.Source.Instance
	}
	c.Trigger(p.Reason, initiator)
	return nil
}

// Trigger sets the latch and returns the new state.
func (c *Coordinator) Trigger(reason, initiator string) State {
	c.mu.Lock()
	c.state = State{
		Active:      true,
		Reason:      reason,
		Initiator:   initiator,
		TriggeredAt: c.now(),
		Triggers:    c.state.Triggers + 1,
	}
	s := c.state
	cb := c.onStop
	c.mu.Unlock()

	if cb != nil {
		cb(s)
	}
	return s
}

// Clear releases the latch. The trigger count survives.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.state = State{Triggers: c.state.Triggers}
	c.mu.Unlock()
}

// Check returns ErrLatched while the latch is set.
func (c *Coordinator) Check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.Active {
		return ErrLatched
	}
	return nil
}

func (c *Coordinator) GetState() State {
	c.mu.RLock()
	s := c.state
	c.mu.RUnlock()
	return s
}
