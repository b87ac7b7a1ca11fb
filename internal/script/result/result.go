// Package result collects the outcome of a script run: its log lines, the
// device commands it issued and the final variables. The executor writes to
// this package; this package does NOT import the executor.
package result

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Data types
// ---------------------------------------------------------------------------

// CommandRecord holds the outcome of one device command.
type CommandRecord struct {
	Line       int    `json:"line"`
	Command    string `json:"command"`
	Args       string `json:"args,omitempty"`
	Success    bool   `json:"success"`
	Value      string `json:"value,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// ExecutionResult is the report of a complete run.
type ExecutionResult struct {
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Logs      []string               `json:"logs"`
	Variables map[string]interface{} `json:"variables"`
	Commands  []CommandRecord        `json:"commands,omitempty"`
	StartTime time.Time              `json:"start_time"`
	EndTime   time.Time              `json:"end_time"`
	Duration  time.Duration          `json:"duration"`
}

// Sink receives log entries as they are produced.
type Sink interface {
	Push(entry string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(entry string)

// Push calls f(entry).
func (f SinkFunc) Push(entry string) { f(entry) }

// ---------------------------------------------------------------------------
// Collector
// ---------------------------------------------------------------------------

// Collector accumulates log entries and command records during a run.
// It is owned by a single run and is not safe for concurrent use.
type Collector struct {
	logs      []string
	commands  []CommandRecord
	sink      Sink
	now       func() time.Time
	startTime time.Time
}

// NewCollector creates a Collector that forwards every entry to sink (which
// may be nil). The start time is recorded immediately.
func NewCollector(sink Sink, now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{
		sink:      sink,
		now:       now,
		startTime: now(),
	}
}

// Log records a line-tagged entry formatted as "[HH:MM:SS] Line N: msg" and
// returns it.
func (c *Collector) Log(line int, msg string) string {
	entry := fmt.Sprintf("[%s] Line %d: %s", c.now().Format("15:04:05"), line, msg)
	c.Append(entry)
	return entry
}

// Append records a preformatted entry.
func (c *Collector) Append(entry string) {
	c.logs = append(c.logs, entry)
	if c.sink != nil {
		c.sink.Push(entry)
	}
}

// AppendSilent records entries without forwarding them to the sink. Nested
// runs use it when their entries were already streamed live.
func (c *Collector) AppendSilent(entries ...string) {
	c.logs = append(c.logs, entries...)
}

// RecordCommand appends a command record.
func (c *Collector) RecordCommand(rec CommandRecord) {
	c.commands = append(c.commands, rec)
}

// Commands returns the command records collected so far.
func (c *Collector) Commands() []CommandRecord {
	return c.commands
}

// Logs returns the entries collected so far.
func (c *Collector) Logs() []string {
	return c.logs
}

// Finalize builds the ExecutionResult. runErr is nil on success.
func (c *Collector) Finalize(runErr error, vars map[string]interface{}) *ExecutionResult {
	end := c.now()
	res := &ExecutionResult{
		Success:   runErr == nil,
		Logs:      c.logs,
		Variables: vars,
		Commands:  c.commands,
		StartTime: c.startTime,
		EndTime:   end,
		Duration:  end.Sub(c.startTime),
	}
	if res.Logs == nil {
		res.Logs = []string{}
	}
	if res.Variables == nil {
		res.Variables = map[string]interface{}{}
	}
	if runErr != nil {
		res.Error = runErr.Error()
	}
	return res
}
