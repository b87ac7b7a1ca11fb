// Package report renders a stored script run as CSV, JSON or PDF.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/holla2040/droidscript/internal/store"
)

// ErrRunNotFound is returned when the run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Source is the part of the store reports read from.
type Source interface {
	GetRun(id string) (*store.Run, error)
	QueryLogs(runID string) ([]string, error)
	QueryCommands(runID string) ([]store.CommandRow, error)
}

// RunReport is the complete JSON document for one run.
type RunReport struct {
	store.Run
	Logs     []string           `json:"logs"`
	Commands []store.CommandRow `json:"commands"`
	Passed   int                `json:"commands_passed"`
	Failed   int                `json:"commands_failed"`
}

// Build gathers a run with its logs and command records.
func Build(src Source, runID string) (*RunReport, error) {
	run, err := src.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	logs, err := src.QueryLogs(runID)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	cmds, err := src.QueryCommands(runID)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}

	r := &RunReport{Run: *run, Logs: logs, Commands: cmds}
	for _, c := range cmds {
		if c.Success {
			r.Passed++
		} else {
			r.Failed++
		}
	}
	return r, nil
}

// csvHeader is the first row ExportCSV writes.
var csvHeader = []string{"seq", "line", "command", "args", "success", "value", "error", "duration_ms"}

// ExportCSV writes the run's command records as CSV to w.
func ExportCSV(w io.Writer, src Source, runID string) error {
	r, err := Build(src, runID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range r.Commands {
		record := []string{
			strconv.Itoa(c.Seq),
			strconv.Itoa(c.Line),
			c.Command,
			c.Args,
			strconv.FormatBool(c.Success),
			c.Value,
			c.Error,
			strconv.FormatInt(c.DurationMs, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSON writes the full run report as indented JSON to w.
func ExportJSON(w io.Writer, src Source, runID string) error {
	r, err := Build(src, runID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
