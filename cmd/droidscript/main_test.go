package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/store"
)

// execute runs the CLI in a scratch directory with the fake backend.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func scratch(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DROIDSCRIPT_DEVICE_BACKEND", "fake")
	t.Setenv("DROIDSCRIPT_AGENT_BACKEND", "fake")
	t.Setenv("DROIDSCRIPT_SERVER_DB_PATH", filepath.Join(dir, "runs.db"))
	t.Setenv("DROIDSCRIPT_LOGGER_LEVEL", "error")
	return dir
}

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"n=3", "ratio=2.5", "on=true", "name=bench", "empty=", "expr=a: b", "eq=x=y"})
	require.NoError(t, err)
	assert.Equal(t, 3, vars["n"])
	assert.Equal(t, 2.5, vars["ratio"])
	assert.Equal(t, true, vars["on"])
	assert.Equal(t, "bench", vars["name"])
	assert.Equal(t, "", vars["empty"])
	assert.Equal(t, "a: b", vars["expr"])
	assert.Equal(t, "x=y", vars["eq"])

	for _, bad := range []string{"noequals", "=5"} {
		_, err := parseVars([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint("120, 640")
	require.NoError(t, err)
	assert.Equal(t, actuator.Point{X: 120, Y: 640}, p)

	for _, bad := range []string{"", "12", "a,4", "4,b"} {
		_, err := parsePoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestRunScript(t *testing.T) {
	dir := scratch(t)
	path := writeScript(t, dir, "hello.script", "log \"hi ${who}\"\nhome\n")

	out, err := execute(t, "run", path, "--var", "who=bench")
	require.NoError(t, err)
	assert.Contains(t, out, "[LOG] hi bench")
	assert.Contains(t, out, "PASSED")
}

func TestRunScriptFailureExitCode(t *testing.T) {
	dir := scratch(t)
	path := writeScript(t, dir, "bad.script", "home\nbreak\n")

	out, err := execute(t, "run", path)
	assert.Equal(t, exitCode(1), err)
	assert.Contains(t, out, "FAILED")
}

func TestRunRecordThenReport(t *testing.T) {
	dir := scratch(t)
	path := writeScript(t, dir, "tap.script", "home\nback\n")

	_, err := execute(t, "run", path, "--record", "--json")
	require.NoError(t, err)

	out, err := execute(t, "runs", "--json")
	require.NoError(t, err)
	var runs []store.Run
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "tap.script", runs[0].ScriptName)
	assert.Equal(t, store.StatusPassed, runs[0].Status)

	reports := filepath.Join(dir, "reports")
	_, err = execute(t, "report", runs[0].ID, "-d", reports, "-f", "csv,json")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(reports, runs[0].ID, runs[0].ID+".csv"))
	assert.FileExists(t, filepath.Join(reports, runs[0].ID, runs[0].ID+".json"))

	_, err = execute(t, "report", "no-such-run", "-d", reports)
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	dir := scratch(t)
	good := writeScript(t, dir, "good.script", "home\n")
	bad := writeScript(t, dir, "bad.script", "set 5 = 3\n")

	out, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "Script is valid")

	out, err = execute(t, "validate", good, bad)
	assert.Equal(t, exitCode(1), err)
	assert.Contains(t, out, "Script has syntax errors")
}

func TestTrajectoryCommand(t *testing.T) {
	dir := scratch(t)
	output := filepath.Join(dir, "drag.png")

	_, err := execute(t, "trajectory", "--from", "100,2000", "--to", "900,400", "--seed", "7", "-o", output)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "expected a PNG image")
}

func TestUnknownBackend(t *testing.T) {
	dir := scratch(t)
	path := writeScript(t, dir, "a.script", "home\n")

	_, err := execute(t, "run", path, "--backend", "usb")
	assert.ErrorContains(t, err, "unknown backend")
}
