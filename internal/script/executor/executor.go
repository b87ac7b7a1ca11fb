// Package executor implements the tree-walking interpreter for droidscript.
// It evaluates a parsed program statement by statement, keeps the run's flat
// variable table, delegates device work to an actuator.Actuator and records
// logs and command outcomes in a result.Collector.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/gesture"
	"github.com/holla2040/droidscript/internal/script/ast"
	"github.com/holla2040/droidscript/internal/script/parser"
	"github.com/holla2040/droidscript/internal/script/profile"
	"github.com/holla2040/droidscript/internal/script/result"
	"github.com/holla2040/droidscript/internal/script/variable"
)

// ---------------------------------------------------------------------------
// Errors and signals
// ---------------------------------------------------------------------------

// ErrStopped ends a run after Stop or context cancellation. try does not
// catch it.
var ErrStopped = errors.New("Execution stopped by user")

var (
	ErrBreakOutsideLoop    = errors.New("Break outside of loop")
	ErrContinueOutsideLoop = errors.New("Continue outside of loop")
)

// ErrNoDevice is returned by device commands when no actuator is configured.
var ErrNoDevice = errors.New("no device actuator configured")

// RuntimeError is a failed command. It is what try/catch catches.
type RuntimeError struct {
	Line    int
	Command string
	Err     error
}

func (e *RuntimeError) Error() string { return fmt.Sprintf("%s: %v", e.Command, e.Err) }

func (e *RuntimeError) Unwrap() error { return e.Err }

// Signal is the loop-control outcome of a statement.
type Signal int

const (
	SignalNone Signal = iota
	SignalBreak
	SignalContinue
)

// Defaults.
const (
	DefaultMaxIterations = 10000
	DefaultMaxCallDepth  = 16
	ScriptExt            = ".script"
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Option configures the executor.
type Option func(*Executor)

// WithActuator sets the device the script drives.
func WithActuator(a actuator.Actuator) Option {
	return func(e *Executor) { e.act = a }
}

// WithSink streams every log entry to s as it is produced.
func WithSink(s result.Sink) Option {
	return func(e *Executor) { e.sink = s }
}

// WithScriptDir sets the directory `call` resolves script names against.
func WithScriptDir(dir string) Option {
	return func(e *Executor) { e.scriptDir = dir }
}

// WithMaxIterations caps each while loop.
func WithMaxIterations(n int) Option {
	return func(e *Executor) { e.maxIterations = n }
}

// WithMaxCallDepth caps nested call statements.
func WithMaxCallDepth(n int) Option {
	return func(e *Executor) { e.maxCallDepth = n }
}

// WithProfile sets the gesture defaults for human_* commands.
func WithProfile(p *profile.GestureProfile) Option {
	return func(e *Executor) { e.profile = p }
}

// WithSynthesizer fixes the random source of human_* commands.
func WithSynthesizer(s *gesture.Synthesizer) Option {
	return func(e *Executor) { e.synth = s }
}

// WithSleep replaces the context-aware wait used by wait, input and the
// humanizer.
func WithSleep(fn gesture.SleepFunc) Option {
	return func(e *Executor) { e.sleep = fn }
}

// WithClock sets the time source for log timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithLogger sets the operator logger. Script logs do not go here.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// ---------------------------------------------------------------------------
// Executor
// ---------------------------------------------------------------------------

// Executor walks a program and evaluates it. One Executor runs one script
// at a time; Stop may be called from any goroutine.
type Executor struct {
	ctx    context.Context
	cancel context.CancelFunc
	stop   *atomic.Bool

	act           actuator.Actuator
	human         *gesture.Humanizer
	synth         *gesture.Synthesizer
	sink          result.Sink
	scriptDir     string
	maxIterations int
	maxCallDepth  int
	depth         int
	profile       *profile.GestureProfile
	sleep         gesture.SleepFunc
	now           func() time.Time
	logger        *zap.Logger

	// per run
	env  *variable.Environment
	out  *result.Collector
	line int
}

// New creates an Executor bound to ctx. Cancelling ctx stops the run like
// Stop does.
func New(ctx context.Context, opts ...Option) *Executor {
	e := &Executor{
		stop:          new(atomic.Bool),
		maxIterations: DefaultMaxIterations,
		maxCallDepth:  DefaultMaxCallDepth,
		sleep:         gesture.Sleep,
		now:           time.Now,
		logger:        zap.NewNop(),
		env:           variable.NewEnvironment(nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	if e.profile == nil {
		e.profile = profile.Default()
	}
	if e.synth == nil {
		e.synth = gesture.NewSynthesizer(nil)
	}
	if e.act != nil {
		e.human = gesture.NewHumanizer(e.act,
			gesture.WithSynthesizer(e.synth),
			gesture.WithSleep(e.sleep),
			gesture.WithLogger(e.logger.Named("gesture")))
	}
	return e
}

// child builds the executor for a called script. It shares the device, the
// sink and the stop flag.
func (e *Executor) child(dir string) *Executor {
	c := &Executor{
		ctx:           e.ctx,
		cancel:        func() {},
		stop:          e.stop,
		act:           e.act,
		human:         e.human,
		synth:         e.synth,
		sink:          e.sink,
		scriptDir:     dir,
		maxIterations: e.maxIterations,
		maxCallDepth:  e.maxCallDepth,
		depth:         e.depth + 1,
		profile:       e.profile,
		sleep:         e.sleep,
		now:           e.now,
		logger:        e.logger,
		env:           variable.NewEnvironment(nil),
	}
	return c
}

// Stop asks the running script to halt. No actuator call starts after the
// flag is observed.
func (e *Executor) Stop() {
	e.stop.Store(true)
	e.cancel()
}

// Stopped reports whether Stop was called or the context ended.
func (e *Executor) Stopped() bool {
	return e.stop.Load() || e.ctx.Err() != nil
}

// ExecuteScript parses source and runs it with a copy of vars. Fatal parse
// diagnostics fail the run before any device interaction.
func (e *Executor) ExecuteScript(source string, vars map[string]interface{}) *result.ExecutionResult {
	prog, diags := parser.ParseSource(source)
	if fatal, ok := parser.FirstFatal(diags); ok {
		e.env = variable.NewEnvironment(vars)
		e.out = result.NewCollector(e.sink, e.now)
		msg := "Syntax error: " + fatal.Error()
		e.out.Append(msg)
		return e.out.Finalize(errors.New(msg), e.env.Snapshot())
	}
	for _, d := range diags {
		e.logger.Debug("script warning", zap.Int("line", d.Line), zap.Int("column", d.Column), zap.String("message", d.Message))
	}
	return e.ExecuteProgram(prog, vars)
}

// ExecuteProgram runs an already parsed program with a copy of vars.
func (e *Executor) ExecuteProgram(prog *ast.Program, vars map[string]interface{}) *result.ExecutionResult {
	e.env = variable.NewEnvironment(vars)
	e.out = result.NewCollector(e.sink, e.now)
	e.line = 0

	e.logger.Debug("run started", zap.Int("statements", len(prog.Statements)), zap.Int("depth", e.depth))
	sig, err := e.execBlock(prog.Statements)
	if err == nil {
		switch sig {
		case SignalBreak:
			err = ErrBreakOutsideLoop
		case SignalContinue:
			err = ErrContinueOutsideLoop
		}
	}
	if err != nil && e.Stopped() {
		err = ErrStopped
	}
	if errors.Is(err, ErrStopped) && e.depth == 0 {
		e.log("Execution stopped by user")
	}

	res := e.out.Finalize(err, e.env.Snapshot())
	e.logger.Debug("run finished", zap.Bool("success", res.Success), zap.String("error", res.Error), zap.Duration("duration", res.Duration))
	return res
}

// log writes a script-visible entry for the current line.
func (e *Executor) log(format string, args ...interface{}) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	e.out.Log(e.line, msg)
}

// ---------------------------------------------------------------------------
// Statement dispatch
// ---------------------------------------------------------------------------

func (e *Executor) execBlock(stmts []ast.Statement) (Signal, error) {
	for _, stmt := range stmts {
		if e.Stopped() {
			return SignalNone, ErrStopped
		}
		sig, err := e.execStatement(stmt)
		if err != nil || sig != SignalNone {
			return sig, err
		}
	}
	return SignalNone, nil
}

func (e *Executor) execStatement(stmt ast.Statement) (Signal, error) {
	e.line = stmt.Pos().Line
	switch s := stmt.(type) {
	case *ast.CommandStmt:
		_, err := e.execCommand(s, true)
		return SignalNone, err
	case *ast.SetStmt:
		return SignalNone, e.execSetStmt(s)
	case *ast.IfStmt:
		return e.execIfStmt(s)
	case *ast.LoopStmt:
		return SignalNone, e.execLoopStmt(s)
	case *ast.WhileStmt:
		return SignalNone, e.execWhileStmt(s)
	case *ast.TryStmt:
		return e.execTryStmt(s)
	case *ast.CallStmt:
		_, err := e.execCallStmt(s)
		return SignalNone, err
	case *ast.BreakStmt:
		return SignalBreak, nil
	case *ast.ContinueStmt:
		return SignalContinue, nil
	default:
		e.log("Unknown node type: %T", stmt)
		return SignalNone, nil
	}
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func (e *Executor) execSetStmt(s *ast.SetStmt) error {
	var val interface{}
	if s.Command != nil {
		v, err := e.execCommand(s.Command, true)
		if err != nil {
			return err
		}
		val = v
	} else {
		val = e.env.Expand(s.Value)
	}
	e.env.Set(s.Name, val)
	e.log("Set %s = %s", s.Name, variable.Display(val))
	return nil
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func (e *Executor) execIfStmt(s *ast.IfStmt) (Signal, error) {
	ok, err := e.evalCondition(s.Condition)
	if err != nil {
		return SignalNone, err
	}
	if ok {
		return e.execBlock(s.Body)
	}
	for _, ei := range s.ElseIfs {
		ok, err := e.evalCondition(ei.Condition)
		if err != nil {
			return SignalNone, err
		}
		if ok {
			return e.execBlock(ei.Body)
		}
	}
	if len(s.ElseBody) > 0 {
		return e.execBlock(s.ElseBody)
	}
	return SignalNone, nil
}

func (e *Executor) execLoopStmt(s *ast.LoopStmt) error {
	for i := int64(0); i < s.Count; i++ {
		if e.Stopped() {
			return ErrStopped
		}
		if s.IterVar != "" {
			e.env.Set(s.IterVar, i)
		}
		sig, err := e.execBlock(s.Body)
		if err != nil {
			return err
		}
		if sig == SignalBreak {
			break
		}
	}
	return nil
}

func (e *Executor) execWhileStmt(s *ast.WhileStmt) error {
	iterations := 0
	for {
		if e.Stopped() {
			return ErrStopped
		}
		ok, err := e.evalCondition(s.Condition)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		iterations++
		if iterations > e.maxIterations {
			e.log("Max iterations (%d) exceeded", e.maxIterations)
			return nil
		}
		sig, err := e.execBlock(s.Body)
		if err != nil {
			return err
		}
		if sig == SignalBreak {
			return nil
		}
	}
}

func (e *Executor) execTryStmt(s *ast.TryStmt) (Signal, error) {
	sig, err := e.execBlock(s.Body)
	if err == nil {
		return sig, nil
	}
	if errors.Is(err, ErrStopped) || e.Stopped() {
		return SignalNone, ErrStopped
	}
	e.log("Caught exception: %v", err)
	return e.execBlock(s.CatchBody)
}

// evalCondition evaluates the test of an if, elif or while.
func (e *Executor) evalCondition(c *ast.Condition) (bool, error) {
	if c == nil {
		return false, nil
	}
	e.line = c.Position.Line
	var ok bool
	switch c.Command {
	case ast.CmdExists:
		v, err := e.execCommand(c.AsCommand(), false)
		if err != nil {
			return false, err
		}
		ok = variable.IsTruthy(v)
	case ast.CmdGetText:
		if e.Stopped() {
			return false, ErrStopped
		}
		inv := e.invocation(c.AsCommand())
		el, err := e.element(inv)
		if err != nil {
			if e.Stopped() {
				return false, ErrStopped
			}
			return false, inv.fail(err)
		}
		if el != nil {
			if len(inv.args) > 0 {
				ok = el.Text == variable.ToString(inv.args[0])
			} else {
				ok = el.Text != ""
			}
		}
	default:
		v, err := e.execCommand(c.AsCommand(), true)
		if err != nil {
			return false, err
		}
		ok = variable.IsTruthy(v)
	}
	if c.Negated {
		ok = !ok
	}
	return ok, nil
}

// ---------------------------------------------------------------------------
// call
// ---------------------------------------------------------------------------

// execCallStmt runs another script file and reports its success. Failures
// are logged and evaluate to false; only a stop aborts the caller.
func (e *Executor) execCallStmt(s *ast.CallStmt) (bool, error) {
	name := s.Script
	if !strings.HasSuffix(name, ScriptExt) {
		name += ScriptExt
	}
	path := filepath.Join(e.scriptDir, name)

	if _, err := os.Stat(path); err != nil {
		e.log("Script not found: %s", path)
		return false, nil
	}
	if e.depth+1 > e.maxCallDepth {
		e.log("Error calling script %s: max call depth (%d) exceeded", name, e.maxCallDepth)
		return false, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		e.log("Error calling script %s: %v", name, err)
		return false, nil
	}

	vars := e.env.Snapshot()
	for i, arg := range s.Args {
		vars[fmt.Sprintf("arg%d", i)] = e.env.Resolve(arg)
	}

	e.logger.Debug("call", zap.String("script", path), zap.Int("depth", e.depth+1))
	res := e.child(filepath.Dir(path)).ExecuteScript(string(src), vars)

	// The child streamed its entries to the shared sink already.
	e.out.AppendSilent(res.Logs...)
	for _, rec := range res.Commands {
		e.out.RecordCommand(rec)
	}

	if e.Stopped() {
		return false, ErrStopped
	}
	if !res.Success {
		e.log("Error calling script %s: %s", name, res.Error)
		return false, nil
	}
	return true, nil
}
