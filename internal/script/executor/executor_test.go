package executor

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/actuator/fake"
	"github.com/holla2040/droidscript/internal/gesture"
	"github.com/holla2040/droidscript/internal/script/ast"
	"github.com/holla2040/droidscript/internal/script/result"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const screen = `<hierarchy rotation="0">
  <node class="android.widget.FrameLayout" bounds="[0,0][1080,2400]">
    <node class="android.widget.EditText" resource-id="app:id/user" text="" bounds="[100,400][980,500]" enabled="true" focused="true" />
    <node class="android.widget.Button" resource-id="app:id/login" text="Log in" bounds="[100,600][980,700]" enabled="true" clickable="true" />
    <node class="android.widget.TextView" text="2" bounds="[0,800][100,900]" />
    <node class="android.widget.TextView" resource-id="app:id/target" text="Drop" bounds="[0,2000][200,2200]" />
  </node>
</hierarchy>`

var fixedTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newDevice(t *testing.T) *fake.Device {
	t.Helper()
	opts := fake.DefaultOptions()
	opts.Hierarchy = screen
	opts.Apps = map[string]fake.App{"com.example": {Version: "2.1.0", Activity: ".Main"}}
	d, err := fake.New(opts)
	require.NoError(t, err)
	return d
}

func newExecutor(dev actuator.Actuator, opts ...Option) *Executor {
	base := []Option{
		WithSleep(noSleep),
		WithClock(func() time.Time { return fixedTime }),
		WithSynthesizer(gesture.Seeded(7)),
	}
	if dev != nil {
		base = append(base, WithActuator(dev))
	}
	return New(context.Background(), append(base, opts...)...)
}

func run(t *testing.T, dev actuator.Actuator, src string, opts ...Option) *result.ExecutionResult {
	t.Helper()
	return newExecutor(dev, opts...).ExecuteScript(src, nil)
}

// messages strips the "[HH:MM:SS] Line N: " prefix from each entry.
func messages(logs []string) []string {
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		if i := strings.Index(l, ": "); i >= 0 && strings.HasPrefix(l, "[") {
			out = append(out, l[i+2:])
			continue
		}
		out = append(out, l)
	}
	return out
}

func callsNamed(d *fake.Device, method string) []fake.Call {
	var out []fake.Call
	for _, c := range d.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

func TestEveryCommandHasHandler(t *testing.T) {
	for _, c := range ast.Commands() {
		_, ok := handlers[c]
		assert.True(t, ok, "no handler for %s", c)
	}
	assert.Len(t, handlers, len(ast.Commands()))
}

func TestLogFormat(t *testing.T) {
	res := run(t, newDevice(t), "home\n")
	require.True(t, res.Success, res.Error)
	require.NotEmpty(t, res.Logs)
	assert.Equal(t, "[03:04:05] Line 1: Executing: home []", res.Logs[0])
}

func TestCommandRecords(t *testing.T) {
	res := run(t, newDevice(t), "back\nclick 10 20\n")
	require.True(t, res.Success, res.Error)
	require.Len(t, res.Commands, 2)
	assert.Equal(t, "back", res.Commands[0].Command)
	assert.Equal(t, 2, res.Commands[1].Line)
	assert.Equal(t, "[10 20]", res.Commands[1].Args)
	assert.Equal(t, "true", res.Commands[1].Value)
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func TestSetAndInterpolation(t *testing.T) {
	res := run(t, newDevice(t), "set name = \"World\"\nlog \"Hello ${name}\" \"${missing}\"\n")
	require.True(t, res.Success, res.Error)
	msgs := messages(res.Logs)
	assert.Contains(t, msgs, "Set name = World")
	assert.Contains(t, msgs, "[LOG] Hello World ${missing}")
	assert.Equal(t, "World", res.Variables["name"])
}

func TestInitialVariablesAreCopied(t *testing.T) {
	vars := map[string]interface{}{"who": "ops"}
	ex := newExecutor(newDevice(t))
	res := ex.ExecuteScript("set who = \"me\"\n", vars)
	require.True(t, res.Success)
	assert.Equal(t, "ops", vars["who"])
	assert.Equal(t, "me", res.Variables["who"])
}

func TestSetFromCommand(t *testing.T) {
	res := run(t, newDevice(t), "set info = get_info id:\"app:id/login\"\nset txt = get_text id:\"app:id/login\"\n")
	require.True(t, res.Success, res.Error)
	info, ok := res.Variables["info"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, info["exists"])
	assert.Equal(t, true, info["clickable"])
	assert.Equal(t, "app:id/login", info["resource_id"])
	assert.Contains(t, info, "checked")
	assert.Equal(t, "Log in", res.Variables["txt"])
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func TestLoopBindsZeroBasedIndex(t *testing.T) {
	res := run(t, newDevice(t), "loop 3 i\n  log \"i=${i}\"\nend\n")
	require.True(t, res.Success, res.Error)
	var got []string
	for _, m := range messages(res.Logs) {
		if strings.HasPrefix(m, "[LOG]") {
			got = append(got, m)
		}
	}
	assert.Equal(t, []string{"[LOG] i=0", "[LOG] i=1", "[LOG] i=2"}, got)
	assert.Equal(t, int64(2), res.Variables["i"])
}

func TestBreakAtIterationTwo(t *testing.T) {
	dev := newDevice(t)
	src := `loop 5 i
  if exists text:"${i}"
    break
  end
  click 1 1
end
`
	res := run(t, dev, src)
	require.True(t, res.Success, res.Error)
	assert.Len(t, callsNamed(dev, "Click"), 2)
	assert.Equal(t, int64(2), res.Variables["i"])
}

func TestContinueSkipsRestOfBody(t *testing.T) {
	dev := newDevice(t)
	src := `loop 4 i
  if exists text:"${i}"
    continue
  end
  click 1 1
end
`
	res := run(t, dev, src)
	require.True(t, res.Success, res.Error)
	assert.Len(t, callsNamed(dev, "Click"), 3)
}

func TestBreakOutsideLoop(t *testing.T) {
	res := run(t, newDevice(t), "break\n")
	assert.False(t, res.Success)
	assert.Equal(t, "Break outside of loop", res.Error)

	res = run(t, newDevice(t), "continue\n")
	assert.False(t, res.Success)
	assert.Equal(t, "Continue outside of loop", res.Error)
}

func TestWhileStopsAtMaxIterations(t *testing.T) {
	dev := newDevice(t)
	src := "while exists text:\"Log in\"\n  click 5 5\nend\nlog \"after\"\n"
	res := run(t, dev, src, WithMaxIterations(5))
	require.True(t, res.Success, res.Error)
	assert.Len(t, callsNamed(dev, "Click"), 5)
	msgs := messages(res.Logs)
	assert.Contains(t, msgs, "Max iterations (5) exceeded")
	assert.Equal(t, "[LOG] after", msgs[len(msgs)-1])
}

func TestIfElifElse(t *testing.T) {
	src := `if exists text:"Nope"
  log "a"
elif get_text id:"app:id/login" "Log in"
  log "b"
else
  log "c"
end
if not exists text:"Nope"
  log "d"
end
`
	res := run(t, newDevice(t), src)
	require.True(t, res.Success, res.Error)
	msgs := messages(res.Logs)
	assert.Contains(t, msgs, "[LOG] b")
	assert.Contains(t, msgs, "[LOG] d")
	assert.NotContains(t, msgs, "[LOG] a")
	assert.NotContains(t, msgs, "[LOG] c")
}

func TestExistsConditionIsNotAnnounced(t *testing.T) {
	res := run(t, newDevice(t), "if exists text:\"Log in\"\n  log \"x\"\nend\n")
	require.True(t, res.Success)
	for _, m := range messages(res.Logs) {
		assert.False(t, strings.HasPrefix(m, "Executing: exists"), m)
	}
}

func TestTryCatchLogsAndRecovers(t *testing.T) {
	src := `try
  start_app "com.missing"
  log "unreached"
catch
  log "recovered"
end
`
	res := run(t, newDevice(t), src)
	require.True(t, res.Success, res.Error)
	msgs := messages(res.Logs)
	assert.Contains(t, msgs, "Caught exception: start_app: start com.missing: package not installed")
	assert.Contains(t, msgs, "[LOG] recovered")
	assert.NotContains(t, msgs, "[LOG] unreached")
}

func TestUncaughtRuntimeErrorFailsRun(t *testing.T) {
	res := run(t, newDevice(t), "wait \"soon\"\n")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "wait: invalid wait duration")
}

func TestSyntaxErrorBeforeDeviceInteraction(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "home\nset x 5\n")
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Error, "Syntax error: "), res.Error)
	assert.Len(t, res.Logs, 1)
	assert.Empty(t, dev.Calls())
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

func TestStopHaltsActuatorCalls(t *testing.T) {
	dev := newDevice(t)
	ex := newExecutor(dev)
	clicks := 0
	dev.OnCall(func(c fake.Call) {
		if c.Method == "Click" {
			clicks++
			if clicks == 2 {
				ex.Stop()
			}
		}
	})
	res := ex.ExecuteScript("loop 10\n  click 1 1\nend\n", nil)
	assert.False(t, res.Success)
	assert.Equal(t, ErrStopped.Error(), res.Error)
	assert.Len(t, callsNamed(dev, "Click"), 2)
	assert.True(t, strings.HasSuffix(res.Logs[len(res.Logs)-1], "Execution stopped by user"))
	assert.True(t, ex.Stopped())
}

func TestStopIsNotCaughtByTry(t *testing.T) {
	dev := newDevice(t)
	ex := newExecutor(dev)
	dev.OnCall(func(c fake.Call) {
		if c.Method == "Click" {
			ex.Stop()
		}
	})
	res := ex.ExecuteScript("try\n  click 1 1\n  click 2 2\ncatch\n  log \"caught\"\nend\n", nil)
	assert.False(t, res.Success)
	assert.NotContains(t, messages(res.Logs), "[LOG] caught")
	assert.Len(t, callsNamed(dev, "Click"), 1)
}

func TestCancelledContextStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dev := newDevice(t)
	res := New(ctx, WithActuator(dev), WithSleep(noSleep)).ExecuteScript("home\n", nil)
	assert.False(t, res.Success)
	assert.Equal(t, ErrStopped.Error(), res.Error)
	assert.Empty(t, dev.Calls())
}

// ---------------------------------------------------------------------------
// call
// ---------------------------------------------------------------------------

func writeScript(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
}

func TestCallMissingScript(t *testing.T) {
	dir := t.TempDir()
	res := run(t, newDevice(t), "call missing\nlog \"next\"\n", WithScriptDir(dir))
	require.True(t, res.Success, res.Error)
	msgs := messages(res.Logs)
	assert.Contains(t, msgs, "Script not found: "+filepath.Join(dir, "missing.script"))
	assert.Contains(t, msgs, "[LOG] next")
}

func TestCallPassesArgsAndVariables(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "greet.script", "log \"got ${arg0} for ${who}\"\nset who = \"child\"\n")
	src := "set who = \"me\"\ncall greet \"hello\"\nlog \"still ${who}\"\n"
	res := run(t, newDevice(t), src, WithScriptDir(dir))
	require.True(t, res.Success, res.Error)
	msgs := messages(res.Logs)
	assert.Contains(t, msgs, "[LOG] got hello for me")
	assert.Contains(t, msgs, "[LOG] still me")
}

func TestCallFailureIsFalseNotAbort(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "bad.script", "start_app \"com.missing\"\n")
	res := run(t, newDevice(t), "call bad\nlog \"after\"\n", WithScriptDir(dir))
	require.True(t, res.Success, res.Error)
	msgs := messages(res.Logs)
	assert.Contains(t, msgs, "[LOG] after")
	found := false
	for _, m := range msgs {
		if strings.HasPrefix(m, "Error calling script bad.script: ") {
			found = true
		}
	}
	assert.True(t, found, "missing call failure log in %v", msgs)
}

func TestCallDepthLimit(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "again.script", "call again\n")
	res := run(t, newDevice(t), "call again\n", WithScriptDir(dir), WithMaxCallDepth(2))
	require.True(t, res.Success, res.Error)
	assert.Contains(t, messages(res.Logs), "Error calling script again.script: max call depth (2) exceeded")
}

func TestCallStreamsChildLogsOnce(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "child.script", "log \"inside\"\n")
	q := result.NewLogQueue()
	res := run(t, newDevice(t), "call child\n", WithScriptDir(dir), WithSink(q))
	require.True(t, res.Success, res.Error)
	streamed, _ := q.Drain()
	assert.Equal(t, res.Logs, streamed)
}

// ---------------------------------------------------------------------------
// Device commands
// ---------------------------------------------------------------------------

func TestClickSelectorWithOffset(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "click id:\"app:id/login\" offset_x=10 offset_y=5\n")
	require.True(t, res.Success, res.Error)
	clicks := callsNamed(dev, "Click")
	require.Len(t, clicks, 1)
	assert.Equal(t, []interface{}{550, 655}, clicks[0].Args)
}

func TestClickCoordSelector(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "click coord:\"300, 400\"\n")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []interface{}{300, 400}, callsNamed(dev, "Click")[0].Args)
}

func TestClickMissingElementIsFalse(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "set ok = click text:\"Nope\"\n")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, false, res.Variables["ok"])
	assert.Empty(t, callsNamed(dev, "Click"))
}

func TestClickTextAndID(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "click_text \"Log in\"\nclick_id \"app:id/user\"\n")
	require.True(t, res.Success, res.Error)
	clicks := callsNamed(dev, "Click")
	require.Len(t, clicks, 2)
	assert.Equal(t, []interface{}{540, 650}, clicks[0].Args)
	assert.Equal(t, []interface{}{540, 450}, clicks[1].Args)
}

func TestInputWithSelector(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "set user = \"alice\"\ninput id:\"app:id/user\" user\ninput \"!\"\n")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "alice!", dev.Text())
	assert.Equal(t, []string{"Click", "SendKeys", "SendKeys"}, dev.CallNames())
}

func TestClearWithSelector(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "input \"abc\"\nclear id:\"app:id/user\"\n")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "", dev.Text())
}

func TestSwipeDirections(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "swipe up\nswipe left 0.2\n")
	require.True(t, res.Success, res.Error)
	swipes := callsNamed(dev, "Swipe")
	require.Len(t, swipes, 2)
	assert.Equal(t, actuator.Point{X: 540, Y: 1800}, swipes[0].Args[0])
	assert.Equal(t, actuator.Point{X: 540, Y: 600}, swipes[0].Args[1])
	assert.Equal(t, SwipeDuration, swipes[0].Args[2])
	assert.Equal(t, actuator.Point{X: 648, Y: 1200}, swipes[1].Args[0])
	assert.Equal(t, actuator.Point{X: 432, Y: 1200}, swipes[1].Args[1])
}

func TestSwipeUnknownDirectionContinues(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "set ok = swipe diagonal\nlog \"after\"\n")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, false, res.Variables["ok"])
	assert.Empty(t, callsNamed(dev, "Swipe"))
	msgs := messages(res.Logs)
	assert.Contains(t, msgs, "Invalid swipe direction: diagonal")
	assert.Contains(t, msgs, "[LOG] after")
}

func TestSwipeWithoutDirectionIsFalse(t *testing.T) {
	res := run(t, newDevice(t), "set ok = swipe\n")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, false, res.Variables["ok"])
}

func TestWaitElement(t *testing.T) {
	res := run(t, newDevice(t), "set a = wait_element text:\"Log in\" 1\nset b = wait_gone text:\"Nope\" 1\n")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, true, res.Variables["a"])
	assert.Equal(t, true, res.Variables["b"])
}

func TestKeysAndPower(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "back\nhome\nmenu\nrecent\nscreen_off\nscreen_on\nunlock\n")
	require.True(t, res.Success, res.Error)
	var keys []interface{}
	for _, c := range callsNamed(dev, "PressKey") {
		keys = append(keys, c.Args[0])
	}
	assert.Equal(t, []interface{}{"back", "home", "menu", "recent", "sleep", "wakeup"}, keys)
	assert.Len(t, callsNamed(dev, "Unlock"), 1)
	assert.True(t, dev.ScreenOn())
}

func TestAppCommands(t *testing.T) {
	dev := newDevice(t)
	src := `start_app "com.example"
set v = get_app_version "com.example"
set none = get_app_version "com.nothing"
set cur = get_current_app
stop_app "com.example"
clear_app "com.example"
set empty = start_app
`
	res := run(t, dev, src)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "2.1.0", res.Variables["v"])
	assert.Nil(t, res.Variables["none"])
	cur := res.Variables["cur"].(map[string]interface{})
	assert.Equal(t, "com.example", cur["package"])
	assert.Equal(t, false, res.Variables["empty"])
	msgs := messages(res.Logs)
	assert.Contains(t, msgs, "App com.example version: 2.1.0")
	assert.Contains(t, msgs, "App com.nothing version: null")
}

func TestQueries(t *testing.T) {
	src := `set one = find_element class:"android.widget.Button"
set many = find_elements class:"android.widget.TextView"
set xml = dump_hierarchy
set gone = find_element text:"Nope"
`
	res := run(t, newDevice(t), src)
	require.True(t, res.Success, res.Error)
	one := res.Variables["one"].(map[string]interface{})
	assert.Equal(t, "Log in", one["text"])
	assert.NotContains(t, one, "checked")
	many := res.Variables["many"].(map[string]interface{})
	assert.Equal(t, int64(2), many["count"])
	assert.Equal(t, map[string]interface{}{"exists": false}, res.Variables["gone"])
	msgs := messages(res.Logs)
	assert.Contains(t, msgs, "Found 2 elements")
	assert.Contains(t, msgs, `Found element: {"exists":false}`)
	assert.Contains(t, msgs, "Hierarchy dump: "+strconv.Itoa(len(screen))+" chars")
}

func TestShellAndLog(t *testing.T) {
	dev := newDevice(t)
	dev.SetShellOutput("getprop ro.product.model", "Pixel")
	res := run(t, dev, "set m = shell \"getprop ro.product.model\"\nlog \"model\" m 3\n")
	require.True(t, res.Success, res.Error)
	msgs := messages(res.Logs)
	assert.Contains(t, msgs, "[SHELL] getprop ro.product.model -> Pixel")
	assert.Contains(t, msgs, "[LOG] model Pixel 3")
}

func TestBareLogWritesNothing(t *testing.T) {
	res := run(t, newDevice(t), "log\n")
	require.True(t, res.Success, res.Error)
	for _, m := range messages(res.Logs) {
		assert.NotContains(t, m, "[LOG]")
	}
}

func TestSessionCommands(t *testing.T) {
	dev := newDevice(t)
	src := `set before = get_status
connect
set serial = connect "emulator-5554"
set st = get_status
disconnect
`
	res := run(t, dev, src)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, map[string]interface{}{"connected": false}, res.Variables["before"])
	assert.Equal(t, "emulator-5554", res.Variables["serial"])
	st := res.Variables["st"].(map[string]interface{})
	assert.Equal(t, true, st["connected"])
	assert.Equal(t, map[string]interface{}{"width": int64(1080), "height": int64(2400)}, st["display_size"])
	msgs := messages(res.Logs)
	assert.Contains(t, msgs, "Auto-connected to device: emulator-5554 (sdk_gphone64)")
	assert.Contains(t, msgs, "Connected to device: emulator-5554 (sdk_gphone64)")
	assert.Contains(t, msgs, "Device disconnected")
	assert.False(t, dev.Connected())
}

func TestNoDeviceFailsDeviceCommands(t *testing.T) {
	res := run(t, nil, "log \"fine\"\nwait 0\n")
	require.True(t, res.Success, res.Error)

	res = run(t, nil, "home\n")
	assert.False(t, res.Success)
	assert.Equal(t, "home: "+ErrNoDevice.Error(), res.Error)
}

// ---------------------------------------------------------------------------
// human_*
// ---------------------------------------------------------------------------

func TestParseHumanOptions(t *testing.T) {
	o := parseHumanOptions([]interface{}{int64(100), "offset_min=2", float64(200.7), "trajectory=linear_jitter", "duration=1.5", int64(9), "bare"})
	assert.Equal(t, []int64{100, 200, 9}, o.numbers)
	assert.Equal(t, int64(2), o.values["offset_min"])
	assert.Equal(t, 1.5, o.values["duration"])
	assert.Equal(t, "linear_jitter", o.values["trajectory"])
	assert.NotContains(t, o.values, "bare")
}

func TestHumanClickAtCoordinates(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "human_click 100 200 offset_min=1 offset_max=4\n")
	require.True(t, res.Success, res.Error)
	presses := callsNamed(dev, "LongClick")
	require.Len(t, presses, 1)
	x, y := presses[0].Args[0].(int), presses[0].Args[1].(int)
	assert.InDelta(t, 100, x, 4)
	assert.InDelta(t, 200, y, 4)
	hold := presses[0].Args[2].(time.Duration)
	assert.GreaterOrEqual(t, hold, 50*time.Millisecond)
	assert.LessOrEqual(t, hold, 150*time.Millisecond)
}

func TestHumanDoubleClickAndLongPressOnSelector(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "human_double_click id:\"app:id/login\"\nhuman_long_press text:\"Log in\" duration_min=2 duration_max=2\n")
	require.True(t, res.Success, res.Error)
	presses := callsNamed(dev, "LongClick")
	require.Len(t, presses, 3)
	assert.Equal(t, 2*time.Second, presses[2].Args[2])
}

func TestHumanClickMissingTargetIsFalse(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "set ok = human_click text:\"Nope\"\n")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, false, res.Variables["ok"])
	assert.Empty(t, dev.Calls())
}

func TestHumanDragCoordinates(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "human_drag 100 500 100 200 num_points=10 duration=0.5 speed=warp\n")
	require.True(t, res.Success, res.Error)
	swipes := callsNamed(dev, "SwipePath")
	require.Len(t, swipes, 1)
	path := swipes[0].Args[0].([]actuator.Point)
	assert.Len(t, path, 11)
	assert.Equal(t, 50*time.Millisecond, swipes[0].Args[1])
}

func TestHumanDragBetweenElements(t *testing.T) {
	dev := newDevice(t)
	res := run(t, dev, "human_drag id:\"app:id/login\" end_selector_type=id end_selector_value=\"app:id/target\"\n")
	require.True(t, res.Success, res.Error)
	assert.Len(t, callsNamed(dev, "SwipePath"), 1)
}

func TestHumanDefaultsComeFromProfile(t *testing.T) {
	e := newExecutor(newDevice(t))
	e.profile.Drag.NumPoints = 4
	opts, err := e.dragOptions(parseHumanOptions(nil))
	require.NoError(t, err)
	assert.Equal(t, 4, opts.NumPoints)
	assert.Equal(t, gesture.Bezier, opts.Trajectory)

	_, err = e.dragOptions(parseHumanOptions([]interface{}{"num_points=0"}))
	assert.Error(t, err)
}
