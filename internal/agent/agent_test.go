package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holla2040/droidscript/internal/actuator"
	"github.com/holla2040/droidscript/internal/actuator/fake"
	"github.com/holla2040/droidscript/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var caller = protocol.Source{Service: "droidscript", Instance: "host-01", Version: "1.0.0"}

const screen = `<hierarchy rotation="0">
  <node class="android.widget.Button" text="OK" bounds="[0,0][100,100]" />
</hierarchy>`

func request(t *testing.T, method string, params protocol.ActuatorParams) *protocol.Message {
	t.Helper()
	msg, err := protocol.BuildActuatorRequest(caller, "", method, params, 1000)
	require.NoError(t, err)
	return msg
}

func response(t *testing.T, msg *protocol.Message) *protocol.ActuatorResponsePayload {
	t.Helper()
	p, err := protocol.ParseActuatorResponse(msg)
	require.NoError(t, err)
	return p
}

func TestHandleCorrelatesReply(t *testing.T) {
	a := New(nil, fake.MustNew(fake.Options{Hierarchy: screen}), "agent-01")
	req := request(t, protocol.MethodExists, protocol.ActuatorParams{
		Selector: &actuator.Selector{Kind: actuator.ByText, Value: "OK"},
	})

	reply, err := a.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeActuatorResponse, reply.Envelope.Type)
	assert.Equal(t, req.Envelope.CorrelationID, reply.Envelope.CorrelationID)
	assert.Equal(t, "agent-01", reply.Envelope.Source.Instance)
	require.NoError(t, protocol.Validate(reply))

	p := response(t, reply)
	assert.True(t, p.Success)
	require.NotNil(t, p.Result.Bool)
	assert.True(t, *p.Result.Bool)
	require.NotNil(t, p.DurationMs)
}

func TestHandleRejectsNonRequests(t *testing.T) {
	a := New(nil, fake.MustNew(fake.DefaultOptions()), "agent-01")
	hb, err := protocol.NewMessage(caller, protocol.TypeAgentHeartbeat, protocol.HeartbeatPayload{Status: "online"})
	require.NoError(t, err)
	_, err = a.Handle(context.Background(), hb)
	assert.ErrorContains(t, err, "unexpected message type")
}

func TestExecuteErrorCodes(t *testing.T) {
	dev := fake.MustNew(fake.DefaultOptions())
	ctx := context.Background()

	tests := []struct {
		name string
		req  protocol.ActuatorRequestPayload
		code string
	}{
		{"unknown method", protocol.ActuatorRequestPayload{Method: "teleport"}, protocol.CodeUnknownMethod},
		{"missing selector", protocol.ActuatorRequestPayload{Method: protocol.MethodExists}, protocol.CodeBadParams},
		{"missing package", protocol.ActuatorRequestPayload{Method: protocol.MethodStartApp}, protocol.CodeBadParams},
		{"device failure", protocol.ActuatorRequestPayload{
			Method: protocol.MethodStartApp,
			Params: protocol.ActuatorParams{Package: "com.missing"},
		}, protocol.CodeDeviceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Execute(ctx, dev, &tt.req)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestExecuteResults(t *testing.T) {
	dev := fake.MustNew(fake.Options{Hierarchy: screen})
	ctx := context.Background()

	resp := Execute(ctx, dev, &protocol.ActuatorRequestPayload{Method: protocol.MethodWindowSize})
	require.True(t, resp.Success)
	assert.Equal(t, 1080, resp.Result.Width)
	assert.Equal(t, 2400, resp.Result.Height)

	resp = Execute(ctx, dev, &protocol.ActuatorRequestPayload{
		Method: protocol.MethodShell,
		Params: protocol.ActuatorParams{Command: "echo hi"},
	})
	require.True(t, resp.Success)
	assert.Equal(t, "hi", resp.Result.Text)

	resp = Execute(ctx, dev, &protocol.ActuatorRequestPayload{
		Method: protocol.MethodSwipePath,
		Params: protocol.ActuatorParams{Path: []actuator.Point{{X: 0, Y: 0}, {X: 5, Y: 5}}, DurationMs: 20},
	})
	require.True(t, resp.Success)
	calls := dev.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "SwipePath", calls[0].Method)
	assert.Equal(t, 20*time.Millisecond, calls[0].Args[1])
}

func TestHeartbeatCountsCalls(t *testing.T) {
	dev := fake.MustNew(fake.DefaultOptions())
	a := New(nil, dev, "agent-01", WithBackend("fake"))
	ctx := context.Background()

	hb := a.Heartbeat(ctx)
	assert.Equal(t, "online", hb.Status)
	assert.Empty(t, hb.Devices)
	assert.Equal(t, "fake", hb.Backend)

	_, err := a.Handle(ctx, request(t, protocol.MethodConnect, protocol.ActuatorParams{}))
	require.NoError(t, err)
	_, err = a.Handle(ctx, request(t, protocol.MethodStartApp, protocol.ActuatorParams{Package: "com.missing"}))
	require.NoError(t, err)

	hb = a.Heartbeat(ctx)
	assert.Equal(t, []string{"emulator-5554"}, hb.Devices)
	assert.Equal(t, 34, hb.DeviceInfo["emulator-5554"].APILevel)
	assert.Equal(t, 2, *hb.CallsProcessed)
	assert.Equal(t, 1, *hb.CallsFailed)
	require.NotNil(t, hb.LastError)
	assert.Contains(t, *hb.LastError, "not installed")
}

// blockingDevice parks WaitExists until its context ends.
type blockingDevice struct {
	*fake.Device
	entered chan struct{}
}

func (b *blockingDevice) WaitExists(ctx context.Context, _ actuator.Selector, _ time.Duration) (bool, error) {
	close(b.entered)
	<-ctx.Done()
	return false, ctx.Err()
}

func TestStopCurrentCancelsInFlightCall(t *testing.T) {
	dev := &blockingDevice{Device: fake.MustNew(fake.DefaultOptions()), entered: make(chan struct{})}
	a := New(nil, dev, "agent-01")
	assert.False(t, a.StopCurrent())

	req, err := protocol.BuildActuatorRequest(caller, "", protocol.MethodWaitExists, protocol.ActuatorParams{
		Selector:  &actuator.Selector{Kind: actuator.ByText, Value: "never"},
		TimeoutMs: 60000,
	}, 0)
	require.NoError(t, err)

	done := make(chan *protocol.Message, 1)
	go func() {
		reply, _ := a.Handle(context.Background(), req)
		done <- reply
	}()

	<-dev.entered
	assert.True(t, a.StopCurrent())

	select {
	case reply := <-done:
		p := response(t, reply)
		assert.False(t, p.Success)
		assert.Equal(t, protocol.CodeDeviceError, p.Error.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("call was not cancelled")
	}
}

func TestHandleStopWhenIdle(t *testing.T) {
	a := New(nil, fake.MustNew(fake.DefaultOptions()), "agent-01")
	msg, err := protocol.NewMessage(caller, protocol.TypeSystemStopAll, protocol.StopAllPayload{Reason: "operator"})
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	a.handleStop(string(data))
	a.handleStop("not json")
	assert.False(t, a.StopCurrent())
}

func TestRunWithoutRedis(t *testing.T) {
	a := New(nil, fake.MustNew(fake.DefaultOptions()), "agent-01")
	assert.Error(t, a.Run(context.Background()))
}
