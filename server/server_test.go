package server

import (
	"context"
	"errors"
	"net"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epoc-ed/go-simpletem/hw"
	"github.com/epoc-ed/go-simpletem/hw/sim"
	"github.com/epoc-ed/go-simpletem/logger"
	"github.com/epoc-ed/go-simpletem/wire"
)

type testServer struct {
	srv     *Server
	micro   *sim.Microscope
	addr    string
	serveCh chan error
}

func startServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()

	micro, err := sim.New(
		sim.WithDriveRates(50, 20, 10),
		sim.WithTick(2*time.Millisecond),
		sim.WithLogger(logger.NewNopMockLogger()),
	)
	require.NoError(t, err)

	opts = append([]Option{
		WithHost("127.0.0.1"),
		WithPort(0),
		WithVersion("test"),
		WithLogger(logger.NewNopMockLogger()),
	}, opts...)
	cfg, err := NewConfig(opts...)
	require.NoError(t, err)

	srv, err := New(micro.Instrument(), cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ts := &testServer{srv: srv, micro: micro, addr: srv.Addr().String(), serveCh: make(chan error, 1)}
	go func() { ts.serveCh <- srv.Serve(context.Background()) }()

	t.Cleanup(func() { _ = srv.Close() })

	return ts
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func roundTrip(conn net.Conn, cmd string, args ...any) (wire.Reply, error) {
	f, err := wire.EncodeRequest(cmd, args...)
	if err != nil {
		return wire.Reply{}, err
	}
	if err := wire.WriteFrame(conn, f); err != nil {
		return wire.Reply{}, err
	}

	fr := wire.FrameReader{IdleTimeout: 5 * time.Second, BodyTimeout: time.Second}
	out, err := fr.ReadFrame(conn)
	if err != nil {
		return wire.Reply{}, err
	}

	return wire.DecodeReply(out)
}

func call(t *testing.T, conn net.Conn, cmd string, args ...any) wire.Reply {
	t.Helper()

	rep, err := roundTrip(conn, cmd, args...)
	require.NoError(t, err)

	return rep
}

// tiltState is safe to use inside assert.Eventually conditions.
func tiltState(conn net.Conn) hw.AxisState {
	var st hw.StageStatus
	rep, err := roundTrip(conn, "GetStageStatus")
	if err != nil || rep.Decode(&st) != nil {
		return -1
	}

	return st[hw.AxisTiltX]
}

func TestNew_RejectsIncompleteInstrument(t *testing.T) {
	_, err := New(hw.Instrument{Stage: &hw.MockStage{}}, nil)
	assert.Error(t, err)
}

func TestConfig_Options(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, ":3535", cfg.Address())

	_, err = NewConfig(WithPort(70000))
	assert.Error(t, err)
	_, err = NewConfig(WithReadTimeout(time.Millisecond))
	assert.Error(t, err)
	_, err = NewConfig(WithShutdownTimeout(time.Hour))
	assert.Error(t, err)
	_, err = NewConfig(WithMotionQueueSize(0))
	assert.Error(t, err)
	_, err = NewConfig(WithFatalHandler(nil))
	assert.Error(t, err)
}

func TestServer_CommandSet(t *testing.T) {
	ts := startServer(t)

	want := []string{
		"ping", "version", "exit_server",
		"GetStagePosition", "GetStageStatus", "SetXRel", "SetYRel", "SetZRel", "SetTXRel",
		"SetTiltXAngle", "GetTiltXAngle", "Getf1OverRateTxNum", "Setf1OverRateTxNum",
		"GetMovementValueMeasurementMethod", "StopStage",
		"GetMagValue", "GetFunctionMode", "SelectFunctionMode", "SetSelector", "GetSpotSize", "GetAlpha",
		"GetAperatureSize", "SetILFocus", "GetCL3", "GetIL1", "GetIL3", "GetOLf", "GetOLc",
		"GetILs", "GetPLA", "SetILs", "GetBeamBlank", "SetBeamBlank",
	}
	assert.ElementsMatch(t, want, ts.srv.Commands())
}

func TestServer_RequestsOnOneSession(t *testing.T) {
	ts := startServer(t)
	conn := dial(t, ts.addr)

	rep := call(t, conn, "ping")
	assert.True(t, rep.IsOK())
	assert.Equal(t, "pong", rep.Message())

	rep = call(t, conn, "version")
	assert.Equal(t, "test", rep.Message())

	rep = call(t, conn, "GetStagePosition")
	require.True(t, rep.IsOK())
	var pos hw.StagePosition
	require.NoError(t, rep.Decode(&pos))
	assert.Equal(t, hw.StagePosition{1.1, 1.2, 1.3, 0, 1.5}, pos)

	rep = call(t, conn, "GetMagValue")
	assert.JSONEq(t, `[15000, "X", "X15k"]`, string(rep.Payload))

	rep = call(t, conn, "SetZRel", 100)
	assert.True(t, rep.IsOK())

	rep = call(t, conn, "GetSomething")
	assert.Equal(t, wire.StatusError, rep.Status)
	assert.Equal(t, "Function: GetSomething not implemented", rep.Message())

	rep = call(t, conn, "Setf1OverRateTxNum", 9)
	assert.Equal(t, wire.StatusError, rep.Status)
	assert.Contains(t, rep.Message(), "Exception occurred when calling: Setf1OverRateTxNum.")

	rep = call(t, conn, "SetILs", 100, 200)
	assert.True(t, rep.IsOK())
	rep = call(t, conn, "GetILs")
	assert.JSONEq(t, `[100, 200]`, string(rep.Payload))

	rep = call(t, conn, "SetBeamBlank", 1)
	assert.True(t, rep.IsOK())
	rep = call(t, conn, "GetBeamBlank")
	assert.JSONEq(t, `1`, string(rep.Payload))
}

func TestServer_PerCallSessionsDoNotLeak(t *testing.T) {
	ts := startServer(t)

	for i := 0; i < 20; i++ {
		conn, err := net.DialTimeout("tcp", ts.addr, time.Second)
		require.NoError(t, err)
		rep := call(t, conn, "ping")
		assert.True(t, rep.IsOK())
		require.NoError(t, conn.Close())
	}

	assert.Eventually(t, func() bool {
		return ts.srv.Metrics().ConnActiveGauge.Load() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(20), ts.srv.Metrics().ConnAcceptCount.Load())
}

func TestServer_ConcurrentSessionsAreServed(t *testing.T) {
	ts := startServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			conn, err := net.DialTimeout("tcp", ts.addr, time.Second)
			if !assert.NoError(t, err) {
				return
			}
			defer conn.Close()

			for j := 0; j < 10; j++ {
				f, _ := wire.EncodeRequest("ping")
				if !assert.NoError(t, wire.WriteFrame(conn, f)) {
					return
				}
				fr := wire.FrameReader{BodyTimeout: time.Second}
				out, err := fr.ReadFrame(conn)
				if !assert.NoError(t, err) {
					return
				}
				rep, err := wire.DecodeReply(out)
				if assert.NoError(t, err) {
					assert.Equal(t, "pong", rep.Message())
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(80), ts.srv.Metrics().RequestCount.Load())
}

func TestServer_AsyncTiltKeepsServing(t *testing.T) {
	ts := startServer(t)
	conn := dial(t, ts.addr)

	begin := time.Now()
	rep := call(t, conn, "SetTiltXAngle", 10, true, false)
	require.True(t, rep.IsOK())
	assert.Less(t, time.Since(begin), 300*time.Millisecond)

	assert.Equal(t, hw.Moving, tiltState(conn))

	assert.Eventually(t, func() bool {
		return tiltState(conn) == hw.Rest
	}, 2*time.Second, 10*time.Millisecond)

	var angle float64
	require.NoError(t, call(t, conn, "GetTiltXAngle").Decode(&angle))
	assert.InDelta(t, 10, angle, 1e-9)
}

func TestServer_StatusMovingRightAfterAsyncReply(t *testing.T) {
	ts := startServer(t)

	dispatch := func(cmd string, args ...any) wire.Reply {
		f, err := wire.EncodeRequest(cmd, args...)
		require.NoError(t, err)
		out, _, err := ts.srv.dispatcher.Dispatch(f)
		require.NoError(t, err)
		rep, err := wire.DecodeReply(out)
		require.NoError(t, err)
		require.True(t, rep.IsOK(), rep.Message())

		return rep
	}

	target := 0.0
	for i := 0; i < 10; i++ {
		target += 0.2
		dispatch("SetTiltXAngle", target, true, false)

		var st hw.StageStatus
		require.NoError(t, dispatch("GetStageStatus").Decode(&st))
		require.Equal(t, hw.Moving, st[hw.AxisTiltX], "attempt %d", i)
	}

	require.Eventually(t, func() bool { return !ts.srv.Motion().Moving() }, 2*time.Second, 5*time.Millisecond)

	var st hw.StageStatus
	require.NoError(t, dispatch("GetStageStatus").Decode(&st))
	assert.Equal(t, hw.Rest, st[hw.AxisTiltX])
}

func TestServer_StatusMovingBetweenQueuedTilts(t *testing.T) {
	ts := startServer(t)
	conn := dial(t, ts.addr)

	require.True(t, call(t, conn, "SetTiltXAngle", 2, true, false).IsOK())
	require.True(t, call(t, conn, "SetTXRel", 2, true, false).IsOK())

	// the axis may only read Rest once both rotations have run
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := tiltState(conn)
		var angle float64
		require.NoError(t, call(t, conn, "GetTiltXAngle").Decode(&angle))
		if st == hw.Rest {
			assert.InDelta(t, 4, angle, 1e-9)
			break
		}
		require.Equal(t, hw.Moving, st)
		require.True(t, time.Now().Before(deadline), "tilt still moving at %.3f", angle)
	}
}

func TestServer_StopStageDuringAsyncTilt(t *testing.T) {
	ts := startServer(t)
	conn := dial(t, ts.addr)

	require.True(t, call(t, conn, "Setf1OverRateTxNum", 2).IsOK())
	require.True(t, call(t, conn, "SetTiltXAngle", 30, true, false).IsOK())
	require.Equal(t, hw.Moving, tiltState(conn))
	time.Sleep(100 * time.Millisecond)

	require.True(t, call(t, conn, "StopStage").IsOK())

	assert.Eventually(t, func() bool {
		return tiltState(conn) == hw.Rest
	}, 500*time.Millisecond, 5*time.Millisecond)

	var angle float64
	require.NoError(t, call(t, conn, "GetTiltXAngle").Decode(&angle))
	assert.Greater(t, angle, 0.0)
	assert.Less(t, angle, 30.0)
}

func TestServer_ExitServer(t *testing.T) {
	ts := startServer(t)
	conn := dial(t, ts.addr)

	require.True(t, call(t, conn, "SetTXRel", 2, 1, 0).IsOK())

	rep := call(t, conn, "exit_server")
	assert.True(t, rep.IsOK())
	assert.Equal(t, "Bye!", rep.Message())

	select {
	case err := <-ts.serveCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after exit_server")
	}

	assert.Equal(t, ShuttingDown, ts.srv.State())

	// the queued relative tilt ran before the worker exited
	pos, err := ts.micro.Instrument().Stage.Position()
	require.NoError(t, err)
	assert.InDelta(t, 2, pos.TiltX(), 1e-9)

	_, err = net.DialTimeout("tcp", ts.addr, 200*time.Millisecond)
	assert.Error(t, err)

	assert.ErrorIs(t, ts.srv.Serve(context.Background()), ErrShuttingDown)
}

func TestServer_TruncatedFrameClosesOnlyThatSession(t *testing.T) {
	ts := startServer(t)

	bad := dial(t, ts.addr)
	// body claims one part of 100 bytes but carries 3
	_, err := bad.Write([]byte{0, 0, 0, 8, 1, 0, 0, 0, 100, 'a', 'b', 'c'})
	require.NoError(t, err)

	buf := make([]byte, 1)
	_ = bad.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = bad.Read(buf)
	assert.Error(t, err)

	good := dial(t, ts.addr)
	assert.Equal(t, "pong", call(t, good, "ping").Message())
	assert.Equal(t, uint64(1), ts.srv.Metrics().ConnErrCount.Load())
}

func TestServer_MalformedPartCountCallsFatalHandler(t *testing.T) {
	fatalCh := make(chan string, 1)
	ts := startServer(t, WithFatalHandler(func(msg string, _ ...any) {
		fatalCh <- msg
	}))

	conn := dial(t, ts.addr)
	require.NoError(t, wire.WriteFrame(conn, wire.Frame{[]byte("ping"), []byte("[]"), []byte("x")}))

	select {
	case msg := <-fatalCh:
		assert.Contains(t, msg, "malformed")
	case <-time.After(2 * time.Second):
		t.Fatal("fatal handler not called")
	}

	select {
	case err := <-ts.serveCh:
		assert.ErrorIs(t, err, ErrProtocolFatal)
		assert.ErrorIs(t, err, wire.ErrMalformedFrame)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
}

const fatalChildEnv = "TEM_SERVER_FATAL_CHILD"

// TestServer_MalformedPartCountExitsProcess runs a server with the default fatal handler in a child
// process and expects the child to exit with status 1.
func TestServer_MalformedPartCountExitsProcess(t *testing.T) {
	if os.Getenv(fatalChildEnv) == "1" {
		runFatalChild()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestServer_MalformedPartCountExitsProcess$")
	cmd.Env = append(os.Environ(), fatalChildEnv+"=1")

	err := cmd.Run()

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "child exited cleanly: %v", err)
	assert.Equal(t, 1, exitErr.ExitCode())
}

func runFatalChild() {
	micro, err := sim.New()
	if err != nil {
		os.Exit(3)
	}
	cfg, err := NewConfig(WithHost("127.0.0.1"), WithPort(0), WithLogger(logger.NewSlog(logger.ErrorLevel, false)))
	if err != nil {
		os.Exit(3)
	}
	srv, err := New(micro.Instrument(), cfg)
	if err != nil || srv.Listen() != nil {
		os.Exit(3)
	}
	go func() { _ = srv.Serve(context.Background()) }()

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		os.Exit(3)
	}
	_ = wire.WriteFrame(conn, wire.Frame{[]byte("ping"), []byte("[]"), []byte("x")})

	time.Sleep(5 * time.Second)
	// still alive: the fatal path did not terminate the process
	os.Exit(0)
}
