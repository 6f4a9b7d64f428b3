package server

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epoc-ed/go-simpletem/logger"
	"github.com/epoc-ed/go-simpletem/wire"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *Metrics) {
	t.Helper()

	reg, err := NewRegistry(
		Command{Name: "ping", Handler: func(Args) (any, error) { return "pong", nil }},
		Command{Name: "Add", Arity: 2, Handler: func(args Args) (any, error) {
			a, err := args.Float(0)
			if err != nil {
				return nil, err
			}
			b, err := args.Float(1)
			if err != nil {
				return nil, err
			}

			return a + b, nil
		}},
		Command{Name: "Fail", Handler: func(Args) (any, error) { return nil, errors.New("stage jammed") }},
		Command{Name: "Panic", Handler: func(Args) (any, error) { panic("boom") }},
		Command{Name: "Nothing", Handler: func(Args) (any, error) { return nil, nil }},
	)
	require.NoError(t, err)

	metrics := &Metrics{}

	return NewDispatcher(reg, logger.NewNopMockLogger(), metrics), metrics
}

func dispatch(t *testing.T, d *Dispatcher, cmd string, args ...any) wire.Reply {
	t.Helper()

	f, err := wire.EncodeRequest(cmd, args...)
	require.NoError(t, err)

	out, _, err := d.Dispatch(f)
	require.NoError(t, err)

	rep, err := wire.DecodeReply(out)
	require.NoError(t, err)

	return rep
}

func TestDispatch_OK(t *testing.T) {
	d, _ := newTestDispatcher(t)

	rep := dispatch(t, d, "ping")
	assert.True(t, rep.IsOK())
	assert.Equal(t, "pong", rep.Message())

	rep = dispatch(t, d, "Add", 1.5, 2)
	assert.True(t, rep.IsOK())
	assert.JSONEq(t, `3.5`, string(rep.Payload))

	rep = dispatch(t, d, "Nothing")
	assert.True(t, rep.IsOK())
	assert.Equal(t, "null", string(rep.Payload))
}

func TestDispatch_UnknownCommand(t *testing.T) {
	d, metrics := newTestDispatcher(t)

	for _, name := range []string{"GetNothing", "PING", "_internal"} {
		rep := dispatch(t, d, name)
		assert.False(t, rep.IsOK())
		assert.Equal(t, "Function: "+name+" not implemented", rep.Message())
	}
	assert.Equal(t, uint64(3), metrics.UnknownCmdCount.Load())
}

func TestDispatch_HandlerFailures(t *testing.T) {
	d, metrics := newTestDispatcher(t)

	tests := []struct {
		cmd  string
		args []any
		want string
	}{
		{cmd: "Fail", want: "Exception occurred when calling: Fail. Error message: stage jammed"},
		{cmd: "Panic", want: "Exception occurred when calling: Panic. Error message: panic: boom"},
		{cmd: "Add", args: []any{1}, want: "Exception occurred when calling: Add. Error message: wrong number of arguments: Add takes 2, got 1"},
		{cmd: "Add", args: []any{1, "x"}, want: `Exception occurred when calling: Add. Error message: invalid argument type: argument 1 must be a number, got "x"`},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			rep := dispatch(t, d, tt.cmd, tt.args...)
			assert.Equal(t, wire.StatusError, rep.Status)
			assert.Equal(t, tt.want, rep.Message())
		})
	}

	assert.Equal(t, uint64(len(tests)), metrics.ErrorReplyCount.Load())
}

func TestDispatch_DecodeError(t *testing.T) {
	d, metrics := newTestDispatcher(t)

	out, cmd, err := d.Dispatch(wire.Frame{[]byte("Add"), []byte("[1, 2")})
	require.NoError(t, err)
	assert.Equal(t, "Add", cmd)

	rep, err := wire.DecodeReply(out)
	require.NoError(t, err)
	assert.False(t, rep.IsOK())
	assert.Contains(t, rep.Message(), "decode args")
	assert.Equal(t, uint64(1), metrics.DecodeErrCount.Load())
}

func TestDispatch_MalformedFrame(t *testing.T) {
	d, _ := newTestDispatcher(t)

	out, _, err := d.Dispatch(wire.Frame{[]byte("ping"), []byte("[]"), []byte("extra")})
	assert.ErrorIs(t, err, wire.ErrMalformedFrame)
	assert.Nil(t, out)
}

func TestRegistry(t *testing.T) {
	h := func(Args) (any, error) { return nil, nil }

	reg, err := NewRegistry(Command{Name: "b", Handler: h}, Command{Name: "a", Arity: 1, Handler: h})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reg.Names())

	cmd, err := reg.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, 1, cmd.Arity)

	_, err = reg.Lookup("c")
	require.ErrorIs(t, err, ErrUnknownCommand)
	assert.Contains(t, err.Error(), `"c"`)

	_, err = NewRegistry(Command{Name: "a", Handler: h}, Command{Name: "a", Handler: h})
	assert.Error(t, err)
	_, err = NewRegistry(Command{Name: "a"})
	assert.Error(t, err)
	_, err = NewRegistry(Command{Handler: h})
	assert.Error(t, err)
}
