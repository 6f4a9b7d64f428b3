package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/epoc-ed/go-simpletem/logger"
	"github.com/epoc-ed/go-simpletem/wire"
)

// Dispatcher turns one request frame into one reply frame.
type Dispatcher struct {
	registry *Registry
	logger   logger.Logger
	metrics  *Metrics
}

// NewDispatcher creates a Dispatcher over registry. metrics may be nil.
func NewDispatcher(registry *Registry, l logger.Logger, metrics *Metrics) *Dispatcher {
	if metrics == nil {
		metrics = &Metrics{}
	}

	return &Dispatcher{registry: registry, logger: l, metrics: metrics}
}

// Dispatch decodes f, runs the command and returns the reply frame together with the command name.
//
// Every failure local to the request becomes an ERROR reply. The only error returned wraps
// wire.ErrMalformedFrame, for a frame whose part count is not two; no reply exists for it.
func (d *Dispatcher) Dispatch(f wire.Frame) (wire.Frame, string, error) {
	d.metrics.incRequestCount()

	req, err := wire.DecodeRequest(f)
	if errors.Is(err, wire.ErrMalformedFrame) {
		return nil, "", err
	}

	if err != nil {
		d.metrics.incDecodeErrCount()
		d.logger.Warn("undecodable request", "cmd", req.Command, "error", err)

		return d.errorReply(err.Error()), req.Command, nil
	}

	cmd, err := d.registry.Lookup(req.Command)
	if err != nil {
		d.metrics.incUnknownCmdCount()
		d.logger.Warn("rejected request", "cmd", req.Command, "error", err)

		return d.errorReply(UnknownCommandMessage(req.Command)), req.Command, nil
	}

	result, err := d.invoke(cmd, Args(req.Args))
	if err != nil {
		herr := &HandlerError{Command: cmd.Name, Err: err}
		d.logger.Warn("command failed", "cmd", cmd.Name, "args", argsString(req.Args), "error", err)

		return d.errorReply(herr.Error()), cmd.Name, nil
	}

	reply, err := wire.OKReply(result)
	if err != nil {
		herr := &HandlerError{Command: cmd.Name, Err: err}
		d.logger.Warn("encode reply failed", "cmd", cmd.Name, "error", err)

		return d.errorReply(herr.Error()), cmd.Name, nil
	}

	d.logger.Debug("request", "cmd", cmd.Name, "args", argsString(req.Args), "status", wire.StatusOK)

	return reply, cmd.Name, nil
}

// invoke checks the arity and calls the handler, turning a panic into an error.
func (d *Dispatcher) invoke(cmd Command, args Args) (result any, err error) {
	if args.Len() != cmd.Arity {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArity, cmd.Name, cmd.Arity, args.Len())
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in command handler", "cmd", cmd.Name, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return cmd.Handler(args)
}

func (d *Dispatcher) errorReply(msg string) wire.Frame {
	d.metrics.incErrorReplyCount()
	return wire.ErrorReply(msg)
}

func argsString(args []json.RawMessage) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, a := range args {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.Write(a)
	}
	sb.WriteByte(']')

	return sb.String()
}
