// Package client is the typed client of the TEM command server.
//
// Every call opens a TCP connection, sends one request, waits for the reply up to a timeout and
// closes the connection on every path, including timeouts and errors. WithPersistentSession keeps
// the connection open between calls instead.
//
// An ERROR reply is returned as *RemoteCommandError. A call that got no reply in time fails with
// an error wrapping ErrTimeout.
//
// Example Usage:
//
//	c, err := client.New("localhost")
//	if err != nil {
//	    // handle error
//	}
//	defer c.Close()
//
//	if err := c.SetTiltXAngle(ctx, 20, client.Async()); err != nil {
//	    // handle error
//	}
//	_ = c.WaitForStage(ctx)
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/epoc-ed/go-simpletem/wire"
)

// Client issues commands to one server. It is safe for concurrent use; calls on a persistent
// session are serialized.
type Client struct {
	cfg  *Config
	addr string

	mu     sync.Mutex
	conn   net.Conn // persistent session only
	closed bool
}

// New creates a client for the server on host. No connection is opened until the first call.
func New(host string, opts ...Option) (*Client, error) {
	if host == "" {
		host = "localhost"
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return &Client{
		cfg:  cfg,
		addr: net.JoinHostPort(host, strconv.Itoa(cfg.port)),
	}, nil
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Close closes the persistent session, if any. Further calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	return c.dropConn()
}

// Call sends cmd with args and returns the raw JSON payload of the OK reply.
func (c *Client) Call(ctx context.Context, cmd string, args ...any) (json.RawMessage, error) {
	rep, err := c.do(ctx, c.cfg.timeout, cmd, args...)
	if err != nil {
		return nil, err
	}

	return rep.Payload, nil
}

// call sends cmd and decodes the OK payload into result, unless result is nil.
func (c *Client) call(ctx context.Context, timeout time.Duration, result any, cmd string, args ...any) error {
	rep, err := c.do(ctx, timeout, cmd, args...)
	if err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	if err := rep.Decode(result); err != nil {
		return fmt.Errorf("%s: %w: %w", cmd, ErrUnexpectedReply, err)
	}

	return nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, cmd string, args ...any) (wire.Reply, error) {
	req, err := wire.EncodeRequest(cmd, args...)
	if err != nil {
		return wire.Reply{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := c.roundTrip(ctx, req)
	if err != nil {
		if isTimeout(err) {
			c.cfg.logger.Debug("call timed out", "cmd", cmd, "timeout", timeout)
			return wire.Reply{}, fmt.Errorf("%w: %s after %v: %w", ErrTimeout, cmd, timeout, err)
		}

		return wire.Reply{}, fmt.Errorf("%s: %w", cmd, err)
	}

	rep, err := wire.DecodeReply(out)
	if err != nil {
		return wire.Reply{}, fmt.Errorf("%s: %w", cmd, err)
	}

	if !rep.IsOK() {
		return rep, &RemoteCommandError{Command: cmd, Message: rep.Message()}
	}

	return rep, nil
}

// roundTrip sends req and reads one reply frame. The deadline of ctx bounds both directions.
func (c *Client) roundTrip(ctx context.Context, req wire.Frame) (wire.Frame, error) {
	if !c.cfg.persistent {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}

		conn, err := c.dial(ctx)
		if err != nil {
			return nil, err
		}
		defer conn.Close()

		return exchange(ctx, conn, req)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if c.conn == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			return nil, err
		}
		c.conn = conn
	}

	out, err := exchange(ctx, c.conn, req)
	if err != nil {
		// the stream may hold a late reply now
		_ = c.dropConn()
		return nil, err
	}

	return out, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.addr, err)
	}
	c.cfg.logger.Debug("connected", "address", c.addr)

	return conn, nil
}

func (c *Client) dropConn() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil

	return err
}

func exchange(ctx context.Context, conn net.Conn, req wire.Frame) (wire.Frame, error) {
	var fr wire.FrameReader
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return nil, err
		}
		fr.IdleTimeout = time.Until(deadline)
		fr.BodyTimeout = fr.IdleTimeout
		if fr.IdleTimeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	if err := wire.WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// unblock the read when ctx is cancelled before its deadline
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	out, err := fr.ReadFrame(conn)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ctx.Err(), err)
		}

		return nil, err
	}

	return out, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
