package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/epoc-ed/go-simpletem/hw"
	"github.com/epoc-ed/go-simpletem/internal/task"
	"github.com/epoc-ed/go-simpletem/logger"
	"github.com/epoc-ed/go-simpletem/motion"
	"github.com/epoc-ed/go-simpletem/wire"
)

// Server serves the command set of one instrument over TCP.
//
// Sessions are read concurrently, but every request is dispatched by the single loop inside Serve,
// strictly in arrival order. Asynchronous tilts run on the motion controller's worker.
type Server struct {
	cfg        *Config
	logger     logger.Logger
	inst       hw.Instrument
	motion     *motion.Controller
	registry   *Registry
	dispatcher *Dispatcher
	metrics    Metrics
	state      AtomicState

	listenerMu sync.Mutex
	listener   net.Listener

	taskMgr  *task.Manager
	sessions *xsync.MapOf[string, *session]
	requests chan request

	closeCh      chan struct{}
	closeOnce    sync.Once
	shutdownOnce sync.Once
	serving      bool
	serveDone    chan struct{}
}

type session struct {
	id        string
	conn      net.Conn
	reader    wire.FrameReader
	closeOnce sync.Once
}

type request struct {
	sess  *session
	frame wire.Frame
}

// New creates a server for inst. A nil cfg means the default configuration.
// The motion controller worker starts immediately; the listener opens on Listen or Serve.
func New(inst hw.Instrument, cfg *Config) (*Server, error) {
	if inst.Stage == nil || inst.Lens == nil || inst.Deflector == nil || inst.Optics == nil || inst.Aperture == nil {
		return nil, errors.New("instrument lacks a capability group")
	}

	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	}

	mc, err := motion.NewController(inst.Stage,
		motion.WithQueueSize(cfg.motionQueueSize),
		motion.WithEnqueueTimeout(cfg.motionEnqueueTimeout),
		motion.WithLogger(cfg.logger.With("component", "motion")),
	)
	if err != nil {
		return nil, fmt.Errorf("create motion controller: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		logger:    cfg.logger,
		inst:      inst,
		motion:    mc,
		taskMgr:   task.NewManager(context.Background(), cfg.logger),
		sessions:  xsync.NewMapOf[string, *session](),
		requests:  make(chan request, cfg.requestQueueSize),
		closeCh:   make(chan struct{}),
		serveDone: make(chan struct{}),
	}

	s.registry, err = NewRegistry(s.commands()...)
	if err != nil {
		return nil, err
	}
	s.dispatcher = NewDispatcher(s.registry, cfg.logger, &s.metrics)

	return s, nil
}

// Listen opens the listening socket. Serve calls it when it has not been called before.
func (s *Server) Listen() error {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener != nil {
		return nil
	}
	if s.state.IsShuttingDown() {
		return ErrShuttingDown
	}

	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		s.logger.Error("failed to listen", "address", s.cfg.Address(), "error", err)
		return err
	}
	s.listener = ln
	s.logger.Info("listening", "address", ln.Addr().String(), "commands", s.registry.Len())

	return nil
}

// Addr returns the address of the listener, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Serve runs the dispatch loop until exit_server is received, Close is called or ctx is done.
// The loop then stops the motion worker, closes every session and returns nil.
//
// A request frame whose part count is not two calls the fatal handler and, should it return,
// makes Serve return an error wrapping ErrProtocolFatal.
func (s *Server) Serve(ctx context.Context) error {
	s.listenerMu.Lock()
	if s.serving || s.state.IsShuttingDown() {
		s.listenerMu.Unlock()
		return ErrShuttingDown
	}
	s.serving = true
	s.listenerMu.Unlock()

	defer close(s.serveDone)

	if err := s.Listen(); err != nil {
		s.shutdown()
		return err
	}

	if err := s.taskMgr.Start("acceptor", s.acceptConn); err != nil {
		s.shutdown()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("serve context done, shutting down", "error", ctx.Err())
			s.shutdown()

			return nil

		case <-s.closeCh:
			s.shutdown()
			return nil

		case req := <-s.requests:
			if err := s.handle(req); err != nil {
				s.shutdown()
				return err
			}

			if s.state.IsShuttingDown() {
				s.logger.Info("request loop ended")
				s.shutdown()

				return nil
			}
		}
	}
}

// Close stops the server. When Serve is running, Close waits for it to return.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.closeCh) })

	s.listenerMu.Lock()
	serving := s.serving
	s.listenerMu.Unlock()

	if serving {
		<-s.serveDone
		return nil
	}
	s.shutdown()

	return nil
}

// State returns the lifecycle state.
func (s *Server) State() State {
	return s.state.Get()
}

// Commands returns the sorted names of the commands the server answers.
func (s *Server) Commands() []string {
	return s.registry.Names()
}

// Metrics returns the counters of the server.
func (s *Server) Metrics() *Metrics {
	return &s.metrics
}

// Motion returns the motion controller.
func (s *Server) Motion() *motion.Controller {
	return s.motion
}

// handle dispatches one request and writes its reply. It only fails on a protocol fatal frame.
func (s *Server) handle(req request) error {
	reply, cmd, err := s.dispatcher.Dispatch(req.frame)
	if err != nil {
		s.cfg.fatalFunc()("malformed multipart message, terminating",
			"session", req.sess.id, "parts", len(req.frame), "error", err)

		return fmt.Errorf("%w: %w", ErrProtocolFatal, err)
	}

	if err := req.sess.conn.SetWriteDeadline(time.Now().Add(s.cfg.readTimeout)); err != nil {
		s.logger.Debug("set write deadline failed", "session", req.sess.id, "error", err)
	}
	if err := wire.WriteFrame(req.sess.conn, reply); err != nil {
		s.logger.Debug("write reply failed", "session", req.sess.id, "cmd", cmd, "error", err)
		s.closeSession(req.sess)
	}

	return nil
}

func (s *Server) acceptConn() bool {
	s.listenerMu.Lock()
	ln := s.listener
	s.listenerMu.Unlock()

	if ln == nil {
		return false
	}

	conn, err := ln.Accept()
	if err != nil {
		if s.state.IsShuttingDown() || errors.Is(err, net.ErrClosed) {
			return false
		}

		s.logger.Error("failed to accept connection", "error", err)

		return true
	}

	sess := &session{
		id:     uuid.NewString(),
		conn:   conn,
		reader: wire.FrameReader{BodyTimeout: s.cfg.readTimeout},
	}
	s.sessions.Store(sess.id, sess)
	s.metrics.incConnAcceptCount()
	s.metrics.incConnActiveGauge()
	s.logger.Debug("connection opened", "session", sess.id, "remote", conn.RemoteAddr().String())

	err = s.taskMgr.StartWithCancel("session", func() bool {
		return s.readRequest(sess)
	}, func() {
		s.closeSession(sess)
	})
	if err != nil {
		s.closeSession(sess)
		return false
	}

	return true
}

func (s *Server) readRequest(sess *session) bool {
	frame, err := sess.reader.ReadFrame(sess.conn)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			s.logger.Debug("connection closed by peer", "session", sess.id)
		case s.state.IsShuttingDown():
		default:
			s.metrics.incConnErrCount()
			s.logger.Warn("transport error, closing connection", "session", sess.id, "error", err)
		}

		return false
	}

	select {
	case s.requests <- request{sess: sess, frame: frame}:
		return true
	case <-s.taskMgr.Context().Done():
		return false
	}
}

func (s *Server) closeSession(sess *session) {
	sess.closeOnce.Do(func() {
		_ = sess.conn.Close()
		s.sessions.Delete(sess.id)
		s.metrics.decConnActiveGauge()
		s.logger.Debug("connection closed", "session", sess.id)
	})
}

// shutdown moves to ShuttingDown and releases everything: motion worker, listener, sessions and tasks.
func (s *Server) shutdown() {
	s.shutdownOnce.Do(func() {
		s.state.ToShuttingDown()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.shutdownTimeout)
		defer cancel()
		if err := s.motion.Shutdown(ctx); err != nil {
			s.logger.Error("motion worker did not stop in time", "error", err)
		}

		s.listenerMu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.listenerMu.Unlock()

		s.taskMgr.Stop()
		s.sessions.Range(func(_ string, sess *session) bool {
			s.closeSession(sess)
			return true
		})

		if !s.taskMgr.WaitTimeout(s.cfg.shutdownTimeout) {
			s.logger.Warn("tasks still running after shutdown timeout", "task_count", s.taskMgr.TaskCount())
		}
		s.logger.Info("server stopped")
	})
}
