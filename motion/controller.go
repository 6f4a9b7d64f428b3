package motion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/epoc-ed/go-simpletem/hw"
	"github.com/epoc-ed/go-simpletem/internal/pool"
	"github.com/epoc-ed/go-simpletem/internal/task"
	"github.com/epoc-ed/go-simpletem/logger"
)

// Request is a message of the motion queue: either Rotate or Stop.
type Request interface {
	isRequest()
}

// Rotate asks for one tilt rotation around X.
type Rotate struct {
	// Target is the absolute angle in degrees, or the delta when Relative is set.
	Target float64
	// MaxSpeed runs the rotation at the fastest drive rate and restores the previous rate afterwards.
	MaxSpeed bool
	// Relative makes Target a delta from the current angle.
	Relative bool
}

// Stop ends the worker. Rotations queued before it still run.
type Stop struct{}

func (Rotate) isRequest() {}
func (Stop) isRequest()   {}

func (r Rotate) String() string {
	if r.Relative {
		return fmt.Sprintf("rotate by %.3f deg (max speed: %t)", r.Target, r.MaxSpeed)
	}

	return fmt.Sprintf("rotate to %.3f deg (max speed: %t)", r.Target, r.MaxSpeed)
}

// Controller owns the motion queue and its single worker.
type Controller struct {
	cfg     *Config
	stage   hw.Stage
	taskMgr *task.Manager
	queue   chan Request
	done    chan struct{}

	// motionMu makes each rotation, including the max speed sequence, atomic
	motionMu sync.Mutex

	// submitMu orders submissions against Shutdown so nothing lands behind the Stop message
	submitMu sync.RWMutex
	stopped  bool

	busy atomic.Bool
	// inflight counts async rotations from Submit until the worker finishes them
	inflight atomic.Int64

	errMu   sync.Mutex
	lastErr error
	metrics Metrics
}

// NewController creates a Controller driving stage and starts its worker.
func NewController(stage hw.Stage, opts ...Option) (*Controller, error) {
	if stage == nil {
		return nil, errors.New("stage is nil")
	}

	cfg := &Config{
		queueSize:        16,
		enqueueTimeout:   time.Second,
		fastestDriveRate: hw.FastestDriveRate,
		logger:           logger.GetLogger(),
	}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	c := &Controller{
		cfg:     cfg,
		stage:   stage,
		taskMgr: task.NewManager(context.Background(), cfg.logger),
		queue:   make(chan Request, cfg.queueSize),
		done:    make(chan struct{}),
	}

	err := task.StartConsumer(c.taskMgr, "motionWorker", c.handle, func() { close(c.done) }, c.queue)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Submit queues r for the worker and returns without waiting for the rotation.
//
// It waits up to the enqueue timeout for room in a full queue, then fails with ErrQueueFull.
// After Shutdown it fails with ErrStopped.
func (c *Controller) Submit(ctx context.Context, r Rotate) error {
	c.submitMu.RLock()
	defer c.submitMu.RUnlock()

	if c.stopped {
		return ErrStopped
	}

	c.inflight.Add(1)
	c.metrics.incPendingGauge()
	select {
	case c.queue <- r:
		c.cfg.logger.Debug("motion queued", "request", r.String())
		return nil
	default:
	}

	timer := pool.GetTimer(c.cfg.enqueueTimeout)
	defer pool.PutTimer(timer)

	select {
	case c.queue <- r:
		c.cfg.logger.Debug("motion queued", "request", r.String())
		return nil

	case <-timer.C:
		c.inflight.Add(-1)
		c.metrics.decPendingGauge()
		c.metrics.incQueueFullCount()
		c.cfg.logger.Warn("motion queue full", "request", r.String(), "queue_size", c.cfg.queueSize)

		return ErrQueueFull

	case <-ctx.Done():
		c.inflight.Add(-1)
		c.metrics.decPendingGauge()
		return ctx.Err()
	}
}

// Execute runs r on the calling goroutine and returns when the rotation ends.
// It waits for a rotation already running on the worker to finish first.
func (c *Controller) Execute(r Rotate) error {
	err := c.rotate(r)
	c.record(r, err)

	return err
}

// Shutdown queues the Stop message and waits until the worker has run every rotation queued before
// it and exited. It is safe to call more than once.
//
// When ctx expires first, the worker is abandoned after its current rotation and ctx.Err is returned.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.submitMu.Lock()
	first := !c.stopped
	c.stopped = true
	c.submitMu.Unlock()

	if first {
		c.cfg.logger.Debug("motion controller shutting down", "pending", c.Pending())
		select {
		case c.queue <- Stop{}:
		case <-c.done:
		case <-ctx.Done():
			c.taskMgr.Stop()
			return ctx.Err()
		}
	}

	select {
	case <-c.done:
		c.taskMgr.Wait()
		return nil
	case <-ctx.Done():
		c.taskMgr.Stop()
		return ctx.Err()
	}
}

// Done is closed once the worker has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Busy reports whether a rotation is running on the worker.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Moving reports whether an accepted async rotation is queued or running. It turns true before
// Submit returns and stays true until the worker has finished the last queued rotation.
func (c *Controller) Moving() bool {
	if c.inflight.Load() == 0 {
		return false
	}

	select {
	case <-c.done:
		// worker abandoned by a timed out Shutdown
		return false
	default:
		return true
	}
}

// Pending returns the number of rotations queued and not yet started.
func (c *Controller) Pending() int {
	return int(c.metrics.PendingGauge.Load())
}

// LastError returns the error of the most recent failed queued rotation, or nil.
// Rotations interrupted by a stage stop do not count as failures.
func (c *Controller) LastError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()

	return c.lastErr
}

// Metrics returns the counters of the controller.
func (c *Controller) Metrics() *Metrics {
	return &c.metrics
}

func (c *Controller) handle(req Request) bool {
	switch r := req.(type) {
	case Stop:
		c.cfg.logger.Debug("motion worker received stop")
		return false

	case Rotate:
		c.busy.Store(true)
		c.metrics.decPendingGauge()
		defer func() {
			c.busy.Store(false)
			c.inflight.Add(-1)
		}()

		err := c.rotate(r)
		c.record(r, err)
		if err != nil && !errors.Is(err, hw.ErrStopped) {
			c.errMu.Lock()
			c.lastErr = err
			c.errMu.Unlock()
		}

		return true

	default:
		c.cfg.logger.Error("unexpected motion request", "request", fmt.Sprintf("%T", req))
		return true
	}
}

func (c *Controller) rotate(r Rotate) (err error) {
	c.motionMu.Lock()
	defer c.motionMu.Unlock()

	if r.MaxSpeed {
		prev, rerr := c.stage.DriveRate()
		if rerr != nil {
			return fmt.Errorf("read drive rate: %w", rerr)
		}
		if serr := c.stage.SetDriveRate(c.cfg.fastestDriveRate); serr != nil {
			return fmt.Errorf("select fastest drive rate: %w", serr)
		}
		defer func() {
			if rerr := c.stage.SetDriveRate(prev); rerr != nil && err == nil {
				err = fmt.Errorf("restore drive rate %d: %w", prev, rerr)
			}
		}()
	}

	if r.Relative {
		return c.stage.TiltBy(r.Target)
	}

	return c.stage.TiltTo(r.Target)
}

func (c *Controller) record(r Rotate, err error) {
	switch {
	case err == nil:
		c.metrics.incRotateCount()
		c.cfg.logger.Debug("motion done", "request", r.String())

	case errors.Is(err, hw.ErrStopped):
		c.metrics.incStoppedCount()
		c.cfg.logger.Info("motion stopped before reaching target", "request", r.String())

	default:
		c.metrics.incRotateErrCount()
		c.cfg.logger.Error("motion failed", "request", r.String(), "error", err)
	}
}
