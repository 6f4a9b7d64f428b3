// Package task manages the long-lived goroutines of the service: the accept loop, the per-session
// readers and the motion worker.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/epoc-ed/go-simpletem/internal/pool"
	"github.com/epoc-ed/go-simpletem/logger"
)

// ErrStopped is returned when a task is started on a manager that has already been stopped.
var ErrStopped = errors.New("task manager already stopped")

// Func is a task body run in a loop. It returns true to run again, false to stop the goroutine.
type Func func() bool

// CancelFunc is called once when the goroutine of a task exits, whatever the reason.
type CancelFunc func()

// Manager starts goroutines, signals them to stop through a shared context and waits for them
// to terminate.
//
// Example Usage:
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.Start("acceptor", func() bool {
//	    // ... accept one connection ...
//	    return true
//	})
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
}

// NewManager creates a Manager whose tasks are cancelled together with ctx.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context shared by all tasks of the manager.
func (mgr *Manager) Context() context.Context {
	return mgr.ctx
}

// Start runs taskFunc in a loop in a new goroutine until it returns false or the manager stops.
func (mgr *Manager) Start(name string, taskFunc Func) error {
	return mgr.StartWithCancel(name, taskFunc, nil)
}

// StartWithCancel is Start with a cleanup function that runs when the goroutine exits.
func (mgr *Manager) StartWithCancel(name string, taskFunc Func, cancelFunc CancelFunc) error {
	mgr.logger.Debug("start task", "name", name)

	return mgr.launch(name, func() {
		if cancelFunc != nil {
			defer cancelFunc()
		}

		for {
			select {
			case <-mgr.ctx.Done():
				return
			default:
				if !mgr.callWithRecover(name, taskFunc) {
					return
				}
			}
		}
	})
}

// StartConsumer starts a goroutine that receives items from input in FIFO order and hands each one
// to taskFunc. The goroutine exits when taskFunc returns false, input is closed or the manager stops.
//
// A panic inside taskFunc is logged and the consumer keeps running.
func StartConsumer[T any](mgr *Manager, name string, taskFunc func(T) bool, cancelFunc CancelFunc, input <-chan T) error {
	mgr.logger.Debug("start consumer task", "name", name)

	if input == nil {
		return fmt.Errorf("input channel of %s is nil", name)
	}

	return mgr.launch(name, func() {
		if cancelFunc != nil {
			defer cancelFunc()
		}

		for {
			select {
			case <-mgr.ctx.Done():
				return
			case item, ok := <-input:
				if !ok {
					mgr.logger.Debug("input channel closed", "name", name)
					return
				}
				keepRunning := true
				mgr.callWithRecover(name, func() bool {
					keepRunning = taskFunc(item)
					return keepRunning
				})
				if !keepRunning {
					return
				}
			}
		}
	})
}

// Stop signals all running goroutines through the shared context.
func (mgr *Manager) Stop() {
	mgr.cancel()
}

// Wait blocks until every goroutine started by the manager has terminated.
func (mgr *Manager) Wait() {
	mgr.wg.Wait()
}

// WaitTimeout is Wait bounded by timeout. It returns false when goroutines were still running.
func (mgr *Manager) WaitTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		mgr.wg.Wait()
		close(done)
	}()

	return pool.Wait(done, timeout)
}

// TaskCount returns the number of currently running goroutines.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) launch(name string, body func()) error {
	select {
	case <-mgr.ctx.Done():
		return fmt.Errorf("start %s: %w", name, ErrStopped)
	default:
	}

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer mgr.wg.Done()
		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		body()
	}()

	return nil
}

// callWithRecover calls fn with panic protection. A recovered panic counts as "keep running".
func (mgr *Manager) callWithRecover(name string, fn func() bool) (keepRunning bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			keepRunning = true
		}
	}()

	return fn()
}
