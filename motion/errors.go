package motion

import "errors"

var (
	// ErrStopped indicates that the controller has been shut down and accepts no more rotations.
	ErrStopped = errors.New("motion controller stopped")

	// ErrQueueFull indicates that the motion queue stayed full for the whole enqueue timeout.
	ErrQueueFull = errors.New("motion queue full")
)
