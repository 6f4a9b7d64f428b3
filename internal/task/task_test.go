package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/epoc-ed/go-simpletem/logger"
)

func TestManager_Start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mockLogger := logger.NewMockLogger()
	mockLogger.On("Debug", mock.Anything, mock.Anything).Return()

	mgr := NewManager(ctx, mockLogger)

	var runs atomic.Int32
	err := mgr.Start("counter", func() bool {
		return runs.Add(1) < 3
	})
	require.NoError(t, err)

	mgr.Wait()
	assert.Equal(t, int32(3), runs.Load())
	assert.Equal(t, 0, mgr.TaskCount())
	mockLogger.AssertNumberOfCalls(t, "Debug", 2)
}

func TestManager_StopCancelsTasks(t *testing.T) {
	mgr := NewManager(context.Background(), logger.NewNopMockLogger())

	cancelled := make(chan struct{})
	err := mgr.StartWithCancel("idle", func() bool {
		time.Sleep(5 * time.Millisecond)
		return true
	}, func() { close(cancelled) })
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return mgr.TaskCount() == 1 }, time.Second, time.Millisecond)

	mgr.Stop()
	assert.True(t, mgr.WaitTimeout(time.Second))
	<-cancelled

	err = mgr.Start("late", func() bool { return false })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestStartConsumer(t *testing.T) {
	assert := assert.New(t)

	mgr := NewManager(context.Background(), logger.NewNopMockLogger())
	input := make(chan int, 8)

	var got []int
	err := StartConsumer(mgr, "consumer", func(v int) bool {
		if v == 3 {
			panic("boom")
		}
		got = append(got, v)
		return v != 5
	}, nil, input)
	require.NoError(t, err)

	for i := 1; i <= 6; i++ {
		input <- i
	}

	assert.True(mgr.WaitTimeout(time.Second))
	assert.Equal([]int{1, 2, 4, 5}, got)
	assert.Len(input, 1)
}

func TestStartConsumer_NilInput(t *testing.T) {
	mgr := NewManager(context.Background(), logger.NewNopMockLogger())
	err := StartConsumer[int](mgr, "nil", func(int) bool { return true }, nil, nil)
	assert.Error(t, err)
}
