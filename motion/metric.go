package motion

import "sync/atomic"

// Metrics contains atomic counters of a Controller.
// They can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// RotateCount indicates the number of rotations that ran to completion.
	RotateCount atomic.Uint64
	// RotateErrCount indicates the number of rotations that failed.
	RotateErrCount atomic.Uint64
	// StoppedCount indicates the number of rotations interrupted by a stage stop.
	StoppedCount atomic.Uint64
	// QueueFullCount indicates the number of submissions rejected because the queue was full.
	QueueFullCount atomic.Uint64
	// PendingGauge indicates the number of rotations queued and not yet started.
	PendingGauge atomic.Int64
}

func (m *Metrics) incRotateCount() {
	m.RotateCount.Add(1)
}

func (m *Metrics) incRotateErrCount() {
	m.RotateErrCount.Add(1)
}

func (m *Metrics) incStoppedCount() {
	m.StoppedCount.Add(1)
}

func (m *Metrics) incQueueFullCount() {
	m.QueueFullCount.Add(1)
}

func (m *Metrics) incPendingGauge() {
	m.PendingGauge.Add(1)
}

func (m *Metrics) decPendingGauge() {
	m.PendingGauge.Add(-1)
}
