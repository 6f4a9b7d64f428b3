package server

import "sync/atomic"

// Metrics contains atomic counters of a Server.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// ConnAcceptCount indicates the number of accepted connections.
	ConnAcceptCount atomic.Uint64
	// ConnActiveGauge indicates the number of open connections.
	ConnActiveGauge atomic.Int64
	// ConnErrCount indicates the number of connections closed on a transport error.
	ConnErrCount atomic.Uint64

	// RequestCount indicates the number of request frames dispatched.
	RequestCount atomic.Uint64
	// ErrorReplyCount indicates the number of ERROR replies sent.
	ErrorReplyCount atomic.Uint64
	// DecodeErrCount indicates the number of requests whose arguments could not be decoded.
	DecodeErrCount atomic.Uint64
	// UnknownCmdCount indicates the number of requests naming an unregistered command.
	UnknownCmdCount atomic.Uint64
}

func (m *Metrics) incConnAcceptCount() {
	m.ConnAcceptCount.Add(1)
}

func (m *Metrics) incConnActiveGauge() {
	m.ConnActiveGauge.Add(1)
}

func (m *Metrics) decConnActiveGauge() {
	m.ConnActiveGauge.Add(-1)
}

func (m *Metrics) incConnErrCount() {
	m.ConnErrCount.Add(1)
}

func (m *Metrics) incRequestCount() {
	m.RequestCount.Add(1)
}

func (m *Metrics) incErrorReplyCount() {
	m.ErrorReplyCount.Add(1)
}

func (m *Metrics) incDecodeErrCount() {
	m.DecodeErrCount.Add(1)
}

func (m *Metrics) incUnknownCmdCount() {
	m.UnknownCmdCount.Add(1)
}
