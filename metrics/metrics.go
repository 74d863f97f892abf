// Package metrics records what the dispatcher does.
//
// Metrics are optional: a dispatcher built without them uses
// the no-op implementation returned by Noop, which costs
// nothing. The Prometheus implementation lives in the
// prometheus subpackage.
package metrics

import (
	"time"

	"github.com/godokan/go-dokan"
)

// Direction labels of transferred bytes.
const (
	DirectionRead  = "read"
	DirectionWrite = "write"
)

// Metrics observes the callbacks of the dispatcher.
type Metrics interface {
	// RecordCallStart marks a callback as in flight.
	RecordCallStart(op string)

	// RecordCall records a completed callback, with the
	// status it returned, and ends its in-flight period.
	RecordCall(op string, status dokan.StatusCode, duration time.Duration)

	// RecordBytes records bytes read or written.
	RecordBytes(direction string, bytes int)

	// SetOpenHandles updates the number of live handles.
	SetOpenHandles(count int)
}

type noop struct{}

func (noop) RecordCallStart(string)                             {}
func (noop) RecordCall(string, dokan.StatusCode, time.Duration) {}
func (noop) RecordBytes(string, int)                            {}
func (noop) SetOpenHandles(int)                                 {}

// Noop returns a Metrics that discards everything.
func Noop() Metrics {
	return noop{}
}

// Timer starts a callback observation and returns the
// function that completes it.
func Timer(m Metrics, op string) func(status dokan.StatusCode) {
	m.RecordCallStart(op)
	start := time.Now()
	return func(status dokan.StatusCode) {
		m.RecordCall(op, status, time.Since(start))
	}
}
