// Package metrics defines the observability hooks used by the device loop.
package metrics

import "time"

// Recorder receives device events. Implementations may forward to
// Prometheus; NoopRecorder is used when metrics are not configured.
type Recorder interface {
	IncCommand(kind string)
	IncActivation(channel string)
	IncDispatchSkipped(reason string)
	ObserveDispatch(path string, status int, d time.Duration)
	IncConnectAttempt()
	IncConnectResult(success bool)
	SetConnectivity(state string)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) IncCommand(string)                          {}
func (NoopRecorder) IncActivation(string)                       {}
func (NoopRecorder) IncDispatchSkipped(string)                  {}
func (NoopRecorder) ObserveDispatch(string, int, time.Duration) {}
func (NoopRecorder) IncConnectAttempt()                         {}
func (NoopRecorder) IncConnectResult(bool)                      {}
func (NoopRecorder) SetConnectivity(string)                     {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
