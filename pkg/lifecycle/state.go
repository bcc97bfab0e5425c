// Package lifecycle holds the request lifecycle state machine shared by a loader and its views.
package lifecycle

import "github.com/samvad-hq/userloader/pkg/httpclient"

// State describes one request's current outcome. After a transition settles exactly one of
// Loading, Response != nil or Err != nil holds; the zero value is the idle state.
type State struct {
	Loading  bool
	Response httpclient.Response
	Err      error
}

// Idle reports whether no request has started yet.
func (s State) Idle() bool {
	return !s.Loading && s.Response == nil && s.Err == nil
}

// Signal is one of Started, Succeeded or Failed.
type Signal interface {
	signal()
}

// Started marks a request as in flight.
type Started struct{}

// Succeeded carries the response of a settled request.
type Succeeded struct {
	Response httpclient.Response
}

// Failed carries the error of a settled request.
type Failed struct {
	Err error
}

func (Started) signal()   {}
func (Succeeded) signal() {}
func (Failed) signal()    {}

// Reduce computes the next state from prev and sig. Unknown signals return prev unchanged.
func Reduce(prev State, sig Signal) State {
	switch s := sig.(type) {
	case Started, *Started:
		return State{Loading: true}
	case Succeeded:
		return State{Response: s.Response}
	case *Succeeded:
		if s == nil {
			return prev
		}
		return State{Response: s.Response}
	case Failed:
		return State{Err: s.Err}
	case *Failed:
		if s == nil {
			return prev
		}
		return State{Err: s.Err}
	default:
		return prev
	}
}

// Name returns a short label for sig, used in logs.
func Name(sig Signal) string {
	switch sig.(type) {
	case Started, *Started:
		return "request-started"
	case Succeeded, *Succeeded:
		return "request-succeeded"
	case Failed, *Failed:
		return "request-failed"
	default:
		return "unknown"
	}
}
