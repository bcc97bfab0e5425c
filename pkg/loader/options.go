package loader

import "github.com/samvad-hq/userloader/pkg/httpclient"

// Policy decides what happens when Trigger is called while a previous call is in flight.
type Policy int

const (
	// PolicyOverlap lets every call run to completion; whichever settles last wins.
	PolicyOverlap Policy = iota
	// PolicyReplace cancels the previous call and drops its outcome.
	PolicyReplace
)

// ParsePolicy maps a config value to a Policy. Empty selects PolicyOverlap.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "", "overlap":
		return PolicyOverlap, true
	case "replace":
		return PolicyReplace, true
	default:
		return PolicyOverlap, false
	}
}

func (p Policy) String() string {
	if p == PolicyReplace {
		return "replace"
	}
	return "overlap"
}

// ResponseCheck validates a 2xx response; a non-nil error turns the call into a failure.
type ResponseCheck func(resp httpclient.Response) error

// Option configures a Loader.
type Option func(*Loader)

// WithObserver appends observers, invoked in registration order.
func WithObserver(obs ...Observer) Option {
	return func(l *Loader) {
		for _, o := range obs {
			if o != nil {
				l.observers = append(l.observers, o)
			}
		}
	}
}

// WithPolicy selects the concurrency policy.
func WithPolicy(p Policy) Option {
	return func(l *Loader) { l.policy = p }
}

// WithResponseCheck installs a check run on every 2xx response before it is accepted.
func WithResponseCheck(check ResponseCheck) Option {
	return func(l *Loader) { l.check = check }
}
