package loader

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedMethod is returned when a request uses a method other than GET or POST.
	ErrUnsupportedMethod = errors.New("loader: unsupported method")

	// ErrEmptyURL is returned when a request has no URL.
	ErrEmptyURL = errors.New("loader: empty url")

	// ErrSuperseded is passed to OnFailure for a call whose outcome was dropped under
	// PolicyReplace, either by a newer trigger or by Close. It never reaches the store.
	ErrSuperseded = errors.New("loader: call superseded")
)

// MethodError reports the rejected method; it matches ErrUnsupportedMethod with errors.Is.
type MethodError struct {
	Method string
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("%s %q", ErrUnsupportedMethod, e.Method)
}

func (e *MethodError) Is(target error) bool { return target == ErrUnsupportedMethod }

// StatusError is recorded when the server answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	snippet := strings.TrimSpace(string(e.Body))
	if len(snippet) > 512 {
		snippet = snippet[:512] + "..."
	}
	if snippet == "" {
		return fmt.Sprintf("%s %s: request failed with status code %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: request failed with status code %d: %s", e.Method, e.URL, e.StatusCode, snippet)
}

// StatusCodeOf returns the HTTP status carried by err, or 0 when there is none.
func StatusCodeOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
