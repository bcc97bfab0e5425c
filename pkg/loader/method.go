package loader

import (
	"net/http"
	"strings"
)

// Method is the closed set of request methods a Loader can issue.
type Method int

const (
	methodInvalid Method = iota
	MethodGet
	MethodPost
)

// ParseMethod maps an HTTP verb to a Method. Only GET and POST are supported.
func ParseMethod(s string) (Method, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case http.MethodGet:
		return MethodGet, nil
	case http.MethodPost:
		return MethodPost, nil
	default:
		return methodInvalid, &MethodError{Method: s}
	}
}

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	return m == MethodGet || m == MethodPost
}

func (m Method) String() string {
	switch m {
	case MethodGet:
		return http.MethodGet
	case MethodPost:
		return http.MethodPost
	default:
		return "INVALID"
	}
}
