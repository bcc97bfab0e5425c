package storage

import (
	"fmt"
	"strings"
	"time"
)

// Package storage keeps a short history of settled loader calls.

// Outcome is one settled loader call.
type Outcome struct {
	ID         string    `json:"id"`
	Method     string    `json:"method"`
	URL        string    `json:"url"`
	Succeeded  bool      `json:"succeeded"`
	StatusCode int       `json:"status_code,omitempty"`
	Users      int       `json:"users"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	SettledAt  time.Time `json:"settled_at"`
}

// Store records outcomes and returns the most recent ones.
type Store interface {
	Close() error
	Record(o Outcome) error
	Recent(limit int) ([]Outcome, error)
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	OutcomeTTL      time.Duration
	CleanupInterval time.Duration
}

const (
	defaultOutcomeTTL      = 7 * 24 * time.Hour
	defaultCleanupInterval = time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.OutcomeTTL <= 0 {
		opts.OutcomeTTL = defaultOutcomeTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                  { return nil }
func (noopStore) Record(Outcome) error          { return nil }
func (noopStore) Recent(int) ([]Outcome, error) { return nil, nil }
