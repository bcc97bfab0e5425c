package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/samvad-hq/userloader/pkg/httpclient"
	"github.com/samvad-hq/userloader/pkg/loader"
)

type stubResponse struct{ code int }

func (s *stubResponse) Body() []byte    { return nil }
func (s *stubResponse) StatusCode() int { return s.code }

func TestCollectorRecordsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	base := time.Unix(0, 0)
	c.now = func() time.Time { return base }

	get := loader.Call{Seq: 1, Request: loader.Request{Method: loader.MethodGet}}
	c.OnStart(context.Background(), get)
	if got := testutil.ToFloat64(c.inFlight); got != 1 {
		t.Fatalf("in flight = %v, want 1", got)
	}

	base = base.Add(250 * time.Millisecond)
	c.OnSuccess(context.Background(), get, &stubResponse{code: 200})

	post := loader.Call{Seq: 2, Request: loader.Request{Method: loader.MethodPost}}
	c.OnStart(context.Background(), post)
	c.OnFailure(context.Background(), post, &loader.StatusError{StatusCode: 503})

	c.OnStart(context.Background(), loader.Call{Seq: 3, Request: loader.Request{Method: loader.MethodGet}})
	c.OnFailure(context.Background(), loader.Call{Seq: 3, Request: loader.Request{Method: loader.MethodGet}}, errors.New("Network Error"))

	if got := testutil.ToFloat64(c.triggersTotal.WithLabelValues("GET")); got != 2 {
		t.Fatalf("GET triggers = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.outcomesTotal.WithLabelValues("GET", "success", "200")); got != 1 {
		t.Fatalf("GET successes = %v", got)
	}
	if got := testutil.ToFloat64(c.outcomesTotal.WithLabelValues("POST", "failure", "503")); got != 1 {
		t.Fatalf("POST 503 failures = %v", got)
	}
	if got := testutil.ToFloat64(c.outcomesTotal.WithLabelValues("GET", "failure", "none")); got != 1 {
		t.Fatalf("GET network failures = %v", got)
	}
	if got := testutil.ToFloat64(c.inFlight); got != 0 {
		t.Fatalf("in flight = %v, want 0", got)
	}
	if n := testutil.CollectAndCount(c.requestDuration); n != 3 {
		t.Fatalf("expected 3 duration series, got %d", n)
	}
	if len(c.started) != 0 {
		t.Fatalf("start times leaked: %d", len(c.started))
	}
}

// gatedClient blocks the first call until gate closes or its context is cancelled.
type gatedClient struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
}

func (g *gatedClient) Get(ctx context.Context, _ string, _ map[string]string) (httpclient.Response, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &stubResponse{code: 200}, nil
}

func (g *gatedClient) Post(ctx context.Context, url string, _ any, headers map[string]string) (httpclient.Response, error) {
	return g.Get(ctx, url, headers)
}

func (g *gatedClient) waitCalls(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		got := g.calls
		g.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("client never reached %d calls", n)
}

func TestCollectorSettlesReplacedCalls(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	client := &gatedClient{gate: make(chan struct{})}
	l, err := loader.New(nil, client, loader.Request{URL: "http://users.test", Method: loader.MethodGet},
		loader.WithPolicy(loader.PolicyReplace), loader.WithObserver(c))
	if err != nil {
		t.Fatalf("loader.New: %v", err)
	}

	first, _ := l.Trigger(context.Background())
	client.waitCalls(t, 1)
	second, _ := l.Trigger(context.Background())
	<-second
	<-first

	if got := testutil.ToFloat64(c.inFlight); got != 0 {
		t.Fatalf("in flight = %v after every call finished, want 0", got)
	}
	if got := testutil.ToFloat64(c.outcomesTotal.WithLabelValues("GET", "superseded", "none")); got != 1 {
		t.Fatalf("superseded outcomes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.outcomesTotal.WithLabelValues("GET", "success", "200")); got != 1 {
		t.Fatalf("successes = %v, want 1", got)
	}
	c.mu.Lock()
	pending := len(c.started)
	c.mu.Unlock()
	if pending != 0 {
		t.Fatalf("%d start times never released", pending)
	}
}
