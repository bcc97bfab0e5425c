// Package loader binds one HTTP request configuration to a lifecycle store and exposes the
// resulting (loading, response, error) triple together with a trigger.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samvad-hq/userloader/pkg/httpclient"
	"github.com/samvad-hq/userloader/pkg/lifecycle"
)

// Request is the immutable request configuration of a Loader.
type Request struct {
	URL     string
	Method  Method
	Payload any
	Headers map[string]string
}

// Loader issues its Request on Trigger and mirrors the call's lifecycle into a store.
// Observers and store listeners run on the triggering or settling goroutine and must not call
// Trigger synchronously.
type Loader struct {
	store     *lifecycle.Store
	client    httpclient.Client
	req       Request
	observers []Observer
	policy    Policy
	check     ResponseCheck

	settleMu sync.Mutex

	mu        sync.Mutex
	seq       uint64
	cancel    context.CancelFunc
	watches   map[uint64]func()
	nextWatch uint64
}

// New validates req and returns a Loader writing to store. A nil store gets a fresh one.
func New(store *lifecycle.Store, client httpclient.Client, req Request, opts ...Option) (*Loader, error) {
	if !req.Method.Valid() {
		return nil, &MethodError{Method: req.Method.String()}
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return nil, ErrEmptyURL
	}
	if client == nil {
		return nil, fmt.Errorf("loader: http client must not be nil")
	}
	if store == nil {
		store = lifecycle.NewStore()
	}
	if len(req.Headers) > 0 {
		headers := make(map[string]string, len(req.Headers))
		for k, v := range req.Headers {
			headers[k] = v
		}
		req.Headers = headers
	}

	l := &Loader{
		store:   store,
		client:  client,
		req:     req,
		watches: make(map[uint64]func()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Request returns the loader's request configuration.
func (l *Loader) Request() Request { return l.req }

// Policy returns the concurrency policy in effect.
func (l *Loader) Policy() Policy { return l.policy }

// Store returns the store the loader writes to.
func (l *Loader) Store() *lifecycle.Store { return l.store }

// State returns the current lifecycle snapshot.
func (l *Loader) State() lifecycle.State { return l.store.State() }

// Watch subscribes fn to state changes until the returned function or Close is called.
func (l *Loader) Watch(fn lifecycle.Listener) (unwatch func()) {
	unsubscribe := l.store.Subscribe(fn)

	l.mu.Lock()
	id := l.nextWatch
	l.nextWatch++
	l.watches[id] = unsubscribe
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.watches, id)
		l.mu.Unlock()
		unsubscribe()
	}
}

// Close releases every Watch subscription and cancels an in-flight call under PolicyReplace.
// The cancelled call settles with ErrSuperseded and leaves the store untouched.
func (l *Loader) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	watches := l.watches
	l.watches = make(map[uint64]func())
	cancel := l.cancel
	l.cancel = nil
	if cancel != nil {
		// The cancelled call settles as superseded instead of writing a failure.
		l.seq++
	}
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, unsubscribe := range watches {
		unsubscribe()
	}
}

// Trigger starts one request cycle. It dispatches request-started before returning, issues
// exactly one HTTP call in the background and closes the returned channel once the outcome has
// been written. Only an unsupported method is reported as an error; HTTP failures end up in
// the store.
func (l *Loader) Trigger(ctx context.Context) (<-chan struct{}, error) {
	if l == nil || l.store == nil || l.client == nil {
		return nil, errors.New("loader is not initialized")
	}
	if !l.req.Method.Valid() {
		return nil, &MethodError{Method: l.req.Method.String()}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if l.policy == PolicyReplace {
		l.settleMu.Lock()
		defer l.settleMu.Unlock()
	}

	callCtx := ctx
	var cancel context.CancelFunc

	l.mu.Lock()
	l.seq++
	call := Call{Seq: l.seq, Request: l.req}
	if l.policy == PolicyReplace {
		if l.cancel != nil {
			l.cancel()
		}
		callCtx, cancel = context.WithCancel(ctx)
		l.cancel = cancel
	}
	l.mu.Unlock()

	l.store.Dispatch(lifecycle.Started{})
	for _, o := range l.observers {
		o.OnStart(ctx, call)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if cancel != nil {
			defer cancel()
		}
		l.run(callCtx, call)
	}()
	return done, nil
}

// Load triggers a call and waits for it to settle. Under PolicyOverlap the returned state is
// whatever the store holds at that moment, which may come from a concurrent call.
func (l *Loader) Load(ctx context.Context) (lifecycle.State, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	done, err := l.Trigger(ctx)
	if err != nil {
		return lifecycle.State{}, err
	}
	select {
	case <-done:
		return l.State(), nil
	case <-ctx.Done():
		return l.State(), ctx.Err()
	}
}

func (l *Loader) run(ctx context.Context, call Call) {
	resp, err := l.do(ctx)
	if err == nil {
		err = l.validate(resp)
	}

	if l.policy == PolicyReplace {
		l.settleMu.Lock()
		defer l.settleMu.Unlock()
		if l.superseded(call.Seq) {
			for _, o := range l.observers {
				o.OnFailure(ctx, call, ErrSuperseded)
			}
			return
		}
	}

	if err != nil {
		for _, o := range l.observers {
			o.OnFailure(ctx, call, err)
		}
		l.store.Dispatch(lifecycle.Failed{Err: err})
		return
	}

	for _, o := range l.observers {
		o.OnSuccess(ctx, call, resp)
	}
	l.store.Dispatch(lifecycle.Succeeded{Response: resp})
}

func (l *Loader) do(ctx context.Context) (httpclient.Response, error) {
	var (
		resp httpclient.Response
		err  error
	)
	switch l.req.Method {
	case MethodGet:
		resp, err = l.client.Get(ctx, l.req.URL, l.req.Headers)
	case MethodPost:
		resp, err = l.client.Post(ctx, l.req.URL, l.req.Payload, l.req.Headers)
	default:
		return nil, &MethodError{Method: l.req.Method.String()}
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%s %s: empty response", l.req.Method, l.req.URL)
	}
	return resp, nil
}

func (l *Loader) validate(resp httpclient.Response) error {
	if !httpclient.IsSuccess(resp) {
		return &StatusError{
			Method:     l.req.Method.String(),
			URL:        l.req.URL,
			StatusCode: resp.StatusCode(),
			Body:       resp.Body(),
		}
	}
	if l.check != nil {
		if err := l.check(resp); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) superseded(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return seq != l.seq
}
