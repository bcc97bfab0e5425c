package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/userloader/internal/domain"
	"github.com/samvad-hq/userloader/internal/logger"
	"github.com/samvad-hq/userloader/internal/storage"
	"github.com/samvad-hq/userloader/internal/users"
	"github.com/samvad-hq/userloader/pkg/httpclient"
	"github.com/samvad-hq/userloader/pkg/loader"
	"github.com/samvad-hq/userloader/pkg/publishers"
)

// callInfo identifies one loader call across its start and settle notifications.
type callInfo struct {
	ID        string
	Call      loader.Call
	StartedAt time.Time
}

// settledCall is a finished call. Users is decoded only on success.
type settledCall struct {
	callInfo
	Response  httpclient.Response
	Users     []domain.User
	Err       error
	SettledAt time.Time
}

type callHook interface {
	started(ctx context.Context, info callInfo)
	settled(ctx context.Context, sc settledCall)
}

// callTracker is the loader observer feeding the hooks. It assigns each call a request id and
// decodes the users of a successful response once for all hooks.
type callTracker struct {
	usersPath string
	hooks     []callHook
	now       func() time.Time

	mu    sync.Mutex
	calls map[uint64]callInfo
}

var _ loader.Observer = (*callTracker)(nil)

func newCallTracker(usersPath string, hooks ...callHook) *callTracker {
	return &callTracker{
		usersPath: usersPath,
		hooks:     hooks,
		now:       time.Now,
		calls:     make(map[uint64]callInfo),
	}
}

func (t *callTracker) OnStart(ctx context.Context, call loader.Call) {
	info := callInfo{ID: uuid.NewString(), Call: call, StartedAt: t.now().UTC()}
	t.mu.Lock()
	t.calls[call.Seq] = info
	t.mu.Unlock()

	for _, h := range t.hooks {
		h.started(ctx, info)
	}
}

func (t *callTracker) OnSuccess(ctx context.Context, call loader.Call, resp httpclient.Response) {
	sc := t.finish(call)
	sc.Response = resp
	list, err := users.FromResponse(resp, t.usersPath)
	if err != nil {
		sc.Err = err
	} else {
		sc.Users = list
	}
	t.notify(ctx, sc)
}

func (t *callTracker) OnFailure(ctx context.Context, call loader.Call, err error) {
	sc := t.finish(call)
	sc.Err = err
	t.notify(ctx, sc)
}

func (t *callTracker) finish(call loader.Call) settledCall {
	t.mu.Lock()
	info, ok := t.calls[call.Seq]
	delete(t.calls, call.Seq)
	t.mu.Unlock()

	now := t.now().UTC()
	if !ok {
		info = callInfo{ID: uuid.NewString(), Call: call, StartedAt: now}
	}
	return settledCall{callInfo: info, SettledAt: now}
}

func (t *callTracker) notify(ctx context.Context, sc settledCall) {
	for _, h := range t.hooks {
		h.settled(ctx, sc)
	}
}

func (t *callTracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// logHook writes one structured entry per lifecycle step.
type logHook struct {
	log logger.Logger
}

func (h *logHook) started(_ context.Context, info callInfo) {
	h.log.InfoObj("users request started", "request", map[string]any{
		"request_id": info.ID,
		"seq":        info.Call.Seq,
		"method":     info.Call.Request.Method.String(),
		"url":        info.Call.Request.URL,
	})
}

func (h *logHook) settled(_ context.Context, sc settledCall) {
	fields := map[string]any{
		"request_id": sc.ID,
		"seq":        sc.Call.Seq,
		"elapsed_ms": sc.SettledAt.Sub(sc.StartedAt).Milliseconds(),
	}
	if errors.Is(sc.Err, loader.ErrSuperseded) {
		h.log.InfoObj("users request superseded", "request", fields)
		return
	}
	if sc.Err != nil {
		fields["error"] = sc.Err.Error()
		if code := loader.StatusCodeOf(sc.Err); code != 0 {
			fields["status_code"] = code
		}
		h.log.ErrorObj("users request failed", "request", fields)
		return
	}
	fields["status_code"] = sc.Response.StatusCode()
	fields["users"] = len(sc.Users)
	h.log.InfoObj("users request succeeded", "request", fields)
}

// historyHook records every settled call in the outcome store.
type historyHook struct {
	store storage.Store
	log   logger.Logger
}

func (*historyHook) started(context.Context, callInfo) {}

func (h *historyHook) settled(_ context.Context, sc settledCall) {
	o := storage.Outcome{
		ID:        sc.ID,
		Method:    sc.Call.Request.Method.String(),
		URL:       sc.Call.Request.URL,
		Succeeded: sc.Err == nil,
		Users:     len(sc.Users),
		StartedAt: sc.StartedAt,
		SettledAt: sc.SettledAt,
	}
	if sc.Response != nil {
		o.StatusCode = sc.Response.StatusCode()
	}
	if sc.Err != nil {
		o.Error = sc.Err.Error()
		if code := loader.StatusCodeOf(sc.Err); code != 0 {
			o.StatusCode = code
		}
	}
	if err := h.store.Record(o); err != nil {
		h.log.WarnObj("failed to record outcome", "history_error", map[string]any{
			"request_id": sc.ID,
			"error":      err.Error(),
		})
	}
}

// publishHook announces successful loads to the configured sinks.
type publishHook struct {
	fanout *publishers.Fanout
	log    logger.Logger
}

func (*publishHook) started(context.Context, callInfo) {}

func (h *publishHook) settled(ctx context.Context, sc settledCall) {
	if sc.Err != nil || h.fanout.Size() == 0 {
		return
	}
	evt := publishers.NewEvent(sc.Call.Request.URL, sc.Call.Request.Method.String(), sc.Response.StatusCode(), sc.Users)
	delivered, err := h.fanout.Publish(ctx, evt)
	if err != nil {
		h.log.ErrorObj("publish users event failed", "publish_error", map[string]any{
			"request_id": sc.ID,
			"event_id":   evt.ID,
			"delivered":  delivered,
			"error":      err.Error(),
		})
		return
	}
	h.log.DebugObj("users event published", "publish_meta", map[string]any{
		"request_id": sc.ID,
		"event_id":   evt.ID,
		"delivered":  delivered,
	})
}
