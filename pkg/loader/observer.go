package loader

import (
	"context"

	"github.com/samvad-hq/userloader/pkg/httpclient"
)

// Call identifies one trigger of a Loader; observers use it to correlate start and settle.
type Call struct {
	Seq     uint64
	Request Request
}

// Observer is notified at fixed points of every call: OnStart right after request-started is
// dispatched, OnSuccess / OnFailure right before the settling transition is dispatched.
// Every OnStart is paired with exactly one OnSuccess or OnFailure; a call dropped under
// PolicyReplace settles with ErrSuperseded and no transition is dispatched.
// Observers are for observation only; they cannot change the outcome.
type Observer interface {
	OnStart(ctx context.Context, call Call)
	OnSuccess(ctx context.Context, call Call, resp httpclient.Response)
	OnFailure(ctx context.Context, call Call, err error)
}

// ObserverFuncs adapts plain callbacks to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Start   func(ctx context.Context, call Call)
	Success func(ctx context.Context, call Call, resp httpclient.Response)
	Failure func(ctx context.Context, call Call, err error)
}

func (f ObserverFuncs) OnStart(ctx context.Context, call Call) {
	if f.Start != nil {
		f.Start(ctx, call)
	}
}

func (f ObserverFuncs) OnSuccess(ctx context.Context, call Call, resp httpclient.Response) {
	if f.Success != nil {
		f.Success(ctx, call, resp)
	}
}

func (f ObserverFuncs) OnFailure(ctx context.Context, call Call, err error) {
	if f.Failure != nil {
		f.Failure(ctx, call, err)
	}
}

// OnSuccess builds an observer that only receives successful responses.
func OnSuccess(fn func(resp httpclient.Response)) Observer {
	return ObserverFuncs{Success: func(_ context.Context, _ Call, resp httpclient.Response) { fn(resp) }}
}

// OnFailure builds an observer that only receives failures.
func OnFailure(fn func(err error)) Observer {
	return ObserverFuncs{Failure: func(_ context.Context, _ Call, err error) { fn(err) }}
}
