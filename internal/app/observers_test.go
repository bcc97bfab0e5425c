package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samvad-hq/userloader/pkg/loader"
)

type stubResponse struct {
	status int
	body   []byte
}

func (s *stubResponse) Body() []byte    { return s.body }
func (s *stubResponse) StatusCode() int { return s.status }

type recordingHook struct {
	startedCalls []callInfo
	settledCalls []settledCall
}

func (r *recordingHook) started(_ context.Context, info callInfo) {
	r.startedCalls = append(r.startedCalls, info)
}
func (r *recordingHook) settled(_ context.Context, sc settledCall) {
	r.settledCalls = append(r.settledCalls, sc)
}

func TestCallTrackerCorrelatesStartAndSettle(t *testing.T) {
	hook := &recordingHook{}
	tracker := newCallTracker("", hook)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	call := loader.Call{Seq: 1, Request: loader.Request{URL: "http://x", Method: loader.MethodGet}}
	tracker.OnStart(context.Background(), call)
	if tracker.pending() != 1 {
		t.Fatalf("expected pending call")
	}
	tracker.OnSuccess(context.Background(), call, &stubResponse{status: 200, body: []byte(`[{"name":"Leanne Graham"}]`)})

	if tracker.pending() != 0 {
		t.Fatalf("settled call still pending")
	}
	if len(hook.startedCalls) != 1 || len(hook.settledCalls) != 1 {
		t.Fatalf("hook calls started=%d settled=%d", len(hook.startedCalls), len(hook.settledCalls))
	}
	sc := hook.settledCalls[0]
	if sc.ID == "" || sc.ID != hook.startedCalls[0].ID {
		t.Fatalf("request id not carried: %q vs %q", sc.ID, hook.startedCalls[0].ID)
	}
	if got := sc.SettledAt.Sub(sc.StartedAt); got != time.Second {
		t.Fatalf("elapsed = %v", got)
	}
	if sc.Err != nil || len(sc.Users) != 1 || sc.Users[0].Name != "Leanne Graham" {
		t.Fatalf("unexpected settled call %#v", sc)
	}
}

func TestCallTrackerFailure(t *testing.T) {
	hook := &recordingHook{}
	tracker := newCallTracker("", hook)
	call := loader.Call{Seq: 3}
	boom := errors.New("Network Error")

	// A settle without a recorded start still gets an id.
	tracker.OnFailure(context.Background(), call, boom)

	if len(hook.settledCalls) != 1 {
		t.Fatalf("expected one settled call")
	}
	sc := hook.settledCalls[0]
	if sc.Err != boom || sc.ID == "" || sc.Response != nil {
		t.Fatalf("unexpected settled call %#v", sc)
	}
}

func TestCallTrackerReleasesSupersededCalls(t *testing.T) {
	hook := &recordingHook{}
	tracker := newCallTracker("", hook)
	call := loader.Call{Seq: 1, Request: loader.Request{URL: "http://x", Method: loader.MethodGet}}

	tracker.OnStart(context.Background(), call)
	tracker.OnFailure(context.Background(), call, loader.ErrSuperseded)

	if tracker.pending() != 0 {
		t.Fatalf("superseded call still pending")
	}
	if len(hook.settledCalls) != 1 || !errors.Is(hook.settledCalls[0].Err, loader.ErrSuperseded) {
		t.Fatalf("unexpected settles %#v", hook.settledCalls)
	}
	if hook.settledCalls[0].ID != hook.startedCalls[0].ID {
		t.Fatalf("request id not carried to superseded settle")
	}
}
