package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNotifiersFanOutPastPanics(t *testing.T) {
	first := &countingNotifier{}
	second := &countingNotifier{}
	notifiers := NewNotifiers(
		zerolog.Nop(),
		first,
		NotifierFunc(func(context.Context, string) { panic("broker gone") }),
		nil,
		second,
	)

	notifiers.OnReservationConfirmed(context.Background(), "res-1")

	if len(first.calls()) != 1 || len(second.calls()) != 1 {
		t.Fatalf("expected both notifiers to be called once, got %v and %v", first.calls(), second.calls())
	}
}

func TestNotifyConfirmedIsDetachedAndBounded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var startErr, endErr error
	var hasDeadline bool
	blocking := NotifierFunc(func(ctx context.Context, _ string) {
		startErr = ctx.Err()
		_, hasDeadline = ctx.Deadline()
		<-ctx.Done()
		endErr = ctx.Err()
	})

	started := time.Now()
	NotifyConfirmed(ctx, blocking, "res-1", 20*time.Millisecond, zerolog.Nop())

	if startErr != nil {
		t.Fatalf("expected notifier context detached from caller cancellation, got %v", startErr)
	}
	if !hasDeadline || endErr != context.DeadlineExceeded {
		t.Fatalf("expected notifier context to time out, deadline=%v err=%v", hasDeadline, endErr)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("expected NotifyConfirmed to return after its timeout, took %s", elapsed)
	}
}

func TestNotifyConfirmedRecoversPanics(t *testing.T) {
	NotifyConfirmed(context.Background(), NotifierFunc(func(context.Context, string) {
		panic("broker gone")
	}), "res-1", time.Second, zerolog.Nop())

	NotifyConfirmed(context.Background(), nil, "res-1", time.Second, zerolog.Nop())
}
