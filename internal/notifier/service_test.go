package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"weatherbot/internal/transport"
	"weatherbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	fail  int // fail this many sends before succeeding
	block chan struct{}
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return transport.MessageRef{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return transport.MessageRef{}, errors.New("telegram 502")
	}
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestNotifyDeliversAndStopDrains(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(Config{Workers: 2, QueueSize: 16, RatePerSec: 100}, ad, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	for _, text := range []string{"a", "b", "c"} {
		if err := s.Notify(ctx, transport.Notification{Target: transport.ChatTarget{ChatID: 1}, Text: text}); err != nil {
			t.Fatalf("notify %q: %v", text, err)
		}
	}

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	if got := ad.texts(); len(got) != 3 {
		t.Fatalf("delivered %d messages, want 3: %v", len(got), got)
	}
}

func TestNotifyAfterStop(t *testing.T) {
	ad := &fakeAdapter{}
	s := New(Config{Workers: 1, QueueSize: 4, RatePerSec: 100}, ad, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	s.Stop(ctx)

	err := s.Notify(ctx, transport.Notification{Target: transport.ChatTarget{ChatID: 1}, Text: "late"})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("notify after stop: err = %v, want ErrStopped", err)
	}
}

func TestNotifyQueueFull(t *testing.T) {
	ad := &fakeAdapter{block: make(chan struct{})}
	s := New(Config{Workers: 1, QueueSize: 1, RatePerSec: 100}, ad, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	defer func() {
		close(ad.block)
		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		s.Stop(stopCtx)
	}()

	// First notification parks in the blocked worker, the second fills the
	// queue; eventually one more must be rejected rather than block.
	target := transport.ChatTarget{ChatID: 1}
	var sawFull bool
	for i := 0; i < 8; i++ {
		if err := s.Notify(ctx, transport.Notification{Target: target, Text: "x"}); errors.Is(err, ErrQueueFull) {
			sawFull = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !sawFull {
		t.Fatal("never saw ErrQueueFull with a blocked worker")
	}
}

func TestSendRetriesTransientFailure(t *testing.T) {
	ad := &fakeAdapter{fail: 2}
	s := New(Config{Workers: 1, QueueSize: 4, RatePerSec: 100,
		RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, ad, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	if err := s.Notify(ctx, transport.Notification{Target: transport.ChatTarget{ChatID: 1}, Text: "retry me"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	if got := ad.texts(); len(got) != 1 || got[0] != "retry me" {
		t.Fatalf("delivered = %v, want the retried message", got)
	}
}
