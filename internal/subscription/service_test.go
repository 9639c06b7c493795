package subscription

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"weatherbot/internal/recurrence"
	"weatherbot/internal/scheduler"
	"weatherbot/internal/storage"
	"weatherbot/pkg/logx"
)

func newTestService(t *testing.T) (*Service, *storage.Store, *scheduler.Service) {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	sched := scheduler.New(scheduler.Config{Timezone: "Asia/Shanghai"}, logx.Nop())
	runner := RunnerFunc(func(context.Context, storage.Subscription) error { return nil })
	svc := New(Config{DefaultTimezone: "Asia/Shanghai", DefaultCity: "杭州"}, st, sched, runner, logx.Nop())
	return svc, st, sched
}

func draft(owner, city, raw string) storage.Subscription {
	return storage.Subscription{Owner: owner, ChatID: 7, City: city, RawDescription: raw}
}

func TestCreateRegistersTrigger(t *testing.T) {
	svc, _, sched := newTestService(t)
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	created, err := svc.Create(ctx, draft("1:1", "杭州", "每天早上8点发送天气"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Seq != 1 {
		t.Fatalf("seq = %d", created.Seq)
	}
	if created.Rule.Hour != 8 || created.Rule.Minute != 0 {
		t.Fatalf("rule = %+v", created.Rule)
	}

	snap := sched.Snapshot()
	if len(snap.Triggers) != 1 {
		t.Fatalf("trigger count = %d, want 1", len(snap.Triggers))
	}
	if snap.Triggers[0].Name != created.TriggerName() {
		t.Fatalf("trigger name = %q", snap.Triggers[0].Name)
	}
	if snap.Triggers[0].Overlap != scheduler.OverlapSkipIfRunning {
		t.Fatalf("trigger overlap = %v, want skip-if-running", snap.Triggers[0].Overlap)
	}
	if snap.Triggers[0].RetryMax != 0 {
		t.Fatalf("trigger retry max = %d, want 0 (one attempt per occurrence)", snap.Triggers[0].RetryMax)
	}
	if snap.Triggers[0].Spec != "CRON_TZ=Asia/Shanghai 0 8 * * *" {
		t.Fatalf("trigger spec = %q", snap.Triggers[0].Spec)
	}
}

func TestCreateRejectsUnparseablePhrase(t *testing.T) {
	svc, st, sched := newTestService(t)
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := svc.Create(ctx, draft("1:1", "杭州", "每3天发送天气"))
	var pe *recurrence.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if pe.Kind != recurrence.UnsupportedFrequency {
		t.Fatalf("kind = %v", pe.Kind)
	}

	// A rejected phrase must leave no partial state behind.
	subs, _ := st.LoadAll(ctx)
	if len(subs) != 0 {
		t.Fatalf("store not empty after rejection: %+v", subs)
	}
	if len(sched.Snapshot().Triggers) != 0 {
		t.Fatal("trigger leaked after rejection")
	}
}

func TestCreateAppliesDefaultCity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	created, err := svc.Create(ctx, draft("1:1", "", "每天早上8点发送天气"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.City != "杭州" {
		t.Fatalf("city = %q, want default", created.City)
	}
}

func TestMutationsRejectedBeforeStart(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, draft("1:1", "杭州", "每天早上8点发送天气")); !errors.Is(err, ErrNotReady) {
		t.Fatalf("create before start: err = %v, want ErrNotReady", err)
	}
	if _, err := svc.Delete(ctx, "1:1", 1); !errors.Is(err, ErrNotReady) {
		t.Fatalf("delete before start: err = %v, want ErrNotReady", err)
	}
}

func TestDeleteRemovesTriggerAndCompacts(t *testing.T) {
	svc, _, sched := newTestService(t)
	ctx := context.Background()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := svc.Create(ctx, draft("1:1", "杭州", "每天早上8点发送天气"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, draft("1:1", "北京", "每天晚上8点发送天气")); err != nil {
		t.Fatalf("create: %v", err)
	}

	victim, err := svc.Delete(ctx, "1:1", 1)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if victim.Seq != first.Seq {
		t.Fatalf("victim seq = %d, want %d", victim.Seq, first.Seq)
	}

	snap := sched.Snapshot()
	if len(snap.Triggers) != 1 {
		t.Fatalf("trigger count = %d, want 1", len(snap.Triggers))
	}

	subs, err := svc.List(ctx, "1:1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].City != "北京" {
		t.Fatalf("list after delete: %+v", subs)
	}

	if _, err := svc.Delete(ctx, "1:1", 5); !storage.IsNotFound(err) {
		t.Fatalf("out-of-range delete: err = %v, want not found", err)
	}
}

func TestRestartRebuildsTriggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.db")
	ctx := context.Background()

	st, err := storage.Open(storage.Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	sched := scheduler.New(scheduler.Config{Timezone: "Asia/Shanghai"}, logx.Nop())
	runner := RunnerFunc(func(context.Context, storage.Subscription) error { return nil })
	svc := New(Config{DefaultTimezone: "Asia/Shanghai"}, st, sched, runner, logx.Nop())
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Create(ctx, draft("1:1", "杭州", "每周一三五上午9点发送天气")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Fresh process: new store, new scheduler, same file.
	st2, err := storage.Open(storage.Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st2.Close()
	sched2 := scheduler.New(scheduler.Config{Timezone: "Asia/Shanghai"}, logx.Nop())
	svc2 := New(Config{DefaultTimezone: "Asia/Shanghai"}, st2, sched2, runner, logx.Nop())
	if err := svc2.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}

	snap := sched2.Snapshot()
	if len(snap.Triggers) != 1 {
		t.Fatalf("rebuilt trigger count = %d, want 1", len(snap.Triggers))
	}
	if snap.Triggers[0].Spec != "CRON_TZ=Asia/Shanghai 0 9 * * 1,3,5" {
		t.Fatalf("rebuilt spec = %q", snap.Triggers[0].Spec)
	}
}
