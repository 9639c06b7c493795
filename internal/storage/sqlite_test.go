package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"weatherbot/internal/recurrence"
	"weatherbot/pkg/logx"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	st, err := Open(Config{Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testSub(owner, city string, hour int) Subscription {
	return Subscription{
		Owner:          owner,
		ChatID:         100,
		City:           city,
		RawDescription: "每天天气",
		Rule:           recurrence.Rule{Minute: 0, Hour: hour, Timezone: "Asia/Shanghai"},
	}
}

func TestCreateAllocatesSequentialSeq(t *testing.T) {
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		got, err := st.Create(ctx, testSub("1:1", "杭州", 8))
		if err != nil {
			t.Fatalf("create #%d: %v", i, err)
		}
		if got.Seq != int64(i) {
			t.Fatalf("create #%d: seq = %d, want %d", i, got.Seq, i)
		}
		if !got.Enabled {
			t.Fatalf("create #%d: not enabled", i)
		}
	}

	// Another owner starts its own sequence.
	got, err := st.Create(ctx, testSub("2:2", "北京", 9))
	if err != nil {
		t.Fatalf("create other owner: %v", err)
	}
	if got.Seq != 1 {
		t.Fatalf("other owner seq = %d, want 1", got.Seq)
	}
}

func TestSeqNotReusedAfterDelete(t *testing.T) {
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := st.Create(ctx, testSub("1:1", "杭州", 8)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := st.Delete(ctx, "1:1", 3); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := st.Create(ctx, testSub("1:1", "上海", 9))
	if err != nil {
		t.Fatalf("create after delete: %v", err)
	}
	if got.Seq != 4 {
		t.Fatalf("seq after delete = %d, want 4", got.Seq)
	}
}

func TestDeleteByDisplayIndex(t *testing.T) {
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()

	cities := []string{"杭州", "北京", "上海"}
	for _, c := range cities {
		if _, err := st.Create(ctx, testSub("1:1", c, 8)); err != nil {
			t.Fatalf("create %s: %v", c, err)
		}
	}

	// Remove the first entry: the list compacts and the former second
	// becomes index 1.
	victim, err := st.Delete(ctx, "1:1", 1)
	if err != nil {
		t.Fatalf("delete index 1: %v", err)
	}
	if victim.City != "杭州" || victim.Seq != 1 {
		t.Fatalf("victim = %s seq %d, want 杭州 seq 1", victim.City, victim.Seq)
	}

	subs, err := st.List(ctx, "1:1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 2 || subs[0].City != "北京" || subs[1].City != "上海" {
		t.Fatalf("unexpected list after delete: %+v", subs)
	}

	victim, err = st.Delete(ctx, "1:1", 1)
	if err != nil {
		t.Fatalf("delete compacted index 1: %v", err)
	}
	if victim.City != "北京" {
		t.Fatalf("compacted victim = %s, want 北京", victim.City)
	}
}

func TestDeleteOutOfRange(t *testing.T) {
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()

	if _, err := st.Create(ctx, testSub("1:1", "杭州", 8)); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, index := range []int{0, -1, 2, 99} {
		if _, err := st.Delete(ctx, "1:1", index); !IsNotFound(err) {
			t.Fatalf("delete index %d: err = %v, want not found", index, err)
		}
	}

	subs, err := st.List(ctx, "1:1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("failed delete had side effects: %+v", subs)
	}
}

func TestListScopedToOwner(t *testing.T) {
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()

	if _, err := st.Create(ctx, testSub("1:1", "杭州", 8)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.Create(ctx, testSub("2:2", "北京", 9)); err != nil {
		t.Fatalf("create: %v", err)
	}

	subs, err := st.List(ctx, "1:1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].City != "杭州" {
		t.Fatalf("list leaked across owners: %+v", subs)
	}
	if subs, _ := st.List(ctx, "3:3"); len(subs) != 0 {
		t.Fatalf("unknown owner list = %+v, want empty", subs)
	}
}

func TestReopenPreservesSubscriptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.db")
	ctx := context.Background()

	st := openTestStore(t, path)
	sub := testSub("1:1", "杭州", 8)
	sub.Rule.DaysOfWeek = []time.Weekday{time.Monday, time.Wednesday, time.Friday}
	created, err := st.Create(ctx, sub)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st2 := openTestStore(t, path)
	all, err := st2.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("loaded %d subscriptions, want 1", len(all))
	}
	got := all[0]
	if got.Owner != created.Owner || got.Seq != created.Seq || got.City != created.City {
		t.Fatalf("reloaded record mismatch: %+v", got)
	}
	if got.Rule.CronSpec() != "0 8 * * 1,3,5" {
		t.Fatalf("reloaded cron spec = %q", got.Rule.CronSpec())
	}
	if got.Rule.Timezone != "Asia/Shanghai" {
		t.Fatalf("reloaded timezone = %q", got.Rule.Timezone)
	}
	if !got.Enabled {
		t.Fatal("reloaded record disabled")
	}
}

func TestDeleteBySeq(t *testing.T) {
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()

	created, err := st.Create(ctx, testSub("1:1", "杭州", 8))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := st.DeleteBySeq(ctx, created.Owner, created.Seq); err != nil {
		t.Fatalf("delete by seq: %v", err)
	}
	subs, err := st.List(ctx, "1:1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("list after delete = %+v, want empty", subs)
	}
}
