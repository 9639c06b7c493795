// Package subscription ties the pieces together: it translates Chinese
// schedule phrases into recurrence rules, persists subscriptions, and keeps
// exactly one live scheduler trigger per stored row.
//
// Ordering discipline: a subscription is durable before its trigger is
// registered and before the user is acknowledged, so a crash between steps
// can only leave a stored row without a trigger, which the boot-time rebuild
// repairs. Mutations are rejected until that rebuild has completed.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"weatherbot/internal/recurrence"
	"weatherbot/internal/scheduler"
	"weatherbot/internal/storage"
	"weatherbot/pkg/logx"
)

var ErrNotReady = errors.New("subscription service not ready")

// Runner executes one scheduled weather push.
type Runner interface {
	Run(ctx context.Context, sub storage.Subscription) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, sub storage.Subscription) error

func (f RunnerFunc) Run(ctx context.Context, sub storage.Subscription) error { return f(ctx, sub) }

type Config struct {
	DefaultTimezone string // stamped on new rules; falls back to Asia/Shanghai
	DefaultCity     string
	TriggerTimeout  time.Duration // 0 means scheduler default
}

type Service struct {
	cfg    Config
	store  *storage.Store
	sched  *scheduler.Service
	runner Runner
	log    logx.Logger

	mu    sync.Mutex
	ready bool
}

func New(cfg Config, store *storage.Store, sched *scheduler.Service, runner Runner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.DefaultTimezone) == "" {
		cfg.DefaultTimezone = "Asia/Shanghai"
	}
	return &Service{cfg: cfg, store: store, sched: sched, runner: runner, log: log}
}

// Apply updates the defaults stamped onto new subscriptions. Existing rows
// keep the timezone and city they were created with.
func (s *Service) Apply(cfg Config) {
	if strings.TrimSpace(cfg.DefaultTimezone) == "" {
		cfg.DefaultTimezone = "Asia/Shanghai"
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start rebuilds the live trigger set from storage. Rows whose stored rule no
// longer validates are logged and skipped rather than failing boot; every
// healthy row gets its trigger back before mutations are accepted.
func (s *Service) Start(ctx context.Context) error {
	subs, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	restored := 0
	for _, sub := range subs {
		if !sub.Enabled {
			continue
		}
		if err := s.register(sub); err != nil {
			s.log.Error("trigger rebuild failed, skipping subscription",
				logx.String("owner", sub.Owner), logx.Int64("seq", sub.Seq), logx.Err(err))
			continue
		}
		restored++
	}
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.log.Info("subscriptions restored",
		logx.Int("stored", len(subs)), logx.Int("triggers", restored))
	return nil
}

// Stop blocks further mutations. Live triggers are torn down by the
// scheduler's own shutdown.
func (s *Service) Stop() {
	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()
}

func (s *Service) isReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Create parses the schedule phrase, persists the subscription, then
// registers its trigger. The stored row is rolled back if registration
// fails, so storage and the live trigger set stay in lockstep.
func (s *Service) Create(ctx context.Context, sub storage.Subscription) (storage.Subscription, error) {
	if !s.isReady() {
		return storage.Subscription{}, ErrNotReady
	}

	cfg := s.config()
	rule, err := recurrence.Translate(sub.RawDescription)
	if err != nil {
		return storage.Subscription{}, err
	}
	rule.Timezone = cfg.DefaultTimezone
	if err := rule.Validate(); err != nil {
		return storage.Subscription{}, err
	}
	sub.Rule = rule
	if strings.TrimSpace(sub.City) == "" {
		sub.City = cfg.DefaultCity
	}

	created, err := s.store.Create(ctx, sub)
	if err != nil {
		return storage.Subscription{}, err
	}
	if err := s.register(created); err != nil {
		// Roll back so we never ack a subscription that will not fire.
		if derr := s.store.DeleteBySeq(ctx, created.Owner, created.Seq); derr != nil {
			s.log.Error("rollback after trigger failure also failed",
				logx.String("owner", created.Owner), logx.Int64("seq", created.Seq), logx.Err(derr))
		}
		return storage.Subscription{}, fmt.Errorf("register trigger: %w", err)
	}
	s.log.Info("subscription created",
		logx.String("owner", created.Owner), logx.Int64("seq", created.Seq),
		logx.String("city", created.City), logx.String("spec", s.cronSpec(created)))
	return created, nil
}

// Delete removes the subscription at the 1-based display index. The row is
// removed durably first; trigger removal is idempotent and cannot fail.
func (s *Service) Delete(ctx context.Context, owner string, index int) (storage.Subscription, error) {
	if !s.isReady() {
		return storage.Subscription{}, ErrNotReady
	}
	victim, err := s.store.Delete(ctx, owner, index)
	if err != nil {
		return storage.Subscription{}, err
	}
	s.sched.Remove(victim.TriggerName())
	s.log.Info("subscription deleted",
		logx.String("owner", victim.Owner), logx.Int64("seq", victim.Seq))
	return victim, nil
}

// List returns the owner's subscriptions in display order (index i is shown
// as i+1).
func (s *Service) List(ctx context.Context, owner string) ([]storage.Subscription, error) {
	return s.store.List(ctx, owner)
}

func (s *Service) register(sub storage.Subscription) error {
	// A push occurrence is never retried: a failed fetch or delivery is
	// logged by the scheduler and the subscription waits for its next fire.
	local := sub
	return s.sched.AddOpt(sub.TriggerName(), s.cronSpec(sub), s.config().TriggerTimeout,
		scheduler.TriggerOptions{Overlap: scheduler.OverlapSkipIfRunning, RetryMax: 0},
		func(ctx context.Context) error {
			return s.runner.Run(ctx, local)
		})
}

// cronSpec renders the subscription's firing spec in its own stored
// timezone, never the host's.
func (s *Service) cronSpec(sub storage.Subscription) string {
	spec := sub.Rule.CronSpec()
	if tz := strings.TrimSpace(sub.Rule.Timezone); tz != "" {
		return "CRON_TZ=" + tz + " " + spec
	}
	return spec
}
