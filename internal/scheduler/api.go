package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"weatherbot/pkg/logx"
)

// Add registers a cron trigger under name with default options.
//
// The spec is a standard 5-field cron expression and may carry a
// "CRON_TZ=<zone> " prefix; without one it fires in the scheduler's
// configured timezone. Adding a name that is already registered replaces the
// previous definition (upsert), so re-registration across restarts or config
// reloads never duplicates triggers.
func (s *Service) Add(name, spec string, timeout time.Duration, job func(ctx context.Context) error) error {
	return s.AddOpt(name, spec, timeout, TriggerOptions{}, job)
}

// AddOpt is Add with per-trigger options.
func (s *Service) AddOpt(name, spec string, timeout time.Duration, opt TriggerOptions, job func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	// Validate before touching any existing definition so a bad spec can
	// never evict a working trigger.
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("parse spec %q: %w", spec, err)
	}

	_ = s.removeTriggerLocked(name)
	opt = opt.withDefaults()
	d := triggerDef{
		id:      fmt.Sprintf("cron:%d", time.Now().UnixNano()),
		name:    name,
		spec:    spec,
		timeout: s.resolveTimeout(timeout),
		job:     job,
		opt:     opt,
		state:   &runState{},
	}
	s.defs = append(s.defs, d)
	if s.c == nil {
		// Not started yet: keep the definition; Start() registers it.
		return nil
	}
	if err := s.addCronLocked(&s.defs[len(s.defs)-1]); err != nil {
		s.log.Error("trigger register failed",
			logx.String("trigger", name), logx.String("spec", spec), logx.Err(err))
		return err
	}
	s.log.Debug("trigger registered",
		logx.String("trigger", name), logx.String("spec", spec),
		logx.Duration("timeout", d.timeout),
		logx.String("next", s.previewNextRunsLocked(spec, 3)))
	return nil
}

// Remove unschedules the named trigger. It returns true if something was
// removed and is a no-op for unknown names, so callers may call it during
// rollback without checking registration state first.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeTriggerLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("trigger removed", logx.String("trigger", name))
	}
	return removed
}

// removeTriggerLocked removes all defs matching name and unregisters them
// from cron if running. Call with s.mu held.
func (s *Service) removeTriggerLocked(name string) bool {
	removed := false
	if s.c != nil {
		for i := range s.defs {
			if s.defs[i].name == name && s.defs[i].entryID != 0 {
				s.c.Remove(s.defs[i].entryID)
				s.defs[i].entryID = 0
				removed = true
			}
		}
	}
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) addCronLocked(d *triggerDef) error {
	t := d.task()
	eid, err := s.c.AddFunc(d.spec, func() { s.fire(t) })
	if err == nil {
		d.entryID = eid
	}
	return err
}

// fire is the per-tick entry for a trigger. Overlap control is a
// check-and-set here, before the task is queued: a fire that arrives while
// the previous one is still pending or running is skipped, never queued
// behind it, so one subscription can never occupy two workers at once.
func (s *Service) fire(t task) {
	if t.opt.Overlap == OverlapSkipIfRunning {
		if !t.state.tryAcquire() {
			s.log.Debug("trigger skipped, previous fire still pending or running",
				logx.String("trigger", t.name))
			return
		}
		t.held = true
	}
	if !s.enqueue(t) && t.held {
		t.state.release()
	}
}

// previewNextRunsLocked renders the next n fire times for debug logging.
// Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return ""
	}
	t := time.Now().In(loc)
	var b strings.Builder
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05 MST"))
	}
	return b.String()
}
