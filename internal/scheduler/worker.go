package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"weatherbot/pkg/logx"
)

func (s *Service) enqueue(t task) bool {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("scheduler not running, dropping task", logx.String("task", t.name))
		return false
	}
	select {
	case q <- t:
		return true
	default:
		s.log.Warn("scheduler queue full, dropping task",
			logx.String("task", t.name),
			logx.Int("queue_len", len(q)), logx.Int("queue_cap", cap(q)))
		return false
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, stopCh, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, t task) {
	start := time.Now()

	// The active flag was claimed at fire time; hand it back once the run
	// (including retries) is over.
	if t.held && t.state != nil {
		defer t.state.release()
	}

	opt := t.opt.withDefaults()
	maxAttempts := 1 + opt.RetryMax

	var err error
	attempts := 0
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		// Per-attempt timeout so a timed-out first attempt doesn't poison
		// retries.
		runCtx := ctx
		var cancel func()
		if t.timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		}
		err = t.run(runCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil || attempt >= maxAttempts {
			break
		}

		delay := backoffDelay(opt, attempt)
		if delay > 0 {
			s.log.Debug("task retry scheduled",
				logx.String("task", t.name), logx.Int("attempt", attempt+1),
				logx.Duration("delay", delay), logx.Err(err))
			tmr := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				err = ctx.Err()
				break attemptLoop
			case <-stopCh:
				if !tmr.Stop() {
					<-tmr.C
				}
				err = errors.New("scheduler stopped")
				break attemptLoop
			case <-tmr.C:
			}
		}
	}

	dur := time.Since(start)
	item := HistoryItem{ID: t.id, Name: t.name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task failed",
			logx.String("task", t.name), logx.Err(err),
			logx.Duration("dur", dur), logx.Int("attempts", attempts))
	} else if dur >= 750*time.Millisecond {
		s.log.Info("task completed",
			logx.String("task", t.name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
	} else {
		s.log.Debug("task completed",
			logx.String("task", t.name), logx.Duration("dur", dur), logx.Int("attempts", attempts))
	}

	s.mu.Lock()
	historySize := s.cfg.HistorySize
	s.mu.Unlock()
	if historySize <= 0 {
		historySize = 200
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.hmu.Unlock()
}

func backoffDelay(opt TriggerOptions, retry int) time.Duration {
	d := opt.RetryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d > opt.RetryMaxDelay {
			d = opt.RetryMaxDelay
			break
		}
	}
	// jitter in [1-j, 1+j]
	if opt.RetryJitter > 0 {
		r := (rand.Float64()*2 - 1) * opt.RetryJitter
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	if d > opt.RetryMaxDelay {
		d = opt.RetryMaxDelay
	}
	return d
}
