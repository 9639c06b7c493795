package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"weatherbot/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Workers        int
	DefaultTimeout time.Duration
	HistorySize    int
	Timezone       string // IANA TZ; default location for specs without a CRON_TZ prefix
}

type OverlapPolicy int

const (
	OverlapAllow OverlapPolicy = iota
	OverlapSkipIfRunning
)

// TriggerOptions tune one trigger's execution.
type TriggerOptions struct {
	Overlap       OverlapPolicy
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64 // 0.2 = 20%
}

func (o TriggerOptions) withDefaults() TriggerOptions {
	if o.RetryMax < 0 {
		o.RetryMax = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	if o.RetryJitter <= 0 {
		o.RetryJitter = 0.2
	}
	if o.Overlap != OverlapAllow && o.Overlap != OverlapSkipIfRunning {
		o.Overlap = OverlapSkipIfRunning
	}
	return o
}

// runState is shared between consecutive firings of one trigger. active
// covers the whole life of an accepted fire, from the moment it is queued
// until its run returns, so overlap control can refuse the next fire even
// while the previous one is still waiting for a worker.
type runState struct {
	mu     sync.Mutex
	active bool
}

// tryAcquire claims the trigger for one fire; it fails while a previous
// fire is still pending or running.
func (st *runState) tryAcquire() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active {
		return false
	}
	st.active = true
	return true
}

func (st *runState) release() {
	st.mu.Lock()
	st.active = false
	st.mu.Unlock()
}

type HistoryItem struct {
	ID       string
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type task struct {
	id      string
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	opt     TriggerOptions
	state   *runState
	// held marks that this task owns state's active flag and must release
	// it when the run finishes (or the enqueue is dropped).
	held bool
}

type triggerDef struct {
	id      string
	name    string
	spec    string
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
	opt     TriggerOptions
	state   *runState
}

// task builds the unit of work one cron tick submits for this trigger.
func (d *triggerDef) task() task {
	return task{id: d.id, name: d.name, timeout: d.timeout, run: d.job, opt: d.opt, state: d.state}
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []triggerDef

	queue  chan task
	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; closed when workers
	// fully exit.
	stopDone chan struct{}

	hmu       sync.Mutex
	history   []HistoryItem
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

type TriggerInfo struct {
	ID       string
	Name     string
	Spec     string
	Timeout  time.Duration
	Overlap  OverlapPolicy
	RetryMax int
	Next     time.Time
	Prev     time.Time
}

type Snapshot struct {
	Timezone string
	Workers  int
	QueueLen int
	Triggers []TriggerInfo
	History  []HistoryItem
}
