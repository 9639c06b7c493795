// Package app assembles the bot: configuration, logging, storage, the
// scheduler/notifier pipeline, the Telegram adapter, and the weather plugin.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"weatherbot/internal/config"
	"weatherbot/internal/core"
	"weatherbot/internal/llm"
	"weatherbot/internal/notifier"
	rtsup "weatherbot/internal/runtime/supervisor"
	"weatherbot/internal/scheduler"
	"weatherbot/internal/storage"
	"weatherbot/internal/subscription"
	kit "weatherbot/internal/transport"
	"weatherbot/internal/transport/telegram"
	"weatherbot/internal/weather"
	weatherplugin "weatherbot/plugins/weather"
	"weatherbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store *storage.Store

	adapter *telegram.Adapter

	sched    *scheduler.Service
	notif    *notifier.Service
	wx       *weather.Client
	rewriter *llm.Client
	subs     *subscription.Service

	cmdm *core.CommandManager
	pm   *core.PluginManager

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	schedSvc := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifSvc := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")))

	wcfg, err := mapWeatherConfig(cfg)
	if err != nil {
		return nil, err
	}
	wxClient := weather.NewClient(wcfg, log.With(logx.String("comp", "weather")))

	lcfg, err := mapLLMConfig(cfg)
	if err != nil {
		return nil, err
	}
	rewriter := llm.NewClient(lcfg, log.With(logx.String("comp", "llm")))

	job := weatherplugin.NewJob(wxClient, rewriter, notifSvc, log.With(logx.String("comp", "weather.job")))

	subCfg, err := mapSubscriptionConfig(cfg)
	if err != nil {
		return nil, err
	}
	subs := subscription.New(subCfg, store, schedSvc, job, log.With(logx.String("comp", "subscription")))

	serv := &core.Services{
		Scheduler:     schedSvc,
		Notifier:      notifSvc,
		Subscriptions: subs,
	}

	cmdm := core.NewCommandManager(log.With(logx.String("comp", "commands")),
		ad, cfgm, serv, cfg.Telegram.OwnerUserIDs)

	pm := core.NewPluginManager(log.With(logx.String("comp", "plugins")),
		cfgm, core.PluginDeps{
			Logger:       log,
			Adapter:      ad,
			Config:       cfgm,
			Services:     serv,
			OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
		}, cmdm)
	pm.Register(weatherplugin.New(subs, wxClient, rewriter))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    store,
		adapter:  ad,
		sched:    schedSvc,
		notif:    notifSvc,
		wx:       wxClient,
		rewriter: rewriter,
		subs:     subs,
		cmdm:     cmdm,
		pm:       pm,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.notif.Start(a.sup.Context())
	a.sched.Start(a.sup.Context())

	// Rebuild stored triggers before any plugin command can mutate the set.
	if err := a.subs.Start(a.sup.Context()); err != nil {
		return err
	}

	a.pm.BindContext(a.sup.Context())
	if err := a.pm.StartAll(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated config into every live component. Storage
// and scheduler topology changes need a restart and only log a notice.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	// Owner list drives AccessOwnerOnly checks and plugin deps.
	a.cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)
	a.pm.SetOwnerUserIDs(cfg.Telegram.OwnerUserIDs)

	// Validation already passed, so mapping errors here mean a validator gap.
	if ncfg, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	if wcfg, err := mapWeatherConfig(cfg); err != nil {
		a.log.Warn("invalid weather config; keeping previous", logx.Err(err))
	} else {
		a.wx.Apply(wcfg)
	}
	if lcfg, err := mapLLMConfig(cfg); err != nil {
		a.log.Warn("invalid llm config; keeping previous", logx.Err(err))
	} else {
		a.rewriter.Apply(lcfg)
	}
	if scfg, err := mapSubscriptionConfig(cfg); err != nil {
		a.log.Warn("invalid subscription defaults; keeping previous", logx.Err(err))
	} else {
		a.subs.Apply(scfg)
	}

	if sc, err := mapStorageConfig(cfg); err == nil && sc.Path != a.store.Path() {
		a.log.Warn("storage.path changed; restart required for changes to take effect")
	}
	if schedCfg, err := mapSchedulerConfig(cfg); err == nil && schedCfg.Workers != 0 {
		cur := a.sched.Snapshot()
		if schedCfg.Workers != cur.Workers {
			a.log.Warn("scheduler.workers changed; restart required for changes to take effect")
		}
	}

	a.pm.OnConfigUpdate(ctx, cfg)
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Run a shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Plugins first (they may depend on services), then producers before
	// consumers: scheduler stops firing, notifier drains, adapter closes.
	step("plugins", 4*time.Second, func(c context.Context) error { a.pm.StopAll(c); return nil })
	a.subs.Stop()
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// ---- config mapping ----

func validateConfig(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if cfg.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers must be >= 0")
	}
	if cfg.Scheduler.HistorySize < 0 {
		return fmt.Errorf("scheduler.history_size must be >= 0")
	}
	if _, err := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	if cfg.Notifier.Workers < 0 {
		return fmt.Errorf("notifier.workers must be >= 0")
	}
	if cfg.Notifier.QueueSize < 0 {
		return fmt.Errorf("notifier.queue_size must be >= 0")
	}
	if cfg.Notifier.RatePerSec < 0 {
		return fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	switch strings.TrimSpace(cfg.Weather.SendMode) {
	case "", "text", "image":
	default:
		return fmt.Errorf("weather.send_mode must be \"text\" or \"image\", got %q", cfg.Weather.SendMode)
	}
	if _, err := config.ParseDurationField("weather.timeout", cfg.Weather.Timeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("llm.timeout", cfg.LLM.Timeout); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	return nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	defTimeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, 30*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: defTimeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Scheduler.Timezone,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	return notifier.Config{
		Workers:    cfg.Notifier.Workers,
		QueueSize:  cfg.Notifier.QueueSize,
		RatePerSec: cfg.Notifier.RatePerSec,
	}, nil
}

func mapWeatherConfig(cfg *config.Config) (weather.Config, error) {
	timeout, err := config.ParseDurationOrDefault("weather.timeout", cfg.Weather.Timeout, 10*time.Second)
	if err != nil {
		return weather.Config{}, err
	}
	return weather.Config{
		Key:     cfg.Weather.AmapKey,
		Timeout: timeout,
	}, nil
}

func mapLLMConfig(cfg *config.Config) (llm.Config, error) {
	timeout, err := config.ParseDurationOrDefault("llm.timeout", cfg.LLM.Timeout, 20*time.Second)
	if err != nil {
		return llm.Config{}, err
	}
	return llm.Config{
		Enabled: cfg.LLM.Enabled,
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Prompt:  cfg.LLM.Prompt,
		Timeout: timeout,
	}, nil
}

func mapSubscriptionConfig(cfg *config.Config) (subscription.Config, error) {
	trigTimeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, 0)
	if err != nil {
		return subscription.Config{}, err
	}
	return subscription.Config{
		DefaultTimezone: cfg.Scheduler.Timezone,
		DefaultCity:     cfg.Weather.DefaultCity,
		TriggerTimeout:  trigTimeout,
	}, nil
}
