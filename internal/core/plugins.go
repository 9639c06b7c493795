package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"weatherbot/internal/config"
	"weatherbot/internal/transport"
	"weatherbot/pkg/logx"
)

type Plugin interface {
	Name() string
	Init(ctx context.Context, deps PluginDeps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Commands() []Command
}

// ConfigurablePlugin receives the full config on hot-reload.
type ConfigurablePlugin interface {
	OnConfigChange(ctx context.Context, cfg *config.Config) error
}

type PluginDeps struct {
	Logger       logx.Logger
	Adapter      transport.Adapter
	Config       *config.Manager
	Services     *Services
	OwnerUserIDs []int64
}

type PluginManager struct {
	mu sync.Mutex

	log  logx.Logger
	cfgm *config.Manager
	deps PluginDeps
	reg  map[string]Plugin
	run  map[string]bool

	// Long-lived base context for plugin contexts. The app ctx passed to
	// StartAll may be call-scoped; it is bridged in, not used directly.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	bound      bool

	// per-plugin run context (cancelled on stop)
	pctx    map[string]context.Context
	pcancel map[string]context.CancelFunc

	cmdm *CommandManager
}

func NewPluginManager(log logx.Logger, cfgm *config.Manager, deps PluginDeps, cmdm *CommandManager) *PluginManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &PluginManager{
		log:        log,
		cfgm:       cfgm,
		deps:       deps,
		reg:        map[string]Plugin{},
		run:        map[string]bool{},
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		pctx:       map[string]context.Context{},
		pcancel:    map[string]context.CancelFunc{},
		cmdm:       cmdm,
	}
}

// BindContext bridges appCtx into baseCtx. First non-nil bind wins.
func (pm *PluginManager) BindContext(appCtx context.Context) {
	pm.mu.Lock()
	if pm.bound || appCtx == nil {
		pm.mu.Unlock()
		return
	}
	pm.bound = true
	baseCancel := pm.baseCancel
	pm.mu.Unlock()

	go func() {
		<-appCtx.Done()
		baseCancel()
	}()
}

func (pm *PluginManager) Register(p ...Plugin) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, pl := range p {
		pm.reg[pl.Name()] = pl
	}
}

const pluginCallTimeout = 10 * time.Second

// StartAll initializes and starts every registered plugin, then publishes
// their commands to the dispatcher. A failing plugin is logged and skipped;
// the rest still start.
func (pm *PluginManager) StartAll(ctx context.Context) error {
	pm.BindContext(ctx)

	pm.mu.Lock()
	names := make([]string, 0, len(pm.reg))
	for name := range pm.reg {
		names = append(names, name)
	}
	deps := pm.deps
	pm.mu.Unlock()

	for _, name := range names {
		pm.mu.Lock()
		p := pm.reg[name]
		running := pm.run[name]
		pm.mu.Unlock()
		if p == nil || running {
			continue
		}

		pctx, cancel := context.WithCancel(pm.baseCtx)

		ictx, icancel := context.WithTimeout(pctx, pluginCallTimeout)
		err := pm.safeCall("plugin.init."+name, func() error { return p.Init(ictx, deps) })
		icancel()
		if err != nil {
			pm.log.Error("plugin init failed", logx.String("plugin", name), logx.Err(err))
			cancel()
			continue
		}

		if err := pm.startWithTimeout(name, p, pctx, cancel, pluginCallTimeout); err != nil {
			pm.log.Error("plugin start failed", logx.String("plugin", name), logx.Err(err))
			cancel()
			continue
		}

		pm.mu.Lock()
		pm.run[name] = true
		pm.pctx[name] = pctx
		pm.pcancel[name] = cancel
		pm.mu.Unlock()
		pm.log.Info("plugin started", logx.String("plugin", name))
	}

	pm.refreshRegistry()
	return nil
}

func (pm *PluginManager) StopAll(ctx context.Context) {
	pm.mu.Lock()
	names := make([]string, 0, len(pm.reg))
	for name := range pm.reg {
		names = append(names, name)
	}
	pm.mu.Unlock()

	for _, name := range names {
		pm.stopOne(ctx, name)
	}
	pm.refreshRegistry()
}

// OnConfigUpdate forwards a committed config to running plugins.
func (pm *PluginManager) OnConfigUpdate(ctx context.Context, cfg *config.Config) {
	pm.BindContext(ctx)

	pm.mu.Lock()
	type entry struct {
		name string
		p    Plugin
		ctx  context.Context
	}
	var entries []entry
	for name, p := range pm.reg {
		if !pm.run[name] {
			continue
		}
		pctx := pm.pctx[name]
		if pctx == nil {
			pctx = pm.baseCtx
		}
		entries = append(entries, entry{name: name, p: p, ctx: pctx})
	}
	pm.mu.Unlock()

	for _, e := range entries {
		cp, ok := e.p.(ConfigurablePlugin)
		if !ok {
			continue
		}
		cctx, cancel := context.WithTimeout(e.ctx, pluginCallTimeout)
		err := pm.safeCall("plugin.config."+e.name, func() error { return cp.OnConfigChange(cctx, cfg) })
		cancel()
		if err != nil {
			pm.log.Warn("plugin config apply failed", logx.String("plugin", e.name), logx.Err(err))
		}
	}
}

// SetOwnerUserIDs updates the owner list in PluginDeps after a hot-reload.
func (pm *PluginManager) SetOwnerUserIDs(ids []int64) {
	cp := append([]int64(nil), ids...)
	pm.mu.Lock()
	pm.deps.OwnerUserIDs = cp
	pm.mu.Unlock()
}

func (pm *PluginManager) stopOne(stopCtx context.Context, name string) {
	pm.mu.Lock()
	p := pm.reg[name]
	running := pm.run[name]
	cancel := pm.pcancel[name]
	pm.mu.Unlock()

	if !running || p == nil {
		return
	}

	start := time.Now()
	pm.log.Debug("stopping plugin", logx.String("plugin", name))

	// cancel plugin context first so background loops exit promptly
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		_ = pm.safeCall("plugin.stop."+name, func() error { return p.Stop(stopCtx) })
		close(done)
	}()
	select {
	case <-done:
	case <-stopCtx.Done():
		pm.log.Warn("plugin stop timeout (continuing)",
			logx.String("plugin", name), logx.Err(stopCtx.Err()))
	}

	pm.mu.Lock()
	pm.run[name] = false
	delete(pm.pctx, name)
	delete(pm.pcancel, name)
	pm.mu.Unlock()

	pm.log.Debug("plugin stopped",
		logx.String("plugin", name), logx.Duration("took", time.Since(start)))
}

// startWithTimeout calls Start(pctx) but enforces a deadline. On timeout the
// plugin ctx is cancelled.
func (pm *PluginManager) startWithTimeout(name string, p Plugin, pctx context.Context, cancel context.CancelFunc, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- pm.safeCall("plugin.start."+name, func() error { return p.Start(pctx) })
	}()

	if timeout <= 0 {
		return <-done
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		return err
	case <-t.C:
		cancel()
		grace := time.NewTimer(2 * time.Second)
		defer grace.Stop()
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("start timeout (%s): %w", timeout, err)
			}
			return fmt.Errorf("start timeout (%s)", timeout)
		case <-grace.C:
			return fmt.Errorf("start timeout (%s): start did not return after cancel", timeout)
		}
	}
}

func (pm *PluginManager) safeCall(label string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin call",
				logx.String("call", label),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
			err = fmt.Errorf("panic in %s: %v", label, r)
		}
	}()
	return fn()
}

func (pm *PluginManager) refreshRegistry() {
	pm.mu.Lock()
	cmds := []Command{}
	for name, p := range pm.reg {
		if !pm.run[name] {
			continue
		}
		for _, c := range p.Commands() {
			c.PluginName = name
			cmds = append(cmds, c)
		}
	}
	cmdm := pm.cmdm
	pm.mu.Unlock()

	if cmdm != nil {
		cmdm.SetRegistry(cmds)
	}
}
