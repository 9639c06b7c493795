// Package weather is the bot-facing weather plugin: subscription commands,
// on-demand queries, and the scheduled push job.
package weather

import (
	"context"
	"strings"
	"sync"

	"weatherbot/internal/config"
	"weatherbot/internal/core"
	"weatherbot/internal/llm"
	"weatherbot/internal/subscription"
	wx "weatherbot/internal/weather"
	"weatherbot/pkg/logx"
)

type Plugin struct {
	mu sync.RWMutex

	log  logx.Logger
	deps core.PluginDeps

	subs     *subscription.Service
	wx       *wx.Client
	rewriter *llm.Client

	sendMode    string // "text" or "image"
	defaultCity string
}

func New(subs *subscription.Service, wx *wx.Client, rewriter *llm.Client) *Plugin {
	return &Plugin{subs: subs, wx: wx, rewriter: rewriter, sendMode: "text"}
}

func (p *Plugin) Name() string { return "weather" }

func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error {
	p.mu.Lock()
	p.deps = deps
	p.log = deps.Logger.With(logx.String("plugin", p.Name()))
	p.mu.Unlock()
	if cfg := deps.Config.Get(); cfg != nil {
		return p.OnConfigChange(ctx, cfg)
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error { return nil }

func (p *Plugin) Stop(ctx context.Context) error { return nil }

func (p *Plugin) OnConfigChange(_ context.Context, cfg *config.Config) error {
	mode := strings.TrimSpace(cfg.Weather.SendMode)
	if mode == "" {
		mode = "text"
	}

	p.mu.Lock()
	prev := p.sendMode
	p.sendMode = mode
	p.defaultCity = strings.TrimSpace(cfg.Weather.DefaultCity)
	log := p.log
	p.mu.Unlock()

	// Image rendering is not wired up; accept the mode but deliver text.
	if mode == "image" && prev != "image" {
		log.Warn("send_mode image not supported yet, pushes fall back to text")
	}
	return nil
}

func (p *Plugin) logger() logx.Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.log
}

func (p *Plugin) fallbackCity() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultCity
}
