package core

import (
	"context"
	"time"

	"weatherbot/internal/config"
	"weatherbot/internal/notifier"
	"weatherbot/internal/scheduler"
	"weatherbot/internal/subscription"
	"weatherbot/internal/transport"
	"weatherbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	// Route is a space-separated command path, e.g.:
	//   "weather"
	//   "weather sub"
	Route       string
	Aliases     []string // root-level aliases, e.g. ["sub"]
	Description string
	Usage       string
	Access      Access

	PluginName string
	Timeout    time.Duration // optional per-command override
	Handle     HandlerFunc
}

type Request struct {
	Update  transport.Update
	Chat    transport.ChatTarget
	FromID  int64
	Command string   // matched route, e.g. "weather sub"
	Args    []string // tokens after the route
	ReqID   string

	Adapter      transport.Adapter
	Config       *config.Config
	Logger       logx.Logger
	Services     *Services
	OwnerUserIDs []int64
}

// Services are the long-lived backends commands reach through.
type Services struct {
	Scheduler     *scheduler.Service
	Notifier      *notifier.Service
	Subscriptions *subscription.Service
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}
