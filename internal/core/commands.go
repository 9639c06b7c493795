package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"

	"weatherbot/internal/config"
	"weatherbot/internal/transport"
	"weatherbot/pkg/logx"
)

// CommandManager routes inbound messages to registered commands through a
// bounded worker pool.
type CommandManager struct {
	mu sync.RWMutex

	reg *registry

	owners []int64

	log     logx.Logger
	adapter transport.Adapter
	cfgm    *config.Manager
	serv    *Services

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter transport.Adapter, cfgm *config.Manager, serv *Services, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		log:     log,
		adapter: adapter,
		cfgm:    cfgm,
		serv:    serv,
		owners:  append([]int64(nil), owners...),
		jobs:    make(chan func(), 256),
	}
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (m *CommandManager) SetOwners(owners []int64) {
	ownCopy := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = ownCopy
	m.mu.Unlock()
}

func (m *CommandManager) ownersSnapshot() []int64 {
	m.mu.RLock()
	cp := append([]int64(nil), m.owners...)
	m.mu.RUnlock()
	return cp
}

func (m *CommandManager) SetRegistry(cmds []Command) {
	// always inject help
	helper := Command{
		Route:       "help",
		Aliases:     []string{"h"},
		Description: "查看帮助",
		Usage:       "/help [指令]",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			text := m.helpText(req.Args)
			_, _ = req.Adapter.SendText(ctx, req.Chat, text, &transport.SendOptions{DisablePreview: true})
			return nil
		},
	}
	cmds = append(cmds, helper)
	reg := buildRegistry(cmds)

	m.mu.Lock()
	m.reg = reg
	m.mu.Unlock()
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	m.log.Info("command dispatcher started",
		logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	var (
		wg        sync.WaitGroup
		closeOnce sync.Once
	)
	closeJobs := func() { closeOnce.Do(func() { close(m.jobs) }) }

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("panic in command worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.Stack(string(debug.Stack())))
				}
			}()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-m.jobs:
					if !ok {
						return
					}
					if job == nil {
						continue
					}
					job()
				}
			}
		}()
	}

	defer func() {
		closeJobs()
		wg.Wait()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("updates channel closed")
				return nil
			}
			if up.Kind == transport.UpdateMessage {
				m.routeMessage(ctx, up)
			}
		}
	}
}

func (m *CommandManager) routeMessage(root context.Context, up transport.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := []string{}
	if len(parts) > 1 {
		args = parts[1:]
	}

	m.mu.RLock()
	reg := m.reg
	m.mu.RUnlock()
	if reg == nil {
		return
	}

	cmd, consumed, ok := reg.resolve(word, args)
	if !ok {
		_, _ = m.adapter.SendText(root, transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
			"未知指令，发送 /help 查看帮助", nil)
		return
	}
	if cmd == nil {
		// Bare group word ("/weather"): show its subcommand listing.
		_, _ = m.adapter.SendText(root, transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
			m.helpText([]string{word}), &transport.SendOptions{DisablePreview: true})
		return
	}
	m.enqueueCommand(root, up, *cmd, args[consumed:])
}

func (m *CommandManager) enqueueCommand(root context.Context, up transport.Update, cmd Command, args []string) {
	msg := up.Message
	if msg == nil {
		return
	}

	owners := m.ownersSnapshot()
	if cmd.Access == AccessOwnerOnly && !isOwner(msg.FromID, owners) {
		_, _ = m.adapter.SendText(root, transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
			"该指令仅限管理员使用", nil)
		return
	}

	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int("thread_id", msg.ThreadID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", cmd.Route),
	)

	req := &Request{
		Update:       up,
		Chat:         transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:       msg.FromID,
		Command:      cmd.Route,
		Args:         args,
		ReqID:        rid,
		Adapter:      m.adapter,
		Config:       m.cfgm.Get(),
		Logger:       reqLog,
		Services:     m.serv,
		OwnerUserIDs: owners,
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)

	select {
	case m.jobs <- func() { _ = final(root, req) }:
	default:
		_, _ = m.adapter.SendText(root, req.Chat, "系统繁忙，请稍后再试", nil)
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
