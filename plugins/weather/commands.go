package weather

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"weatherbot/internal/core"
	"weatherbot/internal/recurrence"
	"weatherbot/internal/storage"
	"weatherbot/internal/subscription"
	wx "weatherbot/internal/weather"
	"weatherbot/pkg/logx"
)

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{
			Route:       "weather sub",
			Aliases:     []string{"sub"},
			Description: "订阅定时天气推送",
			Usage:       "/weather sub 每天早上8点发送杭州天气",
			Handle:      p.cmdSubscribe,
		},
		{
			Route:       "weather ls",
			Aliases:     []string{"ls"},
			Description: "查看当前订阅",
			Usage:       "/weather ls",
			Handle:      p.cmdList,
		},
		{
			Route:       "weather rm",
			Aliases:     []string{"rm"},
			Description: "删除订阅",
			Usage:       "/weather rm <序号>",
			Handle:      p.cmdRemove,
		},
		{
			Route:       "weather current",
			Description: "查询当前天气",
			Usage:       "/weather current [城市]",
			Handle:      p.cmdCurrent,
		},
		{
			Route:       "weather forecast",
			Description: "查询天气预报",
			Usage:       "/weather forecast [城市]",
			Handle:      p.cmdForecast,
		},
		{
			Route:       "weather status",
			Description: "查看推送任务状态",
			Access:      core.AccessOwnerOnly,
			Handle:      p.cmdStatus,
		},
	}
}

// ownerKey scopes subscriptions to user-within-chat, so the same user gets
// independent lists in different chats.
func ownerKey(req *core.Request) string {
	return fmt.Sprintf("%d:%d", req.Chat.ChatID, req.FromID)
}

func (p *Plugin) reply(ctx context.Context, req *core.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, nil)
	return err
}

func (p *Plugin) cmdSubscribe(ctx context.Context, req *core.Request) error {
	phrase := strings.TrimSpace(strings.Join(req.Args, " "))
	if phrase == "" {
		return p.reply(ctx, req, "请在指令后描述推送时间，例如：/weather sub 每天早上8点发送杭州天气")
	}

	city := extractCity(phrase)
	created, err := p.subs.Create(ctx, storage.Subscription{
		Owner:          ownerKey(req),
		ChatID:         req.Chat.ChatID,
		ThreadID:       req.Chat.ThreadID,
		City:           city,
		RawDescription: phrase,
	})
	if err != nil {
		return p.replySubscribeError(ctx, req, err)
	}

	return p.reply(ctx, req, fmt.Sprintf("已订阅：%s\n城市：%s\n使用 /weather ls 查看，/weather rm 删除",
		describeRule(created.Rule), created.City))
}

func (p *Plugin) replySubscribeError(ctx context.Context, req *core.Request, err error) error {
	var pe *recurrence.ParseError
	switch {
	case errors.As(err, &pe):
		return p.reply(ctx, req, pe.UserMessage())
	case errors.Is(err, subscription.ErrNotReady):
		return p.reply(ctx, req, "服务正在启动，请稍后再试")
	default:
		p.logger().Error("subscribe failed", logx.Err(err))
		return p.reply(ctx, req, "订阅失败，请稍后再试")
	}
}

func (p *Plugin) cmdList(ctx context.Context, req *core.Request) error {
	subs, err := p.subs.List(ctx, ownerKey(req))
	if err != nil {
		p.logger().Error("list failed", logx.Err(err))
		return p.reply(ctx, req, "查询订阅失败，请稍后再试")
	}
	if len(subs) == 0 {
		return p.reply(ctx, req, "暂无订阅。使用 /weather sub 创建一个吧")
	}

	var b strings.Builder
	b.WriteString("📋 当前订阅：\n")
	for i, s := range subs {
		fmt.Fprintf(&b, "%d. %s %s — %s\n", i+1, s.City, describeRule(s.Rule), s.RawDescription)
	}
	b.WriteString("使用 /weather rm <序号> 删除")
	return p.reply(ctx, req, b.String())
}

func (p *Plugin) cmdRemove(ctx context.Context, req *core.Request) error {
	if len(req.Args) != 1 {
		return p.reply(ctx, req, "用法：/weather rm <序号>")
	}
	index, err := strconv.Atoi(req.Args[0])
	if err != nil || index < 1 {
		return p.reply(ctx, req, "序号必须是正整数，使用 /weather ls 查看")
	}

	victim, err := p.subs.Delete(ctx, ownerKey(req), index)
	switch {
	case storage.IsNotFound(err):
		return p.reply(ctx, req, fmt.Sprintf("没有找到序号 %d 的订阅，使用 /weather ls 查看", index))
	case errors.Is(err, subscription.ErrNotReady):
		return p.reply(ctx, req, "服务正在启动，请稍后再试")
	case err != nil:
		p.logger().Error("remove failed", logx.Err(err))
		return p.reply(ctx, req, "删除失败，请稍后再试")
	}
	return p.reply(ctx, req, fmt.Sprintf("已删除订阅：%s %s", victim.City, describeRule(victim.Rule)))
}

func (p *Plugin) cmdCurrent(ctx context.Context, req *core.Request) error {
	city := p.cityArg(req)
	if city == "" {
		return p.reply(ctx, req, "请指定城市，例如：/weather current 杭州")
	}
	live, err := p.wx.Live(ctx, city)
	if err != nil {
		return p.replyFetchError(ctx, req, city, err)
	}
	return p.reply(ctx, req, wx.FormatLive(live))
}

func (p *Plugin) cmdForecast(ctx context.Context, req *core.Request) error {
	city := p.cityArg(req)
	if city == "" {
		return p.reply(ctx, req, "请指定城市，例如：/weather forecast 杭州")
	}
	forecast, err := p.wx.Forecast(ctx, city)
	if err != nil {
		return p.replyFetchError(ctx, req, city, err)
	}
	return p.reply(ctx, req, wx.FormatForecast(forecast))
}

func (p *Plugin) cityArg(req *core.Request) string {
	if len(req.Args) > 0 {
		return strings.TrimSpace(req.Args[0])
	}
	if req.Config != nil && strings.TrimSpace(req.Config.Weather.DefaultCity) != "" {
		return strings.TrimSpace(req.Config.Weather.DefaultCity)
	}
	return p.fallbackCity()
}

func (p *Plugin) replyFetchError(ctx context.Context, req *core.Request, city string, err error) error {
	var ue *wx.UpstreamError
	switch {
	case errors.Is(err, wx.ErrMissingKey):
		return p.reply(ctx, req, "尚未配置天气服务密钥，请联系管理员")
	case errors.Is(err, wx.ErrNoData):
		return p.reply(ctx, req, fmt.Sprintf("没有找到「%s」的天气数据，请检查城市名称", city))
	case errors.As(err, &ue):
		p.logger().Warn("amap rejected request", logx.Err(err))
		return p.reply(ctx, req, "天气服务返回错误，请稍后再试")
	default:
		p.logger().Warn("weather fetch failed", logx.Err(err))
		return p.reply(ctx, req, "获取天气失败，请稍后再试")
	}
}

func (p *Plugin) cmdStatus(ctx context.Context, req *core.Request) error {
	snap := req.Services.Scheduler.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "⏰ 调度状态（时区 %s，工作协程 %d，队列 %d）\n",
		snap.Timezone, snap.Workers, snap.QueueLen)

	n := 0
	for _, tr := range snap.Triggers {
		if !strings.HasPrefix(tr.Name, "weather:sub:") {
			continue
		}
		n++
		next := "-"
		if !tr.Next.IsZero() {
			next = tr.Next.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "- %s 下次 %s\n", tr.Name, next)
	}
	if n == 0 {
		b.WriteString("当前没有已注册的推送任务\n")
	}

	if len(snap.History) > 0 {
		b.WriteString("最近执行：\n")
		start := len(snap.History) - 5
		if start < 0 {
			start = 0
		}
		for _, h := range snap.History[start:] {
			status := "✅"
			if h.Error != "" {
				status = "❌ " + h.Error
			}
			fmt.Fprintf(&b, "- %s %s %s (%s)\n",
				h.Started.Format("01-02 15:04"), h.Name, status, h.Duration.Round(time.Millisecond))
		}
	}
	return p.reply(ctx, req, b.String())
}
