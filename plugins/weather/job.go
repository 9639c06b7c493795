package weather

import (
	"context"
	"fmt"

	"weatherbot/internal/llm"
	"weatherbot/internal/notifier"
	"weatherbot/internal/storage"
	"weatherbot/internal/transport"
	wx "weatherbot/internal/weather"
	"weatherbot/pkg/logx"
)

// Job is the scheduled push runner: fetch forecast, optionally rewrite, hand
// to the notifier. A failing run is reported to the scheduler (which logs and
// retries) and never touches the subscription itself.
type Job struct {
	wx       *wx.Client
	rewriter *llm.Client
	notif    *notifier.Service
	log      logx.Logger
}

func NewJob(wx *wx.Client, rewriter *llm.Client, notif *notifier.Service, log logx.Logger) *Job {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Job{wx: wx, rewriter: rewriter, notif: notif, log: log}
}

func (j *Job) Run(ctx context.Context, sub storage.Subscription) error {
	forecast, err := j.wx.Forecast(ctx, sub.City)
	if err != nil {
		return fmt.Errorf("fetch forecast for %s: %w", sub.City, err)
	}
	text := wx.FormatPush(forecast)
	if text == "" {
		return fmt.Errorf("empty forecast for %s", sub.City)
	}
	// Best-effort rephrase; failures inside fall back to the raw text.
	text = j.rewriter.Rewrite(ctx, text)

	err = j.notif.Notify(ctx, transport.Notification{
		Target: transport.ChatTarget{ChatID: sub.ChatID, ThreadID: sub.ThreadID},
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("enqueue push: %w", err)
	}
	j.log.Debug("push enqueued",
		logx.String("owner", sub.Owner), logx.Int64("seq", sub.Seq),
		logx.String("city", sub.City))
	return nil
}
