package app

import (
	"testing"
	"time"

	"weatherbot/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Telegram: config.TelegramConfig{Token: "123:abc", PollTimeout: "10s"},
		Storage:  config.StorageConfig{Path: "./data/subs.db"},
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{"minimal valid", func(c *config.Config) {}, false},
		{"missing token", func(c *config.Config) { c.Telegram.Token = " " }, true},
		{"missing storage path", func(c *config.Config) { c.Storage.Path = "" }, true},
		{"bad poll timeout", func(c *config.Config) { c.Telegram.PollTimeout = "soon" }, true},
		{"negative workers", func(c *config.Config) { c.Scheduler.Workers = -1 }, true},
		{"bad timezone", func(c *config.Config) { c.Scheduler.Timezone = "Mars/Olympus" }, true},
		{"valid timezone", func(c *config.Config) { c.Scheduler.Timezone = "Asia/Shanghai" }, false},
		{"send mode text", func(c *config.Config) { c.Weather.SendMode = "text" }, false},
		{"send mode image", func(c *config.Config) { c.Weather.SendMode = "image" }, false},
		{"send mode bogus", func(c *config.Config) { c.Weather.SendMode = "carrier-pigeon" }, true},
		{"negative rate", func(c *config.Config) { c.Notifier.RatePerSec = -1 }, true},
		{"bad llm timeout", func(c *config.Config) { c.LLM.Timeout = "fast" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMapSchedulerConfigDefaults(t *testing.T) {
	cfg := baseConfig()
	got, err := mapSchedulerConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got.DefaultTimeout != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", got.DefaultTimeout)
	}

	cfg.Scheduler.DefaultTimeout = "45s"
	cfg.Scheduler.Timezone = "Asia/Shanghai"
	got, err = mapSchedulerConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got.DefaultTimeout != 45*time.Second || got.Timezone != "Asia/Shanghai" {
		t.Errorf("mapSchedulerConfig = %+v", got)
	}
}

func TestMapSubscriptionConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.Scheduler.Timezone = "Asia/Shanghai"
	cfg.Weather.DefaultCity = "北京"
	got, err := mapSubscriptionConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got.DefaultTimezone != "Asia/Shanghai" || got.DefaultCity != "北京" {
		t.Errorf("mapSubscriptionConfig = %+v", got)
	}
}
