package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  poll_timeout: "10s"
logging:
  level: "debug"
  console: true
weather:
  amap_key: "k"
  default_city: "杭州"
scheduler:
  timezone: "Asia/Shanghai"
storage:
  path: "./data/subs.db"
`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 1 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Errorf("owner_user_ids = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Weather.DefaultCity != "杭州" {
		t.Errorf("default_city = %q", cfg.Weather.DefaultCity)
	}
	if cfg.Scheduler.Timezone != "Asia/Shanghai" {
		t.Errorf("timezone = %q", cfg.Scheduler.Timezone)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "t"
  poll_timeoutt: "10s"
storage:
  path: "x.db"
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestParseExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("WB_TEST_TOKEN", "999:secret")
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "${WB_TEST_TOKEN}"
storage:
  path: "x.db"
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "999:secret" {
		t.Errorf("token = %q, want expanded env value", cfg.Telegram.Token)
	}
}

func TestParseKeepsUnresolvedPlaceholder(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "${WB_TEST_NO_SUCH_VAR}"
storage:
  path: "x.db"
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(cfg.Telegram.Token, "${WB_TEST_NO_SUCH_VAR}") {
		t.Errorf("token = %q, want placeholder preserved", cfg.Telegram.Token)
	}
}

func TestParseDurationField(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"10s", 10 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"banana", 0, true},
		{"-5s", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("x", tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDurationField(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
