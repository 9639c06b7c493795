package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Weather   WeatherConfig   `json:"weather"`
	LLM       LLMConfig       `json:"llm,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier,omitempty"`
	Storage   StorageConfig   `json:"storage"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// WeatherConfig configures the Amap weather collaborator and report rendering.
//
// SendMode selects how a report is delivered: "text" (default) or "image".
// Image rendering is not implemented by this build; "image" is accepted and
// downgraded to text with a logged notice, so configs stay portable.
type WeatherConfig struct {
	AmapKey     string `json:"amap_key"`
	DefaultCity string `json:"default_city,omitempty"` // fallback when a phrase names no city
	SendMode    string `json:"send_mode,omitempty"`    // "text" | "image"

	// Timeout is a Go duration string for a single API call (default "10s").
	Timeout string `json:"timeout,omitempty"`
}

// LLMConfig configures the optional report rewrite step.
// The endpoint is any OpenAI-compatible chat-completions API.
// Failures are always non-fatal: the base report text is delivered instead.
type LLMConfig struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
	Timeout string `json:"timeout,omitempty"` // Go duration string, default "30s"
}

// SchedulerConfig controls trigger behavior.
//
// Timezone is the default IANA zone stamped into new subscriptions; each
// trigger fires in the zone stored on its own subscription, never in the
// host zone.
type SchedulerConfig struct {
	Workers        int    `json:"workers,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"` // Go duration string
	HistorySize    int    `json:"history_size,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
}

// NotifierConfig controls the async delivery pipeline.
type NotifierConfig struct {
	Workers    int `json:"workers,omitempty"`
	QueueSize  int `json:"queue_size,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// StorageConfig locates the SQLite subscription database.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}
