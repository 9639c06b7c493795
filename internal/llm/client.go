// Package llm rewrites push texts through an OpenAI-compatible chat
// completions endpoint. It is strictly best-effort: any failure returns the
// original text so a flaky model never blocks a weather push.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"weatherbot/pkg/logx"
)

const defaultPrompt = "你是一个天气播报助手。把下面的天气预报改写成一段简短、自然、友好的中文播报，保留所有数字和日期，不要添加虚构信息。"

type Config struct {
	Enabled bool
	BaseURL string // e.g. https://api.openai.com/v1
	APIKey  string
	Model   string
	Prompt  string // system prompt override
	Timeout time.Duration
}

type Client struct {
	mu  sync.RWMutex
	cfg Config
	hc  *http.Client
	log logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Client{log: log}
	c.Apply(cfg)
	return c
}

// Apply swaps the rewriter configuration; in-flight requests keep the old one.
func (c *Client) Apply(cfg Config) {
	if cfg.Prompt == "" {
		cfg.Prompt = defaultPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hc == nil || c.cfg.Timeout != cfg.Timeout {
		c.hc = &http.Client{Timeout: cfg.Timeout}
	}
	c.cfg = cfg
}

func (c *Client) snapshot() (Config, *http.Client) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg, c.hc
}

func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	cfg, _ := c.snapshot()
	return cfg.Enabled && cfg.BaseURL != "" && cfg.Model != ""
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Rewrite returns a rephrased version of text, or text unchanged when the
// rewriter is disabled or fails.
func (c *Client) Rewrite(ctx context.Context, text string) string {
	if !c.Enabled() || strings.TrimSpace(text) == "" {
		return text
	}
	out, err := c.complete(ctx, text)
	if err != nil {
		c.log.Warn("rewrite failed, sending original text", logx.Err(err))
		return text
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return text
	}
	return out
}

func (c *Client) complete(ctx context.Context, text string) (string, error) {
	cfg, hc := c.snapshot()
	body, err := json.Marshal(chatRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: cfg.Prompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response (http %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("llm: %s", out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm http status %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
