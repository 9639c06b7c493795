// Package weather fetches live conditions and forecasts from the Amap (高德)
// open platform and renders them as Chinese push texts.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"weatherbot/pkg/logx"
)

const amapBaseURL = "https://restapi.amap.com/v3/weather/weatherInfo"

var (
	ErrMissingKey = errors.New("amap key not configured")
	ErrNoData     = errors.New("no weather data for city")
)

// UpstreamError is a non-OK answer from the Amap API (bad key, bad city,
// quota exhausted). The infocode is Amap's own error code.
type UpstreamError struct {
	Infocode string
	Info     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("amap: %s (infocode %s)", e.Info, e.Infocode)
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

// Apply swaps the client configuration; in-flight requests keep the old one.
func (c *Client) Apply(cfg Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = amapBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
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

// Live returns the current observed weather. City is a Chinese city name or
// Amap adcode.
func (c *Client) Live(ctx context.Context, city string) (Live, error) {
	resp, err := c.query(ctx, city, "base")
	if err != nil {
		return Live{}, err
	}
	if len(resp.Lives) == 0 {
		return Live{}, ErrNoData
	}
	return resp.Lives[0], nil
}

// Forecast returns the multi-day forecast, today first.
func (c *Client) Forecast(ctx context.Context, city string) (Forecast, error) {
	resp, err := c.query(ctx, city, "all")
	if err != nil {
		return Forecast{}, err
	}
	if len(resp.Forecasts) == 0 || len(resp.Forecasts[0].Casts) == 0 {
		return Forecast{}, ErrNoData
	}
	return resp.Forecasts[0], nil
}

func (c *Client) query(ctx context.Context, city, extensions string) (*apiResponse, error) {
	cfg, hc := c.snapshot()
	key := strings.TrimSpace(cfg.Key)
	if key == "" {
		return nil, ErrMissingKey
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, ErrNoData
	}

	q := url.Values{}
	q.Set("key", key)
	q.Set("city", city)
	q.Set("extensions", extensions)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("amap request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("amap http status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("amap read body: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("amap decode: %w", err)
	}
	if out.Status != "1" {
		return nil, &UpstreamError{Infocode: out.Infocode, Info: out.Info}
	}
	c.log.Debug("weather fetched",
		logx.String("city", city), logx.String("extensions", extensions),
		logx.Duration("dur", time.Since(start)))
	return &out, nil
}
