package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"MapBoard/internal/client"
	mbnet "MapBoard/internal/net"
	"MapBoard/internal/state"
)

const (
	DefaultAddr            = ":8888"
	DefaultDiscoverTimeout = 3 * time.Second
)

// Config holds relay and client settings. Every field is optional; the Get*
// methods supply defaults for the ones a file leaves out.
type Config struct {
	// Relay
	Addr       *string `json:"addr,omitempty"`
	SendBuffer *int    `json:"send_buffer,omitempty"`
	MaxClicks  *int    `json:"max_clicks,omitempty"`
	Advertise  *bool   `json:"advertise,omitempty"`

	// Client identity
	RelayURL *string `json:"relay_url,omitempty"`
	Name     *string `json:"name,omitempty"`
	Color    *string `json:"color,omitempty"`
	Context  *string `json:"context,omitempty"`

	// Client timing, as duration strings like "150ms"
	EditQuiet        *string `json:"edit_quiet,omitempty"`
	ProgressInterval *string `json:"progress_interval,omitempty"`
	ProgressTTL      *string `json:"progress_ttl,omitempty"`
	ProgressSweep    *string `json:"progress_sweep,omitempty"`
	ReadyPoll        *string `json:"ready_poll,omitempty"`
	CursorThrottle   *string `json:"cursor_throttle,omitempty"`
	FollowSuppress   *string `json:"follow_suppress,omitempty"`
	ReconnectDelay   *string `json:"reconnect_delay,omitempty"`
	DiscoverTimeout  *string `json:"discover_timeout,omitempty"`

	ReadyAttempts     *int `json:"ready_attempts,omitempty"`
	HistoryLimit      *int `json:"history_limit,omitempty"`
	ReconnectAttempts *int `json:"reconnect_attempts,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrBool(v bool) *bool       { return &v }

func Empty() *Config {
	return &Config{}
}

// LoadConfig reads a Config from a JSON file of at most 1 MB.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	durations := map[string]*string{
		"edit_quiet":        c.EditQuiet,
		"progress_interval": c.ProgressInterval,
		"progress_ttl":      c.ProgressTTL,
		"progress_sweep":    c.ProgressSweep,
		"ready_poll":        c.ReadyPoll,
		"cursor_throttle":   c.CursorThrottle,
		"follow_suppress":   c.FollowSuppress,
		"reconnect_delay":   c.ReconnectDelay,
		"discover_timeout":  c.DiscoverTimeout,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	counts := map[string]*int{
		"send_buffer":        c.SendBuffer,
		"max_clicks":         c.MaxClicks,
		"ready_attempts":     c.ReadyAttempts,
		"history_limit":      c.HistoryLimit,
		"reconnect_attempts": c.ReconnectAttempts,
	}
	for name, v := range counts {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}

	if c.Color != nil && *c.Color != "" && state.NormalizeColor(*c.Color) == "" {
		return fmt.Errorf("color must be a #rrggbb hex color, got %q", *c.Color)
	}
	return nil
}

// Override copies the options given on the command line over the file's.
// Empty strings and nil pointers leave a value alone.
func (c *Config) Override(addr, relayURL, name, color, context string, advertise bool) {
	set := func(dst **string, v string) {
		if v != "" {
			*dst = ptrString(v)
		}
	}
	set(&c.Addr, addr)
	set(&c.RelayURL, relayURL)
	set(&c.Name, name)
	set(&c.Color, color)
	set(&c.Context, context)
	if advertise {
		c.Advertise = ptrBool(true)
	}
}

func duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func count(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func str(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

func (c *Config) GetAddr() string    { return str(c.Addr, DefaultAddr) }
func (c *Config) GetSendBuffer() int { return count(c.SendBuffer, 256) }
func (c *Config) GetMaxClicks() int  { return count(c.MaxClicks, state.MaxClickHistory) }
func (c *Config) GetAdvertise() bool { return c.Advertise != nil && *c.Advertise }

func (c *Config) GetRelayURL() string { return str(c.RelayURL, "") }
func (c *Config) GetName() string     { return str(c.Name, "") }
func (c *Config) GetColor() string    { return str(c.Color, "") }
func (c *Config) GetContext() string  { return str(c.Context, "") }

func (c *Config) GetDiscoverTimeout() time.Duration {
	return duration(c.DiscoverTimeout, DefaultDiscoverTimeout)
}

// ClientOptions returns the client timing with the file's overrides applied.
func (c *Config) ClientOptions() client.Options {
	o := client.DefaultOptions()
	o.EditQuiet = duration(c.EditQuiet, o.EditQuiet)
	o.ProgressEvery = duration(c.ProgressInterval, o.ProgressEvery)
	o.ProgressTTL = duration(c.ProgressTTL, o.ProgressTTL)
	o.ProgressSweep = duration(c.ProgressSweep, o.ProgressSweep)
	o.ReadyPoll = duration(c.ReadyPoll, o.ReadyPoll)
	o.ReadyAttempts = count(c.ReadyAttempts, o.ReadyAttempts)
	o.CursorThrottle = duration(c.CursorThrottle, o.CursorThrottle)
	o.FollowSuppress = duration(c.FollowSuppress, o.FollowSuppress)
	o.HistoryLimit = count(c.HistoryLimit, o.HistoryLimit)
	o.MaxClicks = count(c.MaxClicks, o.MaxClicks)
	return o
}

func (c *Config) TransportSettings() *mbnet.TransportSettings {
	s := mbnet.DefaultTransportSettings()
	s.ReconnectAttempts = count(c.ReconnectAttempts, s.ReconnectAttempts)
	s.ReconnectDelay = duration(c.ReconnectDelay, s.ReconnectDelay)
	s.SendBuffer = count(c.SendBuffer, s.SendBuffer)
	return s
}
