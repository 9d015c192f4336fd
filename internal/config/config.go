package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"trackline/internal/scheduler"
)

const (
	dirName  = ".trackline"
	yamlName = "trackline.yml"
	tomlName = "trackline.toml"
)

// Config models trackline.yml (or trackline.toml).
type Config struct {
	Server        ServerConfig        `yaml:"server" toml:"server"`
	Auth          AuthConfig          `yaml:"auth" toml:"auth"`
	Log           LogConfig           `yaml:"log" toml:"log"`
	Store         StoreConfig         `yaml:"store" toml:"store"`
	Telemetry     TelemetryConfig     `yaml:"telemetry" toml:"telemetry"`
	Notifications NotificationsConfig `yaml:"notifications" toml:"notifications"`
	Scheduler     SchedulerConfig     `yaml:"scheduler" toml:"scheduler"`
	Webhooks      []WebhookConfig     `yaml:"webhooks" toml:"webhooks"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	BasePath string `yaml:"base_path" toml:"base_path"`
	// MaxBodyBytes caps request bodies; 0 uses the server default.
	MaxBodyBytes int64 `yaml:"max_body_bytes" toml:"max_body_bytes"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	// TokenTTL is a Go duration, e.g. "24h".
	TokenTTL string `yaml:"token_ttl" toml:"token_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

type StoreConfig struct {
	BusyTimeoutMS int `yaml:"busy_timeout_ms" toml:"busy_timeout_ms"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
	// MetricInterval is a Go duration.
	MetricInterval string `yaml:"metric_interval" toml:"metric_interval"`
}

type NotificationsConfig struct {
	// BaseURL prefixes in-app links when messages leave the process.
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Slack   SlackConfig   `yaml:"slack" toml:"slack"`
	Discord DiscordConfig `yaml:"discord" toml:"discord"`
}

type SlackConfig struct {
	BotToken  string `yaml:"bot_token" toml:"bot_token"`
	ChannelID string `yaml:"channel_id" toml:"channel_id"`
}

type DiscordConfig struct {
	BotToken  string `yaml:"bot_token" toml:"bot_token"`
	ChannelID string `yaml:"channel_id" toml:"channel_id"`
}

type SchedulerConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// OverdueSpec is a cron expression (seconds optional).
	OverdueSpec string `yaml:"overdue_spec" toml:"overdue_spec"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" toml:"url"`
	Events         []string `yaml:"events" toml:"events"`
	Secret         string   `yaml:"secret" toml:"secret"`
	Enabled        *bool    `yaml:"enabled" toml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Addr: "127.0.0.1:8080", BasePath: "/v1", MaxBodyBytes: 1 << 20},
		Auth:      AuthConfig{TokenTTL: "24h"},
		Log:       LogConfig{Level: "info", Format: "text"},
		Store:     StoreConfig{BusyTimeoutMS: 5000},
		Telemetry: TelemetryConfig{ServiceName: "trackline", MetricInterval: "60s"},
		Scheduler: SchedulerConfig{Enabled: true, OverdueSpec: "@every 15m"},
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with '/': %q", c.Server.BasePath)
	}
	if c.Server.MaxBodyBytes < 0 {
		return errors.New("config.server.max_body_bytes must not be negative")
	}
	if _, err := c.TokenTTL(); err != nil {
		return err
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Store.BusyTimeoutMS < 0 {
		return errors.New("config.store.busy_timeout_ms must not be negative")
	}
	if _, err := c.MetricInterval(); err != nil {
		return err
	}
	if c.Notifications.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Notifications.BaseURL); err != nil {
			return fmt.Errorf("config.notifications.base_url: %w", err)
		}
	}
	if (c.Notifications.Slack.BotToken == "") != (c.Notifications.Slack.ChannelID == "") {
		return errors.New("config.notifications.slack needs both bot_token and channel_id")
	}
	if (c.Notifications.Discord.BotToken == "") != (c.Notifications.Discord.ChannelID == "") {
		return errors.New("config.notifications.discord needs both bot_token and channel_id")
	}
	if c.Scheduler.Enabled {
		if _, err := scheduler.SpecParser.Parse(c.Scheduler.OverdueSpec); err != nil {
			return fmt.Errorf("config.scheduler.overdue_spec: %w", err)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

func (c *Config) TokenTTL() (time.Duration, error) {
	if c.Auth.TokenTTL == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(c.Auth.TokenTTL)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config.auth.token_ttl invalid: %q", c.Auth.TokenTTL)
	}
	return d, nil
}

func (c *Config) MetricInterval() (time.Duration, error) {
	if c.Telemetry.MetricInterval == "" {
		return time.Minute, nil
	}
	d, err := time.ParseDuration(c.Telemetry.MetricInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config.telemetry.metric_interval invalid: %q", c.Telemetry.MetricInterval)
	}
	return d, nil
}

func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return lvl, fmt.Errorf("config.log.level: %w", err)
	}
	return lvl, nil
}

// Path returns the YAML config path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dirName, yamlName)
}

// TOMLPath returns the TOML config path for a workspace.
func TOMLPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dirName, tomlName)
}

// Load reads the workspace config, preferring YAML over TOML. Missing files
// yield Default.
func Load(workspace string) (*Config, error) {
	for _, p := range []string{Path(workspace), TOMLPath(workspace)} {
		if _, err := os.Stat(p); err == nil {
			return FromFile(p)
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return Default(), nil
}

// FromFile reads config from path, choosing the decoder by extension.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FromTOML(data)
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Unset fields keep
// their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromTOML parses and validates config from raw TOML bytes.
func FromTOML(data []byte) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("invalid config toml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToYAML renders cfg, used by `tl init` to write a starter file.
func ToYAML(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
