// Package app wires configuration, storage and the engine for the CLI and server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"trackline/internal/config"
	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/migrate"
	"trackline/internal/notify"
	"trackline/internal/repo"
	"trackline/internal/rules"
	"trackline/internal/scheduler"
	"trackline/internal/telemetry"
)

// App holds the long-lived pieces of one trackline process.
type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Logger    *slog.Logger
}

// Options tune Open. Zero values read the workspace config and log to stderr.
type Options struct {
	Config    *config.Config
	LogOutput io.Writer
	Version   string
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	c := config.Config{Log: cfg}
	level, err := c.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// Open loads config, opens and migrates the database, and builds the engine
// with the configured notification sinks.
func Open(ctx context.Context, workspace string, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(workspace); err != nil {
			return nil, err
		}
	}
	logger, err := NewLogger(cfg.Log, opts.LogOutput)
	if err != nil {
		return nil, err
	}
	interval, err := cfg.MetricInterval()
	if err != nil {
		return nil, err
	}
	if err := telemetry.Init(ctx, telemetry.Options{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		Version:        opts.Version,
		MetricInterval: interval,
		Writer:         opts.LogOutput,
	}); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	conn, err := db.Open(db.Config{Workspace: workspace, BusyTimeoutMS: cfg.Store.BusyTimeoutMS})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	eng := engine.New(conn, logger)
	sinks, err := Sinks(cfg.Notifications)
	if err != nil {
		conn.Close()
		return nil, err
	}
	dispatcher := notify.Dispatcher{
		Store:   eng.Repo,
		Sinks:   sinks,
		BaseURL: cfg.Notifications.BaseURL,
		Logger:  logger,
	}
	eng.Notifier = dispatcher
	eng.Automation = rules.New(eng.Repo, dispatcher, logger)

	return &App{Workspace: workspace, Config: cfg, DB: conn, Engine: eng, Logger: logger}, nil
}

// Sinks builds the chat sinks enabled in cfg.
func Sinks(cfg config.NotificationsConfig) ([]notify.Sink, error) {
	var sinks []notify.Sink
	if cfg.Slack.BotToken != "" {
		s, err := notify.NewSlackSink(notify.SlackOpts{BotToken: cfg.Slack.BotToken, ChannelID: cfg.Slack.ChannelID})
		if err != nil {
			return nil, fmt.Errorf("slack sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	if cfg.Discord.BotToken != "" {
		s, err := notify.NewDiscordSink(notify.DiscordOpts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, fmt.Errorf("discord sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// Scheduler returns an overdue sweeper bound to the app's store and notifier.
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.New(a.Engine.Repo, a.Engine.Notifier, a.Logger)
}

// Close flushes telemetry and closes the database.
func (a *App) Close(ctx context.Context) error {
	telemetry.Shutdown(ctx)
	return a.DB.Close()
}

// ResolvePrincipal looks a user up by id or username and returns the
// principal with its stored roles.
func ResolvePrincipal(ctx context.Context, r repo.Repo, ref string) (domain.Principal, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Principal{}, errors.New("no user selected; use --as or TRACKLINE_AS")
	}
	u, err := r.GetUser(ctx, ref)
	if errors.Is(err, repo.ErrNotFound) {
		u, err = r.GetUserByUsername(ctx, ref)
	}
	if err != nil {
		return domain.Principal{}, err
	}
	return domain.Principal{UserID: u.ID, Roles: u.Roles}, nil
}
