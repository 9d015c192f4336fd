package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trackline/internal/app"
	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/server"
)

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notify", Short: "Read your notifications"}
	var unread bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List your notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				items, err := e.ListNotifications(ctx, p, unread)
				if err != nil {
					return err
				}
				return printJSONOrTable(items, table.Row{"ID", "Kind", "Read", "Created", "Message"}, func(add func(table.Row)) {
					for _, n := range items {
						add(table.Row{n.ID, n.Kind, n.Read, n.CreatedAt, n.Message})
					}
				})
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "only unread")
	read := &cobra.Command{
		Use:   "read [id]",
		Short: "Mark one notification read, or all without an id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				if len(args) == 1 {
					if err := e.MarkRead(ctx, p, args[0]); err != nil {
						return err
					}
					return done("marked %s read", args[0])
				}
				n, err := e.MarkAllRead(ctx, p)
				if err != nil {
					return err
				}
				return done("marked %d notifications read", n)
			})
		},
	}
	var issue string
	send := &cobra.Command{
		Use:   "send <user> <message>",
		Short: "Send a notification",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				userID, err := resolveUser(ctx, e, args[0])
				if err != nil {
					return err
				}
				n, err := e.SendNotification(ctx, p, userID, issue, args[1])
				if err != nil {
					return err
				}
				return done("sent notification %s", n.ID)
			})
		},
	}
	send.Flags().StringVar(&issue, "issue", "", "related issue id")
	cmd.AddCommand(list, read, send)
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var workList, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				evts, err := e.ListEvents(ctx, p, workList, entityKind, entityID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(evts, table.Row{"ID", "When", "Type", "Entity", "Actor", "Payload"}, func(add func(table.Row)) {
					for _, ev := range evts {
						add(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + ":" + ev.EntityID, ev.ActorID, ev.Payload})
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&workList, "work-list", "", "work-list id (required unless admin)")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, overdue sweeper and webhook dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app.App) error {
				cfg := a.Config
				if cmd.Flags().Changed("addr") {
					cfg.Server.Addr = addr
				}
				if cmd.Flags().Changed("base-path") {
					cfg.Server.BasePath = basePath
				}
				ttl, err := cfg.TokenTTL()
				if err != nil {
					return err
				}
				authCfg := server.AuthConfig{JWTSecret: jwtSecret(cfg), TokenTTL: ttl, Logger: a.Logger}
				if authCfg.JWTSecret == "" {
					a.Logger.Warn("no jwt secret configured; only API keys will authenticate")
				}
				handler, err := server.New(server.Config{
					Engine:       a.Engine,
					BasePath:     cfg.Server.BasePath,
					Auth:         authCfg,
					Version:      version,
					Logger:       a.Logger,
					MaxBodyBytes: cfg.Server.MaxBodyBytes,
				})
				if err != nil {
					return err
				}

				if cfg.Scheduler.Enabled {
					sched := a.Scheduler()
					if err := sched.Start(cfg.Scheduler.OverdueSpec); err != nil {
						return fmt.Errorf("scheduler: %w", err)
					}
					defer sched.Stop()
				}
				hooks := server.NewWebhookDispatcher(a.Engine.Repo, cfg.Webhooks, a.Logger)
				go hooks.Run(ctx)

				srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Logger.Info("serving trackline API", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath)
				if !viper.GetBool("json") {
					fmt.Printf("Serving Trackline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
						cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
				}
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path (overrides server.base_path)")
	return cmd
}
