package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trackline/internal/app"
	"trackline/internal/config"
	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/server"
)

type initResult struct {
	Workspace string      `json:"workspace"`
	Config    string      `json:"config"`
	Admin     domain.User `json:"admin"`
	APIKey    string      `json:"api_key"`
}

func initCmd() *cobra.Command {
	var admin string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace, default config and first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				cfgPath := config.Path(a.Workspace)
				if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
					data, err := config.ToYAML(config.Default())
					if err != nil {
						return err
					}
					if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
						return err
					}
				}
				u, err := a.Engine.Bootstrap(ctx, admin)
				if err != nil {
					return err
				}
				p := domain.Principal{UserID: u.ID, Roles: u.Roles}
				key, _, err := a.Engine.CreateAPIKey(ctx, p, u.ID, "bootstrap")
				if err != nil {
					return err
				}
				res := initResult{Workspace: a.Workspace, Config: cfgPath, Admin: u, APIKey: key}
				return printJSONOrTable(res, table.Row{"Admin", "ID", "API key", "Config"}, func(add func(table.Row)) {
					add(table.Row{u.Username, u.ID, key, cfgPath})
				})
			})
		},
	}
	cmd.Flags().StringVar(&admin, "admin", "admin", "username of the first administrator")
	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}
	cmd.AddCommand(userCreateCmd(), userListCmd(), userGrantCmd(), userRevokeCmd(), userKeyCmd())
	return cmd
}

func printUsers(users []domain.User) error {
	return printJSONOrTable(users, table.Row{"ID", "Username", "Name", "Roles"}, func(add func(table.Row)) {
		for _, u := range users {
			add(table.Row{u.ID, u.Username, u.DisplayName, strings.Join(u.Roles, ",")})
		}
	})
}

func userCreateCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Username = args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				u, err := e.CreateUser(ctx, p, opts)
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
	cmd.Flags().StringVar(&opts.DisplayName, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringSliceVar(&opts.Roles, "role", nil, "roles to grant")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Engine.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printUsers(users)
			})
		},
	}
}

func userGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user> <role>",
		Short: "Grant a role (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				target, err := app.ResolvePrincipal(ctx, e.Repo, args[0])
				if err != nil {
					return err
				}
				if err := e.GrantRole(ctx, p, target.UserID, args[1]); err != nil {
					return err
				}
				return done("granted %s to %s", strings.ToUpper(args[1]), args[0])
			})
		},
	}
}

func userRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <user> <role>",
		Short: "Revoke a role (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				target, err := app.ResolvePrincipal(ctx, e.Repo, args[0])
				if err != nil {
					return err
				}
				if err := e.RevokeRole(ctx, p, target.UserID, args[1]); err != nil {
					return err
				}
				return done("revoked %s from %s", strings.ToUpper(args[1]), args[0])
			})
		},
	}
}

func userKeyCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "key [user]",
		Short: "Mint an API key; defaults to the --as user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				target := p
				if len(args) == 1 {
					var err error
					if target, err = app.ResolvePrincipal(ctx, e.Repo, args[0]); err != nil {
						return err
					}
				}
				plain, key, err := e.CreateAPIKey(ctx, p, target.UserID, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": key.ID, "user_id": key.UserID, "key": plain},
					table.Row{"ID", "User", "Key"}, func(add func(table.Row)) {
						add(table.Row{key.ID, key.UserID, plain})
					})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for the --as user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := app.ResolvePrincipal(ctx, a.Engine.Repo, viper.GetString("as"))
				if err != nil {
					return err
				}
				if ttl <= 0 {
					if ttl, err = a.Config.TokenTTL(); err != nil {
						return err
					}
				}
				secret := jwtSecret(a.Config)
				tok, err := server.SignToken(secret, p.UserID, ttl, time.Now())
				if err != nil {
					return fmt.Errorf("%w (set auth.jwt_secret or TRACKLINE_JWT_SECRET)", err)
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"token": tok})
				}
				fmt.Println(tok)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	return cmd
}
