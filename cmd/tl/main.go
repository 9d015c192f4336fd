package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"trackline/internal/app"
	"trackline/internal/config"
	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/engine"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Trackline CLI",
	Long: `Trackline tracks issues across work-lists with sprints and automation rules.
- Workspace: the .trackline directory holding the database and optional trackline.yml.
- Work-list: a project inside a workspace with a lead and members; issues, sprints, rules and boards live here.
- Issues move TODO -> IN_PROGRESS -> IN_REVIEW -> DONE and may have a parent, a sprint and labels.
- Sprints go PLANNING -> ACTIVE -> COMPLETED or CANCELLED; one ACTIVE sprint per work-list.
- Rules react to issue events: when conditions match, an action runs on the issue.
- Every command acts as a user: pass --as <username|id> or set TRACKLINE_AS.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TRACKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "act as this user (username or id)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(workListCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(workLogCmd())
	rootCmd.AddCommand(sprintCmd())
	rootCmd.AddCommand(ruleCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func openApp(ctx context.Context) (*app.App, error) {
	return app.Open(ctx, viper.GetString("workspace"), app.Options{Version: version})
}

// withEngine runs fn as the --as user.
func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, domain.Principal) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	p, err := app.ResolvePrincipal(ctx, a.Engine.Repo, viper.GetString("as"))
	if err != nil {
		return err
	}
	return fn(ctx, a.Engine, p)
}

// withApp is withEngine for commands that need no principal.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printJSONOrTable prints v as JSON, or as a table built by rows when output
// is not JSON.
func printJSONOrTable(v any, header table.Row, rows func(add func(table.Row))) error {
	if viper.GetBool("json") || rows == nil {
		return printJSON(v)
	}
	renderTable(os.Stdout, header, rows)
	return nil
}

func renderTable(w io.Writer, header table.Row, rows func(add func(table.Row))) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(header)
	rows(func(r table.Row) { tw.AppendRow(r) })
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleLight)
		tw.Style().Options.DrawBorder = false
		tw.Style().Options.SeparateColumns = false
		tw.Style().Options.SeparateHeader = false
	}
	tw.Render()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func done(msg string, args ...any) error {
	if viper.GetBool("json") {
		return printJSON(map[string]string{"status": "ok", "message": fmt.Sprintf(msg, args...)})
	}
	fmt.Printf(msg+"\n", args...)
	return nil
}

// jwtSecret prefers TRACKLINE_JWT_SECRET over the config file.
func jwtSecret(cfg *config.Config) string {
	if s := strings.TrimSpace(viper.GetString("jwt_secret")); s != "" {
		return s
	}
	return cfg.Auth.JWTSecret
}
