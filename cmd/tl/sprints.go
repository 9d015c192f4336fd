package main

import (
	"context"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"trackline/internal/domain"
	"trackline/internal/engine"
)

func sprintCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sprint", Short: "Manage sprints"}
	cmd.AddCommand(
		sprintCreateCmd(), sprintListCmd(), sprintStartCmd(),
		sprintTransitionCmd("complete", "Complete the ACTIVE sprint", engine.Engine.CompleteSprint),
		sprintTransitionCmd("cancel", "Cancel a PLANNING or ACTIVE sprint", engine.Engine.CancelSprint),
		sprintMembershipCmd(true), sprintMembershipCmd(false),
	)
	return cmd
}

func printSprints(items []domain.Sprint) error {
	return printJSONOrTable(items, table.Row{"ID", "Name", "Status", "Start", "End", "Goal"}, func(add func(table.Row)) {
		for _, sp := range items {
			add(table.Row{sp.ID, sp.Name, sp.Status, deref(sp.StartDate), deref(sp.EndDate), sp.Goal})
		}
	})
}

func sprintCreateCmd() *cobra.Command {
	var goal, start, end string
	cmd := &cobra.Command{
		Use:   "create <work-list-id> <name>",
		Short: "Create a sprint in PLANNING",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			startAt, err := parseDateFlag("start", start, now)
			if err != nil {
				return err
			}
			endAt, err := parseDateFlag("end", end, now)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				sp, err := e.CreateSprint(ctx, p, engine.SprintCreateOptions{
					WorkListID: args[0],
					Name:       args[1],
					Goal:       goal,
					StartDate:  startAt,
					EndDate:    endAt,
				})
				if err != nil {
					return err
				}
				return printSprints([]domain.Sprint{sp})
			})
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "sprint goal")
	cmd.Flags().StringVar(&start, "start", "", "planned start")
	cmd.Flags().StringVar(&end, "end", "", `planned end ("in 2 weeks")`)
	return cmd
}

func sprintListCmd() *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "list <work-list-id>",
		Short: "List sprints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				items, err := e.ListSprints(ctx, p, args[0], active)
				if err != nil {
					return err
				}
				return printSprints(items)
			})
		},
	}
	cmd.Flags().BoolVar(&active, "active", false, "only the ACTIVE sprint")
	return cmd
}

func sprintStartCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start a PLANNING sprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			startAt, err := parseDateFlag("start", start, now)
			if err != nil {
				return err
			}
			endAt, err := parseDateFlag("end", end, now)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				sp, err := e.StartSprint(ctx, p, args[0], startAt, endAt)
				if err != nil {
					return err
				}
				return printSprints([]domain.Sprint{sp})
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "start date (defaults to now)")
	cmd.Flags().StringVar(&end, "end", "", "end date")
	return cmd
}

func sprintTransitionCmd(use, short string, fn func(engine.Engine, context.Context, domain.Principal, string) (domain.Sprint, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				sp, err := fn(e, ctx, p, args[0])
				if err != nil {
					return err
				}
				return printSprints([]domain.Sprint{sp})
			})
		},
	}
}

func sprintMembershipCmd(add bool) *cobra.Command {
	use, short := "remove <sprint-id> <issue-id>", "Move an issue back to the backlog"
	if add {
		use, short = "add <sprint-id> <issue-id>", "Add an issue to a sprint"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				var (
					is  domain.Issue
					err error
				)
				if add {
					is, err = e.AddIssueToSprint(ctx, p, args[0], args[1])
				} else {
					is, err = e.RemoveIssueFromSprint(ctx, p, args[0], args[1])
				}
				if err != nil {
					return err
				}
				return printIssues([]domain.Issue{is})
			})
		},
	}
}

func ruleCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rule", Short: "Manage automation rules"}
	cmd.AddCommand(ruleCreateCmd(), ruleListCmd(), ruleToggleCmd(), ruleDeleteCmd(), ruleRunsCmd())
	return cmd
}

func printRules(items []domain.AutomationRule) error {
	return printJSONOrTable(items, table.Row{"ID", "Name", "Trigger", "Conditions", "Action", "Parameters", "Active"}, func(add func(table.Row)) {
		for _, r := range items {
			add(table.Row{r.ID, r.Name, r.TriggerEvent, r.ConditionsJSON, r.ActionType, r.ActionParamsJSON, r.Active})
		}
	})
}

func ruleCreateCmd() *cobra.Command {
	var trigger, conditions, action, params string
	var inactive bool
	cmd := &cobra.Command{
		Use:   "create <work-list-id> <name>",
		Short: "Create a rule",
		Example: `  tl rule create wl-1 "escalate" --trigger STATUS_CHANGED \
    --when '{"priority":"HIGH"}' --action ASSIGN_USER --params '{"userId":"42"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				active := !inactive
				r, err := e.CreateRule(ctx, p, engine.RuleCreateOptions{
					WorkListID:   args[0],
					Name:         args[1],
					TriggerEvent: domain.TriggerEvent(strings.ToUpper(trigger)),
					Conditions:   conditions,
					ActionType:   domain.ActionType(strings.ToUpper(action)),
					ActionParams: params,
					Active:       &active,
				})
				if err != nil {
					return err
				}
				return printRules([]domain.AutomationRule{r})
			})
		},
	}
	cmd.Flags().StringVar(&trigger, "trigger", "", "trigger event")
	cmd.Flags().StringVar(&conditions, "when", "", "conditions JSON")
	cmd.Flags().StringVar(&action, "action", "", "action type")
	cmd.Flags().StringVar(&params, "params", "", "action parameters JSON")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create disabled")
	_ = cmd.MarkFlagRequired("trigger")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func ruleListCmd() *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "list <work-list-id>",
		Short: "List rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				items, err := e.ListRules(ctx, p, args[0], active)
				if err != nil {
					return err
				}
				return printRules(items)
			})
		},
	}
	cmd.Flags().BoolVar(&active, "active", false, "only active rules")
	return cmd
}

func ruleToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip a rule between active and inactive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				r, err := e.ToggleRule(ctx, p, args[0])
				if err != nil {
					return err
				}
				return printRules([]domain.AutomationRule{r})
			})
		},
	}
}

func ruleDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				if err := e.DeleteRule(ctx, p, args[0]); err != nil {
					return err
				}
				return done("deleted rule %s", args[0])
			})
		},
	}
}

func ruleRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs <id>",
		Short: "Show recent evaluations of a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				runs, err := e.ListRuleRuns(ctx, p, args[0], limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(runs, table.Row{"When", "Issue", "Trigger", "Outcome", "Detail"}, func(add func(table.Row)) {
					for _, r := range runs {
						add(table.Row{r.TS, r.IssueID, r.TriggerEvent, r.Outcome, r.Detail})
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs")
	return cmd
}
