package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/repo"
)

func issueCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "issue", Short: "Manage issues"}
	cmd.AddCommand(
		issueCreateCmd(), issueListCmd(), issueShowCmd(), issueUpdateCmd(),
		issueStatusCmd(), issueAssignCmd(), issueSprintCmd(), issueDeleteCmd(), issueOverdueCmd(),
	)
	return cmd
}

func printIssues(items []domain.Issue) error {
	return printJSONOrTable(items, table.Row{"ID", "Title", "Type", "Priority", "Status", "Assignee", "Sprint", "Due"}, func(add func(table.Row)) {
		for _, is := range items {
			add(table.Row{is.ID, is.Title, is.Type, is.Priority, is.Status, deref(is.AssigneeID), deref(is.SprintID), deref(is.DueDate)})
		}
	})
}

func issueCreateCmd() *cobra.Command {
	var opts engine.IssueCreateOptions
	var typ, prio, assignee, due string
	var hours float64
	var points int
	cmd := &cobra.Command{
		Use:   "create <work-list-id> <title>",
		Short: "Create an issue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				var err error
				opts.WorkListID = args[0]
				opts.Title = args[1]
				opts.Type = domain.IssueType(strings.ToUpper(typ))
				opts.Priority = domain.IssuePriority(strings.ToUpper(prio))
				if opts.AssigneeID, err = resolveUser(ctx, e, assignee); err != nil {
					return err
				}
				if opts.DueDate, err = parseDateFlag("due", due, time.Now()); err != nil {
					return err
				}
				if cmd.Flags().Changed("hours") {
					opts.EstimatedHours = &hours
				}
				if cmd.Flags().Changed("points") {
					opts.StoryPoints = &points
				}
				is, err := e.CreateIssue(ctx, p, opts)
				if err != nil {
					return err
				}
				return printIssues([]domain.Issue{is})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&typ, "type", "", "TASK, BUG, STORY, EPIC or SUBTASK")
	cmd.Flags().StringVar(&prio, "priority", "", "LOWEST, LOW, MEDIUM, HIGH or HIGHEST")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user")
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "parent issue id")
	cmd.Flags().StringVar(&opts.SprintID, "sprint", "", "sprint id")
	cmd.Flags().StringVar(&due, "due", "", `due date ("2024-05-01", "next friday")`)
	cmd.Flags().Float64Var(&hours, "hours", 0, "estimated hours")
	cmd.Flags().IntVar(&points, "points", 0, "story points")
	cmd.Flags().StringSliceVar(&opts.LabelIDs, "label", nil, "label ids")
	return cmd
}

func issueListCmd() *cobra.Command {
	var f repo.IssueFilters
	var assignee string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Search issues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				var err error
				if assignee == "me" {
					f.AssigneeID = p.UserID
				} else if f.AssigneeID, err = resolveUser(ctx, e, assignee); err != nil {
					return err
				}
				f.Status = strings.ToUpper(f.Status)
				f.Priority = strings.ToUpper(f.Priority)
				f.Type = strings.ToUpper(f.Type)
				items, err := e.ListIssues(ctx, p, f)
				if err != nil {
					return err
				}
				return printIssues(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.WorkListID, "work-list", "", "work-list id")
	cmd.Flags().StringVar(&f.Status, "status", "", "status")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority")
	cmd.Flags().StringVar(&f.Type, "type", "", "type")
	cmd.Flags().StringVar(&assignee, "assignee", "", `assignee user, or "me"`)
	cmd.Flags().StringVar(&f.SprintID, "sprint", "", "sprint id")
	cmd.Flags().StringVar(&f.ParentID, "parent", "", "parent issue id")
	cmd.Flags().StringVar(&f.LabelID, "label", "", "label id")
	cmd.Flags().BoolVar(&f.Backlog, "backlog", false, "only issues without a sprint")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

type issueDetail struct {
	domain.Issue
	SubIssues []domain.Issue   `json:"sub_issues"`
	Comments  []domain.Comment `json:"comments"`
	TimeSpent int64            `json:"time_spent_seconds"`
}

func issueShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an issue with its sub-issues and comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				is, err := e.GetIssue(ctx, p, args[0])
				if err != nil {
					return err
				}
				subs, err := e.SubIssues(ctx, p, is.ID)
				if err != nil {
					return err
				}
				comments, err := e.ListComments(ctx, p, is.ID)
				if err != nil {
					return err
				}
				spent, err := e.IssueTimeSpent(ctx, p, is.ID)
				if err != nil {
					return err
				}
				d := issueDetail{Issue: is, SubIssues: subs, Comments: comments, TimeSpent: spent}
				return printJSONOrTable(d, table.Row{"Field", "Value"}, func(add func(table.Row)) {
					add(table.Row{"ID", is.ID})
					add(table.Row{"Title", is.Title})
					add(table.Row{"Type", is.Type})
					add(table.Row{"Priority", is.Priority})
					add(table.Row{"Status", is.Status})
					add(table.Row{"Reporter", is.ReporterID})
					add(table.Row{"Assignee", deref(is.AssigneeID)})
					add(table.Row{"Parent", deref(is.ParentID)})
					add(table.Row{"Sprint", deref(is.SprintID)})
					add(table.Row{"Due", deref(is.DueDate)})
					add(table.Row{"Labels", strings.Join(is.LabelIDs, ",")})
					add(table.Row{"Sub-issues", len(subs)})
					add(table.Row{"Comments", len(comments)})
					add(table.Row{"Time spent", time.Duration(spent) * time.Second})
				})
			})
		},
	}
}

// patchFlag maps a string flag onto a tri-state patch: unset leaves the field,
// "none" clears it.
func patchFlag(cmd *cobra.Command, name, v string) engine.Patch[string] {
	if !cmd.Flags().Changed(name) {
		return engine.Patch[string]{}
	}
	if v == "" || strings.EqualFold(v, "none") {
		return engine.PatchClear[string]()
	}
	return engine.PatchTo(v)
}

func issueUpdateCmd() *cobra.Command {
	var title, desc, typ, prio, status, assignee, sprint, parent, due string
	var hours float64
	var points int
	var labels []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: `Partially update an issue; pass "none" to clear assignee, sprint, parent or due`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				var u engine.IssueUpdate
				changed := cmd.Flags().Changed
				if changed("title") {
					u.Title = &title
				}
				if changed("description") {
					u.Description = &desc
				}
				if changed("type") {
					t := domain.IssueType(strings.ToUpper(typ))
					u.Type = &t
				}
				if changed("priority") {
					pr := domain.IssuePriority(strings.ToUpper(prio))
					u.Priority = &pr
				}
				if changed("status") {
					s := domain.IssueStatus(strings.ToUpper(status))
					u.Status = &s
				}
				if changed("assignee") && !strings.EqualFold(assignee, "none") {
					id, err := resolveUser(ctx, e, assignee)
					if err != nil {
						return err
					}
					assignee = id
				}
				u.Assignee = patchFlag(cmd, "assignee", assignee)
				u.Sprint = patchFlag(cmd, "sprint", sprint)
				u.Parent = patchFlag(cmd, "parent", parent)
				if changed("due") && !strings.EqualFold(due, "none") {
					d, err := parseDateFlag("due", due, time.Now())
					if err != nil {
						return err
					}
					due = d
				}
				u.DueDate = patchFlag(cmd, "due", due)
				if changed("hours") {
					u.EstimatedHours = &hours
				}
				if changed("points") {
					u.StoryPoints = &points
				}
				if changed("label") {
					u.LabelIDs = &labels
				}
				is, err := e.UpdateIssue(ctx, p, args[0], u)
				if err != nil {
					return err
				}
				return printIssues([]domain.Issue{is})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&typ, "type", "", "type")
	cmd.Flags().StringVar(&prio, "priority", "", "priority")
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee user")
	cmd.Flags().StringVar(&sprint, "sprint", "", "sprint id")
	cmd.Flags().StringVar(&parent, "parent", "", "parent issue id")
	cmd.Flags().StringVar(&due, "due", "", "due date")
	cmd.Flags().Float64Var(&hours, "hours", 0, "estimated hours")
	cmd.Flags().IntVar(&points, "points", 0, "story points")
	cmd.Flags().StringSliceVar(&labels, "label", nil, "replace label ids")
	return cmd
}

func issueStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change the status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				is, err := e.TransitionStatus(ctx, p, args[0], domain.IssueStatus(strings.ToUpper(args[1])))
				if err != nil {
					return err
				}
				return printIssues([]domain.Issue{is})
			})
		},
	}
}

func issueAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> [user]",
		Short: "Assign an issue; without a user it is unassigned",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				var userID string
				if len(args) == 2 {
					var err error
					if userID, err = resolveUser(ctx, e, args[1]); err != nil {
						return err
					}
				}
				is, err := e.Reassign(ctx, p, args[0], userID)
				if err != nil {
					return err
				}
				return printIssues([]domain.Issue{is})
			})
		},
	}
}

func issueSprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sprint <id> [sprint-id]",
		Short: "Move an issue to a sprint; without a sprint it returns to the backlog",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				var sprintID string
				if len(args) == 2 {
					sprintID = args[1]
				}
				is, err := e.ReassignSprint(ctx, p, args[0], sprintID)
				if err != nil {
					return err
				}
				return printIssues([]domain.Issue{is})
			})
		},
	}
}

func issueDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an issue; sub-issues are detached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				if err := e.DeleteIssue(ctx, p, args[0]); err != nil {
					return err
				}
				return done("deleted issue %s", args[0])
			})
		},
	}
}

func issueOverdueCmd() *cobra.Command {
	var workList string
	cmd := &cobra.Command{
		Use:   "overdue",
		Short: "List unfinished issues past their due date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				items, err := e.OverdueIssues(ctx, p, workList)
				if err != nil {
					return err
				}
				return printIssues(items)
			})
		},
	}
	cmd.Flags().StringVar(&workList, "work-list", "", "work-list id (required unless admin)")
	return cmd
}

func commentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "comment", Short: "Comment on issues"}
	add := &cobra.Command{
		Use:   "add <issue-id> <body>",
		Short: "Add a comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				c, err := e.AddComment(ctx, p, args[0], args[1])
				if err != nil {
					return err
				}
				return printComments([]domain.Comment{c})
			})
		},
	}
	list := &cobra.Command{
		Use:   "list <issue-id>",
		Short: "List comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				items, err := e.ListComments(ctx, p, args[0])
				if err != nil {
					return err
				}
				return printComments(items)
			})
		},
	}
	del := &cobra.Command{
		Use:   "delete <comment-id>",
		Short: "Delete a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				if err := e.DeleteComment(ctx, p, args[0]); err != nil {
					return err
				}
				return done("deleted comment %s", args[0])
			})
		},
	}
	cmd.AddCommand(add, list, del)
	return cmd
}

func printComments(items []domain.Comment) error {
	return printJSONOrTable(items, table.Row{"ID", "Author", "Created", "Body"}, func(add func(table.Row)) {
		for _, c := range items {
			add(table.Row{c.ID, c.AuthorID, c.CreatedAt, c.Body})
		}
	})
}

func workLogCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "worklog", Short: "Track time spent"}
	var desc, start string
	add := &cobra.Command{
		Use:   "add <issue-id> <duration>",
		Short: `Log time, e.g. "1h30m"`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("duration: %w", err)
			}
			startAt, err := parseDateFlag("start", start, time.Now())
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				wl, err := e.LogWork(ctx, p, engine.WorkLogOptions{
					IssueID:          args[0],
					TimeSpentSeconds: int64(d / time.Second),
					Description:      desc,
					StartTime:        startAt,
				})
				if err != nil {
					return err
				}
				return printWorkLogs([]domain.WorkLog{wl})
			})
		},
	}
	add.Flags().StringVar(&desc, "description", "", "what was done")
	add.Flags().StringVar(&start, "start", "", "when the work started (defaults to now)")

	var user, from, to string
	list := &cobra.Command{
		Use:   "list [issue-id]",
		Short: "List work logs of an issue, or of a user with --user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			fromAt, err := parseDateFlag("from", from, now)
			if err != nil {
				return err
			}
			toAt, err := parseDateFlag("to", to, now)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				var items []domain.WorkLog
				if len(args) == 1 {
					items, err = e.ListWorkLogs(ctx, p, args[0])
				} else {
					userID := p.UserID
					if user != "" {
						if userID, err = resolveUser(ctx, e, user); err != nil {
							return err
						}
					}
					items, err = e.ListUserWorkLogs(ctx, p, userID, fromAt, toAt)
				}
				if err != nil {
					return err
				}
				return printWorkLogs(items)
			})
		},
	}
	list.Flags().StringVar(&user, "user", "", "user (defaults to --as)")
	list.Flags().StringVar(&from, "from", "", "window start")
	list.Flags().StringVar(&to, "to", "", "window end")
	cmd.AddCommand(add, list)
	return cmd
}

func printWorkLogs(items []domain.WorkLog) error {
	return printJSONOrTable(items, table.Row{"ID", "Issue", "User", "Spent", "Start", "Description"}, func(add func(table.Row)) {
		var total int64
		for _, w := range items {
			total += w.TimeSpentSeconds
			add(table.Row{w.ID, w.IssueID, w.UserID, time.Duration(w.TimeSpentSeconds) * time.Second, w.StartTime, w.Description})
		}
		add(table.Row{"", "", "total", time.Duration(total) * time.Second, "", ""})
	})
}
