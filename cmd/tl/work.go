package main

import (
	"context"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"trackline/internal/app"
	"trackline/internal/domain"
	"trackline/internal/engine"
)

func workspaceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "workspace", Aliases: []string{"ws"}, Short: "Manage workspaces"}
	cmd.AddCommand(workspaceCreateCmd(), workspaceListCmd(), workspaceDeleteCmd())
	return cmd
}

func printWorkspaces(items []domain.Workspace) error {
	return printJSONOrTable(items, table.Row{"ID", "Name", "Owner", "Created"}, func(add func(table.Row)) {
		for _, ws := range items {
			add(table.Row{ws.ID, ws.Name, ws.OwnerID, ws.CreatedAt})
		}
	})
}

func workspaceCreateCmd() *cobra.Command {
	var desc string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a workspace owned by the --as user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				ws, err := e.CreateWorkspace(ctx, p, engine.WorkspaceCreateOptions{Name: args[0], Description: desc})
				if err != nil {
					return err
				}
				return printWorkspaces([]domain.Workspace{ws})
			})
		},
	}
	cmd.Flags().StringVar(&desc, "description", "", "description")
	return cmd
}

func workspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List visible workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				items, err := e.ListWorkspaces(ctx, p)
				if err != nil {
					return err
				}
				return printWorkspaces(items)
			})
		},
	}
}

func workspaceDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a workspace and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				if err := e.DeleteWorkspace(ctx, p, args[0]); err != nil {
					return err
				}
				return done("deleted workspace %s", args[0])
			})
		},
	}
}

func workListCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "worklist", Aliases: []string{"wl"}, Short: "Manage work-lists"}
	member := &cobra.Command{Use: "member", Short: "Manage work-list members"}
	member.AddCommand(workListMemberCmd(true), workListMemberCmd(false))
	cmd.AddCommand(workListCreateCmd(), workListListCmd(), workListLeadCmd(), member, labelCmd())
	return cmd
}

func printWorkLists(items []domain.WorkList) error {
	return printJSONOrTable(items, table.Row{"ID", "Name", "Workspace", "Lead", "Members"}, func(add func(table.Row)) {
		for _, wl := range items {
			add(table.Row{wl.ID, wl.Name, wl.WorkspaceID, deref(wl.LeadID), len(wl.MemberIDs)})
		}
	})
}

// resolveUsers maps usernames or ids to user ids.
func resolveUsers(ctx context.Context, e engine.Engine, refs []string) ([]string, error) {
	var ids []string
	for _, ref := range refs {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		p, err := app.ResolvePrincipal(ctx, e.Repo, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

func resolveUser(ctx context.Context, e engine.Engine, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", nil
	}
	ids, err := resolveUsers(ctx, e, []string{ref})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func workListCreateCmd() *cobra.Command {
	var desc, lead string
	var members []string
	cmd := &cobra.Command{
		Use:   "create <workspace-id> <name>",
		Short: "Create a work-list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				leadID, err := resolveUser(ctx, e, lead)
				if err != nil {
					return err
				}
				memberIDs, err := resolveUsers(ctx, e, members)
				if err != nil {
					return err
				}
				wl, err := e.CreateWorkList(ctx, p, engine.WorkListCreateOptions{
					WorkspaceID: args[0],
					Name:        args[1],
					Description: desc,
					LeadID:      leadID,
					MemberIDs:   memberIDs,
				})
				if err != nil {
					return err
				}
				return printWorkLists([]domain.WorkList{wl})
			})
		},
	}
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&lead, "lead", "", "lead user")
	cmd.Flags().StringSliceVar(&members, "member", nil, "member users")
	return cmd
}

func workListListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <workspace-id>",
		Short: "List work-lists you contribute to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				items, err := e.ListWorkLists(ctx, p, args[0])
				if err != nil {
					return err
				}
				return printWorkLists(items)
			})
		},
	}
}

func workListLeadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lead <work-list-id> [user]",
		Short: "Set the lead; without a user the lead is cleared",
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
				wl, err := e.SetLead(ctx, p, args[0], userID)
				if err != nil {
					return err
				}
				return printWorkLists([]domain.WorkList{wl})
			})
		},
	}
}

func workListMemberCmd(add bool) *cobra.Command {
	use, short := "remove <work-list-id> <user>", "Remove a member"
	if add {
		use, short = "add <work-list-id> <user>", "Add a member"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				userID, err := resolveUser(ctx, e, args[1])
				if err != nil {
					return err
				}
				if add {
					err = e.AddMember(ctx, p, args[0], userID)
				} else {
					err = e.RemoveMember(ctx, p, args[0], userID)
				}
				if err != nil {
					return err
				}
				if add {
					return done("added %s to %s", args[1], args[0])
				}
				return done("removed %s from %s", args[1], args[0])
			})
		},
	}
}

func labelCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "label", Short: "Manage labels"}
	var color string
	create := &cobra.Command{
		Use:   "create <work-list-id> <name>",
		Short: "Create a label",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				l, err := e.CreateLabel(ctx, p, args[0], args[1], color)
				if err != nil {
					return err
				}
				return printLabels([]domain.Label{l})
			})
		},
	}
	create.Flags().StringVar(&color, "color", "", "display color")
	list := &cobra.Command{
		Use:   "list <work-list-id>",
		Short: "List labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, p domain.Principal) error {
				items, err := e.ListLabels(ctx, p, args[0])
				if err != nil {
					return err
				}
				return printLabels(items)
			})
		},
	}
	cmd.AddCommand(create, list)
	return cmd
}

func printLabels(items []domain.Label) error {
	return printJSONOrTable(items, table.Row{"ID", "Name", "Color"}, func(add func(table.Row)) {
		for _, l := range items {
			add(table.Row{l.ID, l.Name, l.Color})
		}
	})
}
