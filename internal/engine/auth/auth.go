package auth

import (
	"context"
	"errors"
	"fmt"

	"trackline/internal/domain"
	"trackline/internal/repo"
)

// Kind names a resource type the resolver can decide on.
type Kind string

const (
	KindWorkspace Kind = "workspace"
	KindWorkList  Kind = "work_list"
	KindIssue     Kind = "issue"
	KindSprint    Kind = "sprint"
	KindRule      Kind = "automation_rule"
	KindBoard     Kind = "board"
	KindWorkLog   Kind = "work_log"
	KindAttach    Kind = "attachment"
	KindComment   Kind = "comment"
)

// PermissionDeniedError indicates the principal may not act on a resource.
type PermissionDeniedError struct {
	Kind Kind
	ID   string
}

func (e PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied on %s %s", e.Kind, e.ID)
}

// Decision is the outcome of a check, with the rule that decided it.
type Decision struct {
	Allowed bool
	Reason  string
}

func deny(reason string) Decision  { return Decision{Reason: reason} }
func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }

// Store is the read surface the resolver traverses.
type Store interface {
	GetWorkspace(ctx context.Context, id string) (domain.Workspace, error)
	GetWorkList(ctx context.Context, id string) (domain.WorkList, error)
	GetIssue(ctx context.Context, id string) (domain.Issue, error)
	GetSprint(ctx context.Context, id string) (domain.Sprint, error)
	GetRule(ctx context.Context, id string) (domain.AutomationRule, error)
	GetBoard(ctx context.Context, id string) (domain.Board, error)
	GetWorkLog(ctx context.Context, id string) (domain.WorkLog, error)
	GetAttachment(ctx context.Context, id string) (domain.Attachment, error)
	GetComment(ctx context.Context, id string) (domain.Comment, error)
}

var _ Store = repo.Repo{}

// Resolver decides access by walking workspace owner, work-list lead and the
// resource's own relation. Nothing is cached; every call re-reads the chain.
type Resolver struct {
	Store Store
}

// target is the resolved position of a resource in the ownership chain.
type target struct {
	workspaceID string
	workListID  string
	// related holds users with a direct relation to the resource.
	related  []string
	relation string
}

// Check decides whether p may act on the resource. Lookup failures deny.
func (r Resolver) Check(ctx context.Context, p domain.Principal, kind Kind, id string) Decision {
	if p.UserID == "" {
		return deny("no principal")
	}
	if id == "" {
		return deny("no resource id")
	}
	t, err := r.locate(ctx, kind, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return deny(fmt.Sprintf("%s %s not found", kind, id))
		}
		return deny(fmt.Sprintf("lookup %s %s: %v", kind, id, err))
	}
	return r.decide(ctx, p, t, false)
}

// CanPerform reports whether Check allows the principal.
func (r Resolver) CanPerform(ctx context.Context, p domain.Principal, kind Kind, id string) bool {
	return r.Check(ctx, p, kind, id).Allowed
}

// Require returns PermissionDeniedError when Check denies.
func (r Resolver) Require(ctx context.Context, p domain.Principal, kind Kind, id string) error {
	if !r.CanPerform(ctx, p, kind, id) {
		return PermissionDeniedError{Kind: kind, ID: id}
	}
	return nil
}

// CanContribute extends the work-list check to plain members. It gates issue
// creation and read access inside a work-list.
func (r Resolver) CanContribute(ctx context.Context, p domain.Principal, workListID string) bool {
	if p.UserID == "" || workListID == "" {
		return false
	}
	t, err := r.locate(ctx, KindWorkList, workListID)
	if err != nil {
		return false
	}
	return r.decide(ctx, p, t, true).Allowed
}

// RequireContributor is CanContribute returning PermissionDeniedError.
func (r Resolver) RequireContributor(ctx context.Context, p domain.Principal, workListID string) error {
	if !r.CanContribute(ctx, p, workListID) {
		return PermissionDeniedError{Kind: KindWorkList, ID: workListID}
	}
	return nil
}

func (r Resolver) Workspace(ctx context.Context, p domain.Principal, id string) bool {
	return r.CanPerform(ctx, p, KindWorkspace, id)
}

func (r Resolver) WorkList(ctx context.Context, p domain.Principal, id string) bool {
	return r.CanPerform(ctx, p, KindWorkList, id)
}

func (r Resolver) Issue(ctx context.Context, p domain.Principal, id string) bool {
	return r.CanPerform(ctx, p, KindIssue, id)
}

func (r Resolver) Sprint(ctx context.Context, p domain.Principal, id string) bool {
	return r.CanPerform(ctx, p, KindSprint, id)
}

func (r Resolver) Rule(ctx context.Context, p domain.Principal, id string) bool {
	return r.CanPerform(ctx, p, KindRule, id)
}

func (r Resolver) Board(ctx context.Context, p domain.Principal, id string) bool {
	return r.CanPerform(ctx, p, KindBoard, id)
}

func (r Resolver) WorkLog(ctx context.Context, p domain.Principal, id string) bool {
	return r.CanPerform(ctx, p, KindWorkLog, id)
}

func (r Resolver) Attachment(ctx context.Context, p domain.Principal, id string) bool {
	return r.CanPerform(ctx, p, KindAttach, id)
}

func (r Resolver) Comment(ctx context.Context, p domain.Principal, id string) bool {
	return r.CanPerform(ctx, p, KindComment, id)
}

func (r Resolver) locate(ctx context.Context, kind Kind, id string) (target, error) {
	switch kind {
	case KindWorkspace:
		ws, err := r.Store.GetWorkspace(ctx, id)
		if err != nil {
			return target{}, err
		}
		return target{workspaceID: ws.ID}, nil
	case KindWorkList:
		return target{workListID: id}, r.exists(ctx, id)
	case KindIssue:
		is, err := r.Store.GetIssue(ctx, id)
		if err != nil {
			return target{}, err
		}
		related := []string{is.ReporterID}
		if is.AssigneeID != nil {
			related = append(related, *is.AssigneeID)
		}
		return target{workListID: is.WorkListID, related: related, relation: "reporter or assignee"}, nil
	case KindSprint:
		sp, err := r.Store.GetSprint(ctx, id)
		if err != nil {
			return target{}, err
		}
		return target{workListID: sp.WorkListID}, nil
	case KindRule:
		ru, err := r.Store.GetRule(ctx, id)
		if err != nil {
			return target{}, err
		}
		if ru.WorkListID == nil {
			// Detached rules only answer to admins.
			return target{}, nil
		}
		return target{workListID: *ru.WorkListID}, nil
	case KindBoard:
		b, err := r.Store.GetBoard(ctx, id)
		if err != nil {
			return target{}, err
		}
		return target{workListID: b.WorkListID}, nil
	case KindWorkLog:
		wl, err := r.Store.GetWorkLog(ctx, id)
		if err != nil {
			return target{}, err
		}
		return r.viaIssue(ctx, wl.IssueID, wl.UserID, "work log owner")
	case KindAttach:
		a, err := r.Store.GetAttachment(ctx, id)
		if err != nil {
			return target{}, err
		}
		return r.viaIssue(ctx, a.IssueID, a.UploaderID, "uploader")
	case KindComment:
		c, err := r.Store.GetComment(ctx, id)
		if err != nil {
			return target{}, err
		}
		return r.viaIssue(ctx, c.IssueID, c.AuthorID, "author")
	default:
		return target{}, fmt.Errorf("unknown resource kind %q", kind)
	}
}

func (r Resolver) exists(ctx context.Context, workListID string) error {
	_, err := r.Store.GetWorkList(ctx, workListID)
	return err
}

func (r Resolver) viaIssue(ctx context.Context, issueID, userID, relation string) (target, error) {
	is, err := r.Store.GetIssue(ctx, issueID)
	if err != nil {
		return target{}, err
	}
	return target{workListID: is.WorkListID, related: []string{userID}, relation: relation}, nil
}

func (r Resolver) decide(ctx context.Context, p domain.Principal, t target, members bool) Decision {
	if p.HasRole(domain.RoleAdmin) {
		return allow("admin")
	}
	var wl domain.WorkList
	if t.workListID != "" {
		var err error
		wl, err = r.Store.GetWorkList(ctx, t.workListID)
		if err != nil {
			return deny("work list unavailable")
		}
		t.workspaceID = wl.WorkspaceID
	}
	if t.workspaceID != "" {
		ws, err := r.Store.GetWorkspace(ctx, t.workspaceID)
		if err != nil {
			return deny("workspace unavailable")
		}
		if ws.OwnerID == p.UserID {
			return allow("workspace owner")
		}
	}
	if wl.LeadID != nil && *wl.LeadID == p.UserID {
		return allow("work list lead")
	}
	for _, u := range t.related {
		if u != "" && u == p.UserID {
			return allow(t.relation)
		}
	}
	if members {
		for _, m := range wl.MemberIDs {
			if m == p.UserID {
				return allow("work list member")
			}
		}
	}
	return deny("no relation")
}
