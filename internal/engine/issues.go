package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"trackline/internal/domain"
	"trackline/internal/engine/auth"
	"trackline/internal/events"
	"trackline/internal/repo"
)

// Patch is a tri-state field in a partial update: an unset patch leaves the
// field alone, a set patch with the zero value clears it.
type Patch[T comparable] struct {
	Set   bool
	Value T
}

func PatchTo[T comparable](v T) Patch[T] { return Patch[T]{Set: true, Value: v} }
func PatchClear[T comparable]() Patch[T] { return Patch[T]{Set: true} }

// IssueCreateOptions are parameters for creating an issue.
type IssueCreateOptions struct {
	WorkListID     string
	Title          string
	Description    string
	Type           domain.IssueType
	Priority       domain.IssuePriority
	AssigneeID     string
	ParentID       string
	SprintID       string
	DueDate        string
	EstimatedHours *float64
	StoryPoints    *int
	LabelIDs       []string
}

// IssueUpdate is a partial update; nil and unset fields are left unchanged.
type IssueUpdate struct {
	Title          *string
	Description    *string
	Type           *domain.IssueType
	Priority       *domain.IssuePriority
	Status         *domain.IssueStatus
	Assignee       Patch[string]
	Sprint         Patch[string]
	Parent         Patch[string]
	DueDate        Patch[string]
	EstimatedHours *float64
	StoryPoints    *int
	LabelIDs       *[]string
}

// ParseDueDate accepts RFC3339 or YYYY-MM-DD and returns RFC3339 UTC.
func ParseDueDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	return "", invalid("due_date", fmt.Sprintf("unrecognized date %q", s))
}

func validateEstimates(hours *float64, points *int) error {
	if hours != nil && *hours < 0 {
		return invalid("estimated_hours", "must not be negative")
	}
	if points != nil && *points < 0 {
		return invalid("story_points", "must not be negative")
	}
	return nil
}

// CreateIssue creates an issue in TODO. Unresolvable assignee, parent, sprint
// and label ids are skipped, as are parent, sprint and labels belonging to
// another work-list.
func (e Engine) CreateIssue(ctx context.Context, p domain.Principal, opts IssueCreateOptions) (domain.Issue, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Issue{}, invalid("title", "required")
	}
	if opts.Type == "" {
		opts.Type = domain.TypeTask
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !opts.Type.Valid() {
		return domain.Issue{}, invalid("type", fmt.Sprintf("unknown type %q", opts.Type))
	}
	if !opts.Priority.Valid() {
		return domain.Issue{}, invalid("priority", fmt.Sprintf("unknown priority %q", opts.Priority))
	}
	if err := validateEstimates(opts.EstimatedHours, opts.StoryPoints); err != nil {
		return domain.Issue{}, err
	}
	var due *string
	if opts.DueDate != "" {
		d, err := ParseDueDate(opts.DueDate)
		if err != nil {
			return domain.Issue{}, err
		}
		due = &d
	}
	wl, err := e.Repo.GetWorkList(ctx, opts.WorkListID)
	if err != nil {
		return domain.Issue{}, err
	}
	if err := e.Auth.RequireContributor(ctx, p, wl.ID); err != nil {
		return domain.Issue{}, err
	}

	now := e.stamp()
	is := domain.Issue{
		ID:             uuid.NewString(),
		WorkListID:     wl.ID,
		Title:          strings.TrimSpace(opts.Title),
		Description:    opts.Description,
		Type:           opts.Type,
		Priority:       opts.Priority,
		Status:         domain.StatusTodo,
		ReporterID:     p.UserID,
		DueDate:        due,
		EstimatedHours: opts.EstimatedHours,
		StoryPoints:    opts.StoryPoints,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if opts.AssigneeID != "" {
		if u, err := e.Repo.GetUser(ctx, opts.AssigneeID); err == nil {
			is.AssigneeID = &u.ID
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.Issue{}, err
		}
	}
	if opts.ParentID != "" {
		if parent, err := e.Repo.GetIssue(ctx, opts.ParentID); err == nil {
			if parent.WorkListID == wl.ID {
				is.ParentID = &parent.ID
			}
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.Issue{}, err
		}
	}
	if opts.SprintID != "" {
		if sp, err := e.Repo.GetSprint(ctx, opts.SprintID); err == nil {
			if sp.WorkListID == wl.ID {
				is.SprintID = &sp.ID
			}
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.Issue{}, err
		}
	}
	labels, err := e.labelsIn(ctx, wl.ID, opts.LabelIDs)
	if err != nil {
		return domain.Issue{}, err
	}
	is.LabelIDs = labels

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertIssue(ctx, tx, is); err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type:       "issue.created",
			WorkListID: is.WorkListID,
			EntityKind: events.KindIssue,
			EntityID:   is.ID,
			ActorID:    p.UserID,
			Payload:    events.Payload{"title": is.Title, "status": is.Status},
		})
	})
	if err != nil {
		return domain.Issue{}, err
	}
	e.emit(ctx, domain.TriggerIssueCreated, &is, p)
	return is, nil
}

// labelsIn keeps the ids that name labels of the work-list.
func (e Engine) labelsIn(ctx context.Context, workListID string, ids []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ok, err := e.Repo.LabelsInWorkList(ctx, nil, workListID, []string{id})
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// ensureNoCycle walks up from parentID and fails if it reaches childID.
func (e Engine) ensureNoCycle(ctx context.Context, parentID, childID string) error {
	seen := map[string]bool{}
	cur := parentID
	for cur != "" {
		if cur == childID {
			return invalid("parent_id", "issue hierarchy cycle detected")
		}
		if seen[cur] {
			return nil
		}
		seen[cur] = true
		is, err := e.Repo.GetIssue(ctx, cur)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil
			}
			return err
		}
		if is.ParentID == nil {
			return nil
		}
		cur = *is.ParentID
	}
	return nil
}

// loadForChange loads an issue and checks the principal may modify it.
func (e Engine) loadForChange(ctx context.Context, p domain.Principal, id string) (domain.Issue, error) {
	is, err := e.Repo.GetIssue(ctx, id)
	if err != nil {
		return is, err
	}
	if err := e.Auth.Require(ctx, p, auth.KindIssue, id); err != nil {
		return is, err
	}
	return is, nil
}

// UpdateIssue applies a partial update, then emits ISSUE_UPDATED,
// STATUS_CHANGED when the status changed and ASSIGNEE_CHANGED when the
// assignee changed, in that order.
func (e Engine) UpdateIssue(ctx context.Context, p domain.Principal, id string, u IssueUpdate) (domain.Issue, error) {
	is, err := e.loadForChange(ctx, p, id)
	if err != nil {
		return is, err
	}
	oldStatus := is.Status
	oldAssignee := is.AssigneeID
	changes := events.Payload{}

	if u.Title != nil {
		t := strings.TrimSpace(*u.Title)
		if t == "" {
			return is, invalid("title", "must not be empty")
		}
		is.Title = t
	}
	if u.Description != nil {
		is.Description = *u.Description
	}
	if u.Type != nil {
		if !u.Type.Valid() {
			return is, invalid("type", fmt.Sprintf("unknown type %q", *u.Type))
		}
		is.Type = *u.Type
	}
	if u.Priority != nil {
		if !u.Priority.Valid() {
			return is, invalid("priority", fmt.Sprintf("unknown priority %q", *u.Priority))
		}
		is.Priority = *u.Priority
	}
	if u.Status != nil {
		if !u.Status.Valid() {
			return is, invalid("status", fmt.Sprintf("unknown status %q", *u.Status))
		}
		is.Status = *u.Status
	}
	if err := validateEstimates(u.EstimatedHours, u.StoryPoints); err != nil {
		return is, err
	}
	if u.EstimatedHours != nil {
		is.EstimatedHours = u.EstimatedHours
	}
	if u.StoryPoints != nil {
		is.StoryPoints = u.StoryPoints
	}
	if u.DueDate.Set {
		if u.DueDate.Value == "" {
			is.DueDate = nil
		} else {
			d, err := ParseDueDate(u.DueDate.Value)
			if err != nil {
				return is, err
			}
			is.DueDate = &d
		}
	}
	if u.Assignee.Set {
		if u.Assignee.Value == "" {
			is.AssigneeID = nil
		} else if usr, err := e.Repo.GetUser(ctx, u.Assignee.Value); err == nil {
			is.AssigneeID = &usr.ID
		} else if !errors.Is(err, repo.ErrNotFound) {
			return is, err
		}
	}
	if u.Sprint.Set {
		if u.Sprint.Value == "" {
			is.SprintID = nil
		} else if sp, err := e.Repo.GetSprint(ctx, u.Sprint.Value); err == nil {
			if sp.WorkListID != is.WorkListID {
				return is, InvalidTransitionError{Entity: "issue", ID: is.ID, Reason: "sprint belongs to another work list"}
			}
			is.SprintID = &sp.ID
		} else if !errors.Is(err, repo.ErrNotFound) {
			return is, err
		}
	}
	if u.Parent.Set {
		if u.Parent.Value == "" {
			is.ParentID = nil
		} else if parent, err := e.Repo.GetIssue(ctx, u.Parent.Value); err == nil {
			if parent.WorkListID != is.WorkListID {
				return is, invalid("parent_id", "parent belongs to another work list")
			}
			if err := e.ensureNoCycle(ctx, parent.ID, is.ID); err != nil {
				return is, err
			}
			is.ParentID = &parent.ID
		} else if !errors.Is(err, repo.ErrNotFound) {
			return is, err
		}
	}
	if u.LabelIDs != nil {
		labels, err := e.labelsIn(ctx, is.WorkListID, *u.LabelIDs)
		if err != nil {
			return is, err
		}
		is.LabelIDs = labels
	}

	statusChanged := is.Status != oldStatus
	assigneeChanged := !sameRef(oldAssignee, is.AssigneeID)
	if statusChanged {
		changes["status"] = map[string]any{"from": oldStatus, "to": is.Status}
	}
	if assigneeChanged {
		changes["assignee"] = map[string]any{"from": oldAssignee, "to": is.AssigneeID}
	}
	is.UpdatedAt = e.stamp()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateIssue(ctx, tx, is); err != nil {
			return err
		}
		if u.LabelIDs != nil {
			if err := e.Repo.SetIssueLabels(ctx, tx, is.ID, is.LabelIDs); err != nil {
				return err
			}
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type:       "issue.updated",
			WorkListID: is.WorkListID,
			EntityKind: events.KindIssue,
			EntityID:   is.ID,
			ActorID:    p.UserID,
			Payload:    changes,
		})
	})
	if err != nil {
		return is, err
	}

	e.emit(ctx, domain.TriggerIssueUpdated, &is, p)
	if statusChanged {
		e.emit(ctx, domain.TriggerStatusChanged, &is, p)
	}
	if assigneeChanged {
		e.emit(ctx, domain.TriggerAssigneeChanged, &is, p)
	}
	return is, nil
}

// TransitionStatus sets the status and emits STATUS_CHANGED when it changed.
func (e Engine) TransitionStatus(ctx context.Context, p domain.Principal, id string, status domain.IssueStatus) (domain.Issue, error) {
	if !status.Valid() {
		return domain.Issue{}, invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	is, err := e.loadForChange(ctx, p, id)
	if err != nil {
		return is, err
	}
	old := is.Status
	is.Status = status
	is.UpdatedAt = e.stamp()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateIssue(ctx, tx, is); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type:       "issue.status_changed",
			WorkListID: is.WorkListID,
			EntityKind: events.KindIssue,
			EntityID:   is.ID,
			ActorID:    p.UserID,
			Payload:    events.Payload{"from": old, "to": status},
		})
	})
	if err != nil {
		return is, err
	}
	if old != status {
		e.emit(ctx, domain.TriggerStatusChanged, &is, p)
	}
	return is, nil
}

// Reassign sets or, with an empty id, clears the assignee. An unknown user is
// NotFound. ASSIGNEE_CHANGED is emitted when the assignee changed.
func (e Engine) Reassign(ctx context.Context, p domain.Principal, id, assigneeID string) (domain.Issue, error) {
	is, err := e.loadForChange(ctx, p, id)
	if err != nil {
		return is, err
	}
	old := is.AssigneeID
	if assigneeID == "" {
		is.AssigneeID = nil
	} else {
		u, err := e.Repo.GetUser(ctx, assigneeID)
		if err != nil {
			return is, err
		}
		is.AssigneeID = &u.ID
	}
	is.UpdatedAt = e.stamp()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateIssue(ctx, tx, is); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type:       "issue.assigned",
			WorkListID: is.WorkListID,
			EntityKind: events.KindIssue,
			EntityID:   is.ID,
			ActorID:    p.UserID,
			Payload:    events.Payload{"from": old, "to": is.AssigneeID},
		})
	})
	if err != nil {
		return is, err
	}
	if !sameRef(old, is.AssigneeID) {
		e.emit(ctx, domain.TriggerAssigneeChanged, &is, p)
	}
	return is, nil
}

// ReassignSprint moves the issue into a sprint of its work-list, or to the
// backlog with an empty id. It records the change in the event log but does
// not notify the rule engine.
func (e Engine) ReassignSprint(ctx context.Context, p domain.Principal, id, sprintID string) (domain.Issue, error) {
	is, err := e.loadForChange(ctx, p, id)
	if err != nil {
		return is, err
	}
	old := is.SprintID
	if sprintID == "" {
		is.SprintID = nil
	} else {
		sp, err := e.Repo.GetSprint(ctx, sprintID)
		if err != nil {
			return is, err
		}
		if sp.WorkListID != is.WorkListID {
			return is, InvalidTransitionError{Entity: "issue", ID: is.ID, Reason: "sprint belongs to another work list"}
		}
		is.SprintID = &sp.ID
	}
	is.UpdatedAt = e.stamp()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateIssue(ctx, tx, is); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type:       "issue.sprint_changed",
			WorkListID: is.WorkListID,
			EntityKind: events.KindIssue,
			EntityID:   is.ID,
			ActorID:    p.UserID,
			Payload:    events.Payload{"from": old, "to": is.SprintID},
		})
	})
	return is, err
}

// DeleteIssue detaches every direct sub-issue, persisting each, then removes the issue.
func (e Engine) DeleteIssue(ctx context.Context, p domain.Principal, id string) error {
	is, err := e.loadForChange(ctx, p, id)
	if err != nil {
		return err
	}
	now := e.stamp()
	return e.inTx(ctx, func(tx *sql.Tx) error {
		children, err := e.Repo.ListIssuesTx(ctx, tx, repo.IssueFilters{ParentID: id})
		if err != nil {
			return err
		}
		detached := make([]string, 0, len(children))
		for _, child := range children {
			child.ParentID = nil
			child.UpdatedAt = now
			if err := e.Repo.UpdateIssue(ctx, tx, child); err != nil {
				return fmt.Errorf("detach sub-issue %s: %w", child.ID, err)
			}
			detached = append(detached, child.ID)
		}
		if err := e.Repo.DeleteIssue(ctx, tx, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type:       "issue.deleted",
			WorkListID: is.WorkListID,
			EntityKind: events.KindIssue,
			EntityID:   id,
			ActorID:    p.UserID,
			Payload:    events.Payload{"detached": detached},
		})
	})
}

// GetIssue returns an issue the principal can see: anyone who may modify it,
// or any contributor of its work-list.
func (e Engine) GetIssue(ctx context.Context, p domain.Principal, id string) (domain.Issue, error) {
	is, err := e.Repo.GetIssue(ctx, id)
	if err != nil {
		return is, err
	}
	if !e.Auth.CanContribute(ctx, p, is.WorkListID) && !e.Auth.Issue(ctx, p, id) {
		return domain.Issue{}, auth.PermissionDeniedError{Kind: auth.KindIssue, ID: id}
	}
	return is, nil
}

// ListIssues lists issues matching f. A work-list, sprint or parent filter
// requires contributor access to that work-list; otherwise the principal may
// only list their own assigned or reported issues unless they are an admin.
func (e Engine) ListIssues(ctx context.Context, p domain.Principal, f repo.IssueFilters) ([]domain.Issue, error) {
	switch {
	case f.WorkListID != "":
		if _, err := e.Repo.GetWorkList(ctx, f.WorkListID); err != nil {
			return nil, err
		}
		if err := e.Auth.RequireContributor(ctx, p, f.WorkListID); err != nil {
			return nil, err
		}
	case f.SprintID != "":
		sp, err := e.Repo.GetSprint(ctx, f.SprintID)
		if err != nil {
			return nil, err
		}
		if err := e.Auth.RequireContributor(ctx, p, sp.WorkListID); err != nil {
			return nil, err
		}
	case f.ParentID != "":
		if _, err := e.GetIssue(ctx, p, f.ParentID); err != nil {
			return nil, err
		}
	case p.HasRole(domain.RoleAdmin):
	case f.AssigneeID == p.UserID && p.UserID != "":
	case f.ReporterID == p.UserID && p.UserID != "":
	default:
		return nil, auth.PermissionDeniedError{Kind: auth.KindWorkList, ID: f.WorkListID}
	}
	return e.Repo.ListIssues(ctx, f)
}

// SubIssues lists the direct children of an issue.
func (e Engine) SubIssues(ctx context.Context, p domain.Principal, id string) ([]domain.Issue, error) {
	return e.ListIssues(ctx, p, repo.IssueFilters{ParentID: id})
}

// OverdueIssues lists unfinished issues past their due date. Non-admins must
// name a work-list they contribute to.
func (e Engine) OverdueIssues(ctx context.Context, p domain.Principal, workListID string) ([]domain.Issue, error) {
	if workListID != "" {
		if err := e.Auth.RequireContributor(ctx, p, workListID); err != nil {
			return nil, err
		}
	} else if !p.HasRole(domain.RoleAdmin) {
		return nil, auth.PermissionDeniedError{Kind: auth.KindWorkList}
	}
	all, err := e.Repo.ListOverdueIssues(ctx, e.stamp())
	if err != nil {
		return nil, err
	}
	if workListID == "" {
		return all, nil
	}
	var out []domain.Issue
	for _, is := range all {
		if is.WorkListID == workListID {
			out = append(out, is)
		}
	}
	return out, nil
}
