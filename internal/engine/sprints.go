package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/engine/auth"
	"trackline/internal/events"
	"trackline/internal/repo"
)

type SprintCreateOptions struct {
	WorkListID string
	Name       string
	Goal       string
	StartDate  string
	EndDate    string
}

type SprintUpdate struct {
	Name      *string
	Goal      *string
	StartDate Patch[string]
	EndDate   Patch[string]
}

func optionalDate(field, v string) (*string, error) {
	if v == "" {
		return nil, nil
	}
	d, err := ParseDueDate(v)
	if err != nil {
		return nil, invalid(field, fmt.Sprintf("unrecognized date %q", v))
	}
	return &d, nil
}

func checkWindow(start, end *string) error {
	if start != nil && end != nil && *end < *start {
		return invalid("end_date", "must not be before start_date")
	}
	return nil
}

// CreateSprint creates a PLANNING sprint. Work-list managers only.
func (e Engine) CreateSprint(ctx context.Context, p domain.Principal, opts SprintCreateOptions) (domain.Sprint, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Sprint{}, invalid("name", "required")
	}
	start, err := optionalDate("start_date", opts.StartDate)
	if err != nil {
		return domain.Sprint{}, err
	}
	end, err := optionalDate("end_date", opts.EndDate)
	if err != nil {
		return domain.Sprint{}, err
	}
	if err := checkWindow(start, end); err != nil {
		return domain.Sprint{}, err
	}
	if _, err := e.Repo.GetWorkList(ctx, opts.WorkListID); err != nil {
		return domain.Sprint{}, err
	}
	if err := e.Auth.Require(ctx, p, auth.KindWorkList, opts.WorkListID); err != nil {
		return domain.Sprint{}, err
	}
	now := e.stamp()
	sp := domain.Sprint{
		ID:         uuid.NewString(),
		WorkListID: opts.WorkListID,
		Name:       name,
		Goal:       opts.Goal,
		Status:     domain.SprintPlanning,
		StartDate:  start,
		EndDate:    end,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertSprint(ctx, tx, sp); err != nil {
			return fmt.Errorf("insert sprint: %w", err)
		}
		return e.sprintEvent(ctx, tx, "sprint.created", sp, p, events.Payload{"name": sp.Name})
	})
	return sp, err
}

func (e Engine) sprintEvent(ctx context.Context, tx *sql.Tx, typ string, sp domain.Sprint, p domain.Principal, payload events.Payload) error {
	return e.appendEvent(ctx, tx, events.Record{
		Type:       typ,
		WorkListID: sp.WorkListID,
		EntityKind: events.KindSprint,
		EntityID:   sp.ID,
		ActorID:    p.UserID,
		Payload:    payload,
	})
}

func (e Engine) loadSprintForChange(ctx context.Context, p domain.Principal, id string) (domain.Sprint, error) {
	sp, err := e.Repo.GetSprint(ctx, id)
	if err != nil {
		return sp, err
	}
	if err := e.Auth.Require(ctx, p, auth.KindSprint, id); err != nil {
		return sp, err
	}
	return sp, nil
}

func (e Engine) UpdateSprint(ctx context.Context, p domain.Principal, id string, u SprintUpdate) (domain.Sprint, error) {
	sp, err := e.loadSprintForChange(ctx, p, id)
	if err != nil {
		return sp, err
	}
	if u.Name != nil {
		n := strings.TrimSpace(*u.Name)
		if n == "" {
			return sp, invalid("name", "must not be empty")
		}
		sp.Name = n
	}
	if u.Goal != nil {
		sp.Goal = *u.Goal
	}
	if u.StartDate.Set {
		if sp.StartDate, err = optionalDate("start_date", u.StartDate.Value); err != nil {
			return sp, err
		}
	}
	if u.EndDate.Set {
		if sp.EndDate, err = optionalDate("end_date", u.EndDate.Value); err != nil {
			return sp, err
		}
	}
	if err := checkWindow(sp.StartDate, sp.EndDate); err != nil {
		return sp, err
	}
	sp.UpdatedAt = e.stamp()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateSprint(ctx, tx, sp); err != nil {
			return err
		}
		return e.sprintEvent(ctx, tx, "sprint.updated", sp, p, nil)
	})
	return sp, err
}

// StartSprint activates a sprint. It fails with InvalidTransitionError when
// any sprint of the work-list is already ACTIVE. The check and the write share
// one immediate transaction, and the single-active index rejects whatever
// slips past, so concurrent starts leave exactly one winner.
func (e Engine) StartSprint(ctx context.Context, p domain.Principal, id, startDate, endDate string) (domain.Sprint, error) {
	start, err := optionalDate("start_date", startDate)
	if err != nil {
		return domain.Sprint{}, err
	}
	end, err := optionalDate("end_date", endDate)
	if err != nil {
		return domain.Sprint{}, err
	}
	if err := checkWindow(start, end); err != nil {
		return domain.Sprint{}, err
	}
	if _, err := e.loadSprintForChange(ctx, p, id); err != nil {
		return domain.Sprint{}, err
	}
	var started domain.Sprint
	err = db.WithRetry(ctx, func() error {
		return e.inTx(ctx, func(tx *sql.Tx) error {
			sp, err := e.Repo.GetSprintTx(ctx, tx, id)
			if err != nil {
				return err
			}
			active, err := e.Repo.ActiveSprintTx(ctx, tx, sp.WorkListID)
			switch {
			case err == nil:
				reason := "work list already has an active sprint"
				if active.ID == sp.ID {
					reason = "sprint is already active"
				}
				return InvalidTransitionError{Entity: "sprint", ID: id, Reason: reason}
			case !errors.Is(err, repo.ErrNotFound):
				return err
			}
			from := sp.Status
			sp.Status = domain.SprintActive
			sp.StartDate = start
			sp.EndDate = end
			sp.UpdatedAt = e.stamp()
			if err := e.Repo.UpdateSprint(ctx, tx, sp); err != nil {
				if db.IsUniqueViolation(err) {
					return InvalidTransitionError{Entity: "sprint", ID: id, Reason: "work list already has an active sprint"}
				}
				return err
			}
			if err := e.sprintEvent(ctx, tx, "sprint.started", sp, p, events.Payload{
				"trigger": domain.TriggerSprintStarted, "from": from, "start_date": start, "end_date": end,
			}); err != nil {
				return err
			}
			started = sp
			return nil
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.Sprint{}, InvalidTransitionError{Entity: "sprint", ID: id, Reason: "work list already has an active sprint"}
		}
		return domain.Sprint{}, err
	}
	return started, nil
}

// CompleteSprint moves an ACTIVE sprint to COMPLETED. Open issues stay in it.
func (e Engine) CompleteSprint(ctx context.Context, p domain.Principal, id string) (domain.Sprint, error) {
	sp, err := e.loadSprintForChange(ctx, p, id)
	if err != nil {
		return sp, err
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetSprintTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != domain.SprintActive {
			return InvalidTransitionError{Entity: "sprint", ID: id, Reason: fmt.Sprintf("only active sprints can be completed (status %s)", cur.Status)}
		}
		cur.Status = domain.SprintCompleted
		cur.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateSprint(ctx, tx, cur); err != nil {
			return err
		}
		sp = cur
		return e.sprintEvent(ctx, tx, "sprint.completed", cur, p, events.Payload{"trigger": domain.TriggerSprintCompleted})
	})
	return sp, err
}

// CancelSprint moves a PLANNING or ACTIVE sprint to CANCELLED.
func (e Engine) CancelSprint(ctx context.Context, p domain.Principal, id string) (domain.Sprint, error) {
	sp, err := e.loadSprintForChange(ctx, p, id)
	if err != nil {
		return sp, err
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := e.Repo.GetSprintTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != domain.SprintPlanning && cur.Status != domain.SprintActive {
			return InvalidTransitionError{Entity: "sprint", ID: id, Reason: fmt.Sprintf("cannot cancel a %s sprint", cur.Status)}
		}
		from := cur.Status
		cur.Status = domain.SprintCancelled
		cur.UpdatedAt = e.stamp()
		if err := e.Repo.UpdateSprint(ctx, tx, cur); err != nil {
			return err
		}
		sp = cur
		return e.sprintEvent(ctx, tx, "sprint.cancelled", cur, p, events.Payload{"from": from})
	})
	return sp, err
}

// AddIssueToSprint requires the principal to manage the sprint and modify the issue.
func (e Engine) AddIssueToSprint(ctx context.Context, p domain.Principal, sprintID, issueID string) (domain.Issue, error) {
	sp, is, err := e.sprintAndIssue(ctx, p, sprintID, issueID)
	if err != nil {
		return is, err
	}
	if is.WorkListID != sp.WorkListID {
		return is, InvalidTransitionError{Entity: "sprint", ID: sp.ID, Reason: "issue must belong to the same work list as the sprint"}
	}
	is.SprintID = &sp.ID
	is.UpdatedAt = e.stamp()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateIssue(ctx, tx, is); err != nil {
			return err
		}
		return e.sprintEvent(ctx, tx, "sprint.issue_added", sp, p, events.Payload{"issue_id": is.ID})
	})
	return is, err
}

// RemoveIssueFromSprint fails when the issue is not in the given sprint.
func (e Engine) RemoveIssueFromSprint(ctx context.Context, p domain.Principal, sprintID, issueID string) (domain.Issue, error) {
	sp, is, err := e.sprintAndIssue(ctx, p, sprintID, issueID)
	if err != nil {
		return is, err
	}
	if is.WorkListID != sp.WorkListID {
		return is, InvalidTransitionError{Entity: "sprint", ID: sp.ID, Reason: "issue must belong to the same work list as the sprint"}
	}
	if is.SprintID == nil || *is.SprintID != sp.ID {
		return is, InvalidTransitionError{Entity: "sprint", ID: sp.ID, Reason: "issue is not in the specified sprint"}
	}
	is.SprintID = nil
	is.UpdatedAt = e.stamp()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateIssue(ctx, tx, is); err != nil {
			return err
		}
		return e.sprintEvent(ctx, tx, "sprint.issue_removed", sp, p, events.Payload{"issue_id": is.ID})
	})
	return is, err
}

func (e Engine) sprintAndIssue(ctx context.Context, p domain.Principal, sprintID, issueID string) (domain.Sprint, domain.Issue, error) {
	sp, err := e.Repo.GetSprint(ctx, sprintID)
	if err != nil {
		return sp, domain.Issue{}, err
	}
	is, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return sp, is, err
	}
	if err := e.Auth.Require(ctx, p, auth.KindSprint, sprintID); err != nil {
		return sp, is, err
	}
	if err := e.Auth.Require(ctx, p, auth.KindIssue, issueID); err != nil {
		return sp, is, err
	}
	return sp, is, nil
}

// DeleteSprint removes a sprint; its issues return to the backlog.
func (e Engine) DeleteSprint(ctx context.Context, p domain.Principal, id string) error {
	sp, err := e.loadSprintForChange(ctx, p, id)
	if err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		moved, err := e.Repo.ClearSprint(ctx, tx, id, e.stamp())
		if err != nil {
			return err
		}
		if err := e.Repo.DeleteSprint(ctx, tx, id); err != nil {
			return err
		}
		return e.sprintEvent(ctx, tx, "sprint.deleted", sp, p, events.Payload{"issues_moved_to_backlog": moved})
	})
}

func (e Engine) GetSprint(ctx context.Context, p domain.Principal, id string) (domain.Sprint, error) {
	sp, err := e.Repo.GetSprint(ctx, id)
	if err != nil {
		return sp, err
	}
	if err := e.Auth.RequireContributor(ctx, p, sp.WorkListID); err != nil {
		return domain.Sprint{}, err
	}
	return sp, nil
}

// ListSprints lists a work-list's sprints, or only its active one.
func (e Engine) ListSprints(ctx context.Context, p domain.Principal, workListID string, activeOnly bool) ([]domain.Sprint, error) {
	if _, err := e.Repo.GetWorkList(ctx, workListID); err != nil {
		return nil, err
	}
	if err := e.Auth.RequireContributor(ctx, p, workListID); err != nil {
		return nil, err
	}
	var status domain.SprintStatus
	if activeOnly {
		status = domain.SprintActive
	}
	return e.Repo.ListSprints(ctx, workListID, status)
}
