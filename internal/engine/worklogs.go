package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"trackline/internal/domain"
	"trackline/internal/engine/auth"
	"trackline/internal/events"
)

type WorkLogOptions struct {
	IssueID          string
	TimeSpentSeconds int64
	Description      string
	// StartTime defaults to now.
	StartTime string
}

type WorkLogUpdate struct {
	TimeSpentSeconds *int64
	Description      *string
	StartTime        *string
}

// LogWork records time spent by the principal on an issue. Contributors of
// the issue's work-list may log.
func (e Engine) LogWork(ctx context.Context, p domain.Principal, opts WorkLogOptions) (domain.WorkLog, error) {
	if opts.TimeSpentSeconds <= 0 {
		return domain.WorkLog{}, invalid("time_spent_seconds", "must be positive")
	}
	start := e.stamp()
	if d, err := optionalDate("start_time", strings.TrimSpace(opts.StartTime)); err != nil {
		return domain.WorkLog{}, err
	} else if d != nil {
		start = *d
	}
	is, err := e.GetIssue(ctx, p, opts.IssueID)
	if err != nil {
		return domain.WorkLog{}, err
	}
	w := domain.WorkLog{
		ID:               uuid.NewString(),
		IssueID:          is.ID,
		UserID:           p.UserID,
		TimeSpentSeconds: opts.TimeSpentSeconds,
		Description:      opts.Description,
		StartTime:        start,
		CreatedAt:        e.stamp(),
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertWorkLog(ctx, tx, w); err != nil {
			return fmt.Errorf("insert work log: %w", err)
		}
		return e.workLogEvent(ctx, tx, "work_log.added", is.WorkListID, w, p)
	})
	return w, err
}

func (e Engine) workLogEvent(ctx context.Context, tx *sql.Tx, typ, workListID string, w domain.WorkLog, p domain.Principal) error {
	return e.appendEvent(ctx, tx, events.Record{
		Type:       typ,
		WorkListID: workListID,
		EntityKind: events.KindWorkLog,
		EntityID:   w.ID,
		ActorID:    p.UserID,
		Payload:    events.Payload{"issue_id": w.IssueID, "seconds": w.TimeSpentSeconds},
	})
}

func (e Engine) loadWorkLogForChange(ctx context.Context, p domain.Principal, id string) (domain.WorkLog, domain.Issue, error) {
	w, err := e.Repo.GetWorkLog(ctx, id)
	if err != nil {
		return w, domain.Issue{}, err
	}
	if err := e.Auth.Require(ctx, p, auth.KindWorkLog, id); err != nil {
		return w, domain.Issue{}, err
	}
	is, err := e.Repo.GetIssue(ctx, w.IssueID)
	return w, is, err
}

func (e Engine) UpdateWorkLog(ctx context.Context, p domain.Principal, id string, u WorkLogUpdate) (domain.WorkLog, error) {
	w, is, err := e.loadWorkLogForChange(ctx, p, id)
	if err != nil {
		return w, err
	}
	if u.TimeSpentSeconds != nil {
		if *u.TimeSpentSeconds <= 0 {
			return w, invalid("time_spent_seconds", "must be positive")
		}
		w.TimeSpentSeconds = *u.TimeSpentSeconds
	}
	if u.Description != nil {
		w.Description = *u.Description
	}
	if u.StartTime != nil {
		d, err := optionalDate("start_time", strings.TrimSpace(*u.StartTime))
		if err != nil {
			return w, err
		}
		if d != nil {
			w.StartTime = *d
		}
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateWorkLog(ctx, tx, w); err != nil {
			return err
		}
		return e.workLogEvent(ctx, tx, "work_log.updated", is.WorkListID, w, p)
	})
	return w, err
}

func (e Engine) DeleteWorkLog(ctx context.Context, p domain.Principal, id string) error {
	w, is, err := e.loadWorkLogForChange(ctx, p, id)
	if err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteWorkLog(ctx, tx, id); err != nil {
			return err
		}
		return e.workLogEvent(ctx, tx, "work_log.deleted", is.WorkListID, w, p)
	})
}

func (e Engine) ListWorkLogs(ctx context.Context, p domain.Principal, issueID string) ([]domain.WorkLog, error) {
	if _, err := e.GetIssue(ctx, p, issueID); err != nil {
		return nil, err
	}
	return e.Repo.ListWorkLogs(ctx, issueID)
}

// IssueTimeSpent sums the seconds logged on an issue.
func (e Engine) IssueTimeSpent(ctx context.Context, p domain.Principal, issueID string) (int64, error) {
	if _, err := e.GetIssue(ctx, p, issueID); err != nil {
		return 0, err
	}
	return e.Repo.TotalTimeSpent(ctx, issueID)
}

// ListUserWorkLogs returns a user's logs in [from, to). Users read their own,
// admins anyone's.
func (e Engine) ListUserWorkLogs(ctx context.Context, p domain.Principal, userID, from, to string) ([]domain.WorkLog, error) {
	from, to, err := e.userPeriod(p, userID, from, to)
	if err != nil {
		return nil, err
	}
	return e.Repo.ListWorkLogsByUser(ctx, userID, from, to)
}

func (e Engine) UserTimeSpent(ctx context.Context, p domain.Principal, userID, from, to string) (int64, error) {
	from, to, err := e.userPeriod(p, userID, from, to)
	if err != nil {
		return 0, err
	}
	return e.Repo.UserTimeSpent(ctx, userID, from, to)
}

func (e Engine) userPeriod(p domain.Principal, userID, from, to string) (string, string, error) {
	if p.UserID == "" || (userID != p.UserID && !p.HasRole(domain.RoleAdmin)) {
		return "", "", auth.PermissionDeniedError{Kind: auth.KindWorkLog, ID: userID}
	}
	f, err := optionalDate("from", from)
	if err != nil {
		return "", "", err
	}
	t, err := optionalDate("to", to)
	if err != nil {
		return "", "", err
	}
	if err := checkWindow(f, t); err != nil {
		return "", "", err
	}
	from, to = "", ""
	if f != nil {
		from = *f
	}
	if t != nil {
		to = *t
	}
	return from, to, nil
}
