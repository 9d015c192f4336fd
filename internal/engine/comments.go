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

// AddComment appends a comment by the principal and emits ISSUE_COMMENTED.
// Anyone who can see the issue may comment.
func (e Engine) AddComment(ctx context.Context, p domain.Principal, issueID, body string) (domain.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Comment{}, invalid("body", "required")
	}
	is, err := e.GetIssue(ctx, p, issueID)
	if err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:        uuid.NewString(),
		IssueID:   is.ID,
		AuthorID:  p.UserID,
		Body:      body,
		CreatedAt: e.stamp(),
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertComment(ctx, tx, c); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type:       "issue.commented",
			WorkListID: is.WorkListID,
			EntityKind: events.KindComment,
			EntityID:   c.ID,
			ActorID:    p.UserID,
			Payload:    events.Payload{"issue_id": is.ID},
		})
	})
	if err != nil {
		return domain.Comment{}, err
	}
	e.emit(ctx, domain.TriggerIssueCommented, &is, p)
	return c, nil
}

func (e Engine) ListComments(ctx context.Context, p domain.Principal, issueID string) ([]domain.Comment, error) {
	if _, err := e.GetIssue(ctx, p, issueID); err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, issueID)
}

// DeleteComment is allowed to the author and to anyone who may modify the issue.
func (e Engine) DeleteComment(ctx context.Context, p domain.Principal, id string) error {
	c, err := e.Repo.GetComment(ctx, id)
	if err != nil {
		return err
	}
	if !e.Auth.Comment(ctx, p, id) && !e.Auth.Issue(ctx, p, c.IssueID) {
		return auth.PermissionDeniedError{Kind: auth.KindComment, ID: id}
	}
	is, err := e.Repo.GetIssue(ctx, c.IssueID)
	if err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteComment(ctx, tx, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type:       "comment.deleted",
			WorkListID: is.WorkListID,
			EntityKind: events.KindComment,
			EntityID:   id,
			ActorID:    p.UserID,
			Payload:    events.Payload{"issue_id": is.ID},
		})
	})
}
