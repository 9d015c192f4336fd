package engine

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"trackline/internal/domain"
	"trackline/internal/engine/auth"
	"trackline/internal/events"
)

type AttachmentOptions struct {
	IssueID     string
	FileName    string
	ContentType string
	SizeBytes   int64
	StorageKey  string
}

// AddAttachment records attachment metadata. File contents live elsewhere;
// StorageKey points at them.
func (e Engine) AddAttachment(ctx context.Context, p domain.Principal, opts AttachmentOptions) (domain.Attachment, error) {
	name := path.Base(strings.TrimSpace(opts.FileName))
	if name == "" || name == "." || name == "/" {
		return domain.Attachment{}, invalid("file_name", "required")
	}
	if opts.SizeBytes < 0 {
		return domain.Attachment{}, invalid("size_bytes", "must not be negative")
	}
	is, err := e.GetIssue(ctx, p, opts.IssueID)
	if err != nil {
		return domain.Attachment{}, err
	}
	a := domain.Attachment{
		ID:          uuid.NewString(),
		IssueID:     is.ID,
		UploaderID:  p.UserID,
		FileName:    name,
		ContentType: opts.ContentType,
		SizeBytes:   opts.SizeBytes,
		StorageKey:  opts.StorageKey,
		CreatedAt:   e.stamp(),
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertAttachment(ctx, tx, a); err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type: "attachment.added", WorkListID: is.WorkListID, EntityKind: events.KindAttach, EntityID: a.ID,
			ActorID: p.UserID, Payload: events.Payload{"issue_id": is.ID, "file_name": a.FileName},
		})
	})
	return a, err
}

func (e Engine) ListAttachments(ctx context.Context, p domain.Principal, issueID string) ([]domain.Attachment, error) {
	if _, err := e.GetIssue(ctx, p, issueID); err != nil {
		return nil, err
	}
	return e.Repo.ListAttachments(ctx, issueID)
}

// DeleteAttachment is allowed to the uploader and the work-list managers.
func (e Engine) DeleteAttachment(ctx context.Context, p domain.Principal, id string) error {
	a, err := e.Repo.GetAttachment(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Auth.Require(ctx, p, auth.KindAttach, id); err != nil {
		return err
	}
	is, err := e.Repo.GetIssue(ctx, a.IssueID)
	if err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteAttachment(ctx, tx, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type: "attachment.deleted", WorkListID: is.WorkListID, EntityKind: events.KindAttach, EntityID: id,
			ActorID: p.UserID, Payload: events.Payload{"issue_id": is.ID},
		})
	})
}
