package repo

import (
	"context"
	"database/sql"
	"errors"

	"trackline/internal/domain"
)

const attachmentColumns = `id,issue_id,uploader_id,file_name,COALESCE(content_type,''),size_bytes,COALESCE(storage_key,''),created_at`

func scanAttachment(s scanner) (domain.Attachment, error) {
	var a domain.Attachment
	err := s.Scan(&a.ID, &a.IssueID, &a.UploaderID, &a.FileName, &a.ContentType, &a.SizeBytes, &a.StorageKey, &a.CreatedAt)
	return a, err
}

func (r Repo) InsertAttachment(ctx context.Context, tx *sql.Tx, a domain.Attachment) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO attachments(id,issue_id,uploader_id,file_name,content_type,size_bytes,storage_key,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.IssueID, a.UploaderID, a.FileName, nullable(a.ContentType), a.SizeBytes, nullable(a.StorageKey), a.CreatedAt)
	return err
}

func (r Repo) GetAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	return r.GetAttachmentTx(ctx, nil, id)
}

func (r Repo) GetAttachmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Attachment, error) {
	a, err := scanAttachment(r.q(tx).QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return a, NotFound("attachment", id)
	}
	return a, err
}

func (r Repo) ListAttachments(ctx context.Context, issueID string) ([]domain.Attachment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE issue_id=? ORDER BY created_at, id`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAttachment(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM attachments WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "attachment", id)
}
