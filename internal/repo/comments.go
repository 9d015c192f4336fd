package repo

import (
	"context"
	"database/sql"
	"errors"

	"trackline/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO comments(id,issue_id,author_id,body,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.IssueID, c.AuthorID, c.Body, c.CreatedAt)
	return err
}

func (r Repo) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	return r.GetCommentTx(ctx, nil, id)
}

func (r Repo) GetCommentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Comment, error) {
	var c domain.Comment
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,issue_id,author_id,body,created_at FROM comments WHERE id=?`, id).
		Scan(&c.ID, &c.IssueID, &c.AuthorID, &c.Body, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, NotFound("comment", id)
	}
	return c, err
}

func (r Repo) ListComments(ctx context.Context, issueID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,issue_id,author_id,body,created_at FROM comments WHERE issue_id=? ORDER BY created_at, id`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.IssueID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) DeleteComment(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM comments WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "comment", id)
}
