package repo

import (
	"context"
	"database/sql"

	"trackline/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO notifications(id,user_id,issue_id,kind,message,link,is_read,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, nullableStringPtr(n.IssueID), n.Kind, n.Message, nullable(n.Link), boolInt(n.Read), n.CreatedAt)
	return err
}

// ListNotifications returns a user's notifications, newest first.
func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT id,user_id,issue_id,kind,message,COALESCE(link,''),is_read,created_at FROM notifications WHERE user_id=?`
	if unreadOnly {
		query += ` AND is_read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var issue sql.NullString
		var read int
		if err := rows.Scan(&n.ID, &n.UserID, &issue, &n.Kind, &n.Message, &n.Link, &read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.IssueID = stringPtr(issue)
		n.Read = read != 0
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM notifications WHERE user_id=? AND is_read=0`, userID).Scan(&n)
	return n, err
}

// HasUnreadNotification reports whether the user already has an unread notification of kind for the issue.
func (r Repo) HasUnreadNotification(ctx context.Context, userID, issueID, kind string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM notifications WHERE user_id=? AND issue_id=? AND kind=? AND is_read=0`,
		userID, issueID, kind).Scan(&n)
	return n > 0, err
}

// MarkNotificationRead marks one of the user's notifications read.
func (r Repo) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "notification", id)
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET is_read=1 WHERE user_id=? AND is_read=0`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) DeleteNotification(ctx context.Context, userID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM notifications WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "notification", id)
}
