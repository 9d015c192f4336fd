package repo

import (
	"context"
	"database/sql"
	"errors"

	"trackline/internal/domain"
)

const workLogColumns = `id,issue_id,user_id,time_spent_seconds,COALESCE(description,''),start_time,created_at`

func scanWorkLog(s scanner) (domain.WorkLog, error) {
	var w domain.WorkLog
	err := s.Scan(&w.ID, &w.IssueID, &w.UserID, &w.TimeSpentSeconds, &w.Description, &w.StartTime, &w.CreatedAt)
	return w, err
}

func (r Repo) InsertWorkLog(ctx context.Context, tx *sql.Tx, w domain.WorkLog) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO work_logs(id,issue_id,user_id,time_spent_seconds,description,start_time,created_at) VALUES (?,?,?,?,?,?,?)`,
		w.ID, w.IssueID, w.UserID, w.TimeSpentSeconds, nullable(w.Description), w.StartTime, w.CreatedAt)
	return err
}

func (r Repo) GetWorkLog(ctx context.Context, id string) (domain.WorkLog, error) {
	return r.GetWorkLogTx(ctx, nil, id)
}

func (r Repo) GetWorkLogTx(ctx context.Context, tx *sql.Tx, id string) (domain.WorkLog, error) {
	w, err := scanWorkLog(r.q(tx).QueryRowContext(ctx, `SELECT `+workLogColumns+` FROM work_logs WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return w, NotFound("work log", id)
	}
	return w, err
}

func (r Repo) UpdateWorkLog(ctx context.Context, tx *sql.Tx, w domain.WorkLog) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE work_logs SET time_spent_seconds=?, description=?, start_time=? WHERE id=?`,
		w.TimeSpentSeconds, nullable(w.Description), w.StartTime, w.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "work log", w.ID)
}

func (r Repo) ListWorkLogs(ctx context.Context, issueID string) ([]domain.WorkLog, error) {
	return r.queryWorkLogs(ctx, `SELECT `+workLogColumns+` FROM work_logs WHERE issue_id=? ORDER BY start_time, id`, issueID)
}

// ListWorkLogsByUser returns a user's logs whose start time falls in [from, to).
// Empty bounds are open.
func (r Repo) ListWorkLogsByUser(ctx context.Context, userID, from, to string) ([]domain.WorkLog, error) {
	where, args := userPeriod(userID, from, to)
	return r.queryWorkLogs(ctx, `SELECT `+workLogColumns+` FROM work_logs WHERE `+where+` ORDER BY start_time, id`, args...)
}

// UserTimeSpent sums a user's logged seconds in [from, to).
func (r Repo) UserTimeSpent(ctx context.Context, userID, from, to string) (int64, error) {
	where, args := userPeriod(userID, from, to)
	var total int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(time_spent_seconds),0) FROM work_logs WHERE `+where, args...).Scan(&total)
	return total, err
}

func userPeriod(userID, from, to string) (string, []any) {
	where := `user_id=?`
	args := []any{userID}
	if from != "" {
		where += ` AND start_time >= ?`
		args = append(args, from)
	}
	if to != "" {
		where += ` AND start_time < ?`
		args = append(args, to)
	}
	return where, args
}

func (r Repo) queryWorkLogs(ctx context.Context, query string, args ...any) ([]domain.WorkLog, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkLog
	for rows.Next() {
		w, err := scanWorkLog(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// TotalTimeSpent sums the logged seconds for an issue.
func (r Repo) TotalTimeSpent(ctx context.Context, issueID string) (int64, error) {
	var total int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(time_spent_seconds),0) FROM work_logs WHERE issue_id=?`, issueID).Scan(&total)
	return total, err
}

func (r Repo) DeleteWorkLog(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM work_logs WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "work log", id)
}
