package repo

import (
	"context"
	"database/sql"
	"errors"

	"trackline/internal/domain"
)

const sprintColumns = `id,work_list_id,name,COALESCE(goal,''),status,start_date,end_date,created_at,updated_at`

func scanSprint(s scanner) (domain.Sprint, error) {
	var sp domain.Sprint
	var status string
	var start, end sql.NullString
	if err := s.Scan(&sp.ID, &sp.WorkListID, &sp.Name, &sp.Goal, &status, &start, &end, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
		return sp, err
	}
	sp.Status = domain.SprintStatus(status)
	sp.StartDate = stringPtr(start)
	sp.EndDate = stringPtr(end)
	return sp, nil
}

func (r Repo) InsertSprint(ctx context.Context, tx *sql.Tx, sp domain.Sprint) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO sprints(id,work_list_id,name,goal,status,start_date,end_date,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		sp.ID, sp.WorkListID, sp.Name, nullable(sp.Goal), string(sp.Status),
		nullableStringPtr(sp.StartDate), nullableStringPtr(sp.EndDate), sp.CreatedAt, sp.UpdatedAt)
	return err
}

func (r Repo) UpdateSprint(ctx context.Context, tx *sql.Tx, sp domain.Sprint) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE sprints SET name=?, goal=?, status=?, start_date=?, end_date=?, updated_at=? WHERE id=?`,
		sp.Name, nullable(sp.Goal), string(sp.Status), nullableStringPtr(sp.StartDate), nullableStringPtr(sp.EndDate), sp.UpdatedAt, sp.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "sprint", sp.ID)
}

func (r Repo) GetSprint(ctx context.Context, id string) (domain.Sprint, error) {
	return r.GetSprintTx(ctx, nil, id)
}

func (r Repo) GetSprintTx(ctx context.Context, tx *sql.Tx, id string) (domain.Sprint, error) {
	sp, err := scanSprint(r.q(tx).QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return sp, NotFound("sprint", id)
	}
	return sp, err
}

// ActiveSprintTx returns the ACTIVE sprint of a work-list, or ErrNotFound.
func (r Repo) ActiveSprintTx(ctx context.Context, tx *sql.Tx, workListID string) (domain.Sprint, error) {
	sp, err := scanSprint(r.q(tx).QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE work_list_id=? AND status=? LIMIT 1`,
		workListID, string(domain.SprintActive)))
	if errors.Is(err, sql.ErrNoRows) {
		return sp, ErrNotFound
	}
	return sp, err
}

// ListSprints lists sprints, optionally narrowed to one work-list and status.
func (r Repo) ListSprints(ctx context.Context, workListID string, status domain.SprintStatus) ([]domain.Sprint, error) {
	query := `SELECT ` + sprintColumns + ` FROM sprints WHERE 1=1`
	var args []any
	if workListID != "" {
		query += ` AND work_list_id=?`
		args = append(args, workListID)
	}
	if status != "" {
		query += ` AND status=?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sprint
	for rows.Next() {
		sp, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sp)
	}
	return res, rows.Err()
}

func (r Repo) DeleteSprint(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM sprints WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "sprint", id)
}

// ClearSprint moves every issue of sprintID back to the backlog.
func (r Repo) ClearSprint(ctx context.Context, tx *sql.Tx, sprintID, updatedAt string) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE issues SET sprint_id=NULL, updated_at=? WHERE sprint_id=?`, updatedAt, sprintID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
