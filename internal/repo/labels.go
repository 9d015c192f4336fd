package repo

import (
	"context"
	"database/sql"

	"trackline/internal/domain"
)

func (r Repo) InsertLabel(ctx context.Context, tx *sql.Tx, l domain.Label) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO labels(id,work_list_id,name,color) VALUES (?,?,?,?)`,
		l.ID, l.WorkListID, l.Name, nullable(l.Color))
	return err
}

func (r Repo) ListLabels(ctx context.Context, workListID string) ([]domain.Label, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,work_list_id,name,COALESCE(color,'') FROM labels WHERE work_list_id=? ORDER BY name`, workListID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Label
	for rows.Next() {
		var l domain.Label
		if err := rows.Scan(&l.ID, &l.WorkListID, &l.Name, &l.Color); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// LabelsInWorkList reports whether every id names a label of the work-list.
func (r Repo) LabelsInWorkList(ctx context.Context, tx *sql.Tx, workListID string, ids []string) (bool, error) {
	for _, id := range ids {
		var n int
		if err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(1) FROM labels WHERE id=? AND work_list_id=?`, id, workListID).Scan(&n); err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (r Repo) DeleteLabel(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM labels WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "label", id)
}
