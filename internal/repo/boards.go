package repo

import (
	"context"
	"database/sql"
	"errors"

	"trackline/internal/domain"
)

// InsertBoard stores a board and its columns.
func (r Repo) InsertBoard(ctx context.Context, tx *sql.Tx, b domain.Board) error {
	q := r.q(tx)
	if _, err := q.ExecContext(ctx, `INSERT INTO boards(id,work_list_id,name,created_at) VALUES (?,?,?,?)`,
		b.ID, b.WorkListID, b.Name, b.CreatedAt); err != nil {
		return err
	}
	for _, c := range b.Columns {
		if _, err := q.ExecContext(ctx, `INSERT INTO board_columns(id,board_id,name,status,position) VALUES (?,?,?,?,?)`,
			c.ID, b.ID, c.Name, string(c.Status), c.Position); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	return r.GetBoardTx(ctx, nil, id)
}

func (r Repo) GetBoardTx(ctx context.Context, tx *sql.Tx, id string) (domain.Board, error) {
	q := r.q(tx)
	var b domain.Board
	err := q.QueryRowContext(ctx, `SELECT id,work_list_id,name,created_at FROM boards WHERE id=?`, id).
		Scan(&b.ID, &b.WorkListID, &b.Name, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, NotFound("board", id)
	}
	if err != nil {
		return b, err
	}
	rows, err := q.QueryContext(ctx, `SELECT id,name,status,position FROM board_columns WHERE board_id=? ORDER BY position, id`, id)
	if err != nil {
		return b, err
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.BoardColumn
		var status string
		if err := rows.Scan(&c.ID, &c.Name, &status, &c.Position); err != nil {
			return b, err
		}
		c.Status = domain.IssueStatus(status)
		b.Columns = append(b.Columns, c)
	}
	return b, rows.Err()
}

func (r Repo) ListBoards(ctx context.Context, workListID string) ([]domain.Board, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM boards WHERE work_list_id=? ORDER BY created_at, id`, workListID)
	if err != nil {
		return nil, err
	}
	ids, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	res := make([]domain.Board, 0, len(ids))
	for _, id := range ids {
		b, err := r.GetBoard(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, nil
}

func (r Repo) DeleteBoard(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM boards WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "board", id)
}
