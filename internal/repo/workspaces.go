package repo

import (
	"context"
	"database/sql"
	"errors"

	"trackline/internal/domain"
)

func (r Repo) InsertWorkspace(ctx context.Context, tx *sql.Tx, w domain.Workspace) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO workspaces(id,name,description,owner_id,created_at) VALUES (?,?,?,?,?)`,
		w.ID, w.Name, nullable(w.Description), w.OwnerID, w.CreatedAt)
	return err
}

func (r Repo) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	return r.GetWorkspaceTx(ctx, nil, id)
}

func (r Repo) GetWorkspaceTx(ctx context.Context, tx *sql.Tx, id string) (domain.Workspace, error) {
	var w domain.Workspace
	err := r.q(tx).QueryRowContext(ctx, `SELECT id,name,COALESCE(description,''),owner_id,created_at FROM workspaces WHERE id=?`, id).
		Scan(&w.ID, &w.Name, &w.Description, &w.OwnerID, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return w, NotFound("workspace", id)
	}
	return w, err
}

func (r Repo) ListWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),owner_id,created_at FROM workspaces ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workspace
	for rows.Next() {
		var w domain.Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.OwnerID, &w.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) UpdateWorkspace(ctx context.Context, tx *sql.Tx, w domain.Workspace) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE workspaces SET name=?, description=? WHERE id=?`, w.Name, nullable(w.Description), w.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "workspace", w.ID)
}

func (r Repo) DeleteWorkspace(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM workspaces WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "workspace", id)
}

func (r Repo) InsertWorkList(ctx context.Context, tx *sql.Tx, wl domain.WorkList) error {
	q := r.q(tx)
	_, err := q.ExecContext(ctx, `INSERT INTO work_lists(id,workspace_id,name,description,lead_id,created_at) VALUES (?,?,?,?,?,?)`,
		wl.ID, wl.WorkspaceID, wl.Name, nullable(wl.Description), nullableStringPtr(wl.LeadID), wl.CreatedAt)
	if err != nil {
		return err
	}
	for _, m := range wl.MemberIDs {
		if err := r.AddWorkListMember(ctx, tx, wl.ID, m); err != nil {
			return err
		}
	}
	return nil
}

const workListColumns = `id,workspace_id,name,COALESCE(description,''),lead_id,created_at`

func scanWorkList(s scanner) (domain.WorkList, error) {
	var wl domain.WorkList
	var lead sql.NullString
	if err := s.Scan(&wl.ID, &wl.WorkspaceID, &wl.Name, &wl.Description, &lead, &wl.CreatedAt); err != nil {
		return wl, err
	}
	wl.LeadID = stringPtr(lead)
	return wl, nil
}

// GetWorkList loads a work-list including its member ids.
func (r Repo) GetWorkList(ctx context.Context, id string) (domain.WorkList, error) {
	return r.GetWorkListTx(ctx, nil, id)
}

func (r Repo) GetWorkListTx(ctx context.Context, tx *sql.Tx, id string) (domain.WorkList, error) {
	q := r.q(tx)
	wl, err := scanWorkList(q.QueryRowContext(ctx, `SELECT `+workListColumns+` FROM work_lists WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return wl, NotFound("work list", id)
	}
	if err != nil {
		return wl, err
	}
	rows, err := q.QueryContext(ctx, `SELECT user_id FROM work_list_members WHERE work_list_id=? ORDER BY user_id`, id)
	if err != nil {
		return wl, err
	}
	members, err := scanStrings(rows)
	if err != nil {
		return wl, err
	}
	wl.MemberIDs = members
	return wl, nil
}

func (r Repo) ListWorkLists(ctx context.Context, workspaceID string) ([]domain.WorkList, error) {
	query := `SELECT ` + workListColumns + ` FROM work_lists`
	var args []any
	if workspaceID != "" {
		query += ` WHERE workspace_id=?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkList
	for rows.Next() {
		wl, err := scanWorkList(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, wl)
	}
	return res, rows.Err()
}

func (r Repo) UpdateWorkList(ctx context.Context, tx *sql.Tx, wl domain.WorkList) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE work_lists SET name=?, description=?, lead_id=? WHERE id=?`,
		wl.Name, nullable(wl.Description), nullableStringPtr(wl.LeadID), wl.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "work list", wl.ID)
}

func (r Repo) DeleteWorkList(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM work_lists WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "work list", id)
}

func (r Repo) AddWorkListMember(ctx context.Context, tx *sql.Tx, workListID, userID string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO work_list_members(work_list_id,user_id) VALUES (?,?)`, workListID, userID)
	return err
}

func (r Repo) RemoveWorkListMember(ctx context.Context, tx *sql.Tx, workListID, userID string) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM work_list_members WHERE work_list_id=? AND user_id=?`, workListID, userID)
	return err
}
