package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"trackline/internal/domain"
)

const issueColumns = `id,work_list_id,title,COALESCE(description,''),type,priority,status,reporter_id,assignee_id,parent_id,sprint_id,due_date,estimated_hours,story_points,created_at,updated_at`

func scanIssue(s scanner) (domain.Issue, error) {
	var is domain.Issue
	var assignee, parent, sprint, due sql.NullString
	var hours sql.NullFloat64
	var points sql.NullInt64
	var typ, prio, status string
	err := s.Scan(&is.ID, &is.WorkListID, &is.Title, &is.Description, &typ, &prio, &status, &is.ReporterID,
		&assignee, &parent, &sprint, &due, &hours, &points, &is.CreatedAt, &is.UpdatedAt)
	if err != nil {
		return is, err
	}
	is.Type = domain.IssueType(typ)
	is.Priority = domain.IssuePriority(prio)
	is.Status = domain.IssueStatus(status)
	is.AssigneeID = stringPtr(assignee)
	is.ParentID = stringPtr(parent)
	is.SprintID = stringPtr(sprint)
	is.DueDate = stringPtr(due)
	if hours.Valid {
		h := hours.Float64
		is.EstimatedHours = &h
	}
	if points.Valid {
		p := int(points.Int64)
		is.StoryPoints = &p
	}
	return is, nil
}

func (r Repo) InsertIssue(ctx context.Context, tx *sql.Tx, is domain.Issue) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO issues(id,work_list_id,title,description,type,priority,status,reporter_id,assignee_id,parent_id,sprint_id,due_date,estimated_hours,story_points,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		is.ID, is.WorkListID, is.Title, nullable(is.Description), string(is.Type), string(is.Priority), string(is.Status), is.ReporterID,
		nullableStringPtr(is.AssigneeID), nullableStringPtr(is.ParentID), nullableStringPtr(is.SprintID), nullableStringPtr(is.DueDate),
		nullableFloatPtr(is.EstimatedHours), nullableIntPtr(is.StoryPoints), is.CreatedAt, is.UpdatedAt)
	if err != nil {
		return err
	}
	return r.SetIssueLabels(ctx, tx, is.ID, is.LabelIDs)
}

// UpdateIssue overwrites every mutable column with the snapshot's values.
func (r Repo) UpdateIssue(ctx context.Context, tx *sql.Tx, is domain.Issue) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE issues SET title=?, description=?, type=?, priority=?, status=?, assignee_id=?, parent_id=?, sprint_id=?, due_date=?, estimated_hours=?, story_points=?, updated_at=? WHERE id=?`,
		is.Title, nullable(is.Description), string(is.Type), string(is.Priority), string(is.Status),
		nullableStringPtr(is.AssigneeID), nullableStringPtr(is.ParentID), nullableStringPtr(is.SprintID), nullableStringPtr(is.DueDate),
		nullableFloatPtr(is.EstimatedHours), nullableIntPtr(is.StoryPoints), is.UpdatedAt, is.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "issue", is.ID)
}

func (r Repo) GetIssue(ctx context.Context, id string) (domain.Issue, error) {
	return r.GetIssueTx(ctx, nil, id)
}

// GetIssueTx loads an issue with its label ids.
func (r Repo) GetIssueTx(ctx context.Context, tx *sql.Tx, id string) (domain.Issue, error) {
	q := r.q(tx)
	is, err := scanIssue(q.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return is, NotFound("issue", id)
	}
	if err != nil {
		return is, err
	}
	rows, err := q.QueryContext(ctx, `SELECT label_id FROM issue_labels WHERE issue_id=? ORDER BY label_id`, id)
	if err != nil {
		return is, err
	}
	labels, err := scanStrings(rows)
	if err != nil {
		return is, err
	}
	is.LabelIDs = labels
	return is, nil
}

type IssueFilters struct {
	WorkListID string
	Status     string
	Priority   string
	Type       string
	AssigneeID string
	ReporterID string
	SprintID   string
	ParentID   string
	LabelID    string
	// Backlog restricts to issues without a sprint.
	Backlog bool
	Limit   int
}

func (r Repo) ListIssues(ctx context.Context, f IssueFilters) ([]domain.Issue, error) {
	return r.ListIssuesTx(ctx, nil, f)
}

func (r Repo) ListIssuesTx(ctx context.Context, tx *sql.Tx, f IssueFilters) ([]domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues`
	var where []string
	var args []any
	add := func(clause string, v string) {
		if v == "" {
			return
		}
		where = append(where, clause)
		args = append(args, v)
	}
	add(`work_list_id=?`, f.WorkListID)
	add(`status=?`, f.Status)
	add(`priority=?`, f.Priority)
	add(`type=?`, f.Type)
	add(`assignee_id=?`, f.AssigneeID)
	add(`reporter_id=?`, f.ReporterID)
	add(`sprint_id=?`, f.SprintID)
	add(`parent_id=?`, f.ParentID)
	add(`id IN (SELECT issue_id FROM issue_labels WHERE label_id=?)`, f.LabelID)
	if f.Backlog {
		where = append(where, `sprint_id IS NULL`)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, is)
	}
	return res, rows.Err()
}

// ListOverdueIssues returns unfinished issues with a due date before cutoff.
func (r Repo) ListOverdueIssues(ctx context.Context, cutoff string) ([]domain.Issue, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE due_date IS NOT NULL AND due_date < ? AND status <> ? ORDER BY due_date, id`,
		cutoff, string(domain.StatusDone))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, is)
	}
	return res, rows.Err()
}

func (r Repo) DeleteIssue(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM issues WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "issue", id)
}

// SetIssueLabels replaces the label set of an issue.
func (r Repo) SetIssueLabels(ctx context.Context, tx *sql.Tx, issueID string, labelIDs []string) error {
	q := r.q(tx)
	if _, err := q.ExecContext(ctx, `DELETE FROM issue_labels WHERE issue_id=?`, issueID); err != nil {
		return err
	}
	for _, l := range labelIDs {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO issue_labels(issue_id,label_id) VALUES (?,?)`, issueID, l); err != nil {
			return err
		}
	}
	return nil
}
