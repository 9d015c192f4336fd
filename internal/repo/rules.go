package repo

import (
	"context"
	"database/sql"
	"errors"

	"trackline/internal/domain"
)

const ruleColumns = `id,work_list_id,name,trigger_event,COALESCE(conditions_json,''),action_type,COALESCE(action_params_json,''),active,created_by,created_at,updated_at`

func scanRule(s scanner) (domain.AutomationRule, error) {
	var ru domain.AutomationRule
	var wl sql.NullString
	var trigger, action string
	var active int
	err := s.Scan(&ru.ID, &wl, &ru.Name, &trigger, &ru.ConditionsJSON, &action, &ru.ActionParamsJSON, &active,
		&ru.CreatedBy, &ru.CreatedAt, &ru.UpdatedAt)
	if err != nil {
		return ru, err
	}
	ru.WorkListID = stringPtr(wl)
	ru.TriggerEvent = domain.TriggerEvent(trigger)
	ru.ActionType = domain.ActionType(action)
	ru.Active = active != 0
	return ru, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r Repo) InsertRule(ctx context.Context, tx *sql.Tx, ru domain.AutomationRule) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO automation_rules(id,work_list_id,name,trigger_event,conditions_json,action_type,action_params_json,active,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		ru.ID, nullableStringPtr(ru.WorkListID), ru.Name, string(ru.TriggerEvent), nullable(ru.ConditionsJSON),
		string(ru.ActionType), nullable(ru.ActionParamsJSON), boolInt(ru.Active), ru.CreatedBy, ru.CreatedAt, ru.UpdatedAt)
	return err
}

func (r Repo) UpdateRule(ctx context.Context, tx *sql.Tx, ru domain.AutomationRule) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE automation_rules SET name=?, trigger_event=?, conditions_json=?, action_type=?, action_params_json=?, active=?, updated_at=? WHERE id=?`,
		ru.Name, string(ru.TriggerEvent), nullable(ru.ConditionsJSON), string(ru.ActionType), nullable(ru.ActionParamsJSON),
		boolInt(ru.Active), ru.UpdatedAt, ru.ID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "automation rule", ru.ID)
}

func (r Repo) GetRule(ctx context.Context, id string) (domain.AutomationRule, error) {
	return r.GetRuleTx(ctx, nil, id)
}

func (r Repo) GetRuleTx(ctx context.Context, tx *sql.Tx, id string) (domain.AutomationRule, error) {
	ru, err := scanRule(r.q(tx).QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ru, NotFound("automation rule", id)
	}
	return ru, err
}

func (r Repo) DeleteRule(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM automation_rules WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res, "automation rule", id)
}

// ListRules lists the rules scoped to a work-list; an empty id lists every rule.
func (r Repo) ListRules(ctx context.Context, workListID string) ([]domain.AutomationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM automation_rules`
	var args []any
	if workListID != "" {
		query += ` WHERE work_list_id=?`
		args = append(args, workListID)
	}
	query += ` ORDER BY created_at, id`
	return r.queryRules(ctx, query, args...)
}

// ListActiveRulesByTrigger returns the active rules for a trigger in creation order.
// Rules whose work-list was deleted are included with a nil scope.
func (r Repo) ListActiveRulesByTrigger(ctx context.Context, trigger domain.TriggerEvent) ([]domain.AutomationRule, error) {
	return r.queryRules(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE trigger_event=? AND active=1 ORDER BY created_at, id`, string(trigger))
}

func (r Repo) queryRules(ctx context.Context, query string, args ...any) ([]domain.AutomationRule, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AutomationRule
	for rows.Next() {
		ru, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, ru)
	}
	return res, rows.Err()
}

func (r Repo) InsertAutomationRun(ctx context.Context, tx *sql.Tx, run domain.AutomationRun) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO automation_runs(rule_id,issue_id,trigger_event,action_type,outcome,detail,actor_id,ts) VALUES (?,?,?,?,?,?,?,?)`,
		run.RuleID, run.IssueID, string(run.TriggerEvent), string(run.ActionType), run.Outcome, nullable(run.Detail), run.ActorID, run.TS)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListAutomationRuns returns the most recent runs, newest first.
func (r Repo) ListAutomationRuns(ctx context.Context, ruleID, issueID string, limit int) ([]domain.AutomationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id,rule_id,issue_id,trigger_event,action_type,outcome,COALESCE(detail,''),actor_id,ts FROM automation_runs WHERE 1=1`
	var args []any
	if ruleID != "" {
		query += ` AND rule_id=?`
		args = append(args, ruleID)
	}
	if issueID != "" {
		query += ` AND issue_id=?`
		args = append(args, issueID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AutomationRun
	for rows.Next() {
		var run domain.AutomationRun
		var trigger, action string
		if err := rows.Scan(&run.ID, &run.RuleID, &run.IssueID, &trigger, &action, &run.Outcome, &run.Detail, &run.ActorID, &run.TS); err != nil {
			return nil, err
		}
		run.TriggerEvent = domain.TriggerEvent(trigger)
		run.ActionType = domain.ActionType(action)
		res = append(res, run)
	}
	return res, rows.Err()
}
