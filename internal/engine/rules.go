package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"trackline/internal/domain"
	"trackline/internal/engine/auth"
	"trackline/internal/events"
	"trackline/internal/rules"
)

type RuleCreateOptions struct {
	WorkListID   string
	Name         string
	TriggerEvent domain.TriggerEvent
	Conditions   string
	ActionType   domain.ActionType
	ActionParams string
	// Active defaults to true.
	Active *bool
}

type RuleUpdate struct {
	Name         *string
	TriggerEvent *domain.TriggerEvent
	Conditions   *string
	ActionType   *domain.ActionType
	ActionParams *string
	Active       *bool
}

// validateRule decodes the condition and parameter documents the way the rule
// engine will, so malformed rules are rejected at the boundary.
func validateRule(r domain.AutomationRule) error {
	if strings.TrimSpace(r.Name) == "" {
		return invalid("name", "required")
	}
	if !r.TriggerEvent.Valid() {
		return invalid("trigger_event", fmt.Sprintf("unknown trigger %q", r.TriggerEvent))
	}
	if !r.ActionType.Valid() {
		return invalid("action_type", fmt.Sprintf("unknown action %q", r.ActionType))
	}
	c, err := rules.ParseConditions(r.ConditionsJSON)
	if err != nil {
		return invalid("conditions", err.Error())
	}
	if err := c.Validate(); err != nil {
		return invalid("conditions", err.Error())
	}
	if _, err := rules.DecodeAction(r.ActionType, r.ActionParamsJSON); err != nil {
		return invalid("action_parameters", err.Error())
	}
	return nil
}

func (e Engine) ruleEvent(ctx context.Context, tx *sql.Tx, typ string, r domain.AutomationRule, p domain.Principal, payload events.Payload) error {
	wl := ""
	if r.WorkListID != nil {
		wl = *r.WorkListID
	}
	return e.appendEvent(ctx, tx, events.Record{
		Type:       typ,
		WorkListID: wl,
		EntityKind: events.KindRule,
		EntityID:   r.ID,
		ActorID:    p.UserID,
		Payload:    payload,
	})
}

// CreateRule stores a rule scoped to a work-list. Work-list managers only.
func (e Engine) CreateRule(ctx context.Context, p domain.Principal, opts RuleCreateOptions) (domain.AutomationRule, error) {
	active := true
	if opts.Active != nil {
		active = *opts.Active
	}
	now := e.stamp()
	r := domain.AutomationRule{
		ID:               uuid.NewString(),
		WorkListID:       optionalString(opts.WorkListID),
		Name:             strings.TrimSpace(opts.Name),
		TriggerEvent:     opts.TriggerEvent,
		ConditionsJSON:   strings.TrimSpace(opts.Conditions),
		ActionType:       opts.ActionType,
		ActionParamsJSON: strings.TrimSpace(opts.ActionParams),
		Active:           active,
		CreatedBy:        p.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if opts.WorkListID == "" {
		return r, invalid("work_list_id", "required")
	}
	if err := validateRule(r); err != nil {
		return r, err
	}
	if _, err := e.Repo.GetWorkList(ctx, opts.WorkListID); err != nil {
		return r, err
	}
	if err := e.Auth.Require(ctx, p, auth.KindWorkList, opts.WorkListID); err != nil {
		return r, err
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertRule(ctx, tx, r); err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
		return e.ruleEvent(ctx, tx, "rule.created", r, p, events.Payload{
			"trigger": r.TriggerEvent, "action": r.ActionType, "active": r.Active,
		})
	})
	return r, err
}

func (e Engine) loadRuleForChange(ctx context.Context, p domain.Principal, id string) (domain.AutomationRule, error) {
	r, err := e.Repo.GetRule(ctx, id)
	if err != nil {
		return r, err
	}
	if err := e.Auth.Require(ctx, p, auth.KindRule, id); err != nil {
		return r, err
	}
	return r, nil
}

func (e Engine) UpdateRule(ctx context.Context, p domain.Principal, id string, u RuleUpdate) (domain.AutomationRule, error) {
	r, err := e.loadRuleForChange(ctx, p, id)
	if err != nil {
		return r, err
	}
	if u.Name != nil {
		r.Name = strings.TrimSpace(*u.Name)
	}
	if u.TriggerEvent != nil {
		r.TriggerEvent = *u.TriggerEvent
	}
	if u.Conditions != nil {
		r.ConditionsJSON = strings.TrimSpace(*u.Conditions)
	}
	if u.ActionType != nil {
		r.ActionType = *u.ActionType
	}
	if u.ActionParams != nil {
		r.ActionParamsJSON = strings.TrimSpace(*u.ActionParams)
	}
	if u.Active != nil {
		r.Active = *u.Active
	}
	if err := validateRule(r); err != nil {
		return r, err
	}
	r.UpdatedAt = e.stamp()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateRule(ctx, tx, r); err != nil {
			return err
		}
		return e.ruleEvent(ctx, tx, "rule.updated", r, p, nil)
	})
	return r, err
}

// ToggleRule flips the active flag.
func (e Engine) ToggleRule(ctx context.Context, p domain.Principal, id string) (domain.AutomationRule, error) {
	r, err := e.loadRuleForChange(ctx, p, id)
	if err != nil {
		return r, err
	}
	r.Active = !r.Active
	r.UpdatedAt = e.stamp()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateRule(ctx, tx, r); err != nil {
			return err
		}
		return e.ruleEvent(ctx, tx, "rule.toggled", r, p, events.Payload{"active": r.Active})
	})
	return r, err
}

func (e Engine) DeleteRule(ctx context.Context, p domain.Principal, id string) error {
	r, err := e.loadRuleForChange(ctx, p, id)
	if err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteRule(ctx, tx, id); err != nil {
			return err
		}
		return e.ruleEvent(ctx, tx, "rule.deleted", r, p, nil)
	})
}

// GetRule is visible to contributors of the rule's work-list and to its managers.
func (e Engine) GetRule(ctx context.Context, p domain.Principal, id string) (domain.AutomationRule, error) {
	r, err := e.Repo.GetRule(ctx, id)
	if err != nil {
		return r, err
	}
	if r.WorkListID != nil && e.Auth.CanContribute(ctx, p, *r.WorkListID) {
		return r, nil
	}
	if err := e.Auth.Require(ctx, p, auth.KindRule, id); err != nil {
		return domain.AutomationRule{}, err
	}
	return r, nil
}

func (e Engine) ListRules(ctx context.Context, p domain.Principal, workListID string, activeOnly bool) ([]domain.AutomationRule, error) {
	if _, err := e.Repo.GetWorkList(ctx, workListID); err != nil {
		return nil, err
	}
	if err := e.Auth.RequireContributor(ctx, p, workListID); err != nil {
		return nil, err
	}
	all, err := e.Repo.ListRules(ctx, workListID)
	if err != nil || !activeOnly {
		return all, err
	}
	var out []domain.AutomationRule
	for _, r := range all {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListRuleRuns returns the most recent evaluations of a rule.
func (e Engine) ListRuleRuns(ctx context.Context, p domain.Principal, ruleID string, limit int) ([]domain.AutomationRun, error) {
	if _, err := e.GetRule(ctx, p, ruleID); err != nil {
		return nil, err
	}
	return e.Repo.ListAutomationRuns(ctx, ruleID, "", limit)
}
