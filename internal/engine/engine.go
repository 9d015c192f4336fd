package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"trackline/internal/domain"
	"trackline/internal/engine/auth"
	"trackline/internal/events"
	"trackline/internal/notify"
	"trackline/internal/repo"
	"trackline/internal/rules"
)

// Automation consumes lifecycle events. It must never fail the operation
// that produced the event.
type Automation interface {
	OnEvent(ctx context.Context, trigger domain.TriggerEvent, issue *domain.Issue, p domain.Principal) []rules.Result
}

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Auth       auth.Resolver
	Automation Automation
	Notifier   rules.Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

// New wires an engine over db with in-app notifications only. Callers that
// configure chat sinks replace Notifier and Automation.
func New(db *sql.DB, logger *slog.Logger) Engine {
	if logger == nil {
		logger = slog.Default()
	}
	r := repo.Repo{DB: db}
	dispatcher := notify.Dispatcher{Store: r, Logger: logger}
	return Engine{
		DB:         db,
		Repo:       r,
		Events:     events.Writer{},
		Auth:       auth.Resolver{Store: r},
		Automation: rules.New(r, dispatcher, logger),
		Notifier:   dispatcher,
		Logger:     logger,
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, rec events.Record) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, rec)
}

// inTx runs fn in a transaction and commits when fn succeeds.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// emit hands a committed change to the automation engine. Results are logged
// and audited here; nothing escapes to the caller.
func (e Engine) emit(ctx context.Context, trigger domain.TriggerEvent, issue *domain.Issue, p domain.Principal) {
	if e.Automation == nil {
		return
	}
	log := e.logger().With("trigger", trigger, "issue", issue.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("automation panicked", "panic", r)
		}
	}()
	results := e.Automation.OnEvent(ctx, trigger, issue, p)
	ts := e.stamp()
	for _, res := range results {
		attrs := []any{"rule", res.RuleID, "action", res.Action, "outcome", res.Outcome}
		switch res.Outcome {
		case rules.OutcomeFailed:
			log.Warn("automation rule failed", append(attrs, "err", res.Err)...)
		case rules.OutcomeApplied:
			log.Info("automation rule applied", append(attrs, "detail", res.Detail)...)
		default:
			log.Debug("automation rule evaluated", attrs...)
		}
		if _, err := e.Repo.InsertAutomationRun(ctx, nil, res.Run(p.UserID, ts)); err != nil {
			log.Warn("record automation run", "rule", res.RuleID, "err", err)
		}
		if res.Outcome == rules.OutcomeApplied && writesIssue(res.Action) {
			if err := e.recordAutomated(ctx, res, issue, p); err != nil {
				log.Warn("record automated change", "rule", res.RuleID, "err", err)
			}
		}
	}
}

// writesIssue reports whether an applied action changed the issue or its thread.
func writesIssue(a domain.ActionType) bool {
	switch a {
	case domain.ActionUpdateStatus, domain.ActionAssignUser, domain.ActionSetPriority, domain.ActionAddComment:
		return true
	}
	return false
}

// recordAutomated appends an issue.automated event so rule-made changes reach
// the event log like any other mutation.
func (e Engine) recordAutomated(ctx context.Context, res rules.Result, issue *domain.Issue, p domain.Principal) error {
	payload := events.Payload{
		"rule_id":  res.RuleID,
		"rule":     res.RuleName,
		"trigger":  res.Trigger,
		"action":   res.Action,
		"detail":   res.Detail,
		"status":   issue.Status,
		"priority": issue.Priority,
	}
	if issue.AssigneeID != nil {
		payload["assignee_id"] = *issue.AssigneeID
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		return e.appendEvent(ctx, tx, events.Record{
			Type:       "issue.automated",
			WorkListID: issue.WorkListID,
			EntityKind: events.KindIssue,
			EntityID:   issue.ID,
			ActorID:    p.UserID,
			Payload:    payload,
		})
	})
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
