package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"trackline/internal/domain"
	"trackline/internal/repo"
	"trackline/internal/telemetry"
)

// Store is the persistence surface actions write through.
type Store interface {
	ListActiveRulesByTrigger(ctx context.Context, trigger domain.TriggerEvent) ([]domain.AutomationRule, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	UpdateIssue(ctx context.Context, tx *sql.Tx, is domain.Issue) error
	InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error
}

// Notifier delivers a notification to a user.
type Notifier interface {
	Send(ctx context.Context, n domain.Notification) (domain.Notification, error)
}

var _ Store = repo.Repo{}

// Engine evaluates automation rules for lifecycle events.
type Engine struct {
	Store    Store
	Notifier Notifier
	Logger   *slog.Logger
	Now      func() time.Time

	tracer  trace.Tracer
	results metric.Int64Counter
}

func New(store Store, notifier Notifier, logger *slog.Logger) *Engine {
	e := &Engine{
		Store:    store,
		Notifier: notifier,
		Logger:   logger,
		Now:      time.Now,
		tracer:   telemetry.Tracer("trackline/rules"),
	}
	counter, err := telemetry.Meter("trackline/rules").Int64Counter("trackline.automation.results",
		metric.WithDescription("Automation rule evaluations by outcome"))
	if err == nil {
		e.results = counter
	}
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := e.tracer
	if tr == nil {
		tr = telemetry.Tracer("trackline/rules")
	}
	return tr.Start(ctx, name, trace.WithAttributes(attrs...))
}

// OnEvent evaluates every active rule for trigger against the issue snapshot,
// in store order. Actions mutate the snapshot in place, so later rules observe
// earlier writes. Actions are never fed back into OnEvent.
func (e *Engine) OnEvent(ctx context.Context, trigger domain.TriggerEvent, issue *domain.Issue, p domain.Principal) []Result {
	ctx, span := e.startSpan(ctx, "rules.on_event",
		attribute.String("trigger", string(trigger)),
		attribute.String("issue.id", issue.ID))
	defer span.End()

	candidates, err := e.Store.ListActiveRulesByTrigger(ctx, trigger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list rules")
		e.logger().Error("list automation rules", "trigger", trigger, "err", err)
		return nil
	}
	var results []Result
	for _, rule := range candidates {
		if !inScope(rule, *issue) {
			continue
		}
		res := e.evaluate(ctx, rule, trigger, issue, p)
		e.record(ctx, res)
		results = append(results, res)
	}
	span.SetAttributes(attribute.Int("rules.evaluated", len(results)))
	return results
}

// inScope drops rules of other work-lists. Rules without a work-list apply to no issue.
func inScope(rule domain.AutomationRule, is domain.Issue) bool {
	return rule.WorkListID != nil && *rule.WorkListID == is.WorkListID
}

func (e *Engine) evaluate(ctx context.Context, rule domain.AutomationRule, trigger domain.TriggerEvent, issue *domain.Issue, p domain.Principal) (res Result) {
	ctx, span := e.startSpan(ctx, "rules.evaluate",
		attribute.String("rule.id", rule.ID),
		attribute.String("action", string(rule.ActionType)))
	defer span.End()

	res = Result{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Trigger:  trigger,
		Action:   rule.ActionType,
		IssueID:  issue.ID,
	}
	fail := func(err error) {
		res.Outcome = OutcomeFailed
		res.Err = &AutomationExecutionError{RuleID: rule.ID, Action: rule.ActionType, Err: err}
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, err.Error())
	}
	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Errorf("panic: %v", r))
		}
		span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	}()

	ok, err := matchesConditions(rule.ConditionsJSON, *issue)
	if err != nil {
		fail(err)
		return res
	}
	if !ok {
		res.Outcome = OutcomeUnmatched
		return res
	}
	action, err := DecodeAction(rule.ActionType, rule.ActionParamsJSON)
	if err != nil {
		fail(err)
		return res
	}
	outcome, detail, err := e.execute(ctx, action, issue, p)
	if err != nil {
		fail(err)
		return res
	}
	res.Outcome = outcome
	res.Detail = detail
	return res
}

func (e *Engine) execute(ctx context.Context, action Action, issue *domain.Issue, p domain.Principal) (Outcome, string, error) {
	now := e.now().UTC().Format(time.RFC3339)
	switch a := action.(type) {
	case UpdateStatus:
		next := *issue
		next.Status = a.Status
		next.UpdatedAt = now
		if err := e.Store.UpdateIssue(ctx, nil, next); err != nil {
			return "", "", err
		}
		*issue = next
		return OutcomeApplied, "status=" + string(a.Status), nil
	case AssignUser:
		u, err := e.Store.GetUser(ctx, a.UserID)
		if errors.Is(err, repo.ErrNotFound) {
			return OutcomeSkipped, "user " + a.UserID + " not found", nil
		}
		if err != nil {
			return "", "", err
		}
		next := *issue
		next.AssigneeID = &u.ID
		next.UpdatedAt = now
		if err := e.Store.UpdateIssue(ctx, nil, next); err != nil {
			return "", "", err
		}
		*issue = next
		return OutcomeApplied, "assignee=" + u.ID, nil
	case AddComment:
		c := domain.Comment{
			ID:        uuid.NewString(),
			IssueID:   issue.ID,
			AuthorID:  p.UserID,
			Body:      a.Body,
			CreatedAt: now,
		}
		if err := e.Store.InsertComment(ctx, nil, c); err != nil {
			return "", "", err
		}
		return OutcomeApplied, "comment=" + c.ID, nil
	case SetPriority:
		next := *issue
		next.Priority = a.Priority
		next.UpdatedAt = now
		if err := e.Store.UpdateIssue(ctx, nil, next); err != nil {
			return "", "", err
		}
		*issue = next
		return OutcomeApplied, "priority=" + string(a.Priority), nil
	case SendNotification:
		if issue.AssigneeID == nil {
			return OutcomeSkipped, "issue has no assignee", nil
		}
		if e.Notifier == nil {
			return "", "", errors.New("no notifier configured")
		}
		issueID := issue.ID
		n, err := e.Notifier.Send(ctx, domain.Notification{
			UserID:  *issue.AssigneeID,
			IssueID: &issueID,
			Kind:    "automation",
			Message: a.Message,
			Link:    IssueLink(issue.ID),
		})
		if err != nil {
			return "", "", err
		}
		return OutcomeApplied, "notification=" + n.ID, nil
	default:
		return "", "", fmt.Errorf("unsupported action %T", action)
	}
}

// IssueLink is the in-app link a notification points at.
func IssueLink(issueID string) string {
	return "/issues/" + issueID
}

func (e *Engine) record(ctx context.Context, res Result) {
	if e.results == nil {
		return
	}
	e.results.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", string(res.Outcome)),
		attribute.String("action", string(res.Action)),
	))
}
