package rules

import (
	"fmt"

	"trackline/internal/domain"
)

type Outcome string

const (
	// OutcomeApplied means the action changed state.
	OutcomeApplied Outcome = "applied"
	// OutcomeSkipped means the rule matched but the action had nothing to do.
	OutcomeSkipped   Outcome = "skipped"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeFailed    Outcome = "failed"
)

// Result is the outcome of evaluating one rule against one event.
type Result struct {
	RuleID   string
	RuleName string
	Trigger  domain.TriggerEvent
	Action   domain.ActionType
	IssueID  string
	Outcome  Outcome
	Detail   string
	Err      error
}

// AutomationExecutionError wraps a failure inside condition matching or action
// execution. It is reported through Result and never returned to the caller of
// the triggering operation.
type AutomationExecutionError struct {
	RuleID string
	Action domain.ActionType
	Err    error
}

func (e *AutomationExecutionError) Error() string {
	return fmt.Sprintf("automation rule %s (%s): %v", e.RuleID, e.Action, e.Err)
}

func (e *AutomationExecutionError) Unwrap() error { return e.Err }

// Run converts the result into its audit record.
func (r Result) Run(actorID, ts string) domain.AutomationRun {
	detail := r.Detail
	if r.Err != nil {
		detail = r.Err.Error()
	}
	return domain.AutomationRun{
		RuleID:       r.RuleID,
		IssueID:      r.IssueID,
		TriggerEvent: r.Trigger,
		ActionType:   r.Action,
		Outcome:      string(r.Outcome),
		Detail:       detail,
		ActorID:      actorID,
		TS:           ts,
	}
}
