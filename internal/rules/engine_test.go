package rules

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackline/internal/domain"
	"trackline/internal/repo"
)

type fakeStore struct {
	rules    []domain.AutomationRule
	users    map[string]domain.User
	updates  []domain.Issue
	comments []domain.Comment
	failOn   string
}

func (f *fakeStore) ListActiveRulesByTrigger(_ context.Context, trigger domain.TriggerEvent) ([]domain.AutomationRule, error) {
	var out []domain.AutomationRule
	for _, r := range f.rules {
		if r.TriggerEvent == trigger && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, repo.NotFound("user", id)
	}
	return u, nil
}

func (f *fakeStore) UpdateIssue(_ context.Context, _ *sql.Tx, is domain.Issue) error {
	if f.failOn == "update" {
		return errors.New("disk full")
	}
	f.updates = append(f.updates, is)
	return nil
}

func (f *fakeStore) InsertComment(_ context.Context, _ *sql.Tx, c domain.Comment) error {
	f.comments = append(f.comments, c)
	return nil
}

type fakeNotifier struct {
	sent  []domain.Notification
	panic bool
}

func (f *fakeNotifier) Send(_ context.Context, n domain.Notification) (domain.Notification, error) {
	if f.panic {
		panic("sink exploded")
	}
	n.ID = "n1"
	f.sent = append(f.sent, n)
	return n, nil
}

func strPtr(s string) *string { return &s }

func rule(id string, trigger domain.TriggerEvent, conditions string, action domain.ActionType, params string) domain.AutomationRule {
	return domain.AutomationRule{
		ID:               id,
		WorkListID:       strPtr("wl"),
		Name:             id,
		TriggerEvent:     trigger,
		ConditionsJSON:   conditions,
		ActionType:       action,
		ActionParamsJSON: params,
		Active:           true,
	}
}

func testIssue() domain.Issue {
	return domain.Issue{
		ID:         "is1",
		WorkListID: "wl",
		Title:      "t",
		Type:       domain.TypeBug,
		Priority:   domain.PriorityHigh,
		Status:     domain.StatusTodo,
		ReporterID: "reporter",
	}
}

func newEngine(store *fakeStore, n *fakeNotifier) *Engine {
	e := New(store, n, nil)
	e.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return e
}

var actor = domain.Principal{UserID: "actor"}

func TestStatusConditionGatesRule(t *testing.T) {
	store := &fakeStore{rules: []domain.AutomationRule{
		rule("r1", domain.TriggerIssueUpdated, `{"status":"IN_PROGRESS"}`, domain.ActionSetPriority, `{"priority":"LOW"}`),
	}}
	e := newEngine(store, &fakeNotifier{})

	is := testIssue()
	res := e.OnEvent(context.Background(), domain.TriggerIssueUpdated, &is, actor)
	require.Len(t, res, 1)
	assert.Equal(t, OutcomeUnmatched, res[0].Outcome)
	assert.Empty(t, store.updates)

	is.Status = domain.StatusInProgress
	res = e.OnEvent(context.Background(), domain.TriggerIssueUpdated, &is, actor)
	require.Len(t, res, 1)
	assert.Equal(t, OutcomeApplied, res[0].Outcome)
	require.Len(t, store.updates, 1)
	assert.Equal(t, domain.PriorityLow, store.updates[0].Priority)
	assert.Equal(t, domain.PriorityLow, is.Priority)
}

func TestEmptyConditionsAlwaysMatch(t *testing.T) {
	for _, cond := range []string{"", "{}", "null"} {
		store := &fakeStore{rules: []domain.AutomationRule{
			rule("r1", domain.TriggerIssueCreated, cond, domain.ActionAddComment, `{"comment":"welcome"}`),
		}}
		e := newEngine(store, &fakeNotifier{})
		for _, st := range domain.IssueStatuses {
			is := testIssue()
			is.Status = st
			res := e.OnEvent(context.Background(), domain.TriggerIssueCreated, &is, actor)
			require.Len(t, res, 1)
			assert.Equal(t, OutcomeApplied, res[0].Outcome)
		}
		require.Len(t, store.comments, len(domain.IssueStatuses))
		assert.Equal(t, "actor", store.comments[0].AuthorID)
	}
}

func TestConditionsAreConjunctive(t *testing.T) {
	c, err := ParseConditions(`{"priority":"HIGH","type":"TASK","ignored":1}`)
	require.NoError(t, err)
	is := testIssue()
	assert.False(t, c.Match(is))
	is.Type = domain.TypeTask
	assert.True(t, c.Match(is))
}

func TestMalformedConditionsFailClosed(t *testing.T) {
	store := &fakeStore{rules: []domain.AutomationRule{
		rule("bad-json", domain.TriggerIssueUpdated, `{"status":`, domain.ActionSetPriority, `{"priority":"LOW"}`),
		rule("bad-value", domain.TriggerIssueUpdated, `{"status":3}`, domain.ActionSetPriority, `{"priority":"LOW"}`),
		rule("good", domain.TriggerIssueUpdated, ``, domain.ActionSetPriority, `{"priority":"LOWEST"}`),
	}}
	e := newEngine(store, &fakeNotifier{})
	is := testIssue()
	res := e.OnEvent(context.Background(), domain.TriggerIssueUpdated, &is, actor)
	require.Len(t, res, 3)
	assert.Equal(t, OutcomeFailed, res[0].Outcome)
	assert.Equal(t, OutcomeFailed, res[1].Outcome)
	var execErr *AutomationExecutionError
	require.ErrorAs(t, res[0].Err, &execErr)
	assert.Equal(t, "bad-json", execErr.RuleID)
	assert.Equal(t, OutcomeApplied, res[2].Outcome)
	require.Len(t, store.updates, 1)
}

func TestSendNotificationWithoutAssignee(t *testing.T) {
	store := &fakeStore{rules: []domain.AutomationRule{
		rule("r1", domain.TriggerStatusChanged, "", domain.ActionSendNotification, `{"message":"moved"}`),
	}}
	n := &fakeNotifier{}
	e := newEngine(store, n)
	is := testIssue()
	var res []Result
	require.NotPanics(t, func() {
		res = e.OnEvent(context.Background(), domain.TriggerStatusChanged, &is, actor)
	})
	require.Len(t, res, 1)
	assert.Equal(t, OutcomeSkipped, res[0].Outcome)
	assert.Empty(t, n.sent)

	is.AssigneeID = strPtr("bob")
	res = e.OnEvent(context.Background(), domain.TriggerStatusChanged, &is, actor)
	require.Len(t, res, 1)
	assert.Equal(t, OutcomeApplied, res[0].Outcome)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "bob", n.sent[0].UserID)
	assert.Equal(t, "/issues/is1", n.sent[0].Link)
	assert.Equal(t, "moved", n.sent[0].Message)
}

func TestAssignUnknownUserIsNoop(t *testing.T) {
	store := &fakeStore{
		rules: []domain.AutomationRule{rule("r1", domain.TriggerIssueCreated, "", domain.ActionAssignUser, `{"userId":42}`)},
		users: map[string]domain.User{},
	}
	e := newEngine(store, &fakeNotifier{})
	is := testIssue()
	res := e.OnEvent(context.Background(), domain.TriggerIssueCreated, &is, actor)
	require.Len(t, res, 1)
	assert.Equal(t, OutcomeSkipped, res[0].Outcome)
	assert.Nil(t, is.AssigneeID)
	assert.Empty(t, store.updates)

	store.users["42"] = domain.User{ID: "42"}
	res = e.OnEvent(context.Background(), domain.TriggerIssueCreated, &is, actor)
	assert.Equal(t, OutcomeApplied, res[0].Outcome)
	require.NotNil(t, is.AssigneeID)
	assert.Equal(t, "42", *is.AssigneeID)
}

func TestScopeFiltering(t *testing.T) {
	other := rule("other", domain.TriggerIssueCreated, "", domain.ActionSetPriority, `{"priority":"LOW"}`)
	other.WorkListID = strPtr("wl2")
	scopeless := rule("scopeless", domain.TriggerIssueCreated, "", domain.ActionSetPriority, `{"priority":"LOW"}`)
	scopeless.WorkListID = nil
	inactive := rule("inactive", domain.TriggerIssueCreated, "", domain.ActionSetPriority, `{"priority":"LOW"}`)
	inactive.Active = false
	store := &fakeStore{rules: []domain.AutomationRule{other, scopeless, inactive}}
	e := newEngine(store, &fakeNotifier{})
	is := testIssue()
	res := e.OnEvent(context.Background(), domain.TriggerIssueCreated, &is, actor)
	assert.Empty(t, res)
	assert.Empty(t, store.updates)
}

func TestLastWriteWins(t *testing.T) {
	store := &fakeStore{rules: []domain.AutomationRule{
		rule("a", domain.TriggerIssueUpdated, "", domain.ActionUpdateStatus, `{"status":"IN_REVIEW"}`),
		rule("b", domain.TriggerIssueUpdated, `{"status":"IN_REVIEW"}`, domain.ActionUpdateStatus, `{"status":"DONE"}`),
	}}
	e := newEngine(store, &fakeNotifier{})
	is := testIssue()
	res := e.OnEvent(context.Background(), domain.TriggerIssueUpdated, &is, actor)
	require.Len(t, res, 2)
	assert.Equal(t, OutcomeApplied, res[1].Outcome)
	assert.Equal(t, domain.StatusDone, is.Status)
	require.Len(t, store.updates, 2)
}

func TestFailuresAndPanicsAreContained(t *testing.T) {
	store := &fakeStore{
		rules: []domain.AutomationRule{
			rule("panics", domain.TriggerIssueUpdated, "", domain.ActionSendNotification, `{"message":"x"}`),
			rule("fails", domain.TriggerIssueUpdated, "", domain.ActionSetPriority, `{"priority":"LOW"}`),
			rule("params", domain.TriggerIssueUpdated, "", domain.ActionUpdateStatus, `{"status":"NOPE"}`),
			rule("comment", domain.TriggerIssueUpdated, "", domain.ActionAddComment, `{"comment":"after"}`),
		},
		failOn: "update",
	}
	e := newEngine(store, &fakeNotifier{panic: true})
	is := testIssue()
	is.AssigneeID = strPtr("bob")
	res := e.OnEvent(context.Background(), domain.TriggerIssueUpdated, &is, actor)
	require.Len(t, res, 4)
	assert.Equal(t, OutcomeFailed, res[0].Outcome)
	assert.Contains(t, res[0].Err.Error(), "panic")
	assert.Equal(t, OutcomeFailed, res[1].Outcome)
	assert.Equal(t, domain.PriorityHigh, is.Priority)
	assert.Equal(t, OutcomeFailed, res[2].Outcome)
	assert.Equal(t, OutcomeApplied, res[3].Outcome)

	run := res[1].Run("actor", "2024-01-02T03:04:05Z")
	assert.Equal(t, "failed", run.Outcome)
	assert.Contains(t, run.Detail, "disk full")
}

func TestDecodeAction(t *testing.T) {
	a, err := DecodeAction(domain.ActionAssignUser, `{"userId":"u-1"}`)
	require.NoError(t, err)
	assert.Equal(t, AssignUser{UserID: "u-1"}, a)

	a, err = DecodeAction(domain.ActionUpdateStatus, `{"status":"DONE"}`)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionUpdateStatus, a.Type())

	for _, tc := range []struct {
		action domain.ActionType
		doc    string
	}{
		{domain.ActionUpdateStatus, ``},
		{domain.ActionUpdateStatus, `{"status":"LATER"}`},
		{domain.ActionSetPriority, `{"priority":1}`},
		{domain.ActionAddComment, `{"body":"x"}`},
		{domain.ActionSendNotification, `[]`},
		{domain.ActionType("EXPLODE"), `{}`},
	} {
		_, err := DecodeAction(tc.action, tc.doc)
		assert.Error(t, err, "%s %s", tc.action, tc.doc)
	}
}
