package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/engine/auth"
	"trackline/internal/migrate"
	"trackline/internal/repo"
	"trackline/internal/rules"
)

type recorder struct {
	mu       sync.Mutex
	triggers []domain.TriggerEvent
}

func (r *recorder) OnEvent(_ context.Context, trigger domain.TriggerEvent, _ *domain.Issue, _ domain.Principal) []rules.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, trigger)
	return nil
}

func (r *recorder) take() []domain.TriggerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.triggers
	r.triggers = nil
	return out
}

// panicOn records every trigger and panics on one of them.
type panicOn struct {
	recorder
	trigger domain.TriggerEvent
}

func (p *panicOn) OnEvent(ctx context.Context, trigger domain.TriggerEvent, issue *domain.Issue, pr domain.Principal) []rules.Result {
	p.recorder.OnEvent(ctx, trigger, issue, pr)
	if trigger == p.trigger {
		panic("automation exploded")
	}
	return nil
}

var (
	owner    = domain.Principal{UserID: "owner"}
	lead     = domain.Principal{UserID: "lead"}
	member   = domain.Principal{UserID: "member"}
	outsider = domain.Principal{UserID: "outsider"}
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	seed(t, ctx, eng.Repo)
	return testEnv{Engine: eng, Ctx: ctx}
}

func seed(t *testing.T, ctx context.Context, r repo.Repo) {
	t.Helper()
	ts := "2024-01-01T00:00:00Z"
	for _, id := range []string{"owner", "lead", "member", "outsider", "42"} {
		if err := r.InsertUser(ctx, nil, domain.User{ID: id, Username: "user-" + id, CreatedAt: ts}); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
	if err := r.InsertWorkspace(ctx, nil, domain.Workspace{ID: "ws-1", Name: "Acme", OwnerID: "owner", CreatedAt: ts}); err != nil {
		t.Fatalf("seed workspace: %v", err)
	}
	leadID := "lead"
	for _, id := range []string{"wl-1", "wl-2"} {
		wl := domain.WorkList{ID: id, WorkspaceID: "ws-1", Name: id, LeadID: &leadID, MemberIDs: []string{"member", "42"}, CreatedAt: ts}
		if err := r.InsertWorkList(ctx, nil, wl); err != nil {
			t.Fatalf("seed work list %s: %v", id, err)
		}
	}
}

func (env testEnv) withRecorder() (testEnv, *recorder) {
	rec := &recorder{}
	env.Engine.Automation = rec
	return env, rec
}

func (env testEnv) issue(t *testing.T, p domain.Principal, opts engine.IssueCreateOptions) domain.Issue {
	t.Helper()
	if opts.WorkListID == "" {
		opts.WorkListID = "wl-1"
	}
	if opts.Title == "" {
		opts.Title = "work"
	}
	is, err := env.Engine.CreateIssue(env.Ctx, p, opts)
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
	return is
}

func equalTriggers(a, b []domain.TriggerEvent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCreateIssueDefaults(t *testing.T) {
	env, rec := newTestEnv(t).withRecorder()
	is := env.issue(t, member, engine.IssueCreateOptions{AssigneeID: "ghost", SprintID: "missing"})
	if is.Status != domain.StatusTodo || is.Type != domain.TypeTask || is.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected defaults: %+v", is)
	}
	if is.ReporterID != "member" {
		t.Fatalf("reporter = %q", is.ReporterID)
	}
	if is.AssigneeID != nil || is.SprintID != nil {
		t.Fatalf("unresolved references should be skipped: %+v", is)
	}
	if got := rec.take(); !equalTriggers(got, []domain.TriggerEvent{domain.TriggerIssueCreated}) {
		t.Fatalf("triggers = %v", got)
	}
	if _, err := env.Engine.CreateIssue(env.Ctx, outsider, engine.IssueCreateOptions{WorkListID: "wl-1", Title: "x"}); !isDenied(err) {
		t.Fatalf("outsider create: %v", err)
	}
	if _, err := env.Engine.CreateIssue(env.Ctx, member, engine.IssueCreateOptions{WorkListID: "wl-1"}); !isValidation(err) {
		t.Fatalf("missing title: %v", err)
	}
}

func TestUpdateIssueEmptyDeltaEmitsOnlyUpdated(t *testing.T) {
	env, rec := newTestEnv(t).withRecorder()
	is := env.issue(t, member, engine.IssueCreateOptions{})
	rec.take()
	if _, err := env.Engine.UpdateIssue(env.Ctx, member, is.ID, engine.IssueUpdate{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := rec.take(); !equalTriggers(got, []domain.TriggerEvent{domain.TriggerIssueUpdated}) {
		t.Fatalf("triggers = %v", got)
	}
}

func TestUpdateIssueTriggerOrder(t *testing.T) {
	env, rec := newTestEnv(t).withRecorder()
	is := env.issue(t, member, engine.IssueCreateOptions{})
	rec.take()
	status := domain.StatusInProgress
	updated, err := env.Engine.UpdateIssue(env.Ctx, member, is.ID, engine.IssueUpdate{
		Status:   &status,
		Assignee: engine.PatchTo("42"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != status || updated.AssigneeID == nil || *updated.AssigneeID != "42" {
		t.Fatalf("unexpected issue: %+v", updated)
	}
	want := []domain.TriggerEvent{domain.TriggerIssueUpdated, domain.TriggerStatusChanged, domain.TriggerAssigneeChanged}
	if got := rec.take(); !equalTriggers(got, want) {
		t.Fatalf("triggers = %v, want %v", got, want)
	}

	// Same status again: no STATUS_CHANGED.
	if _, err := env.Engine.TransitionStatus(env.Ctx, member, is.ID, status); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got := rec.take(); len(got) != 0 {
		t.Fatalf("unchanged status emitted %v", got)
	}
}

func TestPanickingAutomationDoesNotBlockLaterTriggers(t *testing.T) {
	env := newTestEnv(t)
	auto := &panicOn{trigger: domain.TriggerIssueUpdated}
	env.Engine.Automation = auto
	is := env.issue(t, member, engine.IssueCreateOptions{})
	auto.take()

	status := domain.StatusInReview
	updated, err := env.Engine.UpdateIssue(env.Ctx, member, is.ID, engine.IssueUpdate{Status: &status})
	if err != nil {
		t.Fatalf("update returned %v", err)
	}
	if updated.Status != status {
		t.Fatalf("status = %s", updated.Status)
	}
	want := []domain.TriggerEvent{domain.TriggerIssueUpdated, domain.TriggerStatusChanged}
	if got := auto.take(); !equalTriggers(got, want) {
		t.Fatalf("triggers = %v, want %v", got, want)
	}
	stored, err := env.Engine.Repo.GetIssue(env.Ctx, is.ID)
	if err != nil || stored.Status != status {
		t.Fatalf("stored issue: %+v %v", stored, err)
	}
}

func TestReassignUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	is := env.issue(t, member, engine.IssueCreateOptions{})
	if _, err := env.Engine.Reassign(env.Ctx, member, is.ID, "ghost"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	got, err := env.Engine.Reassign(env.Ctx, member, is.ID, "42")
	if err != nil || got.AssigneeID == nil || *got.AssigneeID != "42" {
		t.Fatalf("reassign: %+v %v", got, err)
	}
}

func TestDeleteIssueDetachesChildren(t *testing.T) {
	env := newTestEnv(t)
	parent := env.issue(t, member, engine.IssueCreateOptions{Title: "parent"})
	a := env.issue(t, member, engine.IssueCreateOptions{Title: "a", ParentID: parent.ID})
	b := env.issue(t, member, engine.IssueCreateOptions{Title: "b", ParentID: parent.ID})
	if a.ParentID == nil || *a.ParentID != parent.ID {
		t.Fatalf("child not linked: %+v", a)
	}
	if err := env.Engine.DeleteIssue(env.Ctx, member, parent.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, id := range []string{a.ID, b.ID} {
		child, err := env.Engine.Repo.GetIssue(env.Ctx, id)
		if err != nil {
			t.Fatalf("child %s: %v", id, err)
		}
		if child.ParentID != nil {
			t.Fatalf("child %s still has parent %s", id, *child.ParentID)
		}
	}
	if _, err := env.Engine.Repo.GetIssue(env.Ctx, parent.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("parent should be gone: %v", err)
	}
	if err := env.Engine.DeleteIssue(env.Ctx, member, parent.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestPermissionDeniedLeavesIssueUnchanged(t *testing.T) {
	env, rec := newTestEnv(t).withRecorder()
	is := env.issue(t, member, engine.IssueCreateOptions{Title: "original"})
	rec.take()
	title := "hijacked"
	_, err := env.Engine.UpdateIssue(env.Ctx, outsider, is.ID, engine.IssueUpdate{Title: &title})
	var denied auth.PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	got, err := env.Engine.Repo.GetIssue(env.Ctx, is.ID)
	if err != nil || got.Title != "original" {
		t.Fatalf("issue changed: %+v %v", got, err)
	}
	if got := rec.take(); len(got) != 0 {
		t.Fatalf("denied update emitted %v", got)
	}
	if _, err := env.Engine.GetIssue(env.Ctx, outsider, is.ID); !isDenied(err) {
		t.Fatalf("outsider read: %v", err)
	}
}

func TestParentCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.issue(t, member, engine.IssueCreateOptions{Title: "a"})
	b := env.issue(t, member, engine.IssueCreateOptions{Title: "b", ParentID: a.ID})
	c := env.issue(t, member, engine.IssueCreateOptions{Title: "c", ParentID: b.ID})
	if _, err := env.Engine.UpdateIssue(env.Ctx, member, a.ID, engine.IssueUpdate{Parent: engine.PatchTo(c.ID)}); !isValidation(err) {
		t.Fatalf("expected cycle rejection, got %v", err)
	}
	if _, err := env.Engine.UpdateIssue(env.Ctx, member, a.ID, engine.IssueUpdate{Parent: engine.PatchTo(a.ID)}); !isValidation(err) {
		t.Fatalf("expected self-parent rejection, got %v", err)
	}
	other := env.issue(t, owner, engine.IssueCreateOptions{WorkListID: "wl-2", Title: "other"})
	if _, err := env.Engine.UpdateIssue(env.Ctx, owner, a.ID, engine.IssueUpdate{Parent: engine.PatchTo(other.ID)}); !isValidation(err) {
		t.Fatalf("expected cross work-list rejection, got %v", err)
	}
	children, err := env.Engine.SubIssues(env.Ctx, member, a.ID)
	if err != nil || len(children) != 1 || children[0].ID != b.ID {
		t.Fatalf("sub-issues: %+v %v", children, err)
	}
}

func TestSprintLifecycle(t *testing.T) {
	env := newTestEnv(t)
	sp, err := env.Engine.CreateSprint(env.Ctx, lead, engine.SprintCreateOptions{WorkListID: "wl-1", Name: "S1"})
	if err != nil {
		t.Fatalf("create sprint: %v", err)
	}
	if sp.Status != domain.SprintPlanning {
		t.Fatalf("status = %s", sp.Status)
	}
	if _, err := env.Engine.CreateSprint(env.Ctx, member, engine.SprintCreateOptions{WorkListID: "wl-1", Name: "S2"}); !isDenied(err) {
		t.Fatalf("member create: %v", err)
	}
	if _, err := env.Engine.CompleteSprint(env.Ctx, lead, sp.ID); !isTransition(err) {
		t.Fatalf("complete planning sprint: %v", err)
	}
	sp, err = env.Engine.StartSprint(env.Ctx, lead, sp.ID, "2024-01-01", "2024-01-14")
	if err != nil || sp.Status != domain.SprintActive {
		t.Fatalf("start: %+v %v", sp, err)
	}
	if _, err := env.Engine.StartSprint(env.Ctx, lead, sp.ID, "", ""); !isTransition(err) {
		t.Fatalf("restart active sprint: %v", err)
	}
	sp, err = env.Engine.CompleteSprint(env.Ctx, lead, sp.ID)
	if err != nil || sp.Status != domain.SprintCompleted {
		t.Fatalf("complete: %+v %v", sp, err)
	}
	if _, err := env.Engine.CancelSprint(env.Ctx, lead, sp.ID); !isTransition(err) {
		t.Fatalf("cancel completed sprint: %v", err)
	}
	if _, err := env.Engine.StartSprint(env.Ctx, lead, sp.ID, "2024-02-01", "2024-01-01"); !isValidation(err) {
		t.Fatalf("inverted window: %v", err)
	}
}

func TestConcurrentSprintStartHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	var ids []string
	for _, name := range []string{"S1", "S2"} {
		sp, err := env.Engine.CreateSprint(env.Ctx, lead, engine.SprintCreateOptions{WorkListID: "wl-1", Name: name})
		if err != nil {
			t.Fatalf("create sprint: %v", err)
		}
		ids = append(ids, sp.ID)
	}
	errs := make([]error, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			_, errs[i] = env.Engine.StartSprint(env.Ctx, lead, id, "", "")
			return nil
		})
	}
	_ = g.Wait()
	wins, losses := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case isTransition(err):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("wins=%d losses=%d", wins, losses)
	}
	active, err := env.Engine.ListSprints(env.Ctx, member, "wl-1", true)
	if err != nil || len(active) != 1 {
		t.Fatalf("active sprints: %+v %v", active, err)
	}
}

func TestSprintMembershipAcrossWorkLists(t *testing.T) {
	env := newTestEnv(t)
	sp, err := env.Engine.CreateSprint(env.Ctx, owner, engine.SprintCreateOptions{WorkListID: "wl-2", Name: "S"})
	if err != nil {
		t.Fatalf("create sprint: %v", err)
	}
	is := env.issue(t, owner, engine.IssueCreateOptions{WorkListID: "wl-1"})
	if _, err := env.Engine.AddIssueToSprint(env.Ctx, owner, sp.ID, is.ID); !isTransition(err) {
		t.Fatalf("add across work lists: %v", err)
	}
	if _, err := env.Engine.ReassignSprint(env.Ctx, owner, is.ID, sp.ID); !isTransition(err) {
		t.Fatalf("reassign across work lists: %v", err)
	}

	local, err := env.Engine.CreateSprint(env.Ctx, owner, engine.SprintCreateOptions{WorkListID: "wl-1", Name: "L"})
	if err != nil {
		t.Fatalf("create sprint: %v", err)
	}
	got, err := env.Engine.AddIssueToSprint(env.Ctx, owner, local.ID, is.ID)
	if err != nil || got.SprintID == nil || *got.SprintID != local.ID {
		t.Fatalf("add: %+v %v", got, err)
	}
	if _, err := env.Engine.RemoveIssueFromSprint(env.Ctx, owner, sp.ID, is.ID); !isTransition(err) {
		t.Fatalf("remove from wrong sprint: %v", err)
	}
	got, err = env.Engine.RemoveIssueFromSprint(env.Ctx, owner, local.ID, is.ID)
	if err != nil || got.SprintID != nil {
		t.Fatalf("remove: %+v %v", got, err)
	}
}

func TestDeleteSprintReturnsIssuesToBacklog(t *testing.T) {
	env := newTestEnv(t)
	sp, err := env.Engine.CreateSprint(env.Ctx, lead, engine.SprintCreateOptions{WorkListID: "wl-1", Name: "S"})
	if err != nil {
		t.Fatal(err)
	}
	is := env.issue(t, member, engine.IssueCreateOptions{SprintID: sp.ID})
	if is.SprintID == nil {
		t.Fatalf("sprint not set on create")
	}
	if err := env.Engine.DeleteSprint(env.Ctx, lead, sp.ID); err != nil {
		t.Fatalf("delete sprint: %v", err)
	}
	got, err := env.Engine.Repo.GetIssue(env.Ctx, is.ID)
	if err != nil || got.SprintID != nil {
		t.Fatalf("issue after sprint delete: %+v %v", got, err)
	}
}

func TestLeadRuleAssignsOnStatusChange(t *testing.T) {
	env := newTestEnv(t)
	rule, err := env.Engine.CreateRule(env.Ctx, lead, engine.RuleCreateOptions{
		WorkListID:   "wl-1",
		Name:         "hot issues go to 42",
		TriggerEvent: domain.TriggerStatusChanged,
		Conditions:   `{"priority":"HIGH"}`,
		ActionType:   domain.ActionAssignUser,
		ActionParams: `{"userId":"42"}`,
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if !rule.Active {
		t.Fatalf("rule should start active")
	}
	low := env.issue(t, member, engine.IssueCreateOptions{Title: "low", Priority: domain.PriorityLow})
	high := env.issue(t, member, engine.IssueCreateOptions{Title: "high", Priority: domain.PriorityHigh})

	if _, err := env.Engine.TransitionStatus(env.Ctx, member, low.ID, domain.StatusDone); err != nil {
		t.Fatalf("transition low: %v", err)
	}
	got, err := env.Engine.TransitionStatus(env.Ctx, member, high.ID, domain.StatusDone)
	if err != nil {
		t.Fatalf("transition high: %v", err)
	}
	if got.AssigneeID == nil || *got.AssigneeID != "42" {
		t.Fatalf("returned issue not updated: %+v", got)
	}
	stored, err := env.Engine.Repo.GetIssue(env.Ctx, high.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.StatusDone || stored.AssigneeID == nil || *stored.AssigneeID != "42" {
		t.Fatalf("stored issue: %+v", stored)
	}
	untouched, err := env.Engine.Repo.GetIssue(env.Ctx, low.ID)
	if err != nil || untouched.AssigneeID != nil {
		t.Fatalf("low issue: %+v %v", untouched, err)
	}
	runs, err := env.Engine.ListRuleRuns(env.Ctx, lead, rule.ID, 10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	applied := 0
	for _, run := range runs {
		if run.Outcome == string(rules.OutcomeApplied) && run.IssueID == high.ID {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("applied runs = %d in %+v", applied, runs)
	}

	evs, err := env.Engine.ListEvents(env.Ctx, lead, "wl-1", "issue", high.ID, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) == 0 || evs[0].Type != "issue.automated" {
		t.Fatalf("latest event = %+v", evs)
	}
	if !strings.Contains(evs[0].Payload, `"assignee_id":"42"`) || !strings.Contains(evs[0].Payload, rule.ID) {
		t.Fatalf("automated payload = %s", evs[0].Payload)
	}
	lowEvents, err := env.Engine.ListEvents(env.Ctx, lead, "wl-1", "issue", low.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range lowEvents {
		if ev.Type == "issue.automated" {
			t.Fatalf("unmatched rule recorded %+v", ev)
		}
	}
}

func TestRuleManagement(t *testing.T) {
	env := newTestEnv(t)
	base := engine.RuleCreateOptions{
		WorkListID:   "wl-1",
		Name:         "comment",
		TriggerEvent: domain.TriggerIssueCreated,
		ActionType:   domain.ActionAddComment,
		ActionParams: `{"comment":"welcome"}`,
	}
	if _, err := env.Engine.CreateRule(env.Ctx, member, base); !isDenied(err) {
		t.Fatalf("member create: %v", err)
	}
	bad := base
	bad.Conditions = `{"status":"SOMEWHERE"}`
	if _, err := env.Engine.CreateRule(env.Ctx, lead, bad); !isValidation(err) {
		t.Fatalf("bad conditions: %v", err)
	}
	bad = base
	bad.ActionParams = ``
	if _, err := env.Engine.CreateRule(env.Ctx, lead, bad); !isValidation(err) {
		t.Fatalf("missing params: %v", err)
	}
	rule, err := env.Engine.CreateRule(env.Ctx, lead, base)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	is := env.issue(t, member, engine.IssueCreateOptions{})
	comments, err := env.Engine.ListComments(env.Ctx, member, is.ID)
	if err != nil || len(comments) != 1 || comments[0].Body != "welcome" {
		t.Fatalf("automation comment: %+v %v", comments, err)
	}
	rule, err = env.Engine.ToggleRule(env.Ctx, lead, rule.ID)
	if err != nil || rule.Active {
		t.Fatalf("toggle: %+v %v", rule, err)
	}
	active, err := env.Engine.ListRules(env.Ctx, member, "wl-1", true)
	if err != nil || len(active) != 0 {
		t.Fatalf("active rules: %+v %v", active, err)
	}
	if err := env.Engine.DeleteRule(env.Ctx, lead, rule.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetRule(env.Ctx, lead, rule.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("get deleted: %v", err)
	}
}

func TestCommentsEmitAndDeleteRights(t *testing.T) {
	env, rec := newTestEnv(t).withRecorder()
	is := env.issue(t, member, engine.IssueCreateOptions{})
	rec.take()
	c, err := env.Engine.AddComment(env.Ctx, member, is.ID, "looks good")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if got := rec.take(); !equalTriggers(got, []domain.TriggerEvent{domain.TriggerIssueCommented}) {
		t.Fatalf("triggers = %v", got)
	}
	if _, err := env.Engine.AddComment(env.Ctx, outsider, is.ID, "hi"); !isDenied(err) {
		t.Fatalf("outsider comment: %v", err)
	}
	if err := env.Engine.DeleteComment(env.Ctx, outsider, c.ID); !isDenied(err) {
		t.Fatalf("outsider delete: %v", err)
	}
	if err := env.Engine.DeleteComment(env.Ctx, member, c.ID); err != nil {
		t.Fatalf("author delete: %v", err)
	}
}

func TestWorkLogs(t *testing.T) {
	env := newTestEnv(t)
	is := env.issue(t, member, engine.IssueCreateOptions{})
	w, err := env.Engine.LogWork(env.Ctx, member, engine.WorkLogOptions{IssueID: is.ID, TimeSpentSeconds: 3600, StartTime: "2024-01-02"})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if _, err := env.Engine.LogWork(env.Ctx, member, engine.WorkLogOptions{IssueID: is.ID, TimeSpentSeconds: 0}); !isValidation(err) {
		t.Fatalf("zero duration: %v", err)
	}
	if _, err := env.Engine.LogWork(env.Ctx, lead, engine.WorkLogOptions{IssueID: is.ID, TimeSpentSeconds: 1800, StartTime: "2024-03-01"}); err != nil {
		t.Fatalf("lead log: %v", err)
	}
	total, err := env.Engine.IssueTimeSpent(env.Ctx, member, is.ID)
	if err != nil || total != 5400 {
		t.Fatalf("total = %d %v", total, err)
	}
	spent, err := env.Engine.UserTimeSpent(env.Ctx, member, "member", "2024-01-01", "2024-02-01")
	if err != nil || spent != 3600 {
		t.Fatalf("user total = %d %v", spent, err)
	}
	if _, err := env.Engine.ListUserWorkLogs(env.Ctx, member, "lead", "", ""); !isDenied(err) {
		t.Fatalf("reading another user's logs: %v", err)
	}
	secs := int64(7200)
	if _, err := env.Engine.UpdateWorkLog(env.Ctx, outsider, w.ID, engine.WorkLogUpdate{TimeSpentSeconds: &secs}); !isDenied(err) {
		t.Fatalf("outsider update: %v", err)
	}
	w, err = env.Engine.UpdateWorkLog(env.Ctx, member, w.ID, engine.WorkLogUpdate{TimeSpentSeconds: &secs})
	if err != nil || w.TimeSpentSeconds != secs {
		t.Fatalf("update: %+v %v", w, err)
	}
	if err := env.Engine.DeleteWorkLog(env.Ctx, member, w.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t)
	is := env.issue(t, member, engine.IssueCreateOptions{})
	n, err := env.Engine.SendNotification(env.Ctx, member, "42", is.ID, "please review")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if n.Link != rules.IssueLink(is.ID) {
		t.Fatalf("link = %q", n.Link)
	}
	if _, err := env.Engine.SendNotification(env.Ctx, member, "42", "", "free form"); !isDenied(err) {
		t.Fatalf("free-form to another user: %v", err)
	}
	count, err := env.Engine.UnreadCount(env.Ctx, domain.Principal{UserID: "42"})
	if err != nil || count != 1 {
		t.Fatalf("unread = %d %v", count, err)
	}
	if err := env.Engine.MarkRead(env.Ctx, member, n.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("mark someone else's: %v", err)
	}
	if err := env.Engine.MarkRead(env.Ctx, domain.Principal{UserID: "42"}, n.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread, err := env.Engine.ListNotifications(env.Ctx, domain.Principal{UserID: "42"}, true)
	if err != nil || len(unread) != 0 {
		t.Fatalf("unread list: %+v %v", unread, err)
	}
}

func TestWorkspaceAndWorkListAccess(t *testing.T) {
	env := newTestEnv(t)
	ws, err := env.Engine.CreateWorkspace(env.Ctx, outsider, engine.WorkspaceCreateOptions{Name: "Side"})
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	if _, err := env.Engine.CreateWorkList(env.Ctx, member, engine.WorkListCreateOptions{WorkspaceID: ws.ID, Name: "x"}); !isDenied(err) {
		t.Fatalf("member creating in foreign workspace: %v", err)
	}
	wl, err := env.Engine.CreateWorkList(env.Ctx, outsider, engine.WorkListCreateOptions{WorkspaceID: ws.ID, Name: "side"})
	if err != nil {
		t.Fatalf("create work list: %v", err)
	}
	if _, err := env.Engine.GetWorkList(env.Ctx, member, wl.ID); !isDenied(err) {
		t.Fatalf("non-member read: %v", err)
	}
	if err := env.Engine.AddMember(env.Ctx, outsider, wl.ID, "member"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := env.Engine.GetWorkList(env.Ctx, member, wl.ID); err != nil {
		t.Fatalf("member read: %v", err)
	}
	spaces, err := env.Engine.ListWorkspaces(env.Ctx, member)
	if err != nil || len(spaces) != 2 {
		t.Fatalf("workspaces: %+v %v", spaces, err)
	}
	if _, err := env.Engine.SetLead(env.Ctx, member, wl.ID, "member"); !isDenied(err) {
		t.Fatalf("member setting lead: %v", err)
	}
}

func TestListEventsRecordsMutations(t *testing.T) {
	env := newTestEnv(t)
	is := env.issue(t, member, engine.IssueCreateOptions{})
	if _, err := env.Engine.TransitionStatus(env.Ctx, member, is.ID, domain.StatusInReview); err != nil {
		t.Fatal(err)
	}
	evs, err := env.Engine.ListEvents(env.Ctx, member, "wl-1", "issue", is.ID, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) != 2 || evs[0].Type != "issue.status_changed" || evs[1].Type != "issue.created" {
		t.Fatalf("events = %+v", evs)
	}
	if _, err := env.Engine.ListEvents(env.Ctx, member, "", "", "", 10); !isDenied(err) {
		t.Fatalf("global log for non-admin: %v", err)
	}
}

func isDenied(err error) bool {
	var target auth.PermissionDeniedError
	return errors.As(err, &target)
}

func isValidation(err error) bool {
	var target engine.ValidationError
	return errors.As(err, &target)
}

func isTransition(err error) bool {
	var target engine.InvalidTransitionError
	return errors.As(err, &target)
}
