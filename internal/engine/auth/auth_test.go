package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackline/internal/domain"
	"trackline/internal/repo"
)

type memStore struct {
	workspaces  map[string]domain.Workspace
	workLists   map[string]domain.WorkList
	issues      map[string]domain.Issue
	sprints     map[string]domain.Sprint
	rules       map[string]domain.AutomationRule
	boards      map[string]domain.Board
	workLogs    map[string]domain.WorkLog
	attachments map[string]domain.Attachment
	comments    map[string]domain.Comment
	reads       int
}

func lookup[T any](s *memStore, m map[string]T, id string) (T, error) {
	s.reads++
	v, ok := m[id]
	if !ok {
		var zero T
		return zero, repo.NotFound("entity", id)
	}
	return v, nil
}

func (s *memStore) GetWorkspace(_ context.Context, id string) (domain.Workspace, error) {
	return lookup(s, s.workspaces, id)
}
func (s *memStore) GetWorkList(_ context.Context, id string) (domain.WorkList, error) {
	return lookup(s, s.workLists, id)
}
func (s *memStore) GetIssue(_ context.Context, id string) (domain.Issue, error) {
	return lookup(s, s.issues, id)
}
func (s *memStore) GetSprint(_ context.Context, id string) (domain.Sprint, error) {
	return lookup(s, s.sprints, id)
}
func (s *memStore) GetRule(_ context.Context, id string) (domain.AutomationRule, error) {
	return lookup(s, s.rules, id)
}
func (s *memStore) GetBoard(_ context.Context, id string) (domain.Board, error) {
	return lookup(s, s.boards, id)
}
func (s *memStore) GetWorkLog(_ context.Context, id string) (domain.WorkLog, error) {
	return lookup(s, s.workLogs, id)
}
func (s *memStore) GetAttachment(_ context.Context, id string) (domain.Attachment, error) {
	return lookup(s, s.attachments, id)
}
func (s *memStore) GetComment(_ context.Context, id string) (domain.Comment, error) {
	return lookup(s, s.comments, id)
}

func strPtr(s string) *string { return &s }

func newStore() *memStore {
	return &memStore{
		workspaces: map[string]domain.Workspace{"ws": {ID: "ws", OwnerID: "owner"}},
		workLists: map[string]domain.WorkList{
			"wl": {ID: "wl", WorkspaceID: "ws", LeadID: strPtr("lead"), MemberIDs: []string{"member"}},
		},
		issues: map[string]domain.Issue{
			"is": {ID: "is", WorkListID: "wl", ReporterID: "reporter", AssigneeID: strPtr("assignee")},
		},
		sprints:     map[string]domain.Sprint{"sp": {ID: "sp", WorkListID: "wl"}},
		rules:       map[string]domain.AutomationRule{"ru": {ID: "ru", WorkListID: strPtr("wl")}, "orphan": {ID: "orphan"}},
		boards:      map[string]domain.Board{"bd": {ID: "bd", WorkListID: "wl"}},
		workLogs:    map[string]domain.WorkLog{"lg": {ID: "lg", IssueID: "is", UserID: "logger"}},
		attachments: map[string]domain.Attachment{"at": {ID: "at", IssueID: "is", UploaderID: "uploader"}},
		comments:    map[string]domain.Comment{"cm": {ID: "cm", IssueID: "is", AuthorID: "author"}},
	}
}

func user(id string, roles ...string) domain.Principal {
	return domain.Principal{UserID: id, Roles: roles}
}

func TestMissingResourceDenies(t *testing.T) {
	r := Resolver{Store: newStore()}
	admin := user("root", domain.RoleAdmin)
	for _, kind := range []Kind{KindWorkspace, KindWorkList, KindIssue, KindSprint, KindRule, KindBoard, KindWorkLog, KindAttach, KindComment} {
		d := r.Check(context.Background(), admin, kind, "missing")
		assert.False(t, d.Allowed, "kind %s", kind)
		assert.Contains(t, d.Reason, "not found")
	}
	assert.False(t, r.CanContribute(context.Background(), admin, "missing"))
}

func TestEmptyPrincipalDenies(t *testing.T) {
	r := Resolver{Store: newStore()}
	assert.False(t, r.Issue(context.Background(), domain.Principal{}, "is"))
	assert.False(t, r.Issue(context.Background(), user("owner"), ""))
}

func TestChainOrder(t *testing.T) {
	r := Resolver{Store: newStore()}
	ctx := context.Background()

	d := r.Check(ctx, user("owner", domain.RoleAdmin), KindIssue, "is")
	require.True(t, d.Allowed)
	assert.Equal(t, "admin", d.Reason)

	d = r.Check(ctx, user("owner"), KindIssue, "is")
	require.True(t, d.Allowed)
	assert.Equal(t, "workspace owner", d.Reason)

	d = r.Check(ctx, user("lead"), KindIssue, "is")
	require.True(t, d.Allowed)
	assert.Equal(t, "work list lead", d.Reason)

	d = r.Check(ctx, user("stranger"), KindIssue, "is")
	assert.False(t, d.Allowed)
	assert.Equal(t, "no relation", d.Reason)
}

func TestResourceRelations(t *testing.T) {
	r := Resolver{Store: newStore()}
	ctx := context.Background()
	cases := []struct {
		name  string
		kind  Kind
		id    string
		user  string
		allow bool
	}{
		{"reporter", KindIssue, "is", "reporter", true},
		{"assignee", KindIssue, "is", "assignee", true},
		{"member cannot modify issue", KindIssue, "is", "member", false},
		{"work log owner", KindWorkLog, "lg", "logger", true},
		{"reporter cannot touch work log", KindWorkLog, "lg", "reporter", false},
		{"uploader", KindAttach, "at", "uploader", true},
		{"author", KindComment, "cm", "author", true},
		{"lead manages sprint", KindSprint, "sp", "lead", true},
		{"reporter cannot manage sprint", KindSprint, "sp", "reporter", false},
		{"owner manages rule", KindRule, "ru", "owner", true},
		{"lead manages board", KindBoard, "bd", "lead", true},
		{"member cannot manage work list", KindWorkList, "wl", "member", false},
		{"lead cannot manage workspace", KindWorkspace, "ws", "lead", false},
		{"owner manages workspace", KindWorkspace, "ws", "owner", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allow, r.CanPerform(ctx, user(tc.user), tc.kind, tc.id))
		})
	}
}

func TestDetachedRuleOnlyAdmin(t *testing.T) {
	r := Resolver{Store: newStore()}
	ctx := context.Background()
	assert.False(t, r.Rule(ctx, user("owner"), "orphan"))
	assert.True(t, r.Rule(ctx, user("x", domain.RoleAdmin), "orphan"))
}

func TestCanContribute(t *testing.T) {
	r := Resolver{Store: newStore()}
	ctx := context.Background()
	assert.True(t, r.CanContribute(ctx, user("member"), "wl"))
	assert.True(t, r.CanContribute(ctx, user("lead"), "wl"))
	assert.True(t, r.CanContribute(ctx, user("owner"), "wl"))
	assert.False(t, r.CanContribute(ctx, user("reporter"), "wl"))

	err := r.RequireContributor(ctx, user("reporter"), "wl")
	var denied PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, KindWorkList, denied.Kind)
}

func TestNoCaching(t *testing.T) {
	s := newStore()
	r := Resolver{Store: s}
	ctx := context.Background()
	require.True(t, r.Issue(ctx, user("lead"), "is"))
	first := s.reads
	require.True(t, r.Issue(ctx, user("lead"), "is"))
	assert.Equal(t, 2*first, s.reads)

	s.workLists["wl"] = domain.WorkList{ID: "wl", WorkspaceID: "ws"}
	assert.False(t, r.Issue(ctx, user("lead"), "is"))
}

func TestRequire(t *testing.T) {
	r := Resolver{Store: newStore()}
	err := r.Require(context.Background(), user("stranger"), KindSprint, "sp")
	var denied PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "sp", denied.ID)
	require.NoError(t, r.Require(context.Background(), user("lead"), KindSprint, "sp"))
}
