package tracklinesdk_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/migrate"
	"trackline/internal/server"
	tracklinesdk "trackline/sdk/go"
)

type fixture struct {
	client     *tracklinesdk.Client
	outsider   *tracklinesdk.Client
	workListID string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(conn, logger)

	admin, err := e.Bootstrap(ctx, "root")
	require.NoError(t, err)
	p := domain.Principal{UserID: admin.ID, Roles: admin.Roles}
	bob, err := e.CreateUser(ctx, p, engine.UserCreateOptions{Username: "bob"})
	require.NoError(t, err)
	adminKey, _, err := e.CreateAPIKey(ctx, p, admin.ID, "sdk")
	require.NoError(t, err)
	bobKey, _, err := e.CreateAPIKey(ctx, p, bob.ID, "sdk")
	require.NoError(t, err)
	ws, err := e.CreateWorkspace(ctx, p, engine.WorkspaceCreateOptions{Name: "Acme"})
	require.NoError(t, err)
	wl, err := e.CreateWorkList(ctx, p, engine.WorkListCreateOptions{WorkspaceID: ws.ID, Name: "Platform"})
	require.NoError(t, err)

	handler, err := server.New(server.Config{
		Engine: e,
		Auth:   server.AuthConfig{JWTSecret: "sdk-secret", TokenTTL: time.Hour},
		Logger: logger,
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := tracklinesdk.New(srv.URL + "/v1")
	client.APIKey = adminKey
	outsider := tracklinesdk.New(srv.URL + "/v1")
	outsider.APIKey = bobKey
	return fixture{client: client, outsider: outsider, workListID: wl.ID}
}

func TestClientIssueFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	me, err := f.client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "root", me.User.Username)

	is, err := f.client.CreateIssue(ctx, f.workListID, tracklinesdk.IssueInput{Title: "SDK issue", Priority: "HIGH"})
	require.NoError(t, err)
	assert.Equal(t, "TODO", is.Status)
	assert.Equal(t, "HIGH", is.Priority)

	is, err = f.client.TransitionStatus(ctx, is.ID, "IN_REVIEW")
	require.NoError(t, err)
	assert.Equal(t, "IN_REVIEW", is.Status)

	c, err := f.client.AddComment(ctx, is.ID, "ship it")
	require.NoError(t, err)
	assert.Equal(t, "ship it", c.Body)

	items, err := f.client.ListIssues(ctx, map[string]string{"work_list_id": f.workListID, "status": "IN_REVIEW"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, is.ID, items[0].ID)

	evts, err := f.client.Events(ctx, f.workListID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, evts)
	assert.Equal(t, "issue.commented", evts[0].Type)
}

func TestClientStartSprint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.client.CreateSprint(ctx, f.workListID, "Sprint 1", "ship search")
	require.NoError(t, err)
	assert.Equal(t, "PLANNING", first.Status)
	second, err := f.client.CreateSprint(ctx, f.workListID, "Sprint 2", "")
	require.NoError(t, err)

	started, err := f.client.StartSprint(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", started.Status)
	assert.Equal(t, first.ID, started.ID)

	_, err = f.client.StartSprint(ctx, second.ID)
	var apiErr *tracklinesdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 409, apiErr.StatusCode)
	assert.Equal(t, "invalid_transition", apiErr.Code)
}

func TestClientErrorEnvelope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	is, err := f.client.CreateIssue(ctx, f.workListID, tracklinesdk.IssueInput{Title: "private"})
	require.NoError(t, err)

	_, err = f.outsider.GetIssue(ctx, is.ID)
	var apiErr *tracklinesdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.StatusCode)
	assert.Equal(t, "forbidden", apiErr.Code)

	_, err = f.client.GetIssue(ctx, "missing")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestClientBearerToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, err := f.client.Token(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	bearer := tracklinesdk.New(f.client.BaseURL)
	bearer.BearerToken = token
	me, err := bearer.Me(ctx)
	require.NoError(t, err)
	assert.Contains(t, me.Roles, "ADMIN")
}
