package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"trackline/internal/config"
	"trackline/internal/db"
	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/migrate"
)

const testSecret = "test-secret"

// logBuffer collects server logs written from handler goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testServer struct {
	URL    string
	client *http.Client
	close  func()
	logs   *logBuffer

	engine   engine.Engine
	admin    domain.User
	alice    domain.User
	bob      domain.User
	keys     map[string]string
	workList domain.WorkList
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

// as returns the API key header for a seeded user.
func (s *testServer) as(username string) map[string]string {
	return map[string]string{"X-Api-Key": s.keys[username]}
}

func principalOf(u domain.User) domain.Principal {
	return domain.Principal{UserID: u.ID, Roles: u.Roles}
}

func newTestEngine(t *testing.T) engine.Engine {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return engine.New(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	ctx := context.Background()
	e := newTestEngine(t)
	admin, err := e.Bootstrap(ctx, "root")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	adminP := principalOf(admin)
	alice, err := e.CreateUser(ctx, adminP, engine.UserCreateOptions{Username: "alice"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := e.CreateUser(ctx, adminP, engine.UserCreateOptions{Username: "bob"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	keys := map[string]string{}
	for _, u := range []domain.User{admin, alice, bob} {
		plain, _, err := e.CreateAPIKey(ctx, adminP, u.ID, "test")
		if err != nil {
			t.Fatalf("api key for %s: %v", u.Username, err)
		}
		keys[u.Username] = plain
	}
	ws, err := e.CreateWorkspace(ctx, adminP, engine.WorkspaceCreateOptions{Name: "Acme"})
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	wl, err := e.CreateWorkList(ctx, adminP, engine.WorkListCreateOptions{
		WorkspaceID: ws.ID,
		Name:        "Platform",
		MemberIDs:   []string{alice.ID},
	})
	if err != nil {
		t.Fatalf("create work list: %v", err)
	}

	logs := &logBuffer{}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour},
		Logger:   slog.New(slog.NewTextHandler(logs, nil)),
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
		logs:     logs,
		engine:   e,
		admin:    admin,
		alice:    alice,
		bob:      bob,
		keys:     keys,
		workList: wl,
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", string(data), err)
	}
	return v
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope %s: %v", string(data), err)
	}
	return env.Error.Code
}

func TestHealthAndAuthentication(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()
	client := ts.Client()

	res, _ := doJSON(t, client, http.MethodGet, ts.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodGet, ts.URL+"/v1/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthorized" {
		t.Fatalf("expected unauthorized, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, ts.URL+"/v1/me", nil, map[string]string{"X-Api-Key": "tlk_bogus"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("expected invalid credentials, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, ts.URL+"/v1/me", nil, ts.as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	me := decode[MeResponse](t, data)
	if me.User.ID != ts.alice.ID || me.AuthSource != "api_key" {
		t.Fatalf("unexpected me: %+v", me)
	}
}

func TestTokenExchange(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()
	client := ts.Client()

	res, data := doJSON(t, client, http.MethodPost, ts.URL+"/v1/auth/token", nil, ts.as("root"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("token status %d: %s", res.StatusCode, string(data))
	}
	tok := decode[TokenResponse](t, data)
	if tok.Token == "" {
		t.Fatalf("empty token")
	}

	res, data = doJSON(t, client, http.MethodGet, ts.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer " + tok.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with jwt status %d: %s", res.StatusCode, string(data))
	}
	me := decode[MeResponse](t, data)
	if me.User.ID != ts.admin.ID || me.AuthSource != "jwt" {
		t.Fatalf("unexpected me: %+v", me)
	}
	if len(me.Roles) != 1 || me.Roles[0] != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %v", me.Roles)
	}

	forged, err := SignToken("other-secret", ts.admin.ID, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	res, _ = doJSON(t, client, http.MethodGet, ts.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer " + forged})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected forged token rejected, got %d", res.StatusCode)
	}

	expired, err := SignToken(testSecret, ts.admin.ID, time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	res, _ = doJSON(t, client, http.MethodGet, ts.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer " + expired})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected expired token rejected, got %d", res.StatusCode)
	}
}

func TestIssueLifecycleOverHTTP(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()
	client := ts.Client()
	base := ts.URL + "/v1"

	res, data := doJSON(t, client, http.MethodPost, base+"/work-lists/"+ts.workList.ID+"/issues", map[string]any{
		"title":    "Login fails",
		"type":     "BUG",
		"due_date": "2030-01-02",
	}, ts.as("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create issue status %d: %s", res.StatusCode, string(data))
	}
	is := decode[domain.Issue](t, data)
	if is.Status != domain.StatusTodo || is.Priority != domain.PriorityMedium || is.ReporterID != ts.alice.ID {
		t.Fatalf("unexpected defaults: %+v", is)
	}

	res, data = doJSON(t, client, http.MethodPatch, base+"/issues/"+is.ID, map[string]any{
		"priority":    "HIGH",
		"assignee_id": ts.alice.ID,
	}, ts.as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	is = decode[domain.Issue](t, data)
	if is.Priority != domain.PriorityHigh || is.AssigneeID == nil || *is.AssigneeID != ts.alice.ID {
		t.Fatalf("patch not applied: %+v", is)
	}

	res, data = doJSON(t, client, http.MethodPatch, base+"/issues/"+is.ID, map[string]any{"assignee_id": ""}, ts.as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("clear assignee status %d: %s", res.StatusCode, string(data))
	}
	if got := decode[domain.Issue](t, data); got.AssigneeID != nil {
		t.Fatalf("expected assignee cleared, got %v", *got.AssigneeID)
	}

	res, data = doJSON(t, client, http.MethodPut, base+"/issues/"+is.ID+"/status", map[string]any{"status": "IN_PROGRESS"}, ts.as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status change %d: %s", res.StatusCode, string(data))
	}
	if got := decode[domain.Issue](t, data); got.Status != domain.StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", got.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/issues/"+is.ID+"/comments", map[string]any{"body": "looking"}, ts.as("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("comment status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/issues/"+is.ID+"/work-logs", map[string]any{"time_spent_seconds": 5400}, ts.as("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("log work status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, base+"/issues/"+is.ID+"/time-spent", nil, ts.as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("time spent status %d: %s", res.StatusCode, string(data))
	}
	if spent := decode[TimeSpentResponse](t, data); spent.Seconds != 5400 || spent.Hours != 1.5 {
		t.Fatalf("unexpected time spent: %+v", spent)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/issues/"+is.ID, nil, ts.as("bob"))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("expected forbidden for outsider, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/issues?work_list_id="+ts.workList.ID, nil, ts.as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	if items := decode[[]domain.Issue](t, data); len(items) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(items))
	}

	res, _ = doJSON(t, client, http.MethodDelete, base+"/issues/"+is.ID, nil, ts.as("alice"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodGet, base+"/issues/"+is.ID, nil, ts.as("alice"))
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("expected not found, got %d %s", res.StatusCode, string(data))
	}
}

func TestValidationErrors(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()
	client := ts.Client()
	base := ts.URL + "/v1"

	res, data := doJSON(t, client, http.MethodPost, base+"/work-lists/"+ts.workList.ID+"/issues", map[string]any{"title": "  "}, ts.as("alice"))
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "validation_failed" {
		t.Fatalf("expected validation failure, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/work-lists/"+ts.workList.ID+"/rules", map[string]any{
		"name":              "broken",
		"trigger_event":     "ISSUE_CREATED",
		"action_type":       "SET_PRIORITY",
		"action_parameters": map[string]any{"priority": "URGENT"},
	}, ts.as("root"))
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "validation_failed" {
		t.Fatalf("expected rule validation failure, got %d %s", res.StatusCode, string(data))
	}
}

func TestSprintConflict(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()
	client := ts.Client()
	base := ts.URL + "/v1"

	var ids []string
	for _, name := range []string{"S1", "S2"} {
		res, data := doJSON(t, client, http.MethodPost, base+"/work-lists/"+ts.workList.ID+"/sprints", map[string]any{"name": name}, ts.as("root"))
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create sprint %s: %d %s", name, res.StatusCode, string(data))
		}
		ids = append(ids, decode[domain.Sprint](t, data).ID)
	}

	res, data := doJSON(t, client, http.MethodPost, base+"/sprints/"+ids[0]+"/start", nil, ts.as("root"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start sprint %d: %s", res.StatusCode, string(data))
	}
	if sp := decode[domain.Sprint](t, data); sp.Status != domain.SprintActive {
		t.Fatalf("expected ACTIVE, got %s", sp.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/sprints/"+ids[1]+"/start", nil, ts.as("root"))
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "invalid_transition" {
		t.Fatalf("expected conflict, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/sprints/"+ids[0]+"/start", nil, ts.as("alice"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected member start to be forbidden, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/sprints/"+ids[0]+"/complete", nil, ts.as("root"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete sprint %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/sprints/"+ids[1]+"/start", map[string]any{
		"start_date": "2024-03-01T00:00:00Z",
		"end_date":   "2024-03-15T00:00:00Z",
	}, ts.as("root"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start sprint with window %d: %s", res.StatusCode, string(data))
	}
	sp := decode[domain.Sprint](t, data)
	if sp.StartDate == nil || *sp.StartDate != "2024-03-01T00:00:00Z" || sp.EndDate == nil || *sp.EndDate != "2024-03-15T00:00:00Z" {
		t.Fatalf("unexpected window: %+v", sp)
	}
}

func TestInternalErrorsAreLoggedNotEchoed(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()
	client := ts.Client()
	base := ts.URL + "/v1"

	res, data := doJSON(t, client, http.MethodPost, base+"/work-lists/"+ts.workList.ID+"/issues", map[string]any{"title": "broken store"}, ts.as("root"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create issue %d: %s", res.StatusCode, string(data))
	}
	is := decode[domain.Issue](t, data)
	if _, err := ts.engine.DB.Exec(`DROP TABLE comments`); err != nil {
		t.Fatalf("drop comments: %v", err)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/issues/"+is.ID+"/comments", nil, ts.as("root"))
	if res.StatusCode != http.StatusInternalServerError || errorCode(t, data) != "internal_error" {
		t.Fatalf("expected internal error, got %d %s", res.StatusCode, string(data))
	}
	if strings.Contains(string(data), "no such table") || strings.Contains(string(data), "details") {
		t.Fatalf("internal error leaked to client: %s", string(data))
	}
	if logs := ts.logs.String(); !strings.Contains(logs, "no such table") || !strings.Contains(logs, "/comments") {
		t.Fatalf("internal error not logged: %q", logs)
	}
}

func TestRequestBodyLimit(t *testing.T) {
	handler, err := New(Config{
		Engine:       newTestEngine(t),
		Auth:         AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxBodyBytes: 64,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/work-lists/wl/issues", map[string]any{"title": strings.Repeat("x", 200)}, nil)
	if res.StatusCode != http.StatusRequestEntityTooLarge || errorCode(t, data) != "request_too_large" {
		t.Fatalf("expected oversized body rejected, got %d %s", res.StatusCode, string(data))
	}

	// A body within the limit reaches authentication.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/work-lists/wl/issues", map[string]any{"title": "ok"}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for small body, got %d %s", res.StatusCode, string(data))
	}
}

func TestNotificationsAndEvents(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()
	client := ts.Client()
	base := ts.URL + "/v1"

	res, data := doJSON(t, client, http.MethodPost, base+"/notifications", map[string]any{
		"user_id": ts.alice.ID,
		"message": "standup moved",
	}, ts.as("root"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("send notification %d: %s", res.StatusCode, string(data))
	}
	n := decode[domain.Notification](t, data)

	res, data = doJSON(t, client, http.MethodGet, base+"/notifications/unread-count", nil, ts.as("alice"))
	if res.StatusCode != http.StatusOK || decode[CountResponse](t, data).Count != 1 {
		t.Fatalf("expected one unread, got %d %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, client, http.MethodPost, base+"/notifications/"+n.ID+"/read", nil, ts.as("bob"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected other user's notification hidden, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodPost, base+"/notifications/"+n.ID+"/read", nil, ts.as("alice"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read status %d", res.StatusCode)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/events?work_list_id="+ts.workList.ID, nil, ts.as("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	evts := decode[[]domain.Event](t, data)
	if len(evts) == 0 || evts[len(evts)-1].Type != "work_list.created" {
		t.Fatalf("expected work_list.created among events, got %+v", evts)
	}

	res, _ = doJSON(t, client, http.MethodGet, base+"/events?work_list_id="+ts.workList.ID, nil, ts.as("bob"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected outsider events forbidden, got %d", res.StatusCode)
	}
}

func TestOpenAPIIsPublic(t *testing.T) {
	ts, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/v1/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "bearerAuth") || !strings.Contains(string(data), "/v1/issues/{id}") {
		t.Fatalf("openapi document missing expected content")
	}
}

type hookRecorder struct {
	mu        sync.Mutex
	events    []webhookEvent
	sigs      []string
	failFirst int
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failFirst > 0 {
		h.failFirst--
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	var evt webhookEvent
	_ = json.NewDecoder(r.Body).Decode(&evt)
	h.events = append(h.events, evt)
	h.sigs = append(h.sigs, r.Header.Get("X-Trackline-Signature"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *hookRecorder) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

func TestWebhookDispatcherDeliversNewEvents(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	admin, err := e.Bootstrap(ctx, "root")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	p := principalOf(admin)
	ws, err := e.CreateWorkspace(ctx, p, engine.WorkspaceCreateOptions{Name: "Acme"})
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	wl, err := e.CreateWorkList(ctx, p, engine.WorkListCreateOptions{WorkspaceID: ws.ID, Name: "Platform"})
	if err != nil {
		t.Fatalf("work list: %v", err)
	}

	rec := &hookRecorder{failFirst: 1}
	hookSrv := httptest.NewServer(rec)
	defer hookSrv.Close()

	d := NewWebhookDispatcher(e.Repo, []config.WebhookConfig{{URL: hookSrv.URL, Events: []string{"issue.*"}, Secret: "s3cret"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.retry = func() backoff.BackOff { return &backoff.StopBackOff{} }

	// The first pass only positions the cursor; history is not replayed.
	d.DispatchOnce(ctx)
	if got := rec.types(); len(got) != 0 {
		t.Fatalf("expected no deliveries, got %v", got)
	}

	if _, err := e.CreateIssue(ctx, p, engine.IssueCreateOptions{WorkListID: wl.ID, Title: "hook me"}); err != nil {
		t.Fatalf("create issue: %v", err)
	}
	if _, err := e.CreateSprint(ctx, p, engine.SprintCreateOptions{WorkListID: wl.ID, Name: "S1"}); err != nil {
		t.Fatalf("create sprint: %v", err)
	}

	// The endpoint fails once; the event stays pending.
	d.DispatchOnce(ctx)
	if got := rec.types(); len(got) != 0 {
		t.Fatalf("expected failed delivery, got %v", got)
	}
	d.DispatchOnce(ctx)
	got := rec.types()
	if len(got) != 1 || got[0] != "issue.created" {
		t.Fatalf("expected issue.created only, got %v", got)
	}
	rec.mu.Lock()
	sig := rec.sigs[0]
	rec.mu.Unlock()
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("expected signature header, got %q", sig)
	}

	d.DispatchOnce(ctx)
	if got := rec.types(); len(got) != 1 {
		t.Fatalf("expected no redelivery, got %v", got)
	}
}

func TestEventFilter(t *testing.T) {
	f := newEventFilter([]string{"issue.*", "sprint.started"})
	cases := map[string]bool{
		"issue.created":    true,
		"issue.commented":  true,
		"sprint.started":   true,
		"sprint.completed": false,
		"rule.created":     false,
	}
	for evt, want := range cases {
		if got := f.match(evt); got != want {
			t.Fatalf("match(%q) = %v, want %v", evt, got, want)
		}
	}
	if !newEventFilter(nil).match("anything") {
		t.Fatalf("empty filter should match everything")
	}
	if !newEventFilter([]string{"*"}).match("rule.deleted") {
		t.Fatalf("wildcard filter should match everything")
	}
}
