package tracklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Trackline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://localhost:8080/v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Issue represents the API issue model (partial).
type Issue struct {
	ID         string  `json:"id"`
	WorkListID string  `json:"work_list_id"`
	Title      string  `json:"title"`
	Type       string  `json:"type"`
	Priority   string  `json:"priority"`
	Status     string  `json:"status"`
	ReporterID string  `json:"reporter_id"`
	AssigneeID *string `json:"assignee_id,omitempty"`
	SprintID   *string `json:"sprint_id,omitempty"`
	DueDate    *string `json:"due_date,omitempty"`
	UpdatedAt  string  `json:"updated_at"`
}

type Comment struct {
	ID        string `json:"id"`
	IssueID   string `json:"issue_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

type Sprint struct {
	ID         string `json:"id"`
	WorkListID string `json:"work_list_id"`
	Name       string `json:"name"`
	Goal       string `json:"goal,omitempty"`
	Status     string `json:"status"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
}

type Notification struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	WorkListID string `json:"work_list_id"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type Me struct {
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Roles               []string `json:"roles"`
	UnreadNotifications int      `json:"unread_notifications"`
}

// APIError wraps non-2xx responses. Code is the envelope's error code when
// the body carried one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IssueInput carries the fields accepted when creating an issue.
type IssueInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	Priority    string `json:"priority,omitempty"`
	AssigneeID  string `json:"assignee_id,omitempty"`
	SprintID    string `json:"sprint_id,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// Token exchanges the current credentials for a bearer token.
func (c *Client) Token(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "auth/token", nil, &resp)
	return resp.Token, err
}

// CreateIssue creates an issue in a work-list.
func (c *Client) CreateIssue(ctx context.Context, workListID string, in IssueInput) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("work-lists/%s/issues", url.PathEscape(workListID)), in, &resp)
	return resp, err
}

func (c *Client) GetIssue(ctx context.Context, id string) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodGet, "issues/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateIssue sends a partial update; a nil value clears nullable fields.
func (c *Client) UpdateIssue(ctx context.Context, id string, patch map[string]any) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodPatch, "issues/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

func (c *Client) TransitionStatus(ctx context.Context, id, status string) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("issues/%s/status", url.PathEscape(id)), map[string]any{"status": status}, &resp)
	return resp, err
}

// ListIssues searches issues; filters map to query parameters such as
// work_list_id, status or assignee_id.
func (c *Client) ListIssues(ctx context.Context, filters map[string]string) ([]Issue, error) {
	q := url.Values{}
	for k, v := range filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	endpoint := "issues"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Issue
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) AddComment(ctx context.Context, issueID, body string) (Comment, error) {
	var resp Comment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("issues/%s/comments", url.PathEscape(issueID)), map[string]any{"body": body}, &resp)
	return resp, err
}

// CreateSprint creates a PLANNING sprint in a work-list.
func (c *Client) CreateSprint(ctx context.Context, workListID, name, goal string) (Sprint, error) {
	var resp Sprint
	in := map[string]any{"name": name}
	if goal != "" {
		in["goal"] = goal
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("work-lists/%s/sprints", url.PathEscape(workListID)), in, &resp)
	return resp, err
}

func (c *Client) StartSprint(ctx context.Context, id string) (Sprint, error) {
	var resp Sprint
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("sprints/%s/start", url.PathEscape(id)), nil, &resp)
	return resp, err
}

func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	endpoint := "notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	var resp []Notification
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events lists recent events of a work-list, newest first.
func (c *Client) Events(ctx context.Context, workListID string, limit int) ([]Event, error) {
	q := url.Values{}
	if workListID != "" {
		q.Set("work_list_id", workListID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
