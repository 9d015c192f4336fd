package server

import (
	"encoding/json"
	"strings"

	"trackline/internal/domain"
	"trackline/internal/engine"
)

// Request payloads

type CreateUserRequest struct {
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

type RoleRequest struct {
	Role string `json:"role"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateWorkspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type CreateWorkListRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	LeadID      string   `json:"lead_id,omitempty"`
	MemberIDs   []string `json:"member_ids,omitempty"`
}

type UpdateWorkListRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type SetLeadRequest struct {
	// Empty clears the lead.
	LeadID string `json:"lead_id,omitempty"`
}

type MemberRequest struct {
	UserID string `json:"user_id"`
}

type CreateLabelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type BoardColumnRequest struct {
	Name   string `json:"name"`
	Status string `json:"status" enum:"TODO,IN_PROGRESS,IN_REVIEW,DONE"`
}

type CreateBoardRequest struct {
	Name    string               `json:"name"`
	Columns []BoardColumnRequest `json:"columns,omitempty"`
}

type CreateIssueRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Type           string   `json:"type,omitempty" enum:"TASK,BUG,STORY,EPIC,SUBTASK"`
	Priority       string   `json:"priority,omitempty" enum:"LOWEST,LOW,MEDIUM,HIGH,HIGHEST"`
	AssigneeID     string   `json:"assignee_id,omitempty"`
	ParentID       string   `json:"parent_id,omitempty"`
	SprintID       string   `json:"sprint_id,omitempty"`
	DueDate        string   `json:"due_date,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	StoryPoints    *int     `json:"story_points,omitempty"`
	LabelIDs       []string `json:"label_ids,omitempty"`
}

// UpdateIssueRequest is a partial update. For assignee_id, sprint_id,
// parent_id and due_date an explicit null or empty string clears the field.
type UpdateIssueRequest struct {
	Title          *string   `json:"title,omitempty"`
	Description    *string   `json:"description,omitempty"`
	Type           *string   `json:"type,omitempty" enum:"TASK,BUG,STORY,EPIC,SUBTASK"`
	Priority       *string   `json:"priority,omitempty" enum:"LOWEST,LOW,MEDIUM,HIGH,HIGHEST"`
	Status         *string   `json:"status,omitempty" enum:"TODO,IN_PROGRESS,IN_REVIEW,DONE"`
	AssigneeID     *string   `json:"assignee_id,omitempty" nullable:"true"`
	SprintID       *string   `json:"sprint_id,omitempty" nullable:"true"`
	ParentID       *string   `json:"parent_id,omitempty" nullable:"true"`
	DueDate        *string   `json:"due_date,omitempty" nullable:"true"`
	EstimatedHours *float64  `json:"estimated_hours,omitempty"`
	StoryPoints    *int      `json:"story_points,omitempty"`
	LabelIDs       *[]string `json:"label_ids,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status" enum:"TODO,IN_PROGRESS,IN_REVIEW,DONE"`
}

type AssigneeRequest struct {
	// Empty unassigns.
	AssigneeID string `json:"assignee_id,omitempty"`
}

type IssueSprintRequest struct {
	// Empty moves the issue to the backlog.
	SprintID string `json:"sprint_id,omitempty"`
}

type CommentRequest struct {
	Body string `json:"body"`
}

type AttachmentRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	StorageKey  string `json:"storage_key,omitempty"`
}

type WorkLogRequest struct {
	TimeSpentSeconds int64  `json:"time_spent_seconds"`
	Description      string `json:"description,omitempty"`
	StartTime        string `json:"start_time,omitempty"`
}

type UpdateWorkLogRequest struct {
	TimeSpentSeconds *int64  `json:"time_spent_seconds,omitempty"`
	Description      *string `json:"description,omitempty"`
	StartTime        *string `json:"start_time,omitempty"`
}

type CreateSprintRequest struct {
	Name      string `json:"name"`
	Goal      string `json:"goal,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type UpdateSprintRequest struct {
	Name      *string `json:"name,omitempty"`
	Goal      *string `json:"goal,omitempty"`
	StartDate *string `json:"start_date,omitempty" nullable:"true"`
	EndDate   *string `json:"end_date,omitempty" nullable:"true"`
}

type StartSprintRequest struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

type CreateRuleRequest struct {
	Name             string          `json:"name"`
	TriggerEvent     string          `json:"trigger_event" enum:"ISSUE_CREATED,ISSUE_UPDATED,ISSUE_COMMENTED,STATUS_CHANGED,ASSIGNEE_CHANGED,SPRINT_STARTED,SPRINT_COMPLETED"`
	Conditions       json.RawMessage `json:"conditions,omitempty"`
	ActionType       string          `json:"action_type" enum:"UPDATE_STATUS,ASSIGN_USER,ADD_COMMENT,SET_PRIORITY,SEND_NOTIFICATION"`
	ActionParameters json.RawMessage `json:"action_parameters,omitempty"`
	Active           *bool           `json:"active,omitempty"`
}

type UpdateRuleRequest struct {
	Name             *string         `json:"name,omitempty"`
	TriggerEvent     *string         `json:"trigger_event,omitempty" enum:"ISSUE_CREATED,ISSUE_UPDATED,ISSUE_COMMENTED,STATUS_CHANGED,ASSIGNEE_CHANGED,SPRINT_STARTED,SPRINT_COMPLETED"`
	Conditions       json.RawMessage `json:"conditions,omitempty"`
	ActionType       *string         `json:"action_type,omitempty" enum:"UPDATE_STATUS,ASSIGN_USER,ADD_COMMENT,SET_PRIORITY,SEND_NOTIFICATION"`
	ActionParameters json.RawMessage `json:"action_parameters,omitempty"`
	Active           *bool           `json:"active,omitempty"`
}

type SendNotificationRequest struct {
	UserID  string `json:"user_id"`
	IssueID string `json:"issue_id,omitempty"`
	Message string `json:"message"`
}

// Response payloads

type MeResponse struct {
	User                domain.User `json:"user"`
	Roles               []string    `json:"roles"`
	UnreadNotifications int         `json:"unread_notifications"`
	AuthSource          string      `json:"auth_source,omitempty"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type APIKeyResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type TimeSpentResponse struct {
	Seconds int64   `json:"seconds"`
	Hours   float64 `json:"hours"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

func timeSpent(seconds int64) TimeSpentResponse {
	return TimeSpentResponse{Seconds: seconds, Hours: float64(seconds) / 3600}
}

// rawJSON turns an optional JSON document into its string form; strings are
// accepted as already-encoded documents.
func rawJSON(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}

func optionalRawJSON(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := rawJSON(raw)
	return &s
}

// patchFrom maps a nullable request field onto a tri-state patch.
func patchFrom(raw map[string]json.RawMessage, key string, v *string) engine.Patch[string] {
	if v != nil {
		if strings.TrimSpace(*v) == "" {
			return engine.PatchClear[string]()
		}
		return engine.PatchTo(*v)
	}
	if r, ok := raw[key]; ok && isNullRaw(r) {
		return engine.PatchClear[string]()
	}
	return engine.Patch[string]{}
}

func (r UpdateIssueRequest) toUpdate(raw map[string]json.RawMessage) engine.IssueUpdate {
	u := engine.IssueUpdate{
		Title:          r.Title,
		Description:    r.Description,
		Assignee:       patchFrom(raw, "assignee_id", r.AssigneeID),
		Sprint:         patchFrom(raw, "sprint_id", r.SprintID),
		Parent:         patchFrom(raw, "parent_id", r.ParentID),
		DueDate:        patchFrom(raw, "due_date", r.DueDate),
		EstimatedHours: r.EstimatedHours,
		StoryPoints:    r.StoryPoints,
		LabelIDs:       r.LabelIDs,
	}
	if r.Type != nil {
		t := domain.IssueType(strings.ToUpper(*r.Type))
		u.Type = &t
	}
	if r.Priority != nil {
		pr := domain.IssuePriority(strings.ToUpper(*r.Priority))
		u.Priority = &pr
	}
	if r.Status != nil {
		s := domain.IssueStatus(strings.ToUpper(*r.Status))
		u.Status = &s
	}
	return u
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
