package domain

type IssueStatus string

const (
	StatusTodo       IssueStatus = "TODO"
	StatusInProgress IssueStatus = "IN_PROGRESS"
	StatusInReview   IssueStatus = "IN_REVIEW"
	StatusDone       IssueStatus = "DONE"
)

type IssuePriority string

const (
	PriorityLowest  IssuePriority = "LOWEST"
	PriorityLow     IssuePriority = "LOW"
	PriorityMedium  IssuePriority = "MEDIUM"
	PriorityHigh    IssuePriority = "HIGH"
	PriorityHighest IssuePriority = "HIGHEST"
)

type IssueType string

const (
	TypeTask    IssueType = "TASK"
	TypeBug     IssueType = "BUG"
	TypeStory   IssueType = "STORY"
	TypeEpic    IssueType = "EPIC"
	TypeSubtask IssueType = "SUBTASK"
)

type SprintStatus string

const (
	SprintPlanning  SprintStatus = "PLANNING"
	SprintActive    SprintStatus = "ACTIVE"
	SprintCompleted SprintStatus = "COMPLETED"
	SprintCancelled SprintStatus = "CANCELLED"
)

// TriggerEvent names a lifecycle occurrence the rule engine listens for.
type TriggerEvent string

const (
	TriggerIssueCreated    TriggerEvent = "ISSUE_CREATED"
	TriggerIssueUpdated    TriggerEvent = "ISSUE_UPDATED"
	TriggerIssueCommented  TriggerEvent = "ISSUE_COMMENTED"
	TriggerStatusChanged   TriggerEvent = "STATUS_CHANGED"
	TriggerAssigneeChanged TriggerEvent = "ASSIGNEE_CHANGED"
	TriggerSprintStarted   TriggerEvent = "SPRINT_STARTED"
	TriggerSprintCompleted TriggerEvent = "SPRINT_COMPLETED"
)

type ActionType string

const (
	ActionUpdateStatus     ActionType = "UPDATE_STATUS"
	ActionAssignUser       ActionType = "ASSIGN_USER"
	ActionAddComment       ActionType = "ADD_COMMENT"
	ActionSetPriority      ActionType = "SET_PRIORITY"
	ActionSendNotification ActionType = "SEND_NOTIFICATION"
)

// RoleAdmin is the global administrative role.
const RoleAdmin = "ADMIN"

var (
	IssueStatuses   = []IssueStatus{StatusTodo, StatusInProgress, StatusInReview, StatusDone}
	IssuePriorities = []IssuePriority{PriorityLowest, PriorityLow, PriorityMedium, PriorityHigh, PriorityHighest}
	IssueTypes      = []IssueType{TypeTask, TypeBug, TypeStory, TypeEpic, TypeSubtask}
	TriggerEvents   = []TriggerEvent{
		TriggerIssueCreated, TriggerIssueUpdated, TriggerIssueCommented, TriggerStatusChanged,
		TriggerAssigneeChanged, TriggerSprintStarted, TriggerSprintCompleted,
	}
	ActionTypes = []ActionType{
		ActionUpdateStatus, ActionAssignUser, ActionAddComment, ActionSetPriority, ActionSendNotification,
	}
)

func (s IssueStatus) Valid() bool   { return contains(IssueStatuses, s) }
func (p IssuePriority) Valid() bool { return contains(IssuePriorities, p) }
func (t IssueType) Valid() bool     { return contains(IssueTypes, t) }
func (t TriggerEvent) Valid() bool  { return contains(TriggerEvents, t) }
func (a ActionType) Valid() bool    { return contains(ActionTypes, a) }

func (s SprintStatus) Valid() bool {
	return contains([]SprintStatus{SprintPlanning, SprintActive, SprintCompleted, SprintCancelled}, s)
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Principal is the authenticated user on whose behalf an operation runs.
type Principal struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

func (p Principal) HasRole(role string) bool {
	return contains(p.Roles, role)
}

type User struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

type Workspace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"owner_id"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type WorkList struct {
	ID          string   `json:"id"`
	WorkspaceID string   `json:"workspace_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	LeadID      *string  `json:"lead_id,omitempty"`
	MemberIDs   []string `json:"member_ids,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

type Issue struct {
	ID             string        `json:"id"`
	WorkListID     string        `json:"work_list_id"`
	Title          string        `json:"title"`
	Description    string        `json:"description,omitempty"`
	Type           IssueType     `json:"type" enum:"TASK,BUG,STORY,EPIC,SUBTASK"`
	Priority       IssuePriority `json:"priority" enum:"LOWEST,LOW,MEDIUM,HIGH,HIGHEST"`
	Status         IssueStatus   `json:"status" enum:"TODO,IN_PROGRESS,IN_REVIEW,DONE"`
	ReporterID     string        `json:"reporter_id"`
	AssigneeID     *string       `json:"assignee_id,omitempty"`
	ParentID       *string       `json:"parent_id,omitempty"`
	SprintID       *string       `json:"sprint_id,omitempty"`
	DueDate        *string       `json:"due_date,omitempty" format:"date-time"`
	EstimatedHours *float64      `json:"estimated_hours,omitempty"`
	StoryPoints    *int          `json:"story_points,omitempty"`
	LabelIDs       []string      `json:"label_ids,omitempty"`
	CreatedAt      string        `json:"created_at" format:"date-time"`
	UpdatedAt      string        `json:"updated_at" format:"date-time"`
}

type Label struct {
	ID         string `json:"id"`
	WorkListID string `json:"work_list_id"`
	Name       string `json:"name"`
	Color      string `json:"color,omitempty"`
}

type Sprint struct {
	ID         string       `json:"id"`
	WorkListID string       `json:"work_list_id"`
	Name       string       `json:"name"`
	Goal       string       `json:"goal,omitempty"`
	Status     SprintStatus `json:"status" enum:"PLANNING,ACTIVE,COMPLETED,CANCELLED"`
	StartDate  *string      `json:"start_date,omitempty" format:"date-time"`
	EndDate    *string      `json:"end_date,omitempty" format:"date-time"`
	CreatedAt  string       `json:"created_at" format:"date-time"`
	UpdatedAt  string       `json:"updated_at" format:"date-time"`
}

type AutomationRule struct {
	ID               string       `json:"id"`
	WorkListID       *string      `json:"work_list_id,omitempty"`
	Name             string       `json:"name"`
	TriggerEvent     TriggerEvent `json:"trigger_event"`
	ConditionsJSON   string       `json:"conditions,omitempty"`
	ActionType       ActionType   `json:"action_type"`
	ActionParamsJSON string       `json:"action_parameters,omitempty"`
	Active           bool         `json:"active"`
	CreatedBy        string       `json:"created_by"`
	CreatedAt        string       `json:"created_at" format:"date-time"`
	UpdatedAt        string       `json:"updated_at" format:"date-time"`
}

// AutomationRun is the audit record of one rule evaluation.
type AutomationRun struct {
	ID           int64        `json:"id"`
	RuleID       string       `json:"rule_id"`
	IssueID      string       `json:"issue_id"`
	TriggerEvent TriggerEvent `json:"trigger_event"`
	ActionType   ActionType   `json:"action_type"`
	Outcome      string       `json:"outcome" enum:"applied,skipped,unmatched,failed"`
	Detail       string       `json:"detail,omitempty"`
	ActorID      string       `json:"actor_id"`
	TS           string       `json:"ts" format:"date-time"`
}

type Comment struct {
	ID        string `json:"id"`
	IssueID   string `json:"issue_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Attachment struct {
	ID          string `json:"id"`
	IssueID     string `json:"issue_id"`
	UploaderID  string `json:"uploader_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	StorageKey  string `json:"storage_key,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type WorkLog struct {
	ID               string `json:"id"`
	IssueID          string `json:"issue_id"`
	UserID           string `json:"user_id"`
	TimeSpentSeconds int64  `json:"time_spent_seconds"`
	Description      string `json:"description,omitempty"`
	StartTime        string `json:"start_time" format:"date-time"`
	CreatedAt        string `json:"created_at" format:"date-time"`
}

type Board struct {
	ID         string        `json:"id"`
	WorkListID string        `json:"work_list_id"`
	Name       string        `json:"name"`
	Columns    []BoardColumn `json:"columns,omitempty"`
	CreatedAt  string        `json:"created_at" format:"date-time"`
}

type BoardColumn struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Status   IssueStatus `json:"status" enum:"TODO,IN_PROGRESS,IN_REVIEW,DONE"`
	Position int         `json:"position"`
}

type Notification struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	IssueID   *string `json:"issue_id,omitempty"`
	Kind      string  `json:"kind"`
	Message   string  `json:"message"`
	Link      string  `json:"link,omitempty"`
	Read      bool    `json:"read"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	WorkListID string `json:"work_list_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
