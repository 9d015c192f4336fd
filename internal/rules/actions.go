package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"trackline/internal/domain"
)

// Action is one variant of the rule action union. Each variant carries its own
// typed parameters, decoded once from the rule's parameter document.
type Action interface {
	Type() domain.ActionType
}

type UpdateStatus struct {
	Status domain.IssueStatus
}

type AssignUser struct {
	UserID string
}

type AddComment struct {
	Body string
}

type SetPriority struct {
	Priority domain.IssuePriority
}

type SendNotification struct {
	Message string
}

func (UpdateStatus) Type() domain.ActionType     { return domain.ActionUpdateStatus }
func (AssignUser) Type() domain.ActionType       { return domain.ActionAssignUser }
func (AddComment) Type() domain.ActionType       { return domain.ActionAddComment }
func (SetPriority) Type() domain.ActionType      { return domain.ActionSetPriority }
func (SendNotification) Type() domain.ActionType { return domain.ActionSendNotification }

var errNoParams = errors.New("action parameters required")

// DecodeAction turns an action type and its parameter document into a typed action.
//
// Parameter keys: UPDATE_STATUS {"status"}, ASSIGN_USER {"userId"},
// ADD_COMMENT {"comment"}, SET_PRIORITY {"priority"}, SEND_NOTIFICATION {"message"}.
// userId may be a JSON string or number.
func DecodeAction(t domain.ActionType, doc string) (Action, error) {
	doc = strings.TrimSpace(doc)
	if doc == "" || doc == "null" {
		return nil, errNoParams
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(doc), &params); err != nil {
		return nil, fmt.Errorf("parse action parameters: %w", err)
	}
	switch t {
	case domain.ActionUpdateStatus:
		s, err := stringParam(params, "status")
		if err != nil {
			return nil, err
		}
		status := domain.IssueStatus(s)
		if !status.Valid() {
			return nil, fmt.Errorf("unknown status %q", s)
		}
		return UpdateStatus{Status: status}, nil
	case domain.ActionAssignUser:
		raw, ok := params["userId"]
		if !ok {
			return nil, errors.New("userId required")
		}
		var id string
		switch v := raw.(type) {
		case string:
			id = v
		case float64:
			id = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return nil, errors.New("userId must be a string or number")
		}
		if id == "" {
			return nil, errors.New("userId required")
		}
		return AssignUser{UserID: id}, nil
	case domain.ActionAddComment:
		s, err := stringParam(params, "comment")
		if err != nil {
			return nil, err
		}
		return AddComment{Body: s}, nil
	case domain.ActionSetPriority:
		s, err := stringParam(params, "priority")
		if err != nil {
			return nil, err
		}
		prio := domain.IssuePriority(s)
		if !prio.Valid() {
			return nil, fmt.Errorf("unknown priority %q", s)
		}
		return SetPriority{Priority: prio}, nil
	case domain.ActionSendNotification:
		s, err := stringParam(params, "message")
		if err != nil {
			return nil, err
		}
		return SendNotification{Message: s}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}
}

func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("%s required", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}
