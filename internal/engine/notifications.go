package engine

import (
	"context"
	"strings"

	"trackline/internal/domain"
	"trackline/internal/engine/auth"
	"trackline/internal/rules"
)

// SendNotification delivers a message to userID. Issue-linked notifications
// need read access to the issue; free-form ones are for admins or the
// recipient themself.
func (e Engine) SendNotification(ctx context.Context, p domain.Principal, userID, issueID, message string) (domain.Notification, error) {
	if strings.TrimSpace(message) == "" {
		return domain.Notification{}, invalid("message", "required")
	}
	n := domain.Notification{UserID: userID, Message: strings.TrimSpace(message), Kind: "info"}
	if issueID != "" {
		is, err := e.GetIssue(ctx, p, issueID)
		if err != nil {
			return n, err
		}
		n.IssueID = &is.ID
		n.Link = rules.IssueLink(is.ID)
	} else if userID != p.UserID && !p.HasRole(domain.RoleAdmin) {
		return n, auth.PermissionDeniedError{Kind: "notification", ID: userID}
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return n, err
	}
	if e.Notifier == nil {
		return n, invalid("notifier", "not configured")
	}
	return e.Notifier.Send(ctx, n)
}

// ListNotifications returns the principal's own notifications.
func (e Engine) ListNotifications(ctx context.Context, p domain.Principal, unreadOnly bool) ([]domain.Notification, error) {
	if p.UserID == "" {
		return nil, auth.PermissionDeniedError{Kind: "notification"}
	}
	return e.Repo.ListNotifications(ctx, p.UserID, unreadOnly)
}

func (e Engine) UnreadCount(ctx context.Context, p domain.Principal) (int, error) {
	return e.Repo.CountUnreadNotifications(ctx, p.UserID)
}

// MarkRead only touches the principal's notifications; other users' ids are
// reported as not found.
func (e Engine) MarkRead(ctx context.Context, p domain.Principal, id string) error {
	return e.Repo.MarkNotificationRead(ctx, p.UserID, id)
}

func (e Engine) MarkAllRead(ctx context.Context, p domain.Principal) (int64, error) {
	return e.Repo.MarkAllNotificationsRead(ctx, p.UserID)
}

func (e Engine) DeleteNotification(ctx context.Context, p domain.Principal, id string) error {
	return e.Repo.DeleteNotification(ctx, p.UserID, id)
}
