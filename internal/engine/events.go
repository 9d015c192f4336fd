package engine

import (
	"context"

	"trackline/internal/domain"
	"trackline/internal/engine/auth"
)

// ListEvents reads the event log newest first. Without a work-list only
// admins may read it.
func (e Engine) ListEvents(ctx context.Context, p domain.Principal, workListID, entityKind, entityID string, limit int) ([]domain.Event, error) {
	if workListID != "" {
		if err := e.Auth.RequireContributor(ctx, p, workListID); err != nil {
			return nil, err
		}
	} else if !p.HasRole(domain.RoleAdmin) {
		return nil, auth.PermissionDeniedError{Kind: auth.KindWorkList}
	}
	return e.Repo.ListEvents(ctx, workListID, entityKind, entityID, limit)
}

// EventsAfter returns events with id greater than afterID in append order.
func (e Engine) EventsAfter(ctx context.Context, p domain.Principal, workListID string, afterID int64, limit int) ([]domain.Event, error) {
	if workListID != "" {
		if err := e.Auth.RequireContributor(ctx, p, workListID); err != nil {
			return nil, err
		}
	} else if !p.HasRole(domain.RoleAdmin) {
		return nil, auth.PermissionDeniedError{Kind: auth.KindWorkList}
	}
	return e.Repo.EventsAfter(ctx, workListID, afterID, limit)
}
