package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"trackline/internal/domain"
	"trackline/internal/engine/auth"
	"trackline/internal/events"
)

type BoardColumnOptions struct {
	Name   string
	Status domain.IssueStatus
}

// CreateBoard stores a board for a work-list. Without columns, one column per
// issue status is created.
func (e Engine) CreateBoard(ctx context.Context, p domain.Principal, workListID, name string, columns []BoardColumnOptions) (domain.Board, error) {
	b := domain.Board{
		ID:         uuid.NewString(),
		WorkListID: workListID,
		Name:       strings.TrimSpace(name),
		CreatedAt:  e.stamp(),
	}
	if b.Name == "" {
		return b, invalid("name", "required")
	}
	if len(columns) == 0 {
		for _, s := range domain.IssueStatuses {
			columns = append(columns, BoardColumnOptions{Name: strings.ReplaceAll(string(s), "_", " "), Status: s})
		}
	}
	for i, c := range columns {
		if !c.Status.Valid() {
			return b, invalid(fmt.Sprintf("columns[%d].status", i), fmt.Sprintf("unknown status %q", c.Status))
		}
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = string(c.Status)
		}
		b.Columns = append(b.Columns, domain.BoardColumn{ID: uuid.NewString(), Name: name, Status: c.Status, Position: i})
	}
	if _, err := e.Repo.GetWorkList(ctx, workListID); err != nil {
		return b, err
	}
	if err := e.Auth.Require(ctx, p, auth.KindWorkList, workListID); err != nil {
		return b, err
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertBoard(ctx, tx, b); err != nil {
			return fmt.Errorf("insert board: %w", err)
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type: "board.created", WorkListID: workListID, EntityKind: events.KindBoard, EntityID: b.ID,
			ActorID: p.UserID, Payload: events.Payload{"name": b.Name, "columns": len(b.Columns)},
		})
	})
	return b, err
}

func (e Engine) GetBoard(ctx context.Context, p domain.Principal, id string) (domain.Board, error) {
	b, err := e.Repo.GetBoard(ctx, id)
	if err != nil {
		return b, err
	}
	if err := e.Auth.RequireContributor(ctx, p, b.WorkListID); err != nil {
		return domain.Board{}, err
	}
	return b, nil
}

func (e Engine) ListBoards(ctx context.Context, p domain.Principal, workListID string) ([]domain.Board, error) {
	if _, err := e.Repo.GetWorkList(ctx, workListID); err != nil {
		return nil, err
	}
	if err := e.Auth.RequireContributor(ctx, p, workListID); err != nil {
		return nil, err
	}
	return e.Repo.ListBoards(ctx, workListID)
}

func (e Engine) DeleteBoard(ctx context.Context, p domain.Principal, id string) error {
	b, err := e.Repo.GetBoard(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Auth.Require(ctx, p, auth.KindBoard, id); err != nil {
		return err
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeleteBoard(ctx, tx, id); err != nil {
			return err
		}
		return e.appendEvent(ctx, tx, events.Record{
			Type: "board.deleted", WorkListID: b.WorkListID, EntityKind: events.KindBoard, EntityID: id, ActorID: p.UserID,
		})
	})
}
