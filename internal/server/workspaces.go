package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"trackline/internal/domain"
	"trackline/internal/engine"
)

func registerWorkspaces(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-workspaces",
		Method:      http.MethodGet,
		Path:        "/workspaces",
		Summary:     "List visible workspaces",
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.Workspace], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListWorkspaces(ctx, p)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-workspace",
		Method:        http.MethodPost,
		Path:          "/workspaces",
		Summary:       "Create a workspace owned by the caller",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkspaceRequest `json:"body"`
	}) (*out[domain.Workspace], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ws, err := e.CreateWorkspace(ctx, p, engine.WorkspaceCreateOptions{
			Name:        input.Body.Name,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ws), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workspace",
		Method:      http.MethodGet,
		Path:        "/workspaces/{id}",
		Summary:     "Get a workspace",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[domain.Workspace], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ws, err := e.GetWorkspace(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ws), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-workspace",
		Method:        http.MethodDelete,
		Path:          "/workspaces/{id}",
		Summary:       "Delete a workspace",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteWorkspace(ctx, p, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work-lists",
		Method:      http.MethodGet,
		Path:        "/workspaces/{id}/work-lists",
		Summary:     "List work-lists the caller contributes to",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[[]domain.WorkList], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListWorkLists(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-work-list",
		Method:        http.MethodPost,
		Path:          "/workspaces/{id}/work-lists",
		Summary:       "Create a work-list",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body CreateWorkListRequest `json:"body"`
	}) (*out[domain.WorkList], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		wl, err := e.CreateWorkList(ctx, p, engine.WorkListCreateOptions{
			WorkspaceID: input.ID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			LeadID:      input.Body.LeadID,
			MemberIDs:   input.Body.MemberIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(wl), nil
	})
}

func registerWorkLists(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-work-list",
		Method:      http.MethodGet,
		Path:        "/work-lists/{id}",
		Summary:     "Get a work-list",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[domain.WorkList], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		wl, err := e.GetWorkList(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(wl), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-work-list",
		Method:      http.MethodPatch,
		Path:        "/work-lists/{id}",
		Summary:     "Update a work-list",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body UpdateWorkListRequest `json:"body"`
	}) (*out[domain.WorkList], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		wl, err := e.UpdateWorkList(ctx, p, input.ID, engine.WorkListUpdate{
			Name:        input.Body.Name,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(wl), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-work-list",
		Method:        http.MethodDelete,
		Path:          "/work-lists/{id}",
		Summary:       "Delete a work-list",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteWorkList(ctx, p, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-work-list-lead",
		Method:      http.MethodPut,
		Path:        "/work-lists/{id}/lead",
		Summary:     "Set or clear the work-list lead",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body SetLeadRequest `json:"body"`
	}) (*out[domain.WorkList], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		wl, err := e.SetLead(ctx, p, input.ID, strings.TrimSpace(input.Body.LeadID))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(wl), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-work-list-member",
		Method:        http.MethodPost,
		Path:          "/work-lists/{id}/members",
		Summary:       "Add a member",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body MemberRequest `json:"body"`
	}) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.AddMember(ctx, p, input.ID, input.Body.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-work-list-member",
		Method:        http.MethodDelete,
		Path:          "/work-lists/{id}/members/{user_id}",
		Summary:       "Remove a member",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveMember(ctx, p, input.ID, input.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-labels",
		Method:      http.MethodGet,
		Path:        "/work-lists/{id}/labels",
		Summary:     "List labels",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[[]domain.Label], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListLabels(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-label",
		Method:        http.MethodPost,
		Path:          "/work-lists/{id}/labels",
		Summary:       "Create a label",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body CreateLabelRequest `json:"body"`
	}) (*out[domain.Label], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := e.CreateLabel(ctx, p, input.ID, input.Body.Name, input.Body.Color)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(l), nil
	})
}

func registerBoards(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-boards",
		Method:      http.MethodGet,
		Path:        "/work-lists/{id}/boards",
		Summary:     "List boards",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[[]domain.Board], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListBoards(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-board",
		Method:        http.MethodPost,
		Path:          "/work-lists/{id}/boards",
		Summary:       "Create a board; without columns one per status is made",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body CreateBoardRequest `json:"body"`
	}) (*out[domain.Board], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cols := make([]engine.BoardColumnOptions, 0, len(input.Body.Columns))
		for _, c := range input.Body.Columns {
			cols = append(cols, engine.BoardColumnOptions{Name: c.Name, Status: domain.IssueStatus(strings.ToUpper(c.Status))})
		}
		b, err := e.CreateBoard(ctx, p, input.ID, input.Body.Name, cols)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(b), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/boards/{id}",
		Summary:     "Get a board",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[domain.Board], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.GetBoard(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(b), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-board",
		Method:        http.MethodDelete,
		Path:          "/boards/{id}",
		Summary:       "Delete a board",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteBoard(ctx, p, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
