package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"trackline/internal/domain"
	"trackline/internal/engine"
)

type sprintIDInput struct {
	ID string `path:"id"`
}

type sprintIssueInput struct {
	ID      string `path:"id"`
	IssueID string `path:"issue_id"`
}

func registerSprints(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sprints",
		Method:      http.MethodGet,
		Path:        "/work-lists/{id}/sprints",
		Summary:     "List sprints",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID         string `path:"id"`
		ActiveOnly bool   `query:"active"`
	}) (*out[[]domain.Sprint], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListSprints(ctx, p, input.ID, input.ActiveOnly)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-sprint",
		Method:        http.MethodPost,
		Path:          "/work-lists/{id}/sprints",
		Summary:       "Create a sprint in PLANNING",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body CreateSprintRequest `json:"body"`
	}) (*out[domain.Sprint], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sp, err := e.CreateSprint(ctx, p, engine.SprintCreateOptions{
			WorkListID: input.ID,
			Name:       input.Body.Name,
			Goal:       input.Body.Goal,
			StartDate:  input.Body.StartDate,
			EndDate:    input.Body.EndDate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sprint",
		Method:      http.MethodGet,
		Path:        "/sprints/{id}",
		Summary:     "Get a sprint",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sprintIDInput) (*out[domain.Sprint], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sp, err := e.GetSprint(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-sprint",
		Method:      http.MethodPatch,
		Path:        "/sprints/{id}",
		Summary:     "Update sprint details",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateSprintRequest `json:"body"`
	}) (*out[domain.Sprint], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw := rawBodyMap(ctx)
		sp, err := e.UpdateSprint(ctx, p, input.ID, engine.SprintUpdate{
			Name:      input.Body.Name,
			Goal:      input.Body.Goal,
			StartDate: patchFrom(raw, "start_date", input.Body.StartDate),
			EndDate:   patchFrom(raw, "end_date", input.Body.EndDate),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-sprint",
		Method:        http.MethodDelete,
		Path:          "/sprints/{id}",
		Summary:       "Delete a sprint; its issues return to the backlog",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *sprintIDInput) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteSprint(ctx, p, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-sprint",
		Method:      http.MethodPost,
		Path:        "/sprints/{id}/start",
		Summary:     "Start a PLANNING sprint",
		Description: "Fails with invalid_transition when another sprint in the work-list is ACTIVE.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body *StartSprintRequest
	}) (*out[domain.Sprint], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var start, end string
		if input.Body != nil {
			start, end = input.Body.StartDate, input.Body.EndDate
		}
		sp, err := e.StartSprint(ctx, p, input.ID, start, end)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-sprint",
		Method:      http.MethodPost,
		Path:        "/sprints/{id}/complete",
		Summary:     "Complete the ACTIVE sprint",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *sprintIDInput) (*out[domain.Sprint], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sp, err := e.CompleteSprint(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-sprint",
		Method:      http.MethodPost,
		Path:        "/sprints/{id}/cancel",
		Summary:     "Cancel a PLANNING or ACTIVE sprint",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *sprintIDInput) (*out[domain.Sprint], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sp, err := e.CancelSprint(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(sp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-sprint-issue",
		Method:      http.MethodPut,
		Path:        "/sprints/{id}/issues/{issue_id}",
		Summary:     "Add an issue to a sprint",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *sprintIssueInput) (*out[domain.Issue], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.AddIssueToSprint(ctx, p, input.ID, input.IssueID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(is), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-sprint-issue",
		Method:      http.MethodDelete,
		Path:        "/sprints/{id}/issues/{issue_id}",
		Summary:     "Move an issue from a sprint back to the backlog",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *sprintIssueInput) (*out[domain.Issue], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.RemoveIssueFromSprint(ctx, p, input.ID, input.IssueID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(is), nil
	})
}
