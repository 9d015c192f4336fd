package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"trackline/internal/domain"
	"trackline/internal/engine"
)

func registerRules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-rules",
		Method:      http.MethodGet,
		Path:        "/work-lists/{id}/rules",
		Summary:     "List automation rules",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID         string `path:"id"`
		ActiveOnly bool   `query:"active"`
	}) (*out[[]domain.AutomationRule], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListRules(ctx, p, input.ID, input.ActiveOnly)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-rule",
		Method:        http.MethodPost,
		Path:          "/work-lists/{id}/rules",
		Summary:       "Create an automation rule",
		Description:   "conditions is a JSON object of field equality checks; action_parameters depends on action_type.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body CreateRuleRequest `json:"body"`
	}) (*out[domain.AutomationRule], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		r, err := e.CreateRule(ctx, p, engine.RuleCreateOptions{
			WorkListID:   input.ID,
			Name:         b.Name,
			TriggerEvent: domain.TriggerEvent(strings.ToUpper(b.TriggerEvent)),
			Conditions:   rawJSON(b.Conditions),
			ActionType:   domain.ActionType(strings.ToUpper(b.ActionType)),
			ActionParams: rawJSON(b.ActionParameters),
			Active:       b.Active,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(r), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-rule",
		Method:      http.MethodGet,
		Path:        "/rules/{id}",
		Summary:     "Get a rule",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[domain.AutomationRule], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.GetRule(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(r), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-rule",
		Method:      http.MethodPatch,
		Path:        "/rules/{id}",
		Summary:     "Update a rule",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateRuleRequest `json:"body"`
	}) (*out[domain.AutomationRule], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		u := engine.RuleUpdate{
			Name:         b.Name,
			Conditions:   optionalRawJSON(b.Conditions),
			ActionParams: optionalRawJSON(b.ActionParameters),
			Active:       b.Active,
		}
		if b.TriggerEvent != nil {
			t := domain.TriggerEvent(strings.ToUpper(*b.TriggerEvent))
			u.TriggerEvent = &t
		}
		if b.ActionType != nil {
			a := domain.ActionType(strings.ToUpper(*b.ActionType))
			u.ActionType = &a
		}
		r, err := e.UpdateRule(ctx, p, input.ID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(r), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-rule",
		Method:      http.MethodPost,
		Path:        "/rules/{id}/toggle",
		Summary:     "Flip a rule between active and inactive",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[domain.AutomationRule], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.ToggleRule(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(r), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-rule",
		Method:        http.MethodDelete,
		Path:          "/rules/{id}",
		Summary:       "Delete a rule",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteRule(ctx, p, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rule-runs",
		Method:      http.MethodGet,
		Path:        "/rules/{id}/runs",
		Summary:     "Recent evaluations of a rule",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"50"`
	}) (*out[[]domain.AutomationRun], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		runs, err := e.ListRuleRuns(ctx, p, input.ID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(runs)), nil
	})
}
