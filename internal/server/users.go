package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"trackline/internal/domain"
	"trackline/internal/engine"
)

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, _ *struct{}) (*out[[]domain.User], error) {
		if _, authErr := principalFrom(ctx); authErr != nil {
			return nil, authErr
		}
		users, err := e.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(users)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create a user (admin)",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*out[domain.User], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUser(ctx, p, engine.UserCreateOptions{
			Username:    input.Body.Username,
			DisplayName: input.Body.DisplayName,
			Email:       input.Body.Email,
			Roles:       input.Body.Roles,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{id}",
		Summary:     "Get a user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[domain.User], error) {
		if _, authErr := principalFrom(ctx); authErr != nil {
			return nil, authErr
		}
		u, err := e.GetUser(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(u), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "grant-role",
		Method:        http.MethodPost,
		Path:          "/users/{id}/roles",
		Summary:       "Grant a role (admin)",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body RoleRequest `json:"body"`
	}) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantRole(ctx, p, input.ID, input.Body.Role); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-role",
		Method:        http.MethodDelete,
		Path:          "/users/{id}/roles/{role}",
		Summary:       "Revoke a role (admin)",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Role string `path:"role"`
	}) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeRole(ctx, p, input.ID, input.Role); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/users/{id}/api-keys",
		Summary:       "Mint an API key; the plaintext is returned once",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body CreateAPIKeyRequest `json:"body"`
	}) (*out[APIKeyResponse], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plain, key, err := e.CreateAPIKey(ctx, p, input.ID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(APIKeyResponse{ID: key.ID, Key: plain}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-user-work-logs",
		Method:      http.MethodGet,
		Path:        "/users/{id}/work-logs",
		Summary:     "List a user's work logs in a date window",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		From string `query:"from"`
		To   string `query:"to"`
	}) (*out[[]domain.WorkLog], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		logs, err := e.ListUserWorkLogs(ctx, p, input.ID, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(logs)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-time-spent",
		Method:      http.MethodGet,
		Path:        "/users/{id}/time-spent",
		Summary:     "Total time a user logged in a date window",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		From string `query:"from"`
		To   string `query:"to"`
	}) (*out[TimeSpentResponse], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		total, err := e.UserTimeSpent(ctx, p, input.ID, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(timeSpent(total)), nil
	})
}
