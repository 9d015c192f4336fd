package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"trackline/internal/domain"
	"trackline/internal/engine"
	"trackline/internal/repo"
)

type issueFilterQuery struct {
	WorkListID string `query:"work_list_id"`
	Status     string `query:"status" enum:"TODO,IN_PROGRESS,IN_REVIEW,DONE"`
	Priority   string `query:"priority" enum:"LOWEST,LOW,MEDIUM,HIGH,HIGHEST"`
	Type       string `query:"type" enum:"TASK,BUG,STORY,EPIC,SUBTASK"`
	AssigneeID string `query:"assignee_id"`
	ReporterID string `query:"reporter_id"`
	SprintID   string `query:"sprint_id"`
	ParentID   string `query:"parent_id"`
	LabelID    string `query:"label_id"`
	Backlog    bool   `query:"backlog"`
	Limit      int    `query:"limit" default:"50"`
}

func (q issueFilterQuery) filters() repo.IssueFilters {
	return repo.IssueFilters{
		WorkListID: q.WorkListID,
		Status:     q.Status,
		Priority:   q.Priority,
		Type:       q.Type,
		AssigneeID: q.AssigneeID,
		ReporterID: q.ReporterID,
		SprintID:   q.SprintID,
		ParentID:   q.ParentID,
		LabelID:    q.LabelID,
		Backlog:    q.Backlog,
		Limit:      normalizeLimit(q.Limit),
	}
}

func registerIssues(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-issues",
		Method:      http.MethodGet,
		Path:        "/issues",
		Summary:     "Search issues",
		Description: "Without work_list_id, sprint_id or parent_id only the caller's own assigned or reported issues are visible, unless the caller is an admin.",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *issueFilterQuery) (*out[[]domain.Issue], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListIssues(ctx, p, input.filters())
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-issue",
		Method:        http.MethodPost,
		Path:          "/work-lists/{id}/issues",
		Summary:       "Create an issue",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body CreateIssueRequest `json:"body"`
	}) (*out[domain.Issue], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		is, err := e.CreateIssue(ctx, p, engine.IssueCreateOptions{
			WorkListID:     input.ID,
			Title:          b.Title,
			Description:    b.Description,
			Type:           domain.IssueType(strings.ToUpper(b.Type)),
			Priority:       domain.IssuePriority(strings.ToUpper(b.Priority)),
			AssigneeID:     b.AssigneeID,
			ParentID:       b.ParentID,
			SprintID:       b.SprintID,
			DueDate:        b.DueDate,
			EstimatedHours: b.EstimatedHours,
			StoryPoints:    b.StoryPoints,
			LabelIDs:       b.LabelIDs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(is), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-overdue-issues",
		Method:      http.MethodGet,
		Path:        "/issues/overdue",
		Summary:     "List unfinished issues past their due date",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		WorkListID string `query:"work_list_id"`
	}) (*out[[]domain.Issue], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.OverdueIssues(ctx, p, input.WorkListID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-issue",
		Method:      http.MethodGet,
		Path:        "/issues/{id}",
		Summary:     "Get an issue",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[domain.Issue], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.GetIssue(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(is), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-issue",
		Method:      http.MethodPatch,
		Path:        "/issues/{id}",
		Summary:     "Partially update an issue",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body UpdateIssueRequest `json:"body"`
	}) (*out[domain.Issue], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.UpdateIssue(ctx, p, input.ID, input.Body.toUpdate(rawBodyMap(ctx)))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(is), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-issue",
		Method:        http.MethodDelete,
		Path:          "/issues/{id}",
		Summary:       "Delete an issue; sub-issues are detached",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteIssue(ctx, p, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-issue-status",
		Method:      http.MethodPut,
		Path:        "/issues/{id}/status",
		Summary:     "Change the issue status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body StatusRequest `json:"body"`
	}) (*out[domain.Issue], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.TransitionStatus(ctx, p, input.ID, domain.IssueStatus(strings.ToUpper(input.Body.Status)))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(is), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reassign-issue",
		Method:      http.MethodPut,
		Path:        "/issues/{id}/assignee",
		Summary:     "Assign or unassign an issue",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body AssigneeRequest `json:"body"`
	}) (*out[domain.Issue], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.Reassign(ctx, p, input.ID, strings.TrimSpace(input.Body.AssigneeID))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(is), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-issue-sprint",
		Method:      http.MethodPut,
		Path:        "/issues/{id}/sprint",
		Summary:     "Move an issue to a sprint or the backlog",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body IssueSprintRequest `json:"body"`
	}) (*out[domain.Issue], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		is, err := e.ReassignSprint(ctx, p, input.ID, strings.TrimSpace(input.Body.SprintID))
		if err != nil {
			return nil, handleError(err)
		}
		return reply(is), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sub-issues",
		Method:      http.MethodGet,
		Path:        "/issues/{id}/sub-issues",
		Summary:     "List direct sub-issues",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[[]domain.Issue], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.SubIssues(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})
}

// registerIssueExtras covers comments, attachments and work logs.
func registerIssueExtras(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/issues/{id}/comments",
		Summary:     "List comments",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[[]domain.Comment], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListComments(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/issues/{id}/comments",
		Summary:       "Comment on an issue",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body CommentRequest `json:"body"`
	}) (*out[domain.Comment], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddComment(ctx, p, input.ID, input.Body.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-comment",
		Method:        http.MethodDelete,
		Path:          "/comments/{id}",
		Summary:       "Delete a comment",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteComment(ctx, p, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-attachments",
		Method:      http.MethodGet,
		Path:        "/issues/{id}/attachments",
		Summary:     "List attachment metadata",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[[]domain.Attachment], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListAttachments(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-attachment",
		Method:        http.MethodPost,
		Path:          "/issues/{id}/attachments",
		Summary:       "Record attachment metadata",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body AttachmentRequest `json:"body"`
	}) (*out[domain.Attachment], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AddAttachment(ctx, p, engine.AttachmentOptions{
			IssueID:     input.ID,
			FileName:    input.Body.FileName,
			ContentType: input.Body.ContentType,
			SizeBytes:   input.Body.SizeBytes,
			StorageKey:  input.Body.StorageKey,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(a), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-attachment",
		Method:        http.MethodDelete,
		Path:          "/attachments/{id}",
		Summary:       "Delete attachment metadata",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAttachment(ctx, p, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-work-logs",
		Method:      http.MethodGet,
		Path:        "/issues/{id}/work-logs",
		Summary:     "List work logs on an issue",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[[]domain.WorkLog], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListWorkLogs(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(nonNilSlice(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "log-work",
		Method:        http.MethodPost,
		Path:          "/issues/{id}/work-logs",
		Summary:       "Log time on an issue",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body WorkLogRequest `json:"body"`
	}) (*out[domain.WorkLog], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		wl, err := e.LogWork(ctx, p, engine.WorkLogOptions{
			IssueID:          input.ID,
			TimeSpentSeconds: input.Body.TimeSpentSeconds,
			Description:      input.Body.Description,
			StartTime:        input.Body.StartTime,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(wl), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "issue-time-spent",
		Method:      http.MethodGet,
		Path:        "/issues/{id}/time-spent",
		Summary:     "Total time logged on an issue",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*out[TimeSpentResponse], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		total, err := e.IssueTimeSpent(ctx, p, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(timeSpent(total)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-work-log",
		Method:      http.MethodPatch,
		Path:        "/work-logs/{id}",
		Summary:     "Update a work log",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateWorkLogRequest `json:"body"`
	}) (*out[domain.WorkLog], error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		wl, err := e.UpdateWorkLog(ctx, p, input.ID, engine.WorkLogUpdate{
			TimeSpentSeconds: input.Body.TimeSpentSeconds,
			Description:      input.Body.Description,
			StartTime:        input.Body.StartTime,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(wl), nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-work-log",
		Method:        http.MethodDelete,
		Path:          "/work-logs/{id}",
		Summary:       "Delete a work log",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, authErr := principalFrom(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteWorkLog(ctx, p, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
