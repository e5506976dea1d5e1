package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"assetline/internal/domain"
	"assetline/internal/engine"
	"assetline/internal/lineage"
	"assetline/internal/relationship"
	"assetline/internal/repo"
	"assetline/internal/workflow"
)

type workflowPath struct {
	WorkflowID string `path:"workflow_id"`
}

func newTasks(in []CreateTaskRequest) []workflow.NewTask {
	out := make([]workflow.NewTask, 0, len(in))
	for _, t := range in {
		out = append(out, workflow.NewTask{TaskType: t.TaskType, ExecutionOrder: t.ExecutionOrder, AssignedTo: t.AssignedTo})
	}
	return out
}

func registerWorkflows(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-workflow",
		Method:        http.MethodPost,
		Path:          "/workflows",
		Summary:       "Create workflow",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkflowRequest `json:"body"`
	}) (*struct {
		Body WorkflowResponse `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, tasks, err := e.CreateWorkflow(ctx, userID, workflow.NewWorkflow{
			Name:       input.Body.Name,
			Priority:   input.Body.Priority,
			AssignedTo: input.Body.AssignedTo,
			Tasks:      newTasks(input.Body.Tasks),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkflowResponse `json:"body"`
		}{Body: WorkflowResponse{Workflow: w, Tasks: nonNilTasks(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workflows",
		Method:      http.MethodGet,
		Path:        "/workflows",
		Summary:     "List workflows",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status" enum:"pending,in_progress,completed,failed,cancelled"`
		AssignedTo string `query:"assigned_to"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedWorkflows `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, badCursor(input.Cursor)
		}
		items, err := e.ListWorkflows(ctx, userID, repo.WorkflowFilters{
			Status:          input.Status,
			AssignedTo:      input.AssignedTo,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedWorkflows{Items: []domain.Workflow{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedWorkflows `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workflow",
		Method:      http.MethodGet,
		Path:        "/workflows/{workflow_id}",
		Summary:     "Get workflow with tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *workflowPath) (*struct {
		Body WorkflowResponse `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, tasks, err := e.GetWorkflow(ctx, userID, input.WorkflowID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkflowResponse `json:"body"`
		}{Body: WorkflowResponse{Workflow: w, Tasks: nonNilTasks(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-workflow",
		Method:      http.MethodDelete,
		Path:        "/workflows/{workflow_id}",
		Summary:     "Delete workflow and its tasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *workflowPath) (*struct{}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteWorkflow(ctx, userID, input.WorkflowID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "workflow-status",
		Method:      http.MethodGet,
		Path:        "/workflows/{workflow_id}/status",
		Summary:     "Workflow status with derived progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *workflowPath) (*struct {
		Body engine.WorkflowStatusView `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.WorkflowStatus(ctx, userID, input.WorkflowID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.WorkflowStatusView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-workflow-status",
		Method:      http.MethodPatch,
		Path:        "/workflows/{workflow_id}/status",
		Summary:     "Start, complete, fail or cancel a workflow",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		WorkflowID string                   `path:"workflow_id"`
		Body       SetWorkflowStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Workflow `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		result, herr := marshalJSON("result_data", input.Body.ResultData)
		if herr != nil {
			return nil, herr
		}
		w, err := e.SetWorkflowStatus(ctx, userID, workflow.WorkflowTransition{
			WorkflowID:     input.WorkflowID,
			Status:         input.Body.Status,
			ResultDataJSON: result,
			ErrorMessage:   input.Body.ErrorMessage,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workflow `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recompute-workflow",
		Method:      http.MethodPost,
		Path:        "/workflows/{workflow_id}/recompute",
		Summary:     "Derive workflow status from its tasks",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *workflowPath) (*struct {
		Body RecomputeResponse `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, changed, err := e.RecomputeWorkflowStatus(ctx, userID, input.WorkflowID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RecomputeResponse `json:"body"`
		}{Body: RecomputeResponse{Workflow: w, Changed: changed}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-task",
		Method:        http.MethodPost,
		Path:          "/workflows/{workflow_id}/tasks",
		Summary:       "Append a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		WorkflowID string            `path:"workflow_id"`
		Body       CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.WorkflowTask `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AddTask(ctx, userID, input.WorkflowID, newTasks([]CreateTaskRequest{input.Body})[0])
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkflowTask `json:"body"`
		}{Body: t}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "update-task-status",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/status",
		Summary:     "Move a task through its lifecycle",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string                  `path:"task_id"`
		Body   UpdateTaskStatusRequest `json:"body"`
	}) (*struct {
		Body TaskStatusResponse `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.TaskUpdateOptions{
			TaskID:       input.TaskID,
			Status:       input.Body.Status,
			ErrorMessage: input.Body.ErrorMessage,
			AssignedTo:   input.Body.AssignedTo,
		}
		if d := input.Body.DerivedAsset; d != nil {
			meta, herr := marshalJSON("derived_asset.metadata", nilIfEmpty(d.Metadata))
			if herr != nil {
				return nil, herr
			}
			opts.Derived = &relationship.DerivedAssetInput{
				ParentAssetIDs: d.ParentAssetIDs,
				AssetID:        d.AssetID,
				Asset: lineage.NewAsset{
					ProjectID:    d.ProjectID,
					FolderID:     d.FolderID,
					Name:         d.Name,
					MediaType:    d.MediaType,
					URI:          d.URI,
					MetadataJSON: meta,
				},
				RelationshipType: d.RelationshipType,
				Notes:            d.Notes,
			}
		}
		res, err := e.UpdateTaskStatus(ctx, userID, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskStatusResponse `json:"body"`
		}{Body: TaskStatusResponse{Task: res.Task, Workflow: res.Workflow, Derived: res.Derived}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"asset,relationship,workflow,task,api_key"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed <= 0 {
				return nil, badCursor(input.Cursor)
			}
			before = parsed
		}
		items, err := e.ListEvents(ctx, userID, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			Before:     before,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key for the caller",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body *CreateAPIKeyRequest `json:"body" required:"false"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		name := ""
		if input.Body != nil {
			name = input.Body.Name
		}
		key, plain, err := e.CreateAPIKey(ctx, userID, name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: apiKeyResponse(key, plain)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List the caller's API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			out = append(out, apiKeyResponse(k, ""))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{key_id}",
		Summary:     "Revoke an API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeAPIKey(ctx, userID, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
