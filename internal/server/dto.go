package server

import (
	"encoding/json"

	"assetline/internal/domain"
	"assetline/internal/lineage"
	"assetline/internal/relationship"
)

// Request payloads

type CreateAssetRequest struct {
	ProjectID *string        `json:"project_id,omitempty"`
	FolderID  *string        `json:"folder_id,omitempty"`
	Name      string         `json:"name"`
	MediaType string         `json:"media_type,omitempty"`
	URI       string         `json:"uri,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type UpdateAssetRequest struct {
	Name      *string        `json:"name,omitempty"`
	MediaType *string        `json:"media_type,omitempty"`
	URI       *string        `json:"uri,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type SetAssetStatusRequest struct {
	Status string `json:"status" enum:"active,archived,deleted"`
}

type RecordVersionRequest struct {
	Notes *string `json:"notes,omitempty"`
}

type CreateWorkflowRequest struct {
	Name       string              `json:"name"`
	Priority   *int                `json:"priority,omitempty"`
	AssignedTo *string             `json:"assigned_to,omitempty"`
	Tasks      []CreateTaskRequest `json:"tasks,omitempty"`
}

type CreateTaskRequest struct {
	TaskType       string  `json:"task_type"`
	ExecutionOrder *int    `json:"execution_order,omitempty"`
	AssignedTo     *string `json:"assigned_to,omitempty"`
}

type SetWorkflowStatusRequest struct {
	Status       string  `json:"status" enum:"pending,in_progress,completed,failed,cancelled"`
	ResultData   any     `json:"result_data,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// DerivedAssetRequest declares the artifact a completing task produced.
// AssetID records a new version of an existing asset; otherwise Name is
// required and a new asset is created.
type DerivedAssetRequest struct {
	ParentAssetIDs   []string       `json:"parent_asset_ids,omitempty"`
	AssetID          string         `json:"asset_id,omitempty"`
	ProjectID        *string        `json:"project_id,omitempty"`
	FolderID         *string        `json:"folder_id,omitempty"`
	Name             string         `json:"name,omitempty"`
	MediaType        string         `json:"media_type,omitempty"`
	URI              string         `json:"uri,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	RelationshipType string         `json:"relationship_type,omitempty"`
	Notes            *string        `json:"notes,omitempty"`
}

type UpdateTaskStatusRequest struct {
	Status       string               `json:"status" enum:"pending,in_progress,completed,failed"`
	ErrorMessage *string              `json:"error_message,omitempty"`
	AssignedTo   *string              `json:"assigned_to,omitempty"`
	DerivedAsset *DerivedAssetRequest `json:"derived_asset,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type CreateAssetResponse struct {
	Asset   domain.Asset        `json:"asset"`
	Version domain.AssetVersion `json:"version"`
}

type paginatedAssets struct {
	Items      []domain.Asset `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedWorkflows struct {
	Items      []domain.Workflow `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type LineageResponse struct {
	AssetID   string         `json:"asset_id"`
	Direction string         `json:"direction" enum:"ancestors,descendants"`
	Nodes     []lineage.Node `json:"nodes"`
}

type DeleteRelationshipResponse struct {
	ParentAssetID string `json:"parent_asset_id"`
	ChildAssetID  string `json:"child_asset_id"`
	Action        string `json:"action" enum:"deleted"`
}

type WorkflowResponse struct {
	Workflow domain.Workflow       `json:"workflow"`
	Tasks    []domain.WorkflowTask `json:"tasks"`
}

type RecomputeResponse struct {
	Workflow domain.Workflow `json:"workflow"`
	Changed  bool            `json:"changed"`
}

type TaskStatusResponse struct {
	Task     domain.WorkflowTask              `json:"task"`
	Workflow domain.Workflow                  `json:"workflow"`
	Derived  *relationship.DerivedAssetResult `json:"derived,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only returned on creation.
	Key string `json:"key,omitempty"`
}

func eventResponse(evt domain.Event) EventResponse {
	resp := EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
	}
	if evt.Payload != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(evt.Payload), &payload); err == nil {
			resp.Payload = payload
		}
	}
	return resp
}

func apiKeyResponse(k domain.APIKey, plain string) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt, Key: plain}
}

func nonNilAssets(items []domain.Asset) []domain.Asset {
	if items == nil {
		return []domain.Asset{}
	}
	return items
}

func nonNilTasks(items []domain.WorkflowTask) []domain.WorkflowTask {
	if items == nil {
		return []domain.WorkflowTask{}
	}
	return items
}
