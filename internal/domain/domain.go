package domain

// Asset statuses.
const (
	AssetActive   = "active"
	AssetArchived = "archived"
	AssetDeleted  = "deleted"
)

// Workflow statuses.
const (
	WorkflowPending    = "pending"
	WorkflowInProgress = "in_progress"
	WorkflowCompleted  = "completed"
	WorkflowFailed     = "failed"
	WorkflowCancelled  = "cancelled"
)

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// Built-in relationship types. The accepted set comes from config.
const (
	RelDerivedFrom = "derived_from"
	RelVariantOf   = "variant_of"
	RelComponentOf = "component_of"
)

type Asset struct {
	ID           string  `json:"id"`
	UserID       string  `json:"user_id"`
	ProjectID    *string `json:"project_id,omitempty"`
	FolderID     *string `json:"folder_id,omitempty"`
	Name         string  `json:"name"`
	MediaType    string  `json:"media_type,omitempty"`
	URI          string  `json:"uri,omitempty"`
	MetadataJSON *string `json:"metadata_json,omitempty"`
	Status       string  `json:"status" enum:"active,archived,deleted"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type Relationship struct {
	ID               string  `json:"id"`
	ParentAssetID    string  `json:"parent_asset_id"`
	ChildAssetID     string  `json:"child_asset_id"`
	RelationshipType string  `json:"relationship_type"`
	Notes            *string `json:"notes,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

type AssetVersion struct {
	AssetID       string  `json:"asset_id"`
	VersionNumber int     `json:"version_number"`
	TaskID        *string `json:"task_id,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type Workflow struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Name           string  `json:"name"`
	Status         string  `json:"status" enum:"pending,in_progress,completed,failed,cancelled"`
	Priority       int     `json:"priority"`
	AssignedTo     *string `json:"assigned_to,omitempty"`
	ResultDataJSON *string `json:"result_data_json,omitempty"`
	ErrorMessage   *string `json:"error_message,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
	CompletedAt    *string `json:"completed_at,omitempty" format:"date-time"`
}

type WorkflowTask struct {
	ID              string  `json:"id"`
	WorkflowID      string  `json:"workflow_id"`
	ExecutionOrder  int     `json:"execution_order"`
	TaskType        string  `json:"task_type"`
	Status          string  `json:"status" enum:"pending,in_progress,completed,failed"`
	AssignedTo      *string `json:"assigned_to,omitempty"`
	ProducedAssetID *string `json:"produced_asset_id,omitempty"`
	ErrorMessage    *string `json:"error_message,omitempty"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	StartedAt       *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt     *string `json:"completed_at,omitempty" format:"date-time"`
}

// Progress is derived from task rows on every read and never stored.
type Progress struct {
	Percentage int `json:"percentage"`
	TotalTasks int `json:"total_tasks"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
