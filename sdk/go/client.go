package assetlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Assetline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// UserID is sent as X-User-Id when no credentials are set. Only servers
	// started with the dev header enabled accept it.
	UserID     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the API prefix,
// e.g. http://localhost:8080/v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Asset represents the API asset model (partial).
type Asset struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"media_type,omitempty"`
	URI       string `json:"uri,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type AssetVersion struct {
	AssetID       string  `json:"asset_id"`
	VersionNumber int     `json:"version_number"`
	TaskID        *string `json:"task_id,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

type Relationship struct {
	ID               string  `json:"id"`
	ParentAssetID    string  `json:"parent_asset_id"`
	ChildAssetID     string  `json:"child_asset_id"`
	RelationshipType string  `json:"relationship_type"`
	Notes            *string `json:"notes,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

// LineageNode is one asset reached by a traversal, with its distance from
// the starting asset.
type LineageNode struct {
	Asset
	Depth int `json:"depth"`
}

type Workflow struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	Priority     int     `json:"priority"`
	AssignedTo   *string `json:"assigned_to,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	CompletedAt  *string `json:"completed_at,omitempty"`
}

type Task struct {
	ID              string  `json:"id"`
	WorkflowID      string  `json:"workflow_id"`
	ExecutionOrder  int     `json:"execution_order"`
	TaskType        string  `json:"task_type"`
	Status          string  `json:"status"`
	ProducedAssetID *string `json:"produced_asset_id,omitempty"`
	ErrorMessage    *string `json:"error_message,omitempty"`
}

type Progress struct {
	Percentage int `json:"percentage"`
	TotalTasks int `json:"total_tasks"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
}

type WorkflowStatus struct {
	Workflow   Workflow        `json:"workflow"`
	Progress   Progress        `json:"progress"`
	Tasks      []Task          `json:"tasks"`
	ResultData json.RawMessage `json:"result_data"`
}

// DerivedAsset describes the output recorded when a task completes.
// Set AssetID to version an existing asset, or Name to create a new one.
type DerivedAsset struct {
	ParentAssetIDs   []string `json:"parent_asset_ids,omitempty"`
	AssetID          string   `json:"asset_id,omitempty"`
	Name             string   `json:"name,omitempty"`
	MediaType        string   `json:"media_type,omitempty"`
	URI              string   `json:"uri,omitempty"`
	RelationshipType string   `json:"relationship_type,omitempty"`
	Notes            *string  `json:"notes,omitempty"`
}

type TaskUpdate struct {
	Status       string        `json:"status"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	AssignedTo   *string       `json:"assigned_to,omitempty"`
	DerivedAsset *DerivedAsset `json:"derived_asset,omitempty"`
}

type TaskStatusResult struct {
	Task     Task     `json:"task"`
	Workflow Workflow `json:"workflow"`
	Derived  *struct {
		Asset         Asset          `json:"asset"`
		Version       AssetVersion   `json:"version"`
		Relationships []Relationship `json:"relationships"`
	} `json:"derived,omitempty"`
}

// APIError wraps non-2xx responses. Code carries the server error kind,
// e.g. CYCLE_DETECTED, when the body is a standard error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAsset registers an asset and its first version.
func (c *Client) CreateAsset(ctx context.Context, name, mediaType, uri string) (Asset, error) {
	body := map[string]any{"name": name}
	if mediaType != "" {
		body["media_type"] = mediaType
	}
	if uri != "" {
		body["uri"] = uri
	}
	var resp struct {
		Asset Asset `json:"asset"`
	}
	err := c.do(ctx, http.MethodPost, "assets", body, &resp)
	return resp.Asset, err
}

// CreateRelationship links parent to child. The server rejects edges that
// would close a cycle with code CYCLE_DETECTED.
func (c *Client) CreateRelationship(ctx context.Context, parentID, childID, relType string, notes *string) (Relationship, error) {
	body := map[string]any{
		"parent_asset_id":   parentID,
		"child_asset_id":    childID,
		"relationship_type": relType,
	}
	if notes != nil {
		body["notes"] = *notes
	}
	var resp Relationship
	err := c.do(ctx, http.MethodPost, "relationships", body, &resp)
	return resp, err
}

// DeleteRelationship removes the edge between parent and child.
func (c *Client) DeleteRelationship(ctx context.Context, parentID, childID string) error {
	q := url.Values{}
	q.Set("parent_asset_id", parentID)
	q.Set("child_asset_id", childID)
	return c.do(ctx, http.MethodDelete, "relationships?"+q.Encode(), nil, nil)
}

// Ancestors walks parent edges up to maxDepth; zero uses the server default.
func (c *Client) Ancestors(ctx context.Context, assetID string, maxDepth int) ([]LineageNode, error) {
	return c.lineage(ctx, assetID, "ancestors", maxDepth)
}

// Descendants walks child edges up to maxDepth; zero uses the server default.
func (c *Client) Descendants(ctx context.Context, assetID string, maxDepth int) ([]LineageNode, error) {
	return c.lineage(ctx, assetID, "descendants", maxDepth)
}

func (c *Client) lineage(ctx context.Context, assetID, direction string, maxDepth int) ([]LineageNode, error) {
	endpoint := fmt.Sprintf("assets/%s/%s", url.PathEscape(assetID), direction)
	if maxDepth > 0 {
		endpoint += "?max_depth=" + strconv.Itoa(maxDepth)
	}
	var resp struct {
		Nodes []LineageNode `json:"nodes"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Nodes, err
}

// WorkflowStatus returns the workflow, its tasks and derived progress.
func (c *Client) WorkflowStatus(ctx context.Context, workflowID string) (WorkflowStatus, error) {
	var resp WorkflowStatus
	endpoint := fmt.Sprintf("workflows/%s/status", url.PathEscape(workflowID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateTaskStatus moves a task to a new status, optionally recording the
// asset it produced.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID string, in TaskUpdate) (TaskStatusResult, error) {
	var resp TaskStatusResult
	endpoint := fmt.Sprintf("tasks/%s/status", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPatch, endpoint, in, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.UserID != "":
		req.Header.Set("X-User-Id", c.UserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
