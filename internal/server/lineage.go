package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"assetline/internal/domain"
	"assetline/internal/engine"
	"assetline/internal/lineage"
	"assetline/internal/relationship"
	"assetline/internal/repo"
)

type assetPath struct {
	AssetID string `path:"asset_id"`
}

func registerAssets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-asset",
		Method:        http.MethodPost,
		Path:          "/assets",
		Summary:       "Create asset",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAssetRequest `json:"body"`
	}) (*struct {
		Body CreateAssetResponse `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		meta, herr := marshalJSON("metadata", nilIfEmpty(input.Body.Metadata))
		if herr != nil {
			return nil, herr
		}
		a, v, err := e.CreateAsset(ctx, userID, lineage.NewAsset{
			ProjectID:    input.Body.ProjectID,
			FolderID:     input.Body.FolderID,
			Name:         input.Body.Name,
			MediaType:    input.Body.MediaType,
			URI:          input.Body.URI,
			MetadataJSON: meta,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateAssetResponse `json:"body"`
		}{Body: CreateAssetResponse{Asset: a, Version: v}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/assets",
		Summary:     "List assets",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		FolderID  string `query:"folder_id"`
		Status    string `query:"status" enum:"active,archived,deleted"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedAssets `json:"body"`
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
		items, err := e.ListAssets(ctx, userID, repo.AssetFilters{
			ProjectID:       input.ProjectID,
			FolderID:        input.FolderID,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedAssets{}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		resp.Items = nonNilAssets(items)
		return &struct {
			Body paginatedAssets `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-asset",
		Method:      http.MethodGet,
		Path:        "/assets/{asset_id}",
		Summary:     "Get asset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *assetPath) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.GetAsset(ctx, userID, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-asset",
		Method:      http.MethodPatch,
		Path:        "/assets/{asset_id}",
		Summary:     "Update asset metadata",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssetID string             `path:"asset_id"`
		Body    UpdateAssetRequest `json:"body"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		meta, herr := marshalJSON("metadata", nilIfEmpty(input.Body.Metadata))
		if herr != nil {
			return nil, herr
		}
		a, err := e.UpdateAssetMetadata(ctx, userID, input.AssetID, engine.AssetPatch{
			Name:         input.Body.Name,
			MediaType:    input.Body.MediaType,
			URI:          input.Body.URI,
			MetadataJSON: meta,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-asset-status",
		Method:      http.MethodPatch,
		Path:        "/assets/{asset_id}/status",
		Summary:     "Archive, restore or delete an asset",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssetID string                `path:"asset_id"`
		Body    SetAssetStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.SetAssetStatus(ctx, userID, input.AssetID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-asset",
		Method:      http.MethodDelete,
		Path:        "/assets/{asset_id}",
		Summary:     "Soft-delete asset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *assetPath) (*struct{}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.SetAssetStatus(ctx, userID, input.AssetID, domain.AssetDeleted); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-asset-versions",
		Method:      http.MethodGet,
		Path:        "/assets/{asset_id}/versions",
		Summary:     "List asset versions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *assetPath) (*struct {
		Body []domain.AssetVersion `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListVersions(ctx, userID, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.AssetVersion{}
		}
		return &struct {
			Body []domain.AssetVersion `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "record-asset-version",
		Method:        http.MethodPost,
		Path:          "/assets/{asset_id}/versions",
		Summary:       "Record the next asset version",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AssetID string                `path:"asset_id"`
		Body    *RecordVersionRequest `json:"body" required:"false"`
	}) (*struct {
		Body domain.AssetVersion `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var notes *string
		if input.Body != nil {
			notes = input.Body.Notes
		}
		v, err := e.RecordAssetVersion(ctx, userID, input.AssetID, notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.AssetVersion `json:"body"`
		}{Body: v}, nil
	})
}

func registerLineage(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-relationship",
		Method:        http.MethodPost,
		Path:          "/relationships",
		Summary:       "Create lineage relationship",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body relationship.CreateInput `json:"body"`
	}) (*struct {
		Body domain.Relationship `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rel, err := e.CreateRelationship(ctx, userID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Relationship `json:"body"`
		}{Body: rel}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-relationship",
		Method:      http.MethodDelete,
		Path:        "/relationships",
		Summary:     "Delete lineage relationship",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ParentAssetID string `query:"parent_asset_id"`
		ChildAssetID  string `query:"child_asset_id"`
	}) (*struct {
		Body DeleteRelationshipResponse `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rel, err := e.DeleteRelationship(ctx, userID, input.ParentAssetID, input.ChildAssetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DeleteRelationshipResponse `json:"body"`
		}{Body: DeleteRelationshipResponse{
			ParentAssetID: rel.ParentAssetID,
			ChildAssetID:  rel.ChildAssetID,
			Action:        "deleted",
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-asset-relationships",
		Method:      http.MethodGet,
		Path:        "/assets/{asset_id}/relationships",
		Summary:     "Edges touching an asset",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *assetPath) (*struct {
		Body []domain.Relationship `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListAssetRelationships(ctx, userID, input.AssetID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Relationship{}
		}
		return &struct {
			Body []domain.Relationship `json:"body"`
		}{Body: items}, nil
	})

	for _, direction := range []string{"ancestors", "descendants"} {
		walk := e.Ancestors
		if direction == "descendants" {
			walk = e.Descendants
		}
		direction := direction
		huma.Register(api, huma.Operation{
			OperationID: "list-" + direction,
			Method:      http.MethodGet,
			Path:        "/assets/{asset_id}/" + direction,
			Summary:     "Walk " + direction,
			Errors:      []int{http.StatusNotFound},
		}, func(ctx context.Context, input *struct {
			AssetID  string `path:"asset_id"`
			MaxDepth int    `query:"max_depth" minimum:"0"`
		}) (*struct {
			Body LineageResponse `json:"body"`
		}, error) {
			userID, authErr := callerFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			nodes, err := walk(ctx, userID, input.AssetID, input.MaxDepth)
			if err != nil {
				return nil, handleError(err)
			}
			if nodes == nil {
				nodes = []lineage.Node{}
			}
			return &struct {
				Body LineageResponse `json:"body"`
			}{Body: LineageResponse{AssetID: input.AssetID, Direction: direction, Nodes: nodes}}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "audit-lineage",
		Method:      http.MethodGet,
		Path:        "/lineage/audit",
		Summary:     "Re-check the caller's lineage graph",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body lineage.AuditReport `json:"body"`
	}, error) {
		userID, authErr := callerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := e.AuditLineage(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body lineage.AuditReport `json:"body"`
		}{Body: report}, nil
	})
}

func nilIfEmpty(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
