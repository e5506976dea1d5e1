// Package lineage persists the asset graph and enforces its invariants:
// no self-loops, one edge per ordered pair, owned active endpoints and an
// acyclic edge set. Every method runs on the caller's transaction, so a
// check and the write that depends on it commit as one unit.
package lineage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"assetline/internal/apperr"
	"assetline/internal/domain"
	"assetline/internal/repo"
)

type Store struct {
	Repo repo.Repo
	Now  func() time.Time
	// MaxDepth bounds Ancestors and Descendants. Zero means unbounded.
	MaxDepth int
}

type NewRelationship struct {
	ParentAssetID    string
	ChildAssetID     string
	RelationshipType string
	Notes            *string
}

// Node is an asset reached by a traversal, Depth 1 being a direct neighbour.
type Node struct {
	domain.Asset
	Depth int `json:"depth"`
}

func (s Store) now() string {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// ActiveAsset resolves id under owner and requires it to be active.
func (s Store) ActiveAsset(ctx context.Context, tx *sql.Tx, owner, id string) (domain.Asset, error) {
	a, err := s.OwnedAsset(ctx, tx, owner, id)
	if err != nil {
		return a, err
	}
	if a.Status != domain.AssetActive {
		return domain.Asset{}, apperr.NotFound("asset %s not found", id)
	}
	return a, nil
}

// OwnedAsset resolves id under owner. Deleted assets are reported missing.
func (s Store) OwnedAsset(ctx context.Context, tx *sql.Tx, owner, id string) (domain.Asset, error) {
	a, err := s.Repo.GetAsset(ctx, tx, owner, id)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && a.Status == domain.AssetDeleted) {
		return domain.Asset{}, apperr.NotFound("asset %s not found", id)
	}
	return a, err
}

func (s Store) CreateRelationship(ctx context.Context, tx *sql.Tx, owner string, in NewRelationship) (domain.Relationship, error) {
	parentID := strings.TrimSpace(in.ParentAssetID)
	childID := strings.TrimSpace(in.ChildAssetID)
	if parentID == childID {
		return domain.Relationship{}, apperr.Validation("an asset cannot be related to itself")
	}
	if _, err := s.ActiveAsset(ctx, tx, owner, parentID); err != nil {
		return domain.Relationship{}, err
	}
	if _, err := s.ActiveAsset(ctx, tx, owner, childID); err != nil {
		return domain.Relationship{}, err
	}
	_, err := s.Repo.GetRelationshipByPair(ctx, tx, parentID, childID)
	switch {
	case err == nil:
		return domain.Relationship{}, apperr.Duplicate("relationship %s -> %s already exists", parentID, childID)
	case !errors.Is(err, repo.ErrNotFound):
		return domain.Relationship{}, err
	}
	closes, err := s.reachable(ctx, tx, childID, parentID)
	if err != nil {
		return domain.Relationship{}, err
	}
	if closes {
		return domain.Relationship{}, apperr.Cycle("relationship %s -> %s would create a cycle", parentID, childID)
	}
	rel := domain.Relationship{
		ID:               uuid.NewString(),
		ParentAssetID:    parentID,
		ChildAssetID:     childID,
		RelationshipType: in.RelationshipType,
		Notes:            in.Notes,
		CreatedAt:        s.now(),
	}
	if err := s.Repo.InsertRelationship(ctx, tx, rel); err != nil {
		return domain.Relationship{}, err
	}
	return rel, nil
}

// reachable reports whether target is a descendant of from.
func (s Store) reachable(ctx context.Context, tx *sql.Tx, from, target string) (bool, error) {
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := s.Repo.ChildIDs(ctx, tx, cur)
		if err != nil {
			return false, err
		}
		for _, c := range children {
			if c == target {
				return true, nil
			}
			if !visited[c] {
				visited[c] = true
				queue = append(queue, c)
			}
		}
	}
	return false, nil
}

// DeleteRelationship removes the edge between two owned assets.
func (s Store) DeleteRelationship(ctx context.Context, tx *sql.Tx, owner, parentID, childID string) (domain.Relationship, error) {
	for _, id := range []string{parentID, childID} {
		if _, err := s.Repo.GetAsset(ctx, tx, owner, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Relationship{}, apperr.NotFound("relationship %s -> %s not found", parentID, childID)
			}
			return domain.Relationship{}, err
		}
	}
	rel, err := s.Repo.GetRelationshipByPair(ctx, tx, parentID, childID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Relationship{}, apperr.NotFound("relationship %s -> %s not found", parentID, childID)
	}
	if err != nil {
		return domain.Relationship{}, err
	}
	if err := s.Repo.DeleteRelationship(ctx, tx, rel.ID); err != nil {
		return domain.Relationship{}, err
	}
	return rel, nil
}

// Ancestors returns the transitive parents of assetID, nearest first.
func (s Store) Ancestors(ctx context.Context, tx *sql.Tx, owner, assetID string, maxDepth int) ([]Node, error) {
	return s.walk(ctx, tx, owner, assetID, maxDepth, s.Repo.ParentIDs)
}

// Descendants returns the transitive children of assetID, nearest first.
func (s Store) Descendants(ctx context.Context, tx *sql.Tx, owner, assetID string, maxDepth int) ([]Node, error) {
	return s.walk(ctx, tx, owner, assetID, maxDepth, s.Repo.ChildIDs)
}

type neighbours func(ctx context.Context, tx *sql.Tx, assetID string) ([]string, error)

func (s Store) walk(ctx context.Context, tx *sql.Tx, owner, assetID string, maxDepth int, next neighbours) ([]Node, error) {
	if _, err := s.OwnedAsset(ctx, tx, owner, assetID); err != nil {
		return nil, err
	}
	if maxDepth <= 0 || (s.MaxDepth > 0 && maxDepth > s.MaxDepth) {
		maxDepth = s.MaxDepth
	}
	depth := map[string]int{assetID: 0}
	var order []string
	frontier := []string{assetID}
	for level := 1; len(frontier) > 0 && (maxDepth <= 0 || level <= maxDepth); level++ {
		var nextFrontier []string
		for _, cur := range frontier {
			ids, err := next(ctx, tx, cur)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				if _, seen := depth[id]; seen {
					continue
				}
				depth[id] = level
				order = append(order, id)
				nextFrontier = append(nextFrontier, id)
			}
		}
		frontier = nextFrontier
	}
	assets, err := s.Repo.GetAssetsByIDs(ctx, tx, owner, order)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(order))
	for _, id := range order {
		a, ok := assets[id]
		if !ok {
			continue
		}
		nodes = append(nodes, Node{Asset: a, Depth: depth[id]})
	}
	return nodes, nil
}

// NextVersion records version max+1 for assetID. Callers hold the asset's
// lock so two producers never read the same max.
func (s Store) NextVersion(ctx context.Context, tx *sql.Tx, assetID string, taskID, notes *string) (domain.AssetVersion, error) {
	current, err := s.Repo.MaxVersion(ctx, tx, assetID)
	if err != nil {
		return domain.AssetVersion{}, err
	}
	v := domain.AssetVersion{
		AssetID:       assetID,
		VersionNumber: current + 1,
		TaskID:        taskID,
		Notes:         notes,
		CreatedAt:     s.now(),
	}
	if err := s.Repo.InsertVersion(ctx, tx, v); err != nil {
		return domain.AssetVersion{}, err
	}
	return v, nil
}
