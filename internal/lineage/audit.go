package lineage

import (
	"context"
	"database/sql"
	"sort"

	"assetline/internal/domain"
)

// AuditReport summarises a full re-check of an owner's edge set.
type AuditReport struct {
	Assets int `json:"assets"`
	Edges  int `json:"edges"`
	// Cycles lists each detected cycle as the asset ids along it.
	Cycles [][]string `json:"cycles"`
	// Dangling lists edges whose endpoint is deleted, missing or foreign.
	Dangling []domain.Relationship `json:"dangling"`
	// Duplicates lists extra edges for an ordered pair already seen.
	Duplicates []domain.Relationship `json:"duplicates"`
}

func (r AuditReport) OK() bool {
	return len(r.Cycles) == 0 && len(r.Dangling) == 0 && len(r.Duplicates) == 0
}

// Audit re-checks every edge touching owner's assets without trusting the
// insert-time checks.
func (s Store) Audit(ctx context.Context, tx *sql.Tx, owner string) (AuditReport, error) {
	rows, err := s.Repo.ListEdgesForUser(ctx, tx, owner)
	if err != nil {
		return AuditReport{}, err
	}
	report := AuditReport{Cycles: [][]string{}, Dangling: []domain.Relationship{}, Duplicates: []domain.Relationship{}}
	adj := map[string][]string{}
	nodes := map[string]bool{}
	seen := map[[2]string]bool{}
	for _, e := range rows {
		report.Edges++
		pair := [2]string{e.ParentAssetID, e.ChildAssetID}
		if seen[pair] {
			report.Duplicates = append(report.Duplicates, e.Relationship)
			continue
		}
		seen[pair] = true
		if !liveEndpoint(owner, e.ParentUserID, e.ParentStatus) || !liveEndpoint(owner, e.ChildUserID, e.ChildStatus) {
			report.Dangling = append(report.Dangling, e.Relationship)
			continue
		}
		adj[e.ParentAssetID] = append(adj[e.ParentAssetID], e.ChildAssetID)
		nodes[e.ParentAssetID] = true
		nodes[e.ChildAssetID] = true
	}
	report.Assets = len(nodes)
	report.Cycles = findCycles(adj)
	return report, nil
}

func liveEndpoint(owner, userID, status string) bool {
	return userID == owner && status != "" && status != domain.AssetDeleted
}

// findCycles runs a coloured DFS and returns one cycle per back edge.
func findCycles(adj map[string][]string) [][]string {
	const (
		white = iota
		grey
		black
	)
	color := map[string]int{}
	var stack []string
	cycles := [][]string{}

	var visit func(n string)
	visit = func(n string) {
		color[n] = grey
		stack = append(stack, n)
		for _, m := range adj[n] {
			switch color[m] {
			case white:
				visit(m)
			case grey:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == m {
						cycle := append([]string(nil), stack[i:]...)
						cycles = append(cycles, append(cycle, m))
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
	}

	roots := make([]string, 0, len(adj))
	for n := range adj {
		roots = append(roots, n)
	}
	sort.Strings(roots)
	for _, n := range roots {
		if color[n] == white {
			visit(n)
		}
	}
	return cycles
}
