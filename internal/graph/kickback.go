package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-health/kestrel/internal/domain"
)

// detectKickbackRings finds groups of providers exchanging referrals
// for the same patient pool. An edge between two providers counts only
// when referrals flow in both directions and the shared patient count
// clears the threshold; connected components of such edges that reach
// the minimum ring size are reported.
func (d *Detector) detectKickbackRings(ctx context.Context, snap *Snapshot, lim *limiter) ([]domain.GraphPatternMatch, error) {
	// Undirected strong edges between mutually referring providers.
	strong := make(map[string][]string)
	weight := make(map[[2]string]int)
	for a, edges := range snap.Referrals {
		for b, ab := range edges {
			if err := lim.step(ctx); err != nil {
				return nil, err
			}
			if a >= b {
				continue // visit each pair once
			}
			ba := snap.referralEdgeBetween(b, a)
			if ba == nil {
				continue
			}
			shared := ab.sharedPatients()
			if ba.sharedPatients() < shared {
				shared = ba.sharedPatients()
			}
			if shared < d.cfg.KickbackMinSharedPatients {
				continue
			}
			strong[a] = append(strong[a], b)
			strong[b] = append(strong[b], a)
			weight[[2]string{a, b}] = shared
		}
	}

	// Bounded BFS over the strong-edge graph.
	visited := make(map[string]bool)
	roots := make([]string, 0, len(strong))
	for p := range strong {
		roots = append(roots, p)
	}
	sort.Strings(roots)

	var matches []domain.GraphPatternMatch
	for _, root := range roots {
		if visited[root] {
			continue
		}
		ring, err := d.component(ctx, root, strong, visited, lim)
		if err != nil {
			return nil, err
		}
		if len(ring) < d.cfg.KickbackMinRingSize {
			continue
		}
		if err := lim.record(); err != nil {
			return nil, err
		}

		maxShared := 0
		for i := 0; i < len(ring); i++ {
			for j := i + 1; j < len(ring); j++ {
				key := [2]string{ring[i], ring[j]}
				if ring[i] > ring[j] {
					key = [2]string{ring[j], ring[i]}
				}
				if w := weight[key]; w > maxShared {
					maxShared = w
				}
			}
		}

		matches = append(matches, domain.GraphPatternMatch{
			Pattern:   domain.PatternKickbackRing,
			ClaimIDs:  d.ringClaims(snap, ring),
			EntityIDs: ring,
			Strength:  clampStrength(float64(maxShared), d.cfg.KickbackBaseline),
			Evidence: fmt.Sprintf("%d providers exchanging referrals, up to %d shared patients per pair",
				len(ring), maxShared),
		})
	}
	return matches, nil
}

// component collects the connected component around root, bounded by
// the configured traversal depth.
func (d *Detector) component(ctx context.Context, root string, adj map[string][]string, visited map[string]bool, lim *limiter) ([]string, error) {
	type hop struct {
		id    string
		depth int
	}
	queue := []hop{{root, 0}}
	visited[root] = true
	var ring []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		ring = append(ring, cur.id)
		if cur.depth >= d.cfg.MaxDepth {
			continue
		}
		for _, next := range adj[cur.id] {
			if err := lim.step(ctx); err != nil {
				return nil, err
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, hop{next, cur.depth + 1})
			}
		}
	}
	sort.Strings(ring)
	return ring, nil
}

// ringClaims returns the claims referred between ring members.
func (d *Detector) ringClaims(snap *Snapshot, ring []string) []string {
	members := make(map[string]bool, len(ring))
	for _, id := range ring {
		members[id] = true
	}
	var ids []string
	for _, id := range ring {
		for _, c := range snap.ClaimsByProvider[id] {
			if c.ReferrerID != "" && members[c.ReferrerID] {
				ids = append(ids, c.ID)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
