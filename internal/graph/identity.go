package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

// detectIdentityTheft finds patients whose member ID produced services
// at providers in different states within an implausibly short window.
// One person cannot be treated in two states on the same day.
func (d *Detector) detectIdentityTheft(ctx context.Context, snap *Snapshot, lim *limiter) ([]domain.GraphPatternMatch, error) {
	window := time.Duration(d.cfg.IdentityWindowHours) * time.Hour

	patientIDs := make([]string, 0, len(snap.ClaimsByPatient))
	for id := range snap.ClaimsByPatient {
		patientIDs = append(patientIDs, id)
	}
	sort.Strings(patientIDs)

	var matches []domain.GraphPatternMatch
	for _, patientID := range patientIDs {
		claims := snap.ClaimsByPatient[patientID]
		claimSet := make(map[string]bool)
		pairs := 0
		for i := 1; i < len(claims); i++ {
			if err := lim.step(ctx); err != nil {
				return nil, err
			}
			prev, cur := claims[i-1], claims[i]
			if cur.ServiceDate.Sub(prev.ServiceDate) > window {
				continue
			}
			sp, sc := d.providerState(snap, prev.ProviderID), d.providerState(snap, cur.ProviderID)
			if sp == "" || sc == "" || sp == sc {
				continue
			}
			pairs++
			claimSet[prev.ID] = true
			claimSet[cur.ID] = true
		}
		if pairs == 0 {
			continue
		}
		if err := lim.record(); err != nil {
			return nil, err
		}

		claimIDs := make([]string, 0, len(claimSet))
		for id := range claimSet {
			claimIDs = append(claimIDs, id)
		}
		sort.Strings(claimIDs)

		matches = append(matches, domain.GraphPatternMatch{
			Pattern:   domain.PatternIdentityTheft,
			ClaimIDs:  claimIDs,
			EntityIDs: []string{patientID},
			Strength:  clampStrength(float64(pairs), d.cfg.IdentityBaseline),
			Evidence: fmt.Sprintf("%d cross-state service pairs within %dh for one member ID",
				pairs, d.cfg.IdentityWindowHours),
		})
	}
	return matches, nil
}

func (d *Detector) providerState(snap *Snapshot, providerID string) string {
	if p, ok := snap.Providers[providerID]; ok {
		return p.State
	}
	return ""
}
