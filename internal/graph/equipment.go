package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

// detectEquipmentFraud finds providers billing durable medical
// equipment with no delivery confirmation and no related service visit
// for the patient around the equipment date. Phantom equipment is
// typically billed in volume, so matches are grouped per provider.
func (d *Detector) detectEquipmentFraud(ctx context.Context, snap *Snapshot, lim *limiter) ([]domain.GraphPatternMatch, error) {
	window := time.Duration(d.cfg.EquipmentServiceWindowDays) * 24 * time.Hour

	providerIDs := make([]string, 0, len(snap.ClaimsByProvider))
	for id := range snap.ClaimsByProvider {
		providerIDs = append(providerIDs, id)
	}
	sort.Strings(providerIDs)

	var matches []domain.GraphPatternMatch
	for _, providerID := range providerIDs {
		var phantom []string
		for _, c := range snap.ClaimsByProvider[providerID] {
			if err := lim.step(ctx); err != nil {
				return nil, err
			}
			if c.Type != domain.ClaimTypeEquipment || c.DeliveryConfirmed {
				continue
			}
			if d.hasCompanionService(snap, c, window) {
				continue
			}
			phantom = append(phantom, c.ID)
		}
		if len(phantom) == 0 {
			continue
		}
		if err := lim.record(); err != nil {
			return nil, err
		}

		sort.Strings(phantom)
		matches = append(matches, domain.GraphPatternMatch{
			Pattern:   domain.PatternEquipmentFraud,
			ClaimIDs:  phantom,
			EntityIDs: []string{providerID},
			Strength:  clampStrength(float64(len(phantom)), d.cfg.EquipmentBaseline),
			Evidence: fmt.Sprintf("%d unconfirmed equipment claims with no related service visit",
				len(phantom)),
		})
	}
	return matches, nil
}

// hasCompanionService reports whether the patient had a non-equipment
// claim from the same provider within the window around the equipment
// service date.
func (d *Detector) hasCompanionService(snap *Snapshot, eq *domain.Claim, window time.Duration) bool {
	for _, c := range snap.ClaimsByPatient[eq.PatientID] {
		if c.ID == eq.ID || c.Type == domain.ClaimTypeEquipment {
			continue
		}
		if c.ProviderID != eq.ProviderID {
			continue
		}
		gap := c.ServiceDate.Sub(eq.ServiceDate)
		if gap < 0 {
			gap = -gap
		}
		if gap <= window {
			return true
		}
	}
	return false
}
