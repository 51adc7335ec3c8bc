package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-health/kestrel/internal/domain"
)

// detectFamilyGanging finds households billed in bulk: several
// patients at the same address receiving the same procedure from the
// same provider on the same day.
func (d *Detector) detectFamilyGanging(ctx context.Context, snap *Snapshot, lim *limiter) ([]domain.GraphPatternMatch, error) {
	addresses := make([]string, 0, len(snap.PatientsByAddress))
	for key := range snap.PatientsByAddress {
		addresses = append(addresses, key)
	}
	sort.Strings(addresses)

	var matches []domain.GraphPatternMatch
	for _, addr := range addresses {
		household := snap.PatientsByAddress[addr]
		if len(household) < d.cfg.FamilyMinPatients {
			continue
		}

		// Same provider, procedure, and day across household members.
		type visit struct{ provider, procedure, day string }
		byVisit := make(map[visit]map[string][]string) // visit -> patient -> claim IDs
		for _, patientID := range household {
			for _, c := range snap.ClaimsByPatient[patientID] {
				if err := lim.step(ctx); err != nil {
					return nil, err
				}
				v := visit{c.ProviderID, c.ProcedureCode, c.ServiceDate.Format("2006-01-02")}
				if byVisit[v] == nil {
					byVisit[v] = make(map[string][]string)
				}
				byVisit[v][patientID] = append(byVisit[v][patientID], c.ID)
			}
		}

		claimSet := make(map[string]bool)
		patientSet := make(map[string]bool)
		gangedVisits := 0
		maxPatients := 0
		for _, perPatient := range byVisit {
			if len(perPatient) < d.cfg.FamilyMinPatients {
				continue
			}
			gangedVisits++
			if len(perPatient) > maxPatients {
				maxPatients = len(perPatient)
			}
			for patientID, ids := range perPatient {
				patientSet[patientID] = true
				for _, id := range ids {
					claimSet[id] = true
				}
			}
		}
		if gangedVisits == 0 {
			continue
		}
		if err := lim.record(); err != nil {
			return nil, err
		}

		matches = append(matches, domain.GraphPatternMatch{
			Pattern:   domain.PatternFamilyGanging,
			ClaimIDs:  sortedKeys(claimSet),
			EntityIDs: sortedKeys(patientSet),
			Strength:  clampStrength(float64(maxPatients), d.cfg.FamilyBaseline),
			Evidence: fmt.Sprintf("%d same-day identical procedures across a household of %d",
				gangedVisits, len(household)),
		})
	}
	return matches, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
