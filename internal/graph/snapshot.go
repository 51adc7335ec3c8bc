// Package graph detects cross-claim fraud patterns over the referral
// and billing relationships of a batch.
//
// Detection runs against an immutable Snapshot built once per batch.
// Every detector is bounded by depth, match count, and a time budget;
// when a budget is exhausted the affected pattern degrades to
// no-match for the batch rather than escalating.
package graph

import (
	"sort"
	"strings"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

// referralEdge aggregates the referrals from one provider to another.
type referralEdge struct {
	count    int
	patients map[string]struct{}
}

func (e *referralEdge) sharedPatients() int { return len(e.patients) }

// Snapshot is an immutable index of the claim population. Safe for
// concurrent reads once built.
type Snapshot struct {
	Claims    []*domain.Claim
	ClaimByID map[string]*domain.Claim
	Patients  map[string]*domain.Patient
	Providers map[string]*domain.Provider

	// Claims sorted by service date within each key.
	ClaimsByPatient  map[string][]*domain.Claim
	ClaimsByProvider map[string][]*domain.Claim

	// Patient IDs sharing a normalized address.
	PatientsByAddress map[string][]string

	// Directed referral edges: referrer -> servicing provider.
	Referrals map[string]map[string]*referralEdge
}

// BuildSnapshot indexes a claim population for pattern detection.
// Referral edges only accumulate from claims serviced within
// referralWindowDays of the newest claim; zero means unbounded.
func BuildSnapshot(claims []*domain.Claim, patients []*domain.Patient, providers []*domain.Provider, referralWindowDays int) *Snapshot {
	s := &Snapshot{
		Claims:            claims,
		ClaimByID:         make(map[string]*domain.Claim, len(claims)),
		Patients:          make(map[string]*domain.Patient, len(patients)),
		Providers:         make(map[string]*domain.Provider, len(providers)),
		ClaimsByPatient:   make(map[string][]*domain.Claim),
		ClaimsByProvider:  make(map[string][]*domain.Claim),
		PatientsByAddress: make(map[string][]string),
		Referrals:         make(map[string]map[string]*referralEdge),
	}

	for _, p := range patients {
		s.Patients[p.ID] = p
		if key := addressKey(p.Address, p.City, p.Zip); key != "" {
			s.PatientsByAddress[key] = append(s.PatientsByAddress[key], p.ID)
		}
	}
	for _, p := range providers {
		s.Providers[p.ID] = p
	}

	var referralCutoff time.Time
	if referralWindowDays > 0 {
		var newest time.Time
		for _, c := range claims {
			if c.ServiceDate.After(newest) {
				newest = c.ServiceDate
			}
		}
		referralCutoff = newest.AddDate(0, 0, -referralWindowDays)
	}

	for _, c := range claims {
		s.ClaimByID[c.ID] = c
		s.ClaimsByPatient[c.PatientID] = append(s.ClaimsByPatient[c.PatientID], c)
		s.ClaimsByProvider[c.ProviderID] = append(s.ClaimsByProvider[c.ProviderID], c)

		if c.ReferrerID != "" && c.ReferrerID != c.ProviderID && !c.ServiceDate.Before(referralCutoff) {
			edges, ok := s.Referrals[c.ReferrerID]
			if !ok {
				edges = make(map[string]*referralEdge)
				s.Referrals[c.ReferrerID] = edges
			}
			edge, ok := edges[c.ProviderID]
			if !ok {
				edge = &referralEdge{patients: make(map[string]struct{})}
				edges[c.ProviderID] = edge
			}
			edge.count++
			edge.patients[c.PatientID] = struct{}{}
		}
	}

	for _, claims := range s.ClaimsByPatient {
		sortByServiceDate(claims)
	}
	for _, claims := range s.ClaimsByProvider {
		sortByServiceDate(claims)
	}
	for _, ids := range s.PatientsByAddress {
		sort.Strings(ids)
	}

	return s
}

func sortByServiceDate(claims []*domain.Claim) {
	sort.Slice(claims, func(a, b int) bool {
		if !claims[a].ServiceDate.Equal(claims[b].ServiceDate) {
			return claims[a].ServiceDate.Before(claims[b].ServiceDate)
		}
		return claims[a].ID < claims[b].ID
	})
}

// addressKey normalizes an address so trivially different spellings of
// the same household collide.
func addressKey(address, city, zip string) string {
	addr := strings.Join(strings.Fields(strings.ToLower(address)), " ")
	if addr == "" {
		return ""
	}
	return addr + "|" + strings.ToLower(strings.TrimSpace(city)) + "|" + strings.TrimSpace(zip)
}

// referralEdgeBetween returns the edge from a to b, or nil.
func (s *Snapshot) referralEdgeBetween(a, b string) *referralEdge {
	if edges, ok := s.Referrals[a]; ok {
		return edges[b]
	}
	return nil
}
