// Package aggregates derives historical statistics for providers,
// patients, and the claim population from the store, with short-lived
// caching in front of the heavier scans.
package aggregates

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

// Service computes entity aggregates. Results are cached as JSON under
// stats:* keys; cache failures fall through to the store.
type Service struct {
	store domain.Store
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates an aggregates service. The cache is optional.
func NewService(store domain.Store, cache domain.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{store: store, cache: cache, ttl: ttl}
}

// ProviderStats returns historical aggregates for one provider.
// Returns nil with no error when the provider has no claims.
func (s *Service) ProviderStats(ctx context.Context, providerID string) (*domain.ProviderStats, error) {
	key := "stats:provider:" + providerID
	var cached domain.ProviderStats
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	claims, err := s.store.GetClaimsByProvider(ctx, providerID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load provider claims: %w", err)
	}
	if len(claims) == 0 {
		return nil, nil
	}

	stats := &domain.ProviderStats{ProviderID: providerID}
	patients := make(map[string]struct{})
	var sum, sumSq float64
	weekend := 0
	for _, c := range claims {
		sum += c.Amount
		sumSq += c.Amount * c.Amount
		if c.Amount > stats.MaxAmount {
			stats.MaxAmount = c.Amount
		}
		patients[c.PatientID] = struct{}{}
		if wd := c.ServiceDate.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend++
		}
		if stats.FirstService.IsZero() || c.ServiceDate.Before(stats.FirstService) {
			stats.FirstService = c.ServiceDate
		}
		if c.ServiceDate.After(stats.LastService) {
			stats.LastService = c.ServiceDate
		}
	}
	n := float64(len(claims))
	stats.ClaimCount = len(claims)
	stats.TotalAmount = sum
	stats.MeanAmount = sum / n
	stats.StdDevAmount = stdDev(sum, sumSq, n)
	stats.PatientCount = len(patients)
	stats.WeekendShare = float64(weekend) / n
	stats.ClaimsPerDay = n / activeDays(stats.FirstService, stats.LastService)

	rate, assessed, err := s.store.ProviderFraudRate(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider fraud rate: %w", err)
	}
	if assessed > 0 {
		stats.FraudRate = rate
	}

	s.toCache(ctx, key, stats)
	return stats, nil
}

// PatientStats returns historical aggregates for one patient.
// Returns nil with no error when the patient has no claims.
func (s *Service) PatientStats(ctx context.Context, patientID string) (*domain.PatientStats, error) {
	key := "stats:patient:" + patientID
	var cached domain.PatientStats
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	claims, err := s.store.GetClaimsByPatient(ctx, patientID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load patient claims: %w", err)
	}
	if len(claims) == 0 {
		return nil, nil
	}

	stats := &domain.PatientStats{
		PatientID:  patientID,
		TypeCounts: make(map[string]int),
	}
	providers := make(map[string]struct{})
	var sum float64
	for _, c := range claims {
		sum += c.Amount
		providers[c.ProviderID] = struct{}{}
		stats.TypeCounts[c.Type]++
		if stats.FirstService.IsZero() || c.ServiceDate.Before(stats.FirstService) {
			stats.FirstService = c.ServiceDate
		}
		if c.ServiceDate.After(stats.LastService) {
			stats.LastService = c.ServiceDate
		}
	}
	n := float64(len(claims))
	stats.ClaimCount = len(claims)
	stats.TotalAmount = sum
	stats.MeanAmount = sum / n
	stats.ProviderCount = len(providers)
	// A single claim says nothing about cadence.
	if len(claims) > 1 {
		stats.ClaimFrequency = n / activeDays(stats.FirstService, stats.LastService)
	}
	stats.SpendTrend = spendTrend(claims)

	s.toCache(ctx, key, stats)
	return stats, nil
}

// Population returns population-level baselines derived from all
// stored claims, falling back to conservative defaults on an empty or
// near-empty store.
func (s *Service) Population(ctx context.Context) (*domain.PopulationStats, error) {
	const key = "stats:population"
	var cached domain.PopulationStats
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	claims, err := s.store.ListClaims(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load claims: %w", err)
	}
	if len(claims) < 10 {
		return domain.DefaultPopulation(), nil
	}

	var sum, sumSq float64
	patients := make(map[string]struct{})
	for _, c := range claims {
		sum += c.Amount
		sumSq += c.Amount * c.Amount
		patients[c.PatientID] = struct{}{}
	}
	n := float64(len(claims))
	defaults := domain.DefaultPopulation()
	pop := &domain.PopulationStats{
		MeanAmount:           sum / n,
		StdDevAmount:         stdDev(sum, sumSq, n),
		MeanFraudRate:        defaults.MeanFraudRate,
		MeanClaimsPerPatient: n / float64(len(patients)),
		MeanPatientAge:       defaults.MeanPatientAge,
	}
	if pop.StdDevAmount == 0 {
		pop.StdDevAmount = defaults.StdDevAmount
	}

	s.toCache(ctx, key, pop)
	return pop, nil
}

// Invalidate drops the cached stats for the given entities. Called
// after seeding new data.
func (s *Service) Invalidate(ctx context.Context, providerIDs, patientIDs []string) {
	if s.cache == nil {
		return
	}
	for _, id := range providerIDs {
		_ = s.cache.Delete(ctx, "stats:provider:"+id)
	}
	for _, id := range patientIDs {
		_ = s.cache.Delete(ctx, "stats:patient:"+id)
	}
	_ = s.cache.Delete(ctx, "stats:population")
}

func (s *Service) fromCache(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil || raw == nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func (s *Service) toCache(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, key, raw, s.ttl)
}

func stdDev(sum, sumSq, n float64) float64 {
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// activeDays is the claim span in days, never below one.
func activeDays(first, last time.Time) float64 {
	days := last.Sub(first).Hours() / 24
	if days < 1 {
		return 1
	}
	return days
}

// spendTrend fits a least-squares line of claim amount against service
// day, in dollars per day. Claims arrive sorted by service date.
func spendTrend(claims []*domain.Claim) float64 {
	if len(claims) < 2 {
		return 0
	}
	origin := claims[0].ServiceDate
	var sx, sy, sxx, sxy float64
	for _, c := range claims {
		x := c.ServiceDate.Sub(origin).Hours() / 24
		sx += x
		sy += c.Amount
		sxx += x * x
		sxy += x * c.Amount
	}
	n := float64(len(claims))
	denom := n*sxx - sx*sx
	if denom == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / denom
}
