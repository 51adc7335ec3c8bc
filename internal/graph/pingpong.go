package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-health/kestrel/internal/domain"
)

// detectPingPong finds provider pairs bouncing patients back and forth
// through referrals. A round trip is one referral in each direction;
// the pair is evaluated once under a canonical ordering, so detection
// is symmetric in the providers.
func (d *Detector) detectPingPong(ctx context.Context, snap *Snapshot, lim *limiter) ([]domain.GraphPatternMatch, error) {
	type pair struct{ a, b string }
	seen := make(map[pair]bool)

	var keys []pair
	for a, edges := range snap.Referrals {
		for b := range edges {
			if err := lim.step(ctx); err != nil {
				return nil, err
			}
			k := pair{a, b}
			if b < a {
				k = pair{b, a}
			}
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		return keys[i].b < keys[j].b
	})

	var matches []domain.GraphPatternMatch
	for _, k := range keys {
		ab := snap.referralEdgeBetween(k.a, k.b)
		ba := snap.referralEdgeBetween(k.b, k.a)
		if ab == nil || ba == nil {
			continue
		}
		roundTrips := ab.count
		if ba.count < roundTrips {
			roundTrips = ba.count
		}
		if roundTrips < d.cfg.PingPongMinRoundTrips {
			continue
		}
		if err := lim.record(); err != nil {
			return nil, err
		}

		matches = append(matches, domain.GraphPatternMatch{
			Pattern:   domain.PatternPingPong,
			ClaimIDs:  d.pairClaims(snap, k.a, k.b),
			EntityIDs: []string{k.a, k.b},
			Strength:  clampStrength(float64(roundTrips), d.cfg.PingPongBaseline),
			Evidence:  fmt.Sprintf("%d referral round trips between the pair", roundTrips),
		})
	}
	return matches, nil
}

// pairClaims returns the claims referred in either direction between
// two providers.
func (d *Detector) pairClaims(snap *Snapshot, a, b string) []string {
	var ids []string
	for _, c := range snap.ClaimsByProvider[a] {
		if c.ReferrerID == b {
			ids = append(ids, c.ID)
		}
	}
	for _, c := range snap.ClaimsByProvider[b] {
		if c.ReferrerID == a {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids
}
