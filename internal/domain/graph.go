package domain

// Pattern names one of the five closed topological fraud signatures.
type Pattern string

const (
	PatternKickbackRing   Pattern = "kickback_ring"
	PatternIdentityTheft  Pattern = "identity_theft"
	PatternPingPong       Pattern = "ping_pong"
	PatternFamilyGanging  Pattern = "family_ganging"
	PatternEquipmentFraud Pattern = "equipment_fraud"
)

// Patterns lists all detectable patterns.
var Patterns = []Pattern{
	PatternKickbackRing,
	PatternIdentityTheft,
	PatternPingPong,
	PatternFamilyGanging,
	PatternEquipmentFraud,
}

// GraphPatternMatch records one detected topological pattern. All
// participant claims are flagged together; no single claim is
// privileged over the others.
type GraphPatternMatch struct {
	Pattern  Pattern  `json:"pattern"`
	ClaimIDs []string `json:"claim_ids"`

	// EntityIDs are the patients and providers forming the pattern.
	EntityIDs []string `json:"entity_ids"`

	// Strength is the normalized match strength in [0, 1], typically
	// observed count over baseline count capped at 1.
	Strength float64 `json:"strength"`

	// Evidence is a short human-readable account of what the
	// detector observed.
	Evidence string `json:"evidence,omitempty"`
}

// GraphResult is the detector's product for one batch: every match
// plus a claim-id index for O(1) lookup during aggregation.
type GraphResult struct {
	Matches []GraphPatternMatch

	// Degraded lists patterns whose traversal exceeded its budget and
	// was treated as no-match for the whole batch.
	Degraded []Pattern

	byClaim map[string][]*GraphPatternMatch
}

// NewGraphResult builds the claim index over the given matches.
func NewGraphResult(matches []GraphPatternMatch, degraded []Pattern) *GraphResult {
	r := &GraphResult{
		Matches:  matches,
		Degraded: degraded,
		byClaim:  make(map[string][]*GraphPatternMatch),
	}
	for i := range r.Matches {
		m := &r.Matches[i]
		for _, id := range m.ClaimIDs {
			r.byClaim[id] = append(r.byClaim[id], m)
		}
	}
	return r
}

// MatchesFor returns all pattern matches a claim participates in.
func (r *GraphResult) MatchesFor(claimID string) []*GraphPatternMatch {
	if r == nil {
		return nil
	}
	return r.byClaim[claimID]
}

// MaxStrength returns the strongest match strength for a claim, or 0.
func (r *GraphResult) MaxStrength(claimID string) float64 {
	max := 0.0
	for _, m := range r.MatchesFor(claimID) {
		if m.Strength > max {
			max = m.Strength
		}
	}
	return max
}
