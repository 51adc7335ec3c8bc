package graph

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

var day = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) // Monday

func claim(id, patientID, providerID string, mutate ...func(*domain.Claim)) *domain.Claim {
	c := &domain.Claim{
		ID:             id,
		PatientID:      patientID,
		ProviderID:     providerID,
		Amount:         1000,
		ProcedureCode:  "99213",
		Type:           domain.ClaimTypeOutpatient,
		Status:         domain.ClaimStatusApproved,
		ServiceDate:    day,
		SubmissionDate: day.Add(48 * time.Hour),
	}
	for _, m := range mutate {
		m(c)
	}
	return c
}

func provider(id, state string) *domain.Provider {
	return &domain.Provider{ID: id, Name: "Clinic " + id, State: state}
}

func testDetector(mutate ...func(*domain.GraphConfig)) *Detector {
	cfg := domain.DefaultConfig().Graph
	for _, m := range mutate {
		m(&cfg)
	}
	return NewDetector(cfg, slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError})))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func matchesOf(res *domain.GraphResult, p domain.Pattern) []domain.GraphPatternMatch {
	var out []domain.GraphPatternMatch
	for _, m := range res.Matches {
		if m.Pattern == p {
			out = append(out, m)
		}
	}
	return out
}

func TestDetectKickbackRing(t *testing.T) {
	// Three providers referring in a cycle, three shared patients per
	// directed edge.
	var claims []*domain.Claim
	pairs := [][2]string{{"PRV-A", "PRV-B"}, {"PRV-B", "PRV-C"}, {"PRV-C", "PRV-A"}}
	n := 0
	for _, pr := range pairs {
		for p := 0; p < 3; p++ {
			patient := fmt.Sprintf("PAT-%02d", p)
			// Both directions for each pair.
			claims = append(claims,
				claim(fmt.Sprintf("CLM-K%02d", n), patient, pr[1], func(c *domain.Claim) { c.ReferrerID = pr[0] }),
				claim(fmt.Sprintf("CLM-K%02d", n+1), patient, pr[0], func(c *domain.Claim) { c.ReferrerID = pr[1] }),
			)
			n += 2
		}
	}
	snap := BuildSnapshot(claims, nil, []*domain.Provider{provider("PRV-A", "CA"), provider("PRV-B", "CA"), provider("PRV-C", "CA")}, 0)

	res := testDetector().Detect(context.Background(), snap)
	rings := matchesOf(res, domain.PatternKickbackRing)
	if len(rings) != 1 {
		t.Fatalf("expected 1 kickback ring, got %d", len(rings))
	}
	ring := rings[0]
	if len(ring.EntityIDs) != 3 {
		t.Errorf("ring providers = %v, want 3", ring.EntityIDs)
	}
	if ring.Strength <= 0 || ring.Strength > 1 {
		t.Errorf("strength = %v, want in (0, 1]", ring.Strength)
	}
	if len(ring.ClaimIDs) == 0 {
		t.Error("ring should reference its claims")
	}
}

func TestDetectKickbackIgnoresOneWayReferrals(t *testing.T) {
	var claims []*domain.Claim
	for p := 0; p < 5; p++ {
		claims = append(claims, claim(fmt.Sprintf("CLM-%02d", p), fmt.Sprintf("PAT-%02d", p), "PRV-B",
			func(c *domain.Claim) { c.ReferrerID = "PRV-A" }))
	}
	snap := BuildSnapshot(claims, nil, []*domain.Provider{provider("PRV-A", "CA"), provider("PRV-B", "CA")}, 0)

	res := testDetector().Detect(context.Background(), snap)
	if got := matchesOf(res, domain.PatternKickbackRing); len(got) != 0 {
		t.Errorf("one-way referrals should not form a ring, got %+v", got)
	}
}

func TestDetectIdentityTheft(t *testing.T) {
	claims := []*domain.Claim{
		claim("CLM-01", "PAT-01", "PRV-CA"),
		claim("CLM-02", "PAT-01", "PRV-NY", func(c *domain.Claim) { c.ServiceDate = day.Add(3 * time.Hour) }),
		// Control patient: same timing, same state.
		claim("CLM-03", "PAT-02", "PRV-CA"),
		claim("CLM-04", "PAT-02", "PRV-CA2", func(c *domain.Claim) { c.ServiceDate = day.Add(3 * time.Hour) }),
	}
	providers := []*domain.Provider{provider("PRV-CA", "CA"), provider("PRV-CA2", "CA"), provider("PRV-NY", "NY")}
	snap := BuildSnapshot(claims, nil, providers, 0)

	res := testDetector().Detect(context.Background(), snap)
	thefts := matchesOf(res, domain.PatternIdentityTheft)
	if len(thefts) != 1 {
		t.Fatalf("expected 1 identity theft match, got %d", len(thefts))
	}
	if thefts[0].EntityIDs[0] != "PAT-01" {
		t.Errorf("flagged patient = %v, want PAT-01", thefts[0].EntityIDs)
	}
	if len(thefts[0].ClaimIDs) != 2 {
		t.Errorf("claims = %v, want both cross-state claims", thefts[0].ClaimIDs)
	}
}

func TestDetectIdentityTheftRespectsWindow(t *testing.T) {
	claims := []*domain.Claim{
		claim("CLM-01", "PAT-01", "PRV-CA"),
		claim("CLM-02", "PAT-01", "PRV-NY", func(c *domain.Claim) { c.ServiceDate = day.Add(72 * time.Hour) }),
	}
	providers := []*domain.Provider{provider("PRV-CA", "CA"), provider("PRV-NY", "NY")}
	snap := BuildSnapshot(claims, nil, providers, 0)

	res := testDetector().Detect(context.Background(), snap)
	if got := matchesOf(res, domain.PatternIdentityTheft); len(got) != 0 {
		t.Errorf("cross-state claims outside the window should not match, got %+v", got)
	}
}

func TestDetectPingPongSymmetric(t *testing.T) {
	build := func(reverse bool) *Snapshot {
		claims := []*domain.Claim{
			claim("CLM-01", "PAT-01", "PRV-B", func(c *domain.Claim) { c.ReferrerID = "PRV-A" }),
			claim("CLM-02", "PAT-01", "PRV-A", func(c *domain.Claim) { c.ReferrerID = "PRV-B" }),
			claim("CLM-03", "PAT-02", "PRV-B", func(c *domain.Claim) { c.ReferrerID = "PRV-A" }),
			claim("CLM-04", "PAT-02", "PRV-A", func(c *domain.Claim) { c.ReferrerID = "PRV-B" }),
		}
		if reverse {
			for i, j := 0, len(claims)-1; i < j; i, j = i+1, j-1 {
				claims[i], claims[j] = claims[j], claims[i]
			}
		}
		return BuildSnapshot(claims, nil, []*domain.Provider{provider("PRV-A", "CA"), provider("PRV-B", "CA")}, 0)
	}

	d := testDetector(func(cfg *domain.GraphConfig) { cfg.KickbackMinSharedPatients = 10 })
	for _, reverse := range []bool{false, true} {
		res := d.Detect(context.Background(), build(reverse))
		pp := matchesOf(res, domain.PatternPingPong)
		if len(pp) != 1 {
			t.Fatalf("reverse=%v: expected 1 ping-pong match, got %d", reverse, len(pp))
		}
		if got := pp[0].EntityIDs; len(got) != 2 || got[0] != "PRV-A" || got[1] != "PRV-B" {
			t.Errorf("reverse=%v: entities = %v, want [PRV-A PRV-B]", reverse, got)
		}
		if len(pp[0].ClaimIDs) != 4 {
			t.Errorf("reverse=%v: claims = %v, want all 4", reverse, pp[0].ClaimIDs)
		}
	}
}

func TestReferralWindowBoundsEdges(t *testing.T) {
	// Two full round trips serviced two years before the most recent
	// claim in the batch.
	stale := day.AddDate(-2, 0, 0)
	claims := []*domain.Claim{
		claim("CLM-01", "PAT-01", "PRV-B", func(c *domain.Claim) { c.ReferrerID = "PRV-A"; c.ServiceDate = stale }),
		claim("CLM-02", "PAT-01", "PRV-A", func(c *domain.Claim) { c.ReferrerID = "PRV-B"; c.ServiceDate = stale }),
		claim("CLM-03", "PAT-02", "PRV-B", func(c *domain.Claim) { c.ReferrerID = "PRV-A"; c.ServiceDate = stale }),
		claim("CLM-04", "PAT-02", "PRV-A", func(c *domain.Claim) { c.ReferrerID = "PRV-B"; c.ServiceDate = stale }),
		claim("CLM-05", "PAT-03", "PRV-C"),
	}
	providers := []*domain.Provider{provider("PRV-A", "CA"), provider("PRV-B", "CA"), provider("PRV-C", "CA")}
	d := testDetector(func(cfg *domain.GraphConfig) { cfg.KickbackMinSharedPatients = 10 })

	snap := BuildSnapshot(claims, nil, providers, 365)
	res := d.Detect(context.Background(), snap)
	if got := matchesOf(res, domain.PatternPingPong); len(got) != 0 {
		t.Errorf("referrals outside the window should not form edges, got %+v", got)
	}

	snap = BuildSnapshot(claims, nil, providers, 0)
	res = d.Detect(context.Background(), snap)
	if got := matchesOf(res, domain.PatternPingPong); len(got) != 1 {
		t.Errorf("unbounded window should keep the edges, got %d matches", len(got))
	}
}

func TestDetectFamilyGanging(t *testing.T) {
	patients := []*domain.Patient{
		{ID: "PAT-01", Address: "12 Oak St", City: "Springfield", Zip: "62704"},
		{ID: "PAT-02", Address: " 12  oak st ", City: "SPRINGFIELD", Zip: "62704"},
		{ID: "PAT-03", Address: "99 Elm Ave", City: "Springfield", Zip: "62704"},
	}
	claims := []*domain.Claim{
		claim("CLM-01", "PAT-01", "PRV-A"),
		claim("CLM-02", "PAT-02", "PRV-A"),
		// Different day, should not gang.
		claim("CLM-03", "PAT-03", "PRV-A", func(c *domain.Claim) { c.ServiceDate = day.Add(24 * time.Hour) }),
	}
	snap := BuildSnapshot(claims, patients, []*domain.Provider{provider("PRV-A", "CA")}, 0)

	res := testDetector().Detect(context.Background(), snap)
	fam := matchesOf(res, domain.PatternFamilyGanging)
	if len(fam) != 1 {
		t.Fatalf("expected 1 family ganging match, got %d", len(fam))
	}
	if got := fam[0].EntityIDs; len(got) != 2 || got[0] != "PAT-01" || got[1] != "PAT-02" {
		t.Errorf("entities = %v, want the two household members", got)
	}
	if got := fam[0].ClaimIDs; len(got) != 2 {
		t.Errorf("claims = %v, want the two same-day claims", got)
	}
}

func TestDetectEquipmentFraud(t *testing.T) {
	claims := []*domain.Claim{
		// Phantom: unconfirmed, no companion visit.
		claim("CLM-01", "PAT-01", "PRV-A", func(c *domain.Claim) {
			c.Type = domain.ClaimTypeEquipment
			c.DeliveryConfirmed = false
		}),
		// Confirmed delivery, fine.
		claim("CLM-02", "PAT-02", "PRV-A", func(c *domain.Claim) {
			c.Type = domain.ClaimTypeEquipment
			c.DeliveryConfirmed = true
		}),
		// Unconfirmed but with a service visit a week later.
		claim("CLM-03", "PAT-03", "PRV-A", func(c *domain.Claim) {
			c.Type = domain.ClaimTypeEquipment
			c.DeliveryConfirmed = false
		}),
		claim("CLM-04", "PAT-03", "PRV-A", func(c *domain.Claim) {
			c.ServiceDate = day.Add(7 * 24 * time.Hour)
		}),
	}
	snap := BuildSnapshot(claims, nil, []*domain.Provider{provider("PRV-A", "CA")}, 0)

	res := testDetector().Detect(context.Background(), snap)
	eq := matchesOf(res, domain.PatternEquipmentFraud)
	if len(eq) != 1 {
		t.Fatalf("expected 1 equipment fraud match, got %d", len(eq))
	}
	if got := eq[0].ClaimIDs; len(got) != 1 || got[0] != "CLM-01" {
		t.Errorf("claims = %v, want only the phantom claim", got)
	}
}

func TestDetectBudgetDegradesPattern(t *testing.T) {
	// Two patients trip identity theft; a match cap of one forces that
	// pattern to degrade while the others still run.
	claims := []*domain.Claim{
		claim("CLM-01", "PAT-01", "PRV-CA"),
		claim("CLM-02", "PAT-01", "PRV-NY", func(c *domain.Claim) { c.ServiceDate = day.Add(time.Hour) }),
		claim("CLM-03", "PAT-02", "PRV-CA"),
		claim("CLM-04", "PAT-02", "PRV-NY", func(c *domain.Claim) { c.ServiceDate = day.Add(time.Hour) }),
	}
	providers := []*domain.Provider{provider("PRV-CA", "CA"), provider("PRV-NY", "NY")}
	snap := BuildSnapshot(claims, nil, providers, 0)

	d := testDetector(func(cfg *domain.GraphConfig) { cfg.MaxMatches = 1 })
	res := d.Detect(context.Background(), snap)

	degraded := false
	for _, p := range res.Degraded {
		if p == domain.PatternIdentityTheft {
			degraded = true
		}
	}
	if !degraded {
		t.Fatalf("expected identity_theft in degraded list, got %v", res.Degraded)
	}
	if got := matchesOf(res, domain.PatternIdentityTheft); len(got) != 0 {
		t.Errorf("degraded pattern must contribute no matches, got %+v", got)
	}
}

func TestMaxStrengthPerClaim(t *testing.T) {
	claims := []*domain.Claim{
		claim("CLM-01", "PAT-01", "PRV-CA"),
		claim("CLM-02", "PAT-01", "PRV-NY", func(c *domain.Claim) { c.ServiceDate = day.Add(time.Hour) }),
	}
	providers := []*domain.Provider{provider("PRV-CA", "CA"), provider("PRV-NY", "NY")}
	snap := BuildSnapshot(claims, nil, providers, 0)

	res := testDetector().Detect(context.Background(), snap)
	if got := res.MaxStrength("CLM-01"); got <= 0 {
		t.Errorf("MaxStrength(CLM-01) = %v, want > 0", got)
	}
	if got := res.MaxStrength("CLM-99"); got != 0 {
		t.Errorf("MaxStrength(unknown) = %v, want 0", got)
	}
}
