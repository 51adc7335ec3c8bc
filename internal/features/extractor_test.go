package features

import (
	"math"
	"testing"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

func index(t *testing.T, name string) int {
	t.Helper()
	for i, n := range Names {
		if n == name {
			return i
		}
	}
	t.Fatalf("unknown feature %q", name)
	return -1
}

func testClaim() *domain.Claim {
	return &domain.Claim{
		ID:             "CLM-001",
		PatientID:      "PAT-001",
		ProviderID:     "PRV-001",
		Amount:         5000,
		Type:           domain.ClaimTypeOutpatient,
		Status:         domain.ClaimStatusApproved,
		ServiceDate:    time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC), // Saturday
		SubmissionDate: time.Date(2025, 6, 20, 9, 0, 0, 0, time.UTC),
	}
}

func TestExtractVectorShape(t *testing.T) {
	e := NewExtractor()
	v := e.Extract(Input{Claim: testClaim()})

	if len(v.Values) != len(Names) {
		t.Fatalf("expected %d features, got %d", len(Names), len(v.Values))
	}
	for i, val := range v.Values {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			t.Errorf("feature %s is not finite: %v", Names[i], val)
		}
	}
}

func TestExtractAmountFeatures(t *testing.T) {
	e := NewExtractor()
	pop := &domain.PopulationStats{MeanAmount: 2500, StdDevAmount: 1800, MeanFraudRate: 0.05, MeanClaimsPerPatient: 8, MeanPatientAge: 45}
	v := e.Extract(Input{
		Claim:         testClaim(),
		ProviderStats: &domain.ProviderStats{ClaimCount: 100, MeanAmount: 1000},
		Population:    pop,
	})

	if got := v.Values[index(t, "claim_amount")]; got != 5000 {
		t.Errorf("claim_amount = %v, want 5000", got)
	}
	wantZ := (5000.0 - 2500.0) / 1800.0
	if got := v.Values[index(t, "amount_zscore")]; math.Abs(got-wantZ) > 1e-9 {
		t.Errorf("amount_zscore = %v, want %v", got, wantZ)
	}
	if got := v.Values[index(t, "amount_provider_ratio")]; got != 5.0 {
		t.Errorf("amount_provider_ratio = %v, want 5", got)
	}
	pct := v.Values[index(t, "amount_percentile")]
	if pct <= 0.5 || pct > 1 {
		t.Errorf("amount_percentile = %v, want in (0.5, 1]", pct)
	}
}

func TestExtractTemporalFeatures(t *testing.T) {
	e := NewExtractor()
	v := e.Extract(Input{Claim: testClaim()})

	if got := v.Values[index(t, "is_weekend")]; got != 1 {
		t.Errorf("is_weekend = %v, want 1 for a Saturday service date", got)
	}
	if got := v.Values[index(t, "submission_lag_days")]; math.Abs(got-5.958333) > 0.01 {
		t.Errorf("submission_lag_days = %v, want ~5.96", got)
	}
}

func TestExtractClaimTypeOneHot(t *testing.T) {
	e := NewExtractor()
	for _, ct := range domain.ClaimTypes {
		c := testClaim()
		c.Type = ct
		v := e.Extract(Input{Claim: c})

		sum := v.Values[index(t, "is_inpatient")] +
			v.Values[index(t, "is_outpatient")] +
			v.Values[index(t, "is_pharmacy")] +
			v.Values[index(t, "is_equipment")]
		if sum != 1 {
			t.Errorf("type %s: one-hot sum = %v, want 1", ct, sum)
		}
	}
}

func TestExtractMissingDataDegrades(t *testing.T) {
	e := NewExtractor()
	v := e.Extract(Input{Claim: testClaim()})

	if !v.Degraded() {
		t.Fatal("vector with no stats should be degraded")
	}
	found := map[string]bool{}
	for _, m := range v.Missing {
		found[m] = true
	}
	for _, want := range []string{"provider_fraud_rate", "patient_claim_count", "patient_age"} {
		if !found[want] {
			t.Errorf("expected %s in missing list, got %v", want, v.Missing)
		}
	}
	// Baselines substituted, never zeroed blindly.
	if got := v.Values[index(t, "provider_fraud_rate")]; got != 0.05 {
		t.Errorf("provider_fraud_rate baseline = %v, want 0.05", got)
	}
	if got := v.Values[index(t, "patient_age")]; got != 45 {
		t.Errorf("patient_age baseline = %v, want 45", got)
	}
}

func TestExtractCompleteDataNotDegraded(t *testing.T) {
	e := NewExtractor()
	v := e.Extract(Input{
		Claim:   testClaim(),
		Patient: &domain.Patient{ID: "PAT-001", DateOfBirth: time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)},
		ProviderStats: &domain.ProviderStats{
			ClaimCount: 100, MeanAmount: 1000, FraudRate: 0.02, WeekendShare: 0.1, PatientCount: 40,
		},
		PatientStats: &domain.PatientStats{
			ClaimCount: 10, ClaimFrequency: 0.05, ProviderCount: 2, SpendTrend: 1.1,
			TypeCounts: map[string]int{domain.ClaimTypeOutpatient: 10},
		},
	})

	if v.Degraded() {
		t.Fatalf("complete input should not degrade, missing: %v", v.Missing)
	}
	if got := v.Values[index(t, "patient_age_risk")]; got != 0.8 {
		t.Errorf("patient_age_risk for a 75-year-old = %v, want 0.8", got)
	}
}

func TestTypeEntropy(t *testing.T) {
	uniform := map[string]int{
		domain.ClaimTypeInpatient: 5, domain.ClaimTypeOutpatient: 5,
		domain.ClaimTypePharmacy: 5, domain.ClaimTypeEquipment: 5,
	}
	if got := typeEntropy(uniform, 20); math.Abs(got-1) > 1e-9 {
		t.Errorf("uniform mix entropy = %v, want 1", got)
	}
	single := map[string]int{domain.ClaimTypeOutpatient: 20}
	if got := typeEntropy(single, 20); got != 0 {
		t.Errorf("single type entropy = %v, want 0", got)
	}
}

func TestValidateNames(t *testing.T) {
	if err := ValidateNames(Names); err != nil {
		t.Errorf("matching list rejected: %v", err)
	}

	if err := ValidateNames(Names[:len(Names)-1]); err == nil {
		t.Error("short list accepted")
	}

	reordered := make([]string, len(Names))
	copy(reordered, Names)
	reordered[0], reordered[1] = reordered[1], reordered[0]
	if err := ValidateNames(reordered); err == nil {
		t.Error("reordered list accepted")
	}
}
