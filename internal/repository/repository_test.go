package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

func newTestStore(t *testing.T) domain.Store {
	t.Helper()
	store, err := New(domain.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleClaim(id string) *domain.Claim {
	return &domain.Claim{
		ID:             id,
		PatientID:      "PAT-001",
		ProviderID:     "PRV-001",
		ReferrerID:     "PRV-002",
		Amount:         4200.50,
		ProcedureCode:  "99214",
		DiagnosisCode:  "E11.9",
		Type:           domain.ClaimTypeOutpatient,
		Status:         domain.ClaimStatusSubmitted,
		ServiceDate:    time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC),
		SubmissionDate: time.Date(2025, 4, 3, 9, 0, 0, 0, time.UTC),
	}
}

func TestClaimRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := sampleClaim("CLM-001")
	if err := store.SaveClaim(ctx, want); err != nil {
		t.Fatalf("SaveClaim: %v", err)
	}

	got, err := store.GetClaim(ctx, "CLM-001")
	if err != nil {
		t.Fatalf("GetClaim: %v", err)
	}
	if got.ID != want.ID || got.PatientID != want.PatientID || got.Amount != want.Amount {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got.ReferrerID != "PRV-002" {
		t.Errorf("referrer = %q, want PRV-002", got.ReferrerID)
	}
	if !got.ServiceDate.Equal(want.ServiceDate) {
		t.Errorf("service date = %v, want %v", got.ServiceDate, want.ServiceDate)
	}

	t.Run("not found", func(t *testing.T) {
		if _, err := store.GetClaim(ctx, "CLM-NOPE"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("upsert", func(t *testing.T) {
		want.Status = domain.ClaimStatusApproved
		if err := store.SaveClaim(ctx, want); err != nil {
			t.Fatalf("SaveClaim update: %v", err)
		}
		got, err := store.GetClaim(ctx, "CLM-001")
		if err != nil {
			t.Fatalf("GetClaim: %v", err)
		}
		if got.Status != domain.ClaimStatusApproved {
			t.Errorf("status = %s, want approved", got.Status)
		}
	})
}

func TestClaimQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		c := sampleClaim(fmt.Sprintf("CLM-%03d", i))
		c.ServiceDate = base.Add(time.Duration(i) * 24 * time.Hour)
		if i >= 3 {
			c.PatientID = "PAT-002"
			c.ProviderID = "PRV-009"
		}
		if err := store.SaveClaim(ctx, c); err != nil {
			t.Fatalf("SaveClaim: %v", err)
		}
	}

	byPatient, err := store.GetClaimsByPatient(ctx, "PAT-001", time.Time{})
	if err != nil {
		t.Fatalf("GetClaimsByPatient: %v", err)
	}
	if len(byPatient) != 3 {
		t.Errorf("patient claims = %d, want 3", len(byPatient))
	}
	for i := 1; i < len(byPatient); i++ {
		if byPatient[i].ServiceDate.Before(byPatient[i-1].ServiceDate) {
			t.Error("claims should be ordered by service date")
		}
	}

	byProvider, err := store.GetClaimsByProvider(ctx, "PRV-009", time.Time{})
	if err != nil {
		t.Fatalf("GetClaimsByProvider: %v", err)
	}
	if len(byProvider) != 2 {
		t.Errorf("provider claims = %d, want 2", len(byProvider))
	}

	since := base.Add(3 * 24 * time.Hour)
	recent, err := store.ListClaims(ctx, since)
	if err != nil {
		t.Fatalf("ListClaims: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("claims since %v = %d, want 2", since, len(recent))
	}

	ids, err := store.ListClaimIDs(ctx)
	if err != nil {
		t.Fatalf("ListClaimIDs: %v", err)
	}
	if len(ids) != 5 || ids[0] != "CLM-000" {
		t.Errorf("ids = %v", ids)
	}
}

func TestPatientRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := &domain.Patient{
		ID:          "PAT-001",
		DateOfBirth: time.Date(1948, 7, 12, 0, 0, 0, 0, time.UTC),
		Gender:      "F",
		Address:     "12 Oak St",
		City:        "Springfield",
		State:       "IL",
		Zip:         "62704",
	}
	if err := store.SavePatient(ctx, want); err != nil {
		t.Fatalf("SavePatient: %v", err)
	}

	got, err := store.GetPatient(ctx, "PAT-001")
	if err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if got.Address != want.Address || !got.DateOfBirth.Equal(want.DateOfBirth) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	all, err := store.ListPatients(ctx)
	if err != nil {
		t.Fatalf("ListPatients: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("patients = %d, want 1", len(all))
	}

	if _, err := store.GetPatient(ctx, "PAT-NOPE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestProviderRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := &domain.Provider{
		ID:        "PRV-001",
		Name:      "Springfield Imaging",
		Specialty: "radiology",
		State:     "IL",
	}
	if err := store.SaveProvider(ctx, want); err != nil {
		t.Fatalf("SaveProvider: %v", err)
	}

	got, err := store.GetProvider(ctx, "PRV-001")
	if err != nil {
		t.Fatalf("GetProvider: %v", err)
	}
	if got.Name != want.Name || got.Specialty != want.Specialty {
		t.Errorf("got %+v, want %+v", got, want)
	}

	all, err := store.ListProviders(ctx)
	if err != nil {
		t.Fatalf("ListProviders: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("providers = %d, want 1", len(all))
	}
}

func sampleAssessment(id, claimID string, fraud bool) *domain.FraudAssessment {
	p := 0.2
	level := domain.RiskLow
	if fraud {
		p = 0.9
		level = domain.RiskCritical
	}
	return &domain.FraudAssessment{
		ID:               id,
		ClaimID:          claimID,
		ProviderID:       "PRV-001",
		ClaimAmount:      60000,
		FraudProbability: p,
		IsFraudPredicted: fraud,
		RiskLevel:        level,
		Confidence:       0.85,
		RiskFactors:      []domain.RiskFactor{{Factor: "claim_amount", Value: 60000}},
		Explanation: domain.Explanation{
			Summary:        "test summary",
			Recommendation: "test recommendation",
			TotalRedFlags:  1,
		},
		GraphPatterns: []domain.Pattern{domain.PatternPingPong},
		DataQuality:   true,
		AssessedAt:    time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAssessmentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveClaim(ctx, sampleClaim("CLM-001")); err != nil {
		t.Fatalf("SaveClaim: %v", err)
	}
	want := sampleAssessment("ASM-001", "CLM-001", true)
	if err := store.SaveAssessment(ctx, want); err != nil {
		t.Fatalf("SaveAssessment: %v", err)
	}

	got, err := store.GetAssessment(ctx, "ASM-001")
	if err != nil {
		t.Fatalf("GetAssessment: %v", err)
	}
	if got.FraudProbability != want.FraudProbability || got.RiskLevel != want.RiskLevel {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got.ProviderID != "PRV-001" || got.ClaimAmount != 60000 {
		t.Errorf("provider/amount = %q/%v, want PRV-001/60000", got.ProviderID, got.ClaimAmount)
	}
	if len(got.RiskFactors) != 1 || got.RiskFactors[0].Factor != "claim_amount" {
		t.Errorf("risk factors = %+v", got.RiskFactors)
	}
	if got.Explanation.Summary != "test summary" {
		t.Errorf("explanation = %+v", got.Explanation)
	}
	if len(got.GraphPatterns) != 1 || got.GraphPatterns[0] != domain.PatternPingPong {
		t.Errorf("patterns = %v", got.GraphPatterns)
	}

	byClaim, err := store.GetAssessmentByClaim(ctx, "CLM-001")
	if err != nil {
		t.Fatalf("GetAssessmentByClaim: %v", err)
	}
	if byClaim.ID != "ASM-001" {
		t.Errorf("by claim = %s, want ASM-001", byClaim.ID)
	}
}

func TestProviderFraudRate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c := sampleClaim(fmt.Sprintf("CLM-%03d", i))
		if err := store.SaveClaim(ctx, c); err != nil {
			t.Fatalf("SaveClaim: %v", err)
		}
		a := sampleAssessment(fmt.Sprintf("ASM-%03d", i), c.ID, i == 0)
		a.AssessedAt = a.AssessedAt.Add(time.Duration(i) * time.Minute)
		if err := store.SaveAssessment(ctx, a); err != nil {
			t.Fatalf("SaveAssessment: %v", err)
		}
	}

	rate, assessed, err := store.ProviderFraudRate(ctx, "PRV-001")
	if err != nil {
		t.Fatalf("ProviderFraudRate: %v", err)
	}
	if assessed != 4 {
		t.Errorf("assessed = %d, want 4", assessed)
	}
	if rate != 0.25 {
		t.Errorf("rate = %v, want 0.25", rate)
	}

	t.Run("no history", func(t *testing.T) {
		rate, assessed, err := store.ProviderFraudRate(ctx, "PRV-EMPTY")
		if err != nil {
			t.Fatalf("ProviderFraudRate: %v", err)
		}
		if rate != 0 || assessed != 0 {
			t.Errorf("rate=%v assessed=%d, want zeros", rate, assessed)
		}
	})
}

func TestCountAssessmentsByRiskLevel(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c := sampleClaim(fmt.Sprintf("CLM-%03d", i))
		if err := store.SaveClaim(ctx, c); err != nil {
			t.Fatal(err)
		}
		if err := store.SaveAssessment(ctx, sampleAssessment(fmt.Sprintf("ASM-%03d", i), c.ID, i == 0)); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := store.CountAssessmentsByRiskLevel(ctx)
	if err != nil {
		t.Fatalf("CountAssessmentsByRiskLevel: %v", err)
	}
	if counts[domain.RiskCritical] != 1 || counts[domain.RiskLow] != 2 {
		t.Errorf("counts = %v", counts)
	}
}
