package redflag

import (
	"math"
	"testing"

	"github.com/opensource-health/kestrel/internal/domain"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := domain.DefaultConfig().RedFlags
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if err := e.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	return e
}

func cleanInput() *Input {
	return &Input{
		Amount:            1000,
		AmountMeanRatio:   1.0,
		ClaimType:         domain.ClaimTypeOutpatient,
		Status:            domain.ClaimStatusApproved,
		DeliveryConfirmed: true,
	}
}

func TestBuiltinRulesCompile(t *testing.T) {
	e := testEngine(t)
	if got, want := e.RulesCount(), len(BuiltinRules()); got != want {
		t.Fatalf("loaded %d rules, want %d", got, want)
	}
}

func TestEvaluateCleanClaim(t *testing.T) {
	e := testEngine(t)
	res, err := e.Evaluate(cleanInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Flags) != 0 {
		t.Errorf("clean claim raised flags: %+v", res.Flags)
	}
	if res.RiskScore != 0 {
		t.Errorf("risk score = %v, want 0", res.RiskScore)
	}
}

func TestEvaluateFiringRules(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Input)
		wantRule string
		wantSev  domain.Severity
	}{
		{"amount ratio", func(in *Input) { in.AmountMeanRatio = 4.0 }, "AMT-001", domain.SeverityHigh},
		{"amount zscore", func(in *Input) { in.AmountZScore = 3.5 }, "AMT-002", domain.SeverityHigh},
		{"high value", func(in *Input) { in.Amount = 75000 }, "AMT-003", domain.SeverityMedium},
		{"provider fraud rate", func(in *Input) { in.ProviderFraudRate = 0.2 }, "PRV-001", domain.SeverityCritical},
		{"claim volume", func(in *Input) { in.ProviderClaimsDay = 25 }, "PRV-002", domain.SeverityMedium},
		{"weekend billing share", func(in *Input) { in.ProviderWeekend = 0.5 }, "PRV-003", domain.SeverityMedium},
		{"patient frequency", func(in *Input) { in.PatientFrequency = 0.5 }, "PAT-001", domain.SeverityMedium},
		{"provider shopping", func(in *Input) { in.PatientProviders = 6 }, "PAT-002", domain.SeverityHigh},
		{"claim history", func(in *Input) { in.PatientClaims = 60 }, "PAT-003", domain.SeverityLow},
		{"weekend service", func(in *Input) { in.IsWeekend = true }, "TMP-001", domain.SeverityMedium},
		{"late submission", func(in *Input) { in.SubmissionLagDays = 120 }, "TMP-002", domain.SeverityMedium},
		{"submission before service", func(in *Input) { in.SubmissionLagDays = -1 }, "TMP-003", domain.SeverityHigh},
	}
	e := testEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := cleanInput()
			tt.mutate(in)
			res, err := e.Evaluate(in)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if len(res.Flags) != 1 {
				t.Fatalf("expected exactly 1 flag, got %d: %+v", len(res.Flags), res.Flags)
			}
			f := res.Flags[0]
			if f.RuleID != tt.wantRule {
				t.Errorf("rule = %s, want %s", f.RuleID, tt.wantRule)
			}
			if f.Severity != tt.wantSev {
				t.Errorf("severity = %s, want %s", f.Severity, tt.wantSev)
			}
		})
	}
}

func TestEvaluateOrderingAndDataPoints(t *testing.T) {
	e := testEngine(t)
	in := cleanInput()
	in.ProviderFraudRate = 0.2 // PRV-001, CRITICAL
	in.IsWeekend = true        // TMP-001, MEDIUM
	in.AmountMeanRatio = 4.0   // AMT-001, HIGH

	res, err := e.Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Flags) != 3 {
		t.Fatalf("expected 3 flags, got %d", len(res.Flags))
	}
	wantOrder := []string{"PRV-001", "AMT-001", "TMP-001"}
	for i, want := range wantOrder {
		if res.Flags[i].RuleID != want {
			t.Errorf("flag[%d] = %s, want %s", i, res.Flags[i].RuleID, want)
		}
	}
	if got := res.Flags[0].DataPoints["provider_fraud_rate"]; got != 0.2 {
		t.Errorf("data point provider_fraud_rate = %v, want 0.2", got)
	}
}

func TestEvaluateTiesBreakByRegistrationOrder(t *testing.T) {
	cfg := domain.DefaultConfig().RedFlags
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	// Same severity, IDs sorted opposite to registration order.
	rules := []*Rule{
		{ID: "ZZZ-001", Category: domain.CategoryAmountAnomaly, Severity: domain.SeverityHigh,
			Expression: "amount > 0.0", Description: "registered first", Enabled: true},
		{ID: "AAA-001", Category: domain.CategoryAmountAnomaly, Severity: domain.SeverityHigh,
			Expression: "amount > 0.0", Description: "registered second", Enabled: true},
	}
	if err := e.LoadRules(rules); err != nil {
		t.Fatalf("LoadRules: %v", err)
	}

	res, err := e.Evaluate(cleanInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(res.Flags) != 2 {
		t.Fatalf("expected 2 flags, got %d", len(res.Flags))
	}
	if res.Flags[0].RuleID != "ZZZ-001" || res.Flags[1].RuleID != "AAA-001" {
		t.Errorf("order = [%s %s], want registration order [ZZZ-001 AAA-001]",
			res.Flags[0].RuleID, res.Flags[1].RuleID)
	}
}

func TestRiskScoreFoldsSeverities(t *testing.T) {
	cfg := domain.DefaultConfig().RedFlags
	e := testEngine(t)
	in := cleanInput()
	in.ProviderFraudRate = 0.2 // CRITICAL
	in.AmountMeanRatio = 4.0   // HIGH
	in.IsWeekend = true        // MEDIUM

	res, err := e.Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := cfg.CriticalWeight + cfg.HighWeight + cfg.MediumWeight
	if math.Abs(res.RiskScore-want) > 1e-9 {
		t.Errorf("risk score = %v, want %v", res.RiskScore, want)
	}
}

func TestRiskScoreCapped(t *testing.T) {
	e := testEngine(t)
	in := cleanInput()
	in.Amount = 100000
	in.AmountMeanRatio = 10
	in.AmountZScore = 5
	in.ProviderFraudRate = 0.5
	in.ProviderClaimsDay = 50
	in.ProviderWeekend = 0.8
	in.PatientFrequency = 1.0
	in.PatientProviders = 10
	in.PatientClaims = 200
	in.IsWeekend = true
	in.SubmissionLagDays = 120

	res, err := e.Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.RiskScore > 1.0 {
		t.Errorf("risk score = %v, must not exceed 1.0", res.RiskScore)
	}
	if len(res.Flags) < 10 {
		t.Errorf("expected most rules to fire, got %d flags", len(res.Flags))
	}
}

func TestRejectsNonBooleanRule(t *testing.T) {
	e, err := NewEngine(domain.DefaultConfig().RedFlags)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	bad := &Rule{ID: "BAD-001", Expression: "amount * 2.0", Enabled: true}
	if err := e.ValidateRule(bad); err == nil {
		t.Fatal("expected compile error for non-boolean expression")
	}
}

func TestReloadRulesReplacesSet(t *testing.T) {
	e := testEngine(t)
	custom := []*Rule{{
		ID:         "CST-001",
		Category:   domain.CategoryAmountAnomaly,
		Severity:   domain.SeverityLow,
		Expression: "amount > 10.0",
		Enabled:    true,
	}}
	if err := e.ReloadRules(custom); err != nil {
		t.Fatalf("ReloadRules: %v", err)
	}
	if e.RulesCount() != 1 {
		t.Fatalf("rules count = %d, want 1", e.RulesCount())
	}
	res, _ := e.Evaluate(cleanInput())
	if len(res.Flags) != 1 || res.Flags[0].RuleID != "CST-001" {
		t.Errorf("expected only CST-001 to fire, got %+v", res.Flags)
	}
}
