package redflag

import "github.com/opensource-health/kestrel/internal/domain"

// BuiltinRules returns the standard red-flag rule set. Operators can
// extend or replace these over the API; the engine itself has no
// hard-coded rule knowledge.
func BuiltinRules() []*Rule {
	return []*Rule{
		// Amount anomalies
		{
			ID:          "AMT-001",
			Category:    domain.CategoryAmountAnomaly,
			Severity:    domain.SeverityHigh,
			Expression:  "amount_mean_ratio >= 3.0",
			Description: "Claim amount is more than 3x the provider's average",
			DataPoints:  []string{"amount", "amount_mean_ratio"},
			Enabled:     true,
		},
		{
			ID:          "AMT-002",
			Category:    domain.CategoryAmountAnomaly,
			Severity:    domain.SeverityHigh,
			Expression:  "amount_zscore >= 3.0",
			Description: "Claim amount is a statistical outlier for the population",
			DataPoints:  []string{"amount", "amount_zscore"},
			Enabled:     true,
		},
		{
			ID:          "AMT-003",
			Category:    domain.CategoryAmountAnomaly,
			Severity:    domain.SeverityMedium,
			Expression:  "amount >= 50000.0",
			Description: "Claim amount exceeds the high-value review threshold",
			DataPoints:  []string{"amount"},
			Enabled:     true,
		},

		// Provider patterns
		{
			ID:          "PRV-001",
			Category:    domain.CategoryProviderPattern,
			Severity:    domain.SeverityCritical,
			Expression:  "provider_fraud_rate >= 0.15",
			Description: "Provider has an elevated historical fraud rate",
			DataPoints:  []string{"provider_fraud_rate"},
			Enabled:     true,
		},
		{
			ID:          "PRV-002",
			Category:    domain.CategoryProviderPattern,
			Severity:    domain.SeverityMedium,
			Expression:  "provider_claims_per_day >= 20.0",
			Description: "Provider submits an unusually high daily claim volume",
			DataPoints:  []string{"provider_claims_per_day"},
			Enabled:     true,
		},
		{
			ID:          "PRV-003",
			Category:    domain.CategoryProviderPattern,
			Severity:    domain.SeverityMedium,
			Expression:  "provider_weekend_share >= 0.30",
			Description: "Provider bills a high share of services on weekends",
			DataPoints:  []string{"provider_weekend_share"},
			Enabled:     true,
		},

		// Patient behavior
		{
			ID:          "PAT-001",
			Category:    domain.CategoryPatientBehavior,
			Severity:    domain.SeverityMedium,
			Expression:  "patient_claim_frequency >= 0.33",
			Description: "Patient files claims more often than every three days",
			DataPoints:  []string{"patient_claim_frequency"},
			Enabled:     true,
		},
		{
			ID:          "PAT-002",
			Category:    domain.CategoryPatientBehavior,
			Severity:    domain.SeverityHigh,
			Expression:  "patient_provider_count >= 5",
			Description: "Patient visits an unusually large number of providers",
			DataPoints:  []string{"patient_provider_count"},
			Enabled:     true,
		},
		{
			ID:          "PAT-003",
			Category:    domain.CategoryPatientBehavior,
			Severity:    domain.SeverityLow,
			Expression:  "patient_claim_count >= 50",
			Description: "Patient has a very large claim history",
			DataPoints:  []string{"patient_claim_count"},
			Enabled:     true,
		},

		// Temporal anomalies
		{
			ID:          "TMP-001",
			Category:    domain.CategoryTemporal,
			Severity:    domain.SeverityMedium,
			Expression:  "is_weekend",
			Description: "Service was rendered on a weekend",
			DataPoints:  []string{"is_weekend"},
			Enabled:     true,
		},
		{
			ID:          "TMP-002",
			Category:    domain.CategoryTemporal,
			Severity:    domain.SeverityMedium,
			Expression:  "submission_lag_days >= 90.0",
			Description: "Claim was submitted more than 90 days after service",
			DataPoints:  []string{"submission_lag_days"},
			Enabled:     true,
		},
		{
			ID:          "TMP-003",
			Category:    domain.CategoryTemporal,
			Severity:    domain.SeverityHigh,
			Expression:  "submission_lag_days < 0.0",
			Description: "Claim was submitted before the service date",
			DataPoints:  []string{"submission_lag_days"},
			Enabled:     true,
		},
	}
}
