package domain

// FlagCategory partitions red flags into the four rule families.
type FlagCategory string

const (
	CategoryAmountAnomaly   FlagCategory = "amount_anomaly"
	CategoryProviderPattern FlagCategory = "provider_pattern"
	CategoryPatientBehavior FlagCategory = "patient_behavior"
	CategoryTemporal        FlagCategory = "temporal"
)

// Severity grades a red flag.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Rank orders severities for sorting. Higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// RedFlag is a discrete, rule-derived indicator of suspicious claim
// characteristics. A claim may carry multiple flags; ordering is stable
// by severity rank, then by rule registration order.
type RedFlag struct {
	RuleID      string         `json:"rule_id"`
	Category    FlagCategory   `json:"category"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	DataPoints  map[string]any `json:"data_points,omitempty"`
}

// FlagResult is the rule engine's full output for one claim.
type FlagResult struct {
	Flags []RedFlag `json:"flags"`

	// RiskScore is the normalized severity-weighted sum in [0, 1].
	RiskScore float64 `json:"risk_score"`
}
