package domain

import (
	"time"
)

// RiskLevel is the discrete band derived from the final fraud probability.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "MINIMAL"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskLevelFor maps a fraud probability to its risk band. Lower bounds
// are inclusive, so a probability of exactly 0.5 is MEDIUM and 0.85 is
// CRITICAL.
func RiskLevelFor(p float64) RiskLevel {
	switch {
	case p >= 0.85:
		return RiskCritical
	case p >= 0.7:
		return RiskHigh
	case p >= 0.5:
		return RiskMedium
	case p >= 0.3:
		return RiskLow
	default:
		return RiskMinimal
	}
}

// Rank orders risk levels for sorting and comparisons. Higher is riskier.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskCritical:
		return 4
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// RiskFactor is one feature contribution surfaced to the caller.
type RiskFactor struct {
	Factor string  `json:"factor"`
	Value  float64 `json:"value"`
}

// Explanation is the per-claim natural-language rationale bundle.
type Explanation struct {
	Summary               string    `json:"summary"`
	RedFlags              []RedFlag `json:"red_flags"`
	Recommendation        string    `json:"recommendation"`
	ConfidenceExplanation string    `json:"confidence_explanation"`
	TotalRedFlags         int       `json:"total_red_flags"`
	RiskScore             float64   `json:"risk_score"`
}

// FraudAssessment is the engine's verdict for a single claim. Created
// fresh per assessment run and never mutated after creation; ownership
// transfers to the caller.
type FraudAssessment struct {
	ID      string `json:"id"`
	ClaimID string `json:"claim_id"`

	// ProviderID and ClaimAmount are carried from the claim so batch
	// reporting can compute exposure and provider hotspots without
	// re-reading the store.
	ProviderID  string  `json:"provider_id"`
	ClaimAmount float64 `json:"claim_amount"`

	FraudProbability float64   `json:"fraud_probability"`
	IsFraudPredicted bool      `json:"is_fraud_predicted"`
	RiskLevel        RiskLevel `json:"risk_level"`

	// Confidence is model certainty in [0.5, 1], independent of the
	// fraud probability itself.
	Confidence float64 `json:"confidence"`

	RiskFactors []RiskFactor `json:"risk_factors"`
	Explanation Explanation  `json:"explanation"`

	// GraphPatterns names the topological patterns this claim
	// participates in, if any.
	GraphPatterns []Pattern `json:"graph_patterns,omitempty"`

	// DataQuality is false when the assessment fell back to population
	// baselines for unresolved references.
	DataQuality bool `json:"data_quality"`

	AssessedAt time.Time `json:"assessed_at"`
}

// Failure codes for per-claim assessment failures.
const (
	FailureUnknownClaim = "UNKNOWN_CLAIM"
	FailureAggregation  = "AGGREGATION_ERROR"
)

// ClaimFailure reports a claim that could not be assessed. Failures
// never abort the batch.
type ClaimFailure struct {
	ClaimID string `json:"claim_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Insight is one ranked batch-level finding.
type Insight struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Impact      string `json:"impact"` // High, Medium, Low
	Action      string `json:"action"`
}

// BatchReport aggregates a whole batch into an executive view.
type BatchReport struct {
	ExecutiveSummary string    `json:"executive_summary"`
	Insights         []Insight `json:"insights"`
}

// BatchResult is the complete output of one assess call. Assessments
// preserve the input claim-id order; failed claims appear only in
// Failures.
type BatchResult struct {
	BatchID     string             `json:"batch_id"`
	Assessments []*FraudAssessment `json:"assessments"`
	Failures    []ClaimFailure     `json:"failures,omitempty"`
	Report      BatchReport        `json:"report"`

	// DegradedPatterns lists graph patterns that hit their traversal
	// budget and were treated as no-match for this batch.
	DegradedPatterns []Pattern `json:"degraded_patterns,omitempty"`

	StartedAt time.Time `json:"started_at"`
	Duration  int64     `json:"duration_ms"`
}

// FraudDetected counts assessments with a positive fraud prediction.
func (b *BatchResult) FraudDetected() int {
	n := 0
	for _, a := range b.Assessments {
		if a.IsFraudPredicted {
			n++
		}
	}
	return n
}
