// Package features derives the numeric feature vector for a claim.
//
// The extractor never fails on missing data: any input it cannot
// resolve falls back to a population baseline and the feature name is
// recorded on the vector so downstream consumers can lower confidence.
package features

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

// Names lists every feature in scoring order. The classifier artifact
// must declare the same list; order changes are a model-version change.
var Names = []string{
	"claim_amount",
	"claim_amount_log",
	"amount_zscore",
	"amount_provider_ratio",
	"amount_percentile",
	"is_inpatient",
	"is_outpatient",
	"is_pharmacy",
	"is_equipment",
	"claim_type_entropy",
	"service_day_of_week",
	"is_weekend",
	"submission_lag_days",
	"provider_claim_count",
	"provider_mean_amount",
	"provider_fraud_rate",
	"provider_weekend_share",
	"provider_patient_count",
	"patient_claim_count",
	"patient_claim_frequency",
	"patient_provider_count",
	"patient_age",
	"patient_age_risk",
	"patient_spend_trend",
}

// ValidateNames checks that a model artifact's feature list matches
// the extractor's scoring order exactly. A reordered or renamed list
// would score silently wrong, so callers must refuse it.
func ValidateNames(names []string) error {
	if len(names) != len(Names) {
		return fmt.Errorf("model declares %d features, extractor produces %d", len(names), len(Names))
	}
	for i, n := range names {
		if n != Names[i] {
			return fmt.Errorf("feature %d is %q in the model but %q in the extractor", i, n, Names[i])
		}
	}
	return nil
}

// Input carries everything the extractor needs for one claim. Any
// pointer field may be nil; the extractor substitutes baselines.
type Input struct {
	Claim         *domain.Claim
	Patient       *domain.Patient
	ProviderStats *domain.ProviderStats
	PatientStats  *domain.PatientStats
	Population    *domain.PopulationStats
}

// Extractor computes feature vectors. It is stateless and safe for
// concurrent use.
type Extractor struct {
	now func() time.Time
}

// NewExtractor creates a feature extractor.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// Extract computes the feature vector for one claim. The returned
// vector always has len(Names) values; extraction itself cannot fail,
// only degrade.
func (e *Extractor) Extract(in Input) *domain.FeatureVector {
	pop := in.Population
	if pop == nil {
		pop = domain.DefaultPopulation()
	}

	v := &domain.FeatureVector{Values: make([]float64, len(Names))}
	set := func(idx int, val float64) { v.Values[idx] = val }
	miss := func(idx int) {
		v.Missing = append(v.Missing, Names[idx])
	}

	c := in.Claim

	// Amount features
	set(0, c.Amount)
	set(1, math.Log1p(math.Max(c.Amount, 0)))
	if pop.StdDevAmount > 0 {
		set(2, (c.Amount-pop.MeanAmount)/pop.StdDevAmount)
	}
	if in.ProviderStats != nil && in.ProviderStats.MeanAmount > 0 {
		set(3, c.Amount/in.ProviderStats.MeanAmount)
	} else {
		set(3, 1.0)
		miss(3)
	}
	set(4, amountPercentile(c.Amount, pop))

	// Claim type one-hot
	set(5, boolFeature(c.Type == domain.ClaimTypeInpatient))
	set(6, boolFeature(c.Type == domain.ClaimTypeOutpatient))
	set(7, boolFeature(c.Type == domain.ClaimTypePharmacy))
	set(8, boolFeature(c.Type == domain.ClaimTypeEquipment))

	// Patient claim-type mix
	if in.PatientStats != nil && in.PatientStats.ClaimCount > 0 {
		set(9, typeEntropy(in.PatientStats.TypeCounts, in.PatientStats.ClaimCount))
	} else {
		miss(9)
	}

	// Temporal features
	set(10, float64(c.ServiceDate.Weekday()))
	wd := c.ServiceDate.Weekday()
	set(11, boolFeature(wd == time.Saturday || wd == time.Sunday))
	if !c.SubmissionDate.IsZero() {
		set(12, c.SubmissionDate.Sub(c.ServiceDate).Hours()/24)
	} else {
		miss(12)
	}

	// Provider features
	if ps := in.ProviderStats; ps != nil {
		set(13, float64(ps.ClaimCount))
		set(14, ps.MeanAmount)
		set(15, ps.FraudRate)
		set(16, ps.WeekendShare)
		set(17, float64(ps.PatientCount))
	} else {
		set(15, pop.MeanFraudRate)
		for _, idx := range []int{13, 14, 15, 16, 17} {
			miss(idx)
		}
	}

	// Patient features
	if ps := in.PatientStats; ps != nil {
		set(18, float64(ps.ClaimCount))
		set(19, ps.ClaimFrequency)
		set(20, float64(ps.ProviderCount))
		set(23, ps.SpendTrend)
	} else {
		set(18, pop.MeanClaimsPerPatient)
		for _, idx := range []int{18, 19, 20, 23} {
			miss(idx)
		}
	}

	// Demographics
	if in.Patient != nil && !in.Patient.DateOfBirth.IsZero() {
		age := e.ageAt(in.Patient.DateOfBirth, c.ServiceDate)
		set(21, age)
		set(22, ageRisk(age))
	} else {
		set(21, pop.MeanPatientAge)
		set(22, ageRisk(pop.MeanPatientAge))
		miss(21)
		miss(22)
	}

	return v
}

func (e *Extractor) ageAt(dob, at time.Time) float64 {
	if at.IsZero() {
		at = e.now()
	}
	years := at.Sub(dob).Hours() / (24 * 365.25)
	return math.Max(years, 0)
}

// amountPercentile approximates the claim amount's percentile under a
// normal population model, clamped to [0, 1].
func amountPercentile(amount float64, pop *domain.PopulationStats) float64 {
	if pop.StdDevAmount <= 0 {
		return 0.5
	}
	z := (amount - pop.MeanAmount) / pop.StdDevAmount
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// typeEntropy measures how spread a patient's claims are across claim
// types. Single-type histories score 0; a uniform mix scores 1.
func typeEntropy(counts map[string]int, total int) float64 {
	if total <= 0 || len(counts) <= 1 {
		return 0
	}
	var h float64
	for _, n := range counts {
		if n <= 0 {
			continue
		}
		p := float64(n) / float64(total)
		h -= p * math.Log2(p)
	}
	return h / math.Log2(float64(len(domain.ClaimTypes)))
}

// ageRisk maps patient age to a fraud-exposure weight. The very young
// and the elderly are targeted disproportionately.
func ageRisk(age float64) float64 {
	switch {
	case age < 18:
		return 0.3
	case age >= 75:
		return 0.8
	case age >= 65:
		return 0.6
	default:
		return 0.1
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
