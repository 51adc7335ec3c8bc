// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"time"
)

// Claim represents a single healthcare insurance claim. Claims are
// immutable inputs to an assessment run; the engine never mutates them.
type Claim struct {
	ID         string `json:"id"`
	PatientID  string `json:"patientId"`
	ProviderID string `json:"providerId"`

	// ReferrerID is the provider that referred the patient, if any.
	// Referral edges drive the kickback-ring and ping-pong detectors.
	ReferrerID string `json:"referrerId,omitempty"`

	Amount        float64 `json:"amount"`
	ProcedureCode string  `json:"procedureCode"`
	DiagnosisCode string  `json:"diagnosisCode"`

	// Type is one of the ClaimType* constants.
	Type   string `json:"type"`
	Status string `json:"status"`

	ServiceDate    time.Time `json:"serviceDate"`
	SubmissionDate time.Time `json:"submissionDate"`

	// DeliveryConfirmed records a corroborating delivery record for
	// equipment claims. Ignored for other claim types.
	DeliveryConfirmed bool `json:"deliveryConfirmed,omitempty"`
}

// Claim types.
const (
	ClaimTypeInpatient  = "inpatient"
	ClaimTypeOutpatient = "outpatient"
	ClaimTypePharmacy   = "pharmacy"
	ClaimTypeEquipment  = "equipment"
)

// ClaimTypes lists all claim types in canonical order. The feature
// extractor relies on this ordering for one-hot encoding.
var ClaimTypes = []string{
	ClaimTypeInpatient,
	ClaimTypeOutpatient,
	ClaimTypePharmacy,
	ClaimTypeEquipment,
}

// Claim statuses.
const (
	ClaimStatusSubmitted = "submitted"
	ClaimStatusApproved  = "approved"
	ClaimStatusDenied    = "denied"
	ClaimStatusPending   = "pending"
)

// Patient is the insured individual a claim was filed for.
type Patient struct {
	ID          string    `json:"id"`
	DateOfBirth time.Time `json:"dateOfBirth"`
	Gender      string    `json:"gender"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	Zip         string    `json:"zip"`
	Phone       string    `json:"phone,omitempty"`
}

// Provider is the billing healthcare provider.
type Provider struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
}

// ProviderStats holds historical aggregates for a provider, derived
// from stored claims. Used by the feature extractor and the red-flag
// rule engine.
type ProviderStats struct {
	ProviderID   string  `json:"providerId"`
	ClaimCount   int     `json:"claimCount"`
	TotalAmount  float64 `json:"totalAmount"`
	MeanAmount   float64 `json:"meanAmount"`
	MaxAmount    float64 `json:"maxAmount"`
	StdDevAmount float64 `json:"stdDevAmount"`
	PatientCount int     `json:"patientCount"`

	// WeekendShare is the fraction of the provider's claims with a
	// weekend service date.
	WeekendShare float64 `json:"weekendShare"`

	// FraudRate is the share of the provider's past claims confirmed
	// fraudulent by prior investigations. Zero when no history exists.
	FraudRate float64 `json:"fraudRate"`

	ClaimsPerDay float64   `json:"claimsPerDay"`
	FirstService time.Time `json:"firstService"`
	LastService  time.Time `json:"lastService"`
}

// PatientStats holds historical aggregates for a patient.
type PatientStats struct {
	PatientID     string  `json:"patientId"`
	ClaimCount    int     `json:"claimCount"`
	TotalAmount   float64 `json:"totalAmount"`
	MeanAmount    float64 `json:"meanAmount"`
	ProviderCount int     `json:"providerCount"`

	// ClaimFrequency is claims per day over the patient's active span.
	ClaimFrequency float64 `json:"claimFrequency"`

	// SpendTrend is the slope of claim amounts over time, in dollars
	// per day. Positive values mean accelerating spend.
	SpendTrend float64 `json:"spendTrend"`

	// TypeCounts maps claim type to occurrence count, used for the
	// claim-type distribution entropy feature.
	TypeCounts map[string]int `json:"typeCounts,omitempty"`

	FirstService time.Time `json:"firstService"`
	LastService  time.Time `json:"lastService"`
}

// PopulationStats holds population-level baselines used when a claim's
// patient or provider references cannot be resolved. The missing-data
// policy falls back to these instead of failing.
type PopulationStats struct {
	MeanAmount           float64 `json:"meanAmount"`
	StdDevAmount         float64 `json:"stdDevAmount"`
	MeanFraudRate        float64 `json:"meanFraudRate"`
	MeanClaimsPerPatient float64 `json:"meanClaimsPerPatient"`
	MeanPatientAge       float64 `json:"meanPatientAge"`
}

// DefaultPopulation returns conservative population baselines for use
// when the store holds too little history to derive real ones.
func DefaultPopulation() *PopulationStats {
	return &PopulationStats{
		MeanAmount:           2500.0,
		StdDevAmount:         1800.0,
		MeanFraudRate:        0.05,
		MeanClaimsPerPatient: 8.0,
		MeanPatientAge:       45.0,
	}
}
