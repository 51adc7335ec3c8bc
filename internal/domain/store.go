package domain

import (
	"context"
	"time"
)

// Store defines the interface for data persistence.
type Store interface {
	// Claim operations
	SaveClaim(ctx context.Context, claim *Claim) error
	GetClaim(ctx context.Context, claimID string) (*Claim, error)
	ListClaimIDs(ctx context.Context) ([]string, error)
	GetClaimsByPatient(ctx context.Context, patientID string, since time.Time) ([]*Claim, error)
	GetClaimsByProvider(ctx context.Context, providerID string, since time.Time) ([]*Claim, error)
	ListClaims(ctx context.Context, since time.Time) ([]*Claim, error)

	// Patient operations
	SavePatient(ctx context.Context, patient *Patient) error
	GetPatient(ctx context.Context, patientID string) (*Patient, error)
	ListPatients(ctx context.Context) ([]*Patient, error)

	// Provider operations
	SaveProvider(ctx context.Context, provider *Provider) error
	GetProvider(ctx context.Context, providerID string) (*Provider, error)
	ListProviders(ctx context.Context) ([]*Provider, error)

	// Assessment results
	SaveAssessment(ctx context.Context, assessment *FraudAssessment) error
	// ProviderFraudRate returns the share of a provider's previously
	// assessed claims predicted fraudulent, and how many were assessed.
	ProviderFraudRate(ctx context.Context, providerID string) (float64, int, error)
	GetAssessment(ctx context.Context, assessmentID string) (*FraudAssessment, error)
	GetAssessmentByClaim(ctx context.Context, claimID string) (*FraudAssessment, error)
	CountAssessmentsByRiskLevel(ctx context.Context) (map[RiskLevel]int, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// StoreConfig holds configuration for store initialization.
type StoreConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
