// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-health/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLStore implements domain.Store using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// New creates a new store based on configuration.
func New(cfg domain.StoreConfig) (domain.Store, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveClaim stores a claim, replacing any previous version.
func (s *SQLStore) SaveClaim(ctx context.Context, c *domain.Claim) error {
	if c.ID == "" {
		return fmt.Errorf("%w: claim ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO claims (
			id, patient_id, provider_id, referrer_id, amount,
			procedure_code, diagnosis_code, type, status,
			service_date, submission_date, delivery_confirmed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			patient_id = excluded.patient_id,
			provider_id = excluded.provider_id,
			referrer_id = excluded.referrer_id,
			amount = excluded.amount,
			procedure_code = excluded.procedure_code,
			diagnosis_code = excluded.diagnosis_code,
			type = excluded.type,
			status = excluded.status,
			service_date = excluded.service_date,
			submission_date = excluded.submission_date,
			delivery_confirmed = excluded.delivery_confirmed
	`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		c.ID, c.PatientID, c.ProviderID, c.ReferrerID, c.Amount,
		c.ProcedureCode, c.DiagnosisCode, c.Type, c.Status,
		c.ServiceDate, c.SubmissionDate, boolToInt(c.DeliveryConfirmed),
	)
	return err
}

const claimColumns = `id, patient_id, provider_id, referrer_id, amount,
	procedure_code, diagnosis_code, type, status,
	service_date, submission_date, delivery_confirmed`

func scanClaim(row interface{ Scan(...any) error }) (*domain.Claim, error) {
	var c domain.Claim
	var referrer, diagnosis sql.NullString
	var submitted sql.NullTime
	var delivered int
	err := row.Scan(
		&c.ID, &c.PatientID, &c.ProviderID, &referrer, &c.Amount,
		&c.ProcedureCode, &diagnosis, &c.Type, &c.Status,
		&c.ServiceDate, &submitted, &delivered,
	)
	if err != nil {
		return nil, err
	}
	c.ReferrerID = referrer.String
	c.DiagnosisCode = diagnosis.String
	if submitted.Valid {
		c.SubmissionDate = submitted.Time
	}
	c.DeliveryConfirmed = delivered == 1
	return &c, nil
}

// GetClaim retrieves a claim by ID.
func (s *SQLStore) GetClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = ?`

	c, err := scanClaim(s.db.QueryRowContext(ctx, s.rebind(query), claimID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListClaimIDs returns every claim ID in deterministic order.
func (s *SQLStore) ListClaimIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM claims ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) queryClaims(ctx context.Context, query string, args ...any) ([]*domain.Claim, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// GetClaimsByPatient retrieves a patient's claims since a point in
// time, ordered by service date.
func (s *SQLStore) GetClaimsByPatient(ctx context.Context, patientID string, since time.Time) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + `
		FROM claims
		WHERE patient_id = ? AND service_date >= ?
		ORDER BY service_date, id`
	return s.queryClaims(ctx, query, patientID, since)
}

// GetClaimsByProvider retrieves a provider's claims since a point in
// time, ordered by service date.
func (s *SQLStore) GetClaimsByProvider(ctx context.Context, providerID string, since time.Time) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + `
		FROM claims
		WHERE provider_id = ? AND service_date >= ?
		ORDER BY service_date, id`
	return s.queryClaims(ctx, query, providerID, since)
}

// ListClaims retrieves all claims since a point in time, ordered by
// service date.
func (s *SQLStore) ListClaims(ctx context.Context, since time.Time) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + `
		FROM claims
		WHERE service_date >= ?
		ORDER BY service_date, id`
	return s.queryClaims(ctx, query, since)
}

// SavePatient stores a patient record.
func (s *SQLStore) SavePatient(ctx context.Context, p *domain.Patient) error {
	if p.ID == "" {
		return fmt.Errorf("%w: patient ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO patients (id, date_of_birth, gender, address, city, state, zip, phone)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date_of_birth = excluded.date_of_birth,
			gender = excluded.gender,
			address = excluded.address,
			city = excluded.city,
			state = excluded.state,
			zip = excluded.zip,
			phone = excluded.phone
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		p.ID, p.DateOfBirth, p.Gender, p.Address, p.City, p.State, p.Zip, p.Phone)
	return err
}

// GetPatient retrieves a patient by ID.
func (s *SQLStore) GetPatient(ctx context.Context, patientID string) (*domain.Patient, error) {
	query := `SELECT id, date_of_birth, gender, address, city, state, zip, phone
		FROM patients WHERE id = ?`

	var p domain.Patient
	var dob sql.NullTime
	err := s.db.QueryRowContext(ctx, s.rebind(query), patientID).Scan(
		&p.ID, &dob, &p.Gender, &p.Address, &p.City, &p.State, &p.Zip, &p.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if dob.Valid {
		p.DateOfBirth = dob.Time
	}
	return &p, nil
}

// ListPatients retrieves all patients.
func (s *SQLStore) ListPatients(ctx context.Context) ([]*domain.Patient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date_of_birth, gender, address, city, state, zip, phone FROM patients ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []*domain.Patient
	for rows.Next() {
		var p domain.Patient
		var dob sql.NullTime
		if err := rows.Scan(&p.ID, &dob, &p.Gender, &p.Address, &p.City, &p.State, &p.Zip, &p.Phone); err != nil {
			return nil, err
		}
		if dob.Valid {
			p.DateOfBirth = dob.Time
		}
		patients = append(patients, &p)
	}
	return patients, rows.Err()
}

// SaveProvider stores a provider record.
func (s *SQLStore) SaveProvider(ctx context.Context, p *domain.Provider) error {
	if p.ID == "" {
		return fmt.Errorf("%w: provider ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO providers (id, name, specialty, address, city, state, zip)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			specialty = excluded.specialty,
			address = excluded.address,
			city = excluded.city,
			state = excluded.state,
			zip = excluded.zip
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		p.ID, p.Name, p.Specialty, p.Address, p.City, p.State, p.Zip)
	return err
}

// GetProvider retrieves a provider by ID.
func (s *SQLStore) GetProvider(ctx context.Context, providerID string) (*domain.Provider, error) {
	query := `SELECT id, name, specialty, address, city, state, zip
		FROM providers WHERE id = ?`

	var p domain.Provider
	err := s.db.QueryRowContext(ctx, s.rebind(query), providerID).Scan(
		&p.ID, &p.Name, &p.Specialty, &p.Address, &p.City, &p.State, &p.Zip)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProviders retrieves all providers.
func (s *SQLStore) ListProviders(ctx context.Context) ([]*domain.Provider, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, specialty, address, city, state, zip FROM providers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []*domain.Provider
	for rows.Next() {
		var p domain.Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Specialty, &p.Address, &p.City, &p.State, &p.Zip); err != nil {
			return nil, err
		}
		providers = append(providers, &p)
	}
	return providers, rows.Err()
}

// SaveAssessment stores an assessment result.
func (s *SQLStore) SaveAssessment(ctx context.Context, a *domain.FraudAssessment) error {
	if a.ID == "" || a.ClaimID == "" {
		return fmt.Errorf("%w: assessment and claim IDs are required", ErrInvalidInput)
	}

	riskFactors, _ := json.Marshal(a.RiskFactors)
	explanation, _ := json.Marshal(a.Explanation)
	patterns, _ := json.Marshal(a.GraphPatterns)

	query := `
		INSERT INTO assessments (
			id, claim_id, provider_id, claim_amount, fraud_probability,
			is_fraud_predicted, risk_level, confidence, risk_factors,
			explanation, graph_patterns, data_quality, assessed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		a.ID, a.ClaimID, a.ProviderID, a.ClaimAmount, a.FraudProbability,
		boolToInt(a.IsFraudPredicted), string(a.RiskLevel), a.Confidence, string(riskFactors),
		string(explanation), string(patterns), boolToInt(a.DataQuality), a.AssessedAt,
	)
	return err
}

func scanAssessment(row interface{ Scan(...any) error }) (*domain.FraudAssessment, error) {
	var a domain.FraudAssessment
	var predicted, quality int
	var riskFactors, explanation, patterns string
	err := row.Scan(
		&a.ID, &a.ClaimID, &a.ProviderID, &a.ClaimAmount, &a.FraudProbability,
		&predicted, &a.RiskLevel, &a.Confidence, &riskFactors,
		&explanation, &patterns, &quality, &a.AssessedAt,
	)
	if err != nil {
		return nil, err
	}
	a.IsFraudPredicted = predicted == 1
	a.DataQuality = quality == 1
	json.Unmarshal([]byte(riskFactors), &a.RiskFactors)
	json.Unmarshal([]byte(explanation), &a.Explanation)
	json.Unmarshal([]byte(patterns), &a.GraphPatterns)
	return &a, nil
}

const assessmentColumns = `id, claim_id, provider_id, claim_amount, fraud_probability,
	is_fraud_predicted, risk_level, confidence, risk_factors,
	explanation, graph_patterns, data_quality, assessed_at`

// GetAssessment retrieves an assessment by ID.
func (s *SQLStore) GetAssessment(ctx context.Context, assessmentID string) (*domain.FraudAssessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = ?`

	a, err := scanAssessment(s.db.QueryRowContext(ctx, s.rebind(query), assessmentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAssessmentByClaim retrieves the latest assessment for a claim.
func (s *SQLStore) GetAssessmentByClaim(ctx context.Context, claimID string) (*domain.FraudAssessment, error) {
	query := `SELECT ` + assessmentColumns + `
		FROM assessments
		WHERE claim_id = ?
		ORDER BY assessed_at DESC
		LIMIT 1`

	a, err := scanAssessment(s.db.QueryRowContext(ctx, s.rebind(query), claimID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ProviderFraudRate returns the share of a provider's assessed claims
// predicted fraudulent, counting each claim's latest assessment.
func (s *SQLStore) ProviderFraudRate(ctx context.Context, providerID string) (float64, int, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(a.is_fraud_predicted), 0)
		FROM assessments a
		JOIN claims c ON c.id = a.claim_id
		WHERE c.provider_id = ?
		  AND a.assessed_at = (
			SELECT MAX(a2.assessed_at) FROM assessments a2 WHERE a2.claim_id = a.claim_id
		  )
	`
	var assessed, fraud int
	err := s.db.QueryRowContext(ctx, s.rebind(query), providerID).Scan(&assessed, &fraud)
	if err != nil {
		return 0, 0, err
	}
	if assessed == 0 {
		return 0, 0, nil
	}
	return float64(fraud) / float64(assessed), assessed, nil
}

// CountAssessmentsByRiskLevel aggregates stored assessments by band.
func (s *SQLStore) CountAssessmentsByRiskLevel(ctx context.Context) (map[domain.RiskLevel]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT risk_level, COUNT(*) FROM assessments GROUP BY risk_level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.RiskLevel]int)
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, err
		}
		counts[domain.RiskLevel(level)] = n
	}
	return counts, rows.Err()
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
