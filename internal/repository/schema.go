package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT PRIMARY KEY,
    patient_id TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    referrer_id TEXT,
    amount REAL NOT NULL,
    procedure_code TEXT NOT NULL,
    diagnosis_code TEXT,
    type TEXT NOT NULL,
    status TEXT NOT NULL,
    service_date TIMESTAMP NOT NULL,
    submission_date TIMESTAMP,
    delivery_confirmed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_claims_patient ON claims(patient_id, service_date);
CREATE INDEX IF NOT EXISTS idx_claims_provider ON claims(provider_id, service_date);
CREATE INDEX IF NOT EXISTS idx_claims_service_date ON claims(service_date);
`

const schemaPatients = `
CREATE TABLE IF NOT EXISTS patients (
    id TEXT PRIMARY KEY,
    date_of_birth TIMESTAMP,
    gender TEXT,
    address TEXT,
    city TEXT,
    state TEXT,
    zip TEXT,
    phone TEXT
);
`

const schemaProviders = `
CREATE TABLE IF NOT EXISTS providers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    specialty TEXT,
    address TEXT,
    city TEXT,
    state TEXT,
    zip TEXT
);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    claim_id TEXT NOT NULL,
    provider_id TEXT NOT NULL DEFAULT '',
    claim_amount REAL NOT NULL DEFAULT 0,
    fraud_probability REAL NOT NULL,
    is_fraud_predicted INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    confidence REAL NOT NULL,
    risk_factors TEXT,
    explanation TEXT NOT NULL,
    graph_patterns TEXT,
    data_quality INTEGER NOT NULL DEFAULT 1,
    assessed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_claim ON assessments(claim_id);
CREATE INDEX IF NOT EXISTS idx_assessments_risk_level ON assessments(risk_level);
CREATE INDEX IF NOT EXISTS idx_assessments_assessed_at ON assessments(assessed_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClaims,
		schemaPatients,
		schemaProviders,
		schemaAssessments,
	}
}
