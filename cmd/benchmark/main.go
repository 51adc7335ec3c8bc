// Benchmark tool for testing Kestrel against synthetic claim data.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -claims 5000
//
// This tool:
//  1. Generates a synthetic claim population with injected fraud scenarios
//  2. Ingests entities and claims over the HTTP API
//  3. Runs a batch assessment
//  4. Compares Kestrel's verdicts with the injected labels and reports
//     precision, recall, F1-score, and throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"
)

type claim struct {
	ID                string    `json:"id"`
	PatientID         string    `json:"patientId"`
	ProviderID        string    `json:"providerId"`
	ReferrerID        string    `json:"referrerId,omitempty"`
	Amount            float64   `json:"amount"`
	ProcedureCode     string    `json:"procedureCode"`
	Type              string    `json:"type"`
	Status            string    `json:"status"`
	ServiceDate       time.Time `json:"serviceDate"`
	SubmissionDate    time.Time `json:"submissionDate"`
	DeliveryConfirmed bool      `json:"deliveryConfirmed,omitempty"`
}

type patient struct {
	ID          string    `json:"id"`
	DateOfBirth time.Time `json:"dateOfBirth"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	Zip         string    `json:"zip"`
}

type provider struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	State     string `json:"state"`
}

type assessment struct {
	ClaimID          string  `json:"claim_id"`
	FraudProbability float64 `json:"fraud_probability"`
	IsFraudPredicted bool    `json:"is_fraud_predicted"`
	RiskLevel        string  `json:"risk_level"`
}

type batchResult struct {
	BatchID     string       `json:"batch_id"`
	Assessments []assessment `json:"assessments"`
	Duration    int64        `json:"duration_ms"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	claimCount := flag.Int("claims", 2000, "Number of claims to generate")
	fraudRate := flag.Float64("fraud-rate", 0.05, "Share of claims with injected fraud traits")
	seed := flag.Int64("seed", 42, "PRNG seed for reproducible populations")
	flag.Parse()

	fmt.Println("KESTREL BENCHMARK - synthetic claim population")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Claims:      %d\n", *claimCount)
	fmt.Printf("Fraud rate:  %.2f\n", *fraudRate)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	claims, patients, providers, labels := generate(rng, *claimCount, *fraudRate)

	fmt.Printf("Ingesting %d providers, %d patients, %d claims...\n",
		len(providers), len(patients), len(claims))

	start := time.Now()
	if err := post(*baseURL+"/api/v1/providers", providers); err != nil {
		fail("ingest providers", err)
	}
	if err := post(*baseURL+"/api/v1/patients", patients); err != nil {
		fail("ingest patients", err)
	}
	for i := 0; i < len(claims); i += 500 {
		end := i + 500
		if end > len(claims) {
			end = len(claims)
		}
		if err := post(*baseURL+"/api/v1/claims", claims[i:end]); err != nil {
			fail("ingest claims", err)
		}
	}
	fmt.Printf("Ingest took %s\n\n", time.Since(start).Round(time.Millisecond))

	fmt.Println("Running batch assessment...")
	result, err := assess(*baseURL)
	if err != nil {
		fail("assess", err)
	}

	report(result, labels)
}

// generate builds a claim population. Most claims are benign; the
// injected share gets the traits the engine is trained to flag, such
// as inflated weekend amounts billed by a small set of dirty providers.
func generate(rng *rand.Rand, n int, fraudRate float64) ([]claim, []patient, []provider, map[string]bool) {
	base := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	states := []string{"CA", "NY", "TX", "IL", "FL"}
	types := []string{"inpatient", "outpatient", "pharmacy", "equipment"}

	providerCount := n/50 + 2
	providers := make([]provider, providerCount)
	for i := range providers {
		providers[i] = provider{
			ID:        fmt.Sprintf("PRV-%04d", i),
			Name:      fmt.Sprintf("Provider %d", i),
			Specialty: "general",
			State:     states[rng.Intn(len(states))],
		}
	}

	patientCount := n/8 + 2
	patients := make([]patient, patientCount)
	for i := range patients {
		patients[i] = patient{
			ID:          fmt.Sprintf("PAT-%05d", i),
			DateOfBirth: base.AddDate(-20-rng.Intn(60), 0, 0),
			Address:     fmt.Sprintf("%d Main St", i),
			City:        "Springfield",
			State:       states[rng.Intn(len(states))],
			Zip:         "62704",
		}
	}

	// The first two providers are the dirty ones.
	labels := make(map[string]bool, n)
	claims := make([]claim, n)
	for i := range claims {
		id := fmt.Sprintf("CLM-%06d", i)
		fraud := rng.Float64() < fraudRate

		day := base.Add(time.Duration(rng.Intn(180)) * 24 * time.Hour)
		amount := 500 + rng.Float64()*3000
		providerID := providers[2+rng.Intn(providerCount-2)].ID
		if fraud {
			// Push the service date to a Saturday and inflate the amount.
			for day.Weekday() != time.Saturday {
				day = day.Add(24 * time.Hour)
			}
			amount = 40000 + rng.Float64()*60000
			providerID = providers[rng.Intn(2)].ID
		}

		claims[i] = claim{
			ID:             id,
			PatientID:      patients[rng.Intn(patientCount)].ID,
			ProviderID:     providerID,
			Amount:         amount,
			ProcedureCode:  fmt.Sprintf("99%03d", rng.Intn(300)),
			Type:           types[rng.Intn(len(types))],
			Status:         "submitted",
			ServiceDate:    day,
			SubmissionDate: day.Add(time.Duration(1+rng.Intn(10)) * 24 * time.Hour),
		}
		labels[id] = fraud
	}

	return claims, patients, providers, labels
}

func assess(baseURL string) (*batchResult, error) {
	resp, err := http.Post(baseURL+"/api/v1/assess", "application/json", bytes.NewBufferString("{}"))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var result batchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func report(result *batchResult, labels map[string]bool) {
	var tp, fp, tn, fn int
	for _, a := range result.Assessments {
		fraud := labels[a.ClaimID]
		switch {
		case fraud && a.IsFraudPredicted:
			tp++
		case !fraud && a.IsFraudPredicted:
			fp++
		case !fraud && !a.IsFraudPredicted:
			tn++
		default:
			fn++
		}
	}

	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	fmt.Println()
	fmt.Println("RESULTS")
	fmt.Printf("  Batch:      %s\n", result.BatchID)
	fmt.Printf("  Assessed:   %d claims in %d ms (%.0f claims/s)\n",
		len(result.Assessments), result.Duration,
		float64(len(result.Assessments))/(float64(result.Duration)/1000+0.001))
	fmt.Println()
	fmt.Println("  Confusion matrix:")
	fmt.Printf("    TP: %-6d FP: %d\n", tp, fp)
	fmt.Printf("    FN: %-6d TN: %d\n", fn, tn)
	fmt.Println()
	fmt.Printf("  Precision:  %.3f\n", precision)
	fmt.Printf("  Recall:     %.3f\n", recall)
	fmt.Printf("  F1-score:   %.3f\n", f1)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func post(url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return nil
}

func checkHealth(baseURL string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func fail(step string, err error) {
	fmt.Printf("ERROR: %s: %v\n", step, err)
	os.Exit(1)
}
