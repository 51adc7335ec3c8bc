package assess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-health/kestrel/internal/aggregates"
	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/explain"
	"github.com/opensource-health/kestrel/internal/features"
	"github.com/opensource-health/kestrel/internal/graph"
	"github.com/opensource-health/kestrel/internal/redflag"
	"github.com/opensource-health/kestrel/internal/repository"
)

var tracer = otel.Tracer("kestrel/assess")

// Deps bundles the collaborators of the batch engine.
type Deps struct {
	Store     domain.Store
	Bus       domain.EventBus
	Scorer    domain.Scorer
	Rules     *redflag.Engine
	Detector  *graph.Detector
	Stats     *aggregates.Service
	Explainer *explain.Generator
	Logger    *slog.Logger
}

// Engine runs batch fraud assessments.
type Engine struct {
	cfg       *domain.Config
	store     domain.Store
	bus       domain.EventBus
	scorer    domain.Scorer
	extractor *features.Extractor
	rules     *redflag.Engine
	detector  *graph.Detector
	stats     *aggregates.Service
	explainer *explain.Generator
	logger    *slog.Logger
}

// NewEngine creates a batch assessment engine.
func NewEngine(cfg *domain.Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		store:     deps.Store,
		bus:       deps.Bus,
		scorer:    deps.Scorer,
		extractor: features.NewExtractor(),
		rules:     deps.Rules,
		detector:  deps.Detector,
		stats:     deps.Stats,
		explainer: deps.Explainer,
		logger:    logger,
	}
}

// Assess scores a batch of claims. An empty claimIDs slice means every
// claim in the store. Per-claim failures are reported in the result;
// only infrastructure errors abort the batch.
func (e *Engine) Assess(ctx context.Context, claimIDs []string) (*domain.BatchResult, error) {
	started := time.Now()
	batchID := uuid.New().String()

	ctx, span := tracer.Start(ctx, "assess.batch",
		trace.WithAttributes(attribute.String("batch.id", batchID)))
	defer span.End()

	if e.cfg.Assess.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Assess.BatchTimeout)
		defer cancel()
	}

	if len(claimIDs) == 0 {
		all, err := e.store.ListClaimIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list claims: %w", err)
		}
		claimIDs = all
	}

	result := &domain.BatchResult{
		BatchID:   batchID,
		StartedAt: started,
	}

	// Resolve claims up front so unknown IDs fail fast and cleanly.
	claims := make([]*domain.Claim, 0, len(claimIDs))
	for _, id := range claimIDs {
		c, err := e.store.GetClaim(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				result.Failures = append(result.Failures, domain.ClaimFailure{
					ClaimID: id,
					Code:    domain.FailureUnknownClaim,
					Message: "claim not found",
				})
				continue
			}
			return nil, fmt.Errorf("failed to load claim %s: %w", id, err)
		}
		claims = append(claims, c)
	}

	if len(claims) == 0 {
		result.Report = *e.explainer.Report(ctx, result)
		result.Duration = time.Since(started).Milliseconds()
		e.logger.Info("batch assessed", "batch_id", batchID, "claims", 0, "failures", len(result.Failures))
		return result, nil
	}

	graphRes, err := e.runGraph(ctx)
	if err != nil {
		return nil, err
	}
	result.DegradedPatterns = graphRes.Degraded

	population, err := e.stats.Population(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to derive population baselines: %w", err)
	}

	assessments, failures, err := e.scoreClaims(ctx, claims, graphRes, population)
	if err != nil {
		return nil, err
	}
	for _, a := range assessments {
		if a != nil {
			result.Assessments = append(result.Assessments, a)
		}
	}
	result.Failures = append(result.Failures, failures...)

	result.Report = *e.explainer.Report(ctx, result)
	result.Duration = time.Since(started).Milliseconds()

	e.publish(ctx, result)

	e.logger.Info("batch assessed",
		"batch_id", batchID,
		"claims", len(result.Assessments),
		"failures", len(result.Failures),
		"fraud_detected", result.FraudDetected(),
		"degraded_patterns", len(result.DegradedPatterns),
		"duration_ms", result.Duration,
	)
	return result, nil
}

// runGraph builds the population snapshot and runs pattern detection
// once for the batch.
func (e *Engine) runGraph(ctx context.Context) (*domain.GraphResult, error) {
	ctx, span := tracer.Start(ctx, "assess.graph")
	defer span.End()

	all, err := e.store.ListClaims(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("failed to load claim population: %w", err)
	}
	patients, err := e.store.ListPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load patients: %w", err)
	}
	providers, err := e.store.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load providers: %w", err)
	}

	snap := graph.BuildSnapshot(all, patients, providers, e.cfg.Graph.ReferralWindowDays)
	return e.detector.Detect(ctx, snap), nil
}

// scoreClaims fans the batch out over a bounded worker pool. Results
// keep the input ordering regardless of completion order. An expired
// batch context aborts the whole batch with one error rather than
// degrading the surviving claims one by one.
func (e *Engine) scoreClaims(ctx context.Context, claims []*domain.Claim, graphRes *domain.GraphResult, population *domain.PopulationStats) ([]*domain.FraudAssessment, []domain.ClaimFailure, error) {
	workers := e.cfg.Assess.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	assessments := make([]*domain.FraudAssessment, len(claims))
	failures := make([]*domain.ClaimFailure, len(claims))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, c := range claims {
		wg.Add(1)
		go func(idx int, claim *domain.Claim) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			a, err := e.assessClaim(ctx, claim, graphRes, population)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				e.logger.Warn("claim assessment failed",
					"claim_id", claim.ID, "error", err)
				failures[idx] = &domain.ClaimFailure{
					ClaimID: claim.ID,
					Code:    domain.FailureAggregation,
					Message: err.Error(),
				}
				return
			}
			assessments[idx] = a
		}(i, c)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("batch assessment aborted: %w", err)
	}

	ordered := make([]domain.ClaimFailure, 0)
	for _, f := range failures {
		if f != nil {
			ordered = append(ordered, *f)
		}
	}
	return assessments, ordered, nil
}

// assessClaim runs the full per-claim pipeline: features, classifier,
// rules, graph lookup, aggregation, explanation.
func (e *Engine) assessClaim(ctx context.Context, claim *domain.Claim, graphRes *domain.GraphResult, population *domain.PopulationStats) (*domain.FraudAssessment, error) {
	patient, err := e.getPatient(ctx, claim.PatientID)
	if err != nil {
		return nil, err
	}
	provStats, err := e.stats.ProviderStats(ctx, claim.ProviderID)
	if err != nil {
		return nil, err
	}
	patStats, err := e.stats.PatientStats(ctx, claim.PatientID)
	if err != nil {
		return nil, err
	}

	vector := e.extractor.Extract(features.Input{
		Claim:         claim,
		Patient:       patient,
		ProviderStats: provStats,
		PatientStats:  patStats,
		Population:    population,
	})

	score, err := e.scorer.Score(vector)
	if err != nil {
		return nil, fmt.Errorf("classifier scoring failed: %w", err)
	}

	flagRes, err := e.rules.Evaluate(ruleInput(claim, provStats, patStats, population))
	if err != nil {
		return nil, fmt.Errorf("rule evaluation failed: %w", err)
	}

	matches := graphRes.MatchesFor(claim.ID)
	probability, err := combine(e.cfg.Aggregator, score.Probability, graphRes.MaxStrength(claim.ID), flagRes.RiskScore)
	if err != nil {
		return nil, err
	}
	confidence := adjustConfidence(e.cfg.Aggregator, score.Confidence, vector.Degraded())
	level := domain.RiskLevelFor(probability)

	patterns := make([]domain.Pattern, 0, len(matches))
	seen := make(map[domain.Pattern]bool)
	for _, m := range matches {
		if !seen[m.Pattern] {
			seen[m.Pattern] = true
			patterns = append(patterns, m.Pattern)
		}
	}

	explanation := e.explainer.Explain(ctx, &explain.Input{
		ClaimID:     claim.ID,
		Probability: probability,
		RiskLevel:   level,
		Confidence:  confidence,
		Flags:       flagRes.Flags,
		RuleScore:   flagRes.RiskScore,
		Patterns:    matches,
		Degraded:    vector.Degraded(),
	})

	return &domain.FraudAssessment{
		ID:               uuid.New().String(),
		ClaimID:          claim.ID,
		ProviderID:       claim.ProviderID,
		ClaimAmount:      claim.Amount,
		FraudProbability: probability,
		IsFraudPredicted: probability >= e.cfg.Aggregator.DecisionThreshold,
		RiskLevel:        level,
		Confidence:       confidence,
		RiskFactors:      riskFactors(score.Contributions, e.cfg.Assess.TopRiskFactors),
		Explanation:      explanation,
		GraphPatterns:    patterns,
		DataQuality:      !vector.Degraded(),
		AssessedAt:       time.Now().UTC(),
	}, nil
}

func (e *Engine) getPatient(ctx context.Context, patientID string) (*domain.Patient, error) {
	p, err := e.store.GetPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil // degrade, handled by the extractor
		}
		return nil, err
	}
	return p, nil
}

// ruleInput maps claim and aggregate data onto the rule variables.
func ruleInput(claim *domain.Claim, provStats *domain.ProviderStats, patStats *domain.PatientStats, population *domain.PopulationStats) *redflag.Input {
	in := &redflag.Input{
		Amount:            claim.Amount,
		AmountMeanRatio:   1,
		ClaimType:         claim.Type,
		Status:            claim.Status,
		DeliveryConfirmed: claim.DeliveryConfirmed,
	}
	wd := claim.ServiceDate.Weekday()
	in.IsWeekend = wd == time.Saturday || wd == time.Sunday
	if !claim.SubmissionDate.IsZero() {
		in.SubmissionLagDays = claim.SubmissionDate.Sub(claim.ServiceDate).Hours() / 24
	}
	if population.StdDevAmount > 0 {
		in.AmountZScore = (claim.Amount - population.MeanAmount) / population.StdDevAmount
	}
	if provStats != nil {
		if provStats.MeanAmount > 0 {
			in.AmountMeanRatio = claim.Amount / provStats.MeanAmount
		}
		in.ProviderFraudRate = provStats.FraudRate
		in.ProviderClaimsDay = provStats.ClaimsPerDay
		in.ProviderWeekend = provStats.WeekendShare
	}
	if patStats != nil {
		in.PatientFrequency = patStats.ClaimFrequency
		in.PatientProviders = int64(patStats.ProviderCount)
		in.PatientClaims = int64(patStats.ClaimCount)
	}
	return in
}

// riskFactors converts the top-weighted contributions for the caller.
func riskFactors(contribs []domain.FeatureContribution, limit int) []domain.RiskFactor {
	if limit <= 0 {
		limit = 5
	}
	if len(contribs) > limit {
		contribs = contribs[:limit]
	}
	out := make([]domain.RiskFactor, len(contribs))
	for i, c := range contribs {
		out[i] = domain.RiskFactor{Factor: c.Feature, Value: c.Value}
	}
	return out
}

// publish emits completion events and alerts for high-risk claims.
// Event delivery is best effort; a bus failure never fails the batch.
func (e *Engine) publish(ctx context.Context, result *domain.BatchResult) {
	if e.bus == nil {
		return
	}
	for _, a := range result.Assessments {
		payload, err := json.Marshal(a)
		if err != nil {
			continue
		}
		if err := e.bus.Publish(ctx, domain.TopicAssessmentCompleted, payload); err != nil {
			e.logger.Warn("failed to publish assessment event", "claim_id", a.ClaimID, "error", err)
			continue
		}
		if a.RiskLevel == domain.RiskHigh || a.RiskLevel == domain.RiskCritical {
			if err := e.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
				e.logger.Warn("failed to publish alert", "claim_id", a.ClaimID, "error", err)
			}
		}
	}
}
