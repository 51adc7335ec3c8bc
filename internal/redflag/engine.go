// Package redflag provides the CEL-Go based red-flag rule engine.
//
// Rules are boolean CEL expressions over a fixed set of claim-level
// variables. Each firing rule yields a human-readable red flag with a
// category and severity; the severities fold into a bounded rule risk
// score used by the risk aggregator.
package redflag

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-health/kestrel/internal/domain"
)

// Rule is a red-flag rule definition.
type Rule struct {
	ID          string              `json:"id"`
	Category    domain.FlagCategory `json:"category"`
	Severity    domain.Severity     `json:"severity"`
	Expression  string              `json:"expression"`
	Description string              `json:"description"`
	DataPoints  []string            `json:"dataPoints"`
	Enabled     bool                `json:"enabled"`
}

// CompiledRule holds a pre-compiled CEL program. seq preserves the
// rule's registration order for stable flag ordering.
type CompiledRule struct {
	Rule    *Rule
	Program cel.Program
	seq     int
}

// Input holds the claim-level variables rules evaluate against.
type Input struct {
	Amount            float64
	AmountMeanRatio   float64
	AmountZScore      float64
	IsWeekend         bool
	SubmissionLagDays float64
	ProviderFraudRate float64
	ProviderClaimsDay float64
	ProviderWeekend   float64
	PatientFrequency  float64
	PatientProviders  int64
	PatientClaims     int64
	ClaimType         string
	Status            string
	DeliveryConfirmed bool
}

// Engine compiles and evaluates red-flag rules.
type Engine struct {
	mu      sync.RWMutex
	env     *cel.Env
	rules   map[string]*CompiledRule
	cfg     domain.RedFlagConfig
	nextSeq int
}

// NewEngine creates a rule engine with the claim variable environment.
func NewEngine(cfg domain.RedFlagConfig) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("amount_mean_ratio", cel.DoubleType),
		cel.Variable("amount_zscore", cel.DoubleType),
		cel.Variable("is_weekend", cel.BoolType),
		cel.Variable("submission_lag_days", cel.DoubleType),
		cel.Variable("provider_fraud_rate", cel.DoubleType),
		cel.Variable("provider_claims_per_day", cel.DoubleType),
		cel.Variable("provider_weekend_share", cel.DoubleType),
		cel.Variable("patient_claim_frequency", cel.DoubleType),
		cel.Variable("patient_provider_count", cel.IntType),
		cel.Variable("patient_claim_count", cel.IntType),
		cel.Variable("claim_type", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("delivery_confirmed", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:   env,
		rules: make(map[string]*CompiledRule),
		cfg:   cfg,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(r *Rule) error {
	if r == nil {
		return fmt.Errorf("rule is required")
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(r)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(r *Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(r)
	if err != nil {
		return err
	}
	// A redefinition keeps the rule's original registration slot.
	if prev, ok := e.rules[r.ID]; ok {
		compiled.seq = prev.seq
	} else {
		compiled.seq = e.nextSeq
		e.nextSeq++
	}
	e.rules[r.ID] = compiled
	return nil
}

// LoadRules compiles and loads the enabled rules of a set.
func (e *Engine) LoadRules(rules []*Rule) error {
	for _, r := range rules {
		if r.Enabled {
			if err := e.LoadRule(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded rule set.
func (e *Engine) ReloadRules(rules []*Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledRule)
	seq := 0
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		compiled, err := e.compile(r)
		if err != nil {
			return err
		}
		compiled.seq = seq
		seq++
		next[r.ID] = compiled
	}
	e.rules = next
	e.nextSeq = seq
	return nil
}

// Evaluate runs every loaded rule against the input. Rules that error
// are skipped; a rule failure never raises a flag. The same input
// always yields the same flags in the same order.
func (e *Engine) Evaluate(in *Input) (*domain.FlagResult, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	activation := map[string]any{
		"amount":                  in.Amount,
		"amount_mean_ratio":       in.AmountMeanRatio,
		"amount_zscore":           in.AmountZScore,
		"is_weekend":              in.IsWeekend,
		"submission_lag_days":     in.SubmissionLagDays,
		"provider_fraud_rate":     in.ProviderFraudRate,
		"provider_claims_per_day": in.ProviderClaimsDay,
		"provider_weekend_share":  in.ProviderWeekend,
		"patient_claim_frequency": in.PatientFrequency,
		"patient_provider_count":  in.PatientProviders,
		"patient_claim_count":     in.PatientClaims,
		"claim_type":              in.ClaimType,
		"status":                  in.Status,
		"delivery_confirmed":      in.DeliveryConfirmed,
	}

	type fired struct {
		flag domain.RedFlag
		seq  int
	}
	var hits []fired
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		ok, isBool := out.(types.Bool)
		if !isBool || !bool(ok) {
			continue
		}
		hits = append(hits, fired{
			flag: domain.RedFlag{
				RuleID:      rule.Rule.ID,
				Category:    rule.Rule.Category,
				Severity:    rule.Rule.Severity,
				Description: rule.Rule.Description,
				DataPoints:  e.dataPoints(rule.Rule, activation),
			},
			seq: rule.seq,
		})
	}

	// Severity first, registration order as tiebreaker.
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].flag.Severity.Rank() != hits[b].flag.Severity.Rank() {
			return hits[a].flag.Severity.Rank() > hits[b].flag.Severity.Rank()
		}
		return hits[a].seq < hits[b].seq
	})
	flags := make([]domain.RedFlag, len(hits))
	for i, h := range hits {
		flags[i] = h.flag
	}

	return &domain.FlagResult{
		Flags:     flags,
		RiskScore: e.riskScore(flags),
	}, nil
}

// riskScore folds flag severities into a bounded score. Each rule's
// contribution is capped, as is the total.
func (e *Engine) riskScore(flags []domain.RedFlag) float64 {
	var score float64
	for _, f := range flags {
		w := e.severityWeight(f.Severity)
		if w > e.cfg.RuleCap {
			w = e.cfg.RuleCap
		}
		score += w
	}
	if score > e.cfg.ScoreCap {
		score = e.cfg.ScoreCap
	}
	return score
}

func (e *Engine) severityWeight(s domain.Severity) float64 {
	switch s {
	case domain.SeverityCritical:
		return e.cfg.CriticalWeight
	case domain.SeverityHigh:
		return e.cfg.HighWeight
	case domain.SeverityMedium:
		return e.cfg.MediumWeight
	default:
		return e.cfg.LowWeight
	}
}

// dataPoints captures the activation values a rule names, so flags can
// show the evidence they fired on.
func (e *Engine) dataPoints(r *Rule, activation map[string]any) map[string]any {
	if len(r.DataPoints) == 0 {
		return nil
	}
	points := make(map[string]any, len(r.DataPoints))
	for _, name := range r.DataPoints {
		if v, ok := activation[name]; ok {
			points[name] = v
		}
	}
	return points
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// LoadedRules returns the currently loaded rule definitions.
func (e *Engine) LoadedRules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*Rule, 0, len(e.rules))
	for _, compiled := range e.rules {
		rules = append(rules, compiled.Rule)
	}
	sort.Slice(rules, func(a, b int) bool { return rules[a].ID < rules[b].ID })
	return rules
}

func (e *Engine) compile(r *Rule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(r.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", r.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", r.ID, ast.OutputType())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", r.ID, err)
	}
	return &CompiledRule{Rule: r, Program: program}, nil
}
