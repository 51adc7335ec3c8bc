// Package assess orchestrates the per-claim scoring pipeline and the
// batch assessment run.
package assess

import (
	"fmt"

	"github.com/opensource-health/kestrel/internal/domain"
)

// combine fuses the classifier probability with graph and rule
// evidence. Evidence can only raise the classifier's base probability:
// the boost fills a fraction of the remaining headroom, so the result
// is monotonic in every input and stays in [0, 1] by construction.
func combine(cfg domain.AggregatorConfig, modelProb, graphStrength, ruleScore float64) (float64, error) {
	if !inUnit(modelProb) {
		return 0, fmt.Errorf("%w: model probability %v out of range", domain.ErrAggregation, modelProb)
	}
	if !inUnit(graphStrength) {
		return 0, fmt.Errorf("%w: graph strength %v out of range", domain.ErrAggregation, graphStrength)
	}
	if !inUnit(ruleScore) {
		return 0, fmt.Errorf("%w: rule risk score %v out of range", domain.ErrAggregation, ruleScore)
	}

	boost := cfg.GraphWeight*graphStrength + cfg.RuleWeight*ruleScore
	if boost > 1 {
		boost = 1
	}
	return modelProb + (1-modelProb)*boost, nil
}

// adjustConfidence applies the degraded-data penalty. Confidence never
// leaves [0.5, 1].
func adjustConfidence(cfg domain.AggregatorConfig, confidence float64, degraded bool) float64 {
	if degraded {
		confidence -= cfg.DegradedConfidencePenalty
	}
	if confidence < 0.5 {
		confidence = 0.5
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
