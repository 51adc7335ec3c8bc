package domain

// FeatureVector is the fixed-order numeric representation of a claim
// used as classifier input. Length and ordering are fixed per model
// version: Values[i] corresponds to the i-th name in the model
// artifact's feature list. Vectors are recomputed per assessment from
// current entity state and never persisted.
type FeatureVector struct {
	Values []float64

	// Missing names the source references that could not be resolved
	// and fell back to population baselines. A non-empty list marks
	// the vector as degraded; it never causes extraction to fail.
	Missing []string
}

// Degraded reports whether any source data fell back to a baseline.
func (v *FeatureVector) Degraded() bool {
	return len(v.Missing) > 0
}

// FeatureContribution is the weight one feature carried in a single
// prediction, in probability units. Positive weights push toward fraud.
type FeatureContribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Weight  float64 `json:"weight"`
}

// ScoreResult is the classifier output for one feature vector.
type ScoreResult struct {
	// Probability is the ensemble fraud probability in [0, 1].
	Probability float64 `json:"probability"`

	// Confidence in [0.5, 1], derived from ensemble vote agreement.
	Confidence float64 `json:"confidence"`

	// Contributions are ranked by absolute weight, largest first.
	Contributions []FeatureContribution `json:"contributions"`
}

// Scorer maps a feature vector to a fraud probability. Implementations
// must be stateless and safe for concurrent use; the batch engine calls
// Score from multiple workers.
type Scorer interface {
	Score(v *FeatureVector) (*ScoreResult, error)

	// FeatureNames returns the artifact's ordered feature-name list.
	// The feature extractor must be built against this exact list.
	FeatureNames() []string

	// Version identifies the loaded model artifact.
	Version() string
}
