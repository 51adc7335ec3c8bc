// Package model loads and evaluates the pre-trained fraud classifier.
//
// The classifier ships as a JSON artifact describing an ensemble of
// binary decision trees. Kestrel does no training; it only walks the
// trees. The artifact format is deliberately simple so models trained
// elsewhere can be exported without a runtime dependency.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/opensource-health/kestrel/internal/domain"
)

// leafFeature marks a node with no split.
const leafFeature = -1

// Artifact is the on-disk model format.
type Artifact struct {
	Version      string   `json:"version"`
	FeatureNames []string `json:"feature_names"`
	Trees        []Tree   `json:"trees"`
}

// Tree is one decision tree, stored as a flat node array with index 0
// as the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is one tree node. Internal nodes route on
// features[Feature] <= Threshold. Every node carries the fraud rate of
// the training samples that reached it; leaves set Feature to -1.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// Ensemble evaluates a loaded artifact. It is immutable after Load and
// safe for concurrent use.
type Ensemble struct {
	version  string
	features []string
	trees    []Tree
}

// Load reads and validates a model artifact. Any failure here is fatal
// for the engine: scoring without a model is not a degraded mode.
func Load(path string) (*Ensemble, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read artifact: %v", domain.ErrModelUnavailable, err)
	}
	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("%w: parse artifact: %v", domain.ErrModelUnavailable, err)
	}
	return New(&art)
}

// New validates an in-memory artifact and builds an ensemble.
func New(art *Artifact) (*Ensemble, error) {
	if len(art.Trees) == 0 {
		return nil, fmt.Errorf("%w: artifact has no trees", domain.ErrModelUnavailable)
	}
	if len(art.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: artifact has no feature names", domain.ErrModelUnavailable)
	}
	for ti, tree := range art.Trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("%w: tree %d is empty", domain.ErrModelUnavailable, ti)
		}
		for ni, n := range tree.Nodes {
			if n.Feature == leafFeature {
				if n.Value < 0 || n.Value > 1 {
					return nil, fmt.Errorf("%w: tree %d node %d leaf value %v out of range", domain.ErrModelUnavailable, ti, ni, n.Value)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= len(art.FeatureNames) {
				return nil, fmt.Errorf("%w: tree %d node %d references feature %d", domain.ErrModelUnavailable, ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
				return nil, fmt.Errorf("%w: tree %d node %d has invalid children", domain.ErrModelUnavailable, ti, ni)
			}
		}
	}
	return &Ensemble{
		version:  art.Version,
		features: art.FeatureNames,
		trees:    art.Trees,
	}, nil
}

// Score evaluates all trees against the vector and averages the leaf
// fraud rates. Contributions are attributed per split: each split
// feature is credited with the change in expected value between the
// node and the child actually taken, averaged across trees.
func (e *Ensemble) Score(v *domain.FeatureVector) (*domain.ScoreResult, error) {
	if len(v.Values) != len(e.features) {
		return nil, fmt.Errorf("feature vector has %d values, model expects %d", len(v.Values), len(e.features))
	}

	contrib := make([]float64, len(e.features))
	var sum float64
	var votes int
	for _, tree := range e.trees {
		leaf := e.walk(tree, v.Values, contrib)
		sum += leaf
		if leaf >= 0.5 {
			votes++
		}
	}

	n := float64(len(e.trees))
	probability := sum / n
	agree := math.Max(float64(votes), n-float64(votes)) / n

	ranked := make([]domain.FeatureContribution, 0, len(e.features))
	for i, w := range contrib {
		if w == 0 {
			continue
		}
		ranked = append(ranked, domain.FeatureContribution{
			Feature: e.features[i],
			Value:   v.Values[i],
			Weight:  w / n,
		})
	}
	sort.Slice(ranked, func(a, b int) bool {
		return math.Abs(ranked[a].Weight) > math.Abs(ranked[b].Weight)
	})

	return &domain.ScoreResult{
		Probability:   probability,
		Confidence:    agree,
		Contributions: ranked,
	}, nil
}

// walk routes the vector to a leaf and accumulates split contributions.
func (e *Ensemble) walk(tree Tree, values []float64, contrib []float64) float64 {
	idx := 0
	for {
		n := tree.Nodes[idx]
		if n.Feature == leafFeature {
			return n.Value
		}
		var next int
		if values[n.Feature] <= n.Threshold {
			next = n.Left
		} else {
			next = n.Right
		}
		contrib[n.Feature] += tree.Nodes[next].Value - n.Value
		idx = next
	}
}

// FeatureNames returns the feature order the model was trained on.
func (e *Ensemble) FeatureNames() []string {
	return e.features
}

// Version reports the artifact version.
func (e *Ensemble) Version() string {
	return e.version
}
