// Package reward combines verification outcomes and maintainability
// scores into a single scalar reward. Aggregation is deterministic and
// pure so it can be tested in isolation.
package reward

import "fmt"

// DefaultPenaltyFloor is the scalar assigned to non-compiling
// candidates. It sits strictly below any achievable passing reward
// (the weighted sum of clamped sub-metrics is always in [0, 1]).
const DefaultPenaltyFloor = -1.0

// Weights configures the contribution of each sub-metric to the
// composite reward. Weights come from external configuration.
type Weights struct {
	Coverage    float64 `mapstructure:"coverage"`
	Mutation    float64 `mapstructure:"mutation"`
	Readability float64 `mapstructure:"readability"`
	Complexity  float64 `mapstructure:"complexity"`
	Smells      float64 `mapstructure:"smells"`
}

// DefaultWeights returns an even split across the five sub-metrics.
func DefaultWeights() Weights {
	return Weights{
		Coverage:    0.2,
		Mutation:    0.2,
		Readability: 0.2,
		Complexity:  0.2,
		Smells:      0.2,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Coverage + w.Mutation + w.Readability + w.Complexity + w.Smells
}

// Validate checks that the weights can form a meaningful composite.
func (w Weights) Validate() error {
	if w.Sum() <= 0 {
		return fmt.Errorf("reward weights must sum to a positive value, got %g", w.Sum())
	}
	for _, v := range []float64{w.Coverage, w.Mutation, w.Readability, w.Complexity, w.Smells} {
		if v < 0 {
			return fmt.Errorf("reward weights must be non-negative, got %g", v)
		}
	}
	return nil
}

// Metrics holds the raw inputs to aggregation for one candidate.
// Coverage, MutationScore, Readability, NormComplexity, and NormSmells
// are expected in [0, 1]; out-of-range values are clamped, not rejected,
// so a single malformed scorer cannot poison the composite.
type Metrics struct {
	// Compiled indicates the candidate compiled successfully.
	Compiled bool
	// Coverage is branch coverage in [0, 1].
	Coverage float64
	// MutationScore is the killed-mutant ratio in [0, 1].
	MutationScore float64
	// Readability is the readability score in [0, 1].
	Readability float64
	// NormComplexity is cyclomatic complexity normalized to [0, 1],
	// where higher means more complex.
	NormComplexity float64
	// NormSmells is the smell count normalized to [0, 1], where higher
	// means more smells.
	NormSmells float64
	// SmellCount is the raw smell count, recorded in the breakdown.
	SmellCount int
	// Complexity is the raw cyclomatic complexity, recorded in the breakdown.
	Complexity int
}

// Breakdown is the full reward decomposition for one candidate.
type Breakdown struct {
	Compiled      bool    `json:"compiled"`
	Coverage      float64 `json:"coverage"`
	MutationScore float64 `json:"mutation_score"`
	Smells        int     `json:"smells"`
	Complexity    int     `json:"complexity"`
	Readability   float64 `json:"readability"`
	// Scalar is the aggregated reward. It equals the penalty floor
	// whenever Compiled is false, regardless of the other fields:
	// functional metrics are meaningless for non-compiling code.
	Scalar float64 `json:"scalar"`
}

// Aggregate combines metrics into a Breakdown using the given weights
// and penalty floor. The breakdown records the attempted sub-metrics
// even when the floor applies.
func Aggregate(m Metrics, w Weights, penaltyFloor float64) Breakdown {
	b := Breakdown{
		Compiled:      m.Compiled,
		Coverage:      clamp01(m.Coverage),
		MutationScore: clamp01(m.MutationScore),
		Smells:        m.SmellCount,
		Complexity:    m.Complexity,
		Readability:   clamp01(m.Readability),
	}

	if !m.Compiled {
		b.Scalar = penaltyFloor
		return b
	}

	b.Scalar = w.Coverage*b.Coverage +
		w.Mutation*b.MutationScore +
		w.Readability*b.Readability +
		w.Complexity*(1-clamp01(m.NormComplexity)) +
		w.Smells*(1-clamp01(m.NormSmells))
	return b
}

// clamp01 bounds v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
