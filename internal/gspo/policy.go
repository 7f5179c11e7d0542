// Package gspo implements group-sampled, sequence-level-ratio policy
// optimization for test refinement. The generative policy itself is an
// external collaborator; this package owns sampling coordination,
// advantage normalization, the clipped objective, and stability
// tracking across optimization steps.
package gspo

import "context"

// Sampled is one sequence drawn from the policy, annotated with the
// per-token log-probabilities it was generated under.
type Sampled struct {
	// Tokens is the generated token sequence.
	Tokens []string
	// LogProbs holds one log-probability per token, aligned with Tokens.
	LogProbs []float64
}

// UpdateItem is one candidate's contribution to a policy update: the
// contract with the policy is "given (sequence, advantage, ratio)
// tuples, apply one gradient step".
type UpdateItem struct {
	// Tokens is the candidate's token sequence.
	Tokens []string
	// Advantage is the group-relative advantage.
	Advantage float64
	// Ratio is the sequence-level importance ratio.
	Ratio float64
	// Objective is the clipped per-candidate objective value.
	Objective float64
}

// Policy is the external text-generation policy being optimized. It
// must be deterministic given a fixed random seed so optimization runs
// are reproducible in tests.
type Policy interface {
	// Sample draws groupSize candidate sequences for the prompt using
	// temperature-controlled stochastic decoding.
	Sample(ctx context.Context, prompt string, groupSize int, temperature float64) ([]Sampled, error)

	// ReferenceLogProbs returns per-token log-probabilities of the
	// sequence under the frozen reference policy.
	ReferenceLogProbs(ctx context.Context, tokens []string) ([]float64, error)

	// Update applies one gradient step from the batch. Callers serialize
	// Update invocations; implementations may assume no overlap.
	Update(ctx context.Context, batch []UpdateItem) error

	// SnapshotReference freezes the current policy as the new reference
	// that sequence-level ratios are computed against.
	SnapshotReference() error

	// RestoreSnapshot rolls the policy back to the last reference
	// snapshot. Used as a collapse recovery action.
	RestoreSnapshot() error

	// ScaleLearningRate multiplies the policy's learning rate by factor.
	// Used as a collapse recovery action.
	ScaleLearningRate(factor float64) error
}
