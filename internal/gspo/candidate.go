package gspo

import (
	"strings"

	"github.com/refinelab/refinery/internal/reward"
)

// Candidate is one generated rewrite of a test for a task unit. It
// lives for the duration of one training batch unless selected as the
// unit's final output.
type Candidate struct {
	// UnitID is the originating task unit.
	UnitID string
	// GroupID identifies the sampling group this candidate belongs to.
	GroupID string
	// Tokens is the generated token sequence.
	Tokens []string
	// LogProbs are per-token log-probabilities under the generating policy.
	LogProbs []float64
	// RefLogProbs are per-token log-probabilities under the frozen
	// reference policy.
	RefLogProbs []float64
	// Breakdown is the candidate's reward decomposition after scoring.
	Breakdown reward.Breakdown
	// Advantage is the group-relative advantage.
	Advantage float64
	// Ratio is the sequence-level importance ratio.
	Ratio float64
	// Objective is the clipped objective contribution.
	Objective float64
}

// Source reconstructs the candidate's test source from its tokens.
func (c *Candidate) Source() string {
	return strings.Join(c.Tokens, "")
}

// Group is the set of candidates sampled for one unit in one step.
// The group stays intact through scoring: failed candidates remain at
// the reward floor so the relative advantage stays meaningful, and the
// penalty is what teaches the policy to avoid them.
type Group struct {
	// ID is the group identifier.
	ID string
	// UnitID is the unit all candidates were sampled for.
	UnitID string
	// Candidates are the sampled rewrites.
	Candidates []*Candidate
}

// Rewards returns the scalar rewards of all candidates in order.
func (g *Group) Rewards() []float64 {
	rs := make([]float64, len(g.Candidates))
	for i, c := range g.Candidates {
		rs[i] = c.Breakdown.Scalar
	}
	return rs
}

// Best returns the candidate with the highest scalar reward, or nil
// for an empty group.
func (g *Group) Best() *Candidate {
	var best *Candidate
	for _, c := range g.Candidates {
		if best == nil || c.Breakdown.Scalar > best.Breakdown.Scalar {
			best = c
		}
	}
	return best
}
