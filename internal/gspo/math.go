package gspo

import "math"

// Advantages computes group-relative advantages: each reward minus the
// group mean, optionally divided by the group standard deviation. When
// the standard deviation is below stdEpsilon all advantages default to
// zero; dividing by near-zero variance would blow up the update.
func Advantages(rewards []float64, normalize bool, stdEpsilon float64) []float64 {
	n := len(rewards)
	if n == 0 {
		return nil
	}

	mean := 0.0
	for _, r := range rewards {
		mean += r
	}
	mean /= float64(n)

	adv := make([]float64, n)
	for i, r := range rewards {
		adv[i] = r - mean
	}
	if !normalize {
		return adv
	}

	variance := 0.0
	for _, a := range adv {
		variance += a * a
	}
	std := math.Sqrt(variance / float64(n))
	if std < stdEpsilon {
		for i := range adv {
			adv[i] = 0
		}
		return adv
	}
	for i := range adv {
		adv[i] /= std
	}
	return adv
}

// SequenceRatio computes the sequence-level importance ratio: the
// whole sequence's probability under the current policy over its
// probability under the reference policy, exponentiated from the
// summed per-token log-probability difference. The whole generated
// test is one decision, matching the unit of reward.
func SequenceRatio(logProbs, refLogProbs []float64) float64 {
	sum := 0.0
	for i := range logProbs {
		sum += logProbs[i]
	}
	for i := range refLogProbs {
		sum -= refLogProbs[i]
	}
	return math.Exp(sum)
}

// ClippedObjective computes min(ratio*adv, clip(ratio, 1-eps, 1+eps)*adv),
// bounding how far a single step can push the policy from the reference.
func ClippedObjective(ratio, advantage, epsilon float64) float64 {
	clipped := ratio
	if clipped < 1-epsilon {
		clipped = 1 - epsilon
	} else if clipped > 1+epsilon {
		clipped = 1 + epsilon
	}
	return math.Min(ratio*advantage, clipped*advantage)
}

// clipSaturated reports whether the ratio sits at or beyond the clip
// boundary, meaning the clipped objective is what bounds the update.
func clipSaturated(ratio, epsilon float64) bool {
	return ratio <= 1-epsilon || ratio >= 1+epsilon
}
