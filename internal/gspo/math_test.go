package gspo

import (
	"math"
	"testing"
)

func TestAdvantages_SumToZeroUnnormalized(t *testing.T) {
	tests := []struct {
		name    string
		rewards []float64
	}{
		{"mixed", []float64{0.4, 0.9, -1.0, 0.7}},
		{"all equal", []float64{0.5, 0.5, 0.5}},
		{"pair", []float64{-1.0, 1.0}},
		{"with floor penalties", []float64{-1.0, -1.0, 0.8, 0.6, 0.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv := Advantages(tt.rewards, false, 1e-8)
			sum := 0.0
			for _, a := range adv {
				sum += a
			}
			if math.Abs(sum) > 1e-9 {
				t.Errorf("advantages sum = %g, want ~0 (mean-subtraction property)", sum)
			}
		})
	}
}

func TestAdvantages_ZeroVarianceGuard(t *testing.T) {
	adv := Advantages([]float64{0.5, 0.5, 0.5, 0.5}, true, 1e-8)
	for i, a := range adv {
		if a != 0 {
			t.Errorf("adv[%d] = %g, want 0 when group variance is near zero", i, a)
		}
	}
}

func TestAdvantages_Normalized(t *testing.T) {
	rewards := []float64{0.0, 1.0}
	adv := Advantages(rewards, true, 1e-8)

	// mean 0.5, std 0.5 -> advantages -1 and +1
	if math.Abs(adv[0]+1) > 1e-9 || math.Abs(adv[1]-1) > 1e-9 {
		t.Errorf("normalized advantages = %v, want [-1, 1]", adv)
	}
}

func TestAdvantages_Empty(t *testing.T) {
	if adv := Advantages(nil, true, 1e-8); adv != nil {
		t.Errorf("Advantages(nil) = %v, want nil", adv)
	}
}

func TestSequenceRatio_ClosedForm(t *testing.T) {
	tests := []struct {
		name string
		cur  []float64
		ref  []float64
	}{
		{"identical", []float64{-1.2, -0.3, -2.0}, []float64{-1.2, -0.3, -2.0}},
		{"higher under current", []float64{-0.5, -0.5}, []float64{-1.0, -1.0}},
		{"lower under current", []float64{-2.0, -3.0}, []float64{-1.0, -1.0}},
		{"single token", []float64{-0.1}, []float64{-0.9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := 0.0
			for i := range tt.cur {
				want += tt.cur[i] - tt.ref[i]
			}
			want = math.Exp(want)

			got := SequenceRatio(tt.cur, tt.ref)
			if math.Abs(got-want) > 1e-12 {
				t.Errorf("SequenceRatio = %g, want exp(sum diff) = %g", got, want)
			}
		})
	}
}

func TestSequenceRatio_IdenticalPoliciesGiveOne(t *testing.T) {
	lp := []float64{-0.7, -1.4, -0.2}
	if got := SequenceRatio(lp, lp); math.Abs(got-1) > 1e-12 {
		t.Errorf("SequenceRatio under identical policies = %g, want 1", got)
	}
}

func TestClippedObjective_Bounds(t *testing.T) {
	const eps = 0.2
	ratios := []float64{0.0, 0.5, 0.79, 0.8, 1.0, 1.2, 1.21, 2.0, 10.0}
	advantages := []float64{-2.0, -0.5, 0.0, 0.5, 2.0}

	for _, r := range ratios {
		for _, a := range advantages {
			obj := ClippedObjective(r, a, eps)

			if a > 0 {
				bound := math.Max(r*a, (1+eps)*a)
				if obj > bound+1e-12 {
					t.Errorf("objective %g exceeds bound %g for r=%g a=%g", obj, bound, r, a)
				}
			}
			if a < 0 {
				bound := math.Max(r*a, (1-eps)*a)
				if obj > bound+1e-12 {
					t.Errorf("objective %g exceeds bound %g for r=%g a=%g", obj, bound, r, a)
				}
			}
			// The clipped objective is always a pessimistic bound on
			// the unclipped one.
			if obj > r*a+1e-12 {
				t.Errorf("objective %g exceeds unclipped %g for r=%g a=%g", obj, r*a, r, a)
			}
		}
	}
}

func TestClippedObjective_InsideClipRangeUnchanged(t *testing.T) {
	// Ratios within [1-eps, 1+eps] leave the objective unclipped.
	for _, r := range []float64{0.85, 1.0, 1.15} {
		got := ClippedObjective(r, 0.7, 0.2)
		if math.Abs(got-r*0.7) > 1e-12 {
			t.Errorf("objective = %g, want unclipped %g for in-range ratio %g", got, r*0.7, r)
		}
	}
}

func TestClipSaturated(t *testing.T) {
	tests := []struct {
		ratio float64
		want  bool
	}{
		{1.0, false},
		{1.19, false},
		{1.2, true},
		{1.5, true},
		{0.81, false},
		{0.8, true},
		{0.1, true},
	}
	for _, tt := range tests {
		if got := clipSaturated(tt.ratio, 0.2); got != tt.want {
			t.Errorf("clipSaturated(%g, 0.2) = %v, want %v", tt.ratio, got, tt.want)
		}
	}
}
