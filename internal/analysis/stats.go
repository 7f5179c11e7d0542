package analysis

import (
	"math"
	"sort"
)

// rankData assigns average ranks (1-based), sharing the mean rank
// across ties, matching the usual rank transform used by rank-based
// statistics.
func rankData(values []float64) []float64 {
	n := len(values)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// Ranks i+1..j+1 are tied; everyone gets the average.
		avg := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// WilcoxonSignedRank runs the paired two-sided Wilcoxon signed-rank
// test on x and y, using the normal approximation for the p-value.
// Zero differences are dropped; with nothing left the p-value is 1.
func WilcoxonSignedRank(x, y []float64) float64 {
	var diffs []float64
	for i := range x {
		if d := y[i] - x[i]; d != 0 {
			diffs = append(diffs, d)
		}
	}
	n := len(diffs)
	if n == 0 {
		return 1
	}

	abs := make([]float64, n)
	for i, d := range diffs {
		abs[i] = math.Abs(d)
	}
	ranks := rankData(abs)

	wPlus := 0.0
	for i, d := range diffs {
		if d > 0 {
			wPlus += ranks[i]
		}
	}

	mean := float64(n*(n+1)) / 4
	sd := math.Sqrt(float64(n*(n+1)*(2*n+1)) / 24)
	if sd == 0 {
		return 1
	}
	z := (wPlus - mean) / sd
	return math.Erfc(math.Abs(z) / math.Sqrt2)
}

// VarghaDelaneyA12 computes the A12 effect size: the probability that
// a value drawn from y exceeds one drawn from x, with ties counting
// half. 0.5 means no effect.
func VarghaDelaneyA12(x, y []float64) float64 {
	m := len(x)
	n := len(y)
	if m == 0 || n == 0 {
		return 0.5
	}

	combined := append(append([]float64{}, y...), x...)
	ranks := rankData(combined)

	r1 := 0.0
	for i := 0; i < n; i++ {
		r1 += ranks[i]
	}
	return (r1/float64(n) - float64(n+1)/2) / float64(m)
}

// SpearmanCorr computes Spearman's rank correlation between x and y
// and a two-sided p-value from the large-sample normal approximation.
func SpearmanCorr(x, y []float64) (corr, p float64) {
	n := len(x)
	if n < 2 {
		return 0, 1
	}
	rx := rankData(x)
	ry := rankData(y)

	corr = pearson(rx, ry)
	if math.IsNaN(corr) {
		return 0, 1
	}
	z := corr * math.Sqrt(float64(n-1))
	return corr, math.Erfc(math.Abs(z) / math.Sqrt2)
}

func pearson(x, y []float64) float64 {
	n := float64(len(x))
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= n
	my /= n

	var cov, vx, vy float64
	for i := range x {
		dx := x[i] - mx
		dy := y[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return math.NaN()
	}
	return cov / math.Sqrt(vx*vy)
}

// describe holds the summary statistics reported per metric column.
type describe struct {
	Count int
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
}

func describeColumn(values []float64) describe {
	d := describe{Count: len(values)}
	if d.Count == 0 {
		return d
	}
	d.Min = values[0]
	d.Max = values[0]
	for _, v := range values {
		d.Mean += v
		if v < d.Min {
			d.Min = v
		}
		if v > d.Max {
			d.Max = v
		}
	}
	d.Mean /= float64(d.Count)

	if d.Count > 1 {
		var ss float64
		for _, v := range values {
			dv := v - d.Mean
			ss += dv * dv
		}
		d.Std = math.Sqrt(ss / float64(d.Count-1))
	}
	return d
}
