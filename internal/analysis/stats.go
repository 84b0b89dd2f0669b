package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// mannWhitneyU runs a two-sided Mann-Whitney U test comparing the
// distributions of x and y. It uses the normal approximation with tie and
// continuity corrections, reporting the U statistic of the first group.
// When every value is tied the test is degenerate and p is 1.
func mannWhitneyU(x, y []float64) (u, p float64) {
	n1 := float64(len(x))
	n2 := float64(len(y))
	n := n1 + n2

	combined := make([]float64, 0, len(x)+len(y))
	combined = append(combined, x...)
	combined = append(combined, y...)
	ranks, tieSum := rankWithTies(combined)

	var r1 float64
	for i := range x {
		r1 += ranks[i]
	}
	u = r1 - n1*(n1+1)/2

	mu := n1 * n2 / 2
	variance := n1 * n2 / 12 * ((n + 1) - tieSum/(n*(n-1)))
	if variance <= 0 {
		return u, 1
	}
	sigma := math.Sqrt(variance)

	// Continuity correction shrinks |U - mu| by 0.5.
	diff := u - mu
	switch {
	case diff > 0.5:
		diff -= 0.5
	case diff < -0.5:
		diff += 0.5
	default:
		diff = 0
	}
	z := diff / sigma

	normal := distuv.Normal{Mu: 0, Sigma: 1}
	p = 2 * normal.CDF(-math.Abs(z))
	if p > 1 {
		p = 1
	}
	return u, p
}

// rankWithTies assigns 1-based ranks to values, averaging ranks within tie
// groups, and returns the tie correction term sum(t^3 - t) over tie groups.
func rankWithTies(values []float64) (ranks []float64, tieSum float64) {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks = make([]float64, len(values))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		// Positions i..j (0-based) share the average of ranks i+1..j+1.
		avg := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		if t := float64(j - i + 1); t > 1 {
			tieSum += t*t*t - t
		}
		i = j + 1
	}
	return ranks, tieSum
}

// median returns the empirical median of values, NaN for an empty slice.
func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// mean returns the arithmetic mean of values, NaN for an empty slice.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}
