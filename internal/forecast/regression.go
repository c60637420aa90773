package forecast

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// ════════════════════════════════════════════════════════════════════
// Train / Test Split
// ════════════════════════════════════════════════════════════════════

// SplitTrainTest partitions the indices 0..n-1 into a training and a holdout
// set. The holdout size is ceil(fraction*n) clamped to [1, n-1], and the
// assignment comes from a permutation seeded with seed, so the same n and
// seed always give the same split. Both slices are returned in ascending
// order. n must be at least 2.
func SplitTrainTest(n int, fraction float64, seed uint64) (train, test []int) {
	if n < MinPoints {
		return nil, nil
	}

	nTest := int(math.Ceil(fraction*float64(n) - 1e-9))
	nTest = max(1, min(nTest, n-1))

	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	test = append([]int(nil), perm[:nTest]...)
	train = append([]int(nil), perm[nTest:]...)
	sort.Ints(test)
	sort.Ints(train)
	return train, test
}

// pick returns xs[i] for each index in idx.
func pick(xs []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for j, i := range idx {
		out[j] = xs[i]
	}
	return out
}

// ════════════════════════════════════════════════════════════════════
// Ordinary Least Squares
// ════════════════════════════════════════════════════════════════════

// Line is a fitted y = Intercept + Slope*x.
type Line struct {
	Slope     float64
	Intercept float64
}

// Predict evaluates the line at x.
func (l Line) Predict(x float64) float64 {
	return l.Intercept + l.Slope*x
}

// PredictAll evaluates the line at every x.
func (l Line) PredictAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = l.Predict(x)
	}
	return out
}

// FitOLS fits a least-squares line of y on x. When every x is the same the
// slope is 0 and the intercept is the mean of y.
func FitOLS(x, y []float64) (Line, error) {
	if len(x) != len(y) {
		return Line{}, fmt.Errorf("fit: %d x values but %d y values", len(x), len(y))
	}
	if len(x) == 0 {
		return Line{}, fmt.Errorf("fit: no observations")
	}

	mx, my := Mean(x), Mean(y)

	var sxx, sxy float64
	for i := range x {
		dx := x[i] - mx
		sxx += dx * dx
		sxy += dx * (y[i] - my)
	}

	if sxx == 0 {
		return Line{Slope: 0, Intercept: my}, nil
	}
	slope := sxy / sxx
	return Line{Slope: slope, Intercept: my - slope*mx}, nil
}
