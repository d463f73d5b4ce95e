package statistics

import (
	"fmt"
	"math/rand/v2"
)

// CalculateWeights turns per-model error scores into blending weights.
// Each weight is the inverse score over the sum of inverse scores, rounded
// to two decimals, so lower errors earn larger weights.
func CalculateWeights(scores []float64) ([]float64, error) {
	if len(scores) == 0 {
		return nil, ErrNoData
	}
	var sum float64
	for i, s := range scores {
		if s <= 0 {
			return nil, fmt.Errorf("score %d must be positive, got %v", i, s)
		}
		sum += 1 / s
	}
	weights := make([]float64, len(scores))
	for i, s := range scores {
		weights[i] = Round((1/s)/sum, 2)
	}
	return weights, nil
}

// IntervalOptions configures a bootstrap confidence interval
type IntervalOptions struct {
	Samples    int
	Confidence float64
	Seed       uint64
}

// DefaultIntervalOptions draws 1000 resamples at 95% confidence
func DefaultIntervalOptions() IntervalOptions {
	return IntervalOptions{Samples: 1000, Confidence: 0.95, Seed: 42}
}

// MAEConfidenceInterval bootstraps the mean absolute error by resampling
// (true, predicted) pairs with replacement and returns the lower and upper
// percentile bounds rounded to two decimals.
func MAEConfidenceInterval(yTrue, yPred []float64, opts IntervalOptions) (lower, upper float64, err error) {
	if _, err := residuals(yTrue, yPred); err != nil {
		return 0, 0, err
	}
	if opts.Samples <= 0 {
		opts.Samples = 1000
	}
	if opts.Confidence <= 0 || opts.Confidence >= 1 {
		return 0, 0, fmt.Errorf("confidence must be within (0, 1), got %v", opts.Confidence)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	n := len(yTrue)
	sampleTrue := make([]float64, n)
	samplePred := make([]float64, n)
	maes := make([]float64, opts.Samples)
	for s := range maes {
		for i := 0; i < n; i++ {
			k := rng.IntN(n)
			sampleTrue[i] = yTrue[k]
			samplePred[i] = yPred[k]
		}
		maes[s], _ = MAE(sampleTrue, samplePred)
	}

	tail := (1 - opts.Confidence) * 100 / 2
	lo, err := Percentile(maes, tail)
	if err != nil {
		return 0, 0, err
	}
	hi, err := Percentile(maes, 100-tail)
	if err != nil {
		return 0, 0, err
	}
	return Round(lo, 2), Round(hi, 2), nil
}
