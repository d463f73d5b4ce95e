package statistics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedianAndPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		median float64
		p90    float64
	}{
		{"odd count", []float64{3, 1, 2}, 2, 2.8},
		{"even count", []float64{4, 1, 3, 2}, 2.5, 3.7},
		{"single value", []float64{7}, 7, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Median(tt.values)
			require.NoError(t, err)
			assert.InDelta(t, tt.median, m, 1e-9)

			p, err := Percentile(tt.values, 90)
			require.NoError(t, err)
			assert.InDelta(t, tt.p90, p, 1e-9)
		})
	}

	_, err := Median(nil)
	assert.ErrorIs(t, err, ErrNoData)
	_, err = Percentile([]float64{1}, 101)
	assert.Error(t, err)
}

func TestErrorMetrics(t *testing.T) {
	yTrue := []float64{3, -0.5, 2, 7}
	yPred := []float64{2.5, 0, 2, 8}

	mae, err := MAE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mae, 1e-9)

	rmse, err := RMSE(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.6123724, rmse, 1e-6)

	r2, err := R2(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 0.9486081, r2, 1e-6)

	_, err = MAE([]float64{1}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrLengthMismatch)
	_, err = R2([]float64{1, 1}, []float64{1, 2})
	assert.Error(t, err)
}

func TestCalculateWeights(t *testing.T) {
	weights, err := CalculateWeights([]float64{1, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.57, 0.29, 0.14}, weights)

	equal, err := CalculateWeights([]float64{2.5, 2.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, equal)

	_, err = CalculateWeights([]float64{1, 0})
	assert.Error(t, err)
	_, err = CalculateWeights(nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestMAEConfidenceInterval(t *testing.T) {
	yTrue := []float64{10, 12, 9, 15, 20, 18, 7, 11, 13, 16}
	yPred := []float64{11, 11, 10, 13, 22, 17, 8, 12, 12, 15}

	lower, upper, err := MAEConfidenceInterval(yTrue, yPred, DefaultIntervalOptions())
	require.NoError(t, err)
	assert.LessOrEqual(t, lower, upper)
	assert.GreaterOrEqual(t, lower, 1.0, "every error is at least 1")
	assert.LessOrEqual(t, upper, 2.0, "no error exceeds 2")

	again, _, err := MAEConfidenceInterval(yTrue, yPred, DefaultIntervalOptions())
	require.NoError(t, err)
	assert.Equal(t, lower, again, "same seed gives same interval")

	// at 50% the bounds are the 25th and 75th percentiles, never the same one
	half := DefaultIntervalOptions()
	half.Confidence = 0.5
	lo50, hi50, err := MAEConfidenceInterval(yTrue, yPred, half)
	require.NoError(t, err)
	assert.Less(t, lo50, hi50)
	assert.GreaterOrEqual(t, lo50, lower)
	assert.LessOrEqual(t, hi50, upper)

	_, _, err = MAEConfidenceInterval(yTrue, yPred, IntervalOptions{Samples: 10, Confidence: 1.5})
	assert.Error(t, err)
	_, _, err = MAEConfidenceInterval(nil, nil, DefaultIntervalOptions())
	assert.ErrorIs(t, err, ErrNoData)
}
