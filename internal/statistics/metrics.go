package statistics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func residuals(yTrue, yPred []float64) ([]float64, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("%w: %d true values, %d predictions", ErrLengthMismatch, len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return nil, ErrNoData
	}
	diff := make([]float64, len(yTrue))
	floats.SubTo(diff, yTrue, yPred)
	return diff, nil
}

// MAE returns the mean absolute error
func MAE(yTrue, yPred []float64) (float64, error) {
	diff, err := residuals(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Norm(diff, 1) / float64(len(diff)), nil
}

// RMSE returns the root mean squared error
func RMSE(yTrue, yPred []float64) (float64, error) {
	diff, err := residuals(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return floats.Norm(diff, 2) / math.Sqrt(float64(len(diff))), nil
}

// R2 returns the coefficient of determination. A constant target yields an
// error since the score is undefined.
func R2(yTrue, yPred []float64) (float64, error) {
	diff, err := residuals(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	mean := stat.Mean(yTrue, nil)
	var total float64
	for _, y := range yTrue {
		total += (y - mean) * (y - mean)
	}
	if total == 0 {
		return 0, fmt.Errorf("r2 undefined for constant target")
	}
	residual := floats.Dot(diff, diff)
	return 1 - residual/total, nil
}
