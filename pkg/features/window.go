package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// lag returns x shifted forward by n positions; the first n values are NaN.
func lag(x []float64, n int) []float64 {
	out := make([]float64, len(x))
	for i := range out {
		if i < n {
			out[i] = math.NaN()
			continue
		}
		out[i] = x[i-n]
	}
	return out
}

// rollingMeanStd computes the trailing mean and sample standard deviation
// over [i-w+1, i]. Positions with fewer than w values are NaN.
func rollingMeanStd(x []float64, w int) (mean, std []float64) {
	mean = make([]float64, len(x))
	std = make([]float64, len(x))
	for i := range x {
		if i < w-1 {
			mean[i], std[i] = math.NaN(), math.NaN()
			continue
		}
		mean[i], std[i] = stat.MeanStdDev(x[i-w+1:i+1], nil)
	}
	return mean, std
}

// trailingSum computes the sum over [i-w+1, i]; the first w-1 positions
// are NaN.
func trailingSum(x []float64, w int) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		if i < w-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = floats.Sum(x[i-w+1 : i+1])
	}
	return out
}

// forwardSum returns out[t] = sum(x[t+1 .. t+k]); positions without k
// future values are NaN.
func forwardSum(x []float64, k int) []float64 {
	out := make([]float64, len(x))
	for t := range x {
		if t+k >= len(x) {
			out[t] = math.NaN()
			continue
		}
		out[t] = floats.Sum(x[t+1 : t+k+1])
	}
	return out
}
