// Package ml trains and scores the expected-range regressors and owns their
// persistence and registry.
package ml

import (
	"errors"
	"fmt"
)

// LinearModel is a linear regressor over the fixed feature vector. Lambda=0
// is ordinary least squares; Lambda>0 adds ridge regularization (the
// intercept is never penalized). Weights serialize as JSON so the registry
// can reload models without a binary format.
type LinearModel struct {
	Intercept float64   `json:"intercept"`
	Weights   []float64 `json:"weights"`
	Lambda    float64   `json:"lambda"`
}

// Predict evaluates the model for one feature vector.
func (m *LinearModel) Predict(x []float64) (float64, error) {
	if len(x) != len(m.Weights) {
		return 0, fmt.Errorf("feature count mismatch: got %d, model has %d", len(x), len(m.Weights))
	}
	out := m.Intercept
	for i, w := range m.Weights {
		out += w * x[i]
	}
	return out, nil
}

// Fit solves the normal equations (XᵀX + λI)w = Xᵀy with an intercept
// column. Returns an error when the system is singular, which callers treat
// as "this variant is unavailable this cycle".
func Fit(X [][]float64, y []float64, lambda float64) (*LinearModel, error) {
	n := len(X)
	if n == 0 || n != len(y) {
		return nil, errors.New("empty or misaligned training data")
	}
	p := len(X[0]) + 1 // +1 for intercept

	// a = XᵀX (+ λ on non-intercept diagonal), b = Xᵀy
	a := make([][]float64, p)
	for i := range a {
		a[i] = make([]float64, p)
	}
	b := make([]float64, p)

	row := make([]float64, p)
	for s := 0; s < n; s++ {
		row[0] = 1
		copy(row[1:], X[s])
		for i := 0; i < p; i++ {
			for j := 0; j < p; j++ {
				a[i][j] += row[i] * row[j]
			}
			b[i] += row[i] * y[s]
		}
	}
	for i := 1; i < p; i++ {
		a[i][i] += lambda
	}

	w, err := solve(a, b)
	if err != nil {
		return nil, err
	}
	return &LinearModel{Intercept: w[0], Weights: w[1:], Lambda: lambda}, nil
}

// solve runs Gaussian elimination with partial pivoting.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if abs(a[r][col]) > abs(a[pivot][col]) {
				pivot = r
			}
		}
		if abs(a[pivot][col]) < 1e-12 {
			return nil, errors.New("singular design matrix")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= a[i][j] * x[j]
		}
		x[i] = sum / a[i][i]
	}
	return x, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
