package services

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var errSingular = errors.New("normal equations are not positive definite")

// ridgeModel is a fitted weighted ridge regression over z-scored features.
// weights[0] is the bias.
type ridgeModel struct {
	weights     []float64
	means       []float64
	stds        []float64
	targetMean  float64
	targetScale float64
}

// fitRidge minimizes sum_i w_i (t_i - b0 - b.z_i)^2 + lambda*|b|^2 where z are
// z-scored features and t is the centred, scaled target. The bias is not
// penalized. Fitted weights are clamped to [-clamp, clamp].
func fitRidge(x [][]float64, y, w []float64, lambda, clamp float64) (ridgeModel, error) {
	n := len(x)
	if n == 0 || len(y) != n || len(w) != n {
		return ridgeModel{}, fmt.Errorf("fit: %d rows, %d targets, %d weights", n, len(y), len(w))
	}
	p := len(x[0])

	m := ridgeModel{
		means: make([]float64, p),
		stds:  make([]float64, p),
	}
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		m.means[j], m.stds[j] = stat.PopMeanStdDev(col, nil)
	}
	var ystd float64
	m.targetMean, ystd = stat.PopMeanStdDev(y, nil)
	m.targetScale = ystd
	if ystd == 0 || math.IsNaN(ystd) {
		m.targetScale = 1
	}

	k := p + 1
	a := mat.NewSymDense(k, nil)
	b := mat.NewVecDense(k, nil)
	z := make([]float64, k)
	for i := range x {
		m.normalize(x[i], z)
		t := (y[i] - m.targetMean) / m.targetScale
		for r := 0; r < k; r++ {
			b.SetVec(r, b.AtVec(r)+w[i]*z[r]*t)
			for c := r; c < k; c++ {
				a.SetSym(r, c, a.At(r, c)+w[i]*z[r]*z[c])
			}
		}
	}
	for j := 1; j < k; j++ {
		a.SetSym(j, j, a.At(j, j)+lambda)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return ridgeModel{}, errSingular
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, b); err != nil {
		return ridgeModel{}, fmt.Errorf("solve: %w", err)
	}

	m.weights = make([]float64, k)
	for j := 0; j < k; j++ {
		v := beta.AtVec(j)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ridgeModel{}, fmt.Errorf("weight %d is not finite", j)
		}
		m.weights[j] = math.Max(-clamp, math.Min(clamp, v))
	}
	return m, nil
}

// normalize writes [1, z_1..z_p] into dst. A feature with zero spread maps to 0.
func (m ridgeModel) normalize(x, dst []float64) {
	dst[0] = 1
	for j := range x {
		if m.stds[j] == 0 || math.IsNaN(m.stds[j]) {
			dst[j+1] = 0
			continue
		}
		dst[j+1] = (x[j] - m.means[j]) / m.stds[j]
	}
}

// predict returns the model output in target units
func (m ridgeModel) predict(x []float64) float64 {
	z := make([]float64, len(m.weights))
	m.normalize(x, z)
	var s float64
	for j, wj := range m.weights {
		s += wj * z[j]
	}
	return m.targetMean + m.targetScale*s
}

// iqrBounds returns [Q1 - k*IQR, Q3 + k*IQR] of values, which must be sorted
func iqrBounds(sorted []float64, k float64) (lo, hi float64) {
	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1
	return q1 - k*iqr, q3 + k*iqr
}
