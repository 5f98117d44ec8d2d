package predictor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNotTrained       = errors.New("model has not been trained")
	ErrEmptyTrainingSet = errors.New("training set is empty")
	ErrShapeMismatch    = errors.New("feature matrix shape mismatch")
)

// Predictor is anything that turns a feature matrix into one estimate per row,
// preserving row order.
type Predictor interface {
	Predict(X [][]float64) ([]float64, error)
}

// Trainer is a Predictor that can be fitted.
type Trainer interface {
	Predictor
	Fit(X [][]float64, y []float64) error
	Name() string
}

// RidgeRegression is a linear least-squares model with an L2 penalty on the
// coefficients. The intercept is not penalised.
type RidgeRegression struct {
	Lambda float64

	coef      []float64
	intercept float64
	featStd   []float64
	trained   bool
}

// NewRidgeRegression creates an untrained model.
func NewRidgeRegression(lambda float64) *RidgeRegression {
	return &RidgeRegression{Lambda: lambda}
}

func (m *RidgeRegression) Name() string {
	return "ridge_regression"
}

// Fit solves (XcᵀXc + λI)β = Xcᵀyc on mean-centred data.
func (m *RidgeRegression) Fit(X [][]float64, y []float64) error {
	n := len(X)
	if n == 0 {
		return ErrEmptyTrainingSet
	}
	if len(y) != n {
		return fmt.Errorf("%d rows but %d targets: %w", n, len(y), ErrShapeMismatch)
	}
	p := len(X[0])

	xMean := make([]float64, p)
	m.featStd = make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			if len(X[i]) != p {
				return fmt.Errorf("row %d has %d features, want %d: %w", i, len(X[i]), p, ErrShapeMismatch)
			}
			col[i] = X[i][j]
		}
		xMean[j], m.featStd[j] = stat.MeanStdDev(col, nil)
		if math.IsNaN(m.featStd[j]) {
			m.featStd[j] = 0
		}
	}
	yMean := stat.Mean(y, nil)

	m.coef = make([]float64, p)
	if p > 0 {
		xc := mat.NewDense(n, p, nil)
		yc := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < p; j++ {
				xc.Set(i, j, X[i][j]-xMean[j])
			}
			yc.SetVec(i, y[i]-yMean)
		}

		var gram mat.Dense
		gram.Mul(xc.T(), xc)
		for j := 0; j < p; j++ {
			gram.Set(j, j, gram.At(j, j)+m.Lambda)
		}

		var rhs mat.VecDense
		rhs.MulVec(xc.T(), yc)

		var beta mat.VecDense
		if err := beta.SolveVec(&gram, &rhs); err != nil {
			return fmt.Errorf("failed to solve normal equations: %w", err)
		}
		for j := 0; j < p; j++ {
			m.coef[j] = beta.AtVec(j)
		}
	}

	m.intercept = yMean
	for j := 0; j < p; j++ {
		m.intercept -= m.coef[j] * xMean[j]
	}
	m.trained = true
	return nil
}

// Predict returns one estimate per row of X.
func (m *RidgeRegression) Predict(X [][]float64) ([]float64, error) {
	if !m.trained {
		return nil, ErrNotTrained
	}
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(m.coef) {
			return nil, fmt.Errorf("row %d has %d features, want %d: %w", i, len(row), len(m.coef), ErrShapeMismatch)
		}
		out[i] = m.intercept + floats.Dot(m.coef, row)
	}
	return out, nil
}

// Coefficients returns a copy of the fitted coefficients and the intercept.
func (m *RidgeRegression) Coefficients() ([]float64, float64) {
	return append([]float64(nil), m.coef...), m.intercept
}

// Importances scores each feature by |β_j|·σ_j, normalised to sum to one. A model
// whose every score is zero returns all zeros.
func (m *RidgeRegression) Importances() []float64 {
	out := make([]float64, len(m.coef))
	var total float64
	for j, b := range m.coef {
		out[j] = math.Abs(b) * m.featStd[j]
		total += out[j]
	}
	if total == 0 {
		return out
	}
	for j := range out {
		out[j] /= total
	}
	return out
}
