package scaling

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultMinRSquared is the goodness of fit a degree must reach to be accepted.
	DefaultMinRSquared = 0.98

	// MaxSupportedDegree is the highest polynomial degree Fit will try.
	MaxSupportedDegree = 3
)

// Model is a polynomial mapping input size to wall seconds.
//
// Coefficients are in ascending power order and in the caller's units:
//
//	t(x) = c[0] + c[1]·x + c[2]·x² + c[3]·x³
type Model struct {
	Degree       int       `json:"degree"`
	Coefficients []float64 `json:"coefficients"`
	RSquared     float64   `json:"rSquared"`

	// MinSize/MaxSize record the sampled range, used to flag far extrapolation.
	MinSize      float64 `json:"minSize"`
	MaxSize      float64 `json:"maxSize"`
	Observations int     `json:"observations"`
}

// Predict evaluates the polynomial at size.
func (m Model) Predict(size float64) float64 {
	v := 0.0
	for i := len(m.Coefficients) - 1; i >= 0; i-- {
		v = v*size + m.Coefficients[i]
	}
	return v
}

// Fit fits the lowest-degree polynomial reaching DefaultMinRSquared.
// See FitWithThreshold.
func Fit(series Series, maxDegree int) (Model, error) {
	return FitWithThreshold(series, maxDegree, DefaultMinRSquared)
}

// FitWithThreshold fits a least-squares polynomial of degree ≤ maxDegree.
//
// Degrees are tried from 1 upwards and the first one whose R² ≥ minRSquared
// is returned; if none qualifies the highest allowed degree is returned.
// The degree is capped by maxDegree (clamped to [0, MaxSupportedDegree]) and
// by the number of distinct sizes minus one. maxDegree == 0 fits the
// constant model. A series with identical wall times always fits degree 0.
//
// minRSquared <= 0 selects DefaultMinRSquared.
func FitWithThreshold(series Series, maxDegree int, minRSquared float64) (Model, error) {
	if len(series) < 2 {
		return Model{}, fmt.Errorf("%w: need at least 2 observations, got %d", ErrInsufficientData, len(series))
	}
	for i, o := range series {
		if err := o.Validate(); err != nil {
			return Model{}, fmt.Errorf("observation[%d]: %w", i, err)
		}
	}
	distinct := series.DistinctSizes()
	if distinct < 2 {
		return Model{}, fmt.Errorf("%w: need at least 2 distinct sizes, got %d", ErrInsufficientData, distinct)
	}
	if maxDegree < 0 {
		return Model{}, fmt.Errorf("max degree must be >= 0, got %d", maxDegree)
	}
	if minRSquared <= 0 {
		minRSquared = DefaultMinRSquared
	}

	limit := min(maxDegree, MaxSupportedDegree, distinct-1)

	if constant(series.WallTimes()) || limit == 0 {
		return fitDegree(series, 0)
	}

	var best Model
	for d := 1; d <= limit; d++ {
		m, err := fitDegree(series, d)
		if err != nil {
			return Model{}, err
		}
		best = m
		if m.RSquared >= minRSquared {
			return m, nil
		}
	}
	return best, nil
}

// fitDegree solves the least-squares problem for one degree. Sizes are
// normalised by the largest size before building the Vandermonde matrix and
// the coefficients are scaled back afterwards.
func fitDegree(series Series, degree int) (Model, error) {
	n := len(series)
	scale := series.MaxSize()

	a := mat.NewDense(n, degree+1, nil)
	for i, o := range series {
		x := o.Size / scale
		p := 1.0
		for j := 0; j <= degree; j++ {
			a.Set(i, j, p)
			p *= x
		}
	}
	y := mat.NewVecDense(n, series.WallTimes())

	var c mat.VecDense
	if err := c.SolveVec(a, y); err != nil {
		// A Condition error still carries a usable solution.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return Model{}, fmt.Errorf("solve degree %d: %w", degree, err)
		}
	}

	coeffs := make([]float64, degree+1)
	div := 1.0
	for j := range coeffs {
		coeffs[j] = c.AtVec(j) / div
		div *= scale
	}

	m := Model{
		Degree:       degree,
		Coefficients: coeffs,
		MinSize:      series.MinSize(),
		MaxSize:      scale,
		Observations: n,
	}
	m.RSquared = m.rSquared(series)
	return m, nil
}

func (m Model) rSquared(series Series) float64 {
	values := series.WallTimes()
	if constant(values) {
		return 1
	}
	estimates := make([]float64, len(series))
	for i, o := range series {
		estimates[i] = m.Predict(o.Size)
	}
	return stat.RSquaredFrom(estimates, values, nil)
}

func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// PowerLaw is t = Coefficient · x^Exponent, fitted in log-log space.
// An exponent near 1 means linear scaling, near 2 quadratic.
type PowerLaw struct {
	Coefficient float64 `json:"coefficient"`
	Exponent    float64 `json:"exponent"`
	RSquared    float64 `json:"rSquared"`
}

// Predict evaluates the power law at size.
func (p PowerLaw) Predict(size float64) float64 {
	return p.Coefficient * math.Pow(size, p.Exponent)
}

// FitPowerLaw estimates the scaling exponent of a series by linear
// regression of log(wall time) on log(size).
func FitPowerLaw(series Series) (PowerLaw, error) {
	if len(series) < 2 || series.DistinctSizes() < 2 {
		return PowerLaw{}, fmt.Errorf("%w: power law needs at least 2 distinct sizes", ErrInsufficientData)
	}
	lx := make([]float64, len(series))
	ly := make([]float64, len(series))
	for i, o := range series {
		if err := o.Validate(); err != nil {
			return PowerLaw{}, fmt.Errorf("observation[%d]: %w", i, err)
		}
		lx[i] = math.Log(o.Size)
		ly[i] = math.Log(o.WallSeconds)
	}

	alpha, beta := stat.LinearRegression(lx, ly, nil, false)
	r2 := 1.0
	if !constant(ly) {
		r2 = stat.RSquared(lx, ly, nil, alpha, beta)
	}
	return PowerLaw{
		Coefficient: math.Exp(alpha),
		Exponent:    beta,
		RSquared:    r2,
	}, nil
}
