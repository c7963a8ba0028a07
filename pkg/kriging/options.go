package kriging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Search selects the bounded optimizer used for the θ search.
type Search int

const (
	// PatternSearch is a coordinate pattern search with multiplicative steps
	// in log θ. It is deterministic and needs no derivatives.
	PatternSearch Search = iota
	// NelderMead runs the gonum Nelder-Mead simplex on log θ, projecting every
	// trial point onto the bounds.
	NelderMead
)

func (s Search) String() string {
	switch s {
	case PatternSearch:
		return "pattern"
	case NelderMead:
		return "neldermead"
	}
	return fmt.Sprintf("Search(%d)", int(s))
}

// ParseSearch converts a search name into a Search.
func ParseSearch(name string) (Search, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pattern", "boxmin", "":
		return PatternSearch, nil
	case "neldermead", "nelder-mead", "simplex":
		return NelderMead, nil
	}
	return 0, fmt.Errorf("unknown search %q", name)
}

const (
	// DefaultMaxIterations caps the number of search sweeps.
	DefaultMaxIterations = 20
	// DefaultTolerance is the relative objective improvement below which the
	// search is considered converged.
	DefaultTolerance = 1e-6
	// DefaultRcondTolerance is the reciprocal condition number below which a
	// factorized correlation matrix is rejected as numerically singular.
	DefaultRcondTolerance = 1e-18
	// DefaultDuplicateTolerance is the max-norm distance, in scaled
	// coordinates, under which two sites are treated as the same site.
	DefaultDuplicateTolerance = 1e-12
)

type fitOptions struct {
	logger   *zap.Logger
	search   Search
	maxIter  int
	tol      float64
	rcondTol float64
	dupTol   float64
}

func defaultFitOptions() fitOptions {
	return fitOptions{
		logger:   zap.NewNop(),
		search:   PatternSearch,
		maxIter:  DefaultMaxIterations,
		tol:      DefaultTolerance,
		rcondTol: DefaultRcondTolerance,
		dupTol:   DefaultDuplicateTolerance,
	}
}

// FitOption configures Fit.
type FitOption func(*fitOptions)

// WithLogger sets the logger used during the fit and by the resulting model.
func WithLogger(l *zap.Logger) FitOption {
	return func(o *fitOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSearch selects the θ optimizer.
func WithSearch(s Search) FitOption {
	return func(o *fitOptions) { o.search = s }
}

// WithMaxIterations caps the number of search iterations. For the pattern
// search an iteration is one explore/move sweep; Nelder-Mead is allowed ten
// simplex iterations per unit.
func WithMaxIterations(n int) FitOption {
	return func(o *fitOptions) {
		if n > 0 {
			o.maxIter = n
		}
	}
}

// WithTolerance sets the relative improvement tolerance.
func WithTolerance(tol float64) FitOption {
	return func(o *fitOptions) {
		if tol >= 0 {
			o.tol = tol
		}
	}
}

// WithRcondTolerance sets the reciprocal condition number threshold.
func WithRcondTolerance(tol float64) FitOption {
	return func(o *fitOptions) {
		if tol >= 0 {
			o.rcondTol = tol
		}
	}
}

// WithDuplicateTolerance sets the distance under which sites coincide.
func WithDuplicateTolerance(tol float64) FitOption {
	return func(o *fitOptions) {
		if tol >= 0 {
			o.dupTol = tol
		}
	}
}

type predictOptions struct {
	curvature bool
}

// PredictOption configures Predict.
type PredictOption func(*predictOptions)

// WithCurvature requests the Hessian of the predictor.
func WithCurvature() PredictOption {
	return func(o *predictOptions) { o.curvature = true }
}
