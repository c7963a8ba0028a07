// Package kriging fits and evaluates Design and Analysis of Computer
// Experiments (DACE) kriging surrogates.
//
// A model is Y(x) = f(x)ᵀβ + z(x), where f is a polynomial regression basis
// and z a zero mean Gaussian process whose correlation is a product of 1-D
// kernels parameterized by θ. Fit estimates β and the process variance by
// generalized least squares and chooses θ by minimizing
// ψ(θ) = |R|^(1/n) σ²(θ) inside a box. Predict returns the best linear unbiased
// predictor, its gradient and its mean squared error.
package kriging

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"dacekit/pkg/correlation"
	"dacekit/pkg/regression"
)

// Fit fits a kriging model to the design sites S (n×d) and responses Y (n×q).
//
// theta0 is the starting point of the θ search. When lower and upper are nil
// θ is fixed at theta0 and a single evaluation is made; otherwise θ is
// optimized inside [lower, upper]. Both searches replace components of theta0
// outside the bounds by (lower·upper⁷)^(1/8) before they start. Rejected
// candidates steer the search away; if every candidate is rejected the
// pattern search walks towards the upper bounds until one is accepted.
//
// The context bounds the search: once it is done the best model found so far
// is returned with Perf.Converged set to false. If no θ could be evaluated by
// then the context error is returned.
//
// Returns:
//   - the fitted model, immutable and safe for concurrent use
//   - a report of every objective evaluation
//   - an error wrapping one of the package sentinel errors
func Fit(ctx context.Context, S, Y *mat.Dense, regr regression.Basis, corr correlation.Family,
	theta0, lower, upper []float64, opts ...FitOption) (*Model, *Perf, error) {
	o := defaultFitOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.Named("kriging")

	if err := checkInputs(S, Y, regr, corr, theta0, lower, upper); err != nil {
		return nil, nil, err
	}
	n, dim := S.Dims()

	siteMean, siteStd := columnStats(S)
	respMean, respStd := columnStats(Y)
	sc := Scaling{SiteMean: siteMean, SiteStd: siteStd, ResponseMean: respMean, ResponseStd: respStd}
	pr := newProblem(regr, corr, normalize(S, siteMean, siteStd), normalize(Y, respMean, respStd), o.rcondTol)

	if i, j, ok := pr.duplicate(o.dupTol); ok {
		return nil, nil, fmt.Errorf("%w: design sites %d and %d coincide", ErrIllConditionedDesign, i, j)
	}

	logger.Debug("fitting model",
		zap.Int("sites", n),
		zap.Int("dim", dim),
		zap.Stringer("regression", regr),
		zap.Stringer("correlation", corr),
		zap.Float64s("theta0", theta0),
		zap.Stringer("search", o.search))

	perf := &Perf{}
	tr := &tracker{ctx: ctx, pr: pr, perf: perf}
	var res searchResult
	switch {
	case lower == nil:
		f, c := tr.eval(theta0, StepFixed)
		if c != nil {
			tr.accept()
		}
		res = searchResult{fit: c, converged: !math.IsInf(f, 1), reason: "fixed theta"}
	case o.search == NelderMead:
		var err error
		res, err = nelderMead(tr, theta0, lower, upper, o.maxIter, o.tol)
		if err != nil {
			logger.Debug("simplex search stopped with error", zap.Error(err))
		}
	default:
		ps := &patternSearch{t: tr, lo: lower, up: upper}
		res = ps.run(theta0, o.maxIter, o.tol)
	}

	perf.Iterations = res.iterations
	perf.Converged = res.converged
	perf.StopReason = res.reason
	if tr.err != nil {
		return nil, perf, tr.err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		perf.Converged = false
		perf.StopReason = ctxErr.Error()
	}
	if res.fit == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, perf, fmt.Errorf("fit stopped before any successful evaluation: %w", ctxErr)
		}
		return nil, perf, fmt.Errorf("%w: correlation matrix is singular for every theta tried", ErrIllConditionedDesign)
	}
	perf.Objective = res.fit.obj

	m := newModel(pr, res.fit, sc, logger)
	logger.Debug("model fitted",
		zap.Float64s("theta", m.theta),
		zap.Float64("objective", perf.Objective),
		zap.Int("evaluations", len(perf.Evaluations)),
		zap.Int("rejected", perf.Rejected),
		zap.Bool("converged", perf.Converged))
	if !perf.Converged {
		logger.Warn("theta search did not converge", zap.String("reason", perf.StopReason))
	}
	return m, perf, nil
}

func checkInputs(S, Y *mat.Dense, regr regression.Basis, corr correlation.Family, theta0, lower, upper []float64) error {
	if S == nil || Y == nil {
		return fmt.Errorf("%w: sites and responses are required", ErrDimensionMismatch)
	}
	n, dim := S.Dims()
	nY, _ := Y.Dims()
	if n != nY {
		return fmt.Errorf("%w: %d sites but %d responses", ErrDimensionMismatch, n, nY)
	}
	if n < 2 {
		return fmt.Errorf("%w: need at least two design sites, got %d", ErrDimensionMismatch, n)
	}
	if !allFinite(S) || !allFinite(Y) {
		return fmt.Errorf("%w: sites and responses must be finite", ErrDimensionMismatch)
	}
	if p := regr.Size(dim); p > n {
		return fmt.Errorf("%w: %s needs %d terms for %d sites", ErrUnderdetermined, regr, p, n)
	}

	validLen := false
	for _, l := range corr.ThetaLen(dim) {
		validLen = validLen || len(theta0) == l
	}
	if !validLen {
		return fmt.Errorf("%w: %s expects theta of length %v, got %d", ErrDimensionMismatch, corr, corr.ThetaLen(dim), len(theta0))
	}
	if (lower == nil) != (upper == nil) {
		return fmt.Errorf("%w: lower and upper bounds must be given together", ErrDimensionMismatch)
	}

	if lower == nil {
		if err := corr.Validate(theta0, dim); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBounds, err)
		}
		return nil
	}
	if len(lower) != len(theta0) || len(upper) != len(theta0) {
		return fmt.Errorf("%w: theta has length %d, bounds have %d and %d", ErrDimensionMismatch, len(theta0), len(lower), len(upper))
	}
	for j := range lower {
		if !(lower[j] > 0) || !(upper[j] >= lower[j]) || math.IsInf(upper[j], 1) {
			return fmt.Errorf("%w: need 0 < lower <= upper < Inf, got [%g, %g] at %d", ErrInvalidBounds, lower[j], upper[j], j)
		}
		if math.IsNaN(theta0[j]) {
			return fmt.Errorf("%w: theta0[%d] is NaN", ErrInvalidBounds, j)
		}
	}
	if corr == correlation.ExponentialPower && upper[len(upper)-1] > 2 {
		return fmt.Errorf("%w: %s power bound %g exceeds 2", ErrInvalidBounds, corr, upper[len(upper)-1])
	}
	return nil
}
