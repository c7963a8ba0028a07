// Package selection fits several kriging model configurations in parallel and
// ranks them by leave-one-out cross-validation error.
package selection

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"dacekit/pkg/correlation"
	"dacekit/pkg/kriging"
	"dacekit/pkg/regression"
)

// AllOutputs selects every response column in a Candidate.
const AllOutputs = -1

const (
	defaultTheta = 1.0
	defaultLower = 1e-2
	defaultUpper = 20.0

	// start and bounds of the exponential-power exponent
	defaultPower      = 1.5
	defaultPowerLower = 1.0
	defaultPowerUpper = 2.0
)

// Candidate is one model configuration to fit.
type Candidate struct {
	Regression  regression.Basis
	Correlation correlation.Family
	// Output is the response column to model, or AllOutputs.
	Output int
}

func (c Candidate) String() string {
	out := "all"
	if c.Output != AllOutputs {
		out = fmt.Sprint(c.Output)
	}
	return fmt.Sprintf("%s/%s/%s", c.Regression, c.Correlation, out)
}

// Combinations returns every combination of the given bases, families and
// output columns. A nil outputs slice models all outputs jointly.
func Combinations(bases []regression.Basis, families []correlation.Family, outputs []int) []Candidate {
	if outputs == nil {
		outputs = []int{AllOutputs}
	}
	out := make([]Candidate, 0, len(bases)*len(families)*len(outputs))
	for _, o := range outputs {
		for _, b := range bases {
			for _, f := range families {
				out = append(out, Candidate{Regression: b, Correlation: f, Output: o})
			}
		}
	}
	return out
}

// ValidationMetrics holds the leave-one-out prediction quality of a model.
type ValidationMetrics struct {
	// RMSE is the root mean square of the leave-one-out residuals. Lower is
	// better.
	RMSE float64

	// MaxError is the largest absolute leave-one-out residual.
	MaxError float64

	// RSquared is the coefficient of determination of the leave-one-out
	// predictions. 1 indicates perfect prediction.
	RSquared float64
}

// Result is the outcome of fitting one candidate.
type Result struct {
	Candidate Candidate
	Model     *kriging.Model
	Perf      *kriging.Perf
	Metrics   ValidationMetrics
	// Err is set when the candidate could not be fitted or validated.
	Err error
}

// ProgressCallback reports progress while candidates are fitted.
type ProgressCallback func(completed, total int, message string)

// Params configures a Selector.
type Params struct {
	// Theta0, Lower and Upper give the θ search for every candidate. They hold
	// one value per dimension or a single shared value. When nil the defaults
	// 1 and [0.01, 20] are used. The exponent of the exponential-power family
	// is appended automatically.
	Theta0, Lower, Upper []float64

	// Workers bounds the number of concurrent fits. Zero uses GOMAXPROCS.
	Workers int

	// CrossValidate ranks candidates by leave-one-out RMSE instead of the
	// likelihood objective.
	CrossValidate bool

	FitOptions []kriging.FitOption
	Logger     *zap.Logger
	Progress   ProgressCallback
}

// Selector fits and ranks model candidates.
type Selector struct {
	params *Params
	logger *zap.Logger
}

// NewSelector creates a selector with the provided parameters.
//
// Parameters:
//   - params: fitting configuration shared by every candidate
//
// Returns:
//   - a new Selector
func NewSelector(params *Params) *Selector {
	if params == nil {
		params = &Params{}
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{params: params, logger: logger.Named("selection")}
}

func (s *Selector) workers() int {
	if s.params.Workers > 0 {
		return s.params.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Run fits every candidate to S and Y and returns the results ranked best
// first. Candidates that fail keep their error in Result.Err and are ranked
// last. Run itself only fails when ctx is done.
func (s *Selector) Run(ctx context.Context, S, Y *mat.Dense, candidates []Candidate) ([]Result, error) {
	results := make([]Result, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	progress := make(chan string, len(candidates))
	done := make(chan struct{})
	go func() {
		defer close(done)
		completed := 0
		for msg := range progress {
			completed++
			if s.params.Progress != nil {
				s.params.Progress(completed, len(candidates), msg)
			}
		}
	}()

	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.fitCandidate(gctx, S, Y, c)
			if err := gctx.Err(); err != nil {
				return err
			}
			progress <- c.String()
			return nil
		})
	}
	err := g.Wait()
	close(progress)
	<-done
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	Rank(results, s.params.CrossValidate)
	for _, r := range results {
		if r.Err != nil {
			s.logger.Debug("candidate failed", zap.Stringer("candidate", r.Candidate), zap.Error(r.Err))
		}
	}
	if len(results) > 0 && results[0].Err == nil {
		s.logger.Info("best candidate",
			zap.Stringer("candidate", results[0].Candidate),
			zap.Float64s("theta", results[0].Model.Theta()),
			zap.Float64("objective", results[0].Perf.Objective),
			zap.Float64("rmse", results[0].Metrics.RMSE))
	}
	return results, nil
}

func (s *Selector) fitCandidate(ctx context.Context, S, Y *mat.Dense, c Candidate) Result {
	res := Result{Candidate: c}
	y, err := outputColumns(Y, c.Output)
	if err != nil {
		res.Err = err
		return res
	}
	_, dim := S.Dims()
	theta0, lower, upper := s.thetaFor(c.Correlation, dim)

	opts := append([]kriging.FitOption{kriging.WithLogger(s.logger)}, s.params.FitOptions...)
	res.Model, res.Perf, res.Err = kriging.Fit(ctx, S, y, c.Regression, c.Correlation, theta0, lower, upper, opts...)
	if res.Err != nil || !s.params.CrossValidate {
		return res
	}
	res.Metrics, res.Err = CrossValidate(ctx, S, y, c.Regression, c.Correlation, res.Model.Theta(), 1)
	return res
}

func (s *Selector) thetaFor(corr correlation.Family, dim int) (theta0, lower, upper []float64) {
	fill := func(v []float64, def float64) []float64 {
		if v != nil {
			return append([]float64(nil), v...)
		}
		out := make([]float64, dim)
		for i := range out {
			out[i] = def
		}
		return out
	}
	theta0 = fill(s.params.Theta0, defaultTheta)
	lower = fill(s.params.Lower, defaultLower)
	upper = fill(s.params.Upper, defaultUpper)
	if corr == correlation.ExponentialPower {
		theta0 = append(theta0, defaultPower)
		lower = append(lower, defaultPowerLower)
		upper = append(upper, defaultPowerUpper)
	}
	return theta0, lower, upper
}

func outputColumns(Y *mat.Dense, output int) (*mat.Dense, error) {
	if output == AllOutputs {
		return Y, nil
	}
	n, q := Y.Dims()
	if output < 0 || output >= q {
		return nil, fmt.Errorf("output column %d out of range [0, %d)", output, q)
	}
	return mat.DenseCopyOf(Y.Slice(0, n, output, output+1)), nil
}

// Rank sorts results best first: successful fits before failed ones, then by
// leave-one-out RMSE when byRMSE is set or by the likelihood objective
// otherwise. Ties keep their input order.
func Rank(results []Result, byRMSE bool) {
	score := func(r Result) float64 {
		if byRMSE {
			return r.Metrics.RMSE
		}
		return r.Perf.Objective
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.Err != nil {
			return false
		}
		return score(a) < score(b)
	})
}

// CrossValidate computes leave-one-out metrics for a model with fixed θ. Every
// site is removed in turn, the model is refitted on the rest and the removed
// response is predicted. Folds run on up to workers goroutines.
func CrossValidate(ctx context.Context, S, Y *mat.Dense, regr regression.Basis, corr correlation.Family,
	theta []float64, workers int) (ValidationMetrics, error) {
	n, dim := S.Dims()
	nY, q := Y.Dims()
	if n != nY {
		return ValidationMetrics{}, fmt.Errorf("%w: %d sites but %d responses", kriging.ErrDimensionMismatch, n, nY)
	}
	if n < 3 {
		return ValidationMetrics{}, fmt.Errorf("leave-one-out needs at least three sites, got %d", n)
	}
	predicted := mat.NewDense(n, q, nil)

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sTrain, yTrain := dropRow(S, i), dropRow(Y, i)
			m, _, err := kriging.Fit(gctx, sTrain, yTrain, regr, corr, theta, nil, nil)
			if err != nil {
				return fmt.Errorf("leave-one-out fold %d: %w", i, err)
			}
			x := make([]float64, dim)
			mat.Row(x, i, S)
			pp, err := m.PredictPoint(x)
			if err != nil {
				return fmt.Errorf("leave-one-out fold %d: %w", i, err)
			}
			predicted.SetRow(i, pp.Value)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ValidationMetrics{}, err
	}
	return metrics(Y, predicted), nil
}

// metrics compares observed and predicted responses over every output.
func metrics(observed, predicted *mat.Dense) ValidationMetrics {
	obs := mat.DenseCopyOf(observed).RawMatrix().Data
	pred := mat.DenseCopyOf(predicted).RawMatrix().Data

	var sum, maxErr float64
	for i := range obs {
		d := obs[i] - pred[i]
		sum += d * d
		maxErr = math.Max(maxErr, math.Abs(d))
	}
	return ValidationMetrics{
		RMSE:     math.Sqrt(sum / float64(len(obs))),
		MaxError: maxErr,
		RSquared: stat.RSquaredFrom(pred, obs, nil),
	}
}

func dropRow(a *mat.Dense, row int) *mat.Dense {
	n, c := a.Dims()
	out := mat.NewDense(n-1, c, nil)
	k := 0
	for i := 0; i < n; i++ {
		if i == row {
			continue
		}
		out.SetRow(k, a.RawRowView(i))
		k++
	}
	return out
}
