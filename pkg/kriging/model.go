package kriging

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"dacekit/pkg/correlation"
	"dacekit/pkg/regression"
)

// Model is a fitted kriging model. It is immutable once returned by Fit and
// safe for concurrent use by multiple goroutines.
type Model struct {
	regr  regression.Basis
	corr  correlation.Family
	theta []float64

	dim     int
	outputs int
	sites   *mat.Dense // scaled sites, n×d
	scaling Scaling

	beta   *mat.Dense    // p×q
	gamma  *mat.Dense    // n×q
	sigma2 []float64     // process variance per output, in response units
	C      *mat.TriDense // lower Cholesky factor of R
	Ft     *mat.Dense    // C⁻¹F
	G      *mat.TriDense // upper QR factor of Ft
	condR  float64

	logger *zap.Logger
}

func newModel(pr *problem, c *candidate, sc Scaling, logger *zap.Logger) *Model {
	_, dim := pr.S.Dims()
	_, q := pr.Y.Dims()
	sigma2 := make([]float64, q)
	for l := range sigma2 {
		sigma2[l] = sc.ResponseStd[l] * sc.ResponseStd[l] * c.sigma2[l]
	}
	return &Model{
		regr:    pr.regr,
		corr:    pr.corr,
		theta:   append([]float64(nil), c.theta...),
		dim:     dim,
		outputs: q,
		sites:   pr.S,
		scaling: sc,
		beta:    c.beta,
		gamma:   c.gamma,
		sigma2:  sigma2,
		C:       c.C,
		Ft:      c.Ft,
		G:       c.G,
		condR:   c.condR,
		logger:  logger,
	}
}

// Regression returns the regression basis of the model.
func (m *Model) Regression() regression.Basis { return m.regr }

// Correlation returns the correlation family of the model.
func (m *Model) Correlation() correlation.Family { return m.corr }

// Theta returns a copy of the optimized correlation parameters.
func (m *Model) Theta() []float64 { return append([]float64(nil), m.theta...) }

// Dim returns the dimension of the design sites.
func (m *Model) Dim() int { return m.dim }

// Outputs returns the number of response columns.
func (m *Model) Outputs() int { return m.outputs }

// Len returns the number of design sites.
func (m *Model) Len() int {
	n, _ := m.sites.Dims()
	return n
}

// Beta returns a copy of the generalized least squares regression
// coefficients, in scaled units.
func (m *Model) Beta() *mat.Dense { return mat.DenseCopyOf(m.beta) }

// Gamma returns a copy of the correlation weights R⁻¹(Y - Fβ), in scaled
// units.
func (m *Model) Gamma() *mat.Dense { return mat.DenseCopyOf(m.gamma) }

// Sigma2 returns the estimated process variance of every output.
func (m *Model) Sigma2() []float64 { return append([]float64(nil), m.sigma2...) }

// Cond returns the 1-norm condition number estimate of the correlation matrix.
func (m *Model) Cond() float64 { return m.condR }

// CholeskyFactor returns a copy of the lower Cholesky factor of the
// correlation matrix.
func (m *Model) CholeskyFactor() *mat.TriDense {
	n := m.Len()
	c := mat.NewTriDense(n, mat.Lower, nil)
	c.Copy(m.C)
	return c
}

// Scaling returns a copy of the normalization constants.
func (m *Model) Scaling() Scaling {
	cp := func(v []float64) []float64 { return append([]float64(nil), v...) }
	return Scaling{
		SiteMean:     cp(m.scaling.SiteMean),
		SiteStd:      cp(m.scaling.SiteStd),
		ResponseMean: cp(m.scaling.ResponseMean),
		ResponseStd:  cp(m.scaling.ResponseStd),
	}
}

// Sites returns the design sites in original units.
func (m *Model) Sites() *mat.Dense {
	n := m.Len()
	out := mat.NewDense(n, m.dim, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m.dim; j++ {
			out.Set(i, j, m.scaling.SiteMean[j]+m.scaling.SiteStd[j]*m.sites.At(i, j))
		}
	}
	return out
}

func (m *Model) String() string {
	return fmt.Sprintf("kriging.Model{regr: %s, corr: %s, theta: %v, sites: %d, outputs: %d}",
		m.regr, m.corr, m.theta, m.Len(), m.outputs)
}

// Step identifies the phase of the search that produced an evaluation.
type Step int

const (
	StepFixed Step = iota
	StepStart
	StepExplore
	StepMove
	StepSimplex
)

func (s Step) String() string {
	switch s {
	case StepFixed:
		return "fixed"
	case StepStart:
		return "start"
	case StepExplore:
		return "explore"
	case StepMove:
		return "move"
	case StepSimplex:
		return "simplex"
	}
	return fmt.Sprintf("Step(%d)", int(s))
}

// Evaluation records one objective evaluation of the search.
type Evaluation struct {
	Theta     []float64
	Objective float64 // +Inf when the correlation matrix was rejected
	Step      Step
	Accepted  bool
}

// Perf reports how the θ search went.
type Perf struct {
	Evaluations    []Evaluation
	Objective      float64
	Factorizations int
	Rejected       int
	Iterations     int
	Converged      bool
	StopReason     string
}

// Err returns ErrNonConvergence wrapped with the stop reason when the search
// did not converge, and nil otherwise.
func (p *Perf) Err() error {
	if p == nil || p.Converged {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNonConvergence, p.StopReason)
}

// Best returns the accepted evaluation with the lowest objective.
func (p *Perf) Best() (Evaluation, bool) {
	best, found := Evaluation{Objective: math.Inf(1)}, false
	for _, e := range p.Evaluations {
		if e.Accepted && (!found || e.Objective < best.Objective) {
			best, found = e, true
		}
	}
	return best, found
}
