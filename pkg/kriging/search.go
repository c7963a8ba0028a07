package kriging

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize"
)

// infeasiblePenalty replaces +Inf for optimizers that compare function values
// arithmetically.
const infeasiblePenalty = math.MaxFloat64 / 2

// maxMoveSteps bounds the pattern move along one direction.
const maxMoveSteps = 50

// tracker evaluates the objective on behalf of a search and records every
// evaluation in the Perf report.
type tracker struct {
	ctx  context.Context
	pr   *problem
	perf *Perf
	err  error
}

func (t *tracker) stopped() bool {
	return t.err != nil || t.ctx.Err() != nil
}

// eval returns the objective at theta and the fitted state, which is nil when
// the correlation matrix was rejected. Nothing is evaluated once the search
// has been stopped.
func (t *tracker) eval(theta []float64, step Step) (float64, *candidate) {
	if t.stopped() {
		return math.Inf(1), nil
	}
	t.perf.Factorizations++
	c, err := t.pr.evaluate(theta)
	f := math.Inf(1)
	switch {
	case err != nil:
		t.err = err
	case c == nil:
		t.perf.Rejected++
	default:
		f = c.obj
	}
	t.perf.Evaluations = append(t.perf.Evaluations, Evaluation{
		Theta:     append([]float64(nil), theta...),
		Objective: f,
		Step:      step,
	})
	return f, c
}

// accept marks the latest evaluation as accepted.
func (t *tracker) accept() {
	if n := len(t.perf.Evaluations); n > 0 {
		t.perf.Evaluations[n-1].Accepted = true
	}
}

// searchResult is what a search hands back to Fit.
type searchResult struct {
	fit        *candidate
	iterations int
	converged  bool
	reason     string
}

// patternSearch minimizes the objective over the box [lo, up] with
// multiplicative coordinate steps. D holds the current step factor of every
// parameter and ne the parameters that are free to move.
type patternSearch struct {
	t      *tracker
	lo, up []float64
	D      []float64
	ne     []int

	theta []float64
	f     float64
	fit   *candidate
}

func (s *patternSearch) try(tt []float64, step Step) bool {
	ff, c := s.t.eval(tt, step)
	if ff < s.f {
		s.theta, s.f, s.fit = tt, ff, c
		s.t.accept()
		return true
	}
	return false
}

func (s *patternSearch) run(theta0 []float64, maxIter int, tol float64) searchResult {
	p := len(theta0)
	s.D = make([]float64, p)
	t, ng := startPoint(theta0, s.lo, s.up)
	for j := range theta0 {
		s.D[j] = math.Pow(2, float64(j+1)/float64(p+2))
		if s.lo[j] == s.up[j] {
			s.D[j] = 1
		}
	}
	for j, d := range s.D {
		if d != 1 {
			s.ne = append(s.ne, j)
		}
	}

	d0 := append([]float64(nil), s.D...)
	s.theta, s.f = t, math.Inf(1)
	s.try(t, StepStart)
	if len(ng) > 1 {
		s.improveStart(ng)
	}

	minSweeps := 2
	if p > 2 {
		minSweeps = min(p, 4)
	}
	for iter := 1; iter <= maxIter; iter++ {
		fPrev := s.f
		th := s.theta
		s.explore()
		s.move(th)
		if s.t.stopped() {
			return searchResult{fit: s.fit, iterations: iter}
		}
		if s.fit == nil {
			copy(s.D, d0)
			if !s.escape() {
				return searchResult{iterations: iter, reason: "every theta up to the upper bounds was rejected"}
			}
			continue
		}
		if iter >= minSweeps && improvementBelow(fPrev, s.f, tol) {
			return searchResult{fit: s.fit, iterations: iter, converged: true, reason: "relative improvement below tolerance"}
		}
	}
	if s.fit == nil {
		return searchResult{iterations: maxIter, reason: "iteration limit reached before an accepted theta"}
	}
	return searchResult{fit: s.fit, iterations: maxIter, reason: "iteration limit reached"}
}

// startPoint replaces the components of theta0 outside [lo, up] by
// (lo·up⁷)^(1/8) and pins fixed components to their bound. It returns the
// start and the indices that were replaced.
func startPoint(theta0, lo, up []float64) ([]float64, []int) {
	t := make([]float64, len(theta0))
	var ng []int
	for j := range theta0 {
		t[j] = theta0[j]
		switch {
		case lo[j] == up[j]:
			t[j] = up[j]
		case t[j] < lo[j] || t[j] > up[j]:
			t[j] = math.Pow(lo[j]*math.Pow(up[j], 7), 1.0/8)
			ng = append(ng, j)
		}
	}
	return t, ng
}

// escape moves the search point halfway to the upper bounds in log space,
// where correlation between sites is weaker. It reports false once the point
// already sits on the upper bounds.
func (s *patternSearch) escape() bool {
	tt := make([]float64, len(s.theta))
	moved := false
	for j := range tt {
		tt[j] = clamp(math.Sqrt(s.theta[j]*s.up[j]), s.lo[j], s.up[j])
		moved = moved || tt[j] != s.theta[j]
	}
	if !moved {
		return false
	}
	if !s.try(tt, StepMove) {
		s.theta = tt
	}
	return true
}

// improvementBelow reports whether the objective moved less than tol
// relative to prev. The objective is computed on unit variance responses, so
// changes under eps are rounding noise.
func improvementBelow(prev, cur, tol float64) bool {
	if math.IsInf(prev, 1) {
		return math.IsInf(cur, 1)
	}
	return prev-cur <= tol*math.Abs(prev)+eps
}

// improveStart walks from the starting point towards the lower bounds along
// rays that favour one parameter at a time, then promotes the most productive
// parameter to the largest step factor.
func (s *patternSearch) improveStart(ng []int) {
	const d0, d1 = 16.0, 2.0
	p := len(s.theta)
	th, fh := s.theta, s.f
	jdom := 0
	for _, j := range ng {
		DD := make([]float64, p)
		for i := range DD {
			DD[i] = 1
		}
		for _, i := range ng {
			DD[i] = 1 / d1
		}
		DD[j] = 1 / d0

		alpha := math.Inf(1)
		for _, i := range ng {
			alpha = math.Min(alpha, math.Log(s.lo[i]/th[i])/math.Log(DD[i]))
		}
		alpha /= 5
		v := make([]float64, p)
		for i := range v {
			v[i] = math.Pow(DD[i], alpha)
		}

		tk, fk := th, fh
		for rept := 0; rept < 4; rept++ {
			tt := make([]float64, p)
			for i := range tt {
				tt[i] = clamp(tk[i]*v[i], s.lo[i], s.up[i])
			}
			ff, c := s.t.eval(tt, StepStart)
			if math.IsInf(ff, 1) || ff > fk {
				break
			}
			tk, fk = tt, ff
			if ff <= s.f {
				s.theta, s.f, s.fit = tt, ff, c
				s.t.accept()
				jdom = j
			}
		}
	}
	if jdom > 0 {
		s.D[0], s.D[jdom] = s.D[jdom], s.D[0]
	}
}

func (s *patternSearch) explore() {
	for _, j := range s.ne {
		DD := s.D[j]
		tt := append([]float64(nil), s.theta...)
		atBound := true
		switch s.theta[j] {
		case s.up[j]:
			tt[j] = s.theta[j] / math.Sqrt(DD)
		case s.lo[j]:
			tt[j] = s.theta[j] * math.Sqrt(DD)
		default:
			atBound = false
			tt[j] = s.theta[j] * DD
		}
		tt[j] = clamp(tt[j], s.lo[j], s.up[j])
		if s.try(tt, StepExplore) || atBound {
			continue
		}
		tt = append([]float64(nil), s.theta...)
		tt[j] = clamp(s.theta[j]/DD, s.lo[j], s.up[j])
		s.try(tt, StepExplore)
	}
}

// move repeats the net displacement of the last explore sweep, doubling it in
// log space after every success.
func (s *patternSearch) move(th []float64) {
	p := len(s.theta)
	v := make([]float64, p)
	same := true
	for j := range v {
		v[j] = s.theta[j] / th[j]
		if v[j] != 1 {
			same = false
		}
	}
	if same {
		s.rotate(0.2)
		return
	}
	for rep := 0; rep < maxMoveSteps; rep++ {
		tt := make([]float64, p)
		hit := false
		for j := range tt {
			tt[j] = clamp(s.theta[j]*v[j], s.lo[j], s.up[j])
			if s.lo[j] != s.up[j] && (tt[j] == s.lo[j] || tt[j] == s.up[j]) {
				hit = true
			}
		}
		if !s.try(tt, StepMove) {
			break
		}
		for j := range v {
			v[j] *= v[j]
		}
		if hit {
			break
		}
	}
	s.rotate(0.25)
}

// rotate cycles the step factors of the free parameters and shrinks them.
func (s *patternSearch) rotate(power float64) {
	if len(s.ne) == 0 {
		return
	}
	first := s.D[s.ne[0]]
	for k := 0; k < len(s.ne)-1; k++ {
		s.D[s.ne[k]] = s.D[s.ne[k+1]]
	}
	s.D[s.ne[len(s.ne)-1]] = first
	for _, j := range s.ne {
		s.D[j] = math.Pow(s.D[j], power)
	}
}

// nelderMead minimizes the objective over log θ with the gonum simplex
// method. Trial points are projected onto the box before evaluation.
func nelderMead(t *tracker, theta0, lo, up []float64, maxIter int, tol float64) (searchResult, error) {
	p := len(theta0)
	start, _ := startPoint(theta0, lo, up)
	x0 := make([]float64, p)
	for j := range x0 {
		x0[j] = math.Log(start[j])
	}
	project := func(y []float64) []float64 {
		th := make([]float64, p)
		for j := range th {
			th[j] = clamp(math.Exp(y[j]), lo[j], up[j])
		}
		return th
	}

	var best *candidate
	bestF := math.Inf(1)
	problem := optimize.Problem{
		Func: func(y []float64) float64 {
			f, c := t.eval(project(y), StepSimplex)
			if f < bestF {
				bestF, best = f, c
				t.accept()
			}
			if math.IsInf(f, 1) {
				return infeasiblePenalty
			}
			return f
		},
	}
	settings := &optimize.Settings{
		MajorIterations: 10 * maxIter,
		Converger: &optimize.FunctionConverge{
			Relative:   tol,
			Iterations: 2 * (p + 1),
		},
	}
	if deadline, ok := t.ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return searchResult{}, nil
		}
		settings.Runtime = remaining
	}

	res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{SimplexSize: 0.5})
	if res == nil {
		return searchResult{fit: best}, err
	}
	out := searchResult{
		fit:        best,
		iterations: res.Stats.MajorIterations,
		converged:  err == nil && !res.Status.Early(),
		reason:     res.Status.String(),
	}
	if out.converged {
		out.reason = "simplex converged: " + out.reason
	}
	return out, nil
}
