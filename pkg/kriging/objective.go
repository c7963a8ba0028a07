package kriging

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"dacekit/pkg/correlation"
	"dacekit/pkg/regression"
)

// illConditionedF is the condition number of F above which a singular G is
// blamed on the regression model rather than on θ.
const illConditionedF = 1e15

// Scaling holds the per-column centering and scaling constants applied to the
// design sites and responses before fitting.
type Scaling struct {
	SiteMean     []float64
	SiteStd      []float64
	ResponseMean []float64
	ResponseStd  []float64
}

// columnStats returns the mean and sample standard deviation of every column
// of a. A zero deviation is replaced by 1 so the column is only centered.
func columnStats(a *mat.Dense) (mean, std []float64) {
	n, c := a.Dims()
	mean = make([]float64, c)
	std = make([]float64, c)
	col := make([]float64, n)
	for j := 0; j < c; j++ {
		mat.Col(col, j, a)
		mean[j], std[j] = stat.MeanStdDev(col, nil)
		if std[j] == 0 || math.IsNaN(std[j]) {
			std[j] = 1
		}
	}
	return mean, std
}

func normalize(a *mat.Dense, mean, std []float64) *mat.Dense {
	n, c := a.Dims()
	out := mat.NewDense(n, c, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (a.At(i, j)-mean[j])/std[j])
		}
	}
	return out
}

// problem is the generalized least squares problem shared by every θ tried
// during one fit.
type problem struct {
	regr     regression.Basis
	corr     correlation.Family
	S        *mat.Dense // scaled sites, n×d
	Y        *mat.Dense // scaled responses, n×q
	F        *mat.Dense // regression matrix at S, n×p
	pairs    [][2]int
	diffs    [][]float64
	rcondTol float64
}

func newProblem(regr regression.Basis, corr correlation.Family, S, Y *mat.Dense, rcondTol float64) *problem {
	n, dim := S.Dims()
	pr := &problem{
		regr:     regr,
		corr:     corr,
		S:        S,
		Y:        Y,
		F:        regr.Matrix(S),
		rcondTol: rcondTol,
	}
	pr.pairs = make([][2]int, 0, n*(n-1)/2)
	pr.diffs = make([][]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := make([]float64, dim)
			for k := range d {
				d[k] = S.At(i, k) - S.At(j, k)
			}
			pr.pairs = append(pr.pairs, [2]int{i, j})
			pr.diffs = append(pr.diffs, d)
		}
	}
	return pr
}

// duplicate returns the first pair of sites whose scaled coordinates are
// within tol of each other in the max norm.
func (pr *problem) duplicate(tol float64) (int, int, bool) {
	for k, d := range pr.diffs {
		far := false
		for _, v := range d {
			if math.Abs(v) > tol {
				far = true
				break
			}
		}
		if !far {
			return pr.pairs[k][0], pr.pairs[k][1], true
		}
	}
	return 0, 0, false
}

// candidate is the fitted state for one θ.
type candidate struct {
	theta  []float64
	obj    float64
	C      *mat.TriDense // lower Cholesky factor of R
	Ft     *mat.Dense    // C⁻¹F
	G      *mat.TriDense // upper QR factor of Ft
	beta   *mat.Dense    // p×q, scaled
	gamma  *mat.Dense    // n×q, scaled
	sigma2 []float64     // scaled process variance per output
	condR  float64
}

// evaluate computes the objective for theta. A correlation matrix that cannot
// be factorized, or a singular projected regression matrix, yields a nil
// candidate so the search can move on. The only error is a regression matrix
// that is singular regardless of θ.
func (pr *problem) evaluate(theta []float64) (*candidate, error) {
	n, _ := pr.S.Dims()
	_, q := pr.Y.Dims()
	_, p := pr.F.Dims()

	mu := (10 + float64(n)) * eps
	R := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		R.SetSym(i, i, 1+mu)
	}
	for k, d := range pr.diffs {
		R.SetSym(pr.pairs[k][0], pr.pairs[k][1], pr.corr.Eval(theta, d))
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(R); !ok {
		return nil, nil
	}
	condR := chol.Cond()
	if 1/condR < pr.rcondTol || math.IsNaN(condR) {
		return nil, nil
	}
	C := mat.NewTriDense(n, mat.Lower, nil)
	chol.LTo(C)

	Ft := mat.DenseCopyOf(pr.F)
	solveTri(C, Ft, false)

	var qr mat.QR
	qr.Factorize(Ft)
	var Rq mat.Dense
	qr.RTo(&Rq)
	G := upperTri(&Rq, p)
	if 1/mat.Cond(G, 1) < 1e-10 {
		if mat.Cond(pr.F, 2) > illConditionedF {
			return nil, fmt.Errorf("%w: regression matrix is singular, poor combination of regression model and design sites", ErrIllConditionedDesign)
		}
		return nil, nil
	}

	var Q mat.Dense
	qr.QTo(&Q)
	Qp := Q.Slice(0, n, 0, p)

	Yt := mat.DenseCopyOf(pr.Y)
	solveTri(C, Yt, false)

	beta := mat.NewDense(p, q, nil)
	beta.Mul(Qp.T(), Yt)
	solveTri(G, beta, false)

	rho := mat.NewDense(n, q, nil)
	rho.Mul(Ft, beta)
	rho.Sub(Yt, rho)

	sigma2 := make([]float64, q)
	col := make([]float64, n)
	total := 0.0
	for l := 0; l < q; l++ {
		mat.Col(col, l, rho)
		sigma2[l] = sumSquares(col) / float64(n)
		total += sigma2[l]
	}
	detR := math.Exp(chol.LogDet() / float64(n))

	gamma := mat.DenseCopyOf(rho)
	solveTri(C, gamma, true)

	return &candidate{
		theta:  append([]float64(nil), theta...),
		obj:    total * detR,
		C:      C,
		Ft:     Ft,
		G:      G,
		beta:   beta,
		gamma:  gamma,
		sigma2: sigma2,
		condR:  condR,
	}, nil
}

const eps = 2.220446049250313e-16
