package kriging

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// PointPrediction is the predictor evaluated at a single point.
type PointPrediction struct {
	// Value holds the predicted response of every output.
	Value []float64
	// Gradient is q×d; row l is the gradient of output l.
	Gradient *mat.Dense
	// MSE holds the estimated mean squared error of every output.
	MSE []float64
	// MSEGradient is q×d; row l is the gradient of MSE[l].
	MSEGradient *mat.Dense
	// Hessian holds the d×d second derivative of every output. It is only
	// set when WithCurvature is passed.
	Hessian []*mat.SymDense
}

// Prediction is the predictor evaluated at several points.
type Prediction struct {
	Values       *mat.Dense // m×q
	MSE          *mat.Dense // m×q
	Gradients    []*mat.Dense
	MSEGradients []*mat.Dense
	Hessians     [][]*mat.SymDense
}

// Predict evaluates the predictor at every row of X (m×d).
func (m *Model) Predict(X mat.Matrix, opts ...PredictOption) (*Prediction, error) {
	rows, cols := X.Dims()
	if cols != m.dim {
		return nil, fmt.Errorf("%w: points have dimension %d, model has %d", ErrDimensionMismatch, cols, m.dim)
	}
	var o predictOptions
	for _, opt := range opts {
		opt(&o)
	}
	out := &Prediction{
		Values:       mat.NewDense(rows, m.outputs, nil),
		MSE:          mat.NewDense(rows, m.outputs, nil),
		Gradients:    make([]*mat.Dense, rows),
		MSEGradients: make([]*mat.Dense, rows),
	}
	if o.curvature {
		out.Hessians = make([][]*mat.SymDense, rows)
	}
	x := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(x, i, X)
		pp := m.predictPoint(x, o)
		out.Values.SetRow(i, pp.Value)
		out.MSE.SetRow(i, pp.MSE)
		out.Gradients[i] = pp.Gradient
		out.MSEGradients[i] = pp.MSEGradient
		if o.curvature {
			out.Hessians[i] = pp.Hessian
		}
	}
	return out, nil
}

// PredictPoint evaluates the predictor at x.
func (m *Model) PredictPoint(x []float64, opts ...PredictOption) (*PointPrediction, error) {
	if len(x) != m.dim {
		return nil, fmt.Errorf("%w: point has dimension %d, model has %d", ErrDimensionMismatch, len(x), m.dim)
	}
	var o predictOptions
	for _, opt := range opts {
		opt(&o)
	}
	return m.predictPoint(x, o), nil
}

func (m *Model) scalePoint(x []float64) []float64 {
	xs := make([]float64, len(x))
	for j := range x {
		xs[j] = (x[j] - m.scaling.SiteMean[j]) / m.scaling.SiteStd[j]
	}
	return xs
}

// correlations returns r(x) against every site and the n×d matrix of its
// derivatives. When curv is set it also accumulates Σᵢ γᵢₗ ∂²rᵢ for every
// output.
func (m *Model) correlations(xs []float64, curv bool) ([]float64, *mat.Dense, []*mat.SymDense) {
	n := m.Len()
	r := make([]float64, n)
	dr := mat.NewDense(n, m.dim, nil)
	d := make([]float64, m.dim)
	var hsum []*mat.SymDense
	var hess *mat.SymDense
	if curv {
		hsum = make([]*mat.SymDense, m.outputs)
		for l := range hsum {
			hsum[l] = mat.NewSymDense(m.dim, nil)
		}
		hess = mat.NewSymDense(m.dim, nil)
	}
	for i := 0; i < n; i++ {
		for j := range d {
			d[j] = xs[j] - m.sites.At(i, j)
		}
		grad := dr.RawRowView(i)
		if !curv {
			r[i] = m.corr.EvalGrad(m.theta, d, grad)
			continue
		}
		r[i] = m.corr.EvalHess(m.theta, d, grad, hess)
		for l, h := range hsum {
			w := m.gamma.At(i, l)
			for j := 0; j < m.dim; j++ {
				for k := j; k < m.dim; k++ {
					h.SetSym(j, k, h.At(j, k)+w*hess.At(j, k))
				}
			}
		}
	}
	return r, dr, hsum
}

func (m *Model) predictPoint(x []float64, o predictOptions) *PointPrediction {
	xs := m.scalePoint(x)
	f := m.regr.Eval(xs)
	df := m.regr.Jacobian(xs)
	r, dr, hr := m.correlations(xs, o.curvature)
	n := len(r)
	p := len(f)
	q, d := m.outputs, m.dim
	sc := m.scaling

	pp := &PointPrediction{
		Value:       make([]float64, q),
		Gradient:    mat.NewDense(q, d, nil),
		MSE:         make([]float64, q),
		MSEGradient: mat.NewDense(q, d, nil),
	}

	for l := 0; l < q; l++ {
		y := 0.0
		for k := 0; k < p; k++ {
			y += f[k] * m.beta.At(k, l)
		}
		for i := 0; i < n; i++ {
			y += r[i] * m.gamma.At(i, l)
		}
		pp.Value[l] = sc.ResponseMean[l] + sc.ResponseStd[l]*y

		for j := 0; j < d; j++ {
			g := 0.0
			for k := 0; k < p; k++ {
				g += df.At(j, k) * m.beta.At(k, l)
			}
			for i := 0; i < n; i++ {
				g += dr.At(i, j) * m.gamma.At(i, l)
			}
			pp.Gradient.Set(l, j, g*sc.ResponseStd[l]/sc.SiteStd[j])
		}
	}

	if o.curvature {
		pp.Hessian = m.hessian(hr)
	}

	// mse = σ²(1 + |G⁻ᵀ(Ftᵀrt - f)|² - |rt|²) with rt = C⁻¹r
	rt := append([]float64(nil), r...)
	solveTriVec(m.C, rt, false)
	u := make([]float64, p)
	for k := 0; k < p; k++ {
		s := -f[k]
		for i := 0; i < n; i++ {
			s += m.Ft.At(i, k) * rt[i]
		}
		u[k] = s
	}
	v := append([]float64(nil), u...)
	solveTriVec(m.G, v, true)
	base := 1 + sumSquares(v) - sumSquares(rt)

	Gv := append([]float64(nil), v...)
	solveTriVec(m.G, Gv, false)
	a := make([]float64, n)
	for i := 0; i < n; i++ {
		s := -rt[i]
		for k := 0; k < p; k++ {
			s += m.Ft.At(i, k) * Gv[k]
		}
		a[i] = s
	}
	Cdr := mat.DenseCopyOf(dr)
	solveTri(m.C, Cdr, false)
	g := make([]float64, d)
	for j := 0; j < d; j++ {
		s := 0.0
		for i := 0; i < n; i++ {
			s += a[i] * Cdr.At(i, j)
		}
		for k := 0; k < p; k++ {
			s -= df.At(j, k) * Gv[k]
		}
		g[j] = s
	}

	for l := 0; l < q; l++ {
		pp.MSE[l] = m.clipMSE(m.sigma2[l]*base, l, x)
		for j := 0; j < d; j++ {
			pp.MSEGradient.Set(l, j, 2*m.sigma2[l]*g[j]/sc.SiteStd[j])
		}
	}
	return pp
}

// clipMSE returns mse, or zero when rounding made it negative.
func (m *Model) clipMSE(mse float64, output int, x []float64) float64 {
	if !(mse < 0) {
		return mse
	}
	m.logger.Debug("clipped negative mean squared error",
		zap.Float64("mse", mse),
		zap.Int("output", output),
		zap.Float64s("x", x))
	return 0
}

// hessian combines the regression and correlation second derivatives and
// rescales them to original units.
func (m *Model) hessian(hr []*mat.SymDense) []*mat.SymDense {
	d := m.dim
	hf := m.regr.Hessians(d)
	sc := m.scaling
	out := make([]*mat.SymDense, m.outputs)
	for l := range out {
		h := mat.NewSymDense(d, nil)
		for j := 0; j < d; j++ {
			for k := j; k < d; k++ {
				v := hr[l].At(j, k)
				for t, H := range hf {
					if H != nil {
						v += m.beta.At(t, l) * H.At(j, k)
					}
				}
				h.SetSym(j, k, v*sc.ResponseStd[l]/(sc.SiteStd[j]*sc.SiteStd[k]))
			}
		}
		out[l] = h
	}
	return out
}

// Covariance returns, for every output, the m×m joint predictive covariance
// of the points in X. Its diagonal equals the MSE returned by Predict.
func (m *Model) Covariance(X mat.Matrix) ([]*mat.SymDense, error) {
	rows, cols := X.Dims()
	if cols != m.dim {
		return nil, fmt.Errorf("%w: points have dimension %d, model has %d", ErrDimensionMismatch, cols, m.dim)
	}
	n := m.Len()
	_, p := m.Ft.Dims()

	xs := make([][]float64, rows)
	RT := mat.NewDense(n, rows, nil) // C⁻¹r for every point
	V := mat.NewDense(p, rows, nil)  // G⁻ᵀ(Ftᵀrt - f)
	x := make([]float64, cols)
	d := make([]float64, cols)
	for a := 0; a < rows; a++ {
		mat.Row(x, a, X)
		xs[a] = m.scalePoint(x)
		r := make([]float64, n)
		for i := 0; i < n; i++ {
			for j := range d {
				d[j] = xs[a][j] - m.sites.At(i, j)
			}
			r[i] = m.corr.Eval(m.theta, d)
		}
		RT.SetCol(a, r)
	}
	solveTri(m.C, RT, false)
	V.Mul(m.Ft.T(), RT)
	for a := 0; a < rows; a++ {
		f := m.regr.Eval(xs[a])
		for k := 0; k < p; k++ {
			V.Set(k, a, V.At(k, a)-f[k])
		}
	}
	solveTri(m.G, V, true)

	var K mat.Dense
	K.Mul(V.T(), V)
	var RR mat.Dense
	RR.Mul(RT.T(), RT)
	K.Sub(&K, &RR)
	for a := 0; a < rows; a++ {
		for b := a; b < rows; b++ {
			for j := range d {
				d[j] = xs[a][j] - xs[b][j]
			}
			K.Set(a, b, K.At(a, b)+m.corr.Eval(m.theta, d))
		}
	}

	out := make([]*mat.SymDense, m.outputs)
	for l := range out {
		c := mat.NewSymDense(rows, nil)
		for a := 0; a < rows; a++ {
			for b := a; b < rows; b++ {
				v := m.sigma2[l] * K.At(a, b)
				if a == b && v < 0 {
					v = 0
				}
				c.SetSym(a, b, v)
			}
		}
		out[l] = c
	}
	return out, nil
}
