package correlation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func thetaFor(f Family, dim int) []float64 {
	theta := make([]float64, dim)
	for i := range theta {
		theta[i] = 0.7 + 0.3*float64(i)
	}
	if f == ExponentialPower {
		theta = append(theta, 1.6)
	}
	return theta
}

// TestUnitAtZero verifies every family returns correlation 1 at zero distance.
func TestUnitAtZero(t *testing.T) {
	for _, f := range Families() {
		t.Run(f.String(), func(t *testing.T) {
			d := []float64{0, 0, 0}
			grad := make([]float64, 3)
			r := f.EvalGrad(thetaFor(f, 3), d, grad)
			assert.Equal(t, 1.0, r)
			for _, g := range grad {
				assert.False(t, math.IsNaN(g))
				assert.Equal(t, 0.0, g)
			}
		})
	}
}

// TestRange verifies correlations stay within [0, 1] across a sweep of distances.
func TestRange(t *testing.T) {
	for _, f := range Families() {
		theta := thetaFor(f, 2)
		for x := -4.0; x <= 4.0; x += 0.05 {
			for y := -4.0; y <= 4.0; y += 0.5 {
				r := f.Eval(theta, []float64{x, y})
				if r < 0 || r > 1 || math.IsNaN(r) {
					t.Fatalf("%s: correlation %g outside [0, 1] at (%g, %g)", f, r, x, y)
				}
			}
		}
	}
}

// TestCompactSupport checks the piecewise families reach zero beyond θ|d| = 1.
func TestCompactSupport(t *testing.T) {
	for _, f := range []Family{Linear, Cubic, Spline, Spherical} {
		theta := []float64{2}
		assert.Equal(t, 0.0, f.Eval(theta, []float64{0.5}), f.String())
		assert.Equal(t, 0.0, f.Eval(theta, []float64{-3}), f.String())

		grad := []float64{0}
		f.EvalGrad(theta, []float64{0.5}, grad)
		assert.Equal(t, 0.0, grad[0], "%s derivative at the boundary", f)
	}
}

// TestKnownValues compares against closed-form values.
func TestKnownValues(t *testing.T) {
	tests := []struct {
		name   string
		family Family
		theta  []float64
		d      []float64
		want   float64
	}{
		{"gauss", Gaussian, []float64{1}, []float64{1}, math.Exp(-1)},
		{"gauss 2d", Gaussian, []float64{1, 2}, []float64{1, -0.5}, math.Exp(-1 - 0.5)},
		{"exp", Exponential, []float64{0.5}, []float64{-2}, math.Exp(-1)},
		{"expg p=2 matches gauss", ExponentialPower, []float64{1.5, 2}, []float64{0.3}, math.Exp(-1.5 * 0.09)},
		{"expg p=1 matches exp", ExponentialPower, []float64{1.5, 1}, []float64{0.3}, math.Exp(-1.5 * 0.3)},
		{"lin", Linear, []float64{0.5}, []float64{1}, 0.5},
		{"cubic", Cubic, []float64{1}, []float64{0.5}, 0.5},
		{"spline continuity", Spline, []float64{1}, []float64{0.2}, 0.64},
		{"spherical", Spherical, []float64{1}, []float64{0.5}, 1 - 0.75 + 0.0625},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.family.Eval(tt.theta, tt.d), 1e-12)
		})
	}
}

// TestGradientMatchesFiniteDifference validates the analytic gradient of the
// smooth region of each family.
func TestGradientMatchesFiniteDifference(t *testing.T) {
	const h = 1e-6
	d := []float64{0.31, -0.17, 0.08}
	for _, f := range Families() {
		t.Run(f.String(), func(t *testing.T) {
			theta := thetaFor(f, 3)
			grad := make([]float64, 3)
			f.EvalGrad(theta, d, grad)
			for j := range d {
				up := append([]float64(nil), d...)
				dn := append([]float64(nil), d...)
				up[j] += h
				dn[j] -= h
				fd := (f.Eval(theta, up) - f.Eval(theta, dn)) / (2 * h)
				assert.InDelta(t, fd, grad[j], 1e-6, "component %d", j)
			}
		})
	}
}

// TestHessianMatchesFiniteDifference validates EvalHess against differences of
// the analytic gradient.
func TestHessianMatchesFiniteDifference(t *testing.T) {
	const h = 1e-6
	d := []float64{0.31, -0.17}
	for _, f := range []Family{Gaussian, Exponential, ExponentialPower, Cubic, Spline, Spherical} {
		t.Run(f.String(), func(t *testing.T) {
			theta := thetaFor(f, 2)
			grad := make([]float64, 2)
			hess := mat.NewSymDense(2, nil)
			r := f.EvalHess(theta, d, grad, hess)
			assert.InDelta(t, f.Eval(theta, d), r, 1e-14)

			for j := range d {
				up := append([]float64(nil), d...)
				dn := append([]float64(nil), d...)
				up[j] += h
				dn[j] -= h
				gu := make([]float64, 2)
				gd := make([]float64, 2)
				f.EvalGrad(theta, up, gu)
				f.EvalGrad(theta, dn, gd)
				for k := range d {
					fd := (gu[k] - gd[k]) / (2 * h)
					assert.InDelta(t, fd, hess.At(j, k), 1e-5, "entry (%d,%d)", j, k)
				}
			}
		})
	}
}

// TestMatrixSymmetricUnitDiagonal checks the correlation matrix invariant for
// a range of θ values.
func TestMatrixSymmetricUnitDiagonal(t *testing.T) {
	S := mat.NewDense(5, 2, []float64{
		0, 0,
		0.3, 0.1,
		0.9, 0.4,
		0.2, 0.8,
		0.6, 0.6,
	})
	for _, f := range Families() {
		for _, scale := range []float64{0.01, 0.5, 3, 100} {
			theta := []float64{scale, scale}
			if f == ExponentialPower {
				theta = append(theta, 1.5)
			}
			R := f.Matrix(theta, S)
			for i := 0; i < 5; i++ {
				require.Equal(t, 1.0, R.At(i, i), "%s diagonal", f)
				for j := 0; j < 5; j++ {
					require.Equal(t, R.At(i, j), R.At(j, i), "%s symmetry", f)
				}
			}
		}
	}
}

func TestSharedTheta(t *testing.T) {
	d := []float64{0.4, 0.9}
	assert.Equal(t, Gaussian.Eval([]float64{2, 2}, d), Gaussian.Eval([]float64{2}, d))
	assert.Equal(t, ExponentialPower.Eval([]float64{2, 2, 1.5}, d), ExponentialPower.Eval([]float64{2, 1.5}, d))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Gaussian.Validate([]float64{1}, 3))
	assert.NoError(t, Gaussian.Validate([]float64{1, 2, 3}, 3))
	assert.Error(t, Gaussian.Validate([]float64{1, 2}, 3))
	assert.Error(t, Gaussian.Validate([]float64{0}, 1))
	assert.NoError(t, ExponentialPower.Validate([]float64{1, 1, 1.9}, 2))
	assert.Error(t, ExponentialPower.Validate([]float64{1, 2.5}, 2))
	assert.Error(t, Family(42).Validate([]float64{1}, 1))
}

func TestParse(t *testing.T) {
	for _, f := range Families() {
		got, err := Parse(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	got, err := Parse("corrgauss")
	require.NoError(t, err)
	assert.Equal(t, Gaussian, got)

	_, err = Parse("matern")
	assert.Error(t, err)
}
