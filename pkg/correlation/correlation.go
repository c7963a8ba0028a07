// Package correlation provides the stationary correlation families used by the
// kriging model. Every family is a separable product of one-dimensional
// factors, so the value, gradient and Hessian with respect to the coordinate
// differences can all be derived from the per-dimension factor and its first
// two derivatives.
package correlation

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Family selects the functional form of the correlation between two sites.
type Family int

const (
	// Linear decays linearly to zero at distance 1/θ.
	Linear Family = iota
	// Exponential is exp(-θ|d|).
	Exponential
	// ExponentialPower is exp(-θ|d|^p). The power p is carried as the last
	// element of θ and must lie in (0, 2].
	ExponentialPower
	// Gaussian is exp(-θd²).
	Gaussian
	// Cubic is a cubic polynomial decay reaching zero at θ|d| = 1.
	Cubic
	// Spline is a cubic spline decay reaching zero at θ|d| = 1.
	Spline
	// Spherical is the spherical model reaching zero at θ|d| = 1.
	Spherical
)

var familyNames = map[Family]string{
	Linear:           "lin",
	Exponential:      "exp",
	ExponentialPower: "expg",
	Gaussian:         "gauss",
	Cubic:            "cubic",
	Spline:           "spline",
	Spherical:        "spherical",
}

// Families lists every supported family in declaration order.
func Families() []Family {
	return []Family{Linear, Exponential, ExponentialPower, Gaussian, Cubic, Spline, Spherical}
}

// String returns the short name of the family.
func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

// Parse converts a family name into a Family. Both the short names returned by
// String and the "corr" prefixed names of the toolbox are accepted.
func Parse(name string) (Family, error) {
	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "corr")
	switch key {
	case "linear":
		key = "lin"
	case "exponential":
		key = "exp"
	case "gaussian":
		key = "gauss"
	}
	for f, n := range familyNames {
		if n == key {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown correlation family %q", name)
}

// ThetaLen returns the valid lengths of θ for a design of dimension dim: a
// per-dimension vector or a single shared value. ExponentialPower carries the
// power as an extra trailing element.
func (f Family) ThetaLen(dim int) []int {
	if f == ExponentialPower {
		if dim == 1 {
			return []int{2}
		}
		return []int{2, dim + 1}
	}
	if dim == 1 {
		return []int{1}
	}
	return []int{1, dim}
}

// Validate checks that θ has a valid length for dim and that its values are
// admissible for the family.
func (f Family) Validate(theta []float64, dim int) error {
	if _, ok := familyNames[f]; !ok {
		return fmt.Errorf("unknown correlation family %d", int(f))
	}
	valid := false
	for _, l := range f.ThetaLen(dim) {
		if len(theta) == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%s: theta has length %d, want one of %v", f, len(theta), f.ThetaLen(dim))
	}
	for i, t := range theta {
		if !(t > 0) || math.IsInf(t, 0) {
			return fmt.Errorf("%s: theta[%d] = %g must be positive and finite", f, i, t)
		}
	}
	if f == ExponentialPower {
		if p := theta[len(theta)-1]; p > 2 {
			return fmt.Errorf("%s: power %g must lie in (0, 2]", f, p)
		}
	}
	return nil
}

// params expands θ into per-dimension scale parameters and the power used by
// ExponentialPower.
func (f Family) params(theta []float64, dim int) (scale []float64, power float64) {
	t := theta
	if f == ExponentialPower {
		power = theta[len(theta)-1]
		t = theta[:len(theta)-1]
	}
	if len(t) == dim {
		return t, power
	}
	scale = make([]float64, dim)
	for i := range scale {
		scale[i] = t[0]
	}
	return scale, power
}

// factor evaluates the one-dimensional factor s(d) for scale θ together with
// its first and second derivatives with respect to the signed difference d.
func (f Family) factor(theta, power, d float64) (s, ds, dds float64) {
	a := math.Abs(d)
	sgn := 1.0
	if d < 0 {
		sgn = -1
	}
	if d == 0 {
		sgn = 0
	}

	switch f {
	case Linear:
		xi := theta * a
		if xi >= 1 {
			return 0, 0, 0
		}
		return 1 - xi, -theta * sgn, 0

	case Exponential:
		s = math.Exp(-theta * a)
		if d == 0 {
			return 1, 0, 0
		}
		return s, -theta * sgn * s, theta * theta * s

	case ExponentialPower:
		s = math.Exp(-theta * math.Pow(a, power))
		if d == 0 {
			if power == 2 {
				return 1, 0, -2 * theta
			}
			return 1, 0, 0
		}
		if s == 0 {
			return 0, 0, 0
		}
		ds = -power * theta * math.Pow(a, power-1) * sgn * s
		dds = ds*ds/s - power*(power-1)*theta*math.Pow(a, power-2)*s
		return s, ds, dds

	case Gaussian:
		s = math.Exp(-theta * d * d)
		return s, -2 * theta * d * s, (4*theta*theta*d*d - 2*theta) * s

	case Cubic:
		xi := theta * a
		if xi >= 1 {
			return 0, 0, 0
		}
		s = 1 - xi*xi*(3-2*xi)
		ds = 6 * theta * sgn * xi * (xi - 1)
		dds = 6 * theta * theta * (2*xi - 1)
		return s, ds, dds

	case Spline:
		xi := theta * a
		switch {
		case xi >= 1:
			return 0, 0, 0
		case xi <= 0.2:
			s = 1 - xi*xi*(15-30*xi)
			ds = theta * sgn * (-30*xi + 90*xi*xi)
			dds = theta * theta * (-30 + 180*xi)
		default:
			u := 1 - xi
			s = 1.25 * u * u * u
			ds = -3.75 * theta * sgn * u * u
			dds = 7.5 * theta * theta * u
		}
		return s, ds, dds

	case Spherical:
		xi := theta * a
		if xi >= 1 {
			return 0, 0, 0
		}
		s = 1 - xi*(1.5-0.5*xi*xi)
		ds = theta * sgn * 1.5 * (xi*xi - 1)
		if d == 0 {
			ds = 0
		}
		dds = 3 * theta * theta * xi
		return s, ds, dds
	}
	panic(fmt.Sprintf("correlation: unknown family %d", int(f)))
}

// Eval returns the correlation between two sites separated by d.
func (f Family) Eval(theta, d []float64) float64 {
	scale, power := f.params(theta, len(d))
	r := 1.0
	for j, dj := range d {
		s, _, _ := f.factor(scale[j], power, dj)
		if s == 0 {
			return 0
		}
		r *= s
	}
	return r
}

// EvalGrad returns the correlation for difference d and stores ∂r/∂dⱼ in grad,
// which must have length len(d).
func (f Family) EvalGrad(theta, d, grad []float64) float64 {
	n := len(d)
	if len(grad) != n {
		panic("correlation: gradient length mismatch")
	}
	scale, power := f.params(theta, n)
	s := make([]float64, n)
	ds := make([]float64, n)
	for j, dj := range d {
		s[j], ds[j], _ = f.factor(scale[j], power, dj)
	}

	// prefix/suffix products avoid dividing by factors that may be zero
	prefix := 1.0
	for j := 0; j < n; j++ {
		grad[j] = prefix
		prefix *= s[j]
	}
	suffix := 1.0
	for j := n - 1; j >= 0; j-- {
		grad[j] *= suffix * ds[j]
		suffix *= s[j]
	}
	return prefix
}

// EvalHess returns the correlation for difference d, stores the gradient in
// grad and the Hessian with respect to d in hess (n×n).
func (f Family) EvalHess(theta, d, grad []float64, hess *mat.SymDense) float64 {
	n := len(d)
	if len(grad) != n || hess.SymmetricDim() != n {
		panic("correlation: derivative shape mismatch")
	}
	scale, power := f.params(theta, n)
	s := make([]float64, n)
	ds := make([]float64, n)
	dds := make([]float64, n)
	for j, dj := range d {
		s[j], ds[j], dds[j] = f.factor(scale[j], power, dj)
	}

	productExcept := func(a, b int) float64 {
		p := 1.0
		for k := 0; k < n; k++ {
			if k != a && k != b {
				p *= s[k]
			}
		}
		return p
	}

	r := 1.0
	for _, v := range s {
		r *= v
	}
	for j := 0; j < n; j++ {
		rest := productExcept(j, j)
		grad[j] = ds[j] * rest
		hess.SetSym(j, j, dds[j]*rest)
		for k := j + 1; k < n; k++ {
			hess.SetSym(j, k, ds[j]*ds[k]*productExcept(j, k))
		}
	}
	return r
}

// Matrix builds the n×n correlation matrix between the rows of S. The result
// is symmetric with a unit diagonal.
func (f Family) Matrix(theta []float64, S mat.Matrix) *mat.SymDense {
	n, dim := S.Dims()
	R := mat.NewSymDense(n, nil)
	d := make([]float64, dim)
	for i := 0; i < n; i++ {
		R.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			for k := 0; k < dim; k++ {
				d[k] = S.At(i, k) - S.At(j, k)
			}
			R.SetSym(i, j, f.Eval(theta, d))
		}
	}
	return R
}
