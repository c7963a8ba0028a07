// Package regression provides the polynomial trend bases of the kriging model.
package regression

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Basis selects the polynomial regression model.
type Basis int

const (
	// Constant is the single term [1].
	Constant Basis = iota
	// Linear is [1, x₁, …, x_d].
	Linear
	// Quadratic is [1, x₁, …, x_d, x₁x₁, x₁x₂, …, x₁x_d, x₂x₂, …, x_d x_d].
	Quadratic
)

var basisNames = map[Basis]string{
	Constant:  "poly0",
	Linear:    "poly1",
	Quadratic: "poly2",
}

// Bases lists every supported basis in declaration order.
func Bases() []Basis {
	return []Basis{Constant, Linear, Quadratic}
}

func (b Basis) String() string {
	if name, ok := basisNames[b]; ok {
		return name
	}
	return fmt.Sprintf("Basis(%d)", int(b))
}

// Parse converts a basis name into a Basis. Accepted forms are the names
// returned by String, the "reg" prefixed toolbox names and the words
// constant, linear and quadratic.
func Parse(name string) (Basis, error) {
	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "reg")
	switch key {
	case "constant", "poly0":
		return Constant, nil
	case "linear", "poly1":
		return Linear, nil
	case "quadratic", "poly2":
		return Quadratic, nil
	}
	return 0, fmt.Errorf("unknown regression basis %q", name)
}

// Size returns the number of basis functions for a design of dimension dim.
func (b Basis) Size(dim int) int {
	switch b {
	case Constant:
		return 1
	case Linear:
		return 1 + dim
	case Quadratic:
		return (dim + 1) * (dim + 2) / 2
	}
	panic(fmt.Sprintf("regression: unknown basis %d", int(b)))
}

// Eval returns the basis row f(x).
func (b Basis) Eval(x []float64) []float64 {
	dim := len(x)
	f := make([]float64, 0, b.Size(dim))
	f = append(f, 1)
	if b == Constant {
		return f
	}
	f = append(f, x...)
	if b == Linear {
		return f
	}
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			f = append(f, x[i]*x[j])
		}
	}
	return f
}

// Jacobian returns the d×p matrix whose column k holds ∂f_k/∂x.
func (b Basis) Jacobian(x []float64) *mat.Dense {
	dim := len(x)
	p := b.Size(dim)
	df := mat.NewDense(dim, p, nil)
	if b == Constant {
		return df
	}
	for i := 0; i < dim; i++ {
		df.Set(i, 1+i, 1)
	}
	if b == Linear {
		return df
	}
	k := 1 + dim
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			// ∂(x_i x_j)/∂x_i = x_j, ∂(x_i x_j)/∂x_j = x_i
			df.Set(i, k, df.At(i, k)+x[j])
			df.Set(j, k, df.At(j, k)+x[i])
			k++
		}
	}
	return df
}

// Hessians returns the second derivative matrix of every basis function. The
// polynomials are at most quadratic so the Hessians do not depend on x; only
// the quadratic terms have non-zero entries, and nil is returned for the
// others.
func (b Basis) Hessians(dim int) []*mat.SymDense {
	h := make([]*mat.SymDense, b.Size(dim))
	if b != Quadratic {
		return h
	}
	k := 1 + dim
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			m := mat.NewSymDense(dim, nil)
			if i == j {
				m.SetSym(i, i, 2)
			} else {
				m.SetSym(i, j, 1)
			}
			h[k] = m
			k++
		}
	}
	return h
}

// Matrix evaluates the basis at every row of S and returns the n×p design
// matrix F.
func (b Basis) Matrix(S mat.Matrix) *mat.Dense {
	n, dim := S.Dims()
	F := mat.NewDense(n, b.Size(dim), nil)
	x := make([]float64, dim)
	for i := 0; i < n; i++ {
		mat.Row(x, i, S)
		F.SetRow(i, b.Eval(x))
	}
	return F
}
