package regression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSize(t *testing.T) {
	tests := []struct {
		basis Basis
		dim   int
		want  int
	}{
		{Constant, 3, 1},
		{Linear, 3, 4},
		{Quadratic, 1, 3},
		{Quadratic, 2, 6},
		{Quadratic, 3, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.basis.Size(tt.dim), "%s dim %d", tt.basis, tt.dim)
		x := make([]float64, tt.dim)
		assert.Len(t, tt.basis.Eval(x), tt.want)
	}
}

func TestQuadraticEval(t *testing.T) {
	f := Quadratic.Eval([]float64{2, 3})
	assert.Equal(t, []float64{1, 2, 3, 4, 6, 9}, f)
}

// TestJacobianMatchesFiniteDifference validates the analytic Jacobian.
func TestJacobianMatchesFiniteDifference(t *testing.T) {
	const h = 1e-6
	x := []float64{0.4, -1.2, 2.5}
	for _, b := range Bases() {
		df := b.Jacobian(x)
		r, c := df.Dims()
		require.Equal(t, len(x), r)
		require.Equal(t, b.Size(len(x)), c)
		for i := range x {
			up := append([]float64(nil), x...)
			dn := append([]float64(nil), x...)
			up[i] += h
			dn[i] -= h
			fu, fd := b.Eval(up), b.Eval(dn)
			for k := 0; k < c; k++ {
				assert.InDelta(t, (fu[k]-fd[k])/(2*h), df.At(i, k), 1e-6, "%s d f_%d / d x_%d", b, k, i)
			}
		}
	}
}

func TestHessians(t *testing.T) {
	hs := Quadratic.Hessians(2)
	require.Len(t, hs, 6)
	for k := 0; k < 3; k++ {
		assert.Nil(t, hs[k])
	}
	// x1², x1x2, x2²
	assert.Equal(t, 2.0, hs[3].At(0, 0))
	assert.Equal(t, 1.0, hs[4].At(0, 1))
	assert.Equal(t, 1.0, hs[4].At(1, 0))
	assert.Equal(t, 2.0, hs[5].At(1, 1))

	for _, h := range Linear.Hessians(2) {
		assert.Nil(t, h)
	}
}

func TestMatrix(t *testing.T) {
	S := mat.NewDense(3, 1, []float64{0, 1, 2})
	F := Quadratic.Matrix(S)
	want := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		1, 1, 1,
		1, 2, 4,
	})
	assert.True(t, mat.Equal(want, F))
}

func TestParse(t *testing.T) {
	for _, b := range Bases() {
		got, err := Parse(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}
	got, err := Parse("regpoly2")
	require.NoError(t, err)
	assert.Equal(t, Quadratic, got)
	_, err = Parse("cubic")
	assert.Error(t, err)
}
