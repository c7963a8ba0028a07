package kriging

import (
	"math"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/mat"
)

// solveTri overwrites b with T⁻¹b, or T⁻ᵀb when trans is set.
func solveTri(t *mat.TriDense, b *mat.Dense, trans bool) {
	tA := blas.NoTrans
	if trans {
		tA = blas.Trans
	}
	blas64.Trsm(blas.Left, tA, 1, t.RawTriangular(), b.RawMatrix())
}

// solveTriVec overwrites x with T⁻¹x, or T⁻ᵀx when trans is set.
func solveTriVec(t *mat.TriDense, x []float64, trans bool) {
	tA := blas.NoTrans
	if trans {
		tA = blas.Trans
	}
	blas64.Trsv(tA, t.RawTriangular(), blas64.Vector{N: len(x), Inc: 1, Data: x})
}

// upperTri copies the leading p×p upper triangle of a into a new TriDense.
func upperTri(a mat.Matrix, p int) *mat.TriDense {
	t := mat.NewTriDense(p, mat.Upper, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			t.SetTri(i, j, a.At(i, j))
		}
	}
	return t
}

func clamp[T constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sumSquares(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v * v
	}
	return s
}

func allFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
