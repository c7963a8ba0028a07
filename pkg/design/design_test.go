package design

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// TestLatinHypercubeStratified verifies that every axis slice holds exactly
// one site.
func TestLatinHypercubeStratified(t *testing.T) {
	const n, dim = 20, 3
	S := LatinHypercubeSample(n, dim, rand.New(rand.NewSource(7)))
	r, c := S.Dims()
	require.Equal(t, n, r)
	require.Equal(t, dim, c)
	for j := 0; j < dim; j++ {
		seen := make([]bool, n)
		for i := 0; i < n; i++ {
			v := S.At(i, j)
			require.GreaterOrEqual(t, v, 0.0)
			require.Less(t, v, 1.0)
			slot := int(v * n)
			assert.False(t, seen[slot], "axis %d slice %d used twice", j, slot)
			seen[slot] = true
		}
	}
}

func TestLatinHypercubeReproducible(t *testing.T) {
	a := LatinHypercubeSample(10, 2, rand.New(rand.NewSource(42)))
	b := LatinHypercubeSample(10, 2, rand.New(rand.NewSource(42)))
	assert.True(t, mat.Equal(a, b))
}

func TestScaledLatinHypercube(t *testing.T) {
	lower := []float64{-5, 10}
	upper := []float64{5, 12}
	S, err := ScaledLatinHypercube(15, lower, upper, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	for i := 0; i < 15; i++ {
		for j := range lower {
			assert.GreaterOrEqual(t, S.At(i, j), lower[j])
			assert.LessOrEqual(t, S.At(i, j), upper[j])
		}
	}

	_, err = ScaledLatinHypercube(5, []float64{1}, []float64{0}, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestGridSample(t *testing.T) {
	S, err := GridSample([]float64{0, 10}, []float64{1, 20}, []int{3, 2})
	require.NoError(t, err)
	want := mat.NewDense(6, 2, []float64{
		0, 10,
		0.5, 10,
		1, 10,
		0, 20,
		0.5, 20,
		1, 20,
	})
	assert.True(t, mat.EqualApprox(want, S, 1e-12))
}

func TestGridSampleSinglePoint(t *testing.T) {
	S, err := GridSample([]float64{0, 2}, []float64{4, 2}, []int{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2}, S.RawRowView(0))
}

func TestGridSampleErrors(t *testing.T) {
	_, err := GridSample([]float64{0}, []float64{1}, []int{2, 2})
	assert.Error(t, err)
	_, err = GridSample([]float64{0}, []float64{1}, []int{0})
	assert.Error(t, err)
	_, err = GridSample([]float64{0, 0}, []float64{1}, []int{2, 2})
	assert.Error(t, err)
}

func TestParseMethod(t *testing.T) {
	for _, m := range []Method{LatinHypercube, Grid} {
		got, err := ParseMethod(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMethod("sobol")
	assert.Error(t, err)
}
