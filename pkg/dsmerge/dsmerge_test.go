package dsmerge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestMergeExactDuplicates(t *testing.T) {
	S := mat.NewDense(4, 1, []float64{0, 1, 1, 2})
	Y := mat.NewDense(4, 1, []float64{0, 1, 3, 4})
	mS, mY, err := Merge(S, Y, Options{})
	require.NoError(t, err)

	r, _ := mS.Dims()
	require.Equal(t, 3, r)
	assert.Equal(t, []float64{0, 1, 2}, mat.Col(nil, 0, mS))
	assert.Equal(t, []float64{0, 2, 4}, mat.Col(nil, 0, mY))
}

func TestMergeNothingToMerge(t *testing.T) {
	S := mat.NewDense(3, 2, []float64{0, 0, 1, 0, 0, 1})
	Y := mat.NewDense(3, 1, []float64{1, 2, 3})
	mS, mY, err := Merge(S, Y, Options{Tolerance: 0.5})
	require.NoError(t, err)
	assert.True(t, mat.Equal(S, mS))
	assert.True(t, mat.Equal(Y, mY))
}

func TestClustersNorms(t *testing.T) {
	// (0,0) and (0.6,0.6): L∞ 0.6, L2 ≈ 0.85, L1 1.2
	S := mat.NewDense(2, 2, []float64{0, 0, 0.6, 0.6})
	tests := []struct {
		norm Norm
		want int
	}{
		{LInf, 1},
		{L2, 1},
		{L1, 2},
	}
	for _, tt := range tests {
		got := Clusters(S, 0.9, tt.norm)
		assert.Len(t, got, tt.want, "norm %s", tt.norm)
	}
}

// TestClustersGreedyOrder checks that clusters are seeded in row order and
// rows are not shared between clusters.
func TestClustersGreedyOrder(t *testing.T) {
	S := mat.NewDense(5, 1, []float64{0, 0.4, 0.8, 5, 5.1})
	got := Clusters(S, 0.5, L2)
	assert.Equal(t, [][]int{{0, 1}, {2}, {3, 4}}, got)
}

func TestMergeRules(t *testing.T) {
	S := mat.NewDense(3, 1, []float64{0, 0.1, 0.2})
	Y := mat.NewDense(3, 1, []float64{1, 5, 3})

	tests := []struct {
		name      string
		opts      Options
		wantSite  float64
		wantValue float64
	}{
		{"mean", Options{Tolerance: 1}, 0.1, 3},
		{"median", Options{Tolerance: 1, SiteRule: Median, ResponseRule: Median}, 0.1, 3},
		{"center", Options{Tolerance: 1, SiteRule: Center, ResponseRule: Center}, 0.1, 5},
		{"min", Options{Tolerance: 1, ResponseRule: Min}, 0.1, 1},
		{"max", Options{Tolerance: 1, ResponseRule: Max}, 0.1, 5},
		{"weighted mean", Options{Tolerance: 1, Weights: []float64{2, 1, 1}}, 0.075, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mS, mY, err := Merge(S, Y, tt.opts)
			require.NoError(t, err)
			r, _ := mS.Dims()
			require.Equal(t, 1, r)
			assert.InDelta(t, tt.wantSite, mS.At(0, 0), 1e-12)
			assert.InDelta(t, tt.wantValue, mY.At(0, 0), 1e-12)
		})
	}
}

func TestMergeErrors(t *testing.T) {
	S := mat.NewDense(2, 1, []float64{0, 1})
	Y := mat.NewDense(2, 1, []float64{0, 1})

	_, _, err := Merge(S, mat.NewDense(3, 1, nil), Options{})
	assert.Error(t, err)
	_, _, err = Merge(S, Y, Options{Weights: []float64{1}})
	assert.Error(t, err)
	_, _, err = Merge(S, Y, Options{Tolerance: -1})
	assert.Error(t, err)
	_, _, err = Merge(S, Y, Options{SiteRule: Max})
	assert.Error(t, err)
	_, _, err = Merge(S, Y, Options{ResponseRule: Rule(42)})
	assert.Error(t, err)
}

func TestParse(t *testing.T) {
	for _, n := range []Norm{L1, L2, LInf} {
		got, err := ParseNorm(n.String())
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
	for r := range ruleNames {
		got, err := ParseRule(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseNorm("l3")
	assert.Error(t, err)
	_, err = ParseRule("mode")
	assert.Error(t, err)
}
