package selection

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"dacekit/pkg/correlation"
	"dacekit/pkg/kriging"
	"dacekit/pkg/regression"
)

// testDesign returns a jittered 4×4 grid on [0,1]² with two outputs: a smooth
// nonlinear surface and a plane.
func testDesign() (*mat.Dense, *mat.Dense) {
	const k = 4
	S := mat.NewDense(k*k, 2, nil)
	Y := mat.NewDense(k*k, 2, nil)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			row := i*k + j
			x0 := float64(i)/(k-1) + 0.01*float64((row*7)%5)
			x1 := float64(j)/(k-1) + 0.01*float64((row*3)%4)
			S.SetRow(row, []float64{x0, x1})
			Y.SetRow(row, []float64{math.Sin(3*x0) + x1*x1, 2*x0 - x1 + 1})
		}
	}
	return S, Y
}

func TestCombinations(t *testing.T) {
	c := Combinations(
		[]regression.Basis{regression.Constant, regression.Linear},
		[]correlation.Family{correlation.Gaussian, correlation.Exponential, correlation.Cubic},
		nil)
	assert.Len(t, c, 6)
	for _, cand := range c {
		assert.Equal(t, AllOutputs, cand.Output)
	}

	c = Combinations([]regression.Basis{regression.Constant}, []correlation.Family{correlation.Gaussian}, []int{0, 1})
	require.Len(t, c, 2)
	assert.Equal(t, "poly0/gauss/1", c[1].String())
}

// TestCrossValidateLinearData verifies that a linear trend is recovered
// exactly from every leave-one-out fold.
func TestCrossValidateLinearData(t *testing.T) {
	S, Y := testDesign()
	n, _ := S.Dims()
	plane := mat.DenseCopyOf(Y.Slice(0, n, 1, 2))

	m, err := CrossValidate(context.Background(), S, plane, regression.Linear, correlation.Gaussian, []float64{2, 2}, 4)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, m.RMSE, 1e-6)
	assert.InDelta(t, 0.0, m.MaxError, 1e-6)
	assert.InDelta(t, 1.0, m.RSquared, 1e-6)
}

func TestCrossValidateErrors(t *testing.T) {
	S := mat.NewDense(2, 1, []float64{0, 1})
	Y := mat.NewDense(2, 1, []float64{0, 1})
	_, err := CrossValidate(context.Background(), S, Y, regression.Constant, correlation.Gaussian, []float64{1}, 1)
	assert.Error(t, err)

	_, err = CrossValidate(context.Background(), S, mat.NewDense(3, 1, nil), regression.Constant, correlation.Gaussian, []float64{1}, 1)
	assert.ErrorIs(t, err, kriging.ErrDimensionMismatch)
}

func TestRunRanksCandidates(t *testing.T) {
	S, Y := testDesign()
	var mu sync.Mutex
	var calls []int
	sel := NewSelector(&Params{
		Workers:       2,
		CrossValidate: true,
		Progress: func(completed, total int, message string) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, completed)
			assert.Equal(t, 5, total)
		},
	})

	candidates := Combinations(
		[]regression.Basis{regression.Constant, regression.Linear},
		[]correlation.Family{correlation.Gaussian, correlation.ExponentialPower},
		[]int{0})
	// an out-of-range output column fails without stopping the others
	candidates = append(candidates, Candidate{Regression: regression.Constant, Correlation: correlation.Gaussian, Output: 5})

	results, err := sel.Run(context.Background(), S, Y, candidates)
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, calls)

	for i := 0; i < 4; i++ {
		r := results[i]
		require.NoError(t, r.Err, r.Candidate.String())
		require.NotNil(t, r.Model)
		assert.Equal(t, 1, r.Model.Outputs())
		assert.GreaterOrEqual(t, r.Metrics.RMSE, 0.0)
		if i > 0 {
			assert.LessOrEqual(t, results[i-1].Metrics.RMSE, r.Metrics.RMSE)
		}
	}
	assert.Error(t, results[4].Err)
	assert.Equal(t, 5, results[4].Candidate.Output)
}

func TestRunByObjective(t *testing.T) {
	S, Y := testDesign()
	sel := NewSelector(&Params{Theta0: []float64{1}, Lower: []float64{0.1}, Upper: []float64{10}})
	results, err := sel.Run(context.Background(), S, Y, Combinations(
		[]regression.Basis{regression.Constant, regression.Linear},
		[]correlation.Family{correlation.Gaussian},
		nil))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, 2, r.Model.Outputs())
		assert.Len(t, r.Model.Theta(), 1)
	}
	assert.LessOrEqual(t, results[0].Perf.Objective, results[1].Perf.Objective)
}

func TestRunCancelled(t *testing.T) {
	S, Y := testDesign()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSelector(nil).Run(ctx, S, Y, Combinations(
		[]regression.Basis{regression.Constant},
		[]correlation.Family{correlation.Gaussian},
		nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRankFailuresLast(t *testing.T) {
	results := []Result{
		{Candidate: Candidate{Output: 0}, Err: assert.AnError},
		{Candidate: Candidate{Output: 1}, Perf: &kriging.Perf{Objective: 2}},
		{Candidate: Candidate{Output: 2}, Perf: &kriging.Perf{Objective: 1}},
	}
	Rank(results, false)
	assert.Equal(t, 2, results[0].Candidate.Output)
	assert.Equal(t, 1, results[1].Candidate.Output)
	assert.Equal(t, 0, results[2].Candidate.Output)
}
