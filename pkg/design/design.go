// Package design generates experimental designs: the sets of sites at which
// an expensive model is evaluated before a kriging surrogate is fitted.
package design

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Method selects a design generator.
type Method int

const (
	// LatinHypercube draws a random Latin hypercube sample.
	LatinHypercube Method = iota
	// Grid places sites on a regular rectangular grid.
	Grid
)

func (m Method) String() string {
	switch m {
	case LatinHypercube:
		return "lhs"
	case Grid:
		return "grid"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod converts a method name into a Method.
func ParseMethod(name string) (Method, error) {
	switch name {
	case "lhs", "lhsamp", "latin", "latinhypercube":
		return LatinHypercube, nil
	case "grid", "gridsamp":
		return Grid, nil
	}
	return 0, fmt.Errorf("unknown design method %q", name)
}

// NewRand returns a random source seeded with seed, or with the current time
// when seed is zero.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// LatinHypercubeSample draws n sites in the unit hypercube [0,1]^dim such that
// every one of the n equal slices of every axis holds exactly one site.
//
// Parameters:
//   - n: number of sites
//   - dim: dimension of the sites
//   - rng: random source; the sample is reproducible for a given seed
//
// Returns:
//   - n×dim matrix of sites
func LatinHypercubeSample(n, dim int, rng *rand.Rand) *mat.Dense {
	S := mat.NewDense(n, dim, nil)
	for j := 0; j < dim; j++ {
		perm := rng.Perm(n)
		for i := 0; i < n; i++ {
			// slice perm[i] of n, at a uniform offset within the slice
			S.Set(i, j, (float64(perm[i])+rng.Float64())/float64(n))
		}
	}
	return S
}

// ScaledLatinHypercube draws a Latin hypercube sample in the box
// [lower, upper].
func ScaledLatinHypercube(n int, lower, upper []float64, rng *rand.Rand) (*mat.Dense, error) {
	if err := checkBox(lower, upper); err != nil {
		return nil, err
	}
	S := LatinHypercubeSample(n, len(lower), rng)
	width := make([]float64, len(lower))
	floats.SubTo(width, upper, lower)
	row := make([]float64, len(lower))
	for i := 0; i < n; i++ {
		mat.Row(row, i, S)
		floats.Mul(row, width)
		floats.Add(row, lower)
		S.SetRow(i, row)
	}
	return S, nil
}

// GridSample places sites on a rectangular grid spanning [lower, upper] with
// counts[j] points along axis j. The first coordinate varies fastest. An axis
// with a single point uses the midpoint of its range.
func GridSample(lower, upper []float64, counts []int) (*mat.Dense, error) {
	if err := checkBox(lower, upper); err != nil {
		return nil, err
	}
	if len(counts) != len(lower) {
		return nil, fmt.Errorf("grid: %d counts for %d dimensions", len(counts), len(lower))
	}
	dim := len(lower)
	axes := make([][]float64, dim)
	total := 1
	for j, c := range counts {
		if c < 1 {
			return nil, fmt.Errorf("grid: count %d on axis %d must be positive", c, j)
		}
		if c == 1 {
			axes[j] = []float64{(lower[j] + upper[j]) / 2}
		} else {
			axes[j] = make([]float64, c)
			floats.Span(axes[j], lower[j], upper[j])
		}
		if total > math.MaxInt32/c {
			return nil, fmt.Errorf("grid: too many points")
		}
		total *= c
	}

	S := mat.NewDense(total, dim, nil)
	idx := make([]int, dim)
	for i := 0; i < total; i++ {
		for j := 0; j < dim; j++ {
			S.Set(i, j, axes[j][idx[j]])
		}
		// odometer increment, first axis fastest
		for j := 0; j < dim; j++ {
			idx[j]++
			if idx[j] < counts[j] {
				break
			}
			idx[j] = 0
		}
	}
	return S, nil
}

func checkBox(lower, upper []float64) error {
	if len(lower) == 0 {
		return fmt.Errorf("design: empty bounds")
	}
	if len(lower) != len(upper) {
		return fmt.Errorf("design: lower has %d entries, upper has %d", len(lower), len(upper))
	}
	for j := range lower {
		if !(lower[j] <= upper[j]) {
			return fmt.Errorf("design: lower[%d] = %g exceeds upper[%d] = %g", j, lower[j], j, upper[j])
		}
	}
	return nil
}
