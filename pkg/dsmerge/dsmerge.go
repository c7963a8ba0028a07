// Package dsmerge merges design sites that lie within a tolerance of each
// other so that a kriging fit does not see (near) duplicate rows.
package dsmerge

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"
)

// Norm selects the distance used to decide whether two sites coincide.
type Norm int

const (
	L2 Norm = iota
	L1
	LInf
)

func (n Norm) String() string {
	switch n {
	case L2:
		return "l2"
	case L1:
		return "l1"
	case LInf:
		return "linf"
	}
	return fmt.Sprintf("Norm(%d)", int(n))
}

// ParseNorm converts "1", "2", "inf" or the String form into a Norm.
func ParseNorm(name string) (Norm, error) {
	switch name {
	case "l2", "2", "":
		return L2, nil
	case "l1", "1":
		return L1, nil
	case "linf", "inf", "max":
		return LInf, nil
	}
	return 0, fmt.Errorf("unknown norm %q", name)
}

func (n Norm) distance(a, b []float64) float64 {
	switch n {
	case L1:
		return floats.Distance(a, b, 1)
	case LInf:
		return floats.Distance(a, b, math.Inf(1))
	}
	return floats.Distance(a, b, 2)
}

// Rule selects how the members of a cluster are combined.
type Rule int

const (
	// Mean takes the (weighted) mean of the cluster.
	Mean Rule = iota
	// Median takes the (weighted) median of the cluster.
	Median
	// Center takes the member closest to the cluster mean.
	Center
	// Min takes the smallest value. Only valid for responses.
	Min
	// Max takes the largest value. Only valid for responses.
	Max
)

var ruleNames = map[Rule]string{
	Mean:   "mean",
	Median: "median",
	Center: "center",
	Min:    "min",
	Max:    "max",
}

func (r Rule) String() string {
	if name, ok := ruleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Rule(%d)", int(r))
}

// ParseRule converts a rule name into a Rule.
func ParseRule(name string) (Rule, error) {
	if name == "" {
		return Mean, nil
	}
	for r, n := range ruleNames {
		if n == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown merge rule %q", name)
}

// Options configures Merge. The zero value merges exact duplicates with the
// Euclidean norm and averages both sites and responses.
type Options struct {
	// Tolerance is the largest distance at which two sites are merged.
	Tolerance float64
	Norm      Norm
	// Weights optionally weights every row in the Mean and Median rules.
	Weights      []float64
	SiteRule     Rule
	ResponseRule Rule
	Logger       *zap.Logger
}

// site is a design site stored in the k-d tree.
type site struct {
	x   []float64
	idx int
}

// Compare implements kdtree.Comparable.
func (p site) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(site)
	return p.x[d] - q.x[d]
}

func (p site) Dims() int { return len(p.x) }

// Distance returns the squared Euclidean distance.
func (p site) Distance(c kdtree.Comparable) float64 {
	q := c.(site)
	var sum float64
	for i, v := range p.x {
		d := v - q.x[i]
		sum += d * d
	}
	return sum
}

// sites satisfies kdtree.Interface.
type sites []site

func (p sites) Index(i int) kdtree.Comparable         { return p[i] }
func (p sites) Len() int                              { return len(p) }
func (p sites) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p sites) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(sitePlane{sites: p, Dim: d}, kdtree.MedianOfRandoms(sitePlane{sites: p, Dim: d}, 100))
}

// sitePlane sorts sites along one dimension.
type sitePlane struct {
	sites
	kdtree.Dim
}

func (p sitePlane) Less(i, j int) bool { return p.sites[i].x[p.Dim] < p.sites[j].x[p.Dim] }
func (p sitePlane) Swap(i, j int)      { p.sites[i], p.sites[j] = p.sites[j], p.sites[i] }
func (p sitePlane) Slice(start, end int) kdtree.SortSlicer {
	return sitePlane{sites: p.sites[start:end], Dim: p.Dim}
}

// Clusters groups the rows of S. Rows are visited in order; every row not yet
// assigned starts a cluster holding itself and all unassigned rows within
// tol of it. The returned clusters list row indices in ascending order.
func Clusters(S mat.Matrix, tol float64, norm Norm) [][]int {
	n, dim := S.Dims()
	points := make(sites, n)
	for i := range points {
		x := make([]float64, dim)
		mat.Row(x, i, S)
		points[i] = site{x: x, idx: i}
	}
	byRow := append(sites(nil), points...)
	tree := kdtree.New(points, false)

	// L1 balls lie inside the L2 ball of the same radius, L∞ balls inside the
	// L2 ball of radius r√d.
	radius := tol
	if norm == LInf {
		radius *= math.Sqrt(float64(dim))
	}
	r2 := radius * radius * (1 + 1e-12)

	assigned := make([]bool, n)
	var clusters [][]int
	for i, p := range byRow {
		if assigned[i] {
			continue
		}
		keeper := kdtree.NewDistKeeper(r2)
		tree.NearestSet(keeper, p)
		members := []int{i}
		assigned[i] = true
		for _, item := range keeper.Heap {
			if item.Comparable == nil {
				continue
			}
			q := item.Comparable.(site)
			if assigned[q.idx] || norm.distance(p.x, q.x) > tol {
				continue
			}
			assigned[q.idx] = true
			members = append(members, q.idx)
		}
		sort.Ints(members)
		clusters = append(clusters, members)
	}
	return clusters
}

// Merge combines the rows of S (n×d) and Y (n×q) whose sites lie within
// opts.Tolerance of each other. The merged rows keep the order of the first
// member of every cluster.
func Merge(S, Y *mat.Dense, opts Options) (*mat.Dense, *mat.Dense, error) {
	n, dim := S.Dims()
	nY, q := Y.Dims()
	if n != nY {
		return nil, nil, fmt.Errorf("dsmerge: %d sites but %d responses", n, nY)
	}
	if opts.Weights != nil && len(opts.Weights) != n {
		return nil, nil, fmt.Errorf("dsmerge: %d weights for %d rows", len(opts.Weights), n)
	}
	if opts.Tolerance < 0 {
		return nil, nil, fmt.Errorf("dsmerge: negative tolerance %g", opts.Tolerance)
	}
	if opts.SiteRule == Min || opts.SiteRule == Max {
		return nil, nil, fmt.Errorf("dsmerge: rule %s cannot be applied to sites", opts.SiteRule)
	}
	if _, ok := ruleNames[opts.SiteRule]; !ok {
		return nil, nil, fmt.Errorf("dsmerge: unknown site rule %d", int(opts.SiteRule))
	}
	if _, ok := ruleNames[opts.ResponseRule]; !ok {
		return nil, nil, fmt.Errorf("dsmerge: unknown response rule %d", int(opts.ResponseRule))
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("dsmerge")

	clusters := Clusters(S, opts.Tolerance, opts.Norm)
	mS := mat.NewDense(len(clusters), dim, nil)
	mY := mat.NewDense(len(clusters), q, nil)
	for c, members := range clusters {
		w := subset(opts.Weights, members)
		center := members[0]
		if len(members) > 1 {
			center = centerRow(S, members, w)
		}
		for j := 0; j < dim; j++ {
			mS.Set(c, j, combine(column(S, j, members), w, opts.SiteRule, S.At(center, j)))
		}
		for j := 0; j < q; j++ {
			mY.Set(c, j, combine(column(Y, j, members), w, opts.ResponseRule, Y.At(center, j)))
		}
	}
	logger.Debug("merged design sites",
		zap.Int("rows", n),
		zap.Int("merged", len(clusters)),
		zap.Float64("tolerance", opts.Tolerance),
		zap.Stringer("norm", opts.Norm))
	return mS, mY, nil
}

func subset(w []float64, idx []int) []float64 {
	if w == nil {
		return nil
	}
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = w[i]
	}
	return out
}

func column(a mat.Matrix, j int, idx []int) []float64 {
	out := make([]float64, len(idx))
	for k, i := range idx {
		out[k] = a.At(i, j)
	}
	return out
}

// centerRow returns the member of the cluster closest, in the Euclidean norm,
// to its (weighted) mean site.
func centerRow(S mat.Matrix, members []int, w []float64) int {
	_, dim := S.Dims()
	mean := make([]float64, dim)
	for j := range mean {
		mean[j] = stat.Mean(column(S, j, members), w)
	}
	best, bestDist := members[0], math.Inf(1)
	x := make([]float64, dim)
	for _, i := range members {
		mat.Row(x, i, S)
		if d := floats.Distance(x, mean, 2); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func combine(x, w []float64, rule Rule, center float64) float64 {
	switch rule {
	case Median:
		return median(x, w)
	case Center:
		return center
	case Min:
		return floats.Min(x)
	case Max:
		return floats.Max(x)
	}
	return stat.Mean(x, w)
}

// median returns the (weighted) empirical median. The weights follow their
// values through the sort.
func median(x, w []float64) float64 {
	x = append([]float64(nil), x...)
	if w == nil {
		sort.Float64s(x)
		return stat.Quantile(0.5, stat.Empirical, x, nil)
	}
	inds := make([]int, len(x))
	floats.Argsort(x, inds)
	sw := make([]float64, len(w))
	for k, i := range inds {
		sw[k] = w[i]
	}
	return stat.Quantile(0.5, stat.Empirical, x, sw)
}
