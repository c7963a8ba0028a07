package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"dacekit/internal/dataset"
	"dacekit/pkg/dsmerge"
	"dacekit/pkg/kriging"
	"dacekit/pkg/stl"
	"dacekit/pkg/visualization"
)

// fitFlags holds the fit settings that may override the configuration.
type fitFlags struct {
	regression  string
	correlation string
	theta0      []float64
	lower       []float64
	upper       []float64
	fixed       bool
	search      string
	maxIter     int
}

func (f *fitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.regression, "regression", "r", "", "Regression basis: poly0, poly1 or poly2")
	cmd.Flags().StringVarP(&f.correlation, "correlation", "k", "", "Correlation family, e.g. gauss, exp, expg, cubic, spline")
	cmd.Flags().Float64SliceVar(&f.theta0, "theta0", nil, "Start of the theta search (one value or one per dimension)")
	cmd.Flags().Float64SliceVar(&f.lower, "lower", nil, "Lower bounds for theta")
	cmd.Flags().Float64SliceVar(&f.upper, "upper", nil, "Upper bounds for theta")
	cmd.Flags().BoolVar(&f.fixed, "fixed", false, "Use theta0 as is without searching")
	cmd.Flags().StringVar(&f.search, "search", "", "Theta optimizer: pattern or neldermead")
	cmd.Flags().IntVar(&f.maxIter, "max-iter", 0, "Maximum number of search sweeps")
}

// apply copies the flags that were set on the command line into the fit
// section of the configuration.
func (f *fitFlags) apply(cmd *cobra.Command, a *app) error {
	fit := &a.cfg.Fit
	if cmd.Flags().Changed("regression") {
		fit.Regression = f.regression
	}
	if cmd.Flags().Changed("correlation") {
		fit.Correlation = f.correlation
	}
	if cmd.Flags().Changed("theta0") {
		fit.Theta0 = f.theta0
	}
	if cmd.Flags().Changed("lower") {
		fit.Lower = f.lower
	}
	if cmd.Flags().Changed("upper") {
		fit.Upper = f.upper
	}
	if f.fixed {
		fit.Lower, fit.Upper = nil, nil
	}
	if cmd.Flags().Changed("search") {
		fit.Search = f.search
	}
	if cmd.Flags().Changed("max-iter") {
		fit.MaxIterations = f.maxIter
	}
	return a.cfg.Validate()
}

func (a *app) fitCmd() *cobra.Command {
	var (
		flags    fitFlags
		data     string
		inputs   int
		mergeTol float64
		query    string
		out      string
		render   string
		mesh     string
		axes     []int
		quantity string
		output   int
	)
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a kriging model and optionally predict or render it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd, a); err != nil {
				return err
			}
			S, Y, _, err := readData(data, inputs)
			if err != nil {
				return err
			}
			if mergeTol > 0 {
				opts, err := a.cfg.MergeOptions()
				if err != nil {
					return err
				}
				opts.Tolerance = mergeTol
				opts.Logger = a.logger
				if S, Y, err = dsmerge.Merge(S, Y, opts); err != nil {
					return err
				}
			}

			model, perf, err := a.fit(cmd, S, Y)
			if err != nil {
				return err
			}
			printSummary(model, perf)

			if query != "" {
				if err := predictFile(model, query, out); err != nil {
					return err
				}
			}
			if render == "" && mesh == "" {
				return nil
			}
			q, err := visualization.ParseQuantity(quantity)
			if err != nil {
				return err
			}
			viewer, err := a.sliceViewer(model, axes, output)
			if err != nil {
				return err
			}
			if render != "" {
				img, err := viewer.ExtractSlice(q)
				if err != nil {
					return err
				}
				if err := viewer.SaveSlice(img, render); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Rendered %s of output %d to: %s\n", q, output, render)
			}
			if mesh != "" {
				triangles, err := viewer.ExtractMesh(q)
				if err != nil {
					return err
				}
				if err := stl.SaveToSTL(mesh, triangles); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Surface mesh with %d triangles saved to: %s\n", len(triangles), mesh)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&data, "data", "d", "", "CSV file with sites followed by responses")
	cmd.Flags().IntVarP(&inputs, "inputs", "i", 1, "Number of input columns")
	cmd.Flags().Float64Var(&mergeTol, "merge-tol", 0, "Merge sites within this distance before fitting")
	cmd.Flags().StringVarP(&query, "query", "q", "", "CSV file of points to predict")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Prediction CSV file (default: stdout)")
	cmd.Flags().StringVar(&render, "render", "", "Render a slice of the surface to this PNG or JPEG file")
	cmd.Flags().StringVar(&mesh, "mesh", "", "Export the same slice as a binary STL surface mesh")
	cmd.Flags().IntSliceVar(&axes, "axes", []int{0, 1}, "Input axes spanned by the rendered slice")
	cmd.Flags().StringVar(&quantity, "quantity", "value", "Rendered quantity: value or mse")
	cmd.Flags().IntVar(&output, "output-index", 0, "Response column to render")
	return cmd
}

// fit runs kriging.Fit with the configured settings.
func (a *app) fit(cmd *cobra.Command, S, Y *mat.Dense) (*kriging.Model, *kriging.Perf, error) {
	regr, err := a.cfg.Basis()
	if err != nil {
		return nil, nil, err
	}
	corr, err := a.cfg.Family()
	if err != nil {
		return nil, nil, err
	}
	_, dim := S.Dims()
	theta0, lower, upper, err := a.cfg.ThetaBox(dim)
	if err != nil {
		return nil, nil, err
	}
	opts, err := a.cfg.FitOptions()
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, kriging.WithLogger(a.logger))

	n, q := Y.Dims()
	fmt.Println("================================")
	fmt.Printf("Fitting %s/%s kriging model to %d sites (%d inputs, %d outputs)\n", regr, corr, n, dim, q)
	fmt.Println("================================")

	start := time.Now()
	model, perf, err := kriging.Fit(cmd.Context(), S, Y, regr, corr, theta0, lower, upper, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("fit failed: %w", err)
	}
	a.logger.Debug("fit finished", zap.Duration("elapsed", time.Since(start)))
	return model, perf, nil
}

func printSummary(model *kriging.Model, perf *kriging.Perf) {
	fmt.Printf("\nTheta: %s\n", formatFloats(model.Theta()))
	fmt.Printf("Objective: %.6g\n", perf.Objective)
	fmt.Printf("Process variance: %s\n", formatFloats(model.Sigma2()))
	fmt.Printf("Condition number of R: %.3g\n", model.Cond())
	fmt.Printf("Evaluations: %d (%d rejected), sweeps: %d\n", perf.Factorizations, perf.Rejected, perf.Iterations)
	if err := perf.Err(); err != nil {
		fmt.Printf("Warning: %v\n", err)
	} else {
		fmt.Printf("Search converged (%s)\n", perf.StopReason)
	}
}

// predictFile predicts every row of the query CSV and writes the points with
// their predictions and mean squared errors.
func predictFile(model *kriging.Model, query, out string) error {
	tab, err := dataset.ReadFile(query)
	if err != nil {
		return err
	}
	pred, err := model.Predict(tab.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", query, err)
	}
	header := append(dataset.Columns("x", model.Dim()), dataset.Columns("y", model.Outputs())...)
	header = append(header, dataset.Columns("mse", model.Outputs())...)
	return writeTable(out, header, tab.Data, pred.Values, pred.MSE)
}

// sliceViewer builds a viewer over a 2-D slice through the design box of the
// model. The coordinates off the slice are fixed at the mean design site.
func (a *app) sliceViewer(model *kriging.Model, axes []int, output int) (*visualization.Viewer, error) {
	if len(axes) != 2 {
		return nil, fmt.Errorf("expected two render axes, got %d", len(axes))
	}
	sites := model.Sites()
	n, dim := sites.Dims()
	col := make([]float64, n)
	base := make([]float64, dim)
	lo := make([]float64, dim)
	hi := make([]float64, dim)
	for j := 0; j < dim; j++ {
		mat.Col(col, j, sites)
		base[j] = stat.Mean(col, nil)
		lo[j], hi[j] = floats.Min(col), floats.Max(col)
	}

	ax, ay := axes[0], axes[1]
	if dim == 1 {
		ax, ay = 0, 0
	}
	if ax < 0 || ax >= dim || ay < 0 || ay >= dim {
		return nil, fmt.Errorf("render axes %v out of range for %d inputs", axes, dim)
	}
	params := visualization.SliceParams{
		AxisX:  ax,
		AxisY:  ay,
		Lower:  [2]float64{lo[ax], lo[ay]},
		Upper:  [2]float64{hi[ax], hi[ay]},
		Base:   base,
		Width:  a.cfg.Output.RenderWidth,
		Height: a.cfg.Output.RenderHeight,
		Output: output,
	}
	if dim == 1 {
		params.Upper[1] = params.Lower[1] + 1
		params.Height = 1
	}
	return visualization.NewViewer(model, params)
}

func formatFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.4g", x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
