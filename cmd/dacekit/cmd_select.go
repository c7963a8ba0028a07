package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dacekit/pkg/correlation"
	"dacekit/pkg/regression"
	"dacekit/pkg/selection"
)

func (a *app) selectCmd() *cobra.Command {
	var (
		data          string
		inputs        int
		regressions   []string
		correlations  []string
		perOutput     bool
		crossValidate bool
		top           int
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Fit every regression/correlation combination in parallel and rank them",
		RunE: func(cmd *cobra.Command, args []string) error {
			S, Y, _, err := readData(data, inputs)
			if err != nil {
				return err
			}
			bases, err := parseBases(regressions)
			if err != nil {
				return err
			}
			families, err := parseFamilies(correlations)
			if err != nil {
				return err
			}
			var outputs []int
			if perOutput {
				_, q := Y.Dims()
				for j := 0; j < q; j++ {
					outputs = append(outputs, j)
				}
			}
			candidates := selection.Combinations(bases, families, outputs)

			fitOpts, err := a.cfg.FitOptions()
			if err != nil {
				return err
			}
			params := &selection.Params{
				Theta0:        a.cfg.Fit.Theta0,
				Lower:         a.cfg.Fit.Lower,
				Upper:         a.cfg.Fit.Upper,
				Workers:       a.cfg.Processing.NumCores,
				CrossValidate: crossValidate,
				FitOptions:    fitOpts,
				Logger:        a.logger,
				Progress: func(completed, total int, message string) {
					fmt.Fprintf(os.Stderr, "\r[%d/%d] %-24s", completed, total, message)
					if completed == total {
						fmt.Fprintln(os.Stderr)
					}
				},
			}
			fmt.Printf("Fitting %d candidate models on %d cores...\n", len(candidates), a.cfg.Processing.NumCores)
			results, err := selection.NewSelector(params).Run(cmd.Context(), S, Y, candidates)
			if err != nil {
				return err
			}
			printRanking(results, crossValidate, top)
			return nil
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "CSV file with sites followed by responses")
	cmd.Flags().IntVarP(&inputs, "inputs", "i", 1, "Number of input columns")
	cmd.Flags().StringSliceVar(&regressions, "regressions", nil, "Regression bases to try (default: all)")
	cmd.Flags().StringSliceVar(&correlations, "correlations", nil, "Correlation families to try (default: all)")
	cmd.Flags().BoolVar(&perOutput, "per-output", false, "Model every response column separately")
	cmd.Flags().BoolVar(&crossValidate, "cv", true, "Rank by leave-one-out RMSE instead of the likelihood objective")
	cmd.Flags().IntVar(&top, "top", 10, "Number of ranked candidates to print (0 prints all)")
	return cmd
}

func parseBases(names []string) ([]regression.Basis, error) {
	if len(names) == 0 {
		return regression.Bases(), nil
	}
	out := make([]regression.Basis, 0, len(names))
	for _, name := range names {
		b, err := regression.Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func parseFamilies(names []string) ([]correlation.Family, error) {
	if len(names) == 0 {
		return correlation.Families(), nil
	}
	out := make([]correlation.Family, 0, len(names))
	for _, name := range names {
		f, err := correlation.Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func printRanking(results []selection.Result, byRMSE bool, top int) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if byRMSE {
		fmt.Fprintln(w, "RANK\tCANDIDATE\tRMSE\tMAX ERROR\tR²\tTHETA")
	} else {
		fmt.Fprintln(w, "RANK\tCANDIDATE\tOBJECTIVE\tTHETA")
	}
	for i, r := range results {
		if top > 0 && i >= top {
			break
		}
		switch {
		case r.Err != nil:
			fmt.Fprintf(w, "%d\t%s\tfailed: %v\n", i+1, r.Candidate, r.Err)
		case byRMSE:
			fmt.Fprintf(w, "%d\t%s\t%.4g\t%.4g\t%.4f\t%s\n", i+1, r.Candidate,
				r.Metrics.RMSE, r.Metrics.MaxError, r.Metrics.RSquared, formatFloats(r.Model.Theta()))
		default:
			fmt.Fprintf(w, "%d\t%s\t%.6g\t%s\n", i+1, r.Candidate, r.Perf.Objective, formatFloats(r.Model.Theta()))
		}
	}
	w.Flush()
}
