package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dacekit/pkg/dsmerge"
)

func (a *app) mergeCmd() *cobra.Command {
	var (
		data         string
		inputs       int
		tolerance    float64
		norm         string
		siteRule     string
		responseRule string
		out          string
	)
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge design sites closer than a tolerance",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.cfg.Merge
			if cmd.Flags().Changed("tol") {
				m.Tolerance = tolerance
			}
			if cmd.Flags().Changed("norm") {
				m.Norm = norm
			}
			if cmd.Flags().Changed("site-rule") {
				m.SiteRule = siteRule
			}
			if cmd.Flags().Changed("response-rule") {
				m.ResponseRule = responseRule
			}
			a.cfg.Merge = m

			opts, err := a.cfg.MergeOptions()
			if err != nil {
				return err
			}
			opts.Logger = a.logger

			S, Y, header, err := readData(data, inputs)
			if err != nil {
				return err
			}
			mS, mY, err := dsmerge.Merge(S, Y, opts)
			if err != nil {
				return err
			}

			n, _ := S.Dims()
			merged, q := mY.Dims()
			a.logger.Info("sites merged", zap.Int("rows", n), zap.Int("remaining", merged))
			cols := append(siteHeader(header, inputs, q), responseHeader(header, inputs, q)...)
			return writeTable(out, cols, mS, mY)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "CSV file with sites followed by responses")
	cmd.Flags().IntVarP(&inputs, "inputs", "i", 1, "Number of input columns")
	cmd.Flags().Float64Var(&tolerance, "tol", 0, "Merge sites within this distance")
	cmd.Flags().StringVar(&norm, "norm", "", "Distance norm: l1, l2 or linf")
	cmd.Flags().StringVar(&siteRule, "site-rule", "", "Site combination rule: mean, median or center")
	cmd.Flags().StringVar(&responseRule, "response-rule", "", "Response rule: mean, median, center, min or max")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output CSV file (default: stdout)")
	return cmd
}
