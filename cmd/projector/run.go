package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stitts-dev/market-value-forecast/internal/app"
	"github.com/stitts-dev/market-value-forecast/internal/forecast"
	"github.com/stitts-dev/market-value-forecast/pkg/logger"
)

func newRunCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train, project and record a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := a.LoadPanel(cmd.Context())
			if err != nil {
				return err
			}
			result, err := a.Forecaster.Run(cmd.Context(), data, a.Options())
			if err != nil {
				return err
			}

			logger.WithRunContext(result.RunID, result.SplitYear).
				WithField("projections", len(result.Projections)).
				Info("Run recorded")

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return printSummary(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func printSummary(out io.Writer, r *forecast.Result) error {
	fmt.Fprintf(out, "run %s  model %s  split %d  years %d  %.2fs\n",
		r.RunID, r.ModelType, r.SplitYear, r.Years, r.ElapsedSecs)
	fmt.Fprintf(out, "test season: n=%d rmse=%.3f mae=%.3f r2=%.3f\n",
		r.Metrics.N, r.Metrics.RMSE, r.Metrics.MAE, r.Metrics.R2)
	fmt.Fprintf(out, "%d projections, %d capped\n\n", len(r.Projections), r.CappedCount())

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAYER\tNAME\tYEAR\tAGE\tVALUE\tRAW\tCAPPED")
	for _, p := range r.Projections {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.0f\t%.2f\t%.2f\t%t\n",
			p.PlayerID, p.Name, p.Year, p.Age, p.PredictedValue, p.RawValue, p.Capped)
	}
	return w.Flush()
}
