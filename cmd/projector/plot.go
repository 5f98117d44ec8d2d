package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stitts-dev/market-value-forecast/internal/app"
	"github.com/stitts-dev/market-value-forecast/internal/charts"
)

func newPlotCmd(flags *globalFlags) *cobra.Command {
	var (
		sel    charts.TrendSelection
		topN   int
		record bool
	)

	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Project and draw trend and feature-importance charts",
		Long: `Draws value trends for --players, or for the --top highest projected values in --year,
plus the model's feature importances. Charts are written to <output>/charts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}
			if len(sel.PlayerIDs) == 0 && (sel.Year == 0 || sel.TopN <= 0) {
				return charts.ErrNoSelection
			}
			if !record {
				cfg.DatabaseURL = ""
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

			dir := filepath.Join(cfg.OutputDir, "charts")
			trendPath := filepath.Join(dir, fmt.Sprintf("trends_%s.png", result.RunID))
			if err := charts.Trends(result, sel, trendPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), trendPath)

			importancePath := filepath.Join(dir, fmt.Sprintf("importance_%s.png", result.RunID))
			drawn, err := charts.Importance(result.Importances, topN, importancePath, log)
			if err != nil {
				return err
			}
			if drawn {
				fmt.Fprintln(cmd.OutOrStdout(), importancePath)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&sel.PlayerIDs, "players", nil, "player ids to draw")
	f.IntVar(&sel.Year, "year", 0, "season used to pick the top players")
	f.IntVar(&sel.TopN, "top", 0, "number of top players in --year")
	f.IntVar(&sel.StartYear, "start-year", charts.DefaultStartYear, "earliest season drawn")
	f.IntVar(&topN, "top-features", charts.DefaultTopFeatures, "features on the importance chart")
	f.BoolVar(&record, "record", false, "also record the run in the database")
	return cmd
}
