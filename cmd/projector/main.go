package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stitts-dev/market-value-forecast/pkg/config"
	"github.com/stitts-dev/market-value-forecast/pkg/logger"
)

// flags shared by every subcommand; zero values leave the configuration alone.
type globalFlags struct {
	dataPath     string
	featuresPath string
	outputDir    string
	splitYear    int
	years        int
	verbose      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "projector",
		Short:         "Project player market values forward",
		Long:          `Trains on seasons before the split year, then projects every player in the split year forward, capping growth for veterans.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.dataPath, "data", "", "input panel CSV (default DATA_PATH)")
	pf.StringVar(&flags.featuresPath, "features", "", "feature config YAML (default FEATURES_PATH)")
	pf.StringVar(&flags.outputDir, "output", "", "output directory (default OUTPUT_DIR)")
	pf.IntVar(&flags.splitYear, "split-year", 0, "first projected season (default SPLIT_YEAR)")
	pf.IntVar(&flags.years, "years", 0, "number of seasons to project (default PROJECTION_YEARS)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newRunCmd(flags), newPlotCmd(flags), newCapCmd(flags))
	return root
}

// load reads the configuration and applies flag overrides.
func (f *globalFlags) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if f.dataPath != "" {
		cfg.DataPath = f.dataPath
	}
	if f.featuresPath != "" {
		cfg.FeaturesPath = f.featuresPath
	}
	if f.outputDir != "" {
		cfg.OutputDir = f.outputDir
	}
	if f.splitYear != 0 {
		cfg.SplitYear = f.splitYear
	}
	if f.years != 0 {
		cfg.ProjectionYears = f.years
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	opts := cfg.LoggerOptions()
	if f.verbose {
		opts.Level = "debug"
	}
	return cfg, logger.InitLogger(opts), nil
}
