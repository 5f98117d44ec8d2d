package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/schema"

	"github.com/stitts-dev/market-value-forecast/internal/models"
	"github.com/stitts-dev/market-value-forecast/internal/recorder"
	"github.com/stitts-dev/market-value-forecast/pkg/config"
	"github.com/stitts-dev/market-value-forecast/pkg/database"
	"github.com/stitts-dev/market-value-forecast/pkg/logger"
)

const statusLimit = 10

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down|status]")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg.LoggerOptions())

	if cfg.DatabaseURL == "" {
		logrus.Fatal("DATABASE_URL is not set")
	}

	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := run(context.Background(), os.Args[1], db, os.Stdout); err != nil {
		logrus.Fatal(err)
	}
}

func run(ctx context.Context, command string, db *database.DB, out io.Writer) error {
	switch command {
	case "up":
		if err := models.Migrate(db.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		logrus.Info("Migrations completed successfully")

	case "down":
		if err := models.Drop(db.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to drop tables: %w", err)
		}
		logrus.Info("Tables dropped successfully")

	case "status":
		return status(ctx, db, out)

	default:
		return fmt.Errorf("unknown command: %s", command)
	}
	return nil
}

// status prints whether the run tables exist and the latest recorded runs.
func status(ctx context.Context, db *database.DB, out io.Writer) error {
	migrator := db.WithContext(ctx).Migrator()
	for _, m := range models.AllModels() {
		table := m.(schema.Tabler).TableName()
		fmt.Fprintf(out, "%-16s %v\n", table, migrator.HasTable(table))
	}
	if !migrator.HasTable(&models.RunHeader{}) {
		return nil
	}

	runs, err := recorder.NewDBRecorder(db).ListRuns(ctx, statusLimit)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tDATE\tSPLIT\tMODEL\tSECONDS")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.2f\n",
			r.ModelOutputID, r.ModelRunDate.UTC().Format(time.RFC3339), r.SplitYear, r.ModelType, r.TimeTakenSeconds)
	}
	return w.Flush()
}
