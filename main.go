package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/artifact"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/config"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/metrics"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/services"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/storage"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/tracking"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/utils"
)

const jobType = "basic_cleaning"

// options are the command-line inputs of one invocation.
type options struct {
	params         services.Params
	profilePath    string
	exportPostgres bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command with args and returns the process exit code.
// A failure is reported once, on stderr.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", jobType, err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           jobType,
		Short:         "A very basic data cleaning",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.params.InputArtifact, "input_artifact", "", "Name of the input artifact")
	flags.StringVar(&opts.params.OutputArtifact, "output_artifact", "", "Name of the output artifact")
	flags.StringVar(&opts.params.OutputType, "output_type", "", "Type of the output artifact")
	flags.StringVar(&opts.params.OutputDescription, "output_description", "", "Description of the output artifact")
	flags.Float64Var(&opts.params.MinPrice, "min_price", 0, "Minimum price for cleanup of outliers")
	flags.Float64Var(&opts.params.MaxPrice, "max_price", 0, "Maximum price for cleanup of outliers")
	flags.StringVar(&opts.profilePath, "config", "", "Optional YAML cleaning profile")
	flags.BoolVar(&opts.exportPostgres, "export_postgres", false, "Also export cleaned listings to PostgreSQL")
	for _, name := range []string{
		"input_artifact", "output_artifact", "output_type", "output_description", "min_price", "max_price",
	} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func run(ctx context.Context, opts options, stdout io.Writer) (err error) {
	cfg := config.Load()
	logger := utils.NewLogger(cfg.LogLevel)

	profile, err := config.LoadProfile(opts.profilePath)
	if err != nil {
		return err
	}

	store, err := artifact.NewStore(cfg.ArtifactRoot)
	if err != nil {
		return err
	}

	registry, err := tracking.OpenRegistry(ctx, cfg.TrackingDB)
	if err != nil {
		return err
	}
	defer registry.Close()

	r, err := tracking.Start(ctx, registry, store, cfg.Project, jobType, logger)
	if err != nil {
		return err
	}
	logger = r.Logger()
	logger.Info("=== %s run %s starting (%s) ===", jobType, r.ID, store)

	recorder := metrics.New(jobType, cfg.PushgatewayURL)
	started := time.Now()

	// The run is closed out whatever happens below.
	defer func() {
		// Finishing uses a fresh context so a cancelled run is still recorded.
		finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if finishErr := r.Finish(finishCtx, err); finishErr != nil {
			logger.Error("Failed to finish run: %v", finishErr)
		}
		recorder.ObserveRun(time.Since(started), time.Now(), err == nil)
		if pushErr := recorder.Push(finishCtx, r.ID); pushErr != nil {
			logger.Warn("Metrics push failed: %v", pushErr)
		}
	}()

	cleaner := services.NewCleaner(logger, profile, cfg.WorkDir)
	res, err := cleaner.Run(ctx, r, opts.params)
	if err != nil {
		return err
	}

	reportSvc := services.NewReportService(logger)
	report := reportSvc.Generate(res.Dataset, res.Report)
	recorder.ObserveReport(report)
	for key, val := range map[string]any{
		"input_rows":    report.InputRows,
		"output_rows":   report.OutputRows,
		"price_dropped": report.PriceDropped,
		"geo_dropped":   report.GeoDropped,
		"average_price": report.AveragePrice,
		"output":        res.Manifest.Ref().String(),
	} {
		if err := r.SetSummary(ctx, key, val); err != nil {
			return err
		}
	}

	if opts.exportPostgres {
		if err := exportToPostgres(ctx, cfg, logger, res); err != nil {
			return err
		}
	}

	reportSvc.Print(stdout, report)
	logger.Info("Done. Clean data → %s", res.Manifest.Ref())
	return nil
}

func exportToPostgres(ctx context.Context, cfg *config.Config, logger *utils.Logger, res *services.Result) error {
	retry := &utils.RetryConfig{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   2 * time.Second,
		Logger:      logger,
	}
	source := res.Manifest.Ref().String()

	pw, err := storage.NewPostgresWriter(ctx, cfg.DSN(), source, retry)
	if err != nil {
		return err
	}
	defer pw.Close()

	if err := pw.Write(ctx, res.Dataset); err != nil {
		return err
	}
	logger.Info("Clean listings stored in PostgreSQL (table: clean_listings, source: %s)", source)
	return nil
}
