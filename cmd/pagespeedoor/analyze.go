package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/pagespeedoor/pkg/api/store"
	"github.com/ethpandaops/pagespeedoor/pkg/config"
	"github.com/ethpandaops/pagespeedoor/pkg/pagespeed"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	analyzeStrategy    string
	analyzeConcurrency int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [urls...]",
	Short: "Run analyses for one or more URLs from the command line",
	Long: `Analyze runs a PageSpeed Insights analysis for each given URL and
stores the extracted metrics, without going through the API server.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeStrategy, "strategy",
		pagespeed.StrategyDesktop, "analysis strategy (desktop or mobile)")
	analyzeCmd.Flags().IntVar(&analyzeConcurrency, "concurrency", 2,
		"number of analyses to run in parallel")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if !pagespeed.ValidStrategy(analyzeStrategy) {
		return fmt.Errorf("invalid strategy %q", analyzeStrategy)
	}

	if analyzeConcurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Cancelling analyses")
		cancel()
	}()

	db := store.NewStore(log, &cfg.Database)
	if err := db.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := db.Stop(); err != nil {
			log.WithError(err).Warn("Stopping store failed")
		}
	}()

	client := pagespeed.NewClient(log, &cfg.PageSpeed)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(analyzeConcurrency)

	for _, rawURL := range args {
		g.Go(func() error {
			return analyzeOne(gctx, db, client, rawURL)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("running analyses: %w", err)
	}

	log.WithField("urls", len(args)).Info("All analyses completed")

	return nil
}

// analyzeOne runs a single analysis and persists the parsed metrics.
func analyzeOne(
	ctx context.Context,
	db store.Store,
	client pagespeed.Client,
	rawURL string,
) error {
	result, err := client.Analyze(ctx, rawURL, analyzeStrategy)
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", rawURL, err)
	}

	rec := &store.Record{
		URL:                    rawURL,
		Strategy:               analyzeStrategy,
		FirstContentfulPaint:   pagespeed.ParseDisplayValue(result.Lighthouse.FirstContentfulPaint),
		SpeedIndex:             pagespeed.ParseDisplayValue(result.Lighthouse.SpeedIndex),
		LargestContentfulPaint: pagespeed.ParseDisplayValue(result.Lighthouse.LargestContentfulPaint),
		TotalBlockingTime:      pagespeed.ParseDisplayValue(result.Lighthouse.TotalBlockingTime),
		TimeToInteractive:      pagespeed.ParseDisplayValue(result.Lighthouse.TimeToInteractive),
	}

	if err := db.CreateRecord(ctx, rec); err != nil {
		return fmt.Errorf("storing record for %s: %w", rawURL, err)
	}

	log.WithField("url", rawURL).
		WithField("strategy", analyzeStrategy).
		WithField("record_id", rec.ID).
		WithField("fcp", result.Lighthouse.FirstContentfulPaint).
		WithField("lcp", result.Lighthouse.LargestContentfulPaint).
		Info("Analysis stored")

	return nil
}
