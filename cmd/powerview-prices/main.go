// Fetch hourly spot prices from Energi Data Service into the partitioned
// Parquet store under prices/.
//
// Usage:
//
//	go run ./cmd/powerview-prices [-from 2025-01-01] [-to 2025-12-31] [-dataset auto|elspot|dayahead]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"powerview/internal/config"
	"powerview/internal/domain"
	"powerview/internal/energidata"
	"powerview/internal/gather/prices"
	"powerview/internal/metrics"
	"powerview/internal/store"
	"powerview/internal/util"
)

func main() {
	cfgPath := "config/powerview.yaml"
	if p := os.Getenv("POWERVIEW_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML configuration file")
	fromFlag := flag.String("from", "", "first date YYYY-MM-DD (default: prices.start_date, else 30 days ago)")
	toFlag := flag.String("to", "", "last date YYYY-MM-DD (default: today UTC)")
	dataset := flag.String("dataset", "", "auto, elspot or dayahead (default: prices.dataset)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	today := domain.TruncateDay(time.Now())
	to, err := dateFlag(*toFlag, today)
	if err != nil {
		logger.Error("invalid -to", "error", err)
		os.Exit(1)
	}
	from, err := dateFlag(firstNonEmpty(*fromFlag, cfg.Prices.StartDate), util.AddDays(to, -30))
	if err != nil {
		logger.Error("invalid -from", "error", err)
		os.Exit(1)
	}

	ds := cfg.Prices.Dataset
	if *dataset != "" {
		ds = *dataset
	}

	run := metrics.New()
	g := prices.NewGatherer(prices.Config{
		Fetcher:   energidata.NewClient(cfg.Prices.BaseURL, cfg.Extract.MaxRetries, cfg.Extract.RetryDelay, logger),
		Store:     store.NewParquetStore(cfg.Storage.DataDir),
		Areas:     cfg.Prices.Areas,
		Dataset:   ds,
		From:      from,
		To:        to,
		ChunkDays: cfg.Extract.ChunkDays,
		Metrics:   run,
		Logger:    logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting gatherer", "gatherer", g.Name(), "from", util.FormatDate(from), "to", util.FormatDate(to), "dataset", ds)
	err = g.Run(ctx)
	if werr := run.WriteTextfile(cfg.Metrics.TextfilePath); werr != nil {
		logger.Warn("failed to write metrics textfile", "path", cfg.Metrics.TextfilePath, "error", werr)
	}
	if err != nil {
		logger.Error("price extraction failed", "error", err)
		os.Exit(1)
	}
}

func dateFlag(v string, def time.Time) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	return util.ParseDate(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
