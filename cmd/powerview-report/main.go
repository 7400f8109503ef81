// Rebuild the reporting layer: load the Parquet partitions into the SQLite
// analytics database, create the reporting_* views and optionally export
// them to an XLSX workbook.
//
// Usage:
//
//	go run ./cmd/powerview-report [-data-path DIR] [-analytics-db FILE] [-metering-points-file FILE] [-xlsx FILE]
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"powerview/internal/config"
	"powerview/internal/domain"
	"powerview/internal/reporting"
	"powerview/internal/util"
)

func main() {
	cfgPath := "config/powerview.yaml"
	if p := os.Getenv("POWERVIEW_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the YAML configuration file")
	dataPath := flag.String("data-path", "", "Parquet data root (default: storage.data_dir)")
	analyticsPath := flag.String("analytics-db", "", "analytics database file (default: storage.analytics_path)")
	pointsFile := flag.String("metering-points-file", "", "metering point metadata YAML (default: reporting.metering_points_file)")
	xlsxPath := flag.String("xlsx", "", "also export the reporting views to this XLSX file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	opts := reporting.Options{
		DataRoot:      firstNonEmpty(*dataPath, cfg.Storage.DataDir),
		AnalyticsPath: firstNonEmpty(*analyticsPath, cfg.Storage.AnalyticsPath),
		Logger:        logger,
	}

	metaPath := firstNonEmpty(*pointsFile, cfg.Reporting.MeteringPointsFile)
	opts.Metadata, err = config.LoadMeteringPoints(metaPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		// Without a metadata file every configured point is named by its
		// config key.
		logger.Warn("metering point metadata file not found", "path", metaPath)
		opts.Metadata = metadataFromConfig(cfg)
	default:
		logger.Error("failed to load metering point metadata", "path", metaPath, "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	path, err := reporting.Build(ctx, opts)
	if err != nil {
		logger.Error("failed to build reporting layer", "error", err)
		os.Exit(1)
	}

	if *xlsxPath != "" {
		if err := reporting.ExportXLSX(ctx, path, *xlsxPath); err != nil {
			logger.Error("failed to export workbook", "path", *xlsxPath, "error", err)
			os.Exit(1)
		}
		logger.Info("exported workbook", "path", *xlsxPath)
	}
	logger.Info("reporting layer ready", "path", path)
}

func metadataFromConfig(cfg *config.Config) []domain.MeterMetadata {
	points := cfg.MeteringPointList()
	out := make([]domain.MeterMetadata, 0, len(points))
	for _, mp := range points {
		out = append(out, domain.MeterMetadata{MeteringPointID: mp.ID, Name: mp.Name})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
