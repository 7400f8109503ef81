// Package prices gathers hourly spot prices from Energi Data Service into
// the partitioned price store.
package prices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"powerview/internal/domain"
	"powerview/internal/energidata"
	"powerview/internal/gather"
	"powerview/internal/metrics"
	"powerview/internal/store"
	"powerview/internal/util"
)

var _ gather.Gatherer = (*Gatherer)(nil)

// ErrAllChunksFailed is returned when no chunk of the range was stored.
var ErrAllChunksFailed = errors.New("no price chunk succeeded")

// Fetcher retrieves converted spot prices for [start, end).
type Fetcher interface {
	GetPricesWithRetry(ctx context.Context, start, end time.Time, areas []string, dataset string) ([]domain.SpotPrice, error)
}

// Config holds the collaborators and range of a price run.
type Config struct {
	Fetcher   Fetcher
	Store     store.PriceStore
	Areas     []string
	Dataset   string // auto, elspot or dayahead
	From, To  time.Time
	ChunkDays int
	Metrics   *metrics.Run
	Logger    *slog.Logger
}

// Gatherer fetches and stores spot prices for a date range.
type Gatherer struct {
	cfg Config
	log *slog.Logger
}

// NewGatherer creates a price Gatherer.
func NewGatherer(cfg Config) *Gatherer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	return &Gatherer{cfg: cfg, log: cfg.Logger.With("gatherer", "prices")}
}

// Name returns the gatherer identifier.
func (g *Gatherer) Name() string { return "prices" }

// Run fetches [From, To] chunk by chunk. A failed chunk is logged and the
// remaining chunks still run; Run fails only when every chunk failed.
func (g *Gatherer) Run(ctx context.Context) error {
	if g.cfg.To.Before(g.cfg.From) {
		return fmt.Errorf("invalid range %s..%s", util.FormatDate(g.cfg.From), util.FormatDate(g.cfg.To))
	}
	if _, err := energidata.ResolveDataset(g.cfg.From, g.cfg.Dataset); err != nil {
		return err
	}

	chunks := g.plan()
	g.log.Info("starting price extraction", "from", util.FormatDate(g.cfg.From), "to", util.FormatDate(g.cfg.To),
		"areas", g.cfg.Areas, "chunks", len(chunks))

	started := time.Now()
	succeeded := 0
	for i, c := range chunks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log := g.log.With("chunk", fmt.Sprintf("%d/%d", i+1, len(chunks)), "range", c.String())

		n, err := g.runChunk(ctx, c)
		if err != nil {
			log.Error("failed to fetch/store prices", "error", err)
			continue
		}
		succeeded++
		log.Info("stored prices", "count", n)
	}

	g.cfg.Metrics.Duration.Set(time.Since(started).Seconds())
	if succeeded == 0 && len(chunks) > 0 {
		return ErrAllChunksFailed
	}
	g.cfg.Metrics.LastSuccess.SetToCurrentTime()
	g.log.Info("price extraction completed", "chunks", len(chunks), "succeeded", succeeded)
	return nil
}

func (g *Gatherer) runChunk(ctx context.Context, c gather.DateRange) (int, error) {
	// The upstream end bound is exclusive.
	prices, err := g.cfg.Fetcher.GetPricesWithRetry(ctx, c.Start, util.AddDays(c.End, 1), g.cfg.Areas, g.cfg.Dataset)
	if err != nil {
		return 0, fmt.Errorf("fetching: %w", err)
	}
	if err := g.cfg.Store.WritePrices(ctx, prices); err != nil {
		return 0, fmt.Errorf("storing: %w", err)
	}
	for _, p := range prices {
		g.cfg.Metrics.Prices.WithLabelValues(p.PriceArea).Inc()
	}
	return len(prices), nil
}

// plan chunks the range. With automatic dataset selection no chunk crosses
// the transition date, so each chunk resolves to a single dataset.
func (g *Gatherer) plan() []gather.DateRange {
	from, to := domain.TruncateDay(g.cfg.From), domain.TruncateDay(g.cfg.To)
	split := energidata.TransitionDate
	if (g.cfg.Dataset != "auto" && g.cfg.Dataset != "") || !from.Before(split) || to.Before(split) {
		return gather.Chunk(from, to, g.cfg.ChunkDays)
	}
	chunks := gather.Chunk(from, util.AddDays(split, -1), g.cfg.ChunkDays)
	return append(chunks, gather.Chunk(split, to, g.cfg.ChunkDays)...)
}
