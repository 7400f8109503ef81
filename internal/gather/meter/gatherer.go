// Package meter gathers hourly consumption readings from the Eloverblik API
// into the partitioned reading store, one metering point at a time.
package meter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"powerview/internal/domain"
	"powerview/internal/eloverblik"
	"powerview/internal/gather"
	"powerview/internal/metrics"
	"powerview/internal/store"
)

// ---------------------------------------------------------------------------
// Compile-time interface check
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*Gatherer)(nil)

// Setup errors abort a run before any metering point is processed.
var (
	ErrNoMeteringPoints = errors.New("no metering points configured")
	ErrNoRefreshToken   = errors.New("no refresh token configured")
)

// State names a step of the per metering point state machine. Each
// transition is logged.
type State string

const (
	StatePlanning      State = "PLANNING"
	StateFetching      State = "FETCHING"
	StateNormalizing   State = "NORMALIZING"
	StateStoring       State = "STORING"
	StateCheckpointing State = "CHECKPOINTING"
	StateDone          State = "DONE"
	StateError         State = "ERROR"
)

// Fetcher retrieves time series from the metering API, retrying transient
// failures.
type Fetcher interface {
	GetMeterDataWithRetry(ctx context.Context, token string, from, to time.Time, meteringPointIDs []string) (*eloverblik.MeterDataResponse, error)
}

// TokenSource exchanges the refresh credential for an access token.
type TokenSource interface {
	GetToken(ctx context.Context, refreshToken string) (string, error)
}

// AccessLister lists the metering points an access token can read.
type AccessLister interface {
	GetMeteringPoints(ctx context.Context, token string) (*eloverblik.MeteringPointsResponse, error)
}

// Config holds the collaborators of a Gatherer.
type Config struct {
	Fetcher      Fetcher
	Tokens       TokenSource
	RefreshToken string
	Points       []domain.MeteringPoint
	Readings     store.ReadingStore
	State        store.StateStore
	Planner      *gather.Planner
	ChunkDays    int
	Metrics      *metrics.Run
	Logger       *slog.Logger

	// Access, if set, is consulted once per run to warn about configured
	// metering points the token cannot read.
	Access AccessLister

	// Now returns the ingestion time; nil means time.Now.
	Now func() time.Time
}

// Gatherer runs the incremental extraction for every configured metering
// point.
type Gatherer struct {
	cfg     Config
	tracked map[string]struct{}
	log     *slog.Logger
}

// PointResult is the outcome of one metering point in a run.
type PointResult struct {
	MeteringPoint      domain.MeteringPoint
	Range              gather.DateRange
	Chunks             int
	ChunksSucceeded    int
	Readings           int
	CheckpointAdvanced bool
	Err                error
}

// RunSummary reports every metering point processed in a run.
type RunSummary struct {
	RunID  string
	Points []PointResult

	// Inaccessible lists configured metering points missing from the
	// account's metering point list. They are still processed.
	Inaccessible []string
}

// Failed returns the number of metering points that ended in error or with
// no successful chunk.
func (s *RunSummary) Failed() int {
	n := 0
	for _, p := range s.Points {
		if p.Err != nil || !p.CheckpointAdvanced {
			n++
		}
	}
	return n
}

// NewGatherer creates a Gatherer. Missing logger and metrics are replaced by
// defaults.
func NewGatherer(cfg Config) *Gatherer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tracked := make(map[string]struct{}, len(cfg.Points))
	for _, mp := range cfg.Points {
		tracked[mp.ID] = struct{}{}
	}
	return &Gatherer{
		cfg:     cfg,
		tracked: tracked,
		log:     cfg.Logger.With("gatherer", "meter"),
	}
}

// Name returns the gatherer identifier.
func (g *Gatherer) Name() string { return "meter" }

// Run performs one extraction pass. See Execute.
func (g *Gatherer) Run(ctx context.Context) error {
	_, err := g.Execute(ctx)
	return err
}

// Execute processes every metering point in order. It returns an error only
// for setup problems detected before the first metering point; per-chunk and
// per-point failures are logged and reported in the summary.
func (g *Gatherer) Execute(ctx context.Context) (*RunSummary, error) {
	if len(g.cfg.Points) == 0 {
		return nil, ErrNoMeteringPoints
	}
	if g.cfg.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	summary := &RunSummary{RunID: uuid.NewString()}
	log := g.log.With("run_id", summary.RunID)
	started := time.Now()

	token, err := g.cfg.Tokens.GetToken(ctx, g.cfg.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("obtaining access token: %w", err)
	}

	summary.Inaccessible = g.checkAccess(ctx, log, token)

	log.Info("starting extraction", "metering_points", len(g.cfg.Points))
	for _, mp := range g.cfg.Points {
		if ctx.Err() != nil {
			log.Warn("extraction interrupted", "error", ctx.Err())
			break
		}

		res := g.processPoint(ctx, log, token, mp)
		summary.Points = append(summary.Points, res)

		outcome := metrics.OutcomeSuccess
		if res.Err != nil || !res.CheckpointAdvanced {
			outcome = metrics.OutcomeFailure
		}
		g.cfg.Metrics.Points.WithLabelValues(outcome).Inc()
	}

	g.cfg.Metrics.Duration.Set(time.Since(started).Seconds())
	if summary.Failed() < len(summary.Points) {
		g.cfg.Metrics.LastSuccess.SetToCurrentTime()
	}
	log.Info("extraction completed", "metering_points", len(summary.Points), "failed", summary.Failed())
	return summary, nil
}

// checkAccess returns the configured metering points the account does not
// list. A failed listing is logged and treated as no information.
func (g *Gatherer) checkAccess(ctx context.Context, log *slog.Logger, token string) []string {
	if g.cfg.Access == nil {
		return nil
	}
	resp, err := g.cfg.Access.GetMeteringPoints(ctx, token)
	if err != nil {
		log.Warn("could not list accessible metering points", "error", err)
		return nil
	}

	available := make(map[string]struct{}, len(resp.Result))
	for _, info := range resp.Result {
		available[info.MeteringPointID] = struct{}{}
	}
	var missing []string
	for _, mp := range g.cfg.Points {
		if _, ok := available[mp.ID]; !ok {
			missing = append(missing, mp.ID)
			log.Warn("metering point not listed for this account; requests will likely return no data",
				"metering_point", mp.ID, "name", mp.Name)
		}
	}
	return missing
}

// processPoint runs the state machine for one metering point. Any failure,
// including a panic in a collaborator, ends up in PointResult.Err.
func (g *Gatherer) processPoint(ctx context.Context, runLog *slog.Logger, token string, mp domain.MeteringPoint) (res PointResult) {
	res.MeteringPoint = mp
	log := runLog.With("metering_point", mp.ID, "name", mp.Name)

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
		}
		if res.Err != nil {
			log.Error("failed to process metering point", "state", StateError, "error", res.Err)
		}
	}()

	log.Info("processing metering point", "state", StatePlanning)
	rng, err := g.cfg.Planner.PlanRange(ctx, mp.ID)
	if err != nil {
		res.Err = fmt.Errorf("planning: %w", err)
		return res
	}
	res.Range = rng

	chunks := gather.Chunk(rng.Start, rng.End, g.cfg.ChunkDays)
	res.Chunks = len(chunks)
	log.Info("planned date range", "from", rng.Start.Format(domain.DateLayout), "to", rng.End.Format(domain.DateLayout), "days", rng.Days(), "chunks", len(chunks))

	for i, chunk := range chunks {
		clog := log.With("chunk", fmt.Sprintf("%d/%d", i+1, len(chunks)), "from", chunk.Start.Format(domain.DateLayout), "to", chunk.End.Format(domain.DateLayout))

		n, err := g.processChunk(ctx, clog, token, mp, chunk)
		if err != nil {
			g.cfg.Metrics.Chunks.WithLabelValues(mp.ID, metrics.OutcomeFailure).Inc()
			clog.Error("failed to fetch/process chunk", "state", StateError, "error", err)
			continue
		}
		g.cfg.Metrics.Chunks.WithLabelValues(mp.ID, metrics.OutcomeSuccess).Inc()
		g.cfg.Metrics.Readings.WithLabelValues(mp.ID).Add(float64(n))
		res.ChunksSucceeded++
		res.Readings += n
	}

	if res.ChunksSucceeded == 0 {
		g.cfg.Metrics.Checkpoints.WithLabelValues(mp.ID, metrics.OutcomeSkipped).Inc()
		log.Warn("no chunks succeeded, checkpoint not updated; the same range is retried next run",
			"from", rng.Start.Format(domain.DateLayout), "to", rng.End.Format(domain.DateLayout))
		return res
	}

	log.Info("advancing checkpoint", "state", StateCheckpointing, "date", rng.End.Format(domain.DateLayout))
	if err := g.cfg.State.SetCheckpoint(ctx, mp.ID, rng.End); err != nil {
		g.cfg.Metrics.Checkpoints.WithLabelValues(mp.ID, metrics.OutcomeFailure).Inc()
		res.Err = fmt.Errorf("checkpointing: %w", err)
		return res
	}
	g.cfg.Metrics.Checkpoints.WithLabelValues(mp.ID, metrics.OutcomeSuccess).Inc()
	res.CheckpointAdvanced = true

	log.Info("completed metering point", "state", StateDone,
		"chunks_succeeded", res.ChunksSucceeded, "chunks", res.Chunks, "readings", res.Readings)
	return res
}

// processChunk fetches, normalizes and stores one chunk and returns the
// number of readings written.
func (g *Gatherer) processChunk(ctx context.Context, log *slog.Logger, token string, mp domain.MeteringPoint, chunk gather.DateRange) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	log.Info("fetching chunk", "state", StateFetching)
	resp, err := g.cfg.Fetcher.GetMeterDataWithRetry(ctx, token, chunk.Start, chunk.End, []string{mp.ID})
	if err != nil {
		return 0, fmt.Errorf("fetching: %w", err)
	}

	log.Debug("normalizing chunk", "state", StateNormalizing)
	readings := Normalize(resp, g.tracked, g.cfg.Now(), log)

	log.Debug("storing chunk", "state", StateStoring, "readings", len(readings))
	if err := g.cfg.Readings.WriteReadings(ctx, readings); err != nil {
		return 0, fmt.Errorf("storing: %w", err)
	}
	return len(readings), nil
}
