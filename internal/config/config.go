package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"powerview/internal/domain"
)

// Configuration errors. Either one aborts a run before any metering point is
// processed.
var (
	ErrMissingRefreshToken = errors.New("ELOVERBLIK_REFRESH_TOKEN is required")
	ErrNoMeteringPoints    = errors.New("at least one metering point ID must be configured")
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for powerview.
type Config struct {
	Storage    Storage    `yaml:"storage"`
	Eloverblik Eloverblik `yaml:"eloverblik"`
	Prices     Prices     `yaml:"prices"`
	Extract    Extract    `yaml:"extract"`
	Logging    Logging    `yaml:"logging"`
	Metrics    Metrics    `yaml:"metrics"`
	Reporting  Reporting  `yaml:"reporting"`

	// MeteringPoints maps display name to metering point ID. Entries with
	// an empty ID are ignored.
	MeteringPoints map[string]string `yaml:"metering_points"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir       string `yaml:"data_dir"`
	StatePath     string `yaml:"state_path"`
	AnalyticsPath string `yaml:"analytics_path"`
}

// Eloverblik holds credentials and endpoint for the metering API.
type Eloverblik struct {
	RefreshToken    string `yaml:"refresh_token"`
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Prices configures the spot price gatherer.
type Prices struct {
	BaseURL   string   `yaml:"base_url"`
	Areas     []string `yaml:"areas"`
	Dataset   string   `yaml:"dataset"`
	StartDate string   `yaml:"start_date"`
}

// Extract controls incremental extraction.
type Extract struct {
	InitialBackfillDays int           `yaml:"initial_backfill_days"`
	ChunkDays           int           `yaml:"chunk_days"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryDelay          time.Duration `yaml:"retry_delay"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics configures the Prometheus textfile written at the end of a run.
type Metrics struct {
	TextfilePath string `yaml:"textfile_path"`
}

// Reporting configures the reporting layer builder.
type Reporting struct {
	MeteringPointsFile string `yaml:"metering_points_file"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:       "./data",
			StatePath:     "./state.db",
			AnalyticsPath: "./analytics/powerview.db",
		},
		Eloverblik: Eloverblik{
			BaseURL: "https://api.eloverblik.dk/CustomerApi",
		},
		Prices: Prices{
			BaseURL: "https://api.energidataservice.dk",
			Dataset: "auto",
		},
		Extract: Extract{
			InitialBackfillDays: 1095,
			ChunkDays:           90,
			MaxRetries:          3,
			RetryDelay:          60 * time.Second,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Reporting: Reporting{
			MeteringPointsFile: "./metering_points.yml",
		},
		MeteringPoints: map[string]string{},
	}
}

// Load reads the YAML configuration file at the given path on top of the
// defaults, and then applies environment variable overrides. A missing file
// is not an error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if cfg.MeteringPoints == nil {
		cfg.MeteringPoints = map[string]string{}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// meteringPointEnv maps well-known metering point display names to the
// environment variable holding their ID.
var meteringPointEnv = []struct{ name, env string }{
	{"delivery_to_grid", "DELIVERY_TO_GRID_ID"},
	{"electric_heating", "ELECTRIC_HEATING_ID"},
	{"consumed_from_grid", "CONSUMED_FROM_GRID_ID"},
	{"net_consumption", "NET_CONSUMPTION_ID"},
	{"hjem_meter", "HJEM_METER_ID"},
	{"sommerhus_meter", "SOMMERHUS_METER_ID"},
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("ELOVERBLIK_REFRESH_TOKEN"); v != "" {
		cfg.Eloverblik.RefreshToken = v
	}
	if v := os.Getenv("DATA_STORAGE_PATH"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("STATE_DB_PATH"); v != "" {
		cfg.Storage.StatePath = v
	}
	if v := os.Getenv("ANALYTICS_DB_PATH"); v != "" {
		cfg.Storage.AnalyticsPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("INITIAL_BACKFILL_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INITIAL_BACKFILL_DAYS: %w", err)
		}
		cfg.Extract.InitialBackfillDays = days
	}

	for _, mp := range meteringPointEnv {
		if v := os.Getenv(mp.env); v != "" {
			cfg.MeteringPoints[mp.name] = v
		}
	}
	return nil
}

// Validate reports configuration errors that make an extraction run
// impossible.
func (c *Config) Validate() error {
	if c.Eloverblik.RefreshToken == "" {
		return ErrMissingRefreshToken
	}
	if len(c.ValidMeteringPoints()) == 0 {
		return ErrNoMeteringPoints
	}
	if c.Extract.InitialBackfillDays < 0 {
		return fmt.Errorf("initial_backfill_days must not be negative, got %d", c.Extract.InitialBackfillDays)
	}
	return nil
}

// ValidMeteringPoints returns the configured metering points that have a
// non-empty ID.
func (c *Config) ValidMeteringPoints() map[string]string {
	valid := make(map[string]string, len(c.MeteringPoints))
	for name, id := range c.MeteringPoints {
		if id != "" {
			valid[name] = id
		}
	}
	return valid
}

// MeteringPointList returns the valid metering points sorted by ID. An ID
// configured under several names is listed once, with the first name.
func (c *Config) MeteringPointList() []domain.MeteringPoint {
	valid := c.ValidMeteringPoints()
	out := make([]domain.MeteringPoint, 0, len(valid))
	for name, id := range valid {
		out = append(out, domain.MeteringPoint{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})

	deduped := out[:0]
	for _, mp := range out {
		if n := len(deduped); n > 0 && deduped[n-1].ID == mp.ID {
			continue
		}
		deduped = append(deduped, mp)
	}
	return deduped
}
