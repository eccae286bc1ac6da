// Package config loads sweep settings from TOML, .env files and KNAPSWEEP_*
// environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"knapsweep/internal/experiment"
)

const EnvPrefix = "KNAPSWEEP_"

type Config struct {
	Instance string  `toml:"instance"`
	Sweep    Sweep   `toml:"sweep"`
	Engine   Engine  `toml:"engine"`
	Output   Output  `toml:"output"`
	Store    Store   `toml:"store"`
	NATS     NATS    `toml:"nats"`
	Metrics  Metrics `toml:"metrics"`
	Log      Log     `toml:"log"`
}

type Sweep struct {
	BaselineBudget int `toml:"baseline_budget"`
	BaselineRuns   int `toml:"baseline_runs"`
	// IncrementalBudgets is "start:stop[:step]" or a comma separated list.
	IncrementalBudgets string `toml:"incremental_budgets"`
	IncrementalRuns    int    `toml:"incremental_runs"`
	Seed               int64  `toml:"seed"`
	Parallelism        int    `toml:"parallelism"`
	FailurePolicy      string `toml:"failure_policy"`
}

type Engine struct {
	PopulationSize     int     `toml:"population_size"`
	EliteCount         int     `toml:"elite_count"`
	TournamentSize     int     `toml:"tournament_size"`
	MutationRate       float64 `toml:"mutation_rate"`
	Recombinator       string  `toml:"recombinator"`
	ParallelEvaluation bool    `toml:"parallel_evaluation"`
	Workers            int     `toml:"workers"`
	CacheSize          int     `toml:"cache_size"`
}

type Output struct {
	CSV          string `toml:"csv"`
	XLSX         string `toml:"xlsx"`
	Summary      string `toml:"summary"`
	ArtifactsDir string `toml:"artifacts_dir"`
}

type Store struct {
	Kind string `toml:"kind"`
	Path string `toml:"path"`
}

type NATS struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

type Metrics struct {
	Addr string `toml:"addr"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() Config {
	return Config{
		Sweep: Sweep{
			BaselineBudget:     100,
			BaselineRuns:       10,
			IncrementalBudgets: "10:100:10",
			IncrementalRuns:    10,
			Seed:               1,
			Parallelism:        1,
			FailurePolicy:      string(experiment.FailFast),
		},
		Engine: Engine{
			PopulationSize:     50,
			EliteCount:         1,
			TournamentSize:     2,
			Recombinator:       "uniform",
			ParallelEvaluation: true,
			Workers:            4,
		},
		Output: Output{
			CSV: "results.csv",
		},
		Store: Store{
			Kind: "memory",
			Path: "knapsweep.db",
		},
		NATS: NATS{
			Subject: "knapsweep.runs",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a TOML file over Default. Unknown keys are rejected. An empty
// path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("unknown config keys:\n%s", strict.String())
		}
		return err
	}
	return nil
}

// LoadDotEnv loads the given .env files into the process environment
// without overriding variables that are already set. Missing files are
// ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with KNAPSWEEP_* variables from lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = n
	}

	str("INSTANCE", &cfg.Instance)
	if v, ok := lookup(EnvPrefix + "SEED"); ok {
		seed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSEED: %w", EnvPrefix, err))
		} else {
			cfg.Sweep.Seed = seed
		}
	}
	num("PARALLELISM", &cfg.Sweep.Parallelism)
	num("WORKERS", &cfg.Engine.Workers)
	str("FAILURE_POLICY", &cfg.Sweep.FailurePolicy)
	str("STORE", &cfg.Store.Kind)
	str("DB_PATH", &cfg.Store.Path)
	str("NATS_URL", &cfg.NATS.URL)
	str("NATS_SUBJECT", &cfg.NATS.Subject)
	str("METRICS_ADDR", &cfg.Metrics.Addr)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	if _, err := c.SweepConfig(); err != nil {
		return err
	}
	if c.Engine.PopulationSize <= 0 {
		return fmt.Errorf("engine.population_size must be > 0")
	}
	if c.Engine.EliteCount < 0 || c.Engine.EliteCount >= c.Engine.PopulationSize {
		return fmt.Errorf("engine.elite_count must be in [0, population_size)")
	}
	if c.Engine.TournamentSize < 0 {
		return fmt.Errorf("engine.tournament_size must be >= 0")
	}
	if c.Engine.MutationRate < 0 || c.Engine.MutationRate > 1 {
		return fmt.Errorf("engine.mutation_rate must be in [0, 1]")
	}
	if c.Engine.CacheSize < 0 {
		return fmt.Errorf("engine.cache_size must be >= 0")
	}
	if c.Sweep.Parallelism < 0 {
		return fmt.Errorf("sweep.parallelism must be >= 0")
	}
	if _, err := experiment.ParseFailurePolicy(c.Sweep.FailurePolicy); err != nil {
		return err
	}
	switch c.Store.Kind {
	case "", "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported store.kind: %s", c.Store.Kind)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log.format: %s", c.Log.Format)
	}
	return nil
}

func (c Config) SweepConfig() (experiment.SweepConfig, error) {
	budgets, err := experiment.ParseBudgets(c.Sweep.IncrementalBudgets)
	if err != nil {
		return experiment.SweepConfig{}, fmt.Errorf("sweep.incremental_budgets: %w", err)
	}
	sc := experiment.SweepConfig{
		BaselineBudget:     c.Sweep.BaselineBudget,
		BaselineRuns:       c.Sweep.BaselineRuns,
		IncrementalBudgets: budgets,
		IncrementalRuns:    c.Sweep.IncrementalRuns,
		BaseSeed:           c.Sweep.Seed,
	}
	if err := sc.Validate(); err != nil {
		return experiment.SweepConfig{}, err
	}
	return sc, nil
}
