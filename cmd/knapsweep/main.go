package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"knapsweep/internal/config"
	"knapsweep/internal/experiment"
	"knapsweep/internal/logging"
	"knapsweep/internal/metrics"
	"knapsweep/internal/publish"
	"knapsweep/internal/stats"
	"knapsweep/pkg/knapsweep"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	app := &cli.Command{
		Name:      "knapsweep",
		Usage:     "sweep generation budgets of an evolutionary 0/1 knapsack search",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML config file"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file loaded before KNAPSWEEP_* variables"},
			&cli.StringFlag{Name: "store", Usage: "store backend: memory|sqlite"},
			&cli.StringFlag{Name: "db-path", Usage: "sqlite database path"},
			&cli.StringFlag{Name: "log-level", Usage: "debug|info|warn|error"},
			&cli.StringFlag{Name: "log-format", Usage: "text|json"},
		},
		Commands: []*cli.Command{
			sweepCommand(),
			scoreCommand(),
			runsCommand(),
			sweepsCommand(),
			summaryCommand(),
		},
	}
	return app.Run(ctx, args)
}

// loadConfig layers the config file, dotenv, KNAPSWEEP_* variables and
// explicitly set flags, in that order.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if err := config.LoadDotEnv(cmd.String("env-file")); err != nil {
		return config.Config{}, err
	}
	if err := config.ApplyEnv(&cfg, nil); err != nil {
		return config.Config{}, err
	}

	setString := func(flag string, dst *string) {
		if cmd.IsSet(flag) {
			*dst = cmd.String(flag)
		}
	}
	setInt := func(flag string, dst *int) {
		if cmd.IsSet(flag) {
			*dst = cmd.Int(flag)
		}
	}
	setString("store", &cfg.Store.Kind)
	setString("db-path", &cfg.Store.Path)
	setString("log-level", &cfg.Log.Level)
	setString("log-format", &cfg.Log.Format)
	setString("instance", &cfg.Instance)
	setString("budgets", &cfg.Sweep.IncrementalBudgets)
	setString("failure-policy", &cfg.Sweep.FailurePolicy)
	setString("recombinator", &cfg.Engine.Recombinator)
	setString("csv", &cfg.Output.CSV)
	setString("xlsx", &cfg.Output.XLSX)
	setString("summary", &cfg.Output.Summary)
	setString("artifacts-dir", &cfg.Output.ArtifactsDir)
	setString("nats-url", &cfg.NATS.URL)
	setString("nats-subject", &cfg.NATS.Subject)
	setString("metrics-addr", &cfg.Metrics.Addr)
	setInt("baseline-budget", &cfg.Sweep.BaselineBudget)
	setInt("baseline-runs", &cfg.Sweep.BaselineRuns)
	setInt("runs", &cfg.Sweep.IncrementalRuns)
	setInt("parallelism", &cfg.Sweep.Parallelism)
	setInt("population", &cfg.Engine.PopulationSize)
	setInt("elite", &cfg.Engine.EliteCount)
	setInt("tournament", &cfg.Engine.TournamentSize)
	setInt("workers", &cfg.Engine.Workers)
	setInt("cache-size", &cfg.Engine.CacheSize)
	if cmd.IsSet("seed") {
		cfg.Sweep.Seed = cmd.Int64("seed")
	}
	if cmd.IsSet("mutation-rate") {
		cfg.Engine.MutationRate = cmd.Float("mutation-rate")
	}
	if cmd.IsSet("parallel-evaluation") {
		cfg.Engine.ParallelEvaluation = cmd.Bool("parallel-evaluation")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cmd *cli.Command, cfg config.Config) (*slog.Logger, error) {
	return logging.New(cmd.Root().ErrWriter, cfg.Log.Level, cfg.Log.Format)
}

func newClient(cfg config.Config, logger *slog.Logger) (*knapsweep.Client, error) {
	return knapsweep.New(knapsweep.Options{
		StoreKind:    cfg.Store.Kind,
		DBPath:       cfg.Store.Path,
		ArtifactsDir: cfg.Output.ArtifactsDir,
		Logger:       logger,
	})
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "run the baseline and incremental budget matrix on one instance",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "instance", Aliases: []string{"i"}, Usage: "instance file (.txt, .json, .yaml, optionally .zst)"},
			&cli.Int64Flag{Name: "seed", Usage: "base seed"},
			&cli.IntFlag{Name: "baseline-budget", Usage: "generations per baseline run"},
			&cli.IntFlag{Name: "baseline-runs", Usage: "number of baseline runs"},
			&cli.StringFlag{Name: "budgets", Usage: "incremental budgets: start:stop[:step] or a,b,c"},
			&cli.IntFlag{Name: "runs", Usage: "runs per incremental budget"},
			&cli.IntFlag{Name: "parallelism", Aliases: []string{"p"}, Usage: "concurrent runs"},
			&cli.StringFlag{Name: "failure-policy", Usage: "fail_fast|continue"},
			&cli.IntFlag{Name: "population", Usage: "population size"},
			&cli.IntFlag{Name: "elite", Usage: "elites copied per generation"},
			&cli.IntFlag{Name: "tournament", Usage: "tournament size"},
			&cli.FloatFlag{Name: "mutation-rate", Usage: "per-bit flip probability; 0 means 1/items"},
			&cli.StringFlag{Name: "recombinator", Usage: "uniform|two_point"},
			&cli.BoolFlag{Name: "parallel-evaluation", Usage: "score each generation concurrently"},
			&cli.IntFlag{Name: "workers", Usage: "evaluation workers per run"},
			&cli.IntFlag{Name: "cache-size", Usage: "score cache entries; 0 disables"},
			&cli.StringFlag{Name: "csv", Usage: "results CSV path; .zst compresses"},
			&cli.StringFlag{Name: "xlsx", Usage: "results workbook path"},
			&cli.StringFlag{Name: "summary", Usage: "per-budget summary JSON path"},
			&cli.StringFlag{Name: "artifacts-dir", Usage: "directory for sweep artifacts and index"},
			&cli.StringFlag{Name: "nats-url", Usage: "publish runs to this NATS server"},
			&cli.StringFlag{Name: "nats-subject", Usage: "NATS subject prefix"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
		},
		Action: runSweep,
	}
}

func runSweep(ctx context.Context, cmd *cli.Command) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Instance == "" {
		return fmt.Errorf("an instance is required (--instance or instance = in config)")
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	client, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, client.Close())
	}()

	sinks, closeSinks, err := openSinks(cfg, logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := m.Serve(metricsCtx, cfg.Metrics.Addr); err != nil {
				logger.Error("metrics server stopped", "addr", cfg.Metrics.Addr, "err", err)
			}
		}()
	}

	sweepCfg, err := cfg.SweepConfig()
	if err != nil {
		return errors.Join(err, closeSinks())
	}
	summary, runErr := client.Sweep(ctx, knapsweep.SweepRequest{
		InstancePath:       cfg.Instance,
		BaselineBudget:     sweepCfg.BaselineBudget,
		BaselineRuns:       sweepCfg.BaselineRuns,
		IncrementalBudgets: sweepCfg.IncrementalBudgets,
		IncrementalRuns:    sweepCfg.IncrementalRuns,
		Seed:               sweepCfg.BaseSeed,
		PopulationSize:     cfg.Engine.PopulationSize,
		EliteCount:         cfg.Engine.EliteCount,
		TournamentSize:     cfg.Engine.TournamentSize,
		MutationRate:       cfg.Engine.MutationRate,
		Recombinator:       cfg.Engine.Recombinator,
		ParallelEvaluation: cfg.Engine.ParallelEvaluation,
		Workers:            cfg.Engine.Workers,
		Parallelism:        cfg.Sweep.Parallelism,
		FailurePolicy:      cfg.Sweep.FailurePolicy,
		CacheSize:          cfg.Engine.CacheSize,
		Sinks:              sinks,
		Recorder:           m,
	})
	runErr = errors.Join(runErr, closeSinks())

	if summary.SweepID != "" {
		if cfg.Output.Summary != "" {
			if err := stats.WriteSummaryJSON(cfg.Output.Summary, summary.Summaries); err != nil {
				runErr = errors.Join(runErr, fmt.Errorf("write summary: %w", err))
			}
		}
		w := cmd.Root().Writer
		fmt.Fprintf(w, "sweep=%s instance=%s status=%s runs=%d best=%s\n",
			summary.SweepID, summary.Instance, summary.Status, len(summary.Results), summary.Best)
		printSummaries(w, summary.Summaries)
	}
	return runErr
}

func openSinks(cfg config.Config, logger *slog.Logger) ([]experiment.Sink, func() error, error) {
	var sinks experiment.MultiSink
	var cleanup []func() error
	closeAll := func() error {
		errs := []error{sinks.Close()}
		for _, fn := range cleanup {
			errs = append(errs, fn())
		}
		return errors.Join(errs...)
	}

	if cfg.Output.CSV != "" {
		s, err := stats.NewCSVSink(cfg.Output.CSV)
		if err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		sinks = append(sinks, s)
	}
	if cfg.Output.XLSX != "" {
		s, err := stats.NewXLSXSink(cfg.Output.XLSX)
		if err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		sinks = append(sinks, s)
	}
	if cfg.NATS.URL != "" {
		nc, err := publish.Connect(cfg.NATS.URL, "knapsweep")
		if err != nil {
			return nil, nil, errors.Join(err, closeAll())
		}
		s, err := publish.NewSink(nc, cfg.NATS.Subject)
		if err != nil {
			nc.Close()
			return nil, nil, errors.Join(err, closeAll())
		}
		sinks = append(sinks, s)
		cleanup = append(cleanup, nc.Drain)
		logger.Info("publishing runs", "url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
	}
	return sinks, closeAll, nil
}

func scoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "score",
		Usage:     "score one genome against an instance",
		ArgsUsage: "GENOME",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "instance", Aliases: []string{"i"}, Usage: "instance file"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.NArg() != 1 {
				return fmt.Errorf("expected exactly one genome argument")
			}
			client, err := newClient(cfg, logging.Discard())
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.Score(ctx, knapsweep.ScoreRequest{InstancePath: cfg.Instance, Genome: cmd.Args().First()})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "instance=%s score=%s value=%d weight=%d capacity=%d feasible=%t\n",
				res.Instance, res.Score, res.ValueSum, res.WeightSum, res.Capacity, res.Score.IsFeasible())
			return nil
		},
	}
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "list stored run results of a sweep",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sweep", Usage: "sweep id; defaults to the latest"},
			&cli.IntFlag{Name: "limit", Usage: "maximum rows"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg, logging.Discard())
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Runs(ctx, knapsweep.RunsRequest{
				SweepID: cmd.String("sweep"),
				Latest:  cmd.String("sweep") == "",
				Limit:   cmd.Int("limit"),
			})
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			for _, r := range runs {
				fmt.Fprintf(w, "sweep=%s group=%s budget=%d run=%d best=%d gen=%d evals=%d elapsed=%.3fs\n",
					r.SweepID, r.Group, r.GenerationBudget, r.RunIndex, r.BestScore, r.GenerationFirstAchieved, r.Evaluations, r.ElapsedSeconds)
			}
			return nil
		},
	}
}

func sweepsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweeps",
		Usage: "list stored sweeps, newest first",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg, logging.Discard())
			if err != nil {
				return err
			}
			defer client.Close()

			sweeps, err := client.Sweeps(ctx)
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			for _, s := range sweeps {
				fmt.Fprintf(w, "sweep=%s instance=%s status=%s runs=%d seed=%d started=%s\n",
					s.SweepID, s.Instance, s.Status, s.Runs, s.BaseSeed, s.StartedAtUTC)
			}
			return nil
		},
	}
}

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:      "summary",
		Usage:     "per-budget statistics from a results CSV or from stored sweep artifacts",
		ArgsUsage: "[RESULTS.csv[.zst]]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "json", Usage: "also write the summaries to this JSON file"},
			&cli.StringFlag{Name: "artifacts-dir", Usage: "read summaries of a stored sweep from this directory"},
			&cli.StringFlag{Name: "sweep", Usage: "sweep id in the artifacts directory; defaults to the newest"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			var summaries []stats.BudgetSummary
			switch cmd.NArg() {
			case 1:
				records, err := stats.ReadResultsCSV(cmd.Args().First())
				if err != nil {
					return err
				}
				summaries = stats.Summarize(records)
			case 0:
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				summaries, err = readStoredSummaries(cfg.Output.ArtifactsDir, cmd.String("sweep"))
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("expected at most one results file")
			}
			if path := cmd.String("json"); path != "" {
				if err := stats.WriteSummaryJSON(path, summaries); err != nil {
					return err
				}
			}
			printSummaries(cmd.Root().Writer, summaries)
			return nil
		},
	}
}

func readStoredSummaries(dir, sweepID string) ([]stats.BudgetSummary, error) {
	if dir == "" {
		return nil, fmt.Errorf("a results file or --artifacts-dir is required")
	}
	if sweepID == "" {
		index, err := stats.ListSweepIndex(dir)
		if err != nil {
			return nil, err
		}
		if len(index) == 0 {
			return nil, fmt.Errorf("no sweeps recorded in %s", dir)
		}
		sweepID = index[0].SweepID
	}
	summaries, ok, err := stats.ReadSweepSummaries(dir, sweepID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no summary for sweep %s in %s", sweepID, dir)
	}
	return summaries, nil
}
