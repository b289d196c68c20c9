package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aaleta/C72h-whiteworms/internal/config"
	"github.com/aaleta/C72h-whiteworms/internal/export"
	"github.com/aaleta/C72h-whiteworms/internal/gillespie"
	"github.com/aaleta/C72h-whiteworms/internal/logging"
	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
	"github.com/aaleta/C72h-whiteworms/internal/network"
	"github.com/aaleta/C72h-whiteworms/internal/observability"
	"github.com/aaleta/C72h-whiteworms/internal/sanitize"
	"github.com/aaleta/C72h-whiteworms/internal/store"
)

// addSimulationFlags registers the overrides shared by the simulation commands.
// Unset flags leave the configured value alone.
func addSimulationFlags(cmd *cobra.Command, batch bool) {
	f := cmd.Flags()
	f.String("network", "", "Edge list file")
	f.String("name", "", "Network name used in output files (default: file stem)")
	f.Bool("directed", false, "Read each edge u v as u influencing v only")
	f.Int("nodes", 0, "Register nodes 0..N-1 so hosts without edges are kept")

	f.Float64("beta-b", 0, "Black worm infection rate")
	f.Float64("beta-w", 0, "White worm infection rate")
	f.Float64("epsilon", 0, "Rate at which black infection is noticed")
	f.Float64("gamma", 0, "Patching rate of aware hosts")
	f.Float64("mu", 0, "Rate at which the white worm patches its host")

	f.Int("black", 0, "Number of hosts initially infected by the black worm")
	f.Int("white", 0, "Number of hosts initially infected by the white worm")
	f.Uint64("seed", 0, "Base random seed (0 picks one and reports it)")
	f.Float64("max-time", 0, "Stop a trial at this simulated time (0 = until absorption)")
	f.Int("max-events", 0, "Stop a trial after this many events (0 = until absorption)")
	f.String("output", "", "Output directory")

	if batch {
		f.Int("iterations", 0, "Number of Monte Carlo trials")
		f.Int("workers", 0, "Concurrent trials (0 = GOMAXPROCS)")
		f.String("db", "", `Results database path, or "none" to skip saving`)
		f.Bool("keep-trajectory", false, "Also write the trajectory of the first trial")
	}
	f.String("format", "", "Trajectory format: csv, arrow or both")
}

// loadSettings resolves the effective configuration: file and environment
// first, then the command's flags.
func loadSettings(cmd *cobra.Command) (*config.WhitewormsConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	applySimulationFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applySimulationFlags(cmd *cobra.Command, cfg *config.WhitewormsConfig) {
	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	num := func(name string, dst *float64) {
		if f.Changed(name) {
			*dst, _ = f.GetFloat64(name)
		}
	}
	count := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	flag := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}

	str("network", &cfg.Network.Path)
	str("name", &cfg.Network.Name)
	flag("directed", &cfg.Network.Directed)
	count("nodes", &cfg.Network.Nodes)

	num("beta-b", &cfg.Parameters.BetaB)
	num("beta-w", &cfg.Parameters.BetaW)
	num("epsilon", &cfg.Parameters.Epsilon)
	num("gamma", &cfg.Parameters.Gamma)
	num("mu", &cfg.Parameters.Mu)

	count("black", &cfg.Seeding.Black)
	count("white", &cfg.Seeding.White)
	if f.Changed("black") || f.Changed("white") {
		cfg.Seeding.Fixed = nil
	}
	count("iterations", &cfg.MonteCarlo.Trials)
	count("workers", &cfg.MonteCarlo.Workers)
	if f.Changed("seed") {
		cfg.MonteCarlo.Seed, _ = f.GetUint64("seed")
	}
	num("max-time", &cfg.Engine.MaxTime)
	count("max-events", &cfg.Engine.MaxEvents)

	str("output", &cfg.Output.Dir)
	str("db", &cfg.Output.Database)
	flag("keep-trajectory", &cfg.Output.KeepTrajectory)
	str("format", &cfg.Output.TrajectoryFormat)
}

// session holds the logger, metrics and tracing of one command invocation.
type session struct {
	cfg       *config.WhitewormsConfig
	log       *slog.Logger
	collector *observability.Collector
	trialLog  *logging.TrialLogger
	closers   []func()
}

func newSession(ctx context.Context, cmd *cobra.Command, cfg *config.WhitewormsConfig) (*session, error) {
	log := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	s := &session{cfg: cfg, log: log}

	tracing := cfg.Tracing
	if tracing.Writer == nil {
		tracing.Writer = cmd.ErrOrStderr()
	}
	shutdown, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	s.closers = append(s.closers, func() {
		observability.ShutdownWithTimeout(context.Background(), shutdown, log)
	})

	if cfg.Metrics.Addr != "" {
		if err := s.serveMetrics(cfg.Metrics.Addr); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.trialLog = logging.NewTrialLogger(cfg.Output.Dir, cfg.Logging.Level)
	s.closers = append(s.closers, s.trialLog.Close)
	return s, nil
}

func (s *session) serveMetrics(addr string) error {
	collector, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	s.collector = collector

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	s.log.Info("serving metrics", "addr", addr, "path", "/metrics")

	s.closers = append(s.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return nil
}

// Close releases everything newSession set up, newest first.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// runner builds a Monte Carlo runner for cfg wired to the session's logger,
// metrics and trial log.
func (s *session) runner(cfg montecarlo.Config) (*montecarlo.Runner, error) {
	return montecarlo.NewRunner(cfg,
		montecarlo.WithLogger(s.log),
		montecarlo.WithCollector(s.collector),
		montecarlo.WithTrialLogger(s.trialLog),
	)
}

func (s *session) loadNetwork() (*network.Network, error) {
	nc := s.cfg.Network
	if nc.Path == "" {
		return nil, errors.New("no network given: pass --network or set network.path in the config")
	}
	name := nc.Name
	if name == "" {
		base := filepath.Base(nc.Path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	net, err := network.LoadFile(nc.Path, network.LoadOptions{
		Name:     sanitize.NetworkName(name),
		Directed: nc.Directed,
		Nodes:    nc.Nodes,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("network loaded",
		"name", net.Name(),
		"nodes", net.NodeCount(),
		"edges", net.EdgeCount(),
		"directed", net.Directed(),
	)
	return net, nil
}

// openStore opens the configured result database. It returns nil when
// saving is disabled.
func openStore(cfg *config.WhitewormsConfig) (store.ResultStore, error) {
	path := cfg.Output.Database
	if path == config.DatabaseDisabled {
		return nil, nil
	}
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to locate results database: %w", err)
		}
	}
	rs, err := store.NewSQLiteResultStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	return rs, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	notifySignals(ch)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// writeOutput creates dir/name and fills it with write.
func writeOutput(dir, name string, write func(io.Writer) error) (string, error) {
	f, err := export.Create(dir, name)
	if err != nil {
		return "", err
	}
	if err := write(f); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// writeTrajectory writes traj under stem in the requested formats and
// returns the paths written.
func writeTrajectory(dir, stem, format string, traj *gillespie.Trajectory, meta map[string]string) ([]string, error) {
	var paths []string
	if format == "" || format == "csv" || format == "both" {
		path, err := writeOutput(dir, stem+".csv", func(w io.Writer) error {
			return export.WriteTrajectoryCSV(w, traj)
		})
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if format == "arrow" || format == "both" {
		path, err := writeOutput(dir, stem+".arrow", func(w io.Writer) error {
			return export.WriteTrajectoryArrow(w, traj, meta)
		})
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func trajectoryMeta(net *network.Network, res *montecarlo.Result) map[string]string {
	return map[string]string{
		"network":   net.Name(),
		"params":    res.Params.Tag(),
		"base_seed": fmt.Sprint(res.BaseSeed),
		"trial":     "0",
	}
}
