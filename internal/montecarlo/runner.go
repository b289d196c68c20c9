// Package montecarlo repeats stochastic simulations over independent seeds
// and reduces each realization to a trial summary.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aaleta/C72h-whiteworms/internal/gillespie"
	"github.com/aaleta/C72h-whiteworms/internal/logging"
	"github.com/aaleta/C72h-whiteworms/internal/model"
	"github.com/aaleta/C72h-whiteworms/internal/network"
	"github.com/aaleta/C72h-whiteworms/internal/observability"
	"github.com/aaleta/C72h-whiteworms/internal/seeding"
)

const tracerName = "github.com/aaleta/C72h-whiteworms/internal/montecarlo"

// DefaultPersistenceThreshold is the black-infected share above which a
// sample counts toward the persistence window.
const DefaultPersistenceThreshold = 0.5

// ctxCheckInterval is how many events a trial runs between cancellation checks.
const ctxCheckInterval = 4096

var validate = validator.New()

// Config controls a batch of trials.
type Config struct {
	// Trials is the number of independent realizations R.
	Trials int `json:"trials" yaml:"trials" validate:"gte=1"`

	// Workers bounds concurrent trials. 0 uses GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers" validate:"gte=0"`

	// Seed is the base seed. 0 picks a random base seed, recorded in the result.
	Seed uint64 `json:"seed" yaml:"seed"`

	Engine gillespie.Config `json:"engine" yaml:"engine"`

	PersistenceThreshold float64 `json:"persistence_threshold" yaml:"persistence_threshold" validate:"gte=0,lte=1"`

	// KeepFirst retains the full trajectory of trial 0 in Result.First.
	KeepFirst bool `json:"keep_first" yaml:"keep_first"`
}

// DefaultConfig returns a single-trial configuration running to absorption.
func DefaultConfig() Config {
	return Config{
		Trials:               1,
		Engine:               gillespie.DefaultConfig(),
		PersistenceThreshold: DefaultPersistenceThreshold,
	}
}

// Validate checks the batch configuration.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%w: %s failed %s=%s (got %v)", model.ErrInvalidParameter, e.Field(), e.Tag(), e.Param(), e.Value())
		}
		return fmt.Errorf("%w: %v", model.ErrInvalidParameter, err)
	}
	return c.Engine.Validate()
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the operational logger. Individual trials are logged at
// the trace level.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCollector records per-trial metrics.
func WithCollector(c *observability.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithTrialLogger appends one JSONL record per finished trial.
func WithTrialLogger(tl *logging.TrialLogger) Option {
	return func(r *Runner) { r.trials = tl }
}

// Runner executes Monte Carlo batches. It is safe to reuse across batches.
type Runner struct {
	config  Config
	logger  *slog.Logger
	metrics *observability.Collector
	trials  *logging.TrialLogger
	tracer  trace.Tracer
}

// NewRunner validates config and returns a Runner.
func NewRunner(config Config, opts ...Option) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		config: config,
		logger: logging.Discard(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the batch configuration.
func (r *Runner) Config() Config { return r.config }

// Run simulates config.Trials realizations of params on net, drawing each
// trial's initial condition from policy. Trial k is driven by
// TrialSeed(base, k), so the result does not depend on the worker count.
func (r *Runner) Run(ctx context.Context, net *network.Network, params model.Params, policy seeding.Policy) (*Result, error) {
	if net == nil {
		return nil, fmt.Errorf("%w: nil network", model.ErrInvalidParameter)
	}
	if policy == nil {
		return nil, fmt.Errorf("%w: nil seeding policy", model.ErrInvalidParameter)
	}
	m, err := model.Build(params)
	if err != nil {
		return nil, err
	}
	engine, err := gillespie.NewEngine(net, m, r.config.Engine)
	if err != nil {
		return nil, err
	}

	base := r.config.Seed
	if base == 0 {
		base = randomSeed()
	}

	workers := r.config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > r.config.Trials {
		workers = r.config.Trials
	}

	ctx, span := r.tracer.Start(ctx, "montecarlo.run", trace.WithAttributes(
		attribute.String("network", net.Name()),
		attribute.Int("nodes", net.NodeCount()),
		attribute.Int("trials", r.config.Trials),
		attribute.Int("workers", workers),
		attribute.String("params", params.Tag()),
	))
	defer span.End()

	r.metrics.SetNetworkNodes(net.NodeCount())
	r.logger.Debug("monte carlo run starting",
		"network", net.Name(),
		"nodes", net.NodeCount(),
		"edges", net.EdgeCount(),
		"params", params.Tag(),
		"trials", r.config.Trials,
		"workers", workers,
		"seed", base,
	)

	res := &Result{
		Network:   net.Name(),
		Nodes:     net.NodeCount(),
		Edges:     net.EdgeCount(),
		Directed:  net.Directed(),
		Params:    params,
		Config:    r.config,
		BaseSeed:  base,
		StartedAt: time.Now().UTC(),
		Trials:    make([]TrialSummary, r.config.Trials),
	}
	res.Config.Seed = base

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for k := 0; k < r.config.Trials; k++ {
		g.Go(func() error {
			traj, initial, err := r.runTrial(gctx, engine, policy, base, k)
			if err != nil {
				return fmt.Errorf("trial %d: %w", k, err)
			}
			res.Trials[k] = Summarize(k, TrialSeed(base, k), traj, r.config.PersistenceThreshold)
			if k == 0 {
				res.Initial = initial
				if r.config.KeepFirst {
					res.First = traj
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res.Elapsed = time.Since(res.StartedAt)

	truncated := res.Truncated()
	span.SetAttributes(attribute.Int("truncated", truncated))
	r.logger.Info("monte carlo run finished",
		"network", net.Name(),
		"params", params.Tag(),
		"trials", len(res.Trials),
		"truncated", truncated,
		"elapsed", res.Elapsed.Round(time.Millisecond),
	)
	if truncated > 0 {
		r.logger.Warn("some trials hit the simulation budget before absorption",
			"truncated", truncated,
			"max_time", r.config.Engine.MaxTime,
			"max_events", r.config.Engine.MaxEvents,
		)
	}
	return res, nil
}

// EstimateProtection runs a batch and returns the protected fraction of
// every trial, ordered by trial index.
func (r *Runner) EstimateProtection(ctx context.Context, net *network.Network, params model.Params, policy seeding.Policy) ([]float64, error) {
	res, err := r.Run(ctx, net, params, policy)
	if err != nil {
		return nil, err
	}
	return res.ProtectedFractions(), nil
}

func (r *Runner) runTrial(ctx context.Context, engine *gillespie.Engine, policy seeding.Policy, base uint64, k int) (*gillespie.Trajectory, model.Counts, error) {
	seed := TrialSeed(base, k)
	_, span := r.tracer.Start(ctx, "montecarlo.trial", trace.WithAttributes(
		attribute.Int("trial", k),
		attribute.Int64("seed", int64(seed)),
	))
	defer span.End()

	started := time.Now()
	rng := NewRand(seed)
	net := engine.Network()
	n := net.NodeCount()

	ic, err := policy.Draw(net, rng)
	if err != nil {
		return nil, model.Counts{}, err
	}
	initial := ic.Counts(n)

	sim, err := engine.Start(ic, rng)
	if err != nil {
		return nil, initial, err
	}
	for i := 0; ; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, initial, err
			}
		}
		ok, err := sim.Step()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, initial, err
		}
		if !ok {
			break
		}
	}

	traj := sim.Trajectory()
	elapsed := time.Since(started)
	protected := traj.ProtectedFraction()
	span.SetAttributes(
		attribute.Int("events", traj.Events()),
		attribute.Bool("absorbed", traj.Absorbed),
		attribute.Float64("protected_fraction", protected),
	)

	r.metrics.ObserveTrial(traj.Absorbed, traj.Events(), protected, elapsed)
	r.logger.Log(ctx, logging.LevelTrace, "trial finished",
		"trial", k,
		"events", traj.Events(),
		"absorbed", traj.Absorbed,
		"protected_fraction", protected,
	)
	r.trials.Log(map[string]any{
		"trial":              k,
		"seed":               seed,
		"events":             traj.Events(),
		"final_time":         traj.FinalTime(),
		"absorbed":           traj.Absorbed,
		"stop":               traj.Stop.String(),
		"protected_fraction": protected,
		"duration_ms":        elapsed.Milliseconds(),
	})
	return traj, initial, nil
}
