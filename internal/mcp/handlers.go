package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aaleta/C72h-whiteworms/internal/gillespie"
	"github.com/aaleta/C72h-whiteworms/internal/model"
	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
	"github.com/aaleta/C72h-whiteworms/internal/network"
	"github.com/aaleta/C72h-whiteworms/internal/ratelimit"
	"github.com/aaleta/C72h-whiteworms/internal/seeding"
	"github.com/aaleta/C72h-whiteworms/internal/store"
)

const (
	// MaxTrials caps the trials a single tool call may request.
	MaxTrials = 10000

	defaultMaxPoints = 200
	defaultListLimit = 20
)

// registerTools registers all whiteworms MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "whiteworms_estimate_protection",
		Description: "Estimate the distribution of the final protected fraction of a network over repeated stochastic simulations of competing black and white worms",
	}, s.handleEstimateProtection)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "whiteworms_simulate",
		Description: "Simulate one stochastic trajectory and return per-compartment counts over time",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "whiteworms_sweep",
		Description: "Vary one rate over a list of values and estimate the protected fraction at each value",
	}, s.handleSweep)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "whiteworms_list_runs",
		Description: "List stored Monte Carlo runs, newest first",
	}, s.handleListRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "whiteworms_show_run",
		Description: "Show a stored run with summary statistics of its trials",
	}, s.handleShowRun)
}

// batchArgs gathers the arguments shared by the simulation tools.
type batchArgs struct {
	network   string
	directed  bool
	rates     map[string]*float64
	black     *int
	white     *int
	trials    int
	seed      uint64
	maxTime   float64
	maxEvents int
}

// batch is a validated simulation request.
type batch struct {
	net    *network.Network
	params model.Params
	policy seeding.Policy
	runner *montecarlo.Runner
}

// prepare merges args over the configured defaults and validates the result.
func (s *Server) prepare(args batchArgs) (*batch, error) {
	params := s.settings.Parameters
	for _, name := range model.ParamNames {
		v := args.rates[name]
		if v == nil {
			continue
		}
		var err error
		if params, err = params.With(name, *v); err != nil {
			return nil, err
		}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	// Fixed seeds name nodes of the configured network only.
	var policy seeding.Policy
	if args.black != nil || args.white != nil || args.network != "" {
		rp := seeding.RandomPolicy{Black: s.settings.Seeding.Black, White: s.settings.Seeding.White}
		if args.black != nil {
			rp.Black = *args.black
		}
		if args.white != nil {
			rp.White = *args.white
		}
		policy = rp
	} else {
		var err error
		if policy, err = s.settings.Seeding.Policy(); err != nil {
			return nil, err
		}
	}

	cfg := s.settings.RunnerConfig()
	cfg.KeepFirst = false
	if args.trials != 0 {
		cfg.Trials = args.trials
	}
	if cfg.Trials > MaxTrials {
		return nil, fmt.Errorf("%w: trials must be at most %d, got %d", model.ErrInvalidParameter, MaxTrials, cfg.Trials)
	}
	if args.seed != 0 {
		cfg.Seed = args.seed
	}
	if args.maxTime != 0 {
		cfg.Engine.MaxTime = args.maxTime
	}
	if args.maxEvents != 0 {
		cfg.Engine.MaxEvents = args.maxEvents
	}

	runner, err := montecarlo.NewRunner(cfg,
		montecarlo.WithLogger(s.log),
		montecarlo.WithCollector(s.collector),
	)
	if err != nil {
		return nil, err
	}

	net, err := s.loadNetwork(args.network, args.directed)
	if err != nil {
		return nil, err
	}
	s.collector.SetNetworkNodes(net.NodeCount())

	return &batch{net: net, params: params, policy: policy, runner: runner}, nil
}

func rateOverrides(betaB, betaW, epsilon, gamma, mu *float64) map[string]*float64 {
	return map[string]*float64{
		"beta_b":  betaB,
		"beta_w":  betaW,
		"epsilon": epsilon,
		"gamma":   gamma,
		"mu":      mu,
	}
}

// handleEstimateProtection implements the whiteworms_estimate_protection tool.
func (s *Server) handleEstimateProtection(ctx context.Context, req *sdk.CallToolRequest, args EstimateProtectionInput) (_ *sdk.CallToolResult, _ EstimateProtectionOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("whiteworms_estimate_protection", start, retErr, sanitizeToolParams(map[string]any{
			"network": args.Network, "directed": args.Directed,
			"beta_b": args.BetaB, "beta_w": args.BetaW, "epsilon": args.Epsilon, "gamma": args.Gamma, "mu": args.Mu,
			"black": args.Black, "white": args.White, "trials": args.Trials, "seed": args.Seed,
			"max_time": args.MaxTime, "max_events": args.MaxEvents, "save": args.Save,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "whiteworms_estimate_protection"); err != nil {
		return nil, EstimateProtectionOutput{}, err
	}

	b, err := s.prepare(batchArgs{
		network: args.Network, directed: args.Directed,
		rates: rateOverrides(args.BetaB, args.BetaW, args.Epsilon, args.Gamma, args.Mu),
		black: args.Black, white: args.White,
		trials: args.Trials, seed: args.Seed, maxTime: args.MaxTime, maxEvents: args.MaxEvents,
	})
	if err != nil {
		return nil, EstimateProtectionOutput{}, err
	}

	res, err := b.runner.Run(ctx, b.net, b.params, b.policy)
	if err != nil {
		return nil, EstimateProtectionOutput{}, fmt.Errorf("simulation failed: %w", err)
	}

	out := EstimateProtectionOutput{
		Network:   res.Network,
		Nodes:     res.Nodes,
		Edges:     res.Edges,
		Params:    res.Params,
		Trials:    len(res.Trials),
		BaseSeed:  res.BaseSeed,
		Truncated: res.Truncated(),
		Stats:     montecarlo.Describe(res.ProtectedFractions()),
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	if args.Save {
		id, err := s.store.SaveRun(ctx, res)
		if err != nil {
			return nil, EstimateProtectionOutput{}, fmt.Errorf("failed to save run: %w", err)
		}
		out.RunID = id
	}

	out.Message = fmt.Sprintf("%s: mean protected fraction %.4f (std %.4f) over %d trials, seed %d",
		out.Network, out.Stats.Mean, out.Stats.Std, out.Trials, out.BaseSeed)
	if out.Truncated > 0 {
		out.Message += fmt.Sprintf("; %d trials truncated by the event or time budget", out.Truncated)
	}
	if out.RunID != "" {
		out.Message += "; saved as " + out.RunID
	}
	return nil, out, nil
}

// handleSimulate implements the whiteworms_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("whiteworms_simulate", start, retErr, sanitizeToolParams(map[string]any{
			"network": args.Network, "directed": args.Directed,
			"beta_b": args.BetaB, "beta_w": args.BetaW, "epsilon": args.Epsilon, "gamma": args.Gamma, "mu": args.Mu,
			"black": args.Black, "white": args.White, "seed": args.Seed,
			"max_time": args.MaxTime, "max_events": args.MaxEvents, "max_points": args.MaxPoints,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "whiteworms_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	maxPoints := args.MaxPoints
	if maxPoints == 0 {
		maxPoints = defaultMaxPoints
	}
	if maxPoints < 2 {
		return nil, SimulateOutput{}, fmt.Errorf("%w: max_points must be at least 2", model.ErrInvalidParameter)
	}

	b, err := s.prepare(batchArgs{
		network: args.Network, directed: args.Directed,
		rates: rateOverrides(args.BetaB, args.BetaW, args.Epsilon, args.Gamma, args.Mu),
		black: args.Black, white: args.White,
		trials: 1, seed: args.Seed, maxTime: args.MaxTime, maxEvents: args.MaxEvents,
	})
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	cfg := b.runner.Config()
	cfg.KeepFirst = true
	runner, err := montecarlo.NewRunner(cfg, montecarlo.WithLogger(s.log), montecarlo.WithCollector(s.collector))
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	res, err := runner.Run(ctx, b.net, b.params, b.policy)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("simulation failed: %w", err)
	}

	traj := res.First
	peak, _ := montecarlo.PeakBlackInfected(traj)
	return nil, SimulateOutput{
		Network:           res.Network,
		Nodes:             res.Nodes,
		Seed:              res.BaseSeed,
		Events:            traj.Events(),
		FinalTime:         traj.FinalTime(),
		Stop:              traj.Stop.String(),
		ProtectedFraction: traj.ProtectedFraction(),
		PeakBlackInfected: peak,
		Final:             traj.Final().Map(),
		Samples:           downsample(traj, maxPoints),
	}, nil
}

// downsample picks at most maxPoints evenly spaced samples of traj, always
// keeping the first and the last.
func downsample(traj *gillespie.Trajectory, maxPoints int) []Sample {
	n := traj.Len()
	if n == 0 {
		return []Sample{}
	}
	if n <= maxPoints {
		out := make([]Sample, n)
		for i := range out {
			out[i] = Sample{Time: traj.Times[i], Counts: traj.Counts[i].Map()}
		}
		return out
	}

	out := make([]Sample, maxPoints)
	for i := range out {
		idx := i * (n - 1) / (maxPoints - 1)
		out[i] = Sample{Time: traj.Times[idx], Counts: traj.Counts[idx].Map()}
	}
	return out
}

// handleSweep implements the whiteworms_sweep tool.
func (s *Server) handleSweep(ctx context.Context, req *sdk.CallToolRequest, args SweepInput) (_ *sdk.CallToolResult, _ SweepOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("whiteworms_sweep", start, retErr, sanitizeToolParams(map[string]any{
			"network": args.Network, "directed": args.Directed, "axis": args.Axis,
			"beta_b": args.BetaB, "beta_w": args.BetaW, "epsilon": args.Epsilon, "gamma": args.Gamma, "mu": args.Mu,
			"black": args.Black, "white": args.White, "trials": args.Trials, "seed": args.Seed,
			"max_time": args.MaxTime, "max_events": args.MaxEvents,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "whiteworms_sweep"); err != nil {
		return nil, SweepOutput{}, err
	}

	axis, err := montecarlo.ParseAxis(args.Axis)
	if err != nil {
		return nil, SweepOutput{}, err
	}
	b, err := s.prepare(batchArgs{
		network: args.Network, directed: args.Directed,
		rates: rateOverrides(args.BetaB, args.BetaW, args.Epsilon, args.Gamma, args.Mu),
		black: args.Black, white: args.White,
		trials: args.Trials, seed: args.Seed, maxTime: args.MaxTime, maxEvents: args.MaxEvents,
	})
	if err != nil {
		return nil, SweepOutput{}, err
	}
	if total := b.runner.Config().Trials * len(axis.Values); total > MaxTrials {
		return nil, SweepOutput{}, fmt.Errorf("%w: sweep would run %d trials, at most %d allowed", model.ErrInvalidParameter, total, MaxTrials)
	}

	points, err := b.runner.Sweep(ctx, b.net, b.params, []montecarlo.Axis{axis}, b.policy)
	if err != nil {
		return nil, SweepOutput{}, fmt.Errorf("sweep failed: %w", err)
	}

	out := SweepOutput{
		Network: b.net.Name(),
		Rate:    axis.Name,
		Points:  make([]SweepPointSummary, len(points)),
	}
	for i, p := range points {
		out.Points[i] = SweepPointSummary{
			Value:     p.Value,
			Stats:     montecarlo.Describe(p.Result.ProtectedFractions()),
			Truncated: p.Result.Truncated(),
		}
		out.BaseSeed = p.Result.BaseSeed
	}
	return nil, out, nil
}

// handleListRuns implements the whiteworms_list_runs tool.
func (s *Server) handleListRuns(ctx context.Context, req *sdk.CallToolRequest, args ListRunsInput) (_ *sdk.CallToolResult, _ ListRunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("whiteworms_list_runs", start, retErr, sanitizeToolParams(map[string]any{
			"network": args.Network, "limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "whiteworms_list_runs"); err != nil {
		return nil, ListRunsOutput{}, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	runs, err := s.store.ListRuns(ctx, store.RunFilter{Network: strings.TrimSpace(args.Network), Limit: limit})
	if err != nil {
		return nil, ListRunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}
	if runs == nil {
		runs = []store.Run{}
	}
	return nil, ListRunsOutput{Runs: runs, Count: len(runs)}, nil
}

// handleShowRun implements the whiteworms_show_run tool.
func (s *Server) handleShowRun(ctx context.Context, req *sdk.CallToolRequest, args ShowRunInput) (_ *sdk.CallToolResult, _ ShowRunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("whiteworms_show_run", start, retErr, sanitizeToolParams(map[string]any{"id": args.ID}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "whiteworms_show_run"); err != nil {
		return nil, ShowRunOutput{}, err
	}
	if strings.TrimSpace(args.ID) == "" {
		return nil, ShowRunOutput{}, fmt.Errorf("'id' parameter is required")
	}

	run, err := s.store.GetRun(ctx, args.ID)
	if err != nil {
		return nil, ShowRunOutput{}, err
	}
	trials, err := s.store.TrialsForRun(ctx, run.ID)
	if err != nil {
		return nil, ShowRunOutput{}, err
	}

	all := make([]float64, 0, len(trials))
	absorbed := make([]float64, 0, len(trials))
	for _, t := range trials {
		all = append(all, t.ProtectedFraction)
		if t.Absorbed {
			absorbed = append(absorbed, t.ProtectedFraction)
		}
	}
	return nil, ShowRunOutput{
		Run:      *run,
		Stats:    montecarlo.Describe(all),
		Absorbed: montecarlo.Describe(absorbed),
	}, nil
}
