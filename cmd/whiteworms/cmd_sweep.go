package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aaleta/C72h-whiteworms/internal/export"
	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one Monte Carlo batch per value of a single rate",
		Long: `Sweep one rate over a list of values, holding the other rates at their
configured values. Every point reuses the same base seed.

Examples:
  whiteworms sweep --network karate.edges --axis beta_w=0.1,0.5,1,2
  whiteworms sweep --network karate.edges --axis mu=0,0.5,1 --iterations 200 --json`,
		RunE: runSweep,
	}
	addSimulationFlags(cmd, true)
	cmd.Flags().StringArray("axis", nil, "Swept rate as name=v1,v2,... (exactly one)")
	return cmd
}

type sweepRow struct {
	Value     float64          `json:"value"`
	RunID     string           `json:"run_id,omitempty"`
	Truncated int              `json:"truncated"`
	Stats     montecarlo.Stats `json:"stats"`
}

func runSweep(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	rawAxes, _ := cmd.Flags().GetStringArray("axis")

	axes := make([]montecarlo.Axis, 0, len(rawAxes))
	for _, raw := range rawAxes {
		axis, err := montecarlo.ParseAxis(raw)
		if err != nil {
			return err
		}
		axes = append(axes, axis)
	}
	axis, err := montecarlo.SelectAxis(axes)
	if err != nil {
		return err
	}

	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	policy, err := cfg.Seeding.Policy()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	sess, err := newSession(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	net, err := sess.loadNetwork()
	if err != nil {
		return err
	}
	rc := cfg.RunnerConfig()
	rc.KeepFirst = false
	runner, err := sess.runner(rc)
	if err != nil {
		return err
	}

	points, err := runner.Sweep(ctx, net, cfg.Parameters, axes, policy)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	name := "sweep_" + net.Name() + "_" + axis.Name + ".csv"
	path, err := writeOutput(cfg.Output.Dir, name, func(w io.Writer) error {
		return export.WriteSweepCSV(w, axis.Name, points)
	})
	if err != nil {
		return err
	}

	rs, err := openStore(cfg)
	if err != nil {
		return err
	}
	if rs != nil {
		defer rs.Close()
	}

	rows := make([]sweepRow, len(points))
	for i, p := range points {
		rows[i] = sweepRow{
			Value:     p.Value,
			Truncated: p.Result.Truncated(),
			Stats:     montecarlo.Describe(p.Result.ProtectedFractions()),
		}
		if rs != nil {
			id, err := rs.SaveRun(ctx, p.Result)
			if err != nil {
				return fmt.Errorf("failed to save run: %w", err)
			}
			rows[i].RunID = id
		}
	}

	baseSeed := uint64(0)
	if len(points) > 0 {
		baseSeed = points[0].Result.BaseSeed
	}

	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
			"network":   net.Name(),
			"axis":      axis.Name,
			"base":      cfg.Parameters,
			"trials":    rc.Trials,
			"base_seed": baseSeed,
			"points":    rows,
			"file":      path,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sweep of %s on %s, %d trials per point, base seed %d\n", axis.Name, net.Name(), rc.Trials, baseSeed)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VALUE\tMEAN\tSTD\tQ05\tMEDIAN\tQ95\tTRUNCATED")
	for _, r := range rows {
		fmt.Fprintf(w, "%g\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%d\n",
			r.Value, r.Stats.Mean, r.Stats.Std, r.Stats.Q05, r.Stats.Median, r.Stats.Q95, r.Truncated)
	}
	w.Flush()
	fmt.Fprintf(out, "Wrote %s\n", path)
	return nil
}
