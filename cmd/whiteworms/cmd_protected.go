package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aaleta/C72h-whiteworms/internal/export"
	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
	"github.com/aaleta/C72h-whiteworms/internal/store"
)

func newProtectedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "protected",
		Short: "Estimate the fraction of hosts that end up protected",
		Long: `Run a Monte Carlo batch and report the final protected fraction
(Pg + Pmu over all hosts) of every trial.

The per-trial summaries are written to
<output>/protected_<network>_bB.._bW.._e.._g.._m...csv and the run is saved
to the results database unless --db none is given.

Examples:
  whiteworms protected --network karate.edges --iterations 500 --seed 42
  whiteworms protected --network email.edges --beta-w 2 --white 5 --keep-trajectory
  whiteworms protected --network karate.edges --json`,
		RunE: runProtected,
	}
	addSimulationFlags(cmd, true)
	cmd.Flags().Bool("print-fractions", false, "Print every trial's protected fraction")
	return cmd
}

func runProtected(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	printFractions, _ := cmd.Flags().GetBool("print-fractions")

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
	runner, err := sess.runner(cfg.RunnerConfig())
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, net, cfg.Parameters, policy)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}

	stem := export.FileStem("protected", net.Name(), cfg.Parameters)
	files := []string{}
	path, err := writeOutput(cfg.Output.Dir, stem+".csv", func(w io.Writer) error {
		return export.WriteTrialsCSV(w, res.Trials)
	})
	if err != nil {
		return err
	}
	files = append(files, path)

	if res.First != nil {
		paths, err := writeTrajectory(cfg.Output.Dir, stem+"_trajectory", cfg.Output.TrajectoryFormat, res.First, trajectoryMeta(net, res))
		if err != nil {
			return err
		}
		files = append(files, paths...)
	}

	runID := ""
	rs, err := openStore(cfg)
	if err != nil {
		return err
	}
	if rs != nil {
		defer rs.Close()
		runID, err = rs.SaveRun(ctx, res)
		if err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		sess.log.Debug("run saved", "id", runID)
	}

	fractions := res.ProtectedFractions()
	stats := montecarlo.Describe(fractions)

	if jsonOut {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
			"run_id":    runID,
			"network":   res.Network,
			"nodes":     res.Nodes,
			"params":    res.Params,
			"trials":    len(res.Trials),
			"base_seed": res.BaseSeed,
			"truncated": res.Truncated(),
			"stats":     stats,
			"fractions": fractions,
			"files":     files,
		})
	}

	out := cmd.OutOrStdout()
	printRunHeader(out, res)
	printStats(out, stats)
	if printFractions {
		parts := make([]string, len(fractions))
		for i, f := range fractions {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		fmt.Fprintf(out, "Fractions: %s\n", strings.Join(parts, " "))
	}
	for _, f := range files {
		fmt.Fprintf(out, "Wrote %s\n", f)
	}
	if runID != "" {
		fmt.Fprintf(out, "Saved run %s\n", store.ShortID(runID))
	}
	return nil
}

func printRunHeader(out io.Writer, res *montecarlo.Result) {
	fmt.Fprintf(out, "Network %s: %d nodes, %d edges\n", res.Network, res.Nodes, res.Edges)
	fmt.Fprintf(out, "Rates %s, %d trials, base seed %d\n", res.Params.Tag(), len(res.Trials), res.BaseSeed)
	if n := res.Truncated(); n > 0 {
		fmt.Fprintf(out, "Warning: %d trials stopped before absorption\n", n)
	}
}

func printStats(out io.Writer, st montecarlo.Stats) {
	fmt.Fprintf(out, "Protected fraction: mean %.4f  std %.4f\n", st.Mean, st.Std)
	fmt.Fprintf(out, "  min %.4f  q05 %.4f  median %.4f  q95 %.4f  max %.4f\n",
		st.Min, st.Q05, st.Median, st.Q95, st.Max)
}
