package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aaleta/C72h-whiteworms/internal/backup"
	"github.com/aaleta/C72h-whiteworms/internal/config"
	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
	"github.com/aaleta/C72h-whiteworms/internal/pathutil"
	"github.com/aaleta/C72h-whiteworms/internal/store"
)

// requireStore opens the results database for commands that only make
// sense with one.
func requireStore(cmd *cobra.Command) (store.ResultStore, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("db") {
		cfg.Output.Database, _ = cmd.Flags().GetString("db")
	}
	rs, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if rs == nil {
		return nil, errors.New("results database is disabled (output.database is \"none\")")
	}
	return rs, nil
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List saved Monte Carlo runs",
		Long: `List the runs saved in the results database, newest first.

Examples:
  whiteworms runs
  whiteworms runs --network karate --limit 5
  whiteworms runs export --output runs.json.gz
  whiteworms runs import runs.json.gz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			networkName, _ := cmd.Flags().GetString("network")
			limit, _ := cmd.Flags().GetInt("limit")

			rs, err := requireStore(cmd)
			if err != nil {
				return err
			}
			defer rs.Close()

			runs, err := rs.ListRuns(cmd.Context(), store.RunFilter{Network: networkName, Limit: limit})
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOut {
				if runs == nil {
					runs = []store.Run{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"runs":  runs,
					"count": len(runs),
				})
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs saved yet.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tNETWORK\tRATES\tTRIALS\tMEAN")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.4f\n",
					store.ShortID(r.ID), r.CreatedAt.Local().Format(time.DateTime),
					r.Network, r.Params.Tag(), r.Trials, r.MeanProtected)
			}
			return w.Flush()
		},
	}
	cmd.PersistentFlags().String("db", "", "Results database path (default: ~/.whiteworms/results.db)")
	cmd.Flags().String("network", "", "Only runs on this network")
	cmd.Flags().Int("limit", 20, "Maximum runs to list (0 = all)")

	cmd.AddCommand(
		newRunsDeleteCmd(),
		newRunsExportCmd(),
		newRunsImportCmd(),
		newRunsArchivesCmd(),
	)
	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a saved run with its protected fraction statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			showTrials, _ := cmd.Flags().GetBool("trials")

			rs, err := requireStore(cmd)
			if err != nil {
				return err
			}
			defer rs.Close()

			ctx := cmd.Context()
			run, err := rs.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			trials, err := rs.TrialsForRun(ctx, run.ID)
			if err != nil {
				return fmt.Errorf("failed to read trials: %w", err)
			}
			fractions := make([]float64, len(trials))
			for i, t := range trials {
				fractions[i] = t.ProtectedFraction
			}
			stats := montecarlo.Describe(fractions)

			if jsonOut {
				result := map[string]interface{}{
					"run":   run,
					"stats": stats,
				}
				if showTrials {
					result["trials"] = trials
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.CreatedAt.Local().Format(time.DateTime))
			fmt.Fprintf(out, "Network %s: %d nodes, %d edges, directed=%t\n", run.Network, run.Nodes, run.Edges, run.Directed)
			fmt.Fprintf(out, "Rates %s\n", run.Params.Tag())
			fmt.Fprintf(out, "Seeds: %d black, %d white; base seed %d\n", run.Black, run.White, run.BaseSeed)
			fmt.Fprintf(out, "Trials %d, truncated %d, elapsed %s\n", run.Trials, run.Truncated, time.Duration(run.ElapsedMS)*time.Millisecond)
			printStats(out, stats)
			if showTrials {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TRIAL\tSEED\tPROTECTED\tPEAK\tEVENTS\tSTOP")
				for _, t := range trials {
					fmt.Fprintf(w, "%d\t%d\t%.4f\t%d\t%d\t%s\n", t.Trial, t.Seed, t.ProtectedFraction, t.PeakBlackInfected, t.Events, t.Stop)
				}
				return w.Flush()
			}
			return nil
		},
	}
	cmd.Flags().String("db", "", "Results database path (default: ~/.whiteworms/results.db)")
	cmd.Flags().Bool("trials", false, "List every trial")
	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete RUN_ID",
		Short: "Delete a saved run and its trials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			rs, err := requireStore(cmd)
			if err != nil {
				return err
			}
			defer rs.Close()

			ctx := cmd.Context()
			run, err := rs.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			if err := rs.DeleteRun(ctx, run.ID); err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"deleted": run.ID,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", store.ShortID(run.ID))
			return nil
		},
	}
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [RUN_ID...]",
		Short: "Export runs to a compressed archive",
		Long: `Export saved runs and their trials to a checksummed, gzip-compressed archive.
Without run IDs every run (optionally of one network) is exported.

Default location: ~/.whiteworms/archives/whiteworms-runs-YYYYMMDD-HHMMSS.json.gz`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")
			networkName, _ := cmd.Flags().GetString("network")
			keep, _ := cmd.Flags().GetInt("keep")

			if outputPath == "" {
				dir, err := backup.DefaultArchiveDir()
				if err != nil {
					return fmt.Errorf("failed to get archive directory: %w", err)
				}
				outputPath = backup.GeneratePath(dir)
			} else {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				sandbox, err := pathutil.DataSandbox(cwd)
				if err != nil {
					return fmt.Errorf("failed to determine allowed directories: %w", err)
				}
				if outputPath, err = sandbox.Resolve(outputPath); err != nil {
					return fmt.Errorf("archive path rejected: %w", err)
				}
			}

			rs, err := requireStore(cmd)
			if err != nil {
				return err
			}
			defer rs.Close()

			archive, err := backup.Export(cmd.Context(), rs, outputPath, store.RunFilter{Network: networkName}, args...)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			var deleted []string
			if keep > 0 {
				deleted, err = backup.ApplyRetention(filepath.Dir(outputPath), &backup.CountPolicy{MaxCount: keep})
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to apply retention: %v\n", err)
				}
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"path":        outputPath,
					"run_count":   len(archive.Runs),
					"trial_count": archive.TrialCount(),
					"pruned":      deleted,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d runs (%d trials)\n", len(archive.Runs), archive.TrialCount())
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", outputPath)
			for _, d := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "  Pruned %s\n", filepath.Base(d))
			}
			return nil
		},
	}
	cmd.Flags().String("output", "", "Archive path (default: auto-generated in ~/.whiteworms/archives/)")
	cmd.Flags().String("network", "", "Only export runs on this network")
	cmd.Flags().Int("keep", 0, "Keep only the N newest archives in the output directory (0 = keep all)")
	return cmd
}

func newRunsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import ARCHIVE",
		Short: "Import runs from an archive",
		Long: `Import the runs of an archive into the results database. The archive's
checksum is verified first; runs already present are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			if err := backup.VerifyChecksum(args[0]); err != nil {
				return fmt.Errorf("archive verification failed: %w", err)
			}

			rs, err := requireStore(cmd)
			if err != nil {
				return err
			}
			defer rs.Close()

			result, err := backup.Import(cmd.Context(), rs, args[0])
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d runs (%d trials), skipped %d already present\n",
				result.RunsImported, result.TrialsImported, result.RunsSkipped)
			return nil
		},
	}
}

func newRunsArchivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List run archives and optionally prune old ones",
		Long: `List the archives in the archive directory, newest first.

With --keep or --max-age the archives kept by neither rule are deleted.

Examples:
  whiteworms runs archives
  whiteworms runs archives --keep 5
  whiteworms runs archives --max-age 30d`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dir, _ := cmd.Flags().GetString("dir")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetString("max-age")

			if dir == "" {
				var err error
				dir, err = backup.DefaultArchiveDir()
				if err != nil {
					return fmt.Errorf("failed to get archive directory: %w", err)
				}
			}

			var policies []backup.RetentionPolicy
			if keep > 0 {
				policies = append(policies, &backup.CountPolicy{MaxCount: keep})
			}
			if maxAge != "" {
				d, err := backup.ParseDuration(maxAge)
				if err != nil {
					return fmt.Errorf("invalid --max-age: %w", err)
				}
				policies = append(policies, &backup.AgePolicy{MaxAge: d})
			}

			var deleted []string
			if len(policies) > 0 {
				var err error
				deleted, err = backup.ApplyRetention(dir, &backup.CompositePolicy{Policies: policies})
				if err != nil {
					return fmt.Errorf("failed to apply retention: %w", err)
				}
			}

			archives, err := backup.ListArchives(dir)
			if err != nil {
				return err
			}

			if jsonOut {
				if archives == nil {
					archives = []backup.ArchiveInfo{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"archives": archives,
					"count":    len(archives),
					"pruned":   deleted,
				})
			}

			out := cmd.OutOrStdout()
			for _, d := range deleted {
				fmt.Fprintf(out, "Pruned %s\n", filepath.Base(d))
			}
			if len(archives) == 0 {
				fmt.Fprintln(out, "No archives found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tCREATED\tRUNS\tTRIALS\tSIZE")
			for _, a := range archives {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
					filepath.Base(a.Path), a.CreatedAt.Local().Format(time.DateTime), a.Runs, a.Trials, a.Size)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("dir", "", "Archive directory (default: ~/.whiteworms/archives)")
	cmd.Flags().Int("keep", 0, "Keep the N newest archives")
	cmd.Flags().String("max-age", "", "Keep archives newer than this (e.g. 720h, 30d, 2w)")
	return cmd
}
