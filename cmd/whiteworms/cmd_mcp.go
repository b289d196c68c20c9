package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aaleta/C72h-whiteworms/internal/mcp"
	"github.com/aaleta/C72h-whiteworms/internal/store"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the simulation tools over the Model Context Protocol (stdio)",
		Long: `Start an MCP server on stdin/stdout exposing the whiteworms tools:
whiteworms_estimate_protection, whiteworms_simulate, whiteworms_sweep,
whiteworms_list_runs and whiteworms_show_run, plus the run resources.

Clients may load networks from ~/.whiteworms and from --root. Logs go to
stderr; tool calls are audited to ~/.whiteworms/audit.jsonl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")

			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			sess, err := newSession(cmd.Context(), cmd, cfg)
			if err != nil {
				return err
			}
			defer sess.Close()

			rs, err := openStore(cfg)
			if err != nil {
				return err
			}

			auditDir, err := store.DataDir()
			if err != nil {
				auditDir = ""
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:      "whiteworms",
				Version:   version,
				Root:      root,
				Settings:  cfg,
				Store:     rs,
				Logger:    sess.log,
				Collector: sess.collector,
				AuditDir:  auditDir,
			})
			if err != nil {
				if rs != nil {
					rs.Close()
				}
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			return server.Run(cmd.Context())
		},
	}
	cmd.Flags().String("root", ".", "Extra directory clients may load networks from")
	cmd.Flags().String("network", "", "Default edge list for tool calls without one")
	cmd.Flags().Bool("directed", false, "Read the default network as directed")
	cmd.Flags().String("db", "", `Results database path, or "none" to keep runs in memory`)
	return cmd
}
