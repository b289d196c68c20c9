package mcp

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
	"github.com/aaleta/C72h-whiteworms/internal/store"
)

const (
	recentRunsURI  = "whiteworms://runs/recent"
	runURIPrefix   = "whiteworms://runs/"
	recentRunLimit = 20
)

// registerResources registers read-only views of the result store.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         recentRunsURI,
		Name:        "whiteworms-recent-runs",
		Description: "The most recent stored Monte Carlo runs with their mean protected fraction.",
		MIMEType:    "text/markdown",
	}, s.handleRecentRunsResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: runURIPrefix + "{id}",
		Name:        "whiteworms-run",
		Description: "Rates, seeding and protected fraction statistics of one stored run.",
		MIMEType:    "text/markdown",
	}, s.handleRunResource)
}

func (s *Server) handleRecentRunsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	runs, err := s.store.ListRuns(ctx, store.RunFilter{Limit: recentRunLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Recent runs\n\n")
	if len(runs) == 0 {
		sb.WriteString("No runs stored yet. Use `whiteworms_estimate_protection` with `save: true`.\n")
	} else {
		sb.WriteString("| id | network | nodes | rates | trials | mean protected | created |\n")
		sb.WriteString("|---|---|---|---|---|---|---|\n")
		for _, r := range runs {
			fmt.Fprintf(&sb, "| %s | %s | %d | %s | %d | %.4f | %s |\n",
				r.ID, r.Network, r.Nodes, r.Params.Tag(), r.Trials, r.MeanProtected,
				r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}

	return textResource(recentRunsURI, sb.String()), nil
}

func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, runURIPrefix)
	if id == "" || id == uri {
		return nil, fmt.Errorf("invalid run URI: %s", uri)
	}

	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	trials, err := s.store.TrialsForRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	fractions := make([]float64, len(trials))
	for i, t := range trials {
		fractions[i] = t.ProtectedFraction
	}
	st := montecarlo.Describe(fractions)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Run %s\n\n", run.ID)
	fmt.Fprintf(&sb, "- network: %s (%d nodes, %d edges, directed=%t)\n", run.Network, run.Nodes, run.Edges, run.Directed)
	fmt.Fprintf(&sb, "- rates: beta_b=%g beta_w=%g epsilon=%g gamma=%g mu=%g\n",
		run.Params.BetaB, run.Params.BetaW, run.Params.Epsilon, run.Params.Gamma, run.Params.Mu)
	fmt.Fprintf(&sb, "- seeds: %d black, %d white; base seed %d\n", run.Black, run.White, run.BaseSeed)
	fmt.Fprintf(&sb, "- trials: %d (%d truncated)\n\n", run.Trials, run.Truncated)
	fmt.Fprintf(&sb, "Protected fraction: mean %.4f, std %.4f, median %.4f, 5%%-95%% [%.4f, %.4f]\n",
		st.Mean, st.Std, st.Median, st.Q05, st.Q95)

	return textResource(uri, sb.String()), nil
}

func textResource(uri, text string) *sdk.ReadResourceResult {
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: uri, MIMEType: "text/markdown", Text: text},
		},
	}
}
