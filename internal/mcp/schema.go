package mcp

import (
	"github.com/aaleta/C72h-whiteworms/internal/model"
	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
	"github.com/aaleta/C72h-whiteworms/internal/store"
)

// EstimateProtectionInput defines the input for the whiteworms_estimate_protection tool.
type EstimateProtectionInput struct {
	Network   string   `json:"network,omitempty" jsonschema:"Path to an edge-list file; defaults to the configured network"`
	Directed  bool     `json:"directed,omitempty" jsonschema:"Treat each edge u v as u influencing v only"`
	BetaB     *float64 `json:"beta_b,omitempty" jsonschema:"Black worm infection rate per edge"`
	BetaW     *float64 `json:"beta_w,omitempty" jsonschema:"White worm infection rate per edge"`
	Epsilon   *float64 `json:"epsilon,omitempty" jsonschema:"White worm activation rate"`
	Gamma     *float64 `json:"gamma,omitempty" jsonschema:"User remediation rate once prompted by a white worm"`
	Mu        *float64 `json:"mu,omitempty" jsonschema:"White worm self-remediation rate"`
	Black     *int     `json:"black,omitempty" jsonschema:"Number of initially black-infected nodes"`
	White     *int     `json:"white,omitempty" jsonschema:"Number of initially white-infected nodes"`
	Trials    int      `json:"trials,omitempty" jsonschema:"Number of Monte Carlo trials (capped at 10000)"`
	Seed      uint64   `json:"seed,omitempty" jsonschema:"Base seed for reproducible runs; 0 draws a random seed"`
	MaxTime   float64  `json:"max_time,omitempty" jsonschema:"Stop each trial at this simulated time; 0 runs to absorption"`
	MaxEvents int      `json:"max_events,omitempty" jsonschema:"Stop each trial after this many events; 0 is unbounded"`
	Save      bool     `json:"save,omitempty" jsonschema:"Persist the run to the result store"`
}

// EstimateProtectionOutput defines the output for the whiteworms_estimate_protection tool.
type EstimateProtectionOutput struct {
	RunID     string           `json:"run_id,omitempty" jsonschema:"ID of the stored run when save was requested"`
	Network   string           `json:"network" jsonschema:"Network name"`
	Nodes     int              `json:"nodes" jsonschema:"Number of nodes"`
	Edges     int              `json:"edges" jsonschema:"Number of edges"`
	Params    model.Params     `json:"params" jsonschema:"Rates used"`
	Trials    int              `json:"trials" jsonschema:"Number of trials run"`
	BaseSeed  uint64           `json:"base_seed" jsonschema:"Base seed; rerun with it to reproduce"`
	Truncated int              `json:"truncated" jsonschema:"Trials stopped by a budget before absorption"`
	Stats     montecarlo.Stats `json:"stats" jsonschema:"Distribution of the final protected fraction"`
	ElapsedMS int64            `json:"elapsed_ms" jsonschema:"Wall-clock duration"`
	Message   string           `json:"message" jsonschema:"Human-readable summary"`
}

// SimulateInput defines the input for the whiteworms_simulate tool.
type SimulateInput struct {
	Network   string   `json:"network,omitempty" jsonschema:"Path to an edge-list file; defaults to the configured network"`
	Directed  bool     `json:"directed,omitempty" jsonschema:"Treat each edge u v as u influencing v only"`
	BetaB     *float64 `json:"beta_b,omitempty" jsonschema:"Black worm infection rate per edge"`
	BetaW     *float64 `json:"beta_w,omitempty" jsonschema:"White worm infection rate per edge"`
	Epsilon   *float64 `json:"epsilon,omitempty" jsonschema:"White worm activation rate"`
	Gamma     *float64 `json:"gamma,omitempty" jsonschema:"User remediation rate once prompted by a white worm"`
	Mu        *float64 `json:"mu,omitempty" jsonschema:"White worm self-remediation rate"`
	Black     *int     `json:"black,omitempty" jsonschema:"Number of initially black-infected nodes"`
	White     *int     `json:"white,omitempty" jsonschema:"Number of initially white-infected nodes"`
	Seed      uint64   `json:"seed,omitempty" jsonschema:"Seed for a reproducible trajectory; 0 draws a random seed"`
	MaxTime   float64  `json:"max_time,omitempty" jsonschema:"Stop at this simulated time; 0 runs to absorption"`
	MaxEvents int      `json:"max_events,omitempty" jsonschema:"Stop after this many events; 0 is unbounded"`
	MaxPoints int      `json:"max_points,omitempty" jsonschema:"Maximum number of samples returned (default 200)"`
}

// Sample is one downsampled point of a trajectory.
type Sample struct {
	Time   float64        `json:"time"`
	Counts map[string]int `json:"counts"`
}

// SimulateOutput defines the output for the whiteworms_simulate tool.
type SimulateOutput struct {
	Network           string         `json:"network" jsonschema:"Network name"`
	Nodes             int            `json:"nodes" jsonschema:"Number of nodes"`
	Seed              uint64         `json:"seed" jsonschema:"Base seed; rerun with it to reproduce"`
	Events            int            `json:"events" jsonschema:"Number of events simulated"`
	FinalTime         float64        `json:"final_time" jsonschema:"Time of the last event"`
	Stop              string         `json:"stop" jsonschema:"Why the run ended: absorbed, max_time or max_events"`
	ProtectedFraction float64        `json:"protected_fraction" jsonschema:"Final share of protected nodes"`
	PeakBlackInfected int            `json:"peak_black_infected" jsonschema:"Largest simultaneous count of black-infected nodes"`
	Final             map[string]int `json:"final" jsonschema:"Final count per compartment"`
	Samples           []Sample       `json:"samples" jsonschema:"Downsampled trajectory including the first and last sample"`
}

// SweepInput defines the input for the whiteworms_sweep tool.
type SweepInput struct {
	Network   string   `json:"network,omitempty" jsonschema:"Path to an edge-list file; defaults to the configured network"`
	Directed  bool     `json:"directed,omitempty" jsonschema:"Treat each edge u v as u influencing v only"`
	Axis      string   `json:"axis" jsonschema:"Rate to vary and its values, e.g. beta_w=0.1,0.5,1"`
	BetaB     *float64 `json:"beta_b,omitempty" jsonschema:"Black worm infection rate per edge"`
	BetaW     *float64 `json:"beta_w,omitempty" jsonschema:"White worm infection rate per edge"`
	Epsilon   *float64 `json:"epsilon,omitempty" jsonschema:"White worm activation rate"`
	Gamma     *float64 `json:"gamma,omitempty" jsonschema:"User remediation rate once prompted by a white worm"`
	Mu        *float64 `json:"mu,omitempty" jsonschema:"White worm self-remediation rate"`
	Black     *int     `json:"black,omitempty" jsonschema:"Number of initially black-infected nodes"`
	White     *int     `json:"white,omitempty" jsonschema:"Number of initially white-infected nodes"`
	Trials    int      `json:"trials,omitempty" jsonschema:"Trials per sweep point"`
	Seed      uint64   `json:"seed,omitempty" jsonschema:"Base seed shared by every point; 0 draws a random seed"`
	MaxTime   float64  `json:"max_time,omitempty" jsonschema:"Stop each trial at this simulated time; 0 runs to absorption"`
	MaxEvents int      `json:"max_events,omitempty" jsonschema:"Stop each trial after this many events; 0 is unbounded"`
}

// SweepPointSummary summarizes one sweep point.
type SweepPointSummary struct {
	Value     float64          `json:"value"`
	Stats     montecarlo.Stats `json:"stats"`
	Truncated int              `json:"truncated"`
}

// SweepOutput defines the output for the whiteworms_sweep tool.
type SweepOutput struct {
	Network  string              `json:"network" jsonschema:"Network name"`
	Rate     string              `json:"rate" jsonschema:"Name of the swept rate"`
	BaseSeed uint64              `json:"base_seed" jsonschema:"Base seed shared by every point"`
	Points   []SweepPointSummary `json:"points" jsonschema:"Protected fraction statistics per value"`
}

// ListRunsInput defines the input for the whiteworms_list_runs tool.
type ListRunsInput struct {
	Network string `json:"network,omitempty" jsonschema:"Only list runs on this network name"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum number of runs (default 20)"`
}

// ListRunsOutput defines the output for the whiteworms_list_runs tool.
type ListRunsOutput struct {
	Runs  []store.Run `json:"runs" jsonschema:"Stored runs, newest first"`
	Count int         `json:"count" jsonschema:"Number of runs returned"`
}

// ShowRunInput defines the input for the whiteworms_show_run tool.
type ShowRunInput struct {
	ID string `json:"id" jsonschema:"Run ID or unique prefix"`
}

// ShowRunOutput defines the output for the whiteworms_show_run tool.
type ShowRunOutput struct {
	Run      store.Run        `json:"run"`
	Stats    montecarlo.Stats `json:"stats" jsonschema:"Protected fraction over all trials"`
	Absorbed montecarlo.Stats `json:"absorbed" jsonschema:"Protected fraction over trials that reached absorption"`
}
