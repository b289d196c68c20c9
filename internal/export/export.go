// Package export writes trial summaries and trajectories to files: CSV for
// spreadsheets and Apache Arrow IPC for columnar analysis tools.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aaleta/C72h-whiteworms/internal/gillespie"
	"github.com/aaleta/C72h-whiteworms/internal/model"
	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
)

// FileStem names an output file from its kind, the network name and the
// rates, e.g. "protected_karate_bB1.1_bW0.5_e1_g0.25_m2".
func FileStem(kind, network string, p model.Params) string {
	return kind + "_" + network + "_" + p.Tag()
}

// Create opens dir/name for writing, creating dir as needed.
func Create(dir, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

var trialHeader = []string{
	"trial", "seed", "protected_fraction",
	"peak_black_infected", "peak_black_fraction", "peak_time",
	"persistence_window", "final_time", "events", "absorbed", "stop",
}

// WriteTrialsCSV writes one row per trial summary.
func WriteTrialsCSV(w io.Writer, trials []montecarlo.TrialSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(trialHeader); err != nil {
		return err
	}
	for _, t := range trials {
		row := []string{
			strconv.Itoa(t.Trial),
			strconv.FormatUint(t.Seed, 10),
			formatFloat(t.ProtectedFraction),
			strconv.Itoa(t.PeakBlackInfected),
			formatFloat(t.PeakBlackFraction),
			formatFloat(t.PeakTime),
			formatFloat(t.PersistenceWindow),
			formatFloat(t.FinalTime),
			strconv.Itoa(t.Events),
			strconv.FormatBool(t.Absorbed),
			t.Stop,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTrajectoryCSV writes one row per sample: the time followed by the
// count of every compartment in canonical order.
func WriteTrajectoryCSV(w io.Writer, traj *gillespie.Trajectory) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, model.NumCompartments+1)
	header = append(header, "time")
	for _, c := range model.Compartments {
		header = append(header, c.String())
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for i, t := range traj.Times {
		row[0] = formatFloat(t)
		for j, v := range traj.Counts[i] {
			row[j+1] = strconv.Itoa(v)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var sweepHeader = []string{
	"rate", "value", "trials", "truncated",
	"mean", "std", "min", "q05", "median", "q95", "max",
}

// WriteSweepCSV writes one row per sweep point with the protected fraction
// statistics of its batch.
func WriteSweepCSV(w io.Writer, rate string, points []montecarlo.SweepPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sweepHeader); err != nil {
		return err
	}
	for _, p := range points {
		st := montecarlo.Describe(p.Result.ProtectedFractions())
		row := []string{
			rate,
			formatFloat(p.Value),
			strconv.Itoa(st.N),
			strconv.Itoa(p.Result.Truncated()),
			formatFloat(st.Mean),
			formatFloat(st.Std),
			formatFloat(st.Min),
			formatFloat(st.Q05),
			formatFloat(st.Median),
			formatFloat(st.Q95),
			formatFloat(st.Max),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
