package export

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/aaleta/C72h-whiteworms/internal/gillespie"
	"github.com/aaleta/C72h-whiteworms/internal/model"
)

// TrajectorySchema returns the Arrow schema of a trajectory: a float64
// "time" column and one int64 column per compartment. meta is attached as
// schema metadata, together with the node count and stop reason.
func TrajectorySchema(traj *gillespie.Trajectory, meta map[string]string) *arrow.Schema {
	fields := make([]arrow.Field, 0, model.NumCompartments+1)
	fields = append(fields, arrow.Field{Name: "time", Type: arrow.PrimitiveTypes.Float64})
	for _, c := range model.Compartments {
		fields = append(fields, arrow.Field{Name: c.String(), Type: arrow.PrimitiveTypes.Int64})
	}

	all := map[string]string{
		"nodes":    strconv.Itoa(traj.Nodes),
		"absorbed": strconv.FormatBool(traj.Absorbed),
		"stop":     traj.Stop.String(),
	}
	maps.Copy(all, meta)
	keys := slices.Sorted(maps.Keys(all))
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = all[k]
	}
	md := arrow.NewMetadata(keys, values)
	return arrow.NewSchema(fields, &md)
}

// WriteTrajectoryArrow writes traj as a single-record Arrow IPC file.
func WriteTrajectoryArrow(w io.Writer, traj *gillespie.Trajectory, meta map[string]string) error {
	mem := memory.NewGoAllocator()
	schema := TrajectorySchema(traj, meta)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	b.Field(0).(*array.Float64Builder).AppendValues(traj.Times, nil)
	for j := range model.Compartments {
		col := b.Field(j + 1).(*array.Int64Builder)
		col.Reserve(len(traj.Counts))
		for _, counts := range traj.Counts {
			col.UnsafeAppend(int64(counts[j]))
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to create arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("failed to write arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close arrow writer: %w", err)
	}
	return nil
}
