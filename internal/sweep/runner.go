package sweep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"drivesim/internal/dynamics"
	"drivesim/internal/model"
	"drivesim/internal/stats"
)

// ErrGridMismatch reports a checkpoint directory whose manifest was
// written for a different parameter grid.
var ErrGridMismatch = errors.New("checkpoint directory belongs to a different parameter grid")

// Config controls one sweep invocation.
type Config struct {
	// OutDir receives the manifest, chunk checkpoints, and canonical
	// result table. Resuming means pointing a new invocation at the
	// same directory.
	OutDir string
	// ChunkSize bounds how many rows are lost by an interruption and
	// how much a worker batch can cost. Defaults to 64.
	ChunkSize int
	// Workers bounds the worker pool per chunk. Defaults to 1.
	Workers int
	// SweepID names the sweep; generated when empty.
	SweepID string
	// OnChunk, when set, is called after every chunk with completion
	// counts for progress reporting.
	OnChunk func(chunk, chunks, rowsDone, rowsTotal int)
}

func (c Config) withDefaults() (Config, error) {
	if c.OutDir == "" {
		return c, fmt.Errorf("output directory is required")
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 64
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.SweepID == "" {
		c.SweepID = uuid.NewString()
	}
	return c, nil
}

// Runner executes independent simulation rows over a parameter grid:
// chunked for progress and durability, parallel inside each chunk, and
// idempotent across repeated invocations over the same directory.
type Runner struct {
	cfg Config
	sim *dynamics.Simulator
}

func NewRunner(cfg Config) (*Runner, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, sim: dynamics.NewSimulator()}, nil
}

// SweepID reports the effective sweep identity, which may have been
// generated or adopted from an existing manifest during Run.
func (r *Runner) SweepID() string {
	return r.cfg.SweepID
}

// Run executes every requested row that has no persisted result yet and
// returns the full result table in grid order. Completed work is
// recognized by parameter tuple, so rerunning a finished or interrupted
// sweep never recomputes a persisted row. Cancellation is honored at
// chunk boundaries; the chunks already persisted stay valid.
func (r *Runner) Run(ctx context.Context, rows []model.SimulationParameters) ([]model.SweepRow, error) {
	for i, row := range rows {
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("parameter grid is empty")
	}
	if err := os.MkdirAll(r.cfg.OutDir, 0o755); err != nil {
		return nil, err
	}

	gridHash := HashRows(rows)
	if err := r.reconcileManifest(gridHash, len(rows)); err != nil {
		return nil, err
	}

	// A canonical table covering the full grid makes the sweep a no-op.
	if table, ok, err := stats.ReadResultsCSV(stats.ResultsPath(r.cfg.OutDir)); err != nil {
		return nil, err
	} else if ok && len(table) == len(rows) {
		return table, nil
	}

	completed, err := loadCompletedRows(r.cfg.OutDir)
	if err != nil {
		return nil, err
	}

	chunks := (len(rows) + r.cfg.ChunkSize - 1) / r.cfg.ChunkSize
	for chunk := 0; chunk < chunks; chunk++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := chunk * r.cfg.ChunkSize
		end := start + r.cfg.ChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunkRows := rows[start:end]

		missing := make([]model.SimulationParameters, 0, len(chunkRows))
		for _, row := range chunkRows {
			if _, done := completed[row.Key()]; !done {
				missing = append(missing, row)
			}
		}
		if len(missing) > 0 {
			results := r.runChunk(missing)
			for _, res := range results {
				completed[res.Params.Key()] = res
			}
			// The checkpoint holds every completed row of this chunk,
			// including rows recovered from an earlier partial pass.
			persisted := make([]model.SweepRow, 0, len(chunkRows))
			for _, row := range chunkRows {
				if res, done := completed[row.Key()]; done {
					persisted = append(persisted, res)
				}
			}
			if err := writeChunk(r.cfg.OutDir, r.cfg.SweepID, chunk, persisted); err != nil {
				return nil, err
			}
		}
		if r.cfg.OnChunk != nil {
			done := 0
			for _, row := range rows {
				if _, ok := completed[row.Key()]; ok {
					done++
				}
			}
			r.cfg.OnChunk(chunk+1, chunks, done, len(rows))
		}
	}

	table := make([]model.SweepRow, 0, len(rows))
	for i, row := range rows {
		res, ok := completed[row.Key()]
		if !ok {
			return nil, fmt.Errorf("row %d (%s) missing after sweep completion", i, row.Key())
		}
		table = append(table, res)
	}
	if err := stats.WriteResultsCSV(stats.ResultsPath(r.cfg.OutDir), table); err != nil {
		return nil, err
	}
	return table, nil
}

// runChunk fans the chunk's rows over the worker pool. Rows are fully
// independent; workers share only the immutable catalog and memoized
// zygote tables inside the simulator.
func (r *Runner) runChunk(missing []model.SimulationParameters) []model.SweepRow {
	type job struct {
		idx    int
		params model.SimulationParameters
	}

	jobs := make(chan job)
	results := make([]model.SweepRow, len(missing))

	workerCount := r.cfg.Workers
	if workerCount > len(missing) {
		workerCount = len(missing)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.idx] = r.runRow(j.params)
			}
		}()
	}
	for i := range missing {
		jobs <- job{idx: i, params: missing[i]}
	}
	close(jobs)
	wg.Wait()

	return results
}

func (r *Runner) runRow(params model.SimulationParameters) model.SweepRow {
	res, err := r.sim.Run(params)
	if err != nil {
		// A degenerate configuration fails the row, not the sweep.
		return model.SweepRow{
			VersionedRecord: rowVersion(),
			Params:          params,
			Reason:          "failed",
			Failed:          true,
			Error:           err.Error(),
		}
	}
	return model.SweepRow{
		VersionedRecord: rowVersion(),
		Params:          params,
		FinalFreq:       res.Final.Freq.ToMap(),
		GenerationsRun:  res.GenerationsRun,
		Reason:          string(res.Reason),
	}
}

func rowVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: chunkSchemaVersion, CodecVersion: chunkCodecVersion}
}

// reconcileManifest adopts the manifest of a resumed sweep, or writes a
// fresh one. A manifest pinned to a different grid hash fails the
// invocation before any row runs.
func (r *Runner) reconcileManifest(gridHash string, rowCount int) error {
	existing, ok, err := stats.ReadManifest(r.cfg.OutDir)
	if err != nil {
		return err
	}
	if ok {
		if existing.GridHash != gridHash {
			return fmt.Errorf("%w: manifest hash %s, requested %s", ErrGridMismatch, existing.GridHash, gridHash)
		}
		r.cfg.SweepID = existing.SweepID
		if existing.ChunkSize > 0 {
			// Keep the original chunk layout so checkpoint files keep
			// their deterministic destinations across resumes.
			r.cfg.ChunkSize = existing.ChunkSize
		}
		return nil
	}
	return stats.WriteManifest(r.cfg.OutDir, model.SweepManifest{
		SweepID:      r.cfg.SweepID,
		GridHash:     gridHash,
		RowCount:     rowCount,
		ChunkSize:    r.cfg.ChunkSize,
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
	})
}
