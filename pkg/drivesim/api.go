package drivesim

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"drivesim/internal/dynamics"
	"drivesim/internal/model"
	"drivesim/internal/stats"
	"drivesim/internal/storage"
	"drivesim/internal/sweep"
)

const (
	defaultSweepsDir  = "sweeps"
	defaultExportsDir = "exports"
	defaultDBPath     = "drivesim.db"
)

type Options struct {
	StoreKind  string
	DBPath     string
	SweepsDir  string
	ExportsDir string
}

// Client is the embedding surface for the simulator: single runs,
// checkpointed sweeps, and access to their durable artifacts.
type Client struct {
	store      storage.Store
	storeReady bool
	sim        *dynamics.Simulator

	sweepsDir  string
	exportsDir string
}

// RunRequest describes one simulation. The fitness multipliers are
// pointers because zero is a valid explicit value (a lethal genotype);
// nil means unset and defaults to 1.
type RunRequest struct {
	Generations       int
	DriveStrength     float64
	PaternitySRMales  float64
	FreqPolyandry     float64
	FitnessSTSRFemale *float64
	FitnessSRSRFemale *float64
	FitnessSRMale     *float64
	InitialFreqSR     float64
	Trace             bool
}

type RunSummary struct {
	Params         model.SimulationParameters
	FinalFreq      map[model.Genotype]float64
	PropSR         float64
	GenerationsRun int
	Reason         string
	Trajectory     []float64
}

type SweepRequest struct {
	GridPath  string
	SweepID   string
	ChunkSize int
	Workers   int
	OnChunk   func(chunk, chunks, rowsDone, rowsTotal int)
}

type SweepSummary struct {
	SweepID    string
	Dir        string
	Rows       int
	FailedRows int
	MeanPropSR float64
	StdPropSR  float64
	MinPropSR  float64
	MaxPropSR  float64
}

type SweepItem struct {
	SweepID      string
	Dir          string
	RowCount     int
	FailedRows   int
	MeanPropSR   float64
	CreatedAtUTC string
}

type ResultsRequest struct {
	SweepID string
	Latest  bool
}

type SweepRowItem struct {
	Params         model.SimulationParameters
	PropSR         float64
	GenerationsRun int
	Reason         string
	Failed         bool
	Error          string
}

type ResultsSummary struct {
	SweepID string
	Dir     string
	Summary SweepSummary
	Rows    []SweepRowItem
}

type MarginalRequest struct {
	SweepID string
	Latest  bool
	Axis    string
}

type MarginalItem struct {
	Value      float64
	MeanPropSR float64
	Rows       int
}

type ExportRequest struct {
	SweepID string
	Latest  bool
	OutDir  string
}

type ExportSummary struct {
	SweepID   string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	sweepsDir := opts.SweepsDir
	if sweepsDir == "" {
		sweepsDir = defaultSweepsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		sim:        dynamics.NewSimulator(),
		sweepsDir:  sweepsDir,
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func fitnessOrDefault(w *float64) float64 {
	if w == nil {
		return 1
	}
	return *w
}

// Run executes one recursion to termination. Unset (nil) fitness
// multipliers default to 1, an unset initial frequency to 0.01.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return RunSummary{}, err
	}
	if req.Generations <= 0 {
		req.Generations = 200
	}
	if req.InitialFreqSR == 0 {
		req.InitialFreqSR = 0.01
	}

	params := model.SimulationParameters{
		Generations:       req.Generations,
		DriveStrength:     req.DriveStrength,
		PaternitySRMales:  req.PaternitySRMales,
		FreqPolyandry:     req.FreqPolyandry,
		FitnessSTSRFemale: fitnessOrDefault(req.FitnessSTSRFemale),
		FitnessSRSRFemale: fitnessOrDefault(req.FitnessSRSRFemale),
		FitnessSRMale:     fitnessOrDefault(req.FitnessSRMale),
		InitialFreqSR:     req.InitialFreqSR,
	}

	var result dynamics.Result
	var err error
	if req.Trace {
		result, err = c.sim.RunWithTrajectory(params)
	} else {
		result, err = c.sim.Run(params)
	}
	if err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		Params:         params,
		FinalFreq:      result.Final.Freq.ToMap(),
		PropSR:         result.PropSR(),
		GenerationsRun: result.GenerationsRun,
		Reason:         string(result.Reason),
		Trajectory:     result.Trajectory,
	}, nil
}

// Sweep runs a parameter grid to completion, resuming from whatever
// chunk checkpoints the sweep directory already holds. The finished
// table is summarized, registered in the sweep index, and mirrored
// into the configured store.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) (SweepSummary, error) {
	if req.GridPath == "" {
		return SweepSummary{}, fmt.Errorf("grid path is required")
	}
	grid, err := sweep.LoadGrid(req.GridPath)
	if err != nil {
		return SweepSummary{}, err
	}
	rows, err := grid.Expand()
	if err != nil {
		return SweepSummary{}, err
	}

	sweepID := req.SweepID
	if sweepID == "" {
		sweepID = uuid.NewString()
	}
	dir := filepath.Join(c.sweepsDir, sweepID)

	runner, err := sweep.NewRunner(sweep.Config{
		OutDir:    dir,
		ChunkSize: req.ChunkSize,
		Workers:   req.Workers,
		SweepID:   sweepID,
		OnChunk:   req.OnChunk,
	})
	if err != nil {
		return SweepSummary{}, err
	}
	table, err := runner.Run(ctx, rows)
	if err != nil {
		return SweepSummary{}, err
	}
	sweepID = runner.SweepID()

	summary := stats.Summarize(table)
	if err := stats.WriteSweepSummary(dir, summary); err != nil {
		return SweepSummary{}, err
	}

	manifest, ok, err := stats.ReadManifest(dir)
	if err != nil {
		return SweepSummary{}, err
	}
	if !ok {
		return SweepSummary{}, fmt.Errorf("sweep %s finished without a manifest", sweepID)
	}
	if err := stats.AppendSweepIndex(c.sweepsDir, stats.SweepIndexEntry{
		SweepID:      sweepID,
		Dir:          dir,
		RowCount:     summary.Rows,
		FailedRows:   summary.FailedRows,
		MeanPropSR:   summary.MeanPropSR,
		CreatedAtUTC: manifest.CreatedAtUTC,
	}); err != nil {
		return SweepSummary{}, err
	}

	if err := c.persistSweep(ctx, manifest, table); err != nil {
		return SweepSummary{}, err
	}

	return SweepSummary{
		SweepID:    sweepID,
		Dir:        dir,
		Rows:       summary.Rows,
		FailedRows: summary.FailedRows,
		MeanPropSR: summary.MeanPropSR,
		StdPropSR:  summary.StdPropSR,
		MinPropSR:  summary.MinPropSR,
		MaxPropSR:  summary.MaxPropSR,
	}, nil
}

func (c *Client) ListSweeps() ([]SweepItem, error) {
	entries, err := stats.ListSweepIndex(c.sweepsDir)
	if err != nil {
		return nil, err
	}
	items := make([]SweepItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, SweepItem{
			SweepID:      entry.SweepID,
			Dir:          entry.Dir,
			RowCount:     entry.RowCount,
			FailedRows:   entry.FailedRows,
			MeanPropSR:   entry.MeanPropSR,
			CreatedAtUTC: entry.CreatedAtUTC,
		})
	}
	return items, nil
}

// resultRows resolves a sweep and loads its canonical result table once.
func (c *Client) resultRows(sweepID string, latest bool) (string, string, []model.SweepRow, error) {
	sweepID, err := c.resolveSweepID(sweepID, latest)
	if err != nil {
		return "", "", nil, err
	}
	dir := filepath.Join(c.sweepsDir, sweepID)

	rows, ok, err := stats.ReadResultsCSV(stats.ResultsPath(dir))
	if err != nil {
		return "", "", nil, err
	}
	if !ok {
		return "", "", nil, fmt.Errorf("sweep %s has no result table", sweepID)
	}
	return sweepID, dir, rows, nil
}

func (c *Client) Results(req ResultsRequest) (ResultsSummary, error) {
	sweepID, dir, rows, err := c.resultRows(req.SweepID, req.Latest)
	if err != nil {
		return ResultsSummary{}, err
	}

	summary := stats.Summarize(rows)
	items := make([]SweepRowItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, SweepRowItem{
			Params:         row.Params,
			PropSR:         row.PropSR(),
			GenerationsRun: row.GenerationsRun,
			Reason:         row.Reason,
			Failed:         row.Failed,
			Error:          row.Error,
		})
	}

	return ResultsSummary{
		SweepID: sweepID,
		Dir:     dir,
		Summary: SweepSummary{
			SweepID:    sweepID,
			Dir:        dir,
			Rows:       summary.Rows,
			FailedRows: summary.FailedRows,
			MeanPropSR: summary.MeanPropSR,
			StdPropSR:  summary.StdPropSR,
			MinPropSR:  summary.MinPropSR,
			MaxPropSR:  summary.MaxPropSR,
		},
		Rows: items,
	}, nil
}

func (c *Client) Marginal(req MarginalRequest) ([]MarginalItem, error) {
	pick, ok := marginalAxes[req.Axis]
	if !ok {
		return nil, fmt.Errorf("unsupported marginal axis: %s (want one of %v)", req.Axis, MarginalAxisNames())
	}

	_, _, rows, err := c.resultRows(req.SweepID, req.Latest)
	if err != nil {
		return nil, err
	}
	points := stats.MarginalMeans(rows, pick)
	items := make([]MarginalItem, 0, len(points))
	for _, point := range points {
		items = append(items, MarginalItem{
			Value:      point.Value,
			MeanPropSR: point.MeanPropSR,
			Rows:       point.Rows,
		})
	}
	return items, nil
}

func (c *Client) Export(req ExportRequest) (ExportSummary, error) {
	sweepID, err := c.resolveSweepID(req.SweepID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}

	dst, err := stats.ExportSweepArtifacts(c.sweepsDir, sweepID, outDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{SweepID: sweepID, Directory: dst}, nil
}

func (c *Client) resolveSweepID(sweepID string, latest bool) (string, error) {
	if sweepID != "" {
		return sweepID, nil
	}
	if !latest {
		return "", fmt.Errorf("sweep id is required (or pass latest)")
	}
	entries, err := stats.ListSweepIndex(c.sweepsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no sweeps found under %s", c.sweepsDir)
	}
	return entries[0].SweepID, nil
}

func (c *Client) persistSweep(ctx context.Context, manifest model.SweepManifest, table []model.SweepRow) error {
	if !c.storeReady {
		if err := c.store.Init(ctx); err != nil {
			return err
		}
		c.storeReady = true
	}
	if err := c.store.SaveSweepManifest(ctx, manifest); err != nil {
		return err
	}
	for _, row := range table {
		if err := c.store.SaveSweepRow(ctx, manifest.SweepID, row); err != nil {
			return err
		}
	}
	return nil
}

var marginalAxes = map[string]func(model.SimulationParameters) float64{
	"k":               func(p model.SimulationParameters) float64 { return p.DriveStrength },
	"paternity":       func(p model.SimulationParameters) float64 { return p.PaternitySRMales },
	"polyandry":       func(p model.SimulationParameters) float64 { return p.FreqPolyandry },
	"w_STSR_female":   func(p model.SimulationParameters) float64 { return p.FitnessSTSRFemale },
	"w_SRSR_female":   func(p model.SimulationParameters) float64 { return p.FitnessSRSRFemale },
	"w_SR_male":       func(p model.SimulationParameters) float64 { return p.FitnessSRMale },
	"initial_freq_SR": func(p model.SimulationParameters) float64 { return p.InitialFreqSR },
}

func MarginalAxisNames() []string {
	names := make([]string, 0, len(marginalAxes))
	for name := range marginalAxes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
