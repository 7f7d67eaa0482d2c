package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"drivesim/internal/genetics"
	"drivesim/internal/stats"
	"drivesim/internal/storage"
	simapi "drivesim/pkg/drivesim"
)

const (
	defaultSweepsDir  = "sweeps"
	defaultExportsDir = "exports"
	defaultDBPath     = "drivesim.db"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "sweep":
		return runSweep(ctx, args[1:])
	case "sweeps":
		return runSweeps(ctx, args[1:])
	case "results":
		return runResults(ctx, args[1:])
	case "marginal":
		return runMarginal(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config YAML path")
	generations := fs.Int("gens", 200, "generation budget")
	k := fs.Float64("k", 0, "drive strength of SR males in [0,1]")
	paternity := fs.Float64("paternity", 0.5, "paternity share of the SR male in mixed double matings")
	polyandry := fs.Float64("polyandry", 0, "fraction of females mating twice")
	wSTSR := fs.Float64("w-stsr-female", 1, "relative fitness of ST/SR females")
	wSRSR := fs.Float64("w-srsr-female", 1, "relative fitness of SR/SR females")
	wSRMale := fs.Float64("w-sr-male", 1, "relative fitness of SR males")
	initial := fs.Float64("initial", 0.01, "initial SR allele frequency in (0,1)")
	trace := fs.Bool("trace", false, "record the per-generation SR frequency series")
	traceOut := fs.String("trace-out", "", "write the recorded series to a CSV file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *traceOut != "" && !*trace {
		return errors.New("trace-out requires trace")
	}

	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req := simapi.RunRequest{
		Generations:       *generations,
		DriveStrength:     *k,
		PaternitySRMales:  *paternity,
		FreqPolyandry:     *polyandry,
		FitnessSTSRFemale: wSTSR,
		FitnessSRSRFemale: wSRSR,
		FitnessSRMale:     wSRMale,
		InitialFreqSR:     *initial,
		Trace:             *trace,
	}
	if *configPath != "" {
		loaded, err := loadRunRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		loaded.Trace = req.Trace
		overrideFromFlags(&loaded, req, setFlags)
		req = loaded
	}

	client, err := simapi.New(simapi.Options{StoreKind: "memory"})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run completed generations=%d reason=%s\n", summary.GenerationsRun, summary.Reason)
	fmt.Printf("prop_SR=%.6f\n", summary.PropSR)
	for _, genotype := range genetics.Genotypes {
		fmt.Printf("freq_%s=%.6f\n", genotype, summary.FinalFreq[genotype])
	}
	if *traceOut != "" {
		if err := stats.WriteTrajectoryCSV(*traceOut, summary.Trajectory); err != nil {
			return err
		}
		fmt.Printf("trajectory=%s\n", *traceOut)
	}
	return nil
}

func runSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	gridPath := fs.String("grid", "", "sweep grid YAML path (required)")
	sweepID := fs.String("sweep-id", "", "explicit sweep id; pass the same id to resume")
	chunkSize := fs.Int("chunk-size", 64, "rows per checkpoint chunk")
	workers := fs.Int("workers", 4, "worker count")
	quiet := fs.Bool("quiet", false, "suppress per-chunk progress")
	sweepsDir, storeKind, dbPath := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *gridPath == "" {
		return errors.New("grid is required")
	}

	client, err := simapi.New(simapi.Options{
		StoreKind: *storeKind,
		DBPath:    *dbPath,
		SweepsDir: *sweepsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := simapi.SweepRequest{
		GridPath:  *gridPath,
		SweepID:   *sweepID,
		ChunkSize: *chunkSize,
		Workers:   *workers,
	}
	if !*quiet {
		req.OnChunk = func(chunk, chunks, rowsDone, rowsTotal int) {
			fmt.Printf("chunk %d/%d rows=%s/%s\n",
				chunk, chunks,
				humanize.Comma(int64(rowsDone)), humanize.Comma(int64(rowsTotal)))
		}
	}

	summary, err := client.Sweep(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("sweep completed sweep_id=%s rows=%s failed=%d\n",
		summary.SweepID, humanize.Comma(int64(summary.Rows)), summary.FailedRows)
	fmt.Printf("prop_SR mean=%.6f std=%.6f min=%.6f max=%.6f\n",
		summary.MeanPropSR, summary.StdPropSR, summary.MinPropSR, summary.MaxPropSR)
	fmt.Printf("artifacts_dir=%s\n", summary.Dir)
	return nil
}

func runSweeps(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("sweeps", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max sweeps to list")
	sweepsDir := fs.String("sweeps-dir", defaultSweepsDir, "sweep artifacts directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListSweepIndex(*sweepsDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no sweeps found")
		return nil
	}
	if len(entries) > *limit {
		entries = entries[:*limit]
	}

	for _, entry := range entries {
		fmt.Printf("sweep_id=%s created=%s rows=%s failed=%d mean_prop_SR=%.6f\n",
			entry.SweepID, entry.CreatedAtUTC,
			humanize.Comma(int64(entry.RowCount)), entry.FailedRows, entry.MeanPropSR)
	}
	return nil
}

func runResults(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("results", flag.ContinueOnError)
	sweepID := fs.String("sweep-id", "", "sweep id")
	latest := fs.Bool("latest", false, "use the most recent sweep")
	failedOnly := fs.Bool("failed-only", false, "list only failed rows")
	sweepsDir := fs.String("sweeps-dir", defaultSweepsDir, "sweep artifacts directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := simapi.New(simapi.Options{StoreKind: "memory", SweepsDir: *sweepsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	results, err := client.Results(simapi.ResultsRequest{SweepID: *sweepID, Latest: *latest})
	if err != nil {
		return err
	}

	fmt.Printf("sweep_id=%s rows=%d failed=%d mean_prop_SR=%.6f\n",
		results.SweepID, results.Summary.Rows, results.Summary.FailedRows, results.Summary.MeanPropSR)
	for _, row := range results.Rows {
		if *failedOnly && !row.Failed {
			continue
		}
		if row.Failed {
			fmt.Printf("k=%g paternity=%g polyandry=%g failed error=%q\n",
				row.Params.DriveStrength, row.Params.PaternitySRMales, row.Params.FreqPolyandry, row.Error)
			continue
		}
		fmt.Printf("k=%g paternity=%g polyandry=%g w=%g/%g/%g initial=%g prop_SR=%.6f generations=%d reason=%s\n",
			row.Params.DriveStrength, row.Params.PaternitySRMales, row.Params.FreqPolyandry,
			row.Params.FitnessSTSRFemale, row.Params.FitnessSRSRFemale, row.Params.FitnessSRMale,
			row.Params.InitialFreqSR, row.PropSR, row.GenerationsRun, row.Reason)
	}
	return nil
}

func runMarginal(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("marginal", flag.ContinueOnError)
	sweepID := fs.String("sweep-id", "", "sweep id")
	latest := fs.Bool("latest", false, "use the most recent sweep")
	axis := fs.String("axis", "k", fmt.Sprintf("parameter axis: %v", simapi.MarginalAxisNames()))
	sweepsDir := fs.String("sweeps-dir", defaultSweepsDir, "sweep artifacts directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := simapi.New(simapi.Options{StoreKind: "memory", SweepsDir: *sweepsDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	points, err := client.Marginal(simapi.MarginalRequest{SweepID: *sweepID, Latest: *latest, Axis: *axis})
	if err != nil {
		return err
	}
	for _, point := range points {
		fmt.Printf("%s=%g mean_prop_SR=%.6f rows=%d\n", *axis, point.Value, point.MeanPropSR, point.Rows)
	}
	return nil
}

func runExport(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	sweepID := fs.String("sweep-id", "", "sweep id")
	latest := fs.Bool("latest", false, "use the most recent sweep")
	outDir := fs.String("out", defaultExportsDir, "export destination directory")
	sweepsDir := fs.String("sweeps-dir", defaultSweepsDir, "sweep artifacts directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := simapi.New(simapi.Options{StoreKind: "memory", SweepsDir: *sweepsDir, ExportsDir: *outDir})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	export, err := client.Export(simapi.ExportRequest{SweepID: *sweepID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported sweep_id=%s dir=%s\n", export.SweepID, export.Directory)
	return nil
}

func commonFlags(fs *flag.FlagSet) (sweepsDir, storeKind, dbPath *string) {
	sweepsDir = fs.String("sweeps-dir", defaultSweepsDir, "sweep artifacts directory")
	storeKind = fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath = fs.String("db-path", defaultDBPath, "sqlite database path")
	return sweepsDir, storeKind, dbPath
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: drivesimctl <run|sweep|sweeps|results|marginal|export> [flags]", msg)
}
