package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	json "github.com/goccy/go-json"

	"drivesim/internal/model"
)

const (
	manifestFile   = "manifest.json"
	resultsFile    = "results.csv"
	summaryFile    = "summary.json"
	sweepIndexFile = "sweep_index.json"
)

const (
	manifestSchemaVersion = 1
	manifestCodecVersion  = 1
)

// ResultsPath is the canonical result table location inside a sweep
// directory.
func ResultsPath(dir string) string {
	return filepath.Join(dir, resultsFile)
}

func WriteManifest(dir string, manifest model.SweepManifest) error {
	if manifest.SweepID == "" {
		return fmt.Errorf("sweep id is required")
	}
	manifest.SchemaVersion = manifestSchemaVersion
	manifest.CodecVersion = manifestCodecVersion
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, manifestFile), manifest)
}

func ReadManifest(dir string) (model.SweepManifest, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.SweepManifest{}, false, nil
		}
		return model.SweepManifest{}, false, err
	}
	var manifest model.SweepManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return model.SweepManifest{}, false, err
	}
	if manifest.SchemaVersion != manifestSchemaVersion || manifest.CodecVersion != manifestCodecVersion {
		return model.SweepManifest{}, false, fmt.Errorf("manifest version %d/%d is unsupported", manifest.SchemaVersion, manifest.CodecVersion)
	}
	return manifest, true, nil
}

// SweepIndexEntry is one line of the sweep registry kept beside the
// per-sweep directories.
type SweepIndexEntry struct {
	SweepID      string  `json:"sweep_id"`
	Dir          string  `json:"dir"`
	RowCount     int     `json:"row_count"`
	FailedRows   int     `json:"failed_rows"`
	MeanPropSR   float64 `json:"mean_prop_sr"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

func AppendSweepIndex(baseDir string, entry SweepIndexEntry) error {
	if entry.SweepID == "" {
		return fmt.Errorf("sweep id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListSweepIndex(baseDir)
	if err != nil {
		return err
	}
	for i := range index {
		if index[i].SweepID == entry.SweepID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, sweepIndexFile), index)
		}
	}
	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, sweepIndexFile), index)
}

func ListSweepIndex(baseDir string) ([]SweepIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, sweepIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []SweepIndexEntry{}, nil
		}
		return nil, err
	}
	var entries []SweepIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

var resultsHeader = []string{
	"generations", "k", "paternity_of_SR_males", "freq_polyandry",
	"w_STSR_female", "w_SRSR_female", "w_SR_male", "initial_freq_SR",
	"freq_STST_female", "freq_STSR_female", "freq_SRSR_female",
	"freq_ST_male", "freq_SR_male",
	"prop_SR", "generations_run", "reason", "error",
}

// WriteResultsCSV persists the canonical result table: one row per
// requested parameter combination, parameter columns first, then the
// terminal genotype frequencies and the derived prop_SR.
func WriteResultsCSV(path string, rows []model.SweepRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(resultsHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			strconv.Itoa(row.Params.Generations),
			formatFloat(row.Params.DriveStrength),
			formatFloat(row.Params.PaternitySRMales),
			formatFloat(row.Params.FreqPolyandry),
			formatFloat(row.Params.FitnessSTSRFemale),
			formatFloat(row.Params.FitnessSRSRFemale),
			formatFloat(row.Params.FitnessSRMale),
			formatFloat(row.Params.InitialFreqSR),
		}
		if row.Failed {
			record = append(record, "", "", "", "", "", "", strconv.Itoa(row.GenerationsRun), row.Reason, row.Error)
		} else {
			record = append(record,
				formatFloat(row.FinalFreq[model.GenotypeSTSTFemale]),
				formatFloat(row.FinalFreq[model.GenotypeSTSRFemale]),
				formatFloat(row.FinalFreq[model.GenotypeSRSRFemale]),
				formatFloat(row.FinalFreq[model.GenotypeSTMale]),
				formatFloat(row.FinalFreq[model.GenotypeSRMale]),
				formatFloat(row.PropSR()),
				strconv.Itoa(row.GenerationsRun),
				row.Reason,
				"",
			)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadResultsCSV loads a canonical result table. prop_SR is not trusted
// from the file; callers derive it from the frequency columns.
func ReadResultsCSV(path string) ([]model.SweepRow, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err == io.EOF {
		return []model.SweepRow{}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(header) != len(resultsHeader) {
		return nil, false, fmt.Errorf("result table has %d columns, want %d", len(header), len(resultsHeader))
	}

	rows := make([]model.SweepRow, 0, 128)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		line++
		row, err := parseResultRecord(record)
		if err != nil {
			return nil, false, fmt.Errorf("result table line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}

func parseResultRecord(record []string) (model.SweepRow, error) {
	if len(record) != len(resultsHeader) {
		return model.SweepRow{}, fmt.Errorf("row has %d columns, want %d", len(record), len(resultsHeader))
	}

	generations, err := strconv.Atoi(record[0])
	if err != nil {
		return model.SweepRow{}, fmt.Errorf("generations: %w", err)
	}
	floats := make([]float64, 7)
	for i := range floats {
		floats[i], err = strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return model.SweepRow{}, fmt.Errorf("%s: %w", resultsHeader[i+1], err)
		}
	}
	generationsRun, err := strconv.Atoi(record[14])
	if err != nil {
		return model.SweepRow{}, fmt.Errorf("generations_run: %w", err)
	}

	row := model.SweepRow{
		Params: model.SimulationParameters{
			Generations:       generations,
			DriveStrength:     floats[0],
			PaternitySRMales:  floats[1],
			FreqPolyandry:     floats[2],
			FitnessSTSRFemale: floats[3],
			FitnessSRSRFemale: floats[4],
			FitnessSRMale:     floats[5],
			InitialFreqSR:     floats[6],
		},
		GenerationsRun: generationsRun,
		Reason:         record[15],
		Error:          record[16],
	}
	if row.Error != "" {
		row.Failed = true
		return row, nil
	}

	freqCols := []model.Genotype{
		model.GenotypeSTSTFemale, model.GenotypeSTSRFemale, model.GenotypeSRSRFemale,
		model.GenotypeSTMale, model.GenotypeSRMale,
	}
	row.FinalFreq = make(map[model.Genotype]float64, len(freqCols))
	for i, g := range freqCols {
		v, err := strconv.ParseFloat(record[8+i], 64)
		if err != nil {
			return model.SweepRow{}, fmt.Errorf("%s: %w", resultsHeader[8+i], err)
		}
		row.FinalFreq[g] = v
	}
	return row, nil
}

// WriteTrajectoryCSV persists a single run's per-generation SR allele
// frequency series.
func WriteTrajectoryCSV(path string, trajectory []float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "prop_SR"}); err != nil {
		return err
	}
	for i, v := range trajectory {
		if err := writer.Write([]string{strconv.Itoa(i + 1), formatFloat(v)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func WriteSweepSummary(dir string, summary Summary) error {
	return writeJSON(filepath.Join(dir, summaryFile), summary)
}

func ReadSweepSummary(dir string) (Summary, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, summaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Summary{}, false, nil
		}
		return Summary{}, false, err
	}
	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return Summary{}, false, err
	}
	return summary, true, nil
}

// ExportSweepArtifacts copies the durable artifacts of a sweep into
// outDir. Chunk checkpoints are intermediate state and stay behind.
func ExportSweepArtifacts(baseDir, sweepID, outDir string) (string, error) {
	if sweepID == "" {
		return "", fmt.Errorf("sweep id is required")
	}

	src := filepath.Join(baseDir, sweepID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, sweepID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{manifestFile, resultsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	summaryPath := filepath.Join(src, summaryFile)
	if _, err := os.Stat(summaryPath); err == nil {
		if err := copyFile(summaryPath, filepath.Join(dst, summaryFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
