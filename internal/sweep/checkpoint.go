package sweep

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"drivesim/internal/model"
)

// chunkFile is one durable checkpoint: the completed rows of one
// positional chunk of the requested grid. Chunk index determines the
// file name, so concurrent sweeps over the same directory never write
// the same destination twice.
type chunkFile struct {
	model.VersionedRecord
	SweepID string           `json:"sweep_id"`
	Chunk   int              `json:"chunk"`
	Rows    []model.SweepRow `json:"rows"`
}

const (
	chunkSchemaVersion = 1
	chunkCodecVersion  = 1
)

func chunkPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("chunk_%05d.json", index))
}

// writeChunk persists one chunk checkpoint. The write goes through a
// temp file and rename so an interrupted sweep never leaves a torn
// checkpoint behind.
func writeChunk(dir, sweepID string, index int, rows []model.SweepRow) error {
	payload := chunkFile{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: chunkSchemaVersion,
			CodecVersion:  chunkCodecVersion,
		},
		SweepID: sweepID,
		Chunk:   index,
		Rows:    rows,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	path := chunkPath(dir, index)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// loadCompletedRows reads every chunk checkpoint under dir and returns
// the completed rows keyed by full parameter tuple. The key, not the
// row's position or chunk membership, is what resume reconciliation
// trusts.
func loadCompletedRows(dir string) (map[string]model.SweepRow, error) {
	pattern := filepath.Join(dir, "chunk_*.json")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]model.SweepRow)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var chunk chunkFile
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
		}
		if chunk.SchemaVersion != chunkSchemaVersion || chunk.CodecVersion != chunkCodecVersion {
			return nil, fmt.Errorf("checkpoint %s: unsupported version %d/%d", path, chunk.SchemaVersion, chunk.CodecVersion)
		}
		for _, row := range chunk.Rows {
			completed[row.Params.Key()] = row
		}
	}
	return completed, nil
}
