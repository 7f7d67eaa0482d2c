package storage

import (
	"errors"

	json "github.com/goccy/go-json"

	"drivesim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeSweepRow(row model.SweepRow) ([]byte, error) {
	return json.Marshal(row)
}

func DecodeSweepRow(data []byte) (model.SweepRow, error) {
	var row model.SweepRow
	if err := json.Unmarshal(data, &row); err != nil {
		return model.SweepRow{}, err
	}
	if err := checkVersion(row.VersionedRecord); err != nil {
		return model.SweepRow{}, err
	}
	return row, nil
}

func EncodeSweepManifest(manifest model.SweepManifest) ([]byte, error) {
	return json.Marshal(manifest)
}

func DecodeSweepManifest(data []byte) (model.SweepManifest, error) {
	var manifest model.SweepManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return model.SweepManifest{}, err
	}
	if err := checkVersion(manifest.VersionedRecord); err != nil {
		return model.SweepManifest{}, err
	}
	return manifest, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
