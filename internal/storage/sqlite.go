//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"drivesim/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveSweepManifest(ctx context.Context, manifest model.SweepManifest) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeSweepManifest(manifest)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sweep_manifests (sweep_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sweep_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, manifest.SweepID, manifest.SchemaVersion, manifest.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetSweepManifest(ctx context.Context, sweepID string) (model.SweepManifest, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.SweepManifest{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM sweep_manifests WHERE sweep_id = ?`, sweepID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SweepManifest{}, false, nil
		}
		return model.SweepManifest{}, false, err
	}

	manifest, err := DecodeSweepManifest(payload)
	if err != nil {
		return model.SweepManifest{}, false, fmt.Errorf("decode manifest %s: %w", sweepID, err)
	}
	return manifest, true, nil
}

func (s *SQLiteStore) SaveSweepRow(ctx context.Context, sweepID string, row model.SweepRow) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeSweepRow(row)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sweep_rows (sweep_id, param_key, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sweep_id, param_key) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, sweepID, row.Params.Key(), row.SchemaVersion, row.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetSweepRow(ctx context.Context, sweepID, paramKey string) (model.SweepRow, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.SweepRow{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM sweep_rows WHERE sweep_id = ? AND param_key = ?`, sweepID, paramKey).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SweepRow{}, false, nil
		}
		return model.SweepRow{}, false, err
	}

	row, err := DecodeSweepRow(payload)
	if err != nil {
		return model.SweepRow{}, false, fmt.Errorf("decode sweep row %s: %w", paramKey, err)
	}
	return row, true, nil
}

func (s *SQLiteStore) ListSweepRows(ctx context.Context, sweepID string) ([]model.SweepRow, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT param_key, payload FROM sweep_rows WHERE sweep_id = ? ORDER BY param_key`, sweepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]model.SweepRow, 0, 128)
	for rows.Next() {
		var paramKey string
		var payload []byte
		if err := rows.Scan(&paramKey, &payload); err != nil {
			return nil, err
		}
		row, err := DecodeSweepRow(payload)
		if err != nil {
			return nil, fmt.Errorf("decode sweep row %s: %w", paramKey, err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sweep_manifests (
			sweep_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS sweep_rows (
			sweep_id TEXT NOT NULL,
			param_key TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL,
			PRIMARY KEY (sweep_id, param_key)
		);
	`)
	return err
}
