package storage

import (
	"context"

	"drivesim/internal/model"
)

// Store defines persistence operations for sweep records. Rows are
// keyed by sweep id plus the full parameter tuple key, never by their
// position in the requested grid.
type Store interface {
	Init(ctx context.Context) error
	SaveSweepManifest(ctx context.Context, manifest model.SweepManifest) error
	GetSweepManifest(ctx context.Context, sweepID string) (model.SweepManifest, bool, error)
	SaveSweepRow(ctx context.Context, sweepID string, row model.SweepRow) error
	GetSweepRow(ctx context.Context, sweepID, paramKey string) (model.SweepRow, bool, error)
	ListSweepRows(ctx context.Context, sweepID string) ([]model.SweepRow, error)
}
