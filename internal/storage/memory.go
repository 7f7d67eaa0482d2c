package storage

import (
	"context"
	"sort"
	"sync"

	"drivesim/internal/model"
)

type MemoryStore struct {
	mu        sync.RWMutex
	manifests map[string]model.SweepManifest
	rows      map[string]map[string]model.SweepRow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.manifests = make(map[string]model.SweepManifest)
	s.rows = make(map[string]map[string]model.SweepRow)
	return nil
}

func (s *MemoryStore) SaveSweepManifest(_ context.Context, manifest model.SweepManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.manifests[manifest.SweepID] = manifest
	return nil
}

func (s *MemoryStore) GetSweepManifest(_ context.Context, sweepID string) (model.SweepManifest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	manifest, ok := s.manifests[sweepID]
	return manifest, ok, nil
}

func (s *MemoryStore) SaveSweepRow(_ context.Context, sweepID string, row model.SweepRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySweep, ok := s.rows[sweepID]
	if !ok {
		bySweep = make(map[string]model.SweepRow)
		s.rows[sweepID] = bySweep
	}
	bySweep[row.Params.Key()] = copyRow(row)
	return nil
}

func (s *MemoryStore) GetSweepRow(_ context.Context, sweepID, paramKey string) (model.SweepRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[sweepID][paramKey]
	if !ok {
		return model.SweepRow{}, false, nil
	}
	return copyRow(row), true, nil
}

func (s *MemoryStore) ListSweepRows(_ context.Context, sweepID string) ([]model.SweepRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bySweep := s.rows[sweepID]
	keys := make([]string, 0, len(bySweep))
	for key := range bySweep {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]model.SweepRow, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, copyRow(bySweep[key]))
	}
	return rows, nil
}

func copyRow(row model.SweepRow) model.SweepRow {
	if row.FinalFreq == nil {
		return row
	}
	freq := make(map[model.Genotype]float64, len(row.FinalFreq))
	for genotype, v := range row.FinalFreq {
		freq[genotype] = v
	}
	row.FinalFreq = freq
	return row
}
