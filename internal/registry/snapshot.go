package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Snapshot schema versioning for forward-compatibility.
const snapshotVersion = 1

type snapshot struct {
	Version int    `json:"version"`
	NextID  uint64 `json:"next_id"`
	Runs    []Run  `json:"runs"`
	Created int64  `json:"created_unix"`
}

func (r *Registry) loadSnapshot(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var s snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode history %s: %w", path, err)
	}
	if s.Version > snapshotVersion {
		return fmt.Errorf("history %s: unsupported version %d", path, s.Version)
	}

	runs := s.Runs
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })

	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs = runs
	r.nextID = RunID(s.NextID)
	if n := len(runs); n > 0 && runs[n-1].ID >= r.nextID {
		r.nextID = runs[n-1].ID + 1
	}
	if r.nextID == 0 {
		r.nextID = 1
	}
	r.evictLocked()
	return nil
}

func (r *Registry) saveSnapshot(path string) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	r.mu.RLock()
	s := snapshot{
		Version: snapshotVersion,
		NextID:  uint64(r.nextID),
		Created: now().Unix(),
		Runs:    make([]Run, 0, len(r.runs)),
	}
	s.Runs = append(s.Runs, r.runs...)
	r.mu.RUnlock()

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
