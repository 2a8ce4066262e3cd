// Package client implements the interactive CLI shell, the
// sync_config.json pairs table, and the fsnotify-driven sync auto mode.
package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SyncPair is one local<->remote directory pairing tracked by
// `sync list`/`sync add`/`sync remove`.
type SyncPair struct {
	ID         int    `json:"id"`
	LocalPath  string `json:"local_path"`
	RemotePath string `json:"remote_path"`
}

// syncConfigFile is the on-disk shape of sync_config.json.
type syncConfigFile struct {
	Pairs  []SyncPair `json:"pairs"`
	NextID int        `json:"next_id"`
}

// SyncConfigStore loads, mutates, and atomically persists the client's
// sync_config.json, grounded on pkg/sync/state_store.go's
// load/mutate/atomic-save cycle (simplified: one small JSON document
// instead of a per-session cache, since the client only ever has one
// local config file, not many server-side sync states).
type SyncConfigStore struct {
	path string
	data syncConfigFile
}

// LoadSyncConfigStore reads path, or starts empty if it does not exist.
func LoadSyncConfigStore(path string) (*SyncConfigStore, error) {
	s := &SyncConfigStore{path: path, data: syncConfigFile{NextID: 1}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read sync config %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse sync config %s: %w", path, err)
	}
	return s, nil
}

// List returns all pairs ordered by id.
func (s *SyncConfigStore) List() []SyncPair {
	out := make([]SyncPair, len(s.data.Pairs))
	copy(out, s.data.Pairs)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Add appends a new pair and persists the store, returning the
// assigned id.
func (s *SyncConfigStore) Add(local, remote string) (int, error) {
	id := s.data.NextID
	s.data.Pairs = append(s.data.Pairs, SyncPair{ID: id, LocalPath: local, RemotePath: remote})
	s.data.NextID++
	if err := s.save(); err != nil {
		return 0, err
	}
	return id, nil
}

// Remove deletes the pair with the given id, returning false if no such
// pair exists.
func (s *SyncConfigStore) Remove(id int) (bool, error) {
	for i, p := range s.data.Pairs {
		if p.ID == id {
			s.data.Pairs = append(s.data.Pairs[:i], s.data.Pairs[i+1:]...)
			if err := s.save(); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// save writes the store atomically: write to a temp file in the same
// directory, then rename over the destination, matching
// pkg/sync/state_store.go's write-then-replace persistence pattern.
func (s *SyncConfigStore) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create sync config directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sync config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write sync config temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace sync config: %w", err)
	}
	return nil
}
