package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is a GORM-backed key/value store. Multi-key writes and removals
// run inside a single transaction so readers never see half of a batch.
// Use constructor NewStore to obtain an instance.
type GormStore struct{ db *gorm.DB }

// NewStore creates a GormStore. Accepts *gorm.DB to avoid global access.
func NewStore(gdb *gorm.DB) *GormStore { return &GormStore{db: gdb} }

func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.db == nil {
		return "", false, fmt.Errorf("store not initialized")
	}
	var e Entry
	err := s.db.WithContext(ctx).First(&e, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return e.Value, true, nil
}

// GetMany reads keys in one transaction. Missing keys are absent from the result.
func (s *GormStore) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var entries []Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("key IN ?", keys).Find(&entries).Error
	})
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out, nil
}

func (s *GormStore) SetMany(ctx context.Context, values map[string]string) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if len(values) == 0 {
		return nil
	}
	entries := make([]Entry, 0, len(values))
	for _, k := range sortedKeys(values) {
		entries = append(entries, Entry{Key: k, Value: values[k]})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&entries).Error
	})
}

func (s *GormStore) RemoveMany(ctx context.Context, keys ...string) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("key IN ?", keys).Delete(&Entry{}).Error
	})
}

// MemoryStore keeps entries in process memory, for tests that do not need a
// database file.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *MemoryStore) GetMany(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.entries[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemoryStore) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.entries[k] = v
	}
	return nil
}

func (m *MemoryStore) RemoveMany(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// Len reports how many entries are held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
