package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/catalogforge/ingestpipe/internal/port/outbound"
)

type menuItemKey struct {
	sourceID   string
	externalID string
}

// MenuItemStore is a fixed in-memory outbound.MenuItemStore, used by
// processor and pipeline tests in place of the sqlite-backed adapter.
type MenuItemStore struct {
	mu            sync.RWMutex
	records       map[menuItemKey]map[string]any
	silentColumns map[menuItemKey][]string
	destroyed     map[menuItemKey]string
}

// NewMenuItemStore builds an empty MenuItemStore.
func NewMenuItemStore() *MenuItemStore {
	return &MenuItemStore{
		records:       map[menuItemKey]map[string]any{},
		silentColumns: map[menuItemKey][]string{},
		destroyed:     map[menuItemKey]string{},
	}
}

// Seed installs an existing record, as if created by a prior batch.
func (s *MenuItemStore) Seed(sourceID, externalID string, fields map[string]any, silentColumns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := menuItemKey{sourceID, externalID}
	s.records[key] = cloneAny(fields)
	s.silentColumns[key] = append([]string(nil), silentColumns...)
}

func (s *MenuItemStore) Find(_ context.Context, sourceID, externalID string) (outbound.MenuItemRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := menuItemKey{sourceID, externalID}
	rec, ok := s.records[key]
	if !ok {
		return outbound.MenuItemRecord{}, false, nil
	}
	return outbound.MenuItemRecord{
		Fields:        cloneAny(rec),
		SilentColumns: append([]string(nil), s.silentColumns[key]...),
	}, true, nil
}

func (s *MenuItemStore) Create(_ context.Context, sourceID, externalID string, changes map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := menuItemKey{sourceID, externalID}
	if _, exists := s.records[key]; exists {
		return fmt.Errorf("memory: record %s/%s already exists", sourceID, externalID)
	}
	s.records[key] = cloneAny(changes)
	return nil
}

func (s *MenuItemStore) Update(_ context.Context, sourceID, externalID string, changes map[string]any, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := menuItemKey{sourceID, externalID}
	rec, ok := s.records[key]
	if !ok {
		return fmt.Errorf("memory: record %s/%s not found", sourceID, externalID)
	}
	for k, v := range changes {
		rec[k] = v
	}
	return nil
}

func (s *MenuItemStore) Destroy(_ context.Context, sourceID, externalID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := menuItemKey{sourceID, externalID}
	if _, ok := s.records[key]; !ok {
		return fmt.Errorf("memory: record %s/%s not found", sourceID, externalID)
	}
	delete(s.records, key)
	s.destroyed[key] = reason
	return nil
}

func cloneAny(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
