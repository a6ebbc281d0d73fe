package elements

import (
	"sort"
	"sync"
	"time"
)

// Store provides thread-safe access to the current dataset of each group.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{datasets: make(map[string]*Dataset)}
}

// Get returns the current dataset for group, or nil if none has been loaded.
func (s *Store) Get(group string) *Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.datasets[group]
}

// Set replaces the dataset for ds.Group. Datasets are never mutated after
// Set; readers holding an old pointer keep a consistent view.
func (s *Store) Set(ds *Dataset) {
	s.mu.Lock()
	s.datasets[ds.Group] = ds
	s.mu.Unlock()
}

// Groups returns the names of loaded groups, sorted.
func (s *Store) Groups() []string {
	s.mu.RLock()
	groups := make([]string, 0, len(s.datasets))
	for g := range s.datasets {
		groups = append(groups, g)
	}
	s.mu.RUnlock()
	sort.Strings(groups)
	return groups
}

// Len returns the number of loaded groups.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datasets)
}

// AgeSeconds returns the age of a group's dataset in seconds.
// Returns -1 if no dataset is loaded.
func (s *Store) AgeSeconds(group string) float64 {
	ds := s.Get(group)
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}
