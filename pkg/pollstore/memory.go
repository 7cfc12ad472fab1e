package pollstore

import (
	"context"
	"sync"
)

// MemoryStorage is the in-process PollStorage used for development and
// tests. State does not survive a restart.
type MemoryStorage struct {
	mu      sync.Mutex
	cursors map[string]map[string]bool
	events  map[string]map[string]any
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		cursors: make(map[string]map[string]bool),
		events:  make(map[string]map[string]any),
	}
}

func (s *MemoryStorage) FilterNew(_ context.Context, cursor string, itemIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, ok := s.cursors[cursor]
	if !ok {
		seen = make(map[string]bool)
		s.cursors[cursor] = seen
	}

	var fresh []string

	for _, id := range itemIDs {
		if seen[id] {
			continue
		}

		seen[id] = true
		fresh = append(fresh, id)
	}

	return fresh, nil
}

func (s *MemoryStorage) CaptureEvent(_ context.Context, key string, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[key] = payload

	return nil
}

func (s *MemoryStorage) TakeEvent(_ context.Context, key string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, ok := s.events[key]
	if !ok {
		return nil, nil
	}

	delete(s.events, key)

	return payload, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
