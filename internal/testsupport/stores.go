package testsupport

import (
	"context"
	"sync"

	"FinSight/internal/domain/models"
)

// ModelStore is an in-memory repository.ModelStore.
type ModelStore struct {
	mu    sync.Mutex
	items map[string]*models.ModelArtifact
}

func NewModelStore() *ModelStore {
	return &ModelStore{items: make(map[string]*models.ModelArtifact)}
}

func (s *ModelStore) Save(_ context.Context, key string, a *models.ModelArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = a
	return nil
}

func (s *ModelStore) Load(_ context.Context, key string) (*models.ModelArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[key]
	if !ok {
		return nil, models.ErrArtifactNotFound
	}
	return a, nil
}

func (s *ModelStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Keys lists stored keys.
func (s *ModelStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	return out
}
