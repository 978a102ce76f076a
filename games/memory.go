package games

import (
	"context"
	"sync"
)

// MemoryStore keeps games in process memory. Everything is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	games map[string]Game
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{games: make(map[string]Game)}
}

func (s *MemoryStore) Create(_ context.Context, g Game) (Game, error) {
	g = withID(g)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.games[g.ID]; ok {
		return Game{}, ErrExists
	}
	s.games[g.ID] = g

	return g.clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.games[id]
	if !ok {
		return Game{}, ErrNotFound
	}

	return g.clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, g Game) error {
	if g.ID == "" {
		return ErrNotFound
	}

	s.mu.Lock()
	s.games[g.ID] = g.clone()
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, u Update) (Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.games[id]
	if !ok {
		return Game{}, ErrNotFound
	}

	g = u.Apply(g)
	s.games[id] = g

	return g.clone(), nil
}
