package claims

import (
	"context"
	"sync"

	"github.com/rollkit/poe/types"
)

// MemStore is a Store kept in memory.
type MemStore struct {
	mtx    sync.RWMutex
	claims map[string]types.Claim
}

var _ Store = &MemStore{}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{claims: make(map[string]types.Claim)}
}

func (s *MemStore) Has(_ context.Context, proof types.Proof) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	_, ok := s.claims[string(proof)]
	return ok, nil
}

func (s *MemStore) Get(_ context.Context, proof types.Proof) (types.Claim, bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	claim, ok := s.claims[string(proof)]
	return claim, ok, nil
}

func (s *MemStore) Set(_ context.Context, proof types.Proof, claim types.Claim) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.claims[string(proof)] = claim
	return nil
}

func (s *MemStore) Delete(_ context.Context, proof types.Proof) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.claims, string(proof))
	return nil
}

// Len returns the number of claims.
func (s *MemStore) Len() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.claims)
}
