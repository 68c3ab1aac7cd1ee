package storage

import (
	"context"
	"sync"

	"github.com/irportal/anchorsign/internal/common"
)

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	objs map[string]Object
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objs: make(map[string]Object)}
}

func (s *MemoryStore) Put(ctx context.Context, ref string, obj Object) error {
	if !ValidRef(ref) {
		return ErrInvalidRef
	}
	obj.Data = append([]byte(nil), obj.Data...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs[ref] = obj
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, ref string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objs[ref]
	if !ok {
		return nil, common.ErrorNotFound
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return &obj, nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objs, ref)
	return nil
}
