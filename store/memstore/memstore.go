// Package memstore is an in-memory store.Store, strongly consistent
// (every write is immediately visible), used for local development and as
// the reference backend exercised by the rest of the repo's unit tests.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/brrr-dev/brrr/store"
)

// Store is a mutex-guarded map[store.Key][]byte. The zero value is not
// usable; construct with New.
type Store struct {
	mu   sync.Mutex
	data map[store.Key][]byte
}

// New creates an empty Store.
func New() *Store {
	return &Store{data: make(map[store.Key][]byte)}
}

func (s *Store) Has(_ context.Context, key store.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *Store) Get(_ context.Context, key store.Key) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("memstore: get %s: %w", key, store.ErrNotFound)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Set(_ context.Context, key store.Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = cloneBytes(value)
	return nil
}

func (s *Store) Delete(_ context.Context, key store.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) SetNewValue(_ context.Context, key store.Key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return fmt.Errorf("memstore: set new value %s: %w", key, store.ErrAlreadyExists)
	}
	s.data[key] = cloneBytes(value)
	return nil
}

func (s *Store) CompareAndSet(_ context.Context, key store.Key, newValue, expected []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[key]
	if !ok {
		return fmt.Errorf("memstore: compare-and-set %s: %w", key, store.ErrNotFound)
	}
	if !bytes.Equal(cur, expected) {
		return fmt.Errorf("memstore: compare-and-set %s: %w", key, store.ErrCompareMismatch)
	}
	s.data[key] = cloneBytes(newValue)
	return nil
}

func (s *Store) CompareAndDelete(_ context.Context, key store.Key, expected []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[key]
	if !ok {
		return fmt.Errorf("memstore: compare-and-delete %s: %w", key, store.ErrNotFound)
	}
	if !bytes.Equal(cur, expected) {
		return fmt.Errorf("memstore: compare-and-delete %s: %w", key, store.ErrCompareMismatch)
	}
	delete(s.data, key)
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ store.Store = (*Store)(nil)
