package store

import (
	"maps"
	"sync"

	"github.com/masterkusok/mpprefs/internal/value"
)

type InMemoryStorage struct {
	mutex sync.RWMutex
	data  map[string]value.Value
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		data: make(map[string]value.Value),
	}
}

func (s *InMemoryStorage) Get(key string) (value.Value, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	val, ok := s.data[key]
	if ok {
		return val, nil
	}
	return value.Value{}, ErrKeyNotFound
}

func (s *InMemoryStorage) Set(key string, val value.Value) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.data[key] = val
	return nil
}

func (s *InMemoryStorage) Delete(key string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, ok := s.data[key]
	delete(s.data, key)
	return ok, nil
}

func (s *InMemoryStorage) Clear() (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	n := len(s.data)
	clear(s.data)
	return n, nil
}

func (s *InMemoryStorage) GetSnapshot() (map[string]value.Value, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return maps.Clone(s.data), nil
}

func (s *InMemoryStorage) ApplySnapshot(data map[string]value.Value) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.data = maps.Clone(data)
	if s.data == nil {
		s.data = make(map[string]value.Value)
	}
	return nil
}
