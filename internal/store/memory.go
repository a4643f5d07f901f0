package store

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is a Store that lives and dies with the process.
type Memory struct {
	lock   sync.RWMutex
	values map[string]string
	blobs  map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]string),
		blobs:  make(map[string][]byte),
	}
}

func (m *Memory) Lookup(key string) (any, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	value, ok := m.values[key]
	if !ok {
		return nil, false
	}
	return value, true
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) SaveJSON(_ context.Context, key string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.blobs[key] = body
	return nil
}

func (m *Memory) LoadJSON(_ context.Context, key string, value any) (bool, error) {
	m.lock.RLock()
	body, ok := m.blobs[key]
	m.lock.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(body, value)
}
