// Package store holds prediction results between the submission and the
// results page.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Get when no value is stored under a key.
var ErrNotFound = errors.New("result not found")

// ResultKey is the fixed name results are stored under.
const ResultKey = "analysisResults"

// Store is a small key-value store for serialized results.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// SessionKey scopes ResultKey to one session.
func SessionKey(sessionID string) string {
	return fmt.Sprintf("%s/%s", sessionID, ResultKey)
}

// Open returns the store named by driver.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

// Memory keeps results in process.
type Memory struct {
	values sync.Map
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.values.Store(key, append([]byte(nil), value...))
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.values.Load(key)
	if !ok {
		return nil, ErrNotFound
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("internal type assertion error for %q", key)
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.values.Delete(key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
