package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/starford/sowilo/internal/apperr"
)

// Memory is an in-process Store with an optional byte quota.
type Memory struct {
	mu     sync.Mutex
	values map[string][]byte
	quota  int
}

// NewMemory returns an empty store. quota 0 means unlimited.
func NewMemory(quota int) *Memory {
	return &Memory{values: make(map[string][]byte), quota: quota}
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, fmt.Errorf("storage: get %s: %w", key, apperr.ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quota > 0 {
		used := 0
		for k, v := range m.values {
			if k != key {
				used += len(v)
			}
		}
		if used+len(value) > m.quota {
			return fmt.Errorf("storage: set %s: %w", key, ErrQuotaExceeded)
		}
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *Memory) Keys(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

var (
	_ Store = (*FS)(nil)
	_ Store = (*Memory)(nil)
)
