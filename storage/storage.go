// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package storage defines the opaque key-value capability a session client
// uses to keep data that must survive a full page navigation, such as the
// state of an in-flight authentication request.
package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidParameter is returned when a key is empty.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Storage is a minimal key-value store. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Get returns the value stored for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns every key starting with prefix, in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Memory is an in-memory Storage. The zero value is not usable; see NewMemory.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Storage = (*Memory)(nil)

// NewMemory returns an empty in-memory Storage.
func NewMemory() *Memory {
	return &Memory{data: map[string][]byte{}}
}

// Get implements Storage.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Set implements Storage.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return ErrInvalidParameter
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = cp
	return nil
}

// Delete implements Storage.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Keys implements Storage.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
