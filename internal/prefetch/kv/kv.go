// Package kv provides the string-keyed, string-valued persistence strategies
// used by the model store and the navigation history.
//
// Three backends are available:
//   - memory: process-local map, used for tests and ephemeral sessions
//   - sqlite: a single kv_store table in a modernc.org/sqlite database
//   - badger: an embedded BadgerDB directory
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrClosed is returned when an operation is attempted on a closed store.
var ErrClosed = errors.New("kv store is closed")

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Store is a minimal get/set key-value store.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Close releases the backend.
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Logger *slog.Logger
	// Backend is one of BackendMemory, BackendSQLite, BackendBadger.
	Backend string
	// Path is the database file (sqlite) or directory (badger).
	Path string
}

// Open builds the store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		return OpenSQLite(ctx, opts.Path)
	case BackendBadger:
		return OpenBadger(BadgerConfig{Path: opts.Path, SyncWrites: true, Logger: opts.Logger})
	default:
		return nil, fmt.Errorf("unknown kv backend %q", opts.Backend)
	}
}

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	data   map[string]string
	mu     sync.RWMutex
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.data[key] = value
	return nil
}

// Close implements Store. Further calls fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
