// Package history keeps the bounded, most-recent-first navigation log the
// engine reads recency signals from.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/runger/warmroute/internal/prefetch/kv"
	"github.com/runger/warmroute/internal/prefetch/route"
)

// DefaultCap is the default number of retained entries.
const DefaultCap = 10

// DefaultKey is the key the history is persisted under.
const DefaultKey = "warmroute:history"

// Entry is one recorded navigation.
type Entry struct {
	Route route.Route `json:"route"`
	TsMs  int64       `json:"ts"`
}

// Reader exposes the bounded, most-recent-first history. Index 0 is the
// newest entry.
type Reader interface {
	Entries() []Entry
}

// Options configures a Log.
type Options struct {
	Logger *slog.Logger

	// Store persists the log. Nil keeps it in memory only.
	Store kv.Store

	// Key overrides DefaultKey.
	Key string

	// Cap bounds the number of entries. Defaults to DefaultCap.
	Cap int
}

// Log is a bounded navigation history. It is safe for concurrent use.
type Log struct {
	store   kv.Store
	logger  *slog.Logger
	key     string
	entries []Entry
	cap     int
	mu      sync.RWMutex
}

// New creates an empty log.
func New(opts Options) *Log {
	if opts.Cap <= 0 {
		opts.Cap = DefaultCap
	}
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Log{
		store:   opts.Store,
		logger:  opts.Logger,
		key:     opts.Key,
		cap:     opts.Cap,
		entries: make([]Entry, 0, opts.Cap),
	}
}

// Record prepends a navigation and trims the log to its cap.
func (l *Log) Record(r route.Route, tsMs int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]Entry, 0, l.cap)
	next = append(next, Entry{Route: r, TsMs: tsMs})
	for _, e := range l.entries {
		if len(next) == l.cap {
			break
		}
		next = append(next, e)
	}
	l.entries = next
}

// Entries returns a copy of the log, newest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Load replaces the in-memory log with the persisted one. Missing or
// corrupt data leaves the log empty.
func (l *Log) Load(ctx context.Context) {
	if l.store == nil {
		return
	}
	raw, ok, err := l.store.Get(ctx, l.key)
	if err != nil {
		l.logger.Warn("history: read failed", "key", l.key, "error", err)
		return
	}
	if !ok {
		return
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		l.logger.Warn("history: corrupt history, starting empty", "key", l.key, "error", err)
		return
	}
	if len(entries) > l.cap {
		entries = entries[:l.cap]
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
}

// Save writes the log to its store. Failures are logged.
func (l *Log) Save(ctx context.Context) {
	if l.store == nil {
		return
	}
	data, err := json.Marshal(l.Entries())
	if err != nil {
		l.logger.Warn("history: serialize failed", "error", err)
		return
	}
	if err := l.store.Set(ctx, l.key, string(data)); err != nil {
		l.logger.Warn("history: write failed", "key", l.key, "error", err)
	}
}
