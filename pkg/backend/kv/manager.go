package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
	"weak"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittores/internal/logger"
	"github.com/marmos91/dittores/internal/ratelimiter"
)

// ErrManagerClosed is returned by Get after Close.
var ErrManagerClosed = errors.New("kv manager closed")

// Engine is a shared handle on the badger database of one root directory.
//
// Every resource under the same root uses the same Engine. The Manager only
// keeps a weak reference to it: once no resource holds the Engine any more,
// the next cleanup sweep closes the database.
type Engine struct {
	root string
	db   *badger.DB
}

// Root returns the directory holding the database files.
func (e *Engine) Root() string { return e.root }

// Closed reports whether the underlying database was closed.
func (e *Engine) Closed() bool { return e.db.IsClosed() }

// handle is one row of the engine table.
//
// The Manager keeps db strongly so it can close it after the Engine has
// been collected.
type handle struct {
	ref weak.Pointer[Engine]
	db  *badger.DB
}

// ManagerMetrics observes the engine table.
//
// This is optional - a nil ManagerMetrics uses a no-op implementation.
type ManagerMetrics interface {
	// EngineOpened records a database opened for root.
	EngineOpened(root string)

	// EngineClosed records a database closed for root. reason is
	// "collected", "stale" or "shutdown".
	EngineClosed(root, reason string)

	// SetOpenEngines reports the number of live table rows.
	SetOpenEngines(n int)
}

type noopManagerMetrics struct{}

func (noopManagerMetrics) EngineOpened(string)         {}
func (noopManagerMetrics) EngineClosed(string, string) {}
func (noopManagerMetrics) SetOpenEngines(int)          {}

// ManagerConfig contains configuration for the engine table.
type ManagerConfig struct {
	// SweepInterval is how often the background sweeper runs when started
	// (default: 1m)
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// MinCleanupInterval throttles the opportunistic sweep run by Get
	// (default: 10s; a negative value sweeps on every call)
	MinCleanupInterval time.Duration `mapstructure:"min_cleanup_interval"`

	// BlockCacheSizeMB is badger's block cache size per engine (default: 32)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is badger's index cache size per engine (default: 16)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`

	// MemTableSizeMB is badger's memtable size per engine (default: 16)
	MemTableSizeMB int64 `mapstructure:"mem_table_size_mb"`

	// Compression enables zstd compression of stored blocks
	Compression bool `mapstructure:"compression"`

	// Metrics receives table events
	Metrics ManagerMetrics `mapstructure:"-"`
}

func (c *ManagerConfig) applyDefaults() {
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
	if c.MinCleanupInterval == 0 {
		c.MinCleanupInterval = 10 * time.Second
	}
	if c.BlockCacheSizeMB == 0 {
		c.BlockCacheSizeMB = 32
	}
	if c.IndexCacheSizeMB == 0 {
		c.IndexCacheSizeMB = 16
	}
	if c.MemTableSizeMB == 0 {
		c.MemTableSizeMB = 16
	}
	if c.Metrics == nil {
		c.Metrics = noopManagerMetrics{}
	}
}

// Manager is the process-wide table of open engines, one per root.
//
// Opening a badger database is expensive and a database left open leaks
// file handles and memory, so engines are shared and closed once unused:
//
//  1. Get hands out an *Engine and registers a runtime cleanup on it.
//  2. When the Engine becomes unreachable the runtime queues its root.
//  3. A sweep (throttled from Get, periodic when started, or forced) drains
//     the queue and closes every database whose Engine is gone.
//
// A row whose Engine has been collected but not yet swept is still safe:
// Get notices the dead weak pointer, closes the old database and reopens.
//
// Thread Safety: Safe for concurrent use. Lookups, inserts and sweeps are
// serialized by mu; the cleanup queue has its own lock so runtime cleanup
// callbacks never wait on a sweep.
type Manager struct {
	config   ManagerConfig
	throttle *ratelimiter.Throttle

	mu     sync.Mutex
	table  map[string]*handle
	closed bool

	pendingMu sync.Mutex
	pending   []string

	workerMu sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewManager creates an empty engine table. The background sweeper is not
// started; call Start for periodic sweeps.
func NewManager(config ManagerConfig) *Manager {
	config.applyDefaults()
	return &Manager{
		config:   config,
		throttle: ratelimiter.New(config.MinCleanupInterval),
		table:    make(map[string]*handle),
	}
}

// Get returns the engine for root, opening the database on first use.
//
// Parameters:
//   - root: Directory holding the database files (created if missing)
//
// Returns:
//   - *Engine: Shared engine; keep it referenced for as long as it is used
//   - error: Returns ErrManagerClosed after Close, or the badger open error
func (m *Manager) Get(root string) (*Engine, error) {
	if m.throttle.Allow() {
		m.Cleanup(false)
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve kv root: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	if h, ok := m.table[root]; ok {
		if e := h.ref.Value(); e != nil {
			return e, nil
		}
		// Collected but not swept yet. badger locks its directory, so the
		// old database must be closed before reopening.
		m.closeLocked(root, h, "stale")
	}

	db, err := m.open(root)
	if err != nil {
		return nil, err
	}

	e := &Engine{root: root, db: db}
	m.table[root] = &handle{ref: weak.Make(e), db: db}
	runtime.AddCleanup(e, m.enqueue, root)

	m.config.Metrics.EngineOpened(root)
	m.config.Metrics.SetOpenEngines(len(m.table))
	logger.Debug("kv engine opened: root=%s", root)
	return e, nil
}

func (m *Manager) open(root string) (*badger.DB, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create kv root: %w", err)
	}

	opts := badger.DefaultOptions(root)
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithBlockCacheSize(m.config.BlockCacheSizeMB << 20)
	opts = opts.WithIndexCacheSize(m.config.IndexCacheSizeMB << 20)
	opts = opts.WithMemTableSize(m.config.MemTableSizeMB << 20)
	if m.config.Compression {
		opts = opts.WithCompression(options.ZSTD)
	} else {
		opts = opts.WithCompression(options.None)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", root, err)
	}
	return db, nil
}

// enqueue runs on the runtime cleanup goroutine once an Engine is
// unreachable. It must not touch mu.
func (m *Manager) enqueue(root string) {
	m.pendingMu.Lock()
	m.pending = append(m.pending, root)
	m.pendingMu.Unlock()
}

// Cleanup closes databases whose Engine has been collected and returns how
// many were closed.
//
// A regular sweep only looks at roots queued by the runtime. A forced sweep
// checks every row, which also catches engines the collector has already
// cleared but whose cleanup callback has not run yet.
func (m *Manager) Cleanup(force bool) int {
	m.pendingMu.Lock()
	queued := m.pending
	m.pending = nil
	m.pendingMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := queued
	if force {
		candidates = make([]string, 0, len(m.table))
		for root := range m.table {
			candidates = append(candidates, root)
		}
	}

	closed := 0
	for _, root := range candidates {
		h, ok := m.table[root]
		if !ok || h.ref.Value() != nil {
			continue
		}
		m.closeLocked(root, h, "collected")
		closed++
	}

	if closed > 0 {
		logger.Debug("kv cleanup closed %d engine(s), %d open", closed, len(m.table))
	}
	return closed
}

// closeLocked closes one row. Must be called with mu held.
func (m *Manager) closeLocked(root string, h *handle, reason string) {
	delete(m.table, root)
	if err := h.db.Close(); err != nil {
		logger.Warn("closing kv engine %s: %v", root, err)
	}
	m.config.Metrics.EngineClosed(root, reason)
	m.config.Metrics.SetOpenEngines(len(m.table))
}

// OpenEngines returns the number of open databases.
func (m *Manager) OpenEngines() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table)
}

// ============================================================================
// Background Sweeper
// ============================================================================

// Start begins periodic cleanup sweeps.
//
// Safe to call multiple times (subsequent calls are no-ops).
func (m *Manager) Start() {
	m.workerMu.Lock()
	defer m.workerMu.Unlock()

	if m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	logger.Info("Starting kv engine sweeper: interval=%s", m.config.SweepInterval)
	go m.worker(m.stopCh, m.doneCh)
}

// Stop stops the sweeper and waits for it to finish.
//
// Parameters:
//   - ctx: Context for timeout
//
// Returns:
//   - error: Returns error if context expires before shutdown completes
func (m *Manager) Stop(ctx context.Context) error {
	m.workerMu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.workerMu.Unlock()

	if stopCh == nil {
		return nil
	}
	close(stopCh)

	select {
	case <-doneCh:
		logger.Debug("kv engine sweeper stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("kv engine sweeper shutdown timeout")
		return ctx.Err()
	}
}

func (m *Manager) worker(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cleanup(false)
		case <-stopCh:
			return
		}
	}
}

// Close stops the sweeper and closes every database, in use or not.
// Engines handed out earlier report Closed afterwards.
func (m *Manager) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stopErr := m.Stop(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return stopErr
	}
	m.closed = true

	var errs []error
	if stopErr != nil {
		errs = append(errs, stopErr)
	}
	for root, h := range m.table {
		delete(m.table, root)
		if err := h.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", root, err))
		}
		m.config.Metrics.EngineClosed(root, "shutdown")
	}
	m.config.Metrics.SetOpenEngines(0)
	return errors.Join(errs...)
}
