package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Facade routes every persistence operation to the backend adapter the
// configuration selects. Adapters are constructed lazily and memoized: at
// most one live instance per backend kind per process. Once constructed, a
// kind stays pinned for the remaining process lifetime; configuration
// changes only affect kinds that have not been constructed yet.
//
// The facade adds no semantics beyond routing and observability. It is
// explicit injectable state so tests can use a fresh facade instead of a
// hidden process global.
type Facade struct {
	config  Config
	logger  *zap.Logger
	metrics *facadeMetrics

	mu       sync.Mutex
	adapters map[BackendKind]Adapter
}

type facadeMetrics struct {
	opsTotal   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
}

func newFacadeMetrics(reg prometheus.Registerer) *facadeMetrics {
	factory := promauto.With(reg)
	return &facadeMetrics{
		opsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentstate_persistence_ops_total",
			Help: "Persistence operations by backend, operation and status.",
		}, []string{"backend", "operation", "status"}),
		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentstate_persistence_op_duration_seconds",
			Help:    "Persistence operation latency by backend and operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
	}
}

// NewFacade creates a facade. A nil registerer skips metric registration.
func NewFacade(config Config, logger *zap.Logger, reg prometheus.Registerer) *Facade {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Facade{
		config:   config,
		logger:   logger.With(zap.String("component", "persistence_facade")),
		metrics:  newFacadeMetrics(reg),
		adapters: make(map[BackendKind]Adapter),
	}
}

// resolve returns the adapter for the configured backend kind,
// constructing and setting it up exactly once.
func (f *Facade) resolve(ctx context.Context) (Adapter, BackendKind, error) {
	kind := f.config.Kind()

	f.mu.Lock()
	defer f.mu.Unlock()

	if adapter, ok := f.adapters[kind]; ok {
		return adapter, kind, nil
	}

	var adapter Adapter
	switch kind {
	case BackendPostgres:
		pg, err := NewPostgresAdapter(f.config, f.logger)
		if err != nil {
			return nil, kind, err
		}
		adapter = pg
	default:
		adapter = NewMemoryAdapter(f.config, f.logger)
	}

	if err := adapter.Setup(ctx); err != nil {
		return nil, kind, err
	}
	if err := adapter.Start(ctx); err != nil {
		return nil, kind, err
	}

	f.adapters[kind] = adapter
	f.logger.Info("backend adapter initialized", zap.String("backend", string(kind)))
	return adapter, kind, nil
}

func (f *Facade) observe(kind BackendKind, op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	f.metrics.opsTotal.WithLabelValues(string(kind), op, status).Inc()
	f.metrics.opDuration.WithLabelValues(string(kind), op).Observe(time.Since(start).Seconds())
}

// Setup eagerly resolves the configured adapter, running migrations for
// the durable backend.
func (f *Facade) Setup(ctx context.Context) error {
	_, _, err := f.resolve(ctx)
	return err
}

func (f *Facade) Start(ctx context.Context) error {
	_, _, err := f.resolve(ctx)
	return err
}

// Stop stops every adapter constructed so far.
func (f *Facade) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for kind, adapter := range f.adapters {
		if err := adapter.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.adapters, kind)
	}
	return firstErr
}

func (f *Facade) PutCheckpoint(ctx context.Context, tuple CheckpointTuple) error {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	err = adapter.PutCheckpoint(ctx, tuple)
	f.observe(kind, "put_checkpoint", start, err)
	return err
}

func (f *Facade) PutWrites(ctx context.Context, writes []CheckpointWrite) error {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	err = adapter.PutWrites(ctx, writes)
	f.observe(kind, "put_writes", start, err)
	return err
}

func (f *Facade) GetTuple(ctx context.Context, ref CheckpointRef) (*CheckpointTuple, error) {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	tuple, err := adapter.GetTuple(ctx, ref)
	f.observe(kind, "get_tuple", start, err)
	return tuple, err
}

func (f *Facade) ListCheckpoints(ctx context.Context, ref CheckpointRef) ([]CheckpointTuple, error) {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	tuples, err := adapter.ListCheckpoints(ctx, ref)
	f.observe(kind, "list_checkpoints", start, err)
	return tuples, err
}

func (f *Facade) DeleteCheckpoints(ctx context.Context, threadID, runID string) error {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	err = adapter.DeleteCheckpoints(ctx, threadID, runID)
	f.observe(kind, "delete_checkpoints", start, err)
	return err
}

func (f *Facade) CopyCheckpoints(ctx context.Context, srcThreadID, dstThreadID string) error {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	err = adapter.CopyCheckpoints(ctx, srcThreadID, dstThreadID)
	f.observe(kind, "copy_checkpoints", start, err)
	return err
}

func (f *Facade) ClearCheckpoints(ctx context.Context) error {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	err = adapter.ClearCheckpoints(ctx)
	f.observe(kind, "clear_checkpoints", start, err)
	return err
}

func (f *Facade) GetItem(ctx context.Context, namespace []string, key string) (*StoreItem, error) {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	item, err := adapter.GetItem(ctx, namespace, key)
	f.observe(kind, "get_item", start, err)
	return item, err
}

func (f *Facade) PutItem(ctx context.Context, item StoreItem, opts PutItemOptions) error {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	err = adapter.PutItem(ctx, item, opts)
	f.observe(kind, "put_item", start, err)
	return err
}

func (f *Facade) DeleteItem(ctx context.Context, namespace []string, key string) error {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	err = adapter.DeleteItem(ctx, namespace, key)
	f.observe(kind, "delete_item", start, err)
	return err
}

func (f *Facade) SearchItems(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := adapter.SearchItems(ctx, q)
	f.observe(kind, "search_items", start, err)
	return results, err
}

func (f *Facade) ListNamespaces(ctx context.Context, prefix []string, maxDepth, limit int) ([][]string, error) {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	namespaces, err := adapter.ListNamespaces(ctx, prefix, maxDepth, limit)
	f.observe(kind, "list_namespaces", start, err)
	return namespaces, err
}

func (f *Facade) ClearNamespace(ctx context.Context, prefix []string) error {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	err = adapter.ClearNamespace(ctx, prefix)
	f.observe(kind, "clear_namespace", start, err)
	return err
}

func (f *Facade) Batch(ctx context.Context, ops []BatchOp) ([]BatchResult, error) {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := adapter.Batch(ctx, ops)
	f.observe(kind, "batch", start, err)
	return results, err
}

func (f *Facade) ClearStore(ctx context.Context) error {
	adapter, kind, err := f.resolve(ctx)
	if err != nil {
		return err
	}
	start := time.Now()
	err = adapter.ClearStore(ctx)
	f.observe(kind, "clear_store", start, err)
	return err
}

var (
	_ Adapter = (*Facade)(nil)
	_ Adapter = (*MemoryAdapter)(nil)
	_ Adapter = (*PostgresAdapter)(nil)
)
