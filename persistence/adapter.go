package persistence

import "context"

// Adapter is the capability contract every backend implements: checkpoint
// persistence for the execution engine plus the auxiliary key/value store.
// Implementations are safe for concurrent use.
type Adapter interface {
	// Setup prepares the backend for use. The durable adapter runs the
	// schema migration sequence here; no other call is legal before Setup
	// returns.
	Setup(ctx context.Context) error

	// Start and Stop are resource lifecycle hooks. Stop flushes and
	// releases resources; both are cheap no-ops where nothing is needed.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Checkpoint capability.

	// PutCheckpoint upserts a checkpoint row together with its blobs.
	PutCheckpoint(ctx context.Context, tuple CheckpointTuple) error

	// PutWrites appends pending writes for a task within a checkpoint.
	// Re-delivery of the same (task_id, idx) is idempotent.
	PutWrites(ctx context.Context, writes []CheckpointWrite) error

	// GetTuple returns the referenced checkpoint, or the most recent one
	// for the thread+namespace when ref.CheckpointID is empty. A missing
	// checkpoint yields (nil, nil).
	GetTuple(ctx context.Context, ref CheckpointRef) (*CheckpointTuple, error)

	// ListCheckpoints returns checkpoints for a thread+namespace, most
	// recent first. The result is a consistent snapshot; re-invoking with
	// the same ref restarts the listing.
	ListCheckpoints(ctx context.Context, ref CheckpointRef) ([]CheckpointTuple, error)

	// DeleteCheckpoints removes checkpoint history for a thread. A
	// non-empty runID restricts the delete to checkpoints recorded for
	// that run. Deleting absent history is a no-op.
	DeleteCheckpoints(ctx context.Context, threadID, runID string) error

	// CopyCheckpoints deep-copies the full checkpoint history of one
	// thread under a new thread id, leaving the original untouched.
	CopyCheckpoints(ctx context.Context, srcThreadID, dstThreadID string) error

	// ClearCheckpoints wipes all checkpoint state.
	ClearCheckpoints(ctx context.Context) error

	// Store capability.

	// GetItem returns the item, or ErrNotFound.
	GetItem(ctx context.Context, namespace []string, key string) (*StoreItem, error)

	// PutItem creates or overwrites an item. See PutItemOptions.
	PutItem(ctx context.Context, item StoreItem, opts PutItemOptions) error

	// DeleteItem removes an item; deleting an absent item is a no-op.
	DeleteItem(ctx context.Context, namespace []string, key string) error

	// SearchItems returns matches for the query; see SearchQuery.
	SearchItems(ctx context.Context, q SearchQuery) ([]SearchResult, error)

	// ListNamespaces returns the distinct namespaces below prefix,
	// truncated to maxDepth labels when maxDepth > 0.
	ListNamespaces(ctx context.Context, prefix []string, maxDepth, limit int) ([][]string, error)

	// ClearNamespace removes every item at or below the given prefix.
	ClearNamespace(ctx context.Context, prefix []string) error

	// Batch executes a heterogeneous ordered list of get/put/delete
	// operations atomically with respect to other callers and returns one
	// result per operation, preserving input order.
	Batch(ctx context.Context, ops []BatchOp) ([]BatchResult, error)

	// ClearStore wipes all store items.
	ClearStore(ctx context.Context) error
}
