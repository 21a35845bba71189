package persistence

import (
	"encoding/json"
	"time"
)

// InterruptChannel is the reserved write channel used by the execution
// engine to record pending interrupts for a checkpoint.
const InterruptChannel = "__interrupt__"

// Checkpoint is one immutable execution snapshot, linked to its parent
// within a (thread, namespace) history. The payloads are opaque to this
// layer.
type Checkpoint struct {
	ThreadID           string          `json:"thread_id"`
	CheckpointNS       string          `json:"checkpoint_ns"`
	CheckpointID       string          `json:"checkpoint_id"`
	ParentCheckpointID string          `json:"parent_checkpoint_id,omitempty"`
	RunID              string          `json:"run_id,omitempty"`
	Type               string          `json:"type,omitempty"`
	Checkpoint         json.RawMessage `json:"checkpoint"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`

	// ChannelVersions names the blob rows belonging to this snapshot
	// (channel -> version).
	ChannelVersions map[string]string `json:"channel_versions,omitempty"`
}

// CheckpointBlob stores large channel state outside the checkpoint row,
// keyed by (thread_id, checkpoint_ns, channel, version).
type CheckpointBlob struct {
	ThreadID     string `json:"thread_id"`
	CheckpointNS string `json:"checkpoint_ns"`
	Channel      string `json:"channel"`
	Version      string `json:"version"`
	Type         string `json:"type"`
	Blob         []byte `json:"blob,omitempty"`
}

// CheckpointWrite is one entry in the ordered log of pending writes for a
// task within a checkpoint, keyed by
// (thread_id, checkpoint_ns, checkpoint_id, task_id, idx).
type CheckpointWrite struct {
	ThreadID     string `json:"thread_id"`
	CheckpointNS string `json:"checkpoint_ns"`
	CheckpointID string `json:"checkpoint_id"`
	TaskID       string `json:"task_id"`
	Idx          int    `json:"idx"`
	Channel      string `json:"channel"`
	Type         string `json:"type,omitempty"`
	Blob         []byte `json:"blob"`
}

// CheckpointTuple is a checkpoint together with its blobs and pending
// writes.
type CheckpointTuple struct {
	Checkpoint
	Blobs  []CheckpointBlob  `json:"blobs,omitempty"`
	Writes []CheckpointWrite `json:"writes,omitempty"`
}

// HasPendingInterrupts reports whether any pending write targets the
// interrupt channel.
func (t *CheckpointTuple) HasPendingInterrupts() bool {
	if t == nil {
		return false
	}
	for _, w := range t.Writes {
		if w.Channel == InterruptChannel {
			return true
		}
	}
	return false
}

// CheckpointRef locates a checkpoint (GetTuple) or bounds a listing
// (ListCheckpoints).
type CheckpointRef struct {
	ThreadID     string
	CheckpointNS string

	// CheckpointID selects an exact snapshot; empty means the most recent
	// one for GetTuple and no bound for ListCheckpoints.
	CheckpointID string

	// Before restricts a listing to checkpoints older than the given id.
	Before string

	// Limit caps a listing; zero means unbounded.
	Limit int
}

// StoreItem is one namespaced key/value entry in the auxiliary store. The
// optional embedding enables similarity search.
type StoreItem struct {
	Namespace []string        `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Embedding []float64       `json:"embedding,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PutItemOptions alters PutItem behavior.
type PutItemOptions struct {
	// IfNotExists makes the put fail with ErrAlreadyExists instead of
	// overwriting an existing item.
	IfNotExists bool
}

// SearchQuery selects store items below a namespace prefix. When Filter is
// set, every key must match the corresponding top-level key of the item
// value. When QueryVector is set, results are ranked by cosine similarity;
// otherwise by update time, newest first.
type SearchQuery struct {
	NamespacePrefix []string
	Filter          map[string]any
	QueryVector     []float64
	Limit           int
	Offset          int
}

// SearchResult is one search match. Score is meaningful only for vector
// queries.
type SearchResult struct {
	Item  StoreItem
	Score float64
}

// BatchOpKind discriminates batch operations.
type BatchOpKind string

const (
	BatchGet    BatchOpKind = "get"
	BatchPut    BatchOpKind = "put"
	BatchDelete BatchOpKind = "delete"
)

// BatchOp is one operation in a heterogeneous ordered batch.
type BatchOp struct {
	Kind      BatchOpKind
	Namespace []string
	Key       string

	// Item is the payload for put operations.
	Item *StoreItem
}

// BatchResult is the outcome of one batch operation, in input order. Item
// is set for successful gets.
type BatchResult struct {
	Item *StoreItem
	Err  error
}
