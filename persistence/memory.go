package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// recordSeparator joins composite map keys in the snapshot document. It
// cannot collide with namespace labels or identifiers.
const recordSeparator = "\x1f"

// MemoryAdapter is the in-process backend. The in-memory state is the
// single source of truth; the snapshot file is a durable mirror written on
// Flush and read on Setup. It provides no inter-process locking and is
// intended for single-process, non-clustered use.
type MemoryAdapter struct {
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	state  *memoryState
	dirty  bool
	closed bool
	stopCh chan struct{}
	stop   sync.Once
}

// memoryState is the serialized snapshot layout: one JSON document holding
// every logical store.
type memoryState struct {
	Checkpoints map[string]*Checkpoint      `json:"checkpoints"`
	Blobs       map[string]*CheckpointBlob  `json:"blobs"`
	Writes      map[string]*CheckpointWrite `json:"writes"`
	Items       map[string]*StoreItem       `json:"items"`
}

func newMemoryState() *memoryState {
	return &memoryState{
		Checkpoints: make(map[string]*Checkpoint),
		Blobs:       make(map[string]*CheckpointBlob),
		Writes:      make(map[string]*CheckpointWrite),
		Items:       make(map[string]*StoreItem),
	}
}

// NewMemoryAdapter creates the in-process adapter. State is loaded from the
// snapshot file by Setup.
func NewMemoryAdapter(config Config, logger *zap.Logger) *MemoryAdapter {
	return &MemoryAdapter{
		config: config,
		logger: logger.With(zap.String("component", "memory_adapter")),
		state:  newMemoryState(),
		stopCh: make(chan struct{}),
	}
}

// Setup loads the snapshot file if present; an absent file means start
// empty, not an error.
func (a *MemoryAdapter) Setup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.config.SnapshotPath == "" {
		return nil
	}

	data, err := os.ReadFile(a.config.SnapshotPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: reading snapshot: %v", ErrStorage, err)
	}

	st := newMemoryState()
	if err := json.Unmarshal(data, st); err != nil {
		return fmt.Errorf("%w: decoding snapshot: %v", ErrStorage, err)
	}
	if st.Checkpoints == nil {
		st.Checkpoints = make(map[string]*Checkpoint)
	}
	if st.Blobs == nil {
		st.Blobs = make(map[string]*CheckpointBlob)
	}
	if st.Writes == nil {
		st.Writes = make(map[string]*CheckpointWrite)
	}
	if st.Items == nil {
		st.Items = make(map[string]*StoreItem)
	}
	a.state = st

	a.logger.Info("snapshot loaded",
		zap.String("path", a.config.SnapshotPath),
		zap.Int("checkpoints", len(st.Checkpoints)),
		zap.Int("items", len(st.Items)),
	)
	return nil
}

// Start launches the background flusher when a flush interval is
// configured.
func (a *MemoryAdapter) Start(ctx context.Context) error {
	if a.config.FlushInterval > 0 && a.config.SnapshotPath != "" {
		go a.flushLoop(a.config.FlushInterval)
	}
	return nil
}

// Stop flushes outstanding state and closes the adapter.
func (a *MemoryAdapter) Stop(ctx context.Context) error {
	a.stop.Do(func() { close(a.stopCh) })

	if err := a.Flush(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *MemoryAdapter) flushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.Flush(); err != nil {
				a.logger.Warn("background flush failed", zap.Error(err))
			}
		case <-a.stopCh:
			return
		}
	}
}

// Flush serializes the entire state to the snapshot file as one atomic
// write (temp file, then rename). It is a no-op while the state is clean.
func (a *MemoryAdapter) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.dirty || a.config.SnapshotPath == "" {
		return nil
	}

	data, err := json.Marshal(a.state)
	if err != nil {
		return fmt.Errorf("%w: encoding snapshot: %v", ErrStorage, err)
	}

	dir := filepath.Dir(a.config.SnapshotPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating snapshot directory: %v", ErrStorage, err)
	}

	tempPath := a.config.SnapshotPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing snapshot: %v", ErrStorage, err)
	}
	if err := os.Rename(tempPath, a.config.SnapshotPath); err != nil {
		return fmt.Errorf("%w: renaming snapshot: %v", ErrStorage, err)
	}

	a.dirty = false
	return nil
}

// Checkpoint capability.

func checkpointKey(threadID, ns, id string) string {
	return strings.Join([]string{threadID, ns, id}, recordSeparator)
}

func blobKey(threadID, ns, channel, version string) string {
	return strings.Join([]string{threadID, ns, channel, version}, recordSeparator)
}

func writeKey(w CheckpointWrite) string {
	return strings.Join([]string{
		w.ThreadID, w.CheckpointNS, w.CheckpointID, w.TaskID, fmt.Sprintf("%06d", w.Idx),
	}, recordSeparator)
}

func (a *MemoryAdapter) PutCheckpoint(ctx context.Context, tuple CheckpointTuple) error {
	if tuple.ThreadID == "" || tuple.CheckpointID == "" {
		return fmt.Errorf("%w: checkpoint requires thread_id and checkpoint_id", ErrInvalidInput)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrStoreClosed
	}

	cp := cloneCheckpoint(tuple.Checkpoint)
	a.state.Checkpoints[checkpointKey(cp.ThreadID, cp.CheckpointNS, cp.CheckpointID)] = &cp
	for _, b := range tuple.Blobs {
		blob := cloneBlob(b)
		a.state.Blobs[blobKey(b.ThreadID, b.CheckpointNS, b.Channel, b.Version)] = &blob
	}
	a.dirty = true
	return nil
}

func (a *MemoryAdapter) PutWrites(ctx context.Context, writes []CheckpointWrite) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrStoreClosed
	}

	for _, w := range writes {
		write := cloneWrite(w)
		a.state.Writes[writeKey(w)] = &write
	}
	a.dirty = true
	return nil
}

func (a *MemoryAdapter) GetTuple(ctx context.Context, ref CheckpointRef) (*CheckpointTuple, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrStoreClosed
	}

	var cp *Checkpoint
	if ref.CheckpointID != "" {
		cp = a.state.Checkpoints[checkpointKey(ref.ThreadID, ref.CheckpointNS, ref.CheckpointID)]
	} else {
		for _, cand := range a.state.Checkpoints {
			if cand.ThreadID != ref.ThreadID || cand.CheckpointNS != ref.CheckpointNS {
				continue
			}
			if cp == nil || cand.CheckpointID > cp.CheckpointID {
				cp = cand
			}
		}
	}
	if cp == nil {
		return nil, nil
	}

	tuple := a.assembleTuple(cp)
	return &tuple, nil
}

func (a *MemoryAdapter) ListCheckpoints(ctx context.Context, ref CheckpointRef) ([]CheckpointTuple, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrStoreClosed
	}

	var matched []*Checkpoint
	for _, cp := range a.state.Checkpoints {
		if cp.ThreadID != ref.ThreadID || cp.CheckpointNS != ref.CheckpointNS {
			continue
		}
		if ref.Before != "" && cp.CheckpointID >= ref.Before {
			continue
		}
		matched = append(matched, cp)
	}

	// Most recent first within a thread+namespace.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CheckpointID > matched[j].CheckpointID
	})
	if ref.Limit > 0 && len(matched) > ref.Limit {
		matched = matched[:ref.Limit]
	}

	tuples := make([]CheckpointTuple, 0, len(matched))
	for _, cp := range matched {
		tuples = append(tuples, a.assembleTuple(cp))
	}
	return tuples, nil
}

// assembleTuple joins a checkpoint with its blob rows (selected by channel
// versions) and pending writes. Caller holds the lock.
func (a *MemoryAdapter) assembleTuple(cp *Checkpoint) CheckpointTuple {
	tuple := CheckpointTuple{Checkpoint: cloneCheckpoint(*cp)}

	for channel, version := range cp.ChannelVersions {
		if b, ok := a.state.Blobs[blobKey(cp.ThreadID, cp.CheckpointNS, channel, version)]; ok {
			blob := cloneBlob(*b)
			tuple.Blobs = append(tuple.Blobs, blob)
		}
	}
	sort.Slice(tuple.Blobs, func(i, j int) bool { return tuple.Blobs[i].Channel < tuple.Blobs[j].Channel })

	for _, w := range a.state.Writes {
		if w.ThreadID == cp.ThreadID && w.CheckpointNS == cp.CheckpointNS && w.CheckpointID == cp.CheckpointID {
			write := cloneWrite(*w)
			tuple.Writes = append(tuple.Writes, write)
		}
	}
	sort.Slice(tuple.Writes, func(i, j int) bool {
		if tuple.Writes[i].TaskID != tuple.Writes[j].TaskID {
			return tuple.Writes[i].TaskID < tuple.Writes[j].TaskID
		}
		return tuple.Writes[i].Idx < tuple.Writes[j].Idx
	})
	return tuple
}

func (a *MemoryAdapter) DeleteCheckpoints(ctx context.Context, threadID, runID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrStoreClosed
	}

	deleted := make(map[string]bool) // checkpoint ids removed
	for key, cp := range a.state.Checkpoints {
		if cp.ThreadID != threadID {
			continue
		}
		if runID != "" && cp.RunID != runID {
			continue
		}
		deleted[cp.CheckpointID] = true
		delete(a.state.Checkpoints, key)
	}
	for key, w := range a.state.Writes {
		if w.ThreadID != threadID {
			continue
		}
		if runID != "" && !deleted[w.CheckpointID] {
			continue
		}
		delete(a.state.Writes, key)
	}
	if runID == "" {
		for key, b := range a.state.Blobs {
			if b.ThreadID == threadID {
				delete(a.state.Blobs, key)
			}
		}
	}
	a.dirty = true
	return nil
}

func (a *MemoryAdapter) CopyCheckpoints(ctx context.Context, srcThreadID, dstThreadID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrStoreClosed
	}

	for _, cp := range a.state.Checkpoints {
		if cp.ThreadID != srcThreadID {
			continue
		}
		dup := cloneCheckpoint(*cp)
		dup.ThreadID = dstThreadID
		a.state.Checkpoints[checkpointKey(dstThreadID, dup.CheckpointNS, dup.CheckpointID)] = &dup
	}
	for _, b := range a.state.Blobs {
		if b.ThreadID != srcThreadID {
			continue
		}
		dup := cloneBlob(*b)
		dup.ThreadID = dstThreadID
		a.state.Blobs[blobKey(dstThreadID, dup.CheckpointNS, dup.Channel, dup.Version)] = &dup
	}
	for _, w := range a.state.Writes {
		if w.ThreadID != srcThreadID {
			continue
		}
		dup := cloneWrite(*w)
		dup.ThreadID = dstThreadID
		a.state.Writes[writeKey(dup)] = &dup
	}
	a.dirty = true
	return nil
}

func (a *MemoryAdapter) ClearCheckpoints(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrStoreClosed
	}

	a.state.Checkpoints = make(map[string]*Checkpoint)
	a.state.Blobs = make(map[string]*CheckpointBlob)
	a.state.Writes = make(map[string]*CheckpointWrite)
	a.dirty = true
	return nil
}

// Store capability.

func itemKey(ns []string, key string) string {
	return joinNamespace(ns) + recordSeparator + key
}

func (a *MemoryAdapter) GetItem(ctx context.Context, namespace []string, key string) (*StoreItem, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrStoreClosed
	}
	return a.getItemLocked(namespace, key)
}

func (a *MemoryAdapter) getItemLocked(namespace []string, key string) (*StoreItem, error) {
	item, ok := a.state.Items[itemKey(namespace, key)]
	if !ok {
		return nil, ErrNotFound
	}
	dup := cloneItem(*item)
	return &dup, nil
}

func (a *MemoryAdapter) PutItem(ctx context.Context, item StoreItem, opts PutItemOptions) error {
	if err := validateNamespace(item.Namespace); err != nil {
		return err
	}
	if item.Key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidInput)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrStoreClosed
	}
	return a.putItemLocked(item, opts)
}

func (a *MemoryAdapter) putItemLocked(item StoreItem, opts PutItemOptions) error {
	key := itemKey(item.Namespace, item.Key)
	existing, exists := a.state.Items[key]
	if exists && opts.IfNotExists {
		return ErrAlreadyExists
	}

	now := time.Now()
	dup := cloneItem(item)
	if exists {
		dup.CreatedAt = existing.CreatedAt
	} else if dup.CreatedAt.IsZero() {
		dup.CreatedAt = now
	}
	dup.UpdatedAt = now

	a.state.Items[key] = &dup
	a.dirty = true
	return nil
}

func (a *MemoryAdapter) DeleteItem(ctx context.Context, namespace []string, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrStoreClosed
	}

	delete(a.state.Items, itemKey(namespace, key))
	a.dirty = true
	return nil
}

func (a *MemoryAdapter) SearchItems(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrStoreClosed
	}

	var results []SearchResult
	for _, item := range a.state.Items {
		if !hasNamespacePrefix(item.Namespace, q.NamespacePrefix) {
			continue
		}
		if !matchesFilter(item.Value, q.Filter) {
			continue
		}
		res := SearchResult{Item: cloneItem(*item)}
		if len(q.QueryVector) > 0 {
			res.Score = cosineSimilarity(q.QueryVector, item.Embedding)
		}
		results = append(results, res)
	}

	sortSearchResults(results, len(q.QueryVector) > 0)
	return pageSearchResults(results, q.Offset, q.Limit), nil
}

func sortSearchResults(results []SearchResult, byScore bool) {
	sort.Slice(results, func(i, j int) bool {
		if byScore && results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Item.UpdatedAt.Equal(results[j].Item.UpdatedAt) {
			return results[i].Item.UpdatedAt.After(results[j].Item.UpdatedAt)
		}
		return itemKey(results[i].Item.Namespace, results[i].Item.Key) < itemKey(results[j].Item.Namespace, results[j].Item.Key)
	})
}

func pageSearchResults(results []SearchResult, offset, limit int) []SearchResult {
	if offset > 0 {
		if offset >= len(results) {
			return []SearchResult{}
		}
		results = results[offset:]
	}
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

func (a *MemoryAdapter) ListNamespaces(ctx context.Context, prefix []string, maxDepth, limit int) ([][]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrStoreClosed
	}

	seen := make(map[string][]string)
	for _, item := range a.state.Items {
		if !hasNamespacePrefix(item.Namespace, prefix) {
			continue
		}
		ns := item.Namespace
		if maxDepth > 0 && len(ns) > maxDepth {
			ns = ns[:maxDepth]
		}
		seen[joinNamespace(ns)] = ns
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	namespaces := make([][]string, 0, len(keys))
	for _, k := range keys {
		namespaces = append(namespaces, append([]string(nil), seen[k]...))
	}
	return namespaces, nil
}

func (a *MemoryAdapter) ClearNamespace(ctx context.Context, prefix []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrStoreClosed
	}

	for key, item := range a.state.Items {
		if hasNamespacePrefix(item.Namespace, prefix) {
			delete(a.state.Items, key)
		}
	}
	a.dirty = true
	return nil
}

func (a *MemoryAdapter) Batch(ctx context.Context, ops []BatchOp) ([]BatchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrStoreClosed
	}

	results := make([]BatchResult, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case BatchGet:
			item, err := a.getItemLocked(op.Namespace, op.Key)
			results[i] = BatchResult{Item: item, Err: err}
		case BatchPut:
			if op.Item == nil {
				results[i] = BatchResult{Err: fmt.Errorf("%w: put without item", ErrInvalidInput)}
				continue
			}
			if err := validateNamespace(op.Item.Namespace); err != nil {
				results[i] = BatchResult{Err: err}
				continue
			}
			results[i] = BatchResult{Err: a.putItemLocked(*op.Item, PutItemOptions{})}
		case BatchDelete:
			delete(a.state.Items, itemKey(op.Namespace, op.Key))
			a.dirty = true
			results[i] = BatchResult{}
		default:
			results[i] = BatchResult{Err: fmt.Errorf("%w: unknown batch op %q", ErrInvalidInput, op.Kind)}
		}
	}
	return results, nil
}

func (a *MemoryAdapter) ClearStore(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrStoreClosed
	}

	a.state.Items = make(map[string]*StoreItem)
	a.dirty = true
	return nil
}

// Deep copies keep callers from mutating shared state through returned or
// retained values.

func cloneCheckpoint(cp Checkpoint) Checkpoint {
	cp.Checkpoint = append(json.RawMessage(nil), cp.Checkpoint...)
	cp.Metadata = append(json.RawMessage(nil), cp.Metadata...)
	if cp.ChannelVersions != nil {
		versions := make(map[string]string, len(cp.ChannelVersions))
		for k, v := range cp.ChannelVersions {
			versions[k] = v
		}
		cp.ChannelVersions = versions
	}
	return cp
}

func cloneBlob(b CheckpointBlob) CheckpointBlob {
	b.Blob = append([]byte(nil), b.Blob...)
	return b
}

func cloneWrite(w CheckpointWrite) CheckpointWrite {
	w.Blob = append([]byte(nil), w.Blob...)
	return w
}

func cloneItem(item StoreItem) StoreItem {
	item.Namespace = append([]string(nil), item.Namespace...)
	item.Value = append(json.RawMessage(nil), item.Value...)
	if item.Embedding != nil {
		item.Embedding = append([]float64(nil), item.Embedding...)
	}
	return item
}
