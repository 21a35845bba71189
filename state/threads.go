package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agentstate/agentstate/persistence"
)

const tracerName = "github.com/agentstate/agentstate/state"

// Threads implements the thread operations. All reads and writes go
// through the persistence adapter, so the same code serves both backends.
type Threads struct {
	db     persistence.Adapter
	logger *zap.Logger
	tracer trace.Tracer
}

func NewThreads(db persistence.Adapter, logger *zap.Logger) *Threads {
	return &Threads{
		db:     db,
		logger: logger.With(zap.String("component", "threads")),
		tracer: otel.Tracer(tracerName),
	}
}

// ThreadPutOptions carries the optional fields of a thread create.
type ThreadPutOptions struct {
	Metadata map[string]any
	Config   json.RawMessage
	IfExists IfExistsPolicy
}

// ThreadSearchQuery selects threads by metadata and/or status, newest
// first.
type ThreadSearchQuery struct {
	Metadata map[string]any
	Status   ThreadStatus
	Limit    int
	Offset   int
}

// StatusUpdate is the input to SetStatus. The checkpoint, when present,
// refreshes the thread's cached values and interrupts; the exception
// forces the error status.
type StatusUpdate struct {
	Checkpoint *persistence.CheckpointTuple
	Exception  error
}

// Put creates a thread. An empty threadID is assigned a fresh UUID. When
// the thread already exists the IfExists policy decides between
// ErrConflict (the default) and returning the existing thread unchanged.
func (t *Threads) Put(ctx context.Context, threadID string, opts ThreadPutOptions, auth *AuthContext) (*Thread, error) {
	ctx, span := t.tracer.Start(ctx, "threads.put")
	defer span.End()

	if !opts.IfExists.valid() {
		return nil, fmt.Errorf("%w: unknown if_exists policy %q", ErrValidation, opts.IfExists)
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}
	// The id becomes the runs namespace label for this thread.
	if err := persistence.ValidateLabel(threadID); err != nil {
		return nil, fmt.Errorf("%w: invalid thread id %q", ErrValidation, threadID)
	}

	metadata, err := auth.stampOwner(cloneMetadata(opts.Metadata))
	if err != nil {
		return nil, err
	}

	if existing, err := t.get(ctx, threadID); err == nil {
		if opts.IfExists == IfExistsDoNothing && auth.CanAccess(existing.Metadata) {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: thread %q already exists", ErrConflict, threadID)
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	thread := &Thread{
		ID:        threadID,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
		Config:    cloneRaw(opts.Config),
		Status:    ThreadStatusIdle,
	}
	if err := putEntity(ctx, t.db, nsThreads(), threadID, thread, true); err != nil {
		if errors.Is(err, persistence.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: thread %q already exists", ErrConflict, threadID)
		}
		return nil, err
	}

	t.logger.Debug("thread created", zap.String("thread_id", threadID))
	return thread, nil
}

// Get returns the thread. A missing thread and a thread the caller may
// not see produce the same ErrNotFound.
func (t *Threads) Get(ctx context.Context, threadID string, auth *AuthContext) (*Thread, error) {
	ctx, span := t.tracer.Start(ctx, "threads.get")
	defer span.End()

	thread, err := t.get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !auth.CanAccess(thread.Metadata) {
		return nil, fmt.Errorf("%w: thread %q", ErrNotFound, threadID)
	}
	return thread, nil
}

// Patch shallow-merges the given metadata into the thread's metadata.
// Keys present in the patch replace existing keys; others are untouched.
func (t *Threads) Patch(ctx context.Context, threadID string, metadata map[string]any, auth *AuthContext) (*Thread, error) {
	ctx, span := t.tracer.Start(ctx, "threads.patch")
	defer span.End()

	thread, err := t.Get(ctx, threadID, auth)
	if err != nil {
		return nil, err
	}
	merged := cloneMetadata(thread.Metadata)
	for k, v := range metadata {
		merged[k] = v
	}
	if _, err := auth.stampOwner(merged); err != nil {
		return nil, err
	}
	thread.Metadata = merged
	thread.UpdatedAt = time.Now().UTC()
	if err := t.save(ctx, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// Search returns an iterator over threads matching the query, visible to
// the caller, ordered by creation time descending.
func (t *Threads) Search(ctx context.Context, q ThreadSearchQuery, auth *AuthContext) (*ThreadIterator, error) {
	ctx, span := t.tracer.Start(ctx, "threads.search")
	defer span.End()

	threads, err := listEntities[Thread](ctx, t.db, nsThreads())
	if err != nil {
		return nil, err
	}

	matched := make([]*Thread, 0, len(threads))
	for _, thread := range threads {
		if !auth.CanAccess(thread.Metadata) {
			continue
		}
		if q.Status != "" && thread.Status != q.Status {
			continue
		}
		if !matchMetadata(thread.Metadata, q.Metadata) {
			continue
		}
		matched = append(matched, thread)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	matched = page(matched, q.Offset, q.Limit)
	return &ThreadIterator{threads: matched}, nil
}

// SetStatus recomputes the thread's derived status and, when a checkpoint
// is supplied, refreshes the cached values and interrupts from it. The
// precedence is error, then interrupted, then busy, then idle.
func (t *Threads) SetStatus(ctx context.Context, threadID string, upd StatusUpdate) (*Thread, error) {
	ctx, span := t.tracer.Start(ctx, "threads.set_status")
	defer span.End()

	thread, err := t.get(ctx, threadID)
	if err != nil {
		return nil, err
	}

	runs, err := listEntities[Run](ctx, t.db, nsRuns(threadID))
	if err != nil {
		return nil, err
	}
	pending := false
	for _, run := range runs {
		if !run.Status.Terminal() {
			pending = true
			break
		}
	}

	thread.Status = deriveStatus(upd.Exception != nil, upd.Checkpoint.HasPendingInterrupts(), pending)
	if upd.Checkpoint != nil {
		thread.Values = cloneRaw(upd.Checkpoint.Checkpoint.Checkpoint)
		thread.Interrupts = pendingInterrupts(upd.Checkpoint)
	}
	thread.UpdatedAt = time.Now().UTC()
	if err := t.save(ctx, thread); err != nil {
		return nil, err
	}

	t.logger.Debug("thread status updated",
		zap.String("thread_id", threadID),
		zap.String("status", string(thread.Status)),
	)
	return thread, nil
}

// Delete removes the thread with its runs and checkpoint history and
// returns the ids of the deleted threads.
func (t *Threads) Delete(ctx context.Context, threadID string, auth *AuthContext) ([]string, error) {
	ctx, span := t.tracer.Start(ctx, "threads.delete")
	defer span.End()

	if _, err := t.Get(ctx, threadID, auth); err != nil {
		return nil, err
	}
	if err := t.db.ClearNamespace(ctx, nsRuns(threadID)); err != nil {
		return nil, err
	}
	if err := t.db.DeleteCheckpoints(ctx, threadID, ""); err != nil {
		return nil, err
	}
	if err := t.db.DeleteItem(ctx, nsThreads(), threadID); err != nil {
		return nil, err
	}
	t.logger.Info("thread deleted", zap.String("thread_id", threadID))
	return []string{threadID}, nil
}

// Copy creates a new idle thread carrying a deep copy of the source
// thread's metadata, config and full checkpoint history. Runs are not
// copied. The source is left untouched and later mutation of either
// thread does not affect the other.
func (t *Threads) Copy(ctx context.Context, threadID string, auth *AuthContext) (*Thread, error) {
	ctx, span := t.tracer.Start(ctx, "threads.copy")
	defer span.End()

	src, err := t.Get(ctx, threadID, auth)
	if err != nil {
		return nil, err
	}

	newID := uuid.NewString()
	metadata := cloneMetadata(src.Metadata)
	metadata["thread_id"] = newID

	now := time.Now().UTC()
	dst := &Thread{
		ID:        newID,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  metadata,
		Config:    cloneRaw(src.Config),
		Status:    ThreadStatusIdle,
		Values:    cloneRaw(src.Values),
	}
	if err := putEntity(ctx, t.db, nsThreads(), newID, dst, true); err != nil {
		return nil, err
	}
	if err := t.db.CopyCheckpoints(ctx, threadID, newID); err != nil {
		return nil, err
	}

	t.logger.Info("thread copied",
		zap.String("source_thread_id", threadID),
		zap.String("thread_id", newID),
	)
	return dst, nil
}

func (t *Threads) get(ctx context.Context, threadID string) (*Thread, error) {
	var thread Thread
	if err := getEntity(ctx, t.db, nsThreads(), threadID, &thread); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, fmt.Errorf("%w: thread %q", ErrNotFound, threadID)
		}
		return nil, err
	}
	return &thread, nil
}

func (t *Threads) save(ctx context.Context, thread *Thread) error {
	return putEntity(ctx, t.db, nsThreads(), thread.ID, thread, false)
}

// deriveStatus maps the observed execution facts onto a thread status.
// Exception wins over interrupts, interrupts over pending runs.
func deriveStatus(hasException, hasInterrupt, hasPendingRuns bool) ThreadStatus {
	switch {
	case hasException:
		return ThreadStatusError
	case hasInterrupt:
		return ThreadStatusInterrupted
	case hasPendingRuns:
		return ThreadStatusBusy
	default:
		return ThreadStatusIdle
	}
}

// pendingInterrupts groups the checkpoint's interrupt-channel writes by
// task id.
func pendingInterrupts(tuple *persistence.CheckpointTuple) map[string][]json.RawMessage {
	if tuple == nil {
		return nil
	}
	var out map[string][]json.RawMessage
	for _, w := range tuple.Writes {
		if w.Channel != persistence.InterruptChannel {
			continue
		}
		if out == nil {
			out = make(map[string][]json.RawMessage)
		}
		out[w.TaskID] = append(out[w.TaskID], json.RawMessage(w.Blob))
	}
	return out
}

// ThreadIterator yields search results one at a time.
type ThreadIterator struct {
	threads []*Thread
	pos     int
}

// Next returns the next thread, or false when the iterator is exhausted.
func (it *ThreadIterator) Next() (*Thread, bool) {
	if it.pos >= len(it.threads) {
		return nil, false
	}
	thread := it.threads[it.pos]
	it.pos++
	return thread, true
}

// Collect drains the iterator into a slice.
func (it *ThreadIterator) Collect() []*Thread {
	out := make([]*Thread, 0, len(it.threads)-it.pos)
	for {
		thread, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, thread)
	}
}

// page applies offset/limit to an already sorted slice.
func page[T any](in []*T, offset, limit int) []*T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
