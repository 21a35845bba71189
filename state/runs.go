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

// Runs implements the run operations. Runs live under a per-thread store
// namespace and feed the thread status derivation through Threads.
type Runs struct {
	db      persistence.Adapter
	threads *Threads
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewRuns(db persistence.Adapter, threads *Threads, logger *zap.Logger) *Runs {
	return &Runs{
		db:      db,
		threads: threads,
		logger:  logger.With(zap.String("component", "runs")),
		tracer:  otel.Tracer(tracerName),
	}
}

// RunPutOptions carries the optional fields of a run create.
type RunPutOptions struct {
	RunID       string
	AssistantID string
	Metadata    map[string]any
	Kwargs      json.RawMessage
}

// Put creates a pending run against an existing thread and assistant and
// recomputes the thread status. Referencing a missing thread or assistant
// fails with ErrValidation.
func (r *Runs) Put(ctx context.Context, threadID string, opts RunPutOptions, auth *AuthContext) (*Run, error) {
	ctx, span := r.tracer.Start(ctx, "runs.put")
	defer span.End()

	thread, err := r.threads.get(ctx, threadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: thread %q does not exist", ErrValidation, threadID)
		}
		return nil, err
	}
	if !auth.CanAccess(thread.Metadata) {
		return nil, fmt.Errorf("%w: thread %q does not exist", ErrValidation, threadID)
	}
	var assistant Assistant
	if err := getEntity(ctx, r.db, nsAssistants(), opts.AssistantID, &assistant); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, fmt.Errorf("%w: assistant %q does not exist", ErrValidation, opts.AssistantID)
		}
		return nil, err
	}

	metadata, err := auth.stampOwner(cloneMetadata(opts.Metadata))
	if err != nil {
		return nil, err
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	now := time.Now().UTC()
	run := &Run{
		ID:          runID,
		ThreadID:    threadID,
		AssistantID: opts.AssistantID,
		Status:      RunStatusPending,
		Metadata:    metadata,
		Kwargs:      cloneRaw(opts.Kwargs),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := putEntity(ctx, r.db, nsRuns(threadID), runID, run, true); err != nil {
		if errors.Is(err, persistence.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: run %q already exists", ErrConflict, runID)
		}
		return nil, err
	}
	if _, err := r.threads.SetStatus(ctx, threadID, StatusUpdate{}); err != nil {
		return nil, err
	}

	r.logger.Debug("run created",
		zap.String("run_id", runID),
		zap.String("thread_id", threadID),
		zap.String("assistant_id", opts.AssistantID),
	)
	return run, nil
}

// Get returns the run, or (nil, nil) when the run does not exist or the
// caller may not see its thread.
func (r *Runs) Get(ctx context.Context, threadID, runID string, auth *AuthContext) (*Run, error) {
	ctx, span := r.tracer.Start(ctx, "runs.get")
	defer span.End()

	thread, err := r.threads.get(ctx, threadID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !auth.CanAccess(thread.Metadata) {
		return nil, nil
	}

	var run Run
	if err := getEntity(ctx, r.db, nsRuns(threadID), runID, &run); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// List returns the thread's runs, newest first.
func (r *Runs) List(ctx context.Context, threadID string, auth *AuthContext) ([]*Run, error) {
	ctx, span := r.tracer.Start(ctx, "runs.list")
	defer span.End()

	if _, err := r.threads.Get(ctx, threadID, auth); err != nil {
		return nil, err
	}
	runs, err := listEntities[Run](ctx, r.db, nsRuns(threadID))
	if err != nil {
		return nil, err
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	return runs, nil
}

// SetStatus transitions a run and recomputes the thread status. A
// checkpoint in the update also refreshes the thread's cached values.
func (r *Runs) SetStatus(ctx context.Context, threadID, runID string, status RunStatus, upd StatusUpdate) (*Run, error) {
	ctx, span := r.tracer.Start(ctx, "runs.set_status")
	defer span.End()

	var run Run
	if err := getEntity(ctx, r.db, nsRuns(threadID), runID, &run); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, fmt.Errorf("%w: run %q", ErrNotFound, runID)
		}
		return nil, err
	}

	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	if err := putEntity(ctx, r.db, nsRuns(threadID), runID, &run, false); err != nil {
		return nil, err
	}
	if _, err := r.threads.SetStatus(ctx, threadID, upd); err != nil {
		return nil, err
	}

	r.logger.Debug("run status updated",
		zap.String("run_id", runID),
		zap.String("thread_id", threadID),
		zap.String("status", string(status)),
	)
	return &run, nil
}

// Delete removes a run together with the checkpoints it produced and
// recomputes the thread status.
func (r *Runs) Delete(ctx context.Context, threadID, runID string, auth *AuthContext) error {
	ctx, span := r.tracer.Start(ctx, "runs.delete")
	defer span.End()

	if _, err := r.threads.Get(ctx, threadID, auth); err != nil {
		return err
	}
	if _, err := r.db.GetItem(ctx, nsRuns(threadID), runID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return fmt.Errorf("%w: run %q", ErrNotFound, runID)
		}
		return err
	}
	if err := r.db.DeleteItem(ctx, nsRuns(threadID), runID); err != nil {
		return err
	}
	if err := r.db.DeleteCheckpoints(ctx, threadID, runID); err != nil {
		return err
	}
	if _, err := r.threads.SetStatus(ctx, threadID, StatusUpdate{}); err != nil {
		return err
	}

	r.logger.Info("run deleted",
		zap.String("run_id", runID),
		zap.String("thread_id", threadID),
	)
	return nil
}
