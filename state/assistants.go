package state

import (
	"bytes"
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

// Assistants implements the assistant operations, including the immutable
// version history. Version snapshot keys are zero-padded so lexical store
// order matches numeric version order.
type Assistants struct {
	db     persistence.Adapter
	logger *zap.Logger
	tracer trace.Tracer
}

func NewAssistants(db persistence.Adapter, logger *zap.Logger) *Assistants {
	return &Assistants{
		db:     db,
		logger: logger.With(zap.String("component", "assistants")),
		tracer: otel.Tracer(tracerName),
	}
}

// AssistantPutOptions carries the fields of an assistant create. GraphID
// is required.
type AssistantPutOptions struct {
	GraphID  string
	Name     string
	Config   json.RawMessage
	Metadata map[string]any
	IfExists IfExistsPolicy
}

// AssistantUpdateOptions carries the fields of an assistant update. Nil
// or empty fields keep the current value; a metadata patch is merged
// shallowly.
type AssistantUpdateOptions struct {
	GraphID  string
	Name     string
	Config   json.RawMessage
	Metadata map[string]any
}

// AssistantSearchQuery selects assistants by graph and metadata, newest
// first.
type AssistantSearchQuery struct {
	GraphID  string
	Metadata map[string]any
	Limit    int
	Offset   int
}

// Put creates an assistant at version 1 together with its first version
// snapshot. An empty assistantID is assigned a fresh UUID.
func (a *Assistants) Put(ctx context.Context, assistantID string, opts AssistantPutOptions, auth *AuthContext) (*Assistant, error) {
	ctx, span := a.tracer.Start(ctx, "assistants.put")
	defer span.End()

	if opts.GraphID == "" {
		return nil, fmt.Errorf("%w: graph_id is required", ErrValidation)
	}
	if !opts.IfExists.valid() {
		return nil, fmt.Errorf("%w: unknown if_exists policy %q", ErrValidation, opts.IfExists)
	}
	if assistantID == "" {
		assistantID = uuid.NewString()
	}
	// The id becomes the version-history namespace label.
	if err := persistence.ValidateLabel(assistantID); err != nil {
		return nil, fmt.Errorf("%w: invalid assistant id %q", ErrValidation, assistantID)
	}

	metadata, err := auth.stampOwner(cloneMetadata(opts.Metadata))
	if err != nil {
		return nil, err
	}

	if existing, err := a.get(ctx, assistantID); err == nil {
		if opts.IfExists == IfExistsDoNothing && auth.CanAccess(existing.Metadata) {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: assistant %q already exists", ErrConflict, assistantID)
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	assistant := &Assistant{
		ID:        assistantID,
		GraphID:   opts.GraphID,
		Name:      opts.Name,
		Version:   1,
		Config:    cloneRaw(opts.Config),
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := putEntity(ctx, a.db, nsAssistants(), assistantID, assistant, true); err != nil {
		if errors.Is(err, persistence.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: assistant %q already exists", ErrConflict, assistantID)
		}
		return nil, err
	}
	if err := a.saveVersion(ctx, assistant); err != nil {
		return nil, err
	}

	a.logger.Debug("assistant created",
		zap.String("assistant_id", assistantID),
		zap.String("graph_id", opts.GraphID),
	)
	return assistant, nil
}

// Get returns the assistant visible to the caller, or ErrNotFound.
func (a *Assistants) Get(ctx context.Context, assistantID string, auth *AuthContext) (*Assistant, error) {
	ctx, span := a.tracer.Start(ctx, "assistants.get")
	defer span.End()

	assistant, err := a.get(ctx, assistantID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, fmt.Errorf("%w: assistant %q", ErrNotFound, assistantID)
		}
		return nil, err
	}
	if !auth.CanAccess(assistant.Metadata) {
		return nil, fmt.Errorf("%w: assistant %q", ErrNotFound, assistantID)
	}
	return assistant, nil
}

// Update modifies an assistant. Changing graph, config or name bumps the
// version and appends a snapshot; a metadata-only update does not.
func (a *Assistants) Update(ctx context.Context, assistantID string, opts AssistantUpdateOptions, auth *AuthContext) (*Assistant, error) {
	ctx, span := a.tracer.Start(ctx, "assistants.update")
	defer span.End()

	assistant, err := a.Get(ctx, assistantID, auth)
	if err != nil {
		return nil, err
	}

	versioned := false
	if opts.GraphID != "" && opts.GraphID != assistant.GraphID {
		assistant.GraphID = opts.GraphID
		versioned = true
	}
	if opts.Name != "" && opts.Name != assistant.Name {
		assistant.Name = opts.Name
		versioned = true
	}
	if opts.Config != nil && !bytes.Equal(opts.Config, assistant.Config) {
		assistant.Config = cloneRaw(opts.Config)
		versioned = true
	}
	if opts.Metadata != nil {
		merged := cloneMetadata(assistant.Metadata)
		for k, v := range opts.Metadata {
			merged[k] = v
		}
		if _, err := auth.stampOwner(merged); err != nil {
			return nil, err
		}
		assistant.Metadata = merged
	}

	// Versions are a contiguous history, so the new version is the count
	// of existing snapshots plus one rather than current+1; SetLatest may
	// have rolled the pointer back.
	if versioned {
		versions, err := a.GetVersions(ctx, assistantID, auth)
		if err != nil {
			return nil, err
		}
		assistant.Version = len(versions) + 1
	}
	assistant.UpdatedAt = time.Now().UTC()
	if err := putEntity(ctx, a.db, nsAssistants(), assistantID, assistant, false); err != nil {
		return nil, err
	}
	if versioned {
		if err := a.saveVersion(ctx, assistant); err != nil {
			return nil, err
		}
	}
	return assistant, nil
}

// Delete removes the assistant and its whole version history.
func (a *Assistants) Delete(ctx context.Context, assistantID string, auth *AuthContext) error {
	ctx, span := a.tracer.Start(ctx, "assistants.delete")
	defer span.End()

	if _, err := a.Get(ctx, assistantID, auth); err != nil {
		return err
	}
	if err := a.db.ClearNamespace(ctx, nsAssistantVersions(assistantID)); err != nil {
		return err
	}
	if err := a.db.DeleteItem(ctx, nsAssistants(), assistantID); err != nil {
		return err
	}
	a.logger.Info("assistant deleted", zap.String("assistant_id", assistantID))
	return nil
}

// GetVersions returns the snapshot history, newest version first.
func (a *Assistants) GetVersions(ctx context.Context, assistantID string, auth *AuthContext) ([]*AssistantVersion, error) {
	ctx, span := a.tracer.Start(ctx, "assistants.get_versions")
	defer span.End()

	if _, err := a.Get(ctx, assistantID, auth); err != nil {
		return nil, err
	}
	versions, err := listEntities[AssistantVersion](ctx, a.db, nsAssistantVersions(assistantID))
	if err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version > versions[j].Version })
	return versions, nil
}

// SetLatest points the assistant at an existing version snapshot,
// restoring its graph, name and config.
func (a *Assistants) SetLatest(ctx context.Context, assistantID string, version int, auth *AuthContext) (*Assistant, error) {
	ctx, span := a.tracer.Start(ctx, "assistants.set_latest")
	defer span.End()

	assistant, err := a.Get(ctx, assistantID, auth)
	if err != nil {
		return nil, err
	}

	var snapshot AssistantVersion
	if err := getEntity(ctx, a.db, nsAssistantVersions(assistantID), versionKey(version), &snapshot); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, fmt.Errorf("%w: assistant %q has no version %d", ErrNotFound, assistantID, version)
		}
		return nil, err
	}

	assistant.GraphID = snapshot.GraphID
	assistant.Name = snapshot.Name
	assistant.Config = cloneRaw(snapshot.Config)
	assistant.Version = snapshot.Version
	assistant.UpdatedAt = time.Now().UTC()
	if err := putEntity(ctx, a.db, nsAssistants(), assistantID, assistant, false); err != nil {
		return nil, err
	}
	return assistant, nil
}

// Search returns assistants matching the query, visible to the caller,
// ordered by creation time descending.
func (a *Assistants) Search(ctx context.Context, q AssistantSearchQuery, auth *AuthContext) ([]*Assistant, error) {
	ctx, span := a.tracer.Start(ctx, "assistants.search")
	defer span.End()

	assistants, err := listEntities[Assistant](ctx, a.db, nsAssistants())
	if err != nil {
		return nil, err
	}

	matched := make([]*Assistant, 0, len(assistants))
	for _, assistant := range assistants {
		if !auth.CanAccess(assistant.Metadata) {
			continue
		}
		if q.GraphID != "" && assistant.GraphID != q.GraphID {
			continue
		}
		if !matchMetadata(assistant.Metadata, q.Metadata) {
			continue
		}
		matched = append(matched, assistant)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return page(matched, q.Offset, q.Limit), nil
}

func (a *Assistants) get(ctx context.Context, assistantID string) (*Assistant, error) {
	var assistant Assistant
	if err := getEntity(ctx, a.db, nsAssistants(), assistantID, &assistant); err != nil {
		return nil, err
	}
	return &assistant, nil
}

func (a *Assistants) saveVersion(ctx context.Context, assistant *Assistant) error {
	snapshot := &AssistantVersion{
		AssistantID: assistant.ID,
		Version:     assistant.Version,
		GraphID:     assistant.GraphID,
		Name:        assistant.Name,
		Config:      cloneRaw(assistant.Config),
		Metadata:    cloneMetadata(assistant.Metadata),
		CreatedAt:   assistant.UpdatedAt,
	}
	return putEntity(ctx, a.db, nsAssistantVersions(assistant.ID), versionKey(assistant.Version), snapshot, false)
}

// versionKey zero-pads the version so lexical key order equals numeric
// order.
func versionKey(version int) string {
	return fmt.Sprintf("%08d", version)
}
