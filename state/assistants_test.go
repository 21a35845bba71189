package state

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstate/agentstate/persistence"
)

func TestAssistantsPut(t *testing.T) {
	ctx := context.Background()
	ops, _ := newTestOps(t)

	t.Run("CreatesVersionOne", func(t *testing.T) {
		assistant, err := ops.Assistants.Put(ctx, "asst-1", AssistantPutOptions{
			GraphID: "agent",
			Name:    "helper",
			Config:  json.RawMessage(`{"model":"small"}`),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, assistant.Version)

		versions, err := ops.Assistants.GetVersions(ctx, "asst-1", nil)
		require.NoError(t, err)
		require.Len(t, versions, 1)
		assert.Equal(t, 1, versions[0].Version)
		assert.Equal(t, "agent", versions[0].GraphID)
	})

	t.Run("GraphIDRequired", func(t *testing.T) {
		_, err := ops.Assistants.Put(ctx, "asst-2", AssistantPutOptions{}, nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("IDWithNamespaceSeparatorRejected", func(t *testing.T) {
		_, err := ops.Assistants.Put(ctx, "bad.id", AssistantPutOptions{GraphID: "agent"}, nil)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("Conflict", func(t *testing.T) {
		_, err := ops.Assistants.Put(ctx, "asst-1", AssistantPutOptions{GraphID: "agent"}, nil)
		assert.ErrorIs(t, err, ErrConflict)

		existing, err := ops.Assistants.Put(ctx, "asst-1", AssistantPutOptions{
			GraphID:  "other",
			IfExists: IfExistsDoNothing,
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "agent", existing.GraphID)
	})
}

func TestAssistantsUpdateVersioning(t *testing.T) {
	ctx := context.Background()
	ops, _ := newTestOps(t)

	_, err := ops.Assistants.Put(ctx, "asst-1", AssistantPutOptions{
		GraphID: "agent",
		Config:  json.RawMessage(`{"model":"small"}`),
	}, nil)
	require.NoError(t, err)

	t.Run("MetadataOnlyUpdateDoesNotVersion", func(t *testing.T) {
		assistant, err := ops.Assistants.Update(ctx, "asst-1", AssistantUpdateOptions{
			Metadata: map[string]any{"team": "infra"},
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, assistant.Version)
		assert.Equal(t, "infra", assistant.Metadata["team"])

		versions, err := ops.Assistants.GetVersions(ctx, "asst-1", nil)
		require.NoError(t, err)
		assert.Len(t, versions, 1)
	})

	t.Run("ConfigChangeVersions", func(t *testing.T) {
		assistant, err := ops.Assistants.Update(ctx, "asst-1", AssistantUpdateOptions{
			Config: json.RawMessage(`{"model":"large"}`),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, assistant.Version)

		versions, err := ops.Assistants.GetVersions(ctx, "asst-1", nil)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		// Newest first.
		assert.Equal(t, 2, versions[0].Version)
		assert.JSONEq(t, `{"model":"large"}`, string(versions[0].Config))
		assert.JSONEq(t, `{"model":"small"}`, string(versions[1].Config))
	})

	t.Run("GraphAndNameChangesVersion", func(t *testing.T) {
		assistant, err := ops.Assistants.Update(ctx, "asst-1", AssistantUpdateOptions{
			GraphID: "planner",
			Name:    "planner-bot",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, assistant.Version)
		assert.Equal(t, "planner", assistant.GraphID)
	})

	t.Run("UnchangedFieldsDoNotVersion", func(t *testing.T) {
		assistant, err := ops.Assistants.Update(ctx, "asst-1", AssistantUpdateOptions{
			GraphID: "planner",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, assistant.Version)
	})

	t.Run("MissingAssistant", func(t *testing.T) {
		_, err := ops.Assistants.Update(ctx, "ghost", AssistantUpdateOptions{Name: "x"}, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAssistantsSetLatest(t *testing.T) {
	ctx := context.Background()
	ops, _ := newTestOps(t)

	_, err := ops.Assistants.Put(ctx, "asst-1", AssistantPutOptions{
		GraphID: "agent",
		Config:  json.RawMessage(`{"model":"small"}`),
	}, nil)
	require.NoError(t, err)
	_, err = ops.Assistants.Update(ctx, "asst-1", AssistantUpdateOptions{
		Config: json.RawMessage(`{"model":"large"}`),
	}, nil)
	require.NoError(t, err)

	t.Run("RollsBackToSnapshot", func(t *testing.T) {
		assistant, err := ops.Assistants.SetLatest(ctx, "asst-1", 1, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, assistant.Version)
		assert.JSONEq(t, `{"model":"small"}`, string(assistant.Config))
	})

	t.Run("NextVersionContinuesHistory", func(t *testing.T) {
		assistant, err := ops.Assistants.Update(ctx, "asst-1", AssistantUpdateOptions{
			Config: json.RawMessage(`{"model":"medium"}`),
		}, nil)
		require.NoError(t, err)
		// Two snapshots exist, so the next one is 3 even though the
		// pointer was rolled back to 1.
		assert.Equal(t, 3, assistant.Version)
	})

	t.Run("UnknownVersion", func(t *testing.T) {
		_, err := ops.Assistants.SetLatest(ctx, "asst-1", 99, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAssistantsDeleteCascadesVersions(t *testing.T) {
	ctx := context.Background()
	ops, adapter := newTestOps(t)

	_, err := ops.Assistants.Put(ctx, "asst-1", AssistantPutOptions{GraphID: "agent"}, nil)
	require.NoError(t, err)
	_, err = ops.Assistants.Update(ctx, "asst-1", AssistantUpdateOptions{Name: "renamed"}, nil)
	require.NoError(t, err)

	require.NoError(t, ops.Assistants.Delete(ctx, "asst-1", nil))

	_, err = ops.Assistants.Get(ctx, "asst-1", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	// No orphaned version snapshots remain.
	results, err := adapter.SearchItems(ctx, persistence.SearchQuery{
		NamespacePrefix: nsAssistantVersions("asst-1"),
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAssistantsSearch(t *testing.T) {
	ctx := context.Background()
	ops, _ := newTestOps(t)

	alice := &AuthContext{User: &AuthUser{Identity: "alice"}}

	_, err := ops.Assistants.Put(ctx, "a1", AssistantPutOptions{GraphID: "agent", Metadata: map[string]any{"env": "prod"}}, nil)
	require.NoError(t, err)
	_, err = ops.Assistants.Put(ctx, "a2", AssistantPutOptions{GraphID: "planner", Metadata: map[string]any{"env": "prod"}}, nil)
	require.NoError(t, err)
	_, err = ops.Assistants.Put(ctx, "a3", AssistantPutOptions{GraphID: "agent"}, alice)
	require.NoError(t, err)

	t.Run("ByGraph", func(t *testing.T) {
		got, err := ops.Assistants.Search(ctx, AssistantSearchQuery{GraphID: "agent"}, nil)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("ByMetadata", func(t *testing.T) {
		got, err := ops.Assistants.Search(ctx, AssistantSearchQuery{Metadata: map[string]any{"env": "prod"}}, nil)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("ScopedCallerSeesOnlyOwned", func(t *testing.T) {
		got, err := ops.Assistants.Search(ctx, AssistantSearchQuery{}, alice)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a3", got[0].ID)
	})
}
