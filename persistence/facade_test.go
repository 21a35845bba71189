package persistence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFacadeSelectsBackendFromConfig(t *testing.T) {
	facade := NewFacade(Config{}, zap.NewNop(), nil)

	adapter, kind, err := facade.resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, kind)
	assert.IsType(t, &MemoryAdapter{}, adapter)

	assert.Equal(t, BackendPostgres, Config{DatabaseURL: "postgres://localhost/x"}.Kind())
}

func TestFacadeMemoizesAdapter(t *testing.T) {
	facade := NewFacade(Config{}, zap.NewNop(), nil)
	ctx := context.Background()

	first, _, err := facade.resolve(ctx)
	require.NoError(t, err)
	second, _, err := facade.resolve(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestFacadeDelegatesAndObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	facade := NewFacade(Config{}, zap.NewNop(), reg)
	ctx := context.Background()

	require.NoError(t, facade.Setup(ctx))
	require.NoError(t, facade.PutItem(ctx, StoreItem{
		Namespace: []string{"kv"}, Key: "x", Value: json.RawMessage(`1`),
	}, PutItemOptions{}))

	item, err := facade.GetItem(ctx, []string{"kv"}, "x")
	require.NoError(t, err)
	assert.JSONEq(t, `1`, string(item.Value))

	_, err = facade.GetItem(ctx, []string{"kv"}, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "agentstate_persistence_ops_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var op, status string
			for _, label := range m.GetLabel() {
				switch label.GetName() {
				case "operation":
					op = label.GetValue()
				case "status":
					status = label.GetValue()
				}
			}
			counts[op+"/"+status] += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), counts["put_item/ok"])
	assert.Equal(t, float64(1), counts["get_item/ok"])
	assert.Equal(t, float64(1), counts["get_item/error"])
}

func TestFacadeStopShutsDownAdapters(t *testing.T) {
	facade := NewFacade(Config{}, zap.NewNop(), nil)
	ctx := context.Background()

	require.NoError(t, facade.Setup(ctx))
	require.NoError(t, facade.Stop(ctx))

	// A fresh adapter is constructed after Stop; the facade stays usable.
	require.NoError(t, facade.PutItem(ctx, StoreItem{
		Namespace: []string{"kv"}, Key: "y", Value: json.RawMessage(`2`),
	}, PutItemOptions{}))
}

func TestFacadeCheckpointRoundTrip(t *testing.T) {
	facade := NewFacade(Config{}, zap.NewNop(), nil)
	ctx := context.Background()

	require.NoError(t, facade.PutCheckpoint(ctx, CheckpointTuple{Checkpoint: Checkpoint{
		ThreadID: "t", CheckpointID: "c", Checkpoint: json.RawMessage(`{"v":1}`),
	}}))
	tuple, err := facade.GetTuple(ctx, CheckpointRef{ThreadID: "t"})
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, "c", tuple.CheckpointID)
}
