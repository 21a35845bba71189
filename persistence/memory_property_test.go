package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
)

// Property: a checkpoint tuple survives a put, a snapshot flush and a
// reload into a fresh adapter with every field intact.
func TestProperty_CheckpointSnapshotRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("put, flush and reload preserve checkpoint fields", prop.ForAll(
		func(threadID, checkpointID, channel, version string, counter int) bool {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "snapshot.json")

			adapter := NewMemoryAdapter(Config{SnapshotPath: path}, zap.NewNop())
			if err := adapter.Setup(ctx); err != nil {
				t.Logf("Setup failed: %v", err)
				return false
			}

			original := CheckpointTuple{
				Checkpoint: Checkpoint{
					ThreadID:        threadID,
					CheckpointID:    checkpointID,
					RunID:           "run-" + threadID,
					Type:            "json",
					Checkpoint:      json.RawMessage(fmt.Sprintf(`{"counter":%d}`, counter)),
					Metadata:        json.RawMessage(`{"source":"test"}`),
					ChannelVersions: map[string]string{channel: version},
				},
				Blobs: []CheckpointBlob{{
					ThreadID: threadID, Channel: channel, Version: version,
					Type: "json", Blob: []byte(`["payload"]`),
				}},
			}
			if err := adapter.PutCheckpoint(ctx, original); err != nil {
				t.Logf("PutCheckpoint failed: %v", err)
				return false
			}
			if err := adapter.Stop(ctx); err != nil {
				t.Logf("Stop failed: %v", err)
				return false
			}

			reloaded := NewMemoryAdapter(Config{SnapshotPath: path}, zap.NewNop())
			if err := reloaded.Setup(ctx); err != nil {
				t.Logf("reload Setup failed: %v", err)
				return false
			}
			got, err := reloaded.GetTuple(ctx, CheckpointRef{ThreadID: threadID, CheckpointID: checkpointID})
			if err != nil {
				t.Logf("GetTuple failed: %v", err)
				return false
			}
			if got == nil {
				t.Logf("checkpoint lost across reload")
				return false
			}

			if got.ThreadID != threadID || got.CheckpointID != checkpointID {
				t.Logf("identity mismatch: got %s/%s", got.ThreadID, got.CheckpointID)
				return false
			}
			if got.RunID != original.RunID || got.Type != original.Type {
				t.Logf("run/type mismatch")
				return false
			}
			if string(got.Checkpoint.Checkpoint) != string(original.Checkpoint.Checkpoint) {
				t.Logf("payload mismatch: %s", got.Checkpoint.Checkpoint)
				return false
			}
			if got.ChannelVersions[channel] != version {
				t.Logf("channel versions mismatch")
				return false
			}
			if len(got.Blobs) != 1 || got.Blobs[0].Channel != channel || got.Blobs[0].Version != version {
				t.Logf("blob mismatch: %+v", got.Blobs)
				return false
			}
			return true
		},
		gen.Identifier(),      // threadID
		gen.Identifier(),      // checkpointID
		gen.Identifier(),      // channel
		gen.Identifier(),      // version
		gen.IntRange(0, 1000), // counter
	))

	properties.TestingRun(t)
}

// Property: copying a thread's history never mutates the source, and the
// copy is complete.
func TestProperty_CopyCheckpointsLeavesSourceIntact(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("copy is complete and independent", prop.ForAll(
		func(src, dst string, count int) bool {
			if src == dst {
				return true
			}
			ctx := context.Background()
			adapter := NewMemoryAdapter(Config{}, zap.NewNop())
			if err := adapter.Setup(ctx); err != nil {
				return false
			}

			for i := 0; i < count; i++ {
				err := adapter.PutCheckpoint(ctx, CheckpointTuple{Checkpoint: Checkpoint{
					ThreadID:     src,
					CheckpointID: fmt.Sprintf("%06d", i),
					Checkpoint:   json.RawMessage(fmt.Sprintf(`{"i":%d}`, i)),
				}})
				if err != nil {
					return false
				}
			}

			if err := adapter.CopyCheckpoints(ctx, src, dst); err != nil {
				t.Logf("CopyCheckpoints failed: %v", err)
				return false
			}
			if err := adapter.DeleteCheckpoints(ctx, dst, ""); err != nil {
				return false
			}

			remaining, err := adapter.ListCheckpoints(ctx, CheckpointRef{ThreadID: src})
			if err != nil {
				return false
			}
			if len(remaining) != count {
				t.Logf("source lost checkpoints: want %d, got %d", count, len(remaining))
				return false
			}
			return true
		},
		gen.Identifier(),    // src
		gen.Identifier(),    // dst
		gen.IntRange(1, 10), // count
	))

	properties.TestingRun(t)
}
