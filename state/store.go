package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/agentstate/agentstate/persistence"
)

// Entities are persisted as JSON store items under reserved namespaces, so
// both backends carry them without dedicated tables. The helpers here keep
// the encode/decode and lookup plumbing out of the operation code.

func putEntity(ctx context.Context, db persistence.Adapter, namespace []string, key string, v any, ifNotExists bool) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s/%s: %v", ErrValidation, namespace, key, err)
	}
	item := persistence.StoreItem{
		Namespace: namespace,
		Key:       key,
		Value:     value,
	}
	return db.PutItem(ctx, item, persistence.PutItemOptions{IfNotExists: ifNotExists})
}

func getEntity(ctx context.Context, db persistence.Adapter, namespace []string, key string, dst any) error {
	item, err := db.GetItem(ctx, namespace, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(item.Value, dst)
}

// listEntities decodes every item below a namespace into values of type T.
func listEntities[T any](ctx context.Context, db persistence.Adapter, namespace []string) ([]*T, error) {
	results, err := db.SearchItems(ctx, persistence.SearchQuery{NamespacePrefix: namespace})
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(results))
	for _, res := range results {
		v := new(T)
		if err := json.Unmarshal(res.Item.Value, v); err != nil {
			return nil, fmt.Errorf("decoding item %s/%s: %w", res.Item.Namespace, res.Item.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// matchMetadata reports whether every filter key matches the entity
// metadata. An array metadata value matches a scalar filter value by
// containment; everything else compares by JSON value equality.
func matchMetadata(metadata, filter map[string]any) bool {
	for key, want := range filter {
		have, ok := metadata[key]
		if !ok {
			return false
		}
		if arr, isArr := have.([]any); isArr {
			if _, wantArr := want.([]any); !wantArr {
				if !containsValue(arr, want) {
					return false
				}
				continue
			}
		}
		if !jsonEqual(have, want) {
			return false
		}
	}
	return true
}

func containsValue(arr []any, want any) bool {
	for _, elem := range arr {
		if jsonEqual(elem, want) {
			return true
		}
	}
	return false
}

// jsonEqual compares values by their JSON encoding, so 1 and 1.0 (or a
// decoded float and a caller-supplied int) compare equal.
func jsonEqual(a, b any) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(aj, bj)
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return map[string]any{}
	}
	return maps.Clone(metadata)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
