package state

import (
	"encoding/json"
	"testing"

	"pgregory.net/rapid"
)

func genMetadataValue(t *rapid.T, label string) any {
	switch rapid.IntRange(0, 3).Draw(t, label+"_kind") {
	case 0:
		return rapid.StringMatching(`[a-z]{1,8}`).Draw(t, label+"_str")
	case 1:
		return rapid.Float64Range(-1000, 1000).Draw(t, label+"_num")
	case 2:
		return rapid.Bool().Draw(t, label+"_bool")
	default:
		n := rapid.IntRange(1, 4).Draw(t, label+"_len")
		arr := make([]any, n)
		for i := range arr {
			arr[i] = rapid.StringMatching(`[a-z]{1,8}`).Draw(t, label+"_elem")
		}
		return arr
	}
}

func genMetadata(t *rapid.T) map[string]any {
	keys := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}`), 1, 5, rapid.ID[string]).Draw(t, "keys")
	md := make(map[string]any, len(keys))
	for _, k := range keys {
		md[k] = genMetadataValue(t, "val_"+k)
	}
	return md
}

// roundTrip pushes metadata through JSON, the way it comes back from the
// store: ints become float64, typed slices become []any.
func roundTrip(t *rapid.T, md map[string]any) map[string]any {
	data, err := json.Marshal(md)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestMatchMetadataSelfMatchAfterRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		md := genMetadata(t)
		stored := roundTrip(t, md)
		// Using the original metadata as the filter must match the
		// stored form, whatever JSON did to the value types.
		if !matchMetadata(stored, md) {
			t.Fatalf("metadata does not match itself after JSON round trip: %#v vs %#v", stored, md)
		}
	})
}

func TestMatchMetadataEmptyFilterMatchesAll(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		md := roundTrip(t, genMetadata(t))
		if !matchMetadata(md, nil) {
			t.Fatalf("nil filter must match")
		}
		if !matchMetadata(md, map[string]any{}) {
			t.Fatalf("empty filter must match")
		}
	})
}

func TestMatchMetadataMissingKeyNeverMatches(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		md := roundTrip(t, genMetadata(t))
		key := rapid.StringMatching(`[A-Z]{7,10}`).Draw(t, "absent_key")
		if _, ok := md[key]; ok {
			t.Skip("collision")
		}
		if matchMetadata(md, map[string]any{key: "x"}) {
			t.Fatalf("filter on absent key %q matched", key)
		}
	})
}

func TestMatchMetadataArrayContainment(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(t, "len")
		arr := make([]any, n)
		for i := range arr {
			arr[i] = rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "elem")
		}
		pick := arr[rapid.IntRange(0, n-1).Draw(t, "pick")]

		md := roundTrip(t, map[string]any{"tags": arr})
		if !matchMetadata(md, map[string]any{"tags": pick}) {
			t.Fatalf("array %v did not contain %v", arr, pick)
		}
		if matchMetadata(md, map[string]any{"tags": "NOTPRESENT"}) {
			t.Fatalf("array containment matched absent element")
		}
	})
}
