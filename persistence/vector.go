package persistence

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// namespaceSeparator joins namespace labels into the flat prefix used as a
// map key and as the prefix column of the durable backend. Labels must not
// contain it.
const namespaceSeparator = "."

func joinNamespace(ns []string) string {
	return strings.Join(ns, namespaceSeparator)
}

func splitNamespace(prefix string) []string {
	if prefix == "" {
		return nil
	}
	return strings.Split(prefix, namespaceSeparator)
}

// ValidateLabel checks that s can serve as a namespace label. Callers that
// derive labels from user-supplied identifiers check them up front with
// this instead of failing deep inside a store operation.
func ValidateLabel(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty namespace label", ErrInvalidInput)
	}
	if strings.Contains(s, namespaceSeparator) {
		return fmt.Errorf("%w: namespace label %q contains %q", ErrInvalidInput, s, namespaceSeparator)
	}
	return nil
}

func validateNamespace(ns []string) error {
	if len(ns) == 0 {
		return fmt.Errorf("%w: empty namespace", ErrInvalidInput)
	}
	for _, label := range ns {
		if err := ValidateLabel(label); err != nil {
			return err
		}
	}
	return nil
}

func hasNamespacePrefix(ns, prefix []string) bool {
	if len(prefix) > len(ns) {
		return false
	}
	for i, label := range prefix {
		if ns[i] != label {
			return false
		}
	}
	return true
}

// cosineSimilarity scores two vectors in [-1, 1]. Mismatched dimensions or
// zero vectors score 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// matchesFilter checks a raw JSON value against a top-level key filter.
// Every filter key must be present and equal in the decoded value.
func matchesFilter(value json.RawMessage, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	var decoded map[string]any
	if err := json.Unmarshal(value, &decoded); err != nil {
		return false
	}
	for k, want := range filter {
		got, ok := decoded[k]
		if !ok || !looselyEqual(got, want) {
			return false
		}
	}
	return true
}

// looselyEqual compares values across JSON decoding, so 3 (int) equals
// 3.0 (float64) and typed slices compare element-wise.
func looselyEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(aj) == string(bj)
}
