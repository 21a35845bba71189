package state

import (
	"encoding/json"
	"errors"
	"time"
)

// Domain operation errors. Callers branch with errors.Is; the wrapped
// message carries the detail.
var (
	// ErrNotFound means the entity does not exist or the caller is not
	// allowed to see it. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("state: not found")

	// ErrConflict means the entity already exists and the write policy
	// forbids replacing it.
	ErrConflict = errors.New("state: conflict")

	// ErrValidation means the request references missing entities or
	// carries malformed fields.
	ErrValidation = errors.New("state: validation failed")
)

// ThreadStatus is the derived lifecycle state of a thread. It is computed
// from checkpoint state and pending runs, never set directly.
type ThreadStatus string

const (
	ThreadStatusIdle        ThreadStatus = "idle"
	ThreadStatusBusy        ThreadStatus = "busy"
	ThreadStatusInterrupted ThreadStatus = "interrupted"
	ThreadStatusError       ThreadStatus = "error"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending     RunStatus = "pending"
	RunStatusRunning     RunStatus = "running"
	RunStatusSuccess     RunStatus = "success"
	RunStatusError       RunStatus = "error"
	RunStatusTimeout     RunStatus = "timeout"
	RunStatusInterrupted RunStatus = "interrupted"
)

// Terminal reports whether the run can no longer make progress.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusError, RunStatusTimeout, RunStatusInterrupted:
		return true
	}
	return false
}

// Thread is a conversation-scoped container for checkpointed execution
// state. Values and Interrupts mirror the latest checkpoint and are
// refreshed whenever status is recomputed with a checkpoint in hand.
type Thread struct {
	ID        string          `json:"thread_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Metadata  map[string]any  `json:"metadata"`
	Config    json.RawMessage `json:"config,omitempty"`
	Status    ThreadStatus    `json:"status"`

	Values     json.RawMessage              `json:"values,omitempty"`
	Interrupts map[string][]json.RawMessage `json:"interrupts,omitempty"`
}

// Run is one execution of an assistant against a thread.
type Run struct {
	ID          string          `json:"run_id"`
	ThreadID    string          `json:"thread_id"`
	AssistantID string          `json:"assistant_id"`
	Status      RunStatus       `json:"status"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Kwargs      json.RawMessage `json:"kwargs,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Assistant is a named, versioned graph configuration. Version points at
// the currently active snapshot in the version history.
type Assistant struct {
	ID        string          `json:"assistant_id"`
	GraphID   string          `json:"graph_id"`
	Name      string          `json:"name,omitempty"`
	Version   int             `json:"version"`
	Config    json.RawMessage `json:"config,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AssistantVersion is one immutable snapshot of an assistant's
// configuration. A snapshot is appended whenever graph, config or name
// change; metadata-only updates do not version.
type AssistantVersion struct {
	AssistantID string          `json:"assistant_id"`
	Version     int             `json:"version"`
	GraphID     string          `json:"graph_id"`
	Name        string          `json:"name,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// IfExistsPolicy decides what a put does when the entity already exists.
type IfExistsPolicy string

const (
	// IfExistsRaise fails the put with ErrConflict. This is the default.
	IfExistsRaise IfExistsPolicy = "raise"

	// IfExistsDoNothing leaves the existing entity untouched and returns it.
	IfExistsDoNothing IfExistsPolicy = "do_nothing"
)

func (p IfExistsPolicy) valid() bool {
	return p == "" || p == IfExistsRaise || p == IfExistsDoNothing
}

// Reserved store namespaces the domain entities live under. Truncation of
// user store data skips these roots.
const (
	nsRootThreads           = "threads"
	nsRootRuns              = "runs"
	nsRootAssistants        = "assistants"
	nsRootAssistantVersions = "assistant_versions"
)

func reservedNamespace(root string) bool {
	switch root {
	case nsRootThreads, nsRootRuns, nsRootAssistants, nsRootAssistantVersions:
		return true
	}
	return false
}

func nsThreads() []string                    { return []string{nsRootThreads} }
func nsRuns(threadID string) []string        { return []string{nsRootRuns, threadID} }
func nsAssistants() []string                 { return []string{nsRootAssistants} }
func nsAssistantVersions(id string) []string { return []string{nsRootAssistantVersions, id} }
