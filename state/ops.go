package state

import (
	"go.uber.org/zap"

	"github.com/agentstate/agentstate/persistence"
)

// Ops bundles the domain operation groups over one persistence adapter.
type Ops struct {
	Threads    *Threads
	Runs       *Runs
	Assistants *Assistants
}

func NewOps(db persistence.Adapter, logger *zap.Logger) *Ops {
	threads := NewThreads(db, logger)
	return &Ops{
		Threads:    threads,
		Runs:       NewRuns(db, threads, logger),
		Assistants: NewAssistants(db, logger),
	}
}
