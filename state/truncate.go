package state

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentstate/agentstate/persistence"
)

// TruncateOptions selects which data families a Truncate wipes. Full is
// shorthand for everything.
type TruncateOptions struct {
	Threads     bool
	Runs        bool
	Assistants  bool
	Checkpoints bool

	// Store wipes user store namespaces only; the reserved namespaces the
	// domain entities live under are controlled by the flags above.
	Store bool

	Full bool
}

func (o TruncateOptions) normalized() TruncateOptions {
	if o.Full {
		return TruncateOptions{Threads: true, Runs: true, Assistants: true, Checkpoints: true, Store: true}
	}
	return o
}

// Truncate bulk-deletes the selected data families. Families are wiped
// concurrently; the first failure cancels the rest. This is an
// administrative operation and takes no auth scope.
func Truncate(ctx context.Context, db persistence.Adapter, opts TruncateOptions, logger *zap.Logger) error {
	opts = opts.normalized()

	g, ctx := errgroup.WithContext(ctx)
	if opts.Threads {
		g.Go(func() error { return db.ClearNamespace(ctx, nsThreads()) })
	}
	if opts.Runs {
		g.Go(func() error { return db.ClearNamespace(ctx, []string{nsRootRuns}) })
	}
	if opts.Assistants {
		g.Go(func() error {
			if err := db.ClearNamespace(ctx, nsAssistants()); err != nil {
				return err
			}
			return db.ClearNamespace(ctx, []string{nsRootAssistantVersions})
		})
	}
	if opts.Checkpoints {
		g.Go(func() error { return db.ClearCheckpoints(ctx) })
	}
	if opts.Store {
		g.Go(func() error { return clearUserStore(ctx, db) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("state truncated",
		zap.Bool("threads", opts.Threads),
		zap.Bool("runs", opts.Runs),
		zap.Bool("assistants", opts.Assistants),
		zap.Bool("checkpoints", opts.Checkpoints),
		zap.Bool("store", opts.Store),
	)
	return nil
}

// clearUserStore removes every store namespace whose root is not reserved
// for domain entities.
func clearUserStore(ctx context.Context, db persistence.Adapter) error {
	roots, err := db.ListNamespaces(ctx, nil, 1, 0)
	if err != nil {
		return err
	}
	for _, root := range roots {
		if len(root) == 0 || reservedNamespace(root[0]) {
			continue
		}
		if err := db.ClearNamespace(ctx, root); err != nil {
			return err
		}
	}
	return nil
}
