// Package persistence provides the storage layer for agent-execution state:
// checkpoints produced by graph execution and an auxiliary namespaced
// key/value store used both directly and as the backing area for domain
// entities (threads, runs, assistants).
//
// Two interchangeable backends implement one capability contract:
//   - Memory: in-process maps mirrored to a JSON snapshot file. Suitable
//     for single-node deployments and tests.
//   - Postgres: delegates to PostgreSQL through database/sql with the pgx
//     driver. Schema evolution runs through the migration runner before
//     the adapter serves any call.
//
// Callers never branch on the backend: the Facade resolves and memoizes
// exactly one adapter per backend kind for the process lifetime and
// forwards every operation to it.
package persistence
