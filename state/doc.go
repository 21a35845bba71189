// Package state implements the domain operations over agent-execution
// state: authorization-aware CRUD, search, status derivation, cascading
// delete and copy for threads, runs and assistants.
//
// Entities are persisted through the persistence capability contract under
// reserved store namespaces, so the operations are independent of which
// backend adapter is active. Thread status is never set freely by callers;
// it is recomputed from the thread's checkpoint state and its pending runs.
package state
