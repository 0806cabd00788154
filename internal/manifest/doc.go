// Package manifest persists pipeline coordination state in a single shared
// JSON document and exposes helpers for driving unit lifecycles.
//
// The Store is the only sanctioned access path: reads take a consistent
// (possibly stale) snapshot of the atomically written file, and every
// mutation runs inside Mutate, which holds the cross-process mkdir lock
// around a load → apply → atomic-rewrite cycle. That lock totally orders
// mutations from any number of producer and consumer processes, which is
// what makes claims exclusive and transitions serializable.
//
// Unit statuses move pending → analyzed → illustrating → illustrated, with
// failed reachable on unrecoverable errors and a single sanctioned
// regression, illustrating → analyzed, performed by the stuck-unit reaper.
//
// Treat this package as the single source of truth for lifecycle
// semantics; when adding statuses or fields, bump SchemaVersion.
package manifest
