// Package kgraph provides the repository layer of a knowledge-graph metadata
// and instance store backed by ArangoDB.
//
// The store keeps every document at three stages: NATIVE holds raw
// contributions, IN_PROGRESS holds the merged editable view and RELEASED
// holds the published view. Each stage maps to its own database; the
// repositories never mix stages inside one query.
//
// # Architecture
//
// The module is organized around a small set of cooperating packages:
//
//   - types: the data model (stages, instance ids, documents, results,
//     metadata catalog, scope trees, release states)
//   - vocabulary: the reserved meta keys documents carry
//   - aql: the query builder with collection-name guarding, pagination and
//     permission whitelist push-down
//   - graphdb: the ArangoDB adapter exposing the per-stage databases
//   - permissions: access decisions and materialized whitelists
//   - structure: structural reflection, the specification catalog, metadata
//     assembly and diff-driven cache invalidation
//   - instances: instance reads (documents, embedded/alternative merging,
//     incoming links, scope trees, release status, neighbors, suggestions)
//
// Callers embed the repositories behind their own transport; cmd/kgraph is
// the maintenance daemon that warms the reflection caches and flushes
// deferred evictions.
package kgraph
