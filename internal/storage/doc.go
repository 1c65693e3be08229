// Package storage persists the orchestration core's state: execution locks,
// dedup keys, per-channel schedule state, provider quota state and async job
// records.
//
// The Store interface deliberately exposes atomic "create-if-absent" and
// "delete-if-token-matches" lock operations so lock semantics hold regardless
// of backing store. Two backends are provided:
//
//   - sqlite: durable single-file database (default)
//   - memory: process-local maps, state resets on restart
package storage
