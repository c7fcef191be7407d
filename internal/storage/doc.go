// Package storage persists the recipient state map and an append-only audit
// trail.
//
// Drivers:
//   - file: one JSON document keyed by recipient, plus <prefix>.audit.jsonl
//   - sqlite: recipient_state and audit tables
//   - memory: process-local map, used by tests and dry runs
//
// Save only touches the recipients it is given, so two processes saving
// different recipients never overwrite each other.
package storage
