// Package store provides SQLite-backed durable storage for the session
// record: the role and room code a node should resume after a restart.
//
// The table holds at most one row (id = 1). Save replaces it, Load reads it
// and Clear deletes it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
