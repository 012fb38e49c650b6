// Package ledger implements the Redis-backed webhook dedup claims and the
// per-account daily action counters
package ledger
