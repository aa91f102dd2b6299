// Package store persists the per-node task queue to a single SQLite file
// and implements its lifecycle transitions, status reads, and the
// distribution aggregation query used by pkg/metrics.
package store
