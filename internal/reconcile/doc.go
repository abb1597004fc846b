// Package reconcile maintains the prompt state cache: one derived
// scheduling state per task, kept consistent with the task's append-only
// action log history.
//
// # Decision procedure
//
// For each newly stored log, Apply compares the log's server timestamp with
// the cache entry's latest one:
//
//   - no entry: apply the scheduler to (nil, log).
//   - strictly newer: apply the scheduler to (cached state, log). This is
//     the common path and never reads history.
//   - equal or older: the log arrived out of order. Fetch the task's full
//     history, fold the scheduler over it from empty state and keep the
//     larger of the fetched and cached latest timestamps.
//
// Whatever the arrival order, the cache converges to what a full replay of
// all accepted logs produces, and its latest timestamp never moves
// backwards.
//
// # Concurrency
//
// Engine serializes read-decide-write per task and writes the cache
// conditionally on the revision it read. The replay fetch runs with the
// task unlocked under a timeout; if the revision moved meanwhile, the
// whole decision is retried from a fresh read, up to WithMaxRetries times.
// Ingest reconciles different tasks in parallel.
//
// # Errors
//
// Failures are reported as *Error with a Code from the taxonomy
// (VALIDATION, DATA_INTEGRITY, CONCURRENCY_CONFLICT, STORAGE_UNAVAILABLE,
// CONFLICTING_UPDATE). Any failure leaves the cache entry untouched.
//
// # Branch conflicts
//
// Logs name their causal parents. Two logs of a task with the same
// non-empty parent set and contradicting events (different repetition
// outcomes, for instance) are reported in Update.Conflicts. They are not
// resolved: the cache still follows server timestamp order.
package reconcile
