// Package sweep implements the retention policy: topics older than the grace
// window that never reached the vote quota are marked purged on a periodic
// schedule. With multiple instances, a Redis lease elects a single sweeper.
package sweep
