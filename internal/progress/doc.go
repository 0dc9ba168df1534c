// Package progress is the fast tier for watch progress: one row per
// (course, lecture) in the local database, plus an upsert-deduplicated outbox
// of changes awaiting remote sync.
//
// Every Save resolves lastWatchedAt to the maximum of the incoming value, the
// current time, and the stored value, so late or out-of-order writes never
// regress recency. The same transaction upserts the outbox entry after the
// progress row, leaving at most one pending entry per lecture.
//
// Remote sync is dormant by default. Syncer posts batches to
// <base_url>/learning-progress/batch and Scheduler drives it on an interval
// with an explicit start/stop lifecycle.
package progress
