// Package progressfile maintains the portable progress sidecar at the root of
// a course folder so progress survives a fresh local database.
//
// The document is only trusted when its version and courseId match the
// reader. Writes require write permission and silently do nothing without it.
// Throttle rate-limits routine writes per course while letting forced writes
// (pause, end of video, teardown) through immediately.
package progressfile
