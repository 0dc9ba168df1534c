// Package player is the consumer-facing engine behind the playback UI.
//
// Service opens a course folder through the permission broker, scans it,
// reconciles the scan with the metadata cache, sweeps dead folder references,
// and merges the portable progress file into the local database before any
// playback report is accepted. Playback reports write the database on every
// call and the portable file on a per-course throttle, with pause, end, and
// unload events forcing the file write.
//
// A course is identified as "local:" followed by its folder name.
package player
