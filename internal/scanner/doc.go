// Package scanner discovers the lectures inside a granted course folder.
//
// Scan walks the folder breadth-first, accepts files by extension (audio-only
// extensions are always rejected), derives a display name with CleanFileName,
// and returns the result in natural order so "2" sorts before "10". Long walks
// yield to other goroutines at a fixed cadence and report progress after every
// accepted file. A single unreadable entry is logged and skipped.
package scanner
