// Package metacache remembers the file fingerprints (path, size, modification
// time) of each course folder's last full scan.
//
// A cache hit never replaces a live scan: handles cannot be rebuilt from
// fingerprints, so the folder is always walked. The cache decides whether the
// stored fingerprints are still accurate or must be rewritten, and gives the
// CLI a cheap view of known folders without touching the disk.
package metacache
