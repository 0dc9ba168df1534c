// Package server exposes the player service to a browser or desktop playback
// UI over a local HTTP API.
//
// The server holds an exclusive lock on the data directory so two instances
// never share one database, tags every request with a correlation id, and runs
// the background sync scheduler for as long as it is started.
package server
