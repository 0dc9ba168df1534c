// Package main hosts the lectern CLI entrypoint and command graph.
//
// The Cobra command tree opens course folders, inspects and edits watch
// progress, lists caption tracks, manages the metadata cache, drains the
// remote sync outbox, and runs the local playback API. Configuration
// resolution and logger setup live in the command context so subcommands
// only deal with presentation; the real work stays in internal packages.
package main
