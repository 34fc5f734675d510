// Package snapshot implements the Snapshot Task: the staging-and-rename
// wrapper around updateloop.Loop.Snapshot that makes a scheduled snapshot
// atomic against a crash, mirroring pkg/dump's Dump Task.
package snapshot
