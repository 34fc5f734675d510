/*
Package types defines the data model shared by the update pipeline and dump
subsystem: index identifiers, content identifiers, update payload kinds, update
records and their status lifecycle, and dump metadata.

Nothing in this package touches storage or I/O; it exists so that
pkg/filestore, pkg/updatestore, pkg/updateloop, pkg/dump and pkg/resolver can
agree on wire-compatible shapes without importing one another.
*/
package types
