/*
Package filestore implements the Update File Store: content-addressed blob
storage for update payloads (document-addition bodies) backed by the local
filesystem.

A payload is written to a temporary path and only becomes visible to readers
once Persist renames it into place, atomically with respect to a crash on the
same filesystem. Content IDs are allocated by the store and never reused.
*/
package filestore
