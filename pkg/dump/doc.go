/*
Package dump implements the Dump Task, Dump Actor and Dump Loader.

A dump is a single gzipped tar archive holding a metadata.json describing the
format version, one subdirectory per index (its own documents/settings dump,
produced by the resolver), and the Update Store's own queue as newline
delimited JSON plus the payload files it references. The Dump Actor tracks at
most one dump in flight and exposes its DumpInfo by uid; the Dump Loader runs
offline, before any server is listening, to restore a dump archive back into
a data directory.
*/
package dump
