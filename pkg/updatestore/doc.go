/*
Package updatestore implements the Update Store: a bbolt-backed, single
writer / many reader environment holding the per-index queue of pending and
historical updates.

Two top-level buckets hold the keyspaces described by the design: meta holds
one nested bucket per index, keyed by update id, and pending holds a single
global FIFO of references into meta, keyed by an auto-incrementing sequence
so that popping the lowest key always yields the oldest unprocessed update
across every index. A per-index update id counter is not kept as a separate
keyspace; bbolt's own per-bucket sequence on each index's meta sub-bucket
serves that role without risking it drifting out of sync with meta itself.

A single writer goroutine owns all mutation of pending and the Processing ->
terminal transition of meta; RegisterUpdate and DeleteAll are the only other
paths that touch these buckets, and both go through db.Update so bbolt's own
single-writer discipline serializes them against the writer goroutine.
*/
package updatestore
