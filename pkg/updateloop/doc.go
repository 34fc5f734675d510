/*
Package updateloop implements the Update Loop actor: the single public
entry point for mutating the update pipeline.

Callers send a message to a bounded inbox (depth 100); the Loop dequeues
messages and dispatches up to 10 of them concurrently, each on its own
goroutine, offloading blocking bbolt and file I/O work so the dispatch
goroutine itself never blocks on anything but the inbox receive and the
semaphore that caps fan-out.
*/
package updateloop
