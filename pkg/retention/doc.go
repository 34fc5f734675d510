/*
Package retention implements the Sweeper, a background loop that reclaims
payloads the File Store is holding that the Update Store no longer needs.

A payload becomes reclaimable once its owning record reaches a terminal
status and the configured retention grace period has elapsed since then, or
immediately if no record references it at all (a crash between staging the
payload and committing its record). With a zero grace period the writer
already deletes a payload inline as soon as its update finishes, so the
Sweeper's steady-state job is mostly catching that second, rarer case.
*/
package retention
