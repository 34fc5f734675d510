/*
Package log provides structured logging for latticed using zerolog.

A single global Logger is configured once via Init and then specialized per
long-lived goroutine with WithComponent, e.g. WithComponent("updatestore-writer"),
WithComponent("retention-sweeper"). JSON output is used in
production; a ConsoleWriter is used when JSONOutput is false, matching local
development expectations.
*/
package log
