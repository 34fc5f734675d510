/*
Package streamreader adapts a chunked, fallible byte stream into a blocking
io.Reader, so that code expecting a synchronous Reader (format parsers, the
Update File Store's WritableFile) can consume an upload that arrives in
pieces over a channel.

It is not safe for concurrent use: exactly one worker goroutine should call
Read at a time. Nothing else in this module constructs a Reader; the Update
Loop takes a document-addition payload as a plain io.Reader and does not
route it through this adapter.
*/
package streamreader
