// Package progress carries tracker changes out of the synchronous tracker tree.
// A Bridge subscribes to the root of a tree and converts each change into an
// Event; the Hub batches events on a background goroutine and fans them out to
// pluggable sinks such as Prometheus metrics, structured logs, a snapshot store
// or a milestone publisher.
package progress
