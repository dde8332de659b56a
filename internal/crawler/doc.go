// Package crawler defines the archive domain: thread requests, post records,
// the error taxonomy, the storage layout shared by sinks, and the interfaces
// the engine composes (fetcher, sink, publisher, clock, throttle, retry policy).
package crawler
