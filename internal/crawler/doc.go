// Package crawler defines the core types, interfaces, and error taxonomy
// shared across the crawl pipeline: the transport, parsers, orchestrator,
// store, and the workers that drive them.
package crawler
