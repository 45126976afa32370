// Package server hosts the Fiber HTTP service: the ac/ and cas/ route table,
// the request middleware chain that attaches a request ID and the shared store,
// the diagnostics endpoints under /-/, and Serve, which runs the app until a
// shutdown signal arrives and drains in-flight requests before returning.
// Handlers are injected through CacheHandler so tests can swap in fakes; keep
// exports narrow and accept explicit dependencies.
package server
