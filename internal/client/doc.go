// Package client implements the sync client application runtime.
//
// It wires the local store, payload cryptography, the server adapter, and
// the per-feature data providers into a single process lifecycle: one
// background sync job per feature, stopped gracefully on shutdown.
package client
