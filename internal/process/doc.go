// Package process provides encoder subprocess lifecycle management.
//
// Process wraps os/exec for a single long-running child:
//   - Graceful shutdown with SIGINT and a configurable grace window
//   - Force kill with SIGKILL if graceful shutdown times out
//   - Output streaming with pluggable line filtering and log parsing
//
// A Process runs exactly once. Restarting an encoder means building a new
// Process; the restream supervisor owns that decision and never retries
// implicitly.
package process
