// Package memory provides an in-memory implementation of the storage interfaces.
//
// Requests are held in a concurrent map with atomic per-key operations, so
// inserting a reference that is already live and consuming the same reference
// from several goroutines are both race-free. Expired requests are invisible to
// readers immediately and are swept by a background goroutine.
//
// It is suitable for development, testing, and single-instance deployments.
// Deployments with several replicas behind a load balancer need a shared store
// such as storage/valkey or storage/redis, since the authorization endpoint may
// run on a different replica than the one that accepted the push.
//
// Example usage:
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, _ := server.New(store, store, config, logger)
package memory
