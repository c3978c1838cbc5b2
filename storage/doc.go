// Package storage provides the persistence interfaces for pushed authorization requests.
//
// The storage package defines the core storage interfaces:
//   - ParRequestStore: holds pushed requests under their opaque reference until they are
//     redeemed or expire
//   - ClientStore: looks up registered clients and verifies their secrets
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development, tests and single-instance deployments
//   - storage/valkey: Valkey storage for multi-instance deployments
//   - storage/redis: Redis storage built on go-redis
//   - storage/mock: Mock storage for unit testing and fault injection
//   - storage/clientsfile: Loads a YAML client registry into any ClientStore
package storage
