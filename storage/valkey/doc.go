// Package valkey provides a Valkey storage backend for pushed authorization requests.
//
// Valkey is a high-performance key-value store that is wire-compatible with Redis.
// A shared store lets several replicas of the authorization server accept a push
// on one instance and redeem the request_uri on another.
//
// # Key Schema
//
// All keys use a configurable prefix (default "oauthpar:") to avoid conflicts with
// other applications sharing the same Valkey instance:
//
//	{prefix}par:{reference}     -> JSON(ParRequest) with PX TTL
//	{prefix}client:{clientID}   -> JSON(Client)
//
// # Atomic Operations
//
//   - SaveParRequest uses SET NX PX: a reference is written only if no live
//     request holds it, and the TTL is attached in the same command.
//   - ConsumeParRequest uses GETDEL: of any number of concurrent redeemers,
//     exactly one receives the request.
//
// GETDEL requires Valkey, or Redis 6.2 or newer.
//
// # Configuration
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "localhost:6379",
//	    KeyPrefix: "oauthpar:",
//	})
//
// With TLS and encryption at rest:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:  "valkey.example.com:6379",
//	    Password: os.Getenv("VALKEY_PASSWORD"),
//	    TLS:      &tls.Config{MinVersion: tls.VersionTLS12},
//	})
//	key, _ := security.KeyFromBase64(os.Getenv("PAR_ENCRYPTION_KEY"))
//	enc, _ := security.NewEncryptor(key)
//	store.SetEncryptor(enc)
package valkey
