// Package ledger implements the provenance ledger: an append-only, hash-chained
// sequence of blocks recording each stage of a commodity batch's journey.
//
// Block 0 is the genesis block. Its PreviousHash is the well-known sentinel
// GenesisHash (64 hex zeros); every later block records the hash of its
// predecessor, and every block's Hash is the SHA-256 of its own canonically
// encoded fields, so any edit is detectable via Validate.
//
// Implementations of the Store interface:
//   - MemoryStore: in-process, for tests and single-process deployments.
//   - PostgresStore: durable, one transaction per append.
//   - kvstore.Store: embedded goleveldb, pebble or badger engines.
//   - CachedStore: LRU read cache in front of any other Store.
package ledger
