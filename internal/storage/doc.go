// Package storage defines the byte-stream store shared by the ac/ and cas/
// namespaces. Every backend implements Storage: an in-process map
// (MemoryStore), a filesystem tree (DiskStore) and a remote S3-compatible
// bucket (RemoteStore, which rewrites keys with BalanceKey before touching the
// network). Values are streamed in both directions and written once: a Set on
// an existing key is accepted without changing the stored bytes.
//
// The gateway never talks to a backend directly. It goes through Guarded,
// which serialises writes against everything else with one store-wide
// RWMutex.
package storage
