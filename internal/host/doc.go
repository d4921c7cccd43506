// Package host is the execution environment around the ledger.
//
// A Host owns the store and serializes every call through a single-writer
// loop: callers Submit from any goroutine, Run executes one call at a time,
// each inside one store transaction. The host injects the authenticated
// caller identity into the call and assigns every call a UUIDv7 call token.
//
// Mutating calls (post, reply, like, tip) are appended to a journal region
// of the same store in the same transaction, including calls the ledger
// rejected. The journal can be read back with Journal and re-executed
// against a fresh in-memory ledger with Replay, which reports any call
// whose outcome differs from the one recorded.
package host
