// Package ledger implements the flyter record ledger.
//
// The ledger owns three regions of one key/value space: the sequence
// counter, one Message per id and one Stats record per id. Every write goes
// through two primitives, allocateID and storePair, which post, reply, like
// and tip compose inside a single store transaction.
//
// The ledger performs no locking of its own. Calls must be serialized by the
// host; internal/host does this with a single-writer loop.
//
// Ledger errors (NotFound, NoSuchMessage, NotAddressee, InvalidAmount) are
// always detected before the first write of a call, so a failed call leaves
// the store untouched even when the enclosing transaction commits.
package ledger
