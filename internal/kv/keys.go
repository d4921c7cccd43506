package kv

import (
	"encoding/binary"
	"fmt"
)

// Region tags one disjoint part of the key space.
type Region byte

const (
	RegionSequence Region = 0x00
	RegionMessage  Region = 0x01
	RegionStats    Region = 0x02
	RegionJournal  Region = 0x03
)

// String returns the region name.
func (r Region) String() string {
	switch r {
	case RegionSequence:
		return "sequence"
	case RegionMessage:
		return "message"
	case RegionStats:
		return "stats"
	case RegionJournal:
		return "journal"
	}
	return fmt.Sprintf("region(0x%02x)", byte(r))
}

const (
	keySeparator = '/'
	keyLen       = 2 + 8
)

// Key addresses one value: a region plus a numeric slot inside it.
type Key struct {
	Region Region
	ID     uint64
}

// Well-known single-cell keys.
var (
	// SequenceKey holds the highest assigned message id.
	SequenceKey = Key{Region: RegionSequence, ID: 0}

	// JournalHeadKey holds the seq of the last journal entry.
	JournalHeadKey = Key{Region: RegionSequence, ID: 1}
)

// MessageKey returns the key of message n.
func MessageKey(n int64) Key {
	return Key{Region: RegionMessage, ID: uint64(n)}
}

// StatsKey returns the key of the stats record paired with message n.
func StatsKey(n int64) Key {
	return Key{Region: RegionStats, ID: uint64(n)}
}

// JournalKey returns the key of journal entry seq.
func JournalKey(seq int64) Key {
	return Key{Region: RegionJournal, ID: uint64(seq)}
}

// Bytes encodes k as [region] '/' [big-endian id].
func (k Key) Bytes() []byte {
	b := make([]byte, keyLen)
	b[0] = byte(k.Region)
	b[1] = keySeparator
	binary.BigEndian.PutUint64(b[2:], k.ID)
	return b
}

// String renders k for logs, e.g. "message/7".
func (k Key) String() string {
	return fmt.Sprintf("%s/%d", k.Region, k.ID)
}

// ParseKey decodes bytes produced by Key.Bytes.
func ParseKey(b []byte) (Key, error) {
	if len(b) != keyLen || b[1] != keySeparator {
		return Key{}, fmt.Errorf("malformed key %x", b)
	}
	return Key{Region: Region(b[0]), ID: binary.BigEndian.Uint64(b[2:])}, nil
}

// regionBounds returns the [lower, upper) byte range covering every key in r.
func regionBounds(r Region) (lower, upper []byte) {
	return []byte{byte(r), keySeparator}, []byte{byte(r), keySeparator + 1}
}
