// Package ir defines the records the flyter ledger stores and the canonical
// encoding used to persist and fingerprint them.
//
// This package contains type definitions and encoders only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - counters and ids are int64
//   - Stored values are RFC 8785 canonical JSON so identical records always
//     produce identical bytes
//   - All JSON tags use snake_case
//   - Message content is opaque bytes and is never normalised
package ir
