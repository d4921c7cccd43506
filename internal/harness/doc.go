// Package harness runs conformance scenarios against the flyter ledger.
//
// A scenario is a YAML file listing calls made by named identities, the
// outcome each call should have, and assertions on the final ledger state.
// Every scenario runs on a fresh in-memory store behind a real host, so
// calls are serialized, journaled and replayed exactly as in production.
//
// # Scenario Format
//
//	name: reply_flow
//	description: "A posts to B, B replies"
//	calls:
//	  - as: A
//	    op: post
//	    recipient: B
//	    content: hi
//	    expect:
//	      case: ok
//	      result: { id: 1 }
//	  - as: C
//	    op: reply
//	    target: 1
//	    content: nope
//	    expect:
//	      case: NotAddressee
//	assertions:
//	  - type: message
//	    id: 1
//	    expect: { sender: A, recipient: B }
//	  - type: count
//	    count: 1
//
// # Assertion Types
//
//   - message: the message at id exists and matches expect (subset match)
//   - stats: the stats record at id matches expect (subset match)
//   - count: the ledger count equals count
//   - journal_count: exactly count calls were journaled
//
// # Expect Cases
//
// A case is either "ok" or a ledger error code. Codes may be written as
// stored ("NOT_ADDRESSEE") or in camel case ("NotAddressee").
//
// # Deterministic Testing
//
// Call tokens come from testutil.SequentialTokens with the scenario's
// token_prefix, so the journal of a scenario is identical on every run.
// After the calls, the journal is replayed on a second store and any
// divergence fails the scenario.
//
// Traces are compared against golden files with RunWithGolden:
//
//	go test ./internal/harness -update
package harness
