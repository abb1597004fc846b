// Package harness runs reconciliation scenarios: the same action logs
// delivered to the engine in different orders.
//
// A scenario fixes each log's server timestamp, so arrival order and
// server order can disagree the way they do when uploads from several
// devices race. Every arrival order runs against a fresh in-memory store
// with the real scheduler, and the assertions are checked across runs.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: late_repetition
//	description: "What this scenario validates"
//	policy: interval-ladder
//	logs:
//	  - name: ingest
//	    type: ingest
//	    timestamp_millis: 1000
//	    server_seconds: 100
//	  - name: review
//	    type: repetition
//	    outcome: remembered
//	    parents: [ingest]
//	    timestamp_millis: 86401000
//	    server_seconds: 200
//	arrivals:
//	  - [ingest, review]
//	  - [review, ingest]
//	assertions:
//	  - type: converges
//	  - type: latest_log
//	    log: review
//	  - type: final_state
//	    expect: { ladder_index: 1 }
//
// # Assertion Types
//
//   - converges: every arrival order yields the same state and latest log
//   - latest_log: the cache entry's latest log, in every run
//   - final_state: subset match on the state's JSON fields, in every run
//   - paths: the decision path of each arrival in the first run
//   - conflict_count: conflicts reported during the first run
//
// # Deterministic Testing
//
// Server timestamps come from the scenario and batch tokens are fixed, so
// repeated runs produce identical results for golden file comparison.
package harness
