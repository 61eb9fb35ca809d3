// Package harness runs multi-node sync scenarios over the in-memory network.
//
// A scenario names a set of nodes, drives their coordinators through a list
// of steps, and checks the settled outcome with assertions. Every node gets a
// real session.Coordinator, an in-memory document, and a SQLite session
// record store in ":memory:", all wired to one memnet.Network.
//
// # Scenario Format
//
//	name: relay_excludes_sender
//	description: "An update from one client reaches the other, not itself"
//	config:                  # optional, same keys as the node config file
//	  heartbeat:
//	    interval: 50ms
//	nodes:
//	  - name: host
//	    document: { "1.1.1": "Mature" }
//	  - name: alice
//	  - name: bob
//	steps:
//	  - { node: host, action: host, code: RELAY1 }
//	  - { wait: { node: host, state: host } }
//	  - { node: alice, action: join, code: relay1 }
//	  - { node: alice, action: update, document: { "2.1.1": "Emerging" } }
//	  - { sleep: 50ms }
//	assertions:
//	  - { type: document, node: bob, document: { "2.1.1": "Emerging" } }
//	  - { type: frame_count, frame: UPDATE, from: host, to: alice, count: 0 }
//
// # Actions
//
//   - host, join: StartHost / JoinRoom with code (host may omit it)
//   - resume, stop, shutdown
//   - update: SendUpdate with document
//   - lock, unlock: SetLock
//   - silence, unsilence: drop or restore every frame the node sends
//   - outage, restore: make the whole network unreachable or reachable again
//
// # Assertion Types
//
//   - state: node is idle, connecting, host or client
//   - participants: node reports count participants
//   - document: node's document equals document exactly
//   - locked: node's lock flag equals locked
//   - notice: some notification on node contains contains; count, when
//     set, is the exact number of matches
//   - frame_count: exactly count frames of type frame were sent from→to
//     (either side may be omitted)
//   - record: node's persisted session record has role and code, or is
//     absent
//
// Assertions are polled together until all pass or the scenario's settle
// time runs out, so they describe the state the nodes converge to.
package harness
