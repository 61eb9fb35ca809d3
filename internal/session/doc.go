// Package session implements the session coordinator: the state machine that
// hosts or joins a room, keeps the shared document flowing over peer links
// and recovers from link loss.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every mutation of the link registry, the session descriptor, the pending
// queue and the state happens on the goroutine running Coordinator.Run.
// Public methods, transport callbacks, heartbeat ticks, retry timers and
// open timeouts only enqueue events.
//
// Event Processing Flow:
// 1. An operation or callback enqueues an event
// 2. Run dequeues events one at a time
// 3. processEvent routes the event to its handler
// 4. The status snapshot is refreshed and pushed to the listener
//
// Epochs:
// Each establishment attempt gets a new epoch. Transport events, ticks and
// timeouts carry the epoch they were created for, and events from an older
// epoch are dropped. This is what cancels an in-flight open on StopSync or
// on a retry.
//
// States:
//
//	Idle --StartHost/JoinRoom/Resume--> Connecting --open--> Host | Client
//	Client --link lost--> Connecting (retry with backoff)
//	Connecting --retries exhausted or code collision--> Idle
//	any --StopSync--> Idle
//
// A host losing one link stays Host; only that link is removed.
package session
