// Package toast provides the in-process notification store for CityPulse
// applications.
//
// The store holds the set of toasts currently presented to a user, renders
// nothing itself, and pushes an immutable state snapshot to every subscriber
// after each transition. UI layers (the WebSocket feed in pkg/server, tests,
// or any other consumer) subscribe to the store and render whatever the
// current snapshot contains.
//
// # Lifecycle
//
// A toast moves through a fixed sequence of states:
//
//	created -> visible (Open=true) -> dismissed (Open=false, removal pending) -> removed
//
// Dismissal never removes a toast immediately. It marks the toast closed and
// schedules its removal after the store's removal delay, so the rendering
// layer has time to play an exit transition before the entry disappears from
// state. A dismissed toast is never re-opened, and removal is terminal.
//
// # Usage
//
//	store := toast.New(toast.WithLimit(1))
//	defer store.Close()
//
//	unsubscribe := store.Subscribe(func(s toast.State) {
//	    // push s to the client
//	})
//	defer unsubscribe()
//
//	h := store.Success("Complaint registered")
//	// later, from a close gesture:
//	h.Dismiss()
//
// Every operation on a stale or unknown id is a silent no-op: removal timers
// race with manual dismissal by design, and the store never fails because the
// other path won.
package toast
