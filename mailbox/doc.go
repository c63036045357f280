// Package mailbox implements a capacity-1 rendezvous channel with a
// two-level shutdown protocol.
//
// A Channel holds at most one item. Put blocks while the slot is occupied
// and Get blocks while it is empty, so a slow consumer throttles its
// producer. Shutdown comes in two strengths:
//
//   - graceful: Put fails at once, but an item already in the slot can still
//     be taken by one more Get;
//   - immediate: the resident item is discarded and every Get and Put fails.
//
// A closed channel is not an error. Get and Put report it through their
// boolean result, and Iter ends its sequence when it sees it:
//
//	ch := mailbox.New[Frame]()
//	go func() {
//	    defer ch.Shutdown(false)
//	    for _, f := range frames {
//	        if !ch.Put(f) {
//	            return
//	        }
//	    }
//	}()
//	for {
//	    f, ok := ch.Get()
//	    if !ok {
//	        break
//	    }
//	    render(f)
//	}
package mailbox
