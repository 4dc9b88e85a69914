// Package bus provides the in-memory notification bus that decouples running
// jobs from the connections observing them.
//
// Events are keyed by request ID. Publish fans an event out synchronously to
// every current subscriber of that ID; with no subscribers the event is
// dropped. There is no buffering or replay: a subscriber that attaches after
// a job's terminal event must fetch the stored result instead.
//
// Two subscription styles are offered:
//
//	sub := b.Subscribe(id, func(ev bus.Event) { ... })
//	defer sub.Unsubscribe()
//
//	ch, sub := b.SubscribeChan(ctx, id) // released when ctx ends
//
// A single subscriber observes one ID's events in publish order.
package bus
