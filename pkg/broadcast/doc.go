// Package broadcast fans typed messages out to many subscribers.
//
// Two implementations share the Broadcaster interface: MemoryBroadcaster
// delivers within one process, RedisBroadcaster delivers across processes
// through Redis pub/sub with JSON-encoded payloads.
//
//	b := broadcast.NewMemoryBroadcaster[string](10)
//	defer b.Close()
//
//	sub, _ := b.Subscribe(ctx)
//	defer sub.Close()
//
//	_ = b.Broadcast(ctx, broadcast.Message[string]{Data: "hello"})
//	msg := <-sub.Receive(ctx)
//
// Delivery is best effort: a subscriber whose buffer is full misses the
// message and is dropped. MemoryBroadcaster can keep such subscribers with
// WithKeepSlowSubscribers. There is no replay for late subscribers.
package broadcast
