/*
Package event implements the Event Hub and Event Writer described in the
system design: a process-wide fan-out of persisted events to any number
of live subscribers, with exact resume by global event id.

# Writer

Writer.Write is the only path by which an event becomes visible. It
locks the owning session (via store.Store.LockSession), allocates the
next (id, seq) as part of the same Store transaction that inserts the
row, and only then publishes to the Hub. This ordering — persist before
publish — guarantees that anything observed live is also replayable.

# Hub

Hub.Subscribe first replays every event with id greater than the
caller's `since`, then switches to live delivery. Each subscriber has a
bounded channel; if delivery cannot keep up, the subscriber is marked
stale and disconnected rather than slowing down the Writer or other
subscribers. Periodic heartbeat envelopes keep idle connections alive
without being persisted or counted in the event log.

# Bus

Bus is the low-level direct-dispatch layer the Hub sits on, built on
watermill's in-memory gochannel transport for its underlying plumbing
while preserving typed, synchronous delivery semantics.
*/
package event
