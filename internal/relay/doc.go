// Package relay multiplexes audio rooms. Each room has at most one
// publisher (host) and any number of subscribers (guests).
//
// Every Room is owned by a single goroutine that consumes join, message,
// leave, expire, info and shutdown events from a bounded inbox, so room state
// is never shared between goroutines. The Registry maps room ids to rooms and
// is the only state guarded by a mutex; that mutex is never held while
// waiting on a room.
//
// Transports implement Connection and hand inbound traffic to the Session
// returned by Router.Attach. Sweeper evicts rooms that stayed idle past the
// configured timeout.
package relay
