// Package server exposes the relay over HTTP. WebSocket upgrades on /ws, or
// on any other path, are handed to the relay; the remaining routes serve
// health, room and statistics JSON plus Prometheus metrics.
//
// Each upgraded connection runs a read pump on the request goroutine and a
// write pump of its own, so relay.Connection.Send only queues.
package server
