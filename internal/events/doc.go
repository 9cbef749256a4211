// Package events publishes room lifecycle notifications (rooms opening and
// closing, hosts and guests coming and going) to external consumers.
//
// Room actors hand events to a Dispatcher, which queues them and publishes
// from a single goroutine so the relay never waits on the broker. A full queue
// drops the event. Events are notifications only; they carry no audio and are
// not used to share rooms between relay instances.
package events
