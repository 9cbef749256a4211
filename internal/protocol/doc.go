// Package protocol defines the relay's wire contract: join parameters, roles,
// close codes, control texts, and the Frame variant that separates binary
// audio from textual control messages at the transport boundary.
package protocol
