// Package audio holds the bounded frame buffer kept per room.
// Frames are opaque byte slices; the buffer never inspects or converts them.
package audio
