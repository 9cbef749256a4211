package protocol

import (
	"errors"
	"unicode/utf8"
)

// FrameKind tags the payload carried by a Frame
type FrameKind uint8

const (
	FrameAudio   FrameKind = iota + 1 // binary audio, delivered as a binary message
	FrameControl                      // UTF-8 text, delivered as a text message
)

// ErrMalformedControl is returned when a text payload is not valid UTF-8
var ErrMalformedControl = errors.New("malformed control message")

// Frame is a single relayed message. The kind is decided once at the
// transport boundary and never re-inspected by the relay core.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// NewAudioFrame wraps a binary payload
func NewAudioFrame(data []byte) Frame {
	return Frame{Kind: FrameAudio, Data: data}
}

// NewControlFrame wraps a control text
func NewControlFrame(text string) Frame {
	return Frame{Kind: FrameControl, Data: []byte(text)}
}

// ParseControlFrame validates an inbound text payload
func ParseControlFrame(data []byte) (Frame, error) {
	if !utf8.Valid(data) {
		return Frame{}, ErrMalformedControl
	}
	return Frame{Kind: FrameControl, Data: data}, nil
}

// IsAudio reports whether the frame carries audio
func (f Frame) IsAudio() bool { return f.Kind == FrameAudio }

// IsControl reports whether the frame carries control text
func (f Frame) IsControl() bool { return f.Kind == FrameControl }

// Len returns the payload size in bytes
func (f Frame) Len() int { return len(f.Data) }

// Text returns the payload as a string
func (f Frame) Text() string { return string(f.Data) }

// String returns the kind name, used as a metric label
func (k FrameKind) String() string {
	switch k {
	case FrameAudio:
		return "audio"
	case FrameControl:
		return "control"
	default:
		return "unknown"
	}
}
