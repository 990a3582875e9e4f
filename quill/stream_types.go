package quill

import (
	"context"
	"fmt"
)

// StreamEventType identifies the event kind.
type StreamEventType int

const (
	// EventTypeChunk carries a piece of model text.
	EventTypeChunk StreamEventType = iota
	// EventTypeComplete signals normal stream completion.
	EventTypeComplete
	// EventTypeFailure signals the stream ended with an error.
	EventTypeFailure
)

func (t StreamEventType) String() string {
	switch t {
	case EventTypeChunk:
		return "chunk"
	case EventTypeComplete:
		return "complete"
	case EventTypeFailure:
		return "failure"
	default:
		return fmt.Sprintf("StreamEventType(%d)", int(t))
	}
}

// StreamEvent represents a single event in the stream. A stream delivers any
// number of chunks followed by exactly one Complete or Failure, unless it is
// cancelled, in which case the channel closes without a terminal event.
type StreamEvent struct {
	Type StreamEventType

	// Text content (for EventTypeChunk)
	Text string

	// Err (for EventTypeFailure)
	Err error
}

// Chunk, Complete and Failure build events; they are mostly useful when
// feeding a CanvasRouter from something other than Client.Stream.
func Chunk(text string) StreamEvent { return StreamEvent{Type: EventTypeChunk, Text: text} }
func Complete() StreamEvent         { return StreamEvent{Type: EventTypeComplete} }
func Failure(err error) StreamEvent { return StreamEvent{Type: EventTypeFailure, Err: err} }

// StreamResponse provides control over an active stream.
type StreamResponse struct {
	Events <-chan StreamEvent
	// Cancel aborts the underlying connection. No further events are
	// delivered afterwards and Events is closed.
	Cancel context.CancelFunc

	RequestID string
}
