package quill

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// DefaultCanvasMarker is the token a model emits to switch from chat to
// document output.
const DefaultCanvasMarker = "[CANVAS_START]"

// CanvasMode is the routing state of a CanvasRouter.
type CanvasMode int

const (
	CanvasModeChat CanvasMode = iota
	CanvasModeCanvas
)

func (m CanvasMode) String() string {
	if m == CanvasModeCanvas {
		return "canvas"
	}
	return "chat"
}

// Range is a half-open character range in the document.
type Range struct {
	From, To int
}

// DocumentEditor is the contract of the document being co-written.
type DocumentEditor interface {
	Insert(ctx context.Context, text string) error
	Delete(ctx context.Context, r Range) error
}

// ChatSink receives conversational text.
type ChatSink func(text string)

// CanvasOption configures a CanvasRouter.
type CanvasOption func(*CanvasRouter)

// WithReplaceRange makes the router delete r from the document when canvas
// output starts, before the first insert. It is used when the model rewrites
// a selection.
func WithReplaceRange(r Range) CanvasOption {
	return func(cr *CanvasRouter) {
		cr.replace = &r
	}
}

// CanvasRouter splits one stream into chat text and document lines at the
// first occurrence of a marker. Build one per stream.
type CanvasRouter struct {
	marker  string
	chat    ChatSink
	doc     DocumentEditor
	replace *Range

	mode           CanvasMode
	pending        string // chat text that may still be the start of the marker
	lineBuffer     string // canvas text after the last newline
	markerConsumed bool
	replaced       bool
	finished       bool
}

// NewCanvasRouter returns a router in chat mode. An empty marker selects
// DefaultCanvasMarker; a nil chat sink discards chat text.
func NewCanvasRouter(marker string, chat ChatSink, doc DocumentEditor, opts ...CanvasOption) *CanvasRouter {
	if marker == "" {
		marker = DefaultCanvasMarker
	}
	if chat == nil {
		chat = func(string) {}
	}
	cr := &CanvasRouter{marker: marker, chat: chat, doc: doc}
	for _, opt := range opts {
		opt(cr)
	}
	return cr
}

// Mode reports the current routing state.
func (cr *CanvasRouter) Mode() CanvasMode { return cr.mode }

// Marker returns the marker that switches the router to the document.
func (cr *CanvasRouter) Marker() string { return cr.marker }

// Run consumes events until a terminal event, the channel closing, or ctx
// ending. A channel closed without a terminal event yields the context error,
// or io.ErrUnexpectedEOF when the context is still live.
func (cr *CanvasRouter) Run(ctx context.Context, events <-chan StreamEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return io.ErrUnexpectedEOF
			}
			if err := cr.Handle(ctx, ev); err != nil {
				return err
			}
			if ev.Type != EventTypeChunk {
				return nil
			}
		}
	}
}

// Handle routes one event. A Failure event is returned as an error and
// leaves buffered text unflushed.
func (cr *CanvasRouter) Handle(ctx context.Context, ev StreamEvent) error {
	if cr.finished {
		return nil
	}
	switch ev.Type {
	case EventTypeChunk:
		if cr.mode == CanvasModeChat {
			return cr.chatChunk(ctx, ev.Text)
		}
		return cr.canvasChunk(ctx, ev.Text)
	case EventTypeComplete:
		cr.finished = true
		return cr.flush(ctx)
	case EventTypeFailure:
		cr.finished = true
		return ev.Err
	default:
		return fmt.Errorf("quill: unknown stream event %v", ev.Type)
	}
}

func (cr *CanvasRouter) chatChunk(ctx context.Context, text string) error {
	cr.pending += text

	if i := strings.Index(cr.pending, cr.marker); i >= 0 {
		if i > 0 {
			cr.chat(cr.pending[:i])
		}
		rest := cr.pending[i+len(cr.marker):]
		cr.pending = ""
		cr.mode = CanvasModeCanvas
		cr.markerConsumed = true
		if err := cr.replaceSelection(ctx); err != nil {
			return err
		}
		return cr.canvasChunk(ctx, rest)
	}

	keep := markerPrefixSuffix(cr.pending, cr.marker)
	if send := cr.pending[:len(cr.pending)-keep]; send != "" {
		cr.chat(send)
	}
	cr.pending = cr.pending[len(cr.pending)-keep:]
	return nil
}

// markerPrefixSuffix returns the length of the longest suffix of s that is
// a proper prefix of marker.
func markerPrefixSuffix(s, marker string) int {
	n := min(len(s), len(marker)-1)
	for k := n; k > 0; k-- {
		if strings.HasSuffix(s, marker[:k]) {
			return k
		}
	}
	return 0
}

func (cr *CanvasRouter) replaceSelection(ctx context.Context) error {
	if cr.replace == nil || cr.replaced {
		return nil
	}
	cr.replaced = true
	if err := cr.doc.Delete(ctx, *cr.replace); err != nil {
		return fmt.Errorf("quill: delete selection: %w", err)
	}
	return nil
}

func (cr *CanvasRouter) canvasChunk(ctx context.Context, text string) error {
	cr.lineBuffer += text
	i := strings.LastIndexByte(cr.lineBuffer, '\n')
	if i < 0 {
		return nil
	}
	complete := cr.lineBuffer[:i+1]
	cr.lineBuffer = cr.lineBuffer[i+1:]
	for _, line := range strings.SplitAfter(complete, "\n") {
		if line == "" {
			continue
		}
		if err := cr.doc.Insert(ctx, line); err != nil {
			return fmt.Errorf("quill: insert into document: %w", err)
		}
	}
	return nil
}

func (cr *CanvasRouter) flush(ctx context.Context) error {
	switch cr.mode {
	case CanvasModeChat:
		if cr.pending != "" {
			cr.chat(cr.pending)
			cr.pending = ""
		}
	case CanvasModeCanvas:
		if cr.lineBuffer != "" {
			line := cr.lineBuffer
			cr.lineBuffer = ""
			if err := cr.doc.Insert(ctx, line); err != nil {
				return fmt.Errorf("quill: insert into document: %w", err)
			}
		}
	}
	return nil
}
