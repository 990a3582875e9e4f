package quill

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	ssePrefix   = "data:"
	sseSentinel = "[DONE]"
)

// SSEDecoder turns arbitrarily split reads of a `data: {json}` stream into
// content chunks. The output does not depend on where read boundaries fall.
// It is not safe for concurrent use; each stream owns one.
type SSEDecoder struct {
	buf    []byte
	done   bool
	logger *slog.Logger
}

// NewSSEDecoder returns a decoder that logs malformed frames to logger
// (slog.Default when nil).
func NewSSEDecoder(logger *slog.Logger) *SSEDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEDecoder{logger: logger}
}

// Feed appends one read and returns the chunks of every line it completed.
// done is true once the [DONE] sentinel was seen; after that Feed discards
// its input.
func (d *SSEDecoder) Feed(read []byte) (chunks []string, done bool) {
	if d.done {
		return nil, true
	}
	d.buf = append(d.buf, read...)

	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]

		text, stop := d.line(line)
		if stop {
			d.done = true
			d.buf = nil
			return chunks, true
		}
		if text != "" {
			chunks = append(chunks, text)
		}
	}
	// Keep the partial line in a fresh slice so the backing array does not
	// grow with everything ever read.
	d.buf = append([]byte(nil), d.buf...)
	return chunks, false
}

// Flush processes a final line that was not newline-terminated. Call it once
// the underlying reader reports EOF.
func (d *SSEDecoder) Flush() []string {
	if d.done || len(d.buf) == 0 {
		return nil
	}
	line := string(d.buf)
	d.buf = nil
	text, stop := d.line(line)
	if stop {
		d.done = true
		return nil
	}
	if text == "" {
		return nil
	}
	return []string{text}
}

// Done reports whether the sentinel has been seen.
func (d *SSEDecoder) Done() bool { return d.done }

func (d *SSEDecoder) line(raw string) (text string, stop bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if strings.HasPrefix(line, ssePrefix) {
		line = strings.TrimSpace(strings.TrimPrefix(line, ssePrefix))
	}
	if line == sseSentinel {
		return "", true
	}

	var frame openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(line), &frame); err != nil {
		d.logger.Warn("skipping malformed stream frame",
			slog.String("frame", truncate(line, 200)),
			slog.String("error", err.Error()))
		return "", false
	}
	if len(frame.Choices) == 0 {
		return "", false
	}
	return frame.Choices[0].Delta.Content, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
