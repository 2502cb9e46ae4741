// Package sse decodes the pipeline's text/event-stream body into frames.
package sse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

// ErrStreamUnavailable is returned when there is no stream body to decode.
var ErrStreamUnavailable = errors.New("stream unavailable")

const (
	fieldEvent = "event:"
	fieldData  = "data:"
)

// FrameHandler is called for each decoded frame.
type FrameHandler func(frame domain.Frame) error

// Decoder turns arbitrarily chunked stream bytes into frames.
//
// Each data line completes one frame carrying the most recent event type,
// after which the event type falls back to "message". The last line of a
// chunk is held back until its newline arrives, so a line split across two
// chunks is decoded exactly once.
type Decoder struct {
	carry     []byte
	eventType domain.EventType
	skipped   int
	onSkip    func(line string)
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithSkipHook registers a callback for lines that carry no known field.
func WithSkipHook(fn func(line string)) Option {
	return func(d *Decoder) {
		d.onSkip = fn
	}
}

// NewDecoder creates a new decoder.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{eventType: domain.EventTypeMessage}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed decodes every complete line of chunk, buffering the trailing partial line.
func (d *Decoder) Feed(chunk []byte) []domain.Frame {
	if len(chunk) == 0 {
		return nil
	}

	buf := make([]byte, 0, len(d.carry)+len(chunk))
	buf = append(buf, d.carry...)
	buf = append(buf, chunk...)

	var frames []domain.Frame
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		if frame, ok := d.decodeLine(string(buf[:i])); ok {
			frames = append(frames, frame)
		}
		buf = buf[i+1:]
	}

	d.carry = append(d.carry[:0], buf...)
	return frames
}

// Flush decodes the buffered partial line at end of stream.
func (d *Decoder) Flush() []domain.Frame {
	if len(d.carry) == 0 {
		return nil
	}
	line := string(d.carry)
	d.carry = d.carry[:0]
	if frame, ok := d.decodeLine(line); ok {
		return []domain.Frame{frame}
	}
	return nil
}

// Skipped returns the number of malformed lines dropped so far.
func (d *Decoder) Skipped() int {
	return d.skipped
}

func (d *Decoder) decodeLine(raw string) (domain.Frame, bool) {
	line := strings.TrimSuffix(raw, "\r")
	if strings.TrimSpace(line) == "" {
		return domain.Frame{}, false
	}
	// Comments (lines starting with :)
	if strings.HasPrefix(line, ":") {
		return domain.Frame{}, false
	}

	switch {
	case strings.HasPrefix(line, fieldEvent):
		name := strings.TrimSpace(strings.TrimPrefix(line, fieldEvent))
		if name == "" {
			name = string(domain.EventTypeMessage)
		}
		d.eventType = domain.EventType(name)
		return domain.Frame{}, false

	case strings.HasPrefix(line, fieldData):
		frame := domain.Frame{
			EventType: d.eventType,
			Data:      strings.TrimSpace(strings.TrimPrefix(line, fieldData)),
		}
		d.eventType = domain.EventTypeMessage
		return frame, true

	case strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
		return domain.Frame{}, false
	}

	d.skipped++
	if d.onSkip != nil {
		d.onSkip(line)
	}
	return domain.Frame{}, false
}

// Reader lazily yields the frames of an underlying byte stream.
type Reader struct {
	src     io.Reader
	dec     *Decoder
	buf     []byte
	pending []domain.Frame
	err     error
}

// NewReader creates a frame reader over src. A nil src yields ErrStreamUnavailable.
func NewReader(src io.Reader, opts ...Option) *Reader {
	r := &Reader{
		src: src,
		dec: NewDecoder(opts...),
		buf: make([]byte, 4096),
	}
	if src == nil {
		r.err = ErrStreamUnavailable
	}
	return r
}

// Next returns the next frame, io.EOF once the stream is exhausted.
func (r *Reader) Next() (domain.Frame, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return domain.Frame{}, r.err
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = append(r.pending, r.dec.Feed(r.buf[:n])...)
		}
		if err != nil {
			r.pending = append(r.pending, r.dec.Flush()...)
			if errors.Is(err, io.EOF) {
				r.err = io.EOF
			} else {
				r.err = fmt.Errorf("failed to read stream: %w", err)
			}
		}
	}

	frame := r.pending[0]
	r.pending = r.pending[1:]
	return frame, nil
}

// Skipped returns the number of malformed lines dropped so far.
func (r *Reader) Skipped() int {
	return r.dec.Skipped()
}

// Decode reads src to the end and calls handler for each frame in order.
// It stops early when ctx is done or handler returns an error.
func Decode(ctx context.Context, src io.Reader, handler FrameHandler, opts ...Option) error {
	if src == nil {
		return ErrStreamUnavailable
	}

	reader := NewReader(src, opts...)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		// The session may have been torn down while we were blocked on Read.
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := handler(frame); err != nil {
			return err
		}
	}
}
