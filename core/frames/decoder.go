package frames

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/bytedance/sonic"
	"github.com/koscakluka/ema-chat/core/events"
)

const (
	dataPrefix    = "data:"
	commentPrefix = ":"
)

// Decoder turns an incrementally delivered reply stream into events.
//
// Chunks may split or merge frames arbitrarily; incomplete trailing data is
// kept until the next Decode or Flush. Frames that cannot be decoded are
// dropped and logged, they never stop decoding of later frames.
//
// A Decoder is not safe for concurrent use, it belongs to a single stream.
type Decoder struct {
	buffer  []byte
	dropped int

	logger *slog.Logger
}

type DecoderOption func(*Decoder)

func WithLogger(logger *slog.Logger) DecoderOption {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode consumes the chunk and returns the events of every frame completed
// by it, in stream order.
func (d *Decoder) Decode(chunk []byte) []events.Event {
	d.buffer = append(d.buffer, chunk...)

	var decoded []events.Event
	consumed := 0
	for {
		end, separatorLen := nextSeparator(d.buffer[consumed:])
		if end < 0 {
			break
		}

		frame := d.buffer[consumed : consumed+end]
		consumed += end + separatorLen
		if event, ok := d.decodeFrame(frame); ok {
			decoded = append(decoded, event)
		}
	}

	if consumed > 0 {
		d.buffer = append([]byte(nil), d.buffer[consumed:]...)
	}

	return decoded
}

// Flush treats whatever is buffered as a final frame. It is called once the
// stream has ended, since the end of the stream also ends the last frame.
func (d *Decoder) Flush() []events.Event {
	frame := d.buffer
	d.buffer = nil

	if event, ok := d.decodeFrame(frame); ok {
		return []events.Event{event}
	}
	return nil
}

// Buffered returns the number of bytes waiting for a frame separator.
func (d *Decoder) Buffered() int { return len(d.buffer) }

// Dropped returns the number of frames that were skipped so far.
func (d *Decoder) Dropped() int { return d.dropped }

func (d *Decoder) decodeFrame(raw []byte) (events.Event, bool) {
	payload := framePayload(raw)
	if len(payload) == 0 {
		return nil, false
	}

	var frame Frame
	if err := sonic.Unmarshal(payload, &frame); err != nil {
		d.dropped++
		d.logger.Warn("Dropping undecodable frame",
			"error", fmt.Errorf("%w: %w", ErrUndecodableFrame, err),
			"frame", truncate(string(payload), 256),
		)
		return nil, false
	}

	event, ok := Classify(frame)
	if !ok {
		d.dropped++
		d.logger.Warn("Dropping frame matching no known event",
			"error", ErrUnknownFrame,
			"frame", truncate(string(payload), 256),
		)
		return nil, false
	}

	return event, true
}

// framePayload strips the line prefix markers from a frame. Frames without
// any "data:" line are taken as a bare payload. Multiple data lines are
// joined with newlines.
func framePayload(raw []byte) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	lines := bytes.Split(raw, []byte("\n"))
	var data [][]byte
	for _, line := range lines {
		line = bytes.TrimRight(line, "\r")
		if rest, ok := bytes.CutPrefix(line, []byte(dataPrefix)); ok {
			data = append(data, bytes.TrimLeft(rest, " \t"))
		}
	}

	if len(data) == 0 {
		if bytes.HasPrefix(raw, []byte(commentPrefix)) {
			return nil
		}
		return raw
	}

	return bytes.TrimSpace(bytes.Join(data, []byte("\n")))
}

// nextSeparator finds the first blank line in buf. It returns the index where
// the frame ends and the length of the separator, or -1 if buf holds no
// complete frame yet.
func nextSeparator(buf []byte) (int, int) {
	for i := 0; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		if i+1 < len(buf) && buf[i+1] == '\n' {
			return i, 2
		}
		if i+2 < len(buf) && buf[i+1] == '\r' && buf[i+2] == '\n' {
			return i, 3
		}
	}
	return -1, 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
