package deepresearch

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/quartoworks/shelfmark/pkg/errors"
)

// Stream event types carried in the data payload.
const (
	EventInteractionStart    = "interaction.start"
	EventInteractionComplete = "interaction.complete"
	EventContentDelta        = "content.delta"
	EventError               = "error"
)

// Delta payload types.
const (
	DeltaText           = "text"
	DeltaThoughtSummary = "thought_summary"
)

// Event is one server-sent event off a research stream. The JSON payload
// is authoritative for the event type; the id comes from the payload when
// present, otherwise from the frame's id field.
type Event struct {
	EventID     string       `json:"event_id,omitempty"`
	EventType   string       `json:"event_type"`
	Interaction *Interaction `json:"interaction,omitempty"`
	Delta       *Delta       `json:"delta,omitempty"`
	Error       *StatusError `json:"error,omitempty"`
}

// Terminal reports whether the stream carries nothing useful after this
// event.
func (e *Event) Terminal() bool {
	return e.EventType == EventInteractionComplete || e.EventType == EventError
}

// Delta is an incremental content update. Text deltas extend the report;
// thought summaries narrate the agent's progress and are not part of it.
type Delta struct {
	Type    string        `json:"type"`
	Text    string        `json:"text,omitempty"`
	Content *DeltaContent `json:"content,omitempty"`
}

// DeltaContent wraps the text of non-report deltas such as thought
// summaries.
type DeltaContent struct {
	Text string `json:"text"`
}

// Summary returns the thought-summary text regardless of which field the
// server put it in.
func (d *Delta) Summary() string {
	if d.Content != nil && d.Content.Text != "" {
		return d.Content.Text
	}
	return d.Text
}

// A single report delta can carry a large chunk of markdown.
const maxEventBytes = 1 << 20

// Stream reads server-sent events off a research connection. Events are
// framed as event/id/data lines terminated by a blank line; data may span
// multiple lines.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// NewStream wraps a raw SSE response body.
func NewStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventBytes)
	return &Stream{body: body, scanner: scanner}
}

// Next returns the next event. It returns io.EOF when the server closes
// the connection, which callers must treat as a drop unless a terminal
// event already arrived.
func (s *Stream) Next() (*Event, error) {
	var (
		frameID string
		data    strings.Builder
	)

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if data.Len() == 0 {
				frameID = ""
				continue
			}
			return decodeEvent(frameID, data.String())
		}
		if strings.HasPrefix(line, ":") {
			// Comment line, used as a keepalive.
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			frameID = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		case "event":
			// The payload's event_type field is authoritative.
		}
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	if data.Len() > 0 {
		// Connection ended mid-frame; deliver what arrived.
		return decodeEvent(frameID, data.String())
	}
	return nil, io.EOF
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	return s.body.Close()
}

func decodeEvent(frameID, payload string) (*Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, errors.NewParseError("sse", "", "undecodable event payload", err)
	}
	if event.EventID == "" {
		event.EventID = frameID
	}
	return &event, nil
}
