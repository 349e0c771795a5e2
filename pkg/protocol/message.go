// Package protocol defines the JSON envelope exchanged over the chat socket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the rendering of an envelope timestamp in the chat log.
const TimestampLayout = "2006-01-02 15:04:05"

// Message is the wire envelope. Every field is optional on receive; a zero
// value means the field was absent.
type Message struct {
	TS  int64  `json:"ts,omitempty"`  // unix seconds
	UID string `json:"uid,omitempty"` // sender name, attached by the peer
	Msg string `json:"msg,omitempty"` // message text
}

// NewText builds an outgoing message stamped with now. The sender is left
// empty since the peer attaches identity from the authentication payload.
func NewText(text string, now time.Time) Message {
	return Message{TS: now.Unix(), Msg: text}
}

// Encode serializes the message to JSON.
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode parses a JSON object into the message. Unknown fields are ignored.
func (m *Message) Decode(data []byte) error {
	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	*m = decoded
	return nil
}

// FormatTimestamp renders unix seconds as YYYY-MM-DD HH:MM:SS in loc.
func FormatTimestamp(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(ts, 0).In(loc).Format(TimestampLayout)
}

// Render returns the chat log line for the message: "uid @ time : msg",
// leaving out whatever is absent.
func (m Message) Render(loc *time.Location) string {
	var header []string
	if m.UID != "" {
		header = append(header, m.UID)
	}
	if m.TS != 0 {
		header = append(header, "@ "+FormatTimestamp(m.TS, loc))
	}
	line := strings.Join(header, " ")
	if m.Msg == "" {
		return line
	}
	if line == "" {
		return m.Msg
	}
	return line + " : " + m.Msg
}
