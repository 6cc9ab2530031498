package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stream represents the output stream type
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// String returns the string representation of Stream
func (s Stream) String() string {
	return string(s)
}

// LogEntry is one supervisor diagnostic. It renders as "<unix_millis>|<message>"
// so consumers can split on the first '|' and sort chronologically.
type LogEntry struct {
	TimestampMillis int64
	Message         string
}

// NewLogEntry stamps message with the current wall clock
func NewLogEntry(message string) LogEntry {
	return LogEntry{
		TimestampMillis: time.Now().UnixMilli(),
		Message:         message,
	}
}

// String returns the wire form of the entry
func (e LogEntry) String() string {
	return strconv.FormatInt(e.TimestampMillis, 10) + "|" + e.Message
}

// Time returns the entry timestamp
func (e LogEntry) Time() time.Time {
	return time.UnixMilli(e.TimestampMillis)
}

// ParseLogEntry parses the "<unix_millis>|<message>" form. The message may
// itself contain '|'.
func ParseLogEntry(s string) (LogEntry, error) {
	ts, msg, ok := strings.Cut(s, "|")
	if !ok {
		return LogEntry{}, fmt.Errorf("missing separator in log entry %q", s)
	}
	millis, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return LogEntry{}, fmt.Errorf("parsing log timestamp: %w", err)
	}
	return LogEntry{TimestampMillis: millis, Message: msg}, nil
}

// Event is a message published on a named channel of the event sink
type Event struct {
	Channel string    `json:"channel"`
	Payload string    `json:"payload"`
	Time    time.Time `json:"time"`
}
