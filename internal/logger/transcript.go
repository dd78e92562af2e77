// Package logger records terminal session transcripts in Asciinema v2
// JSON-lines format, one file per session.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Header is the first line of an Asciinema v2 recording.
type Header struct {
	Version   int    `json:"version"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp int64  `json:"timestamp"`
	Command   string `json:"command,omitempty"`
}

// Event is a single recording event: [time_offset, event_type, data].
type Event struct {
	TimeOffset float64
	EventType  string // "o" for output, "i" for input
	Data       string
}

// MarshalJSON renders the event in the three-element array form.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.TimeOffset, e.EventType, e.Data})
}

// UnmarshalJSON parses the three-element array form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []any
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event: expected 3 elements, got %d", len(arr))
	}
	offset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid time offset")
	}
	eventType, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid event type")
	}
	eventData, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid event data")
	}
	e.TimeOffset = offset
	e.EventType = eventType
	e.Data = eventData
	return nil
}

// Transcript records one session's input and output to a writer.
type Transcript struct {
	writer    io.Writer
	file      *os.File // set only when the transcript owns the file
	startTime time.Time
	mu        sync.Mutex
}

// NewTranscript creates a transcript that writes to the given file path.
func NewTranscript(path string) (*Transcript, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating transcript file: %w", err)
	}
	return &Transcript{writer: file, file: file, startTime: time.Now()}, nil
}

// NewTranscriptWithWriter creates a transcript that writes to w. Useful for
// testing.
func NewTranscriptWithWriter(w io.Writer) *Transcript {
	return &Transcript{writer: w, startTime: time.Now()}
}

// WriteHeader writes the recording header. Call once, before any events.
func (t *Transcript) WriteHeader(width, height int, command string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	header := Header{
		Version:   2,
		Width:     width,
		Height:    height,
		Timestamp: t.startTime.Unix(),
		Command:   command,
	}
	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}
	_, err = t.writer.Write(append(data, '\n'))
	return err
}

// WriteOutput records an output event.
func (t *Transcript) WriteOutput(data string) error {
	return t.writeEvent("o", data)
}

// WriteInput records an input event.
func (t *Transcript) WriteInput(data string) error {
	return t.writeEvent("i", data)
}

func (t *Transcript) writeEvent(eventType, data string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	event := Event{
		TimeOffset: time.Since(t.startTime).Seconds(),
		EventType:  eventType,
		Data:       data,
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	_, err = t.writer.Write(append(line, '\n'))
	return err
}

// Close closes the underlying file, if the transcript owns one.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.file != nil {
		return t.file.Close()
	}
	return nil
}
