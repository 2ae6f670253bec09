package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	RequestID string
	Direction *Direction
	Layer     *Layer
	Category  *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time

	DeviceID string

	// MessageType matches protocol messages of that command type and the
	// errors raised while handling one.
	MessageType string

	// Action matches control and measure messages naming that action.
	Action string

	// Result matches the response result ("done", "success", "error",
	// "malformed").
	Result string
}

func (f *Filter) matches(e Event) bool {
	switch {
	case f.RequestID != "" && e.RequestID != f.RequestID:
		return false
	case f.Direction != nil && e.Direction != *f.Direction:
		return false
	case f.Layer != nil && e.Layer != *f.Layer:
		return false
	case f.Category != nil && e.Category != *f.Category:
		return false
	case f.TimeStart != nil && e.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !e.Timestamp.Before(*f.TimeEnd):
		return false
	case f.DeviceID != "" && e.DeviceID != f.DeviceID:
		return false
	case f.MessageType != "" && messageType(e) != f.MessageType:
		return false
	case f.Action != "" && (e.Message == nil || e.Message.Action != f.Action):
		return false
	case f.Result != "" && (e.Message == nil || e.Message.Result != f.Result):
		return false
	}
	return true
}

// messageType returns the command type an event belongs to, if any.
func messageType(e Event) string {
	switch {
	case e.Message != nil:
		return e.Message.MessageType
	case e.Error != nil:
		return e.Error.Context
	}
	return ""
}

// Reader streams events from a protocol log file.
type Reader struct {
	file      *os.File
	dec       *cbor.Decoder
	filter    Filter
	truncated bool
}

// NewReader opens path for reading every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path for reading the events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open protocol log: %w", err)
	}
	return &Reader{file: f, dec: newEventDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
// A final event cut short, as left by a power loss mid-write, also ends
// the stream; Truncated reports it.
func (r *Reader) Next() (Event, error) {
	for {
		var e Event
		if err := r.dec.Decode(&e); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				r.truncated = true
				return Event{}, io.EOF
			}
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("decode event: %w", err)
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

// Truncated reports whether the file ended inside an event.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}
