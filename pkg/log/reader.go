package log

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/wifiprov/wifiprov-go/pkg/event"
)

// ErrTruncated reports a partial event at the end of a log, typically left
// by a power loss while the device was writing.
var ErrTruncated = errors.New("log truncated mid-event")

// Filter specifies criteria for filtering log events.
// Empty/nil fields match all events for that criterion.
type Filter struct {
	// SessionID filters by exact session ID match.
	SessionID string

	// Category filters by event category.
	Category *Category

	// Base filters network events by event base.
	Base event.Base

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time
}

// Matches returns true if the event matches all filter criteria.
func (f *Filter) Matches(ev Event) bool {
	if f.SessionID != "" && ev.SessionID != f.SessionID {
		return false
	}
	if f.Category != nil && ev.Category != *f.Category {
		return false
	}
	if f.Base != "" && (ev.Network == nil || ev.Network.Base != f.Base) {
		return false
	}
	if f.TimeStart != nil && ev.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !ev.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Reader reads lifecycle events from a CBOR-encoded file.
// It provides an iterator interface for streaming large files.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader creates a Reader that reads all events from the specified log file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader creates a Reader that reads events matching the filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewDecoder(f),
		filter:  filter,
	}, nil
}

// Next returns the next event that matches the filter.
// Returns io.EOF when no more events are available, and ErrTruncated when
// the file ends inside an event.
func (r *Reader) Next() (Event, error) {
	for {
		var ev Event
		if err := r.decoder.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return Event{}, ErrTruncated
			}
			return Event{}, err
		}

		if r.filter.Matches(ev) {
			return ev, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
