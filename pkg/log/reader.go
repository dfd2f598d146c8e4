package log

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events from a trace stream. Zero-valued fields match
// everything; set fields must all match.
type Filter struct {
	// Device matches the device name exactly.
	Device string

	// PV matches the channel name exactly.
	PV string

	// Category matches the event category.
	Category *Category

	// TimeStart keeps events at or after this time.
	TimeStart *time.Time

	// TimeEnd keeps events strictly before this time.
	TimeEnd *time.Time
}

func (f *Filter) matches(event Event) bool {
	switch {
	case f.Device != "" && event.Device != f.Device:
		return false
	case f.PV != "" && event.PV != f.PV:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader streams events out of a CBOR trace file one at a time, so
// arbitrarily large traces read in constant memory.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens a trace file for reading every event.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a trace file; Next returns only events the
// filter matches.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &Reader{file: f, decoder: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at end of stream.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			if err == io.EOF {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("decode trace event: %w", err)
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
