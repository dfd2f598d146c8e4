package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func TestReaderHandlesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.trace")

	// Create empty file
	logger, _ := NewFileLogger(path)
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	event, err := reader.Next()
	if err != io.EOF {
		t.Errorf("expected io.EOF, got err=%v, event=%+v", err, event)
	}
}

func TestReaderFilterByDevice(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now().UTC(), Device: "hx2_slits", Category: CategorySetpoint},
		{Timestamp: time.Now().UTC(), Device: "mfx_slits", Category: CategorySetpoint},
		{Timestamp: time.Now().UTC(), Device: "hx2_slits", Category: CategoryMotion},
	}

	path := createTestLogFile(t, events)

	reader, err := NewFilteredReader(path, Filter{Device: "hx2_slits"})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 2 {
		t.Fatalf("got %d events, want 2", len(read))
	}
	for _, e := range read {
		if e.Device != "hx2_slits" {
			t.Errorf("event has Device=%q, want hx2_slits", e.Device)
		}
	}
}

func TestReaderFilterByCategory(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now().UTC(), Device: "a", Category: CategorySetpoint},
		{Timestamp: time.Now().UTC(), Device: "a", Category: CategoryMotion},
		{Timestamp: time.Now().UTC(), Device: "a", Category: CategoryMotion},
		{Timestamp: time.Now().UTC(), Device: "a", Category: CategoryError},
	}

	path := createTestLogFile(t, events)

	category := CategoryMotion
	reader, err := NewFilteredReader(path, Filter{Category: &category})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 2 {
		t.Fatalf("got %d events, want 2", len(read))
	}
	for _, e := range read {
		if e.Category != CategoryMotion {
			t.Errorf("event has Category=%v, want MOTION", e.Category)
		}
	}
}

func TestReaderFilterByTimeRange(t *testing.T) {
	baseTime := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	events := []Event{
		{Timestamp: baseTime.Add(-1 * time.Hour), Device: "first", Category: CategorySetpoint},
		{Timestamp: baseTime, Device: "second", Category: CategorySetpoint},
		{Timestamp: baseTime.Add(30 * time.Minute), Device: "third", Category: CategorySetpoint},
		{Timestamp: baseTime.Add(2 * time.Hour), Device: "fourth", Category: CategorySetpoint},
	}

	path := createTestLogFile(t, events)

	start := baseTime.Add(-5 * time.Minute)
	end := baseTime.Add(1 * time.Hour)
	reader, err := NewFilteredReader(path, Filter{TimeStart: &start, TimeEnd: &end})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	if len(read) != 2 {
		t.Fatalf("got %d events, want 2 (events within time range)", len(read))
	}
	if read[0].Device != "second" || read[1].Device != "third" {
		t.Errorf("wrong events selected: %q, %q", read[0].Device, read[1].Device)
	}
}

func TestReaderCombinedFilters(t *testing.T) {
	events := []Event{
		{Timestamp: time.Now().UTC(), Device: "a", PV: "A:XWID_REQ", Category: CategorySetpoint},
		{Timestamp: time.Now().UTC(), Device: "a", PV: "A:YWID_REQ", Category: CategorySetpoint},
		{Timestamp: time.Now().UTC(), Device: "b", PV: "A:XWID_REQ", Category: CategorySetpoint},
		{Timestamp: time.Now().UTC(), Device: "a", PV: "A:XWID_REQ", Category: CategoryMotion},
	}

	path := createTestLogFile(t, events)

	category := CategorySetpoint
	reader, err := NewFilteredReader(path, Filter{
		Device:   "a",
		PV:       "A:XWID_REQ",
		Category: &category,
	})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer reader.Close()

	read := readAll(t, reader)
	// Only the first event matches all criteria
	if len(read) != 1 {
		t.Fatalf("got %d events, want 1", len(read))
	}
	if read[0].Device != "a" || read[0].PV != "A:XWID_REQ" || read[0].Category != CategorySetpoint {
		t.Error("event doesn't match all filter criteria")
	}
}
