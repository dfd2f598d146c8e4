package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/photon-controls/slits-go/pkg/log"
)

func TestStatsCountsByCategory(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Device: "slits", Category: log.CategorySetpoint, Setpoint: &log.SetpointEvent{Value: 1}},
		{Timestamp: ts, Device: "slits", Category: log.CategorySetpoint, Setpoint: &log.SetpointEvent{Value: 2}},
		{Timestamp: ts, Device: "slits", Category: log.CategoryMotion, Motion: &log.MotionEvent{Phase: log.MotionStart}},
		{Timestamp: ts, Device: "slits", Category: log.CategoryMonitor, Monitor: &log.MonitorEvent{Value: 1}},
		{Timestamp: ts, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "test"}},
	}

	path := createTestTraceFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "SETPOINT:") {
		t.Error("expected SETPOINT category in output")
	}
	if !strings.Contains(output, "MOTION:") {
		t.Error("expected MOTION category in output")
	}
	if !strings.Contains(output, "MONITOR:") {
		t.Error("expected MONITOR category in output")
	}
	if !strings.Contains(output, "ERROR:") {
		t.Error("expected ERROR category in output")
	}
}

func TestStatsMovesByPhase(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Device: "slits", Category: log.CategoryMotion, Motion: &log.MotionEvent{Phase: log.MotionStart, Target: 1}},
		{Timestamp: ts, Device: "slits", Category: log.CategoryMotion, Motion: &log.MotionEvent{Phase: log.MotionComplete, Target: 1}},
		{Timestamp: ts, Device: "slits", Category: log.CategoryMotion, Motion: &log.MotionEvent{Phase: log.MotionStart, Target: 2}},
		{Timestamp: ts, Device: "slits", Category: log.CategoryMotion, Motion: &log.MotionEvent{Phase: log.MotionStopped, Target: 2}},
	}

	path := createTestTraceFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "Moves by Phase:") {
		t.Error("expected Moves by Phase section in output")
	}
	if !strings.Contains(output, "START:") {
		t.Error("expected START phase in output")
	}
	if !strings.Contains(output, "COMPLETE:") {
		t.Error("expected COMPLETE phase in output")
	}
	if !strings.Contains(output, "STOPPED:") {
		t.Error("expected STOPPED phase in output")
	}
}

func TestStatsCountsDevices(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Device: "hxr-slits", Category: log.CategorySetpoint, Setpoint: &log.SetpointEvent{Value: 1}},
		{Timestamp: ts.Add(time.Second), Device: "hxr-slits", Category: log.CategoryMotion, Motion: &log.MotionEvent{Phase: log.MotionStart}},
		{Timestamp: ts, Device: "sxr-slits", Category: log.CategorySetpoint, Setpoint: &log.SetpointEvent{Value: 2}},
	}

	path := createTestTraceFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "Devices: 2") {
		t.Errorf("expected 2 devices in output, got:\n%s", output)
	}
	if !strings.Contains(output, "[hxr-slits]") {
		t.Error("expected hxr-slits device details")
	}
	if !strings.Contains(output, "Moves: 1") {
		t.Error("expected move count for hxr-slits")
	}
}

func TestStatsTotalEvents(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Category: log.CategorySetpoint, Setpoint: &log.SetpointEvent{Value: 1}},
		{Timestamp: ts, Category: log.CategorySetpoint, Setpoint: &log.SetpointEvent{Value: 2}},
		{Timestamp: ts, Category: log.CategorySetpoint, Setpoint: &log.SetpointEvent{Value: 3}},
	}

	path := createTestTraceFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "Total Events: 3") {
		t.Errorf("expected 3 total events in output, got:\n%s", output)
	}
}

func TestStatsTimeRange(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: start, Category: log.CategorySetpoint, Setpoint: &log.SetpointEvent{Value: 1}},
		{Timestamp: end, Category: log.CategorySetpoint, Setpoint: &log.SetpointEvent{Value: 2}},
	}

	path := createTestTraceFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "Duration:") {
		t.Error("expected Duration in output")
	}
	if !strings.Contains(output, "1h0m0s") {
		t.Errorf("expected 1h0m0s duration in output, got:\n%s", output)
	}
}

func TestStatsErrorCount(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Category: log.CategorySetpoint, Setpoint: &log.SetpointEvent{Value: 1}},
		{Timestamp: ts, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "error 1"}},
		{Timestamp: ts, Category: log.CategoryError, Error: &log.ErrorEventData{Message: "error 2"}},
	}

	path := createTestTraceFile(t, events)

	var buf bytes.Buffer
	err := RunStats(path, &buf)
	if err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "Errors: 2") {
		t.Errorf("expected 2 errors in output, got:\n%s", output)
	}
}
