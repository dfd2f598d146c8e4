// Package commands implements the slit-trace CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/photon-controls/slits-go/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Device   string
	PV       string
	Category *log.Category
}

// toFilter converts the command-level filter to a reader filter.
func (f ViewFilter) toFilter() log.Filter {
	return log.Filter{
		Device:   f.Device,
		PV:       f.PV,
		Category: f.Category,
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [device] CATEGORY TypeLabel
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var typeLabel string
	switch {
	case event.Setpoint != nil:
		typeLabel = "Write"
	case event.Motion != nil:
		typeLabel = event.Motion.Phase.String()
	case event.Monitor != nil:
		typeLabel = "Update"
	case event.Wire != nil:
		typeLabel = event.Wire.Direction.String()
	case event.Connection != nil:
		typeLabel = "State"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [%s] %-10s %s\n", ts, event.Device, event.Category.String(), typeLabel)

	if event.PV != "" {
		fmt.Fprintf(w, "  PV: %s\n", event.PV)
	}

	// Type-specific details
	switch {
	case event.Setpoint != nil:
		formatSetpointDetails(w, event.Setpoint)
	case event.Motion != nil:
		formatMotionDetails(w, event.Motion)
	case event.Monitor != nil:
		formatMonitorDetails(w, event.Monitor)
	case event.Wire != nil:
		formatWireDetails(w, event.Wire)
	case event.Connection != nil:
		formatConnectionDetails(w, event.Connection)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// formatSetpointDetails writes setpoint-specific details.
func formatSetpointDetails(w io.Writer, sp *log.SetpointEvent) {
	fmt.Fprintf(w, "  Value: %g\n", sp.Value)
}

// formatMotionDetails writes move lifecycle details.
func formatMotionDetails(w io.Writer, m *log.MotionEvent) {
	fmt.Fprintf(w, "  Target: %g\n", m.Target)
	if m.Elapsed != nil {
		fmt.Fprintf(w, "  Elapsed: %s\n", formatDuration(*m.Elapsed))
	}
}

// formatMonitorDetails writes monitor update details.
func formatMonitorDetails(w io.Writer, m *log.MonitorEvent) {
	fmt.Fprintf(w, "  Value: %g\n", m.Value)
	if m.MonitorID != 0 {
		fmt.Fprintf(w, "  MonitorID: %d\n", m.MonitorID)
	}
}

// formatWireDetails writes gateway message details.
func formatWireDetails(w io.Writer, we *log.WireEvent) {
	if we.ConnectionID != "" {
		fmt.Fprintf(w, "  Connection: %s\n", shortenConnID(we.ConnectionID))
	}
	if we.MessageID != 0 {
		fmt.Fprintf(w, "  MessageID: %d\n", we.MessageID)
	}
	if we.Operation != nil {
		fmt.Fprintf(w, "  Operation: %s\n", we.Operation.String())
	}
	if we.Status != nil {
		fmt.Fprintf(w, "  Status: %s\n", we.Status.String())
	}
	if we.FrameSize > 0 {
		fmt.Fprintf(w, "  Size: %d bytes\n", we.FrameSize)
	}
}

// formatConnectionDetails writes connection state change details.
func formatConnectionDetails(w io.Writer, ce *log.ConnectionEvent) {
	if ce.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", ce.RemoteAddr)
	}
	if ce.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", ce.OldState, ce.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", ce.NewState)
	}
	if ce.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", ce.Reason)
	}
}

// formatErrorDetails writes error details.
func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseCategoryFlag parses a category string from a command-line flag
// (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseCategory(s)
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (log.Category, error) {
	c, ok := log.ParseCategory(strings.ToUpper(s))
	if !ok {
		return 0, fmt.Errorf("invalid category: %s (must be setpoint, motion, monitor, wire, connection, or error)", s)
	}
	return c, nil
}

// RunView executes the view command.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.toFilter())
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		formatEvent(output, event)
	}

	return nil
}
