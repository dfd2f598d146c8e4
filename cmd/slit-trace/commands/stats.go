package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/photon-controls/slits-go/pkg/log"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[log.Category]int
	MovesByPhase     map[log.MotionPhase]int
	Devices          map[string]*DeviceStats
	Errors           int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// DeviceStats holds statistics for a single device.
type DeviceStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Moves     int
	Setpoints int
	Monitors  int
}

// RunStats analyzes the trace file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory: make(map[log.Category]int),
		MovesByPhase:     make(map[log.MotionPhase]int),
		Devices:          make(map[string]*DeviceStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++

		// Track time range
		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		if event.Motion != nil {
			stats.MovesByPhase[event.Motion.Phase]++
		}

		// Track per-device stats. Wire and connection events are not
		// device-scoped and fall outside this table.
		if event.Device != "" {
			dev, ok := stats.Devices[event.Device]
			if !ok {
				dev = &DeviceStats{
					FirstSeen: event.Timestamp,
					LastSeen:  event.Timestamp,
				}
				stats.Devices[event.Device] = dev
			}
			dev.Events++
			if event.Timestamp.After(dev.LastSeen) {
				dev.LastSeen = event.Timestamp
			}
			if event.Motion != nil && event.Motion.Phase == log.MotionStart {
				dev.Moves++
			}
			if event.Setpoint != nil {
				dev.Setpoints++
			}
			if event.Monitor != nil {
				dev.Monitors++
			}
		}

		// Count errors
		if event.Error != nil {
			stats.Errors++
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Slit Trace Statistics ===")
	fmt.Fprintln(w)

	// Time range
	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	// Total events
	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	// Events by category
	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{
		log.CategorySetpoint, log.CategoryMotion, log.CategoryMonitor,
		log.CategoryWire, log.CategoryConnection, log.CategoryError,
	} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Moves by phase
	if len(stats.MovesByPhase) > 0 {
		fmt.Fprintln(w, "Moves by Phase:")
		for _, phase := range []log.MotionPhase{
			log.MotionStart, log.MotionComplete, log.MotionStopped, log.MotionFailed,
		} {
			if count := stats.MovesByPhase[phase]; count > 0 {
				fmt.Fprintf(w, "  %-12s %d\n", phase.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	// Devices
	fmt.Fprintf(w, "Devices: %d\n", len(stats.Devices))
	if len(stats.Devices) > 0 {
		// Sort by first seen time
		type devInfo struct {
			name  string
			stats *DeviceStats
		}
		devs := make([]devInfo, 0, len(stats.Devices))
		for name, ds := range stats.Devices {
			devs = append(devs, devInfo{name, ds})
		}
		sort.Slice(devs, func(i, j int) bool {
			return devs[i].stats.FirstSeen.Before(devs[j].stats.FirstSeen)
		})

		fmt.Fprintln(w, "")
		for _, d := range devs {
			duration := d.stats.LastSeen.Sub(d.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", d.name, d.stats.Events, duration)
			if d.stats.Moves > 0 {
				fmt.Fprintf(w, "           Moves: %d\n", d.stats.Moves)
			}
			if d.stats.Setpoints > 0 {
				fmt.Fprintf(w, "           Setpoints: %d\n", d.stats.Setpoints)
			}
			if d.stats.Monitors > 0 {
				fmt.Fprintf(w, "           Monitor updates: %d\n", d.stats.Monitors)
			}
		}
	}

	// Errors
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
