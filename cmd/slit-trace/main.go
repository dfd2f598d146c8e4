// Command slit-trace is a tool for viewing and analyzing device trace files.
//
// Trace files are created by the device event logging infrastructure when
// running slit-sim or slit-console with the -event-log flag.
//
// Usage:
//
//	slit-trace <command> [flags] <file.trace>
//
// Commands:
//
//	view     View trace file in human-readable format
//	export   Export trace file to JSON or CSV format
//	filter   Filter trace file and write to new file
//	stats    Show statistics about the trace file
//
// Examples:
//
//	# View all events
//	slit-trace view sim.trace
//
//	# View only motion events
//	slit-trace view --category motion sim.trace
//
//	# View one channel
//	slit-trace view --pv SIM:SLIT1:XWID_REQ sim.trace
//
//	# Export to JSONL
//	slit-trace export --format jsonl sim.trace
//
//	# Filter by device and save to new file
//	slit-trace filter --device slits -o slits.trace sim.trace
//
//	# Show statistics
//	slit-trace stats sim.trace
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/photon-controls/slits-go/cmd/slit-trace/commands"
)

const usage = `slit-trace - Slit Device Trace Analyzer

Usage:
  slit-trace <command> [flags] <file.trace>

Commands:
  view     View trace file in human-readable format
  export   Export trace file to JSON or CSV format
  filter   Filter trace file and write to new file
  stats    Show statistics about the trace file

Use "slit-trace <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// newFlagSet builds the flag set for one subcommand, with a usage
// function assembled from the one-line summary.
func newFlagSet(name, summary string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "slit-trace %s - %s\n\nUsage:\n  slit-trace %s [flags] <file.trace>\n\nFlags:\n",
			name, summary, name)
		fs.PrintDefaults()
	}
	return fs
}

// traceArg parses args and returns the positional trace file path,
// exiting with usage when it is missing.
func traceArg(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: trace file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View trace file in human-readable format")
	device := fs.String("device", "", "Filter by device name")
	pv := fs.String("pv", "", "Filter by PV name")
	category := fs.String("category", "", "Filter by category (setpoint, motion, monitor, wire, connection, error)")
	path := traceArg(fs, args)

	filter := commands.ViewFilter{
		Device: *device,
		PV:     *pv,
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export trace file to JSON or CSV format")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := traceArg(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter trace file and write to new file")
	output := fs.String("o", "", "Output file (required)")
	device := fs.String("device", "", "Filter by device name")
	pv := fs.String("pv", "", "Filter by PV name")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")
	category := fs.String("category", "", "Filter by category (setpoint, motion, monitor, wire, connection, error)")
	path := traceArg(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	opts := commands.FilterOptions{
		Output:    *output,
		Device:    *device,
		PV:        *pv,
		TimeStart: *timeStart,
		TimeEnd:   *timeEnd,
		Category:  *category,
	}
	if err := commands.RunFilter(path, opts); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the trace file")
	path := traceArg(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
