package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/photon-controls/slits-go/pkg/log"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output    string
	Device    string
	PV        string
	TimeStart string
	TimeEnd   string
	Category  string
}

// build parses the string-valued flags into a reader filter.
func (o FilterOptions) build() (log.Filter, error) {
	filter := log.Filter{
		Device: o.Device,
		PV:     o.PV,
	}

	var err error
	if filter.TimeStart, err = parseTimeFlag("time-start", o.TimeStart); err != nil {
		return log.Filter{}, err
	}
	if filter.TimeEnd, err = parseTimeFlag("time-end", o.TimeEnd); err != nil {
		return log.Filter{}, err
	}

	if o.Category != "" {
		c, err := parseCategory(o.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	return filter, nil
}

// parseTimeFlag parses an RFC3339 flag value. Empty means unset.
func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format: %w", name, err)
	}
	return &t, nil
}

// RunFilter copies the events matching opts from the trace at path into
// a new trace file, preserving the CBOR encoding so the result feeds
// back into every other command.
func RunFilter(path string, opts FilterOptions) error {
	filter, err := opts.build()
	if err != nil {
		return err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	out, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output trace: %w", err)
	}
	defer out.Close()

	count, err := copyEvents(reader, out)
	if err != nil {
		return err
	}
	fmt.Printf("Filtered %d events to %s\n", count, opts.Output)
	return nil
}

// copyEvents drains the reader into the logger and reports how many
// events passed through.
func copyEvents(reader *log.Reader, out log.Logger) (int, error) {
	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		out.Log(event)
		count++
	}
}
