package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/photon-controls/slits-go/pkg/log"
)

// csvHeader is the column layout of CSV exports. Type-specific columns
// are sparse: each row fills only the ones its event kind carries.
var csvHeader = []string{
	"timestamp", "device", "pv", "category",
	"phase", "value", "direction", "message_id", "detail",
}

// RunExport converts the trace at path into jsonl or csv, written to
// the output file or to stdout when output is empty.
func RunExport(path, format, output string) error {
	var export func(*log.Reader, io.Writer) error
	switch format {
	case "jsonl":
		export = exportJSONL
	case "csv":
		export = exportCSV
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	w := io.Writer(os.Stdout)
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	return export(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := cw.Write(csvRow(event)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
}

// csvRow flattens one event into the csvHeader columns.
func csvRow(event log.Event) []string {
	var phase, value, direction, msgID, detail string
	switch {
	case event.Setpoint != nil:
		value = formatFloat(event.Setpoint.Value)
	case event.Motion != nil:
		phase = event.Motion.Phase.String()
		value = formatFloat(event.Motion.Target)
	case event.Monitor != nil:
		value = formatFloat(event.Monitor.Value)
	case event.Wire != nil:
		direction = event.Wire.Direction.String()
		if event.Wire.MessageID != 0 {
			msgID = strconv.FormatUint(uint64(event.Wire.MessageID), 10)
		}
	case event.Connection != nil:
		detail = event.Connection.NewState
	case event.Error != nil:
		detail = event.Error.Message
	}

	return []string{
		event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		event.Device,
		event.PV,
		event.Category.String(),
		phase,
		value,
		direction,
		msgID,
		detail,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
