package log

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestZerologAdapterWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	adapter := NewZerologAdapterWithLogger(logger)

	adapter.Log(Event{
		Timestamp: time.Now(),
		Device:    "hx2_slits",
		PV:        "HX2:SB1:Slits:XWID_REQ",
		Category:  CategorySetpoint,
		Setpoint:  &SetpointEvent{Value: 2.5},
	})

	out := buf.String()
	if !strings.Contains(out, `"category":"SETPOINT"`) {
		t.Errorf("output missing category: %s", out)
	}
	if !strings.Contains(out, `"device":"hx2_slits"`) {
		t.Errorf("output missing device: %s", out)
	}
	if !strings.Contains(out, `"value":2.5`) {
		t.Errorf("output missing value: %s", out)
	}
}

func TestZerologAdapterErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	adapter := NewZerologAdapterWithLogger(logger)

	adapter.Log(Event{
		Timestamp: time.Now(),
		Category:  CategoryError,
		Error:     &ErrorEventData{Message: "pv disconnected", Context: "Get"},
	})

	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) {
		t.Errorf("error events should log at error level: %s", out)
	}
	if !strings.Contains(out, "pv disconnected") {
		t.Errorf("output missing error message: %s", out)
	}
}
