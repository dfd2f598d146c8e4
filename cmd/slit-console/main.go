// Command slit-console is an interactive operator console for a slit
// device served by a gateway.
//
// The console connects to a gateway, builds a slit device over the
// connection, and offers the device operations at a prompt. Moves are
// dispatched asynchronously so the prompt stays live while the blades
// travel; completion is reported when the joint status settles.
//
// Usage:
//
//	slit-console [flags]
//
// Flags:
//
//	-connect string     Gateway address (default "localhost:5815")
//	-config string      Beamline configuration file (YAML)
//	-name string        Device name to select from the configuration
//	-prefix string      Record prefix when no configuration is given (default "SIM:SLIT1")
//	-timeout duration   Motion timeout, overrides the configured default
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-event-log string   Write device events to a CBOR trace file
//
// Examples:
//
//	# Connect to a local simulator
//	slit-console
//
//	# Drive a configured device
//	slit-console -connect gateway:5815 -config beamline.yaml -name hxr-slits
//
//	# Record everything the session does
//	slit-console -event-log session.trace
//
// Interactive Commands:
//
//	move <w> [h]   - Move to aperture w x h
//	remove [size]  - Retract to the nominal (or square) aperture
//	stop           - Halt all four axes
//	open|close|block - Discrete blade commands
//	status         - Show device and axis state
//	aperture       - Show the current opening
//	transmission   - Show the estimated beam transmission
//	watch on|off   - Stream aperture changes
//	stage/restore  - Snapshot and return to an opening
//	quit           - Exit the console
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/photon-controls/slits-go/cmd/slit-console/interactive"
	"github.com/photon-controls/slits-go/pkg/config"
	"github.com/photon-controls/slits-go/pkg/gateway"
	devlog "github.com/photon-controls/slits-go/pkg/log"
	"github.com/photon-controls/slits-go/pkg/slits"
)

// Config holds the console configuration.
type Config struct {
	Connect    string
	ConfigFile string
	Name       string
	Prefix     string
	Timeout    time.Duration
	LogLevel   string
	EventLog   string
}

var cfg Config

func init() {
	flag.StringVar(&cfg.Connect, "connect", "localhost:5815", "Gateway address")
	flag.StringVar(&cfg.ConfigFile, "config", "", "Beamline configuration file (YAML)")
	flag.StringVar(&cfg.Name, "name", "", "Device name to select from the configuration")
	flag.StringVar(&cfg.Prefix, "prefix", "SIM:SLIT1", "Record prefix when no configuration is given")
	flag.DurationVar(&cfg.Timeout, "timeout", 0, "Motion timeout, overrides the configured default")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.EventLog, "event-log", "", "Write device events to a CBOR trace file")
}

func main() {
	flag.Parse()

	setupLogging(cfg.LogLevel)

	log.Println("Slit Console")
	log.Println("============")

	entry, err := resolveEntry()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Printf("Device: %s (prefix %s)", entry.Name, entry.Prefix)
	log.Printf("Gateway: %s", cfg.Connect)

	deviceLogger, closeLogger, err := buildDeviceLogger()
	if err != nil {
		log.Fatalf("Failed to open event log: %v", err)
	}
	defer closeLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A signal during the dial loop has to abort it, so the handler
	// feeds the same context the dialer waits on.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	client, err := gateway.DialRetry(ctx, gateway.RedialConfig{
		Client: gateway.ClientConfig{Address: cfg.Connect},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			log.Printf("Gateway not reachable (attempt %d): %v; retrying in %s", attempt, err, delay)
		},
	})
	if err != nil {
		log.Fatalf("Failed to connect to gateway: %v", err)
	}
	log.Printf("Connected (protocol %s)", client.ServerVersion())

	timeout := entry.Timeout
	if cfg.Timeout > 0 {
		timeout = cfg.Timeout
	}

	device, err := slits.New(slits.Config{
		Name:    entry.Name,
		Prefix:  entry.Prefix,
		Nominal: slits.Aperture{Width: entry.Width(), Height: entry.Height()},
		Timeout: timeout,
		Logger:  deviceLogger,
	}, client)
	if err != nil {
		log.Fatalf("Failed to create slit device: %v", err)
	}

	console, err := interactive.New(device, client, interactive.Options{Timeout: timeout})
	if err != nil {
		log.Fatalf("Failed to create console: %v", err)
	}

	// Redirect log output through readline to avoid interfering with input
	log.SetOutput(console.Stdout())
	go console.Run(ctx, cancel)

	select {
	case <-ctx.Done():
		// Quit command or signal
	case <-client.Done():
		if err := client.Err(); err != nil {
			log.Printf("Gateway connection lost: %v", err)
		}
		cancel()
	}

	log.Println("Shutting down...")

	console.Close()
	if err := client.Close(); err != nil {
		log.Printf("Error closing connection: %v", err)
	}

	log.Println("Goodbye!")
}

// resolveEntry picks the device to drive: the named entry of the
// beamline file, its first entry, or a synthetic one built from
// -prefix when no file is given.
func resolveEntry() (config.SlitEntry, error) {
	if cfg.ConfigFile == "" {
		if cfg.Name != "" {
			return config.SlitEntry{}, fmt.Errorf("-name requires -config")
		}
		if cfg.Prefix == "" {
			return config.SlitEntry{}, fmt.Errorf("-prefix must not be empty")
		}
		return config.SlitEntry{Name: cfg.Prefix, Prefix: cfg.Prefix}, nil
	}

	beamline, err := config.Load(cfg.ConfigFile)
	if err != nil {
		return config.SlitEntry{}, err
	}
	if cfg.Name == "" {
		return beamline.Slits[0], nil
	}
	entry, ok := beamline.Lookup(cfg.Name)
	if !ok {
		return config.SlitEntry{}, fmt.Errorf("no slit named %q in %s", cfg.Name, cfg.ConfigFile)
	}
	return entry, nil
}

// buildDeviceLogger selects where device events go. Sessions usually
// run without an event log; -event-log records them to a CBOR file
// that slit-trace can read back.
func buildDeviceLogger() (devlog.Logger, func(), error) {
	if cfg.EventLog == "" {
		return devlog.NoopLogger{}, func() {}, nil
	}
	fl, err := devlog.NewFileLogger(cfg.EventLog)
	if err != nil {
		return nil, nil, err
	}
	return fl, func() {
		if err := fl.Close(); err != nil {
			log.Printf("Error closing event log: %v", err)
		}
	}, nil
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}
