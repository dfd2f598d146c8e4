// Command slit-sim runs a soft-IOC slit simulator behind a gateway server.
//
// Every slit defined in the beamline file (or the single default slit when
// no file is given) gets a full record set: setpoint, readback and done
// records for all four axes plus the discrete open/close/block commands.
// Motion is simulated at a fixed velocity and served to gateway clients
// over TCP.
//
// Usage:
//
//	slit-sim [flags]
//
// Flags:
//
//	-listen string     Gateway listen address (default ":5815")
//	-config string     Beamline YAML file (default: one slit at -prefix)
//	-prefix string     Record prefix for the default slit (default "SIM:SLIT1")
//	-velocity float    Axis travel speed in units per second (default 5.0)
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-event-log string  Write device events to a CBOR trace file
//	-archive string    Record aperture history into a SQLite file
//	-watch             Reload the beamline file when it changes on disk
//
// Examples:
//
//	# Single default slit on the default port
//	slit-sim
//
//	# Serve a beamline file, archive history, trace events
//	slit-sim -config beamline.yaml -archive history.db -event-log sim.trace
//
//	# Slow motion for watching moves settle
//	slit-sim -velocity 0.5 -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/photon-controls/slits-go/pkg/archive"
	"github.com/photon-controls/slits-go/pkg/config"
	"github.com/photon-controls/slits-go/pkg/gateway"
	"github.com/photon-controls/slits-go/pkg/ioc"
	devlog "github.com/photon-controls/slits-go/pkg/log"
	"github.com/photon-controls/slits-go/pkg/pv"
	"github.com/photon-controls/slits-go/pkg/slits"
)

// Config holds the simulator configuration.
type Config struct {
	Listen     string
	ConfigFile string
	Prefix     string
	Velocity   float64
	LogLevel   string
	EventLog   string
	Archive    string
	Watch      bool
}

var cfg Config

func init() {
	flag.StringVar(&cfg.Listen, "listen", gateway.DefaultAddress, "Gateway listen address")
	flag.StringVar(&cfg.ConfigFile, "config", "", "Beamline YAML file")
	flag.StringVar(&cfg.Prefix, "prefix", "SIM:SLIT1", "Record prefix for the default slit")
	flag.Float64Var(&cfg.Velocity, "velocity", ioc.DefaultVelocity, "Axis travel speed in units per second")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.EventLog, "event-log", "", "Write device events to a CBOR trace file")
	flag.StringVar(&cfg.Archive, "archive", "", "Record aperture history into a SQLite file")
	flag.BoolVar(&cfg.Watch, "watch", false, "Reload the beamline file when it changes on disk")
}

func main() {
	flag.Parse()

	setupLogging(cfg.LogLevel)

	log.Println("Slit Simulator")
	log.Println("==============")
	log.Printf("Listen: %s", cfg.Listen)
	log.Printf("Velocity: %g units/s", cfg.Velocity)

	if err := validateConfig(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	deviceLogger, closeLogger, err := buildDeviceLogger()
	if err != nil {
		log.Fatalf("Failed to open event log: %v", err)
	}
	defer closeLogger()

	beamline, err := loadBeamline()
	if err != nil {
		log.Fatalf("Failed to load beamline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := &simulator{
		registry: pv.NewRegistry(),
		logger:   deviceLogger,
		sets:     make(map[string]*ioc.SlitRecordSet),
	}

	for _, entry := range beamline.Slits {
		if err := sim.addSlit(entry); err != nil {
			log.Fatalf("Failed to build slit %s: %v", entry.Prefix, err)
		}
		log.Printf("Slit %s ready (prefix %s)", entry.Name, entry.Prefix)
	}

	server, err := gateway.NewServer(gateway.ServerConfig{
		Address:  cfg.Listen,
		Registry: sim.registry,
		Logger:   deviceLogger,
	})
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}
	if err := server.Start(ctx); err != nil {
		log.Fatalf("Failed to start gateway: %v", err)
	}
	log.Printf("Gateway listening on %s", server.Addr())

	var recorder *archive.Recorder
	if cfg.Archive != "" {
		recorder, err = archive.Open(archive.Config{Path: cfg.Archive})
		if err != nil {
			log.Fatalf("Failed to open archive: %v", err)
		}

		for _, entry := range beamline.Slits {
			if err := sim.archiveSlit(entry, recorder); err != nil {
				log.Fatalf("Failed to archive slit %s: %v", entry.Name, err)
			}
		}
		log.Printf("Archiving aperture history to %s", cfg.Archive)
	}

	if cfg.Watch && cfg.ConfigFile != "" {
		watcher, err := config.NewWatcher(config.WatcherConfig{
			Path: cfg.ConfigFile,
			OnReload: func(updated *config.Config) {
				sim.applyReload(updated, recorder)
			},
			OnError: func(err error) {
				log.Printf("Config reload failed: %v", err)
			},
		})
		if err != nil {
			log.Fatalf("Failed to watch %s: %v", cfg.ConfigFile, err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("Config watcher stopped: %v", err)
			}
		}()
		log.Printf("Watching %s for changes", cfg.ConfigFile)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Printf("Received signal: %v", sig)
	log.Println("Shutting down...")

	if err := server.Stop(); err != nil {
		log.Printf("Error stopping gateway: %v", err)
	}
	sim.closeAll()
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			log.Printf("Error closing archive: %v", err)
		}
	}

	log.Println("Goodbye!")
}

// simulator owns the record sets and the registry they are served from.
// The reload callback runs on the watcher goroutine, so the set map is
// guarded.
type simulator struct {
	registry *pv.Registry
	logger   devlog.Logger

	mu   sync.Mutex
	sets map[string]*ioc.SlitRecordSet
}

// addSlit builds and registers the record set for one beamline entry.
func (s *simulator) addSlit(entry config.SlitEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sets[entry.Prefix]; ok {
		return fmt.Errorf("prefix %s already running", entry.Prefix)
	}
	rs, err := ioc.NewSlitRecordSet(ioc.SlitConfig{
		Prefix:   entry.Prefix,
		Velocity: cfg.Velocity,
		Logger:   s.logger,
	})
	if err != nil {
		return err
	}
	if err := rs.Register(s.registry); err != nil {
		rs.Close()
		return err
	}
	s.sets[entry.Prefix] = rs
	return nil
}

// archiveSlit subscribes a device view of one slit to the recorder, so
// every aperture change lands in the history table.
func (s *simulator) archiveSlit(entry config.SlitEntry, recorder *archive.Recorder) error {
	device, err := slits.New(slits.Config{
		Name:    entry.Name,
		Prefix:  entry.Prefix,
		Nominal: slits.Aperture{Width: entry.Width(), Height: entry.Height()},
		Logger:  s.logger,
	}, s.registry)
	if err != nil {
		return err
	}
	_, err = device.Subscribe(func(ev slits.Event) {
		if err := recorder.RecordEvent(ev); err != nil {
			log.Printf("Archive write failed: %v", err)
		}
	}, slits.SubscribeOptions{Run: true})
	return err
}

// applyReload brings record sets for newly added prefixes online.
// Existing slits keep running; removals take effect on restart.
func (s *simulator) applyReload(updated *config.Config, recorder *archive.Recorder) {
	for _, entry := range updated.Slits {
		if s.has(entry.Prefix) {
			continue
		}
		if err := s.addSlit(entry); err != nil {
			log.Printf("Reload: failed to build slit %s: %v", entry.Prefix, err)
			continue
		}
		if recorder != nil {
			if err := s.archiveSlit(entry, recorder); err != nil {
				log.Printf("Reload: failed to archive slit %s: %v", entry.Name, err)
			}
		}
		log.Printf("Reload: slit %s ready (prefix %s)", entry.Name, entry.Prefix)
	}
}

func (s *simulator) has(prefix string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[prefix]
	return ok
}

func (s *simulator) closeAll() {
	s.mu.Lock()
	sets := make([]*ioc.SlitRecordSet, 0, len(s.sets))
	for _, rs := range s.sets {
		sets = append(sets, rs)
	}
	s.mu.Unlock()

	for _, rs := range sets {
		rs.Close()
	}
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

func validateConfig() error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if cfg.Velocity <= 0 {
		return fmt.Errorf("velocity must be positive, got %g", cfg.Velocity)
	}
	if cfg.Watch && cfg.ConfigFile == "" {
		return fmt.Errorf("-watch requires -config")
	}
	return nil
}

// buildDeviceLogger assembles the device-event logger: a CBOR trace file
// when -event-log is set, console output at debug level, both when both
// apply.
func buildDeviceLogger() (devlog.Logger, func(), error) {
	var loggers []devlog.Logger
	closeLogger := func() {}

	if cfg.EventLog != "" {
		fl, err := devlog.NewFileLogger(cfg.EventLog)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closeLogger = func() { fl.Close() }
	}
	if cfg.LogLevel == "debug" {
		loggers = append(loggers, devlog.NewZerologAdapter())
	}

	switch len(loggers) {
	case 0:
		return devlog.NoopLogger{}, closeLogger, nil
	case 1:
		return loggers[0], closeLogger, nil
	default:
		return devlog.NewMultiLogger(loggers...), closeLogger, nil
	}
}

// loadBeamline reads the -config file, or synthesizes a single-slit
// beamline from -prefix when no file is given.
func loadBeamline() (*config.Config, error) {
	if cfg.ConfigFile == "" {
		return &config.Config{
			Slits: []config.SlitEntry{{
				Name:   "slits",
				Prefix: cfg.Prefix,
			}},
		}, nil
	}
	return config.Load(cfg.ConfigFile)
}
