// Package archive records aperture history into a SQLite file.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	// SQLite driver, used through database/sql.
	_ "github.com/mattn/go-sqlite3"
	"github.com/tebeka/atexit"

	"github.com/photon-controls/slits-go/pkg/slits"
)

// DefaultBatchSize is the number of buffered rows that forces a flush.
const DefaultBatchSize = 256

// ErrClosed indicates a write against a recorder that was closed.
var ErrClosed = errors.New("archive recorder is closed")

// Quantity labels written to the pv column by RecordEvent.
const (
	QuantityWidth  = "width"
	QuantityHeight = "height"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS aperture_history (
	recorded_at INTEGER NOT NULL,
	device      TEXT    NOT NULL,
	pv          TEXT    NOT NULL,
	value       REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS aperture_history_device_time
	ON aperture_history (device, recorded_at);
`

const insertSQL = `INSERT INTO aperture_history (recorded_at, device, pv, value) VALUES (?, ?, ?, ?)`

// Config configures a history recorder.
type Config struct {
	// Path is the SQLite database file. Created when missing.
	Path string

	// BatchSize is the number of buffered rows that forces a flush
	// (default: 256).
	BatchSize int
}

// Sample is one row read back from the history table.
type Sample struct {
	RecordedAt time.Time
	Device     string
	PV         string
	Value      float64
}

type row struct {
	recordedAt time.Time
	device     string
	pv         string
	value      float64
}

// Recorder buffers history rows and writes them to SQLite in batches.
// A flush happens when the buffer reaches the batch size, on Flush and
// Close, and at process exit.
type Recorder struct {
	db        *sql.DB
	batchSize int

	mu      sync.Mutex
	pending []row
	closed  bool
}

// Open opens or creates the archive database and bootstraps the
// history table.
func Open(cfg Config) (*Recorder, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("archive path is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", cfg.Path, err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating aperture_history: %w", err)
	}

	r := &Recorder{db: db, batchSize: cfg.BatchSize}
	atexit.Register(func() { r.Flush() })
	return r, nil
}

// Record buffers one history row. The write reaches the database at
// the next flush.
func (r *Recorder) Record(device, pvName string, value float64, stamp time.Time) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.pending = append(r.pending, row{recordedAt: stamp, device: device, pv: pvName, value: value})
	full := len(r.pending) >= r.batchSize
	r.mu.Unlock()

	if full {
		return r.Flush()
	}
	return nil
}

// RecordEvent buffers a device event as one row per aperture
// dimension, labelled width and height. It is shaped to sit behind
// slits.Subscribe.
func (r *Recorder) RecordEvent(ev slits.Event) error {
	if err := r.Record(ev.Device, QuantityWidth, ev.Aperture.Width, ev.Timestamp); err != nil {
		return err
	}
	return r.Record(ev.Device, QuantityHeight, ev.Aperture.Height, ev.Timestamp)
}

// Flush writes all buffered rows in one transaction. Flushing a closed
// or empty recorder is a no-op.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	rows := r.pending
	r.pending = nil
	r.mu.Unlock()

	return r.write(rows)
}

// Close flushes buffered rows and closes the database. Later writes
// return ErrClosed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	rows := r.pending
	r.pending = nil
	r.mu.Unlock()

	flushErr := r.write(rows)
	closeErr := r.db.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// History flushes pending rows and returns the rows for device
// recorded at or after since, oldest first.
func (r *Recorder) History(device string, since time.Time) ([]Sample, error) {
	if err := r.Flush(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	rows, err := r.db.Query(
		`SELECT recorded_at, device, pv, value FROM aperture_history
		 WHERE device = ? AND recorded_at >= ? ORDER BY recorded_at`,
		device, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("querying aperture_history: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var nanos int64
		var s Sample
		if err := rows.Scan(&nanos, &s.Device, &s.PV, &s.Value); err != nil {
			return nil, fmt.Errorf("scanning aperture_history row: %w", err)
		}
		s.RecordedAt = time.Unix(0, nanos)
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading aperture_history rows: %w", err)
	}
	return samples, nil
}

func (r *Recorder) write(rows []row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning archive flush: %w", err)
	}
	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing archive insert: %w", err)
	}
	for _, s := range rows {
		if _, err := stmt.Exec(s.recordedAt.UnixNano(), s.device, s.pv, s.value); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("inserting archive row: %w", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing archive flush: %w", err)
	}
	return nil
}
