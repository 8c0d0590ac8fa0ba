// Package mirror periodically exports store snapshots as JSONL so an
// external sync component can pick them up. It is a pure snapshot consumer:
// it polls the read accessors on a cron schedule and never blocks the store.
package mirror

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/notifyr/internal/store"
)

// Exporter appends snapshot rows to JSONL files in dir on each tick.
type Exporter struct {
	store *store.Store
	dir   string
	cron  *cron.Cron
	now   func() time.Time
}

// New creates an Exporter writing into dir. A nil clock uses time.Now.
func New(s *store.Store, dir string, now func() time.Time) *Exporter {
	if now == nil {
		now = time.Now
	}
	return &Exporter{
		store: s,
		dir:   dir,
		cron:  cron.New(),
		now:   now,
	}
}

// Start registers the export job under the given cron schedule and starts
// the ticker.
func (e *Exporter) Start(schedule string) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	_, err := e.cron.AddFunc(schedule, func() {
		if err := e.ExportOnce(); err != nil {
			slog.Error("mirror export failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid mirror schedule %q: %w", schedule, err)
	}
	e.cron.Start()
	slog.Info("mirror exporter started", "dir", e.dir, "schedule", schedule)
	return nil
}

// Stop stops the cron ticker.
func (e *Exporter) Stop() {
	e.cron.Stop()
}

// exportRow wraps a snapshot object with the export timestamp and kind.
type exportRow struct {
	ExportedAt time.Time `json:"exported_at"`
	Kind       string    `json:"kind"`
	Data       any       `json:"data"`
}

// ExportOnce appends the current conversation and event snapshots to their
// JSONL files.
func (e *Exporter) ExportOnce() error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	now := e.now()

	var rows []exportRow
	for _, conv := range e.store.Conversations() {
		rows = append(rows, exportRow{ExportedAt: now, Kind: "conversation", Data: conv})
	}
	if err := e.appendRows("conversations.jsonl", rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, event := range e.store.Events() {
		rows = append(rows, exportRow{ExportedAt: now, Kind: "event", Data: event})
	}
	return e.appendRows("events.jsonl", rows)
}

func (e *Exporter) appendRows(name string, rows []exportRow) error {
	if len(rows) == 0 {
		return nil
	}
	path := filepath.Join(e.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open export file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
	}
	return nil
}
